// Package credentials persists provider credential documents. The remote
// store is authoritative; every successful read and write is mirrored into
// the local database, which answers when the remote store is unreachable.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/remote"
	"github.com/leduong/EPlusTV/internal/repository"
)

// Store loads and saves provider credential documents.
type Store interface {
	// Load decodes the document for key into v. It reports false when no
	// document exists anywhere.
	Load(ctx context.Context, key string, v any) (bool, error)
	// Save encodes v as the document for key.
	Save(ctx context.Context, key string, v any) error
}

// MirroredStore is a Store backed by the remote store with a local mirror.
type MirroredStore struct {
	remote remote.Store
	local  repository.ProviderStateRepository
	logger *slog.Logger
}

// NewMirroredStore creates a MirroredStore. A nil remote store makes the
// local mirror the only backing.
func NewMirroredStore(rs remote.Store, local repository.ProviderStateRepository, logger *slog.Logger) *MirroredStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirroredStore{
		remote: rs,
		local:  local,
		logger: observability.WithComponent(logger, "credentials"),
	}
}

// Load decodes the document for key into v.
func (s *MirroredStore) Load(ctx context.Context, key string, v any) (bool, error) {
	if s.remote != nil {
		p, err := s.remote.Provider(ctx, key)
		if err == nil {
			if p == nil || len(p.Data) == 0 || string(p.Data) == "null" {
				return s.loadLocal(ctx, key, v)
			}
			if err := json.Unmarshal(p.Data, v); err != nil {
				return false, fmt.Errorf("decoding %s credentials: %w", key, err)
			}
			s.mirror(ctx, key, p.Data)
			return true, nil
		}
		observability.WithError(s.logger, err).Warn("remote credential read failed, using local mirror",
			slog.String("provider", key),
		)
	}
	return s.loadLocal(ctx, key, v)
}

func (s *MirroredStore) loadLocal(ctx context.Context, key string, v any) (bool, error) {
	state, err := s.local.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if state == nil || state.Data == "" {
		return false, nil
	}
	if err := state.Decode(v); err != nil {
		return false, err
	}
	return true, nil
}

// Save encodes v and writes it to the remote store and the local mirror.
// A remote failure is returned after the local mirror has been updated.
func (s *MirroredStore) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s credentials: %w", key, err)
	}

	if err := s.writeLocal(ctx, key, data); err != nil {
		return err
	}
	if s.remote == nil {
		return nil
	}
	if err := s.remote.UpsertProvider(ctx, &remote.Provider{Key: key, Data: data}); err != nil {
		return fmt.Errorf("saving %s credentials remotely: %w", key, err)
	}
	return nil
}

func (s *MirroredStore) mirror(ctx context.Context, key string, data []byte) {
	if err := s.writeLocal(ctx, key, data); err != nil {
		observability.WithError(s.logger, err).Warn("mirroring credentials failed",
			slog.String("provider", key),
		)
	}
}

func (s *MirroredStore) writeLocal(ctx context.Context, key string, data []byte) error {
	return s.local.Upsert(ctx, &models.ProviderState{
		Key:       key,
		Data:      string(data),
		UpdatedAt: time.Now(),
	})
}
