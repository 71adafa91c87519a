package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/repository"
)

// EntryHandler exposes the event catalog read-only.
type EntryHandler struct {
	entries repository.EntryRepository
}

// NewEntryHandler creates a new entry handler.
func NewEntryHandler(entries repository.EntryRepository) *EntryHandler {
	return &EntryHandler{entries: entries}
}

// Register registers the entry routes with the API.
func (h *EntryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listEntries",
		Method:      "GET",
		Path:        "/api/v1/entries",
		Summary:     "List entries",
		Description: "Returns catalog entries ordered by start time",
		Tags:        []string{"Entries"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getEntry",
		Method:      "GET",
		Path:        "/api/v1/entries/{id}",
		Summary:     "Get entry",
		Tags:        []string{"Entries"},
	}, h.GetByID)
}

// ListEntriesInput is the input for listing entries.
type ListEntriesInput struct {
	Scheduled bool   `query:"scheduled" doc:"Only entries with a channel assigned"`
	Provider  string `query:"provider" doc:"Provider key, e.g. espnplus"`
}

// ListEntriesOutput is the output for listing entries.
type ListEntriesOutput struct {
	Body struct {
		Entries []*models.Entry `json:"entries"`
		Total   int             `json:"total"`
	}
}

// List returns catalog entries.
func (h *EntryHandler) List(ctx context.Context, input *ListEntriesInput) (*ListEntriesOutput, error) {
	providerKey := strings.ToLower(input.Provider)

	var (
		entries []*models.Entry
		err     error
	)
	if input.Scheduled {
		entries, err = h.entries.Scheduled(ctx, repository.ScheduledFilter{Provider: providerKey})
	} else {
		entries, err = h.entries.GetAll(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list entries", err)
	}

	resp := &ListEntriesOutput{}
	resp.Body.Entries = make([]*models.Entry, 0, len(entries))
	for _, e := range entries {
		if providerKey != "" && e.From != providerKey {
			continue
		}
		resp.Body.Entries = append(resp.Body.Entries, e)
	}
	resp.Body.Total = len(resp.Body.Entries)
	return resp, nil
}

// GetEntryInput is the input for getting an entry.
type GetEntryInput struct {
	ID string `path:"id" doc:"Provider-assigned entry ID"`
}

// GetEntryOutput is the output for getting an entry.
type GetEntryOutput struct {
	Body *models.Entry
}

// GetByID returns one entry.
func (h *EntryHandler) GetByID(ctx context.Context, input *GetEntryInput) (*GetEntryOutput, error) {
	entry, err := h.entries.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get entry", err)
	}
	if entry == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("entry %s not found", input.ID))
	}
	return &GetEntryOutput{Body: entry}, nil
}
