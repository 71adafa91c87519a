package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProviderState is the persisted credential document of one provider
// adapter. The Data payload is opaque to everything but the adapter.
type ProviderState struct {
	Key       string     `gorm:"primaryKey;size:64" json:"key"`
	Data      string     `gorm:"type:text" json:"data"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the table name for provider states.
func (ProviderState) TableName() string {
	return "provider_states"
}

// Decode unmarshals the state payload into v. An empty payload leaves v untouched.
func (p *ProviderState) Decode(v any) error {
	if p == nil || p.Data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(p.Data), v); err != nil {
		return fmt.Errorf("decoding %s state: %w", p.Key, err)
	}
	return nil
}

// Encode marshals v into the state payload.
func (p *ProviderState) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s state: %w", p.Key, err)
	}
	p.Data = string(data)
	return nil
}
