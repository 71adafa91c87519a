package models

import (
	"strings"
	"time"
)

// Entry is a schedulable live event. Entries are inserted once by ingestion
// and never updated afterwards, except for the channel assignment.
type Entry struct {
	// ID is assigned by the provider and is unique across the catalog.
	ID string `gorm:"primaryKey;size:255" json:"id"`

	// From is the provider key the entry was ingested from.
	From string `gorm:"column:provider;size:64;not null;index" json:"from"`

	Name string `gorm:"size:1024;not null" json:"name"`

	// Start and End are unix milliseconds. The entry covers [Start, End).
	Start int64 `gorm:"column:start_ms;not null;index;index:idx_entries_channel_window,priority:2" json:"start"`
	End   int64 `gorm:"column:end_ms;not null;index;index:idx_entries_channel_window,priority:3" json:"end"`

	// Duration is in seconds.
	Duration   int64    `json:"duration"`
	Categories []string `gorm:"serializer:json;type:text" json:"categories"`
	Feed       *string  `gorm:"size:255" json:"feed,omitempty"`
	Sport      *string  `gorm:"size:255" json:"sport,omitempty"`
	Network    string   `gorm:"size:255" json:"network"`
	Image      string   `gorm:"size:2048" json:"image"`

	// Channel is nil until the scheduler places the entry.
	Channel *int  `gorm:"index;index:idx_entries_channel_window,priority:1" json:"channel,omitempty"`
	Linear  *bool `json:"linear,omitempty"`
	Replay  *bool `json:"replay,omitempty"`

	URL         *string `gorm:"size:4096" json:"url,omitempty"`
	OriginalEnd *int64  `json:"originalEnd,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for entries.
func (Entry) TableName() string {
	return "entries"
}

// StartTime returns Start as a time.Time.
func (e *Entry) StartTime() time.Time {
	return time.UnixMilli(e.Start)
}

// EndTime returns End as a time.Time.
func (e *Entry) EndTime() time.Time {
	return time.UnixMilli(e.End)
}

// IsLinear reports whether the entry belongs on a fixed linear channel.
func (e *Entry) IsLinear() bool {
	return e.Linear != nil && *e.Linear
}

// IsScheduled reports whether a channel has been assigned.
func (e *Entry) IsScheduled() bool {
	return e.Channel != nil
}

// Covers reports whether t falls inside [Start, End).
func (e *Entry) Covers(t time.Time) bool {
	ms := t.UnixMilli()
	return e.Start <= ms && ms < e.End
}

// Overlaps reports whether the two half-open windows intersect.
func (e *Entry) Overlaps(o *Entry) bool {
	return e.Start < o.End && o.Start < e.End
}

// Expired reports whether the entry ended at or before t.
func (e *Entry) Expired(t time.Time) bool {
	return e.End <= t.UnixMilli()
}

// Validate checks the fields ingestion relies on.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrValidation{Field: "id", Message: "is required"}
	}
	if e.From == "" {
		return ErrValidation{Field: "from", Message: "is required"}
	}
	if e.End <= e.Start {
		return ErrValidation{Field: "end", Message: "must be after start"}
	}
	return nil
}
