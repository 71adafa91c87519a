package models

import (
	"time"
)

// ScheduleSettings holds the operator-controlled channel pool and filters.
// A single row exists; it is seeded from configuration on first start.
type ScheduleSettings struct {
	BaseModel

	StartChannel      int      `gorm:"not null" json:"start_channel"`
	NumChannels       int      `gorm:"not null" json:"num_channels"`
	ExcludeCategories []string `gorm:"serializer:json;type:text" json:"exclude_categories"`
	ExcludeTitles     []string `gorm:"serializer:json;type:text" json:"exclude_titles"`
}

// TableName returns the table name for schedule settings.
func (ScheduleSettings) TableName() string {
	return "schedule_settings"
}

// EndChannel returns the first channel number past the pool.
func (s *ScheduleSettings) EndChannel() int {
	return s.StartChannel + s.NumChannels
}

// Validate checks the pool bounds.
func (s *ScheduleSettings) Validate() error {
	if s.StartChannel < 1 {
		return ErrValidation{Field: "start_channel", Message: "must be at least 1"}
	}
	if s.NumChannels < 1 {
		return ErrValidation{Field: "num_channels", Message: "must be at least 1"}
	}
	return nil
}

// ScheduleTrigger records what started a scheduling pass.
type ScheduleTrigger string

const (
	TriggerTimer    ScheduleTrigger = "timer"
	TriggerStartup  ScheduleTrigger = "startup"
	TriggerRebuild  ScheduleTrigger = "rebuild"
	TriggerReset    ScheduleTrigger = "reset"
	TriggerSettings ScheduleTrigger = "settings"
)

// ScheduleRun is the outcome of one scheduling pass.
type ScheduleRun struct {
	BaseModel

	Trigger      ScheduleTrigger `gorm:"size:20;not null;index" json:"trigger"`
	StartedAt    time.Time       `gorm:"not null;index" json:"started_at"`
	DurationMs   int64           `json:"duration_ms"`
	Pruned       int64           `json:"pruned"`
	Considered   int             `json:"considered"`
	Filtered     int             `json:"filtered"`
	Scheduled    int             `json:"scheduled"`
	Linear       int             `json:"linear"`
	Dropped      int             `json:"dropped"`
	ChannelsUsed int             `json:"channels_used"`
	Error        string          `gorm:"size:1024" json:"error,omitempty"`
}

// TableName returns the table name for schedule runs.
func (ScheduleRun) TableName() string {
	return "schedule_runs"
}
