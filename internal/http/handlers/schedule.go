package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/scheduler"
)

// ScheduleService is the scheduling surface the admin API drives.
type ScheduleService interface {
	Settings(ctx context.Context) (*models.ScheduleSettings, error)
	UpdateSettings(ctx context.Context, in *models.ScheduleSettings) (*models.ScheduleRun, error)
	ResetSchedule(ctx context.Context) (*models.ScheduleRun, error)
	Rebuild(ctx context.Context) (*models.ScheduleRun, error)
	Runs(ctx context.Context, limit int) ([]*models.ScheduleRun, error)
	Preview(ctx context.Context) (*scheduler.Preview, error)
}

// ScheduleHandler handles schedule API endpoints.
type ScheduleHandler struct {
	service ScheduleService
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(service ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// Register registers the schedule routes with the API.
func (h *ScheduleHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "rebuildSchedule",
		Method:      "POST",
		Path:        "/api/v1/schedule/rebuild",
		Summary:     "Rebuild schedule",
		Description: "Clears the catalog, ingests every provider again and reschedules",
		Tags:        []string{"Schedule"},
	}, h.Rebuild)

	huma.Register(api, huma.Operation{
		OperationID: "resetSchedule",
		Method:      "POST",
		Path:        "/api/v1/schedule/reset",
		Summary:     "Reset schedule",
		Description: "Clears every channel assignment and reschedules the stored catalog",
		Tags:        []string{"Schedule"},
	}, h.Reset)

	huma.Register(api, huma.Operation{
		OperationID: "getScheduleSettings",
		Method:      "GET",
		Path:        "/api/v1/schedule/settings",
		Summary:     "Get schedule settings",
		Tags:        []string{"Schedule"},
	}, h.GetSettings)

	huma.Register(api, huma.Operation{
		OperationID: "updateScheduleSettings",
		Method:      "PUT",
		Path:        "/api/v1/schedule/settings",
		Summary:     "Update schedule settings",
		Description: "Stores the channel pool and filters, then reschedules from scratch",
		Tags:        []string{"Schedule"},
	}, h.UpdateSettings)

	huma.Register(api, huma.Operation{
		OperationID: "listScheduleRuns",
		Method:      "GET",
		Path:        "/api/v1/schedule/runs",
		Summary:     "List schedule runs",
		Tags:        []string{"Schedule"},
	}, h.ListRuns)

	huma.Register(api, huma.Operation{
		OperationID: "previewSchedule",
		Method:      "GET",
		Path:        "/api/v1/schedule/preview",
		Summary:     "Preview schedule",
		Description: "Plans a schedule from scratch without persisting it",
		Tags:        []string{"Schedule"},
	}, h.Preview)
}

// ScheduleRunInput is the input for operations that trigger a pass.
type ScheduleRunInput struct{}

// ScheduleRunOutput is the result of a scheduling pass.
type ScheduleRunOutput struct {
	Body *models.ScheduleRun
}

// Rebuild clears and re-ingests the catalog.
func (h *ScheduleHandler) Rebuild(ctx context.Context, input *ScheduleRunInput) (*ScheduleRunOutput, error) {
	run, err := h.service.Rebuild(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to rebuild schedule", err)
	}
	return &ScheduleRunOutput{Body: run}, nil
}

// Reset reschedules from scratch.
func (h *ScheduleHandler) Reset(ctx context.Context, input *ScheduleRunInput) (*ScheduleRunOutput, error) {
	run, err := h.service.ResetSchedule(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to reset schedule", err)
	}
	return &ScheduleRunOutput{Body: run}, nil
}

// ScheduleSettingsBody is the editable part of the schedule settings.
type ScheduleSettingsBody struct {
	StartChannel      int      `json:"start_channel" minimum:"1" doc:"First dynamic channel number"`
	NumChannels       int      `json:"num_channels" minimum:"1" doc:"Size of the dynamic channel pool"`
	ExcludeCategories []string `json:"exclude_categories,omitempty" doc:"Caseless category substrings to skip"`
	ExcludeTitles     []string `json:"exclude_titles,omitempty" doc:"Caseless title substrings to skip"`
}

func settingsBody(s *models.ScheduleSettings) ScheduleSettingsBody {
	return ScheduleSettingsBody{
		StartChannel:      s.StartChannel,
		NumChannels:       s.NumChannels,
		ExcludeCategories: s.ExcludeCategories,
		ExcludeTitles:     s.ExcludeTitles,
	}
}

// GetSettingsInput is the input for reading settings.
type GetSettingsInput struct{}

// GetSettingsOutput is the output for reading settings.
type GetSettingsOutput struct {
	Body ScheduleSettingsBody
}

// GetSettings returns the current schedule settings.
func (h *ScheduleHandler) GetSettings(ctx context.Context, input *GetSettingsInput) (*GetSettingsOutput, error) {
	settings, err := h.service.Settings(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load schedule settings", err)
	}
	return &GetSettingsOutput{Body: settingsBody(settings)}, nil
}

// UpdateSettingsInput is the input for updating settings.
type UpdateSettingsInput struct {
	Body ScheduleSettingsBody
}

// UpdateSettingsOutput reports the new settings and the pass they caused.
type UpdateSettingsOutput struct {
	Body struct {
		Settings ScheduleSettingsBody `json:"settings"`
		Run      *models.ScheduleRun  `json:"run"`
	}
}

// UpdateSettings validates and stores settings, then reschedules.
func (h *ScheduleHandler) UpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*UpdateSettingsOutput, error) {
	settings := &models.ScheduleSettings{
		StartChannel:      input.Body.StartChannel,
		NumChannels:       input.Body.NumChannels,
		ExcludeCategories: input.Body.ExcludeCategories,
		ExcludeTitles:     input.Body.ExcludeTitles,
	}

	run, err := h.service.UpdateSettings(ctx, settings)
	if err != nil {
		var verr models.ErrValidation
		if errors.As(err, &verr) {
			return nil, huma.Error422UnprocessableEntity(verr.Error(), &huma.ErrorDetail{
				Location: "body." + verr.Field,
				Message:  verr.Message,
			})
		}
		return nil, huma.Error500InternalServerError("failed to update schedule settings", err)
	}

	resp := &UpdateSettingsOutput{}
	resp.Body.Settings = settingsBody(settings)
	resp.Body.Run = run
	return resp, nil
}

// ListRunsInput is the input for listing schedule runs.
type ListRunsInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"200"`
}

// ListRunsOutput is the output for listing schedule runs.
type ListRunsOutput struct {
	Body struct {
		Runs []*models.ScheduleRun `json:"runs"`
	}
}

// ListRuns returns recent scheduling passes, newest first.
func (h *ScheduleHandler) ListRuns(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	limit := input.Limit
	if limit < 1 {
		limit = 20
	}
	runs, err := h.service.Runs(ctx, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list schedule runs", err)
	}

	resp := &ListRunsOutput{}
	resp.Body.Runs = runs
	if resp.Body.Runs == nil {
		resp.Body.Runs = []*models.ScheduleRun{}
	}
	return resp, nil
}

// PreviewInput is the input for previewing a schedule.
type PreviewInput struct{}

// PreviewOutput is a planned schedule.
type PreviewOutput struct {
	Body *scheduler.Preview
}

// Preview plans a schedule without persisting it.
func (h *ScheduleHandler) Preview(ctx context.Context, input *PreviewInput) (*PreviewOutput, error) {
	preview, err := h.service.Preview(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to preview schedule", err)
	}
	return &PreviewOutput{Body: preview}, nil
}
