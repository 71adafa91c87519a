package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leduong/EPlusTV/internal/tuner"
)

// SessionRegistry is the view of live tuner sessions the admin API needs.
type SessionRegistry interface {
	List() []tuner.Info
	Remove(id string) bool
}

// SessionHandler lists and tears down tuner sessions.
type SessionHandler struct {
	registry SessionRegistry
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(registry SessionRegistry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// Register registers the session routes with the API.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      "GET",
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Description: "Returns every live tuner session",
		Tags:        []string{"Sessions"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteSession",
		Method:        "DELETE",
		Path:          "/api/v1/sessions/{id}",
		Summary:       "Stop session",
		Description:   "Tears down the session for a channel; the next request relaunches it",
		Tags:          []string{"Sessions"},
		DefaultStatus: 204,
	}, h.Delete)
}

// ListSessionsInput is the input for listing sessions.
type ListSessionsInput struct{}

// ListSessionsOutput is the output for listing sessions.
type ListSessionsOutput struct {
	Body struct {
		Sessions []tuner.Info `json:"sessions"`
	}
}

// List returns live sessions ordered by channel id.
func (h *SessionHandler) List(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	resp := &ListSessionsOutput{}
	resp.Body.Sessions = h.registry.List()
	if resp.Body.Sessions == nil {
		resp.Body.Sessions = []tuner.Info{}
	}
	return resp, nil
}

// DeleteSessionInput is the input for stopping a session.
type DeleteSessionInput struct {
	ID string `path:"id" doc:"Channel number the session serves"`
}

// DeleteSessionOutput is empty.
type DeleteSessionOutput struct{}

// Delete removes a session.
func (h *SessionHandler) Delete(ctx context.Context, input *DeleteSessionInput) (*DeleteSessionOutput, error) {
	if !h.registry.Remove(input.ID) {
		return nil, huma.Error404NotFound(fmt.Sprintf("session %s not found", input.ID))
	}
	return &DeleteSessionOutput{}, nil
}
