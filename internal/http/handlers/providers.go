package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// ProviderSource lists registered providers and their credential state.
type ProviderSource interface {
	Keys() []string
	Stale(key string, now time.Time) bool
}

// CredentialRefresher refreshes every provider's credentials.
type CredentialRefresher interface {
	RefreshAll(ctx context.Context)
}

// ProviderHandler reports provider status and forces credential refreshes.
type ProviderHandler struct {
	providers ProviderSource
	refresher CredentialRefresher
}

// NewProviderHandler creates a new provider handler.
func NewProviderHandler(providers ProviderSource, refresher CredentialRefresher) *ProviderHandler {
	return &ProviderHandler{providers: providers, refresher: refresher}
}

// Register registers the provider routes with the API.
func (h *ProviderHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listProviders",
		Method:      "GET",
		Path:        "/api/v1/providers",
		Summary:     "List providers",
		Tags:        []string{"Providers"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "refreshProviders",
		Method:      "POST",
		Path:        "/api/v1/providers/refresh",
		Summary:     "Refresh credentials",
		Description: "Refreshes every provider's credentials and returns the resulting status",
		Tags:        []string{"Providers"},
	}, h.Refresh)
}

// ProviderStatus is one provider's credential state.
type ProviderStatus struct {
	Key   string `json:"key"`
	Stale bool   `json:"stale"`
}

// ListProvidersInput is the input for listing providers.
type ListProvidersInput struct{}

// ListProvidersOutput is the output for listing providers.
type ListProvidersOutput struct {
	Body struct {
		Providers []ProviderStatus `json:"providers"`
	}
}

// List returns every registered provider.
func (h *ProviderHandler) List(ctx context.Context, input *ListProvidersInput) (*ListProvidersOutput, error) {
	return h.status(), nil
}

// Refresh refreshes credentials synchronously.
func (h *ProviderHandler) Refresh(ctx context.Context, input *ListProvidersInput) (*ListProvidersOutput, error) {
	h.refresher.RefreshAll(ctx)
	return h.status(), nil
}

func (h *ProviderHandler) status() *ListProvidersOutput {
	now := time.Now()
	resp := &ListProvidersOutput{}
	resp.Body.Providers = []ProviderStatus{}
	for _, key := range h.providers.Keys() {
		resp.Body.Providers = append(resp.Body.Providers, ProviderStatus{
			Key:   key,
			Stale: h.providers.Stale(key, now),
		})
	}
	return resp
}
