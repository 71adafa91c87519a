package provider

import (
	"context"
	"fmt"

	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/remote"
)

// FetchListing reads the published listing for listingKey and stamps each
// entry with the adapter key. Rows without an id are skipped.
func FetchListing(ctx context.Context, store remote.Store, listingKey, adapterKey string) ([]models.Entry, error) {
	if store == nil {
		return nil, fmt.Errorf("no remote store for %s listing", listingKey)
	}
	rows, err := store.Entries(ctx, listingKey)
	if err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(rows))
	for _, row := range rows {
		if row == nil || row.ID == "" {
			continue
		}
		e := *row
		e.From = adapterKey
		entries = append(entries, e)
	}
	return entries, nil
}
