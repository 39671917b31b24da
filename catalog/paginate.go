// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
)

// StatusOK is the status the feeds report on success.
const StatusOK = "RS_OK"

// PageFunc fetches page n (1-based) of a paginated feed.
type PageFunc func(ctx context.Context, page int) (json.RawMessage, error)

// Merged is the stored form of a paginated feed.
type Merged struct {
	Status      string            `json:"status"`
	EventsCount int               `json:"eventsCount"`
	Events      []json.RawMessage `json:"events"`
}

type page struct {
	Sports      json.RawMessage `json:"sports"`
	Events      json.RawMessage `json:"events"`
	EventsCount int             `json:"eventsCount"`
}

// items returns the page's item list. The feeds use either key.
func (p page) items() []json.RawMessage {
	for _, raw := range []json.RawMessage{p.Sports, p.Events} {
		var list []json.RawMessage
		if len(raw) > 0 && json.Unmarshal(raw, &list) == nil && list != nil {
			return list
		}
	}
	return nil
}

// Pages returns how many pages hold total items.
func Pages(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}

// FetchAll fetches page 1, reads the reported total and fetches the
// remaining pages in order. A failure on page 1 is returned; a failure on a
// later page ends the walk and keeps what was merged so far. The second
// result is the number of pages fetched.
func FetchAll(ctx context.Context, fetch PageFunc) (Merged, int, error) {
	merged := Merged{Status: StatusOK, Events: []json.RawMessage{}}
	pages := 1
	fetched := 0
	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return Merged{}, fetched, err
		}
		raw, err := fetch(ctx, n)
		if err != nil {
			if n == 1 {
				return Merged{}, fetched, err
			}
			break
		}
		fetched++
		var p page
		if err := json.Unmarshal(raw, &p); err != nil {
			return Merged{}, fetched, fmt.Errorf("catalog: decode page %d: %w", n, err)
		}
		merged.Events = append(merged.Events, p.items()...)
		if n == 1 {
			pages = Pages(p.EventsCount)
		}
	}
	merged.EventsCount = len(merged.Events)
	return merged, fetched, nil
}
