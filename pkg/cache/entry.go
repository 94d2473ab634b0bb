package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// PageEntry is a cached page.
type PageEntry struct {
	// Items is the JSON array of the page's items.
	Items json.RawMessage `json:"items"`

	// Count is the number of items on the page.
	Count int `json:"count"`

	// CachedAt is when the page was stored.
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// NewPageEntry encodes items into an entry valid for ttl.
func NewPageEntry[T any](items []T, ttl time.Duration) (*PageEntry, error) {
	if items == nil {
		items = []T{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal page items: %w", err)
	}

	now := time.Now()
	return &PageEntry{
		Items:    data,
		Count:    len(items),
		CachedAt: now,
		Expires:  now.Add(ttl),
	}, nil
}

// DecodeItems decodes the items of e.
func DecodeItems[T any](e *PageEntry) ([]T, error) {
	items := []T{}
	if err := json.Unmarshal(e.Items, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if len(items) != e.Count {
		return nil, fmt.Errorf("%w: count %d, decoded %d items", ErrInvalidEntry, e.Count, len(items))
	}
	return items, nil
}

// IsExpired returns true if the cache entry has expired.
func (e *PageEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *PageEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
