package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// keyPrefix is shared by every page key.
const keyPrefix = "pager"

// PageKey identifies one cached page.
type PageKey struct {
	// Source names the paged list (e.g. "market-orders-10000002").
	Source string

	// Page is the zero-based page index.
	Page int

	// Query holds the request parameters that select the list. The "page"
	// parameter is ignored.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: pager:source:page=N:query1=val1:query2=val2
//
// Example:
//
//	pager:market-orders:page=3:order_type=sell
func (k PageKey) String() string {
	parts := []string{keyPrefix, k.Source, fmt.Sprintf("page=%d", k.Page)}

	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			if key == "page" {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.Query[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}

// sourcePattern matches every page key of source.
func sourcePattern(source string) string {
	return fmt.Sprintf("%s:%s:page=*", keyPrefix, source)
}
