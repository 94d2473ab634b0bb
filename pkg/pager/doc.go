// Package pager provides an incremental page-loading controller for
// paginated data sources.
//
// A Controller fetches fixed-size pages on demand through an injected
// PageFunc, accumulates them into an ordered item list and notifies
// subscribers after every state change so a presentation layer can
// re-render.
//
// Example usage:
//
//	fetch := func(ctx context.Context, page int) ([]Order, error) {
//		return api.Orders(ctx, page)
//	}
//	ctrl, err := pager.New(fetch, pager.Config{PageSize: 50, Name: "orders"})
//	if err != nil {
//		return err
//	}
//	id := ctrl.Subscribe(func() { redraw() })
//	defer ctrl.Unsubscribe(id)
//
//	if err := ctrl.FetchNextPage(ctx); err != nil {
//		// only contract violations (ErrInvalidPageSize) end up here
//	}
//
// The controller:
//   - Requests page k+1 only after page k has resolved
//   - Suppresses concurrent FetchNextPage calls while a fetch is in flight
//   - Captures fetch failures in an error slot (cleared by Retry)
//   - Stops fetching once a page comes back empty
//   - Discards results that arrive after a Reset
//
// A short page (fewer than PageSize items) is NOT treated as the last page.
// Only an empty page flips HasMore to false.
package pager
