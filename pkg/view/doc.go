// Package view drives a virtualized list from a pager.Controller.
//
// A rendering surface asks the Adapter for the row at a logical index.
// The adapter reports ItemCount() as the number of loaded items plus one
// trailing status row. When the surface reaches the status row the
// adapter starts loading the next page and renders a loading
// placeholder; when the page arrives the controller notifies the adapter,
// which signals the surface to re-render through Updates().
//
// Example usage:
//
//	adapter, err := view.New(ctx, ctrl, view.Renderers[Order, string]{
//		Item:    func(o Order, i int) string { return fmt.Sprintf("%d: %s", i, o.Name) },
//		Loading: func() string { return "loading..." },
//		Retry:   func(retry func()) string { return "failed, press r" },
//	})
//	defer adapter.Close()
//
//	for {
//		select {
//		case <-ctx.Done():
//			return
//		case _, ok := <-adapter.Updates():
//			if !ok {
//				return
//			}
//			draw(adapter.Window(top, top+height))
//		}
//	}
package view
