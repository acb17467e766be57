package browser

import "context"

// CombineContext returns a context that inherits values from ctx1 and is
// canceled when either ctx1 or ctx2 ends. chromedp keeps its target in ctx1,
// while ctx2 usually carries the caller's deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
