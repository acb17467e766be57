// internal/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xkilldash9x/mimic/api/schemas"
)

// mockExecutor implements Executor for testing and records every call.
type mockExecutor struct {
	t                *testing.T
	mu               sync.Mutex
	dispatchedEvents []schemas.MouseEventData
	sentKeys         []string
	sleepDurations   []time.Duration
	timeline         []mockCall
	geometries       map[string]*schemas.ElementGeometry
	returnErr        error

	// If set, replaces the default behavior.
	MockGetElementGeometry func(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
}

// mockCall is one Sleep or DispatchMouseEvent call, in dispatch order.
type mockCall struct {
	event schemas.MouseEventType // empty for sleeps
	sleep time.Duration
}

func newMockExecutor(t *testing.T) *mockExecutor {
	return &mockExecutor{
		t:          t,
		geometries: make(map[string]*schemas.ElementGeometry),
	}
}

// box registers a rectangle geometry for selector.
func (m *mockExecutor) box(selector string, x, y, w, h float64) {
	m.geometries[selector] = &schemas.ElementGeometry{
		Vertices: []float64{x, y, x + w, y, x + w, y + h, x, y + h},
		Width:    int64(w),
		Height:   int64(h),
	}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepDurations = append(m.sleepDurations, d)
	m.timeline = append(m.timeline, mockCall{sleep: d})
	return nil
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	m.timeline = append(m.timeline, mockCall{event: data.Type})
	if m.returnErr != nil {
		return m.returnErr
	}
	return ctx.Err()
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentKeys = append(m.sentKeys, keys)
	return ctx.Err()
}

func (m *mockExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	if m.MockGetElementGeometry != nil {
		return m.MockGetElementGeometry(ctx, selector)
	}
	geo, ok := m.geometries[selector]
	if !ok {
		return nil, errNoSuchElement
	}
	return geo, nil
}

func (m *mockExecutor) eventsOfType(typ schemas.MouseEventType) []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schemas.MouseEventData
	for _, ev := range m.dispatchedEvents {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
