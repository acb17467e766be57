// internal/humanoid/movement.go
package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/mimic/api/schemas"
	"go.uber.org/zap"
)

// perlinFrequency scales the waypoint index into noise space.
const perlinFrequency = 0.08

// MoveTo walks the pointer from its current position to target along a
// Bezier path. Interior waypoints receive Perlin drift; the final event lands
// exactly on target.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	start := h.currentPos
	controls := FineControls(h.rng)
	if start.Dist(target) > coarseDistance {
		controls = CoarseControls(h.rng)
	}
	path := BezierPath(h.rng, start, target, controls)
	delays := make([]time.Duration, len(path))
	for i := range path {
		if i > 0 && i < len(path)-1 {
			path[i] = path[i].Add(h.drift(i))
		}
		delays[i] = h.profile.StepDelay(h.rng)
	}
	h.mu.Unlock()

	for i, p := range path {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev := schemas.MouseEventData{Type: schemas.MouseMove, X: p.X, Y: p.Y, Button: schemas.ButtonNone}
		if err := h.executor.DispatchMouseEvent(ctx, ev); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Failed to dispatch mouse move event.", zap.Error(err))
			}
			return err
		}
		h.mu.Lock()
		h.currentPos = p
		h.mu.Unlock()

		if err := h.executor.Sleep(ctx, delays[i]); err != nil {
			return err
		}
	}
	return nil
}

// MoveToSelector moves the pointer to a planned click point inside the element.
func (h *Humanoid) MoveToSelector(ctx context.Context, selector string) error {
	geo, err := h.elementGeometry(ctx, selector)
	if err != nil {
		return err
	}
	h.mu.Lock()
	target, err := PlanClick(h.rng, geo)
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("humanoid: element '%s': %w", selector, err)
	}
	return h.MoveTo(ctx, target)
}

// drift returns the Perlin offset for waypoint i. Caller must hold h.mu.
func (h *Humanoid) drift(i int) Vector2D {
	amp := h.profile.PerlinAmplitude
	if amp == 0 {
		return Vector2D{}
	}
	x := float64(i)*perlinFrequency + 0.5
	return Vector2D{X: h.noiseX.Noise1D(x) * amp, Y: h.noiseY.Noise1D(x) * amp}
}
