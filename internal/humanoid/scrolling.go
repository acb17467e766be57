// internal/humanoid/scrolling.go
package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/xkilldash9x/mimic/api/schemas"
	"go.uber.org/zap"
)

const (
	scrollMinDistance = 100
	scrollMaxDistance = 500
	scrollStepMin     = 20
	scrollStepMax     = 50
	scrollPauseMin    = 100 * time.Millisecond
	scrollPauseMax    = 200 * time.Millisecond
)

// ScrollStep is one wheel increment followed by a pause.
type ScrollStep struct {
	Delta int           `json:"delta"`
	Pause time.Duration `json:"pause"`
}

// ScrollPlan is a downward scroll split into small steps.
type ScrollPlan struct {
	Distance int          `json:"distance"`
	Steps    []ScrollStep `json:"steps"`
}

// PlanScroll draws a scroll distance in [100, min(500, pageHeight)] and splits
// it into 20 to 50 pixel steps. Pages shorter than 100 pixels scroll their own
// height. The step deltas always sum to Distance.
func PlanScroll(rng *rand.Rand, pageHeight int) ScrollPlan {
	upper := pageHeight
	if upper > scrollMaxDistance {
		upper = scrollMaxDistance
	}

	var distance int
	switch {
	case upper <= 0:
		distance = 0
	case upper < scrollMinDistance:
		distance = upper
	default:
		distance = scrollMinDistance + rng.Intn(upper-scrollMinDistance+1)
	}

	plan := ScrollPlan{Distance: distance}
	for remaining := distance; remaining > 0; {
		step := scrollStepMin + rng.Intn(scrollStepMax-scrollStepMin+1)
		if step > remaining {
			step = remaining
		}
		remaining -= step
		plan.Steps = append(plan.Steps, ScrollStep{
			Delta: step,
			Pause: uniformDuration(rng, scrollPauseMin, scrollPauseMax),
		})
	}
	return plan
}

// Scroll performs a random downward scroll sized to the current document.
func (h *Humanoid) Scroll(ctx context.Context) error {
	geo, err := h.executor.GetElementGeometry(ctx, "body")
	if err != nil {
		return fmt.Errorf("humanoid: failed to measure page: %w", err)
	}
	var pageHeight int
	if geo != nil {
		pageHeight = int(geo.Height)
	}

	h.mu.Lock()
	plan := PlanScroll(h.rng, pageHeight)
	pos := h.currentPos
	h.mu.Unlock()

	h.logger.Debug("Scrolling page.", zap.Int("distance", plan.Distance), zap.Int("steps", len(plan.Steps)))
	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wheel := schemas.MouseEventData{
			Type:   schemas.MouseWheel,
			X:      pos.X,
			Y:      pos.Y,
			Button: schemas.ButtonNone,
			DeltaY: float64(step.Delta),
		}
		if err := h.executor.DispatchMouseEvent(ctx, wheel); err != nil {
			return fmt.Errorf("humanoid: wheel event failed: %w", err)
		}
		if err := h.executor.Sleep(ctx, step.Pause); err != nil {
			return err
		}
	}
	return nil
}
