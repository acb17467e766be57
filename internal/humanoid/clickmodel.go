// internal/humanoid/clickmodel.go
package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/xkilldash9x/mimic/api/schemas"
)

// clickSpread is the maximum click offset from the center as a fraction of the box size.
const clickSpread = 0.25

const (
	clickHoldMin = 50 * time.Millisecond
	clickHoldMax = 120 * time.Millisecond

	// Settle pause between arriving on the element and pressing.
	clickSettleMin = 100 * time.Millisecond
	clickSettleMax = 300 * time.Millisecond
)

// PlanClick picks a click point inside geo, offset from its center by up to
// a quarter of the width horizontally and a quarter of the height vertically.
func PlanClick(rng *rand.Rand, geo *schemas.ElementGeometry) (Vector2D, error) {
	center, ok := boxToCenter(geo)
	if !ok {
		return Vector2D{}, fmt.Errorf("humanoid: invalid element geometry")
	}
	dx := (rng.Float64()*2 - 1) * clickSpread * float64(geo.Width)
	dy := (rng.Float64()*2 - 1) * clickSpread * float64(geo.Height)
	return Vector2D{X: center.X + dx, Y: center.Y + dy}, nil
}

// Click moves to a planned point inside the element, settles briefly and
// performs a left click.
func (h *Humanoid) Click(ctx context.Context, selector string) error {
	if err := h.MoveToSelector(ctx, selector); err != nil {
		return err
	}

	h.mu.Lock()
	pos := h.currentPos
	settle := uniformDuration(h.rng, clickSettleMin, clickSettleMax)
	hold := uniformDuration(h.rng, clickHoldMin, clickHoldMax)
	h.mu.Unlock()

	if err := h.executor.Sleep(ctx, settle); err != nil {
		return err
	}

	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          pos.X,
		Y:          pos.Y,
		Button:     schemas.ButtonLeft,
		Buttons:    1,
		ClickCount: 1,
	}
	if err := h.executor.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("humanoid: mouse press on '%s' failed: %w", selector, err)
	}
	if err := h.executor.Sleep(ctx, hold); err != nil {
		return err
	}

	release := press
	release.Type = schemas.MouseRelease
	release.Buttons = 0
	if err := h.executor.DispatchMouseEvent(ctx, release); err != nil {
		return fmt.Errorf("humanoid: mouse release on '%s' failed: %w", selector, err)
	}
	return nil
}
