package humanoid

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/mimic/api/schemas"
	"go.uber.org/zap"
)

// boxToCenter calculates the geometric center of an element's geometry.
func boxToCenter(geo *schemas.ElementGeometry) (center Vector2D, valid bool) {
	if geo == nil || len(geo.Vertices) < 8 {
		return Vector2D{}, false
	}
	centerX := (geo.Vertices[0] + geo.Vertices[2] + geo.Vertices[4] + geo.Vertices[6]) / 4
	centerY := (geo.Vertices[1] + geo.Vertices[3] + geo.Vertices[5] + geo.Vertices[7]) / 4
	return Vector2D{X: centerX, Y: centerY}, true
}

// elementGeometry retrieves and validates an element's geometry via the executor.
func (h *Humanoid) elementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	geo, err := h.executor.GetElementGeometry(ctx, selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("humanoid: geometry retrieval failed for '%s': %w", selector, err)
	}
	if geo == nil || len(geo.Vertices) < 8 {
		return nil, fmt.Errorf("humanoid: element '%s' returned invalid geometry", selector)
	}
	if geo.Width <= 0 || geo.Height <= 0 {
		h.logger.Debug("Element found but has zero size.",
			zap.String("selector", selector),
			zap.Int64("width", geo.Width),
			zap.Int64("height", geo.Height))
		return nil, fmt.Errorf("humanoid: element '%s' is not interactable (zero size)", selector)
	}
	return geo, nil
}
