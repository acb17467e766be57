// internal/humanoid/trajectory.go
package humanoid

import (
	"math"
	"math/rand"
)

// PathPoints is the number of waypoints every pointer path is evaluated at.
const PathPoints = 50

// coarseDistance is the travel length above which a path gets more control points.
const coarseDistance = 400.0

// FineControls returns a control point count for short, precise movements (2 to 4).
func FineControls(rng *rand.Rand) int { return 2 + rng.Intn(3) }

// CoarseControls returns a control point count for long sweeps (3 to 7).
func CoarseControls(rng *rand.Rand) int { return 3 + rng.Intn(5) }

// BezierPath generates a pointer path from start to end through `controls`
// random interior control points sampled inside the bounding box of the two
// endpoints. The curve is evaluated at PathPoints evenly spaced parameters in
// [0, 1]; the first waypoint is start and the last is end, exactly.
func BezierPath(rng *rand.Rand, start, end Vector2D, controls int) []Vector2D {
	points := controlPolygon(rng, start, end, controls)
	coeffs := binomialRow(len(points) - 1)
	path := make([]Vector2D, PathPoints)
	for i := range path {
		t := float64(i) / float64(PathPoints-1)
		path[i] = bezierPoint(t, points, coeffs)
	}
	// Pin the endpoints against floating point drift.
	path[0] = start
	path[PathPoints-1] = end
	return path
}

// controlPolygon returns start, the sampled interior control points and end.
func controlPolygon(rng *rand.Rand, start, end Vector2D, controls int) []Vector2D {
	if controls < 0 {
		controls = 0
	}
	minX, maxX := math.Min(start.X, end.X), math.Max(start.X, end.X)
	minY, maxY := math.Min(start.Y, end.Y), math.Max(start.Y, end.Y)

	points := make([]Vector2D, 0, controls+2)
	points = append(points, start)
	for i := 0; i < controls; i++ {
		points = append(points, Vector2D{
			X: minX + rng.Float64()*(maxX-minX),
			Y: minY + rng.Float64()*(maxY-minY),
		})
	}
	return append(points, end)
}

// bezierPoint evaluates the curve at t using Bernstein weights.
func bezierPoint(t float64, points []Vector2D, coeffs []float64) Vector2D {
	n := len(points) - 1
	var p Vector2D
	for i, pt := range points {
		w := coeffs[i] * math.Pow(t, float64(i)) * math.Pow(1-t, float64(n-i))
		p = p.Add(pt.Mul(w))
	}
	return p
}

// binomialRow returns C(n, 0..n), computed iteratively as C(n, k+1) = C(n, k) * (n-k) / (k+1).
func binomialRow(n int) []float64 {
	row := make([]float64, n+1)
	row[0] = 1
	for k := 0; k < n; k++ {
		row[k+1] = row[k] * float64(n-k) / float64(k+1)
	}
	return row
}
