package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SimplifyPolylines runs Douglas-Peucker simplification over every polyline,
// dropping points that deviate from their neighbors' chord by less than
// tolerance world units. Closed loops keep their closure: the loop is split
// at its two mutually farthest points, each half is simplified as an open
// chain, and the two chains are stitched back into one loop.
func SimplifyPolylines(polylines [][]mgl32.Vec2, tolerance float32) [][]mgl32.Vec2 {
	out := make([][]mgl32.Vec2, 0, len(polylines))
	for _, p := range polylines {
		out = append(out, simplifyClosed(p, tolerance))
	}
	return out
}

// simplifyClosed simplifies a closed polyline (no duplicated first/last
// vertex) by splitting it at its two most distant points into two open
// chains, Douglas-Peucker'ing each, and stitching the results back together.
func simplifyClosed(points []mgl32.Vec2, tolerance float32) []mgl32.Vec2 {
	if len(points) < 4 {
		return points
	}

	a, b := farthestPair(points)
	if a > b {
		a, b = b, a
	}

	chain1 := douglasPeucker(points[a:b+1], tolerance)
	chain2Input := append(append([]mgl32.Vec2{}, points[b:]...), points[:a+1]...)
	chain2 := douglasPeucker(chain2Input, tolerance)

	result := make([]mgl32.Vec2, 0, len(chain1)+len(chain2))
	result = append(result, chain1...)
	if len(chain2) > 2 {
		result = append(result, chain2[1:len(chain2)-1]...)
	}
	return result
}

// farthestPair returns the indices of the two points in a closed ring that
// are farthest apart, giving a stable place to split the ring into two open
// chains for Douglas-Peucker.
func farthestPair(points []mgl32.Vec2) (int, int) {
	bestA, bestB := 0, 1
	bestDist := float32(-1)
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := points[i].Sub(points[j]).LenSqr()
			if d > bestDist {
				bestDist = d
				bestA, bestB = i, j
			}
		}
	}
	return bestA, bestB
}

// douglasPeucker simplifies an open polyline, always keeping its first and
// last points.
func douglasPeucker(points []mgl32.Vec2, tolerance float32) []mgl32.Vec2 {
	if len(points) < 3 {
		return points
	}

	first, last := points[0], points[len(points)-1]
	maxDist := float32(-1)
	splitIdx := -1
	for i := 1; i < len(points)-1; i++ {
		d := perpendicularDistance(points[i], first, last)
		if d > maxDist {
			maxDist = d
			splitIdx = i
		}
	}

	if maxDist <= tolerance {
		return []mgl32.Vec2{first, last}
	}

	left := douglasPeucker(points[:splitIdx+1], tolerance)
	right := douglasPeucker(points[splitIdx:], tolerance)
	return append(left[:len(left)-1], right...)
}

// perpendicularDistance returns the distance from p to the infinite line
// through a and b, falling back to the distance to a if a and b coincide.
func perpendicularDistance(p, a, b mgl32.Vec2) float32 {
	ab := b.Sub(a)
	lenSqr := ab.LenSqr()
	if lenSqr < 1e-12 {
		return p.Sub(a).Len()
	}
	ap := p.Sub(a)
	cross := ab[0]*ap[1] - ab[1]*ap[0]
	return abs(cross) / float32(math.Sqrt(float64(lenSqr)))
}
