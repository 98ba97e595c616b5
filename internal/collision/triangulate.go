package collision

import "github.com/go-gl/mathgl/mgl32"

// Triangle is three indices into a PolygonMesh's vertex slice.
type Triangle [3]int

// TriangulatePolygon ear-clips a simple polygon (convex or concave, no
// self-intersections) given counter-clockwise winding, returning triangle
// index triples into polygon.
func TriangulatePolygon(polygon []mgl32.Vec2) []Triangle {
	n := len(polygon)
	if n < 3 {
		return nil
	}
	if n == 3 {
		return []Triangle{{0, 1, 2}}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if signedArea(polygon) < 0 {
		reverseInts(indices)
	}

	triangles := make([]Triangle, 0, n-2)
	guard := 0
	maxIterations := n * n
	for len(indices) > 3 && guard < maxIterations {
		guard++
		earFound := false
		for i := 0; i < len(indices); i++ {
			prev := indices[(i-1+len(indices))%len(indices)]
			cur := indices[i]
			next := indices[(i+1)%len(indices)]

			if !isConvex(polygon[prev], polygon[cur], polygon[next]) {
				continue
			}
			if anyPointInside(polygon, indices, prev, cur, next) {
				continue
			}

			triangles = append(triangles, Triangle{prev, cur, next})
			indices = append(indices[:i], indices[i+1:]...)
			earFound = true
			break
		}
		if !earFound {
			// Degenerate or self-intersecting input: fan-triangulate the
			// remainder rather than spinning forever.
			break
		}
	}

	if len(indices) == 3 {
		triangles = append(triangles, Triangle{indices[0], indices[1], indices[2]})
	} else if len(indices) > 3 {
		for i := 1; i < len(indices)-1; i++ {
			triangles = append(triangles, Triangle{indices[0], indices[i], indices[i+1]})
		}
	}

	return triangles
}

func signedArea(polygon []mgl32.Vec2) float32 {
	var sum float32
	n := len(polygon)
	for i := 0; i < n; i++ {
		a := polygon[i]
		b := polygon[(i+1)%n]
		sum += a[0]*b[1] - b[0]*a[1]
	}
	return sum / 2
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// isConvex reports whether the vertex at cur is a convex corner (cross
// product of incoming/outgoing edges is non-negative) assuming
// counter-clockwise winding.
func isConvex(prev, cur, next mgl32.Vec2) bool {
	e1 := cur.Sub(prev)
	e2 := next.Sub(cur)
	return e1[0]*e2[1]-e1[1]*e2[0] >= 0
}

func anyPointInside(polygon []mgl32.Vec2, indices []int, a, b, c int) bool {
	for _, idx := range indices {
		if idx == a || idx == b || idx == c {
			continue
		}
		if pointInTriangle(polygon[idx], polygon[a], polygon[b], polygon[c]) {
			return true
		}
	}
	return false
}

func pointInTriangle(p, a, b, c mgl32.Vec2) bool {
	d1 := cross(p.Sub(a), b.Sub(a))
	d2 := cross(p.Sub(b), c.Sub(b))
	d3 := cross(p.Sub(c), a.Sub(c))

	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

func cross(a, b mgl32.Vec2) float32 {
	return a[0]*b[1] - a[1]*b[0]
}
