package collision

import "github.com/go-gl/mathgl/mgl32"

// PolygonMesh is one simplified contour and its ear-clip triangulation, in
// world coordinates.
type PolygonMesh struct {
	Vertices []mgl32.Vec2
	Indices  []Triangle
}

// TileCollisionMesh is the full collision result for one tile: every
// contour as both a simplified polyline (for debug draw / narrow-phase
// polygon tests) and a triangulated mesh (for broad rendering or physics
// backends that want triangles). Generation increments every time the tile
// is regenerated, letting a consumer tell a stale cached reference from a
// fresh one without re-fetching.
type TileCollisionMesh struct {
	Polylines  [][]mgl32.Vec2
	Triangles  []PolygonMesh
	Generation uint64
}

// Empty reports whether the tile produced no collision geometry at all.
func (m *TileCollisionMesh) Empty() bool {
	return m == nil || len(m.Polylines) == 0
}

// BuildTileCollisionMesh runs the full pipeline (simplify, then triangulate)
// over raw marching-squares contours.
func BuildTileCollisionMesh(contours [][]mgl32.Vec2, tolerance float32, generation uint64) TileCollisionMesh {
	simplified := SimplifyPolylines(contours, tolerance)

	triangles := make([]PolygonMesh, 0, len(simplified))
	for _, polygon := range simplified {
		if len(polygon) < 3 {
			continue
		}
		triangles = append(triangles, PolygonMesh{
			Vertices: polygon,
			Indices:  TriangulatePolygon(polygon),
		})
	}

	return TileCollisionMesh{Polylines: simplified, Triangles: triangles, Generation: generation}
}
