// Package collision turns a tile's solid/powder pixel footprint into
// renderable and physics-usable polygons: marching squares extracts closed
// contours from a bordered binary grid, Douglas-Peucker simplifies them,
// and ear clipping triangulates the result. spec.md §4.7.
package collision

import (
	"github.com/go-gl/mathgl/mgl32"
)

// GridSize is the edge length of a tile's extraction grid: the 32x32 tile
// plus a 1px border from each neighbor, so contours close across tile
// boundaries instead of stopping dead at the tile edge.
const GridSize = 34

type edgeSegment struct {
	start, end mgl32.Vec2
}

// edgeTable maps a 4-bit corner case to the 0, 1, or 2 edge segments that
// case contributes, in cell-local [0,1] space. Bit 0 is top-left, bit 1
// top-right, bit 2 bottom-left, bit 3 bottom-right.
var edgeTable = [16][]edgeSegment{
	{}, // 0000: all empty
	{{mgl32.Vec2{0.0, 0.5}, mgl32.Vec2{0.5, 1.0}}},                                                  // 0001: tl
	{{mgl32.Vec2{0.5, 1.0}, mgl32.Vec2{1.0, 0.5}}},                                                  // 0010: tr
	{{mgl32.Vec2{0.0, 0.5}, mgl32.Vec2{1.0, 0.5}}},                                                  // 0011: tl+tr
	{{mgl32.Vec2{0.5, 0.0}, mgl32.Vec2{0.0, 0.5}}},                                                  // 0100: bl
	{{mgl32.Vec2{0.5, 0.0}, mgl32.Vec2{0.5, 1.0}}},                                                  // 0101: tl+bl
	{{mgl32.Vec2{0.0, 0.5}, mgl32.Vec2{0.5, 1.0}}, {mgl32.Vec2{0.5, 0.0}, mgl32.Vec2{1.0, 0.5}}},    // 0110: saddle
	{{mgl32.Vec2{0.5, 0.0}, mgl32.Vec2{1.0, 0.5}}},                                                  // 0111: tl+tr+bl
	{{mgl32.Vec2{1.0, 0.5}, mgl32.Vec2{0.5, 0.0}}},                                                  // 1000: br
	{{mgl32.Vec2{0.0, 0.5}, mgl32.Vec2{0.5, 0.0}}, {mgl32.Vec2{0.5, 1.0}, mgl32.Vec2{1.0, 0.5}}},    // 1001: saddle
	{{mgl32.Vec2{0.5, 1.0}, mgl32.Vec2{0.5, 0.0}}},                                                  // 1010: tr+br
	{{mgl32.Vec2{0.0, 0.5}, mgl32.Vec2{0.5, 0.0}}},                                                  // 1011: tl+tr+br
	{{mgl32.Vec2{1.0, 0.5}, mgl32.Vec2{0.0, 0.5}}},                                                  // 1100: bl+br
	{{mgl32.Vec2{0.5, 1.0}, mgl32.Vec2{1.0, 0.5}}},                                                  // 1101: tl+bl+br
	{{mgl32.Vec2{0.0, 0.5}, mgl32.Vec2{0.5, 1.0}}},                                                  // 1110: tr+bl+br
	{}, // 1111: all solid
}

// MarchingSquares extracts closed contour polylines from a 34x34 binary
// grid, where true marks a solid/collision cell, in world coordinates
// relative to tileOrigin (the tile's top-left pixel, TilePos.Origin). The grid's outer
// ring is always treated as empty, which guarantees a closed contour forms
// at tile boundaries even when the tile is fully solid.
func MarchingSquares(grid *[GridSize][GridSize]bool, tileOrigin mgl32.Vec2) [][]mgl32.Vec2 {
	working := *grid
	for i := 0; i < GridSize; i++ {
		working[0][i] = false
		working[GridSize-1][i] = false
		working[i][0] = false
		working[i][GridSize-1] = false
	}

	var segments []edgeSegment
	for cy := 0; cy < GridSize-1; cy++ {
		for cx := 0; cx < GridSize-1; cx++ {
			bl := working[cy][cx]
			br := working[cy][cx+1]
			tl := working[cy+1][cx]
			tr := working[cy+1][cx+1]

			caseIdx := 0
			if tl {
				caseIdx |= 1
			}
			if tr {
				caseIdx |= 2
			}
			if bl {
				caseIdx |= 4
			}
			if br {
				caseIdx |= 8
			}

			for _, seg := range edgeTable[caseIdx] {
				// Cell (cx, cy) maps to pixel (cx-1, cy-1) relative to tile origin
				// since the grid carries a 1px border.
				segments = append(segments, edgeSegment{
					start: mgl32.Vec2{
						tileOrigin[0] + float32(cx-1) + seg.start[0],
						tileOrigin[1] + float32(cy-1) + seg.start[1],
					},
					end: mgl32.Vec2{
						tileOrigin[0] + float32(cx-1) + seg.end[0],
						tileOrigin[1] + float32(cy-1) + seg.end[1],
					},
				})
			}
		}
	}

	return connectSegments(segments)
}

// gridKey snaps a point to an integer grid for exact endpoint matching:
// marching squares only ever produces coordinates at 0.5 intervals, so
// doubling and rounding gives collision-free integer keys.
func gridKey(v mgl32.Vec2) [2]int32 {
	return [2]int32{int32(round(v[0] * 2)), int32(round(v[1] * 2))}
}

func round(f float32) float32 {
	if f >= 0 {
		return float32(int64(f + 0.5))
	}
	return float32(int64(f - 0.5))
}

type adjacencyEntry struct {
	segIdx     int
	isStartEnd bool
}

// connectSegments stitches unordered edge segments into closed polylines by
// matching endpoints via an integer-keyed adjacency map, same approach as
// the scheduler's deterministic neighbor walks: build the index once, then
// walk it.
func connectSegments(segments []edgeSegment) [][]mgl32.Vec2 {
	if len(segments) == 0 {
		return nil
	}

	adjacency := make(map[[2]int32][]adjacencyEntry, len(segments)*2)
	for i, seg := range segments {
		sk := gridKey(seg.start)
		ek := gridKey(seg.end)
		adjacency[sk] = append(adjacency[sk], adjacencyEntry{segIdx: i, isStartEnd: true})
		adjacency[ek] = append(adjacency[ek], adjacencyEntry{segIdx: i, isStartEnd: false})
	}

	used := make([]bool, len(segments))
	var polylines [][]mgl32.Vec2
	for start := range segments {
		if used[start] {
			continue
		}
		polyline := traversePolyline(segments, adjacency, used, start)
		if len(polyline) >= 3 {
			polylines = append(polylines, polyline)
		}
	}
	return polylines
}

func traversePolyline(segments []edgeSegment, adjacency map[[2]int32][]adjacencyEntry, used []bool, startIdx int) []mgl32.Vec2 {
	var polyline []mgl32.Vec2
	currentIdx := startIdx
	enteringFromStart := true

	for {
		used[currentIdx] = true
		seg := segments[currentIdx]

		if enteringFromStart {
			if len(polyline) == 0 {
				polyline = append(polyline, seg.start)
			}
			polyline = append(polyline, seg.end)
		} else {
			if len(polyline) == 0 {
				polyline = append(polyline, seg.end)
			}
			polyline = append(polyline, seg.start)
		}

		currentEnd := polyline[len(polyline)-1]
		key := gridKey(currentEnd)

		next, ok := firstUnused(adjacency[key], used)
		if !ok {
			break
		}
		currentIdx = next.segIdx
		enteringFromStart = next.isStartEnd
	}

	if len(polyline) >= 4 {
		first, last := polyline[0], polyline[len(polyline)-1]
		if abs(first[0]-last[0]) < 0.001 && abs(first[1]-last[1]) < 0.001 {
			polyline = polyline[:len(polyline)-1]
		}
	}
	return polyline
}

func firstUnused(entries []adjacencyEntry, used []bool) (adjacencyEntry, bool) {
	for _, e := range entries {
		if !used[e.segIdx] {
			return e, true
		}
	}
	return adjacencyEntry{}, false
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
