package scheduler

import "github.com/api-haus/pixelworld/internal/coords"

// GroupByPhase buckets tiles into their checkerboard phase. Every bucket can
// be processed by one goroutine per tile with no risk of two goroutines
// touching the same or adjacent pixel footprints.
func GroupByPhase(tiles []coords.TilePos) [coords.NumPhases][]coords.TilePos {
	var buckets [coords.NumPhases][]coords.TilePos
	for _, t := range tiles {
		ph := t.Phase()
		buckets[ph] = append(buckets[ph], t)
	}
	return buckets
}
