package scheduler

import (
	"sync"
	"testing"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/world"
)

func newCanvasChunks(positions ...coords.ChunkPos) map[coords.ChunkPos]*world.Chunk {
	out := make(map[coords.ChunkPos]*world.Chunk, len(positions))
	for _, pos := range positions {
		out[pos] = &world.Chunk{}
	}
	return out
}

func TestGroupByPhaseDisjointNeighbors(t *testing.T) {
	var tiles []coords.TilePos
	for y := int64(0); y < 6; y++ {
		for x := int64(0); x < 6; x++ {
			tiles = append(tiles, coords.TilePos{X: x, Y: y})
		}
	}
	phases := GroupByPhase(tiles)
	for _, group := range phases {
		set := make(map[coords.TilePos]bool, len(group))
		for _, tp := range group {
			set[tp] = true
		}
		for _, tp := range group {
			for _, d := range [8]struct{ dx, dy int64 }{
				{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1},
			} {
				n := coords.TilePos{X: tp.X + d.dx, Y: tp.Y + d.dy}
				if set[n] {
					t.Fatalf("two tiles in the same phase are 8-neighbors: %+v and %+v", tp, n)
				}
			}
		}
	}
}

func TestParallelBlitWritesEveryFragment(t *testing.T) {
	chunks := newCanvasChunks(coords.ChunkPos{X: 0, Y: 0})
	canvas := NewCanvas(chunks)
	rect := coords.WorldRect{X: 0, Y: 0, Width: 64, Height: 64}

	ParallelBlit(canvas, rect, func(f coords.WorldFragment) (pixel.Pixel, bool) {
		return pixel.Pixel{Material: material.Sand}, true
	})

	for y := int64(0); y < 64; y++ {
		for x := int64(0); x < 64; x++ {
			p, ok := canvas.Get(coords.WorldPos{X: x, Y: y})
			if !ok || p.Material != material.Sand {
				t.Fatalf("pixel (%d,%d) not written: %+v ok=%v", x, y, p, ok)
			}
		}
	}
}

func TestParallelBlitMaskSkipsWrite(t *testing.T) {
	chunks := newCanvasChunks(coords.ChunkPos{X: 0, Y: 0})
	canvas := NewCanvas(chunks)
	rect := coords.WorldRect{X: 0, Y: 0, Width: 4, Height: 4}

	ParallelBlit(canvas, rect, func(f coords.WorldFragment) (pixel.Pixel, bool) {
		if f.Pos.X == 0 && f.Pos.Y == 0 {
			return pixel.Pixel{}, false
		}
		return pixel.Pixel{Material: material.Stone}, true
	})

	p, _ := canvas.Get(coords.WorldPos{X: 0, Y: 0})
	if p.Material != pixel.Void {
		t.Fatalf("masked fragment should not have been written, got %+v", p)
	}
	p2, _ := canvas.Get(coords.WorldPos{X: 1, Y: 0})
	if p2.Material != material.Stone {
		t.Fatalf("unmasked fragment should have been written, got %+v", p2)
	}
}

func TestParallelSimulateFallsOneCellPerTick(t *testing.T) {
	chunks := newCanvasChunks(coords.ChunkPos{X: 0, Y: 0})
	canvas := NewCanvas(chunks)
	sandPos := coords.WorldPos{X: 10, Y: 10}
	canvas.Set(sandPos, pixel.Pixel{Material: material.Sand})

	fallOne := func(pos coords.WorldPos, canvas *Canvas, tick uint64) (coords.WorldPos, bool) {
		p, ok := canvas.Get(pos)
		if !ok || p.Material != material.Sand {
			return coords.WorldPos{}, false
		}
		below := coords.WorldPos{X: pos.X, Y: pos.Y + 1}
		belowPixel, ok := canvas.Get(below)
		if !ok || !belowPixel.IsVoid() {
			return coords.WorldPos{}, false
		}
		return below, true
	}

	tiles := []coords.TilePos{{X: 0, Y: 0}}
	ParallelSimulate(canvas, tiles, 1, fallOne)

	if p, _ := canvas.Get(sandPos); !p.IsVoid() {
		t.Fatalf("origin should be void after falling, got %+v", p)
	}
	below := coords.WorldPos{X: sandPos.X, Y: sandPos.Y + 1}
	if p, _ := canvas.Get(below); p.Material != material.Sand {
		t.Fatalf("sand should have fallen one cell, got %+v", p)
	}
}

func TestParallelBurningVisitsOnlyBurningPixels(t *testing.T) {
	chunks := newCanvasChunks(coords.ChunkPos{X: 0, Y: 0})
	canvas := NewCanvas(chunks)
	burning := coords.WorldPos{X: 5, Y: 5}
	canvas.Set(burning, pixel.Pixel{Material: material.Wood, Flags: pixel.FlagBurning})
	canvas.Set(coords.WorldPos{X: 6, Y: 5}, pixel.Pixel{Material: material.Wood})

	var visited []coords.WorldPos
	var mu sync.Mutex
	ParallelBurning(canvas, []coords.TilePos{{X: 0, Y: 0}}, 1, func(pos coords.WorldPos, c *Canvas, tick uint64) []coords.WorldPos {
		mu.Lock()
		visited = append(visited, pos)
		mu.Unlock()
		return nil
	})

	if len(visited) != 1 || visited[0] != burning {
		t.Fatalf("expected exactly the burning pixel visited, got %+v", visited)
	}
}
