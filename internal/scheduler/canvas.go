// Package scheduler implements the parallel tile scheduler: a borrowed,
// multi-chunk Canvas view and the checkerboard-phase fan-out
// (ParallelBlit/ParallelSimulate/ParallelBurning) that lets the CA
// simulator and blit/blast operations mutate many tiles concurrently
// without aliasing (spec.md §4.6).
//
// The reference implementation builds Canvas around raw pointers because
// Rust's aliasing rules otherwise forbid two mutable borrows into the same
// chunk map, even when the checkerboard phase invariant guarantees they
// never touch the same memory. Go has no such static aliasing restriction,
// so Canvas here is a plain map of chunk pointers — but the soundness
// argument is identical and is kept as documentation: two tiles in the same
// phase are never 8-neighbors of one another, so their pixel footprints
// never overlap, and it is safe to hand one goroutine per tile within a
// phase.
package scheduler

import (
	"github.com/api-haus/pixelworld/internal/assert"
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/world"
)

// Canvas is a snapshot of every Active chunk, built once per scheduler call.
type Canvas struct {
	chunks map[coords.ChunkPos]*world.Chunk
}

// NewCanvas wraps a position-to-chunk snapshot (see world.PixelWorld.ActiveSnapshot).
func NewCanvas(chunks map[coords.ChunkPos]*world.Chunk) *Canvas {
	return &Canvas{chunks: chunks}
}

func (c *Canvas) chunkAt(cpos coords.ChunkPos) (*world.Chunk, bool) {
	ch, ok := c.chunks[cpos]
	return ch, ok
}

// ChunkAt exposes direct chunk access for passes that operate at a
// granularity other than single pixels (e.g. heat diffusion, which reads and
// writes a chunk's downsampled heat grid). These passes are expected to
// process chunks sequentially rather than phase-parallel, since unlike
// pixel swaps, heat diffusion reads a neighbor chunk while writing its own,
// and two chunks can be each other's neighbor.
func (c *Canvas) ChunkAt(cpos coords.ChunkPos) (*world.Chunk, bool) {
	return c.chunkAt(cpos)
}

// ChunkPositions returns every chunk position present in this canvas.
func (c *Canvas) ChunkPositions() []coords.ChunkPos {
	out := make([]coords.ChunkPos, 0, len(c.chunks))
	for pos := range c.chunks {
		out = append(out, pos)
	}
	return out
}

// Get returns the pixel at pos, or false if its chunk isn't in this canvas.
func (c *Canvas) Get(pos coords.WorldPos) (pixel.Pixel, bool) {
	cpos, local := pos.ToChunk()
	ch, ok := c.chunkAt(cpos)
	if !ok {
		return pixel.Pixel{}, false
	}
	return ch.Get(local), true
}

// Set writes a pixel at pos, or returns false if its chunk isn't in this
// canvas. Collision-dirty edge propagation into sibling tiles is NOT
// applied synchronously here — within a parallel phase that would race
// with sibling tiles in this same phase sharing a neighbor; callers doing
// parallel writes must use the per-phase deferred marking in parallel.go.
// Single-threaded callers (e.g. a plain sequential blit outside a phase)
// can call MarkEdgeCollisionDirty directly afterward.
func (c *Canvas) Set(pos coords.WorldPos, p pixel.Pixel) bool {
	assert.That(p.Valid(), "Canvas.Set called with a void pixel carrying FlagSolid")
	cpos, local := pos.ToChunk()
	ch, ok := c.chunkAt(cpos)
	if !ok {
		return false
	}
	ch.Set(local, p)
	return true
}

// Wake expands the dirty rect of the tile owning pos without modifying its
// pixel, keeping a tile "awake" for another tick of simulation after a
// neighboring swap exposes it to new activity.
func (c *Canvas) Wake(pos coords.WorldPos) bool {
	cpos, local := pos.ToChunk()
	ch, ok := c.chunkAt(cpos)
	if !ok {
		return false
	}
	ti := world.TileIndexAt(local)
	lx := local.X % coords.TileSize
	ly := local.Y % coords.TileSize
	ch.Tiles[ti].Expand(lx, ly)
	return true
}

// GetTwo reads two distinct positions. Calling it with a == b is a
// programmer error, not external input, and is only checked in debug builds.
func (c *Canvas) GetTwo(a, b coords.WorldPos) (pixel.Pixel, pixel.Pixel, bool) {
	assert.That(a != b, "Canvas.GetTwo called with equal positions")
	pa, oka := c.Get(a)
	pb, okb := c.Get(b)
	return pa, pb, oka && okb
}

// SwapPixels exchanges the pixels at a and b, whether or not they share a
// chunk. Returns false if either position's chunk isn't in this canvas.
func (c *Canvas) SwapPixels(a, b coords.WorldPos) bool {
	pa, pb, ok := c.GetTwo(a, b)
	if !ok {
		return false
	}
	if !c.Set(a, pb) {
		return false
	}
	if !c.Set(b, pa) {
		c.Set(a, pa)
		return false
	}
	return true
}

// MarkCollisionDirty marks the tile owning pos (and, if pos is on a tile
// border, every adjacent tile whose collision mesh samples a 1px border
// from it) collision-dirty. Call this sequentially, never concurrently
// from two goroutines in the same phase — parallel.go buffers these marks
// per-phase and applies them after each phase's goroutines join.
func (c *Canvas) MarkCollisionDirty(pos coords.WorldPos) {
	cpos, local := pos.ToChunk()
	ch, ok := c.chunkAt(cpos)
	if ok {
		ch.CollisionDirty[world.TileIndexAt(local)] = true
	}

	atLeft := local.X%coords.TileSize == 0
	atRight := local.X%coords.TileSize == coords.TileSize-1
	atTop := local.Y%coords.TileSize == 0
	atBottom := local.Y%coords.TileSize == coords.TileSize-1
	if !atLeft && !atRight && !atTop && !atBottom {
		return
	}

	tx := int(local.X) / coords.TileSize
	ty := int(local.Y) / coords.TileSize
	const tilesPerChunk = coords.TilesPerChunk

	for _, d := range []struct{ dx, dy int }{
		{-1, 0}, {1, 0}, {0, -1}, {0, 1},
		{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
	} {
		if d.dx < 0 && !atLeft || d.dx > 0 && !atRight {
			continue
		}
		if d.dy < 0 && !atTop || d.dy > 0 && !atBottom {
			continue
		}
		ntx, nty := tx+d.dx, ty+d.dy
		ncpos := cpos
		if ntx < 0 {
			ntx += tilesPerChunk
			ncpos.X--
		} else if ntx >= tilesPerChunk {
			ntx -= tilesPerChunk
			ncpos.X++
		}
		if nty < 0 {
			nty += tilesPerChunk
			ncpos.Y--
		} else if nty >= tilesPerChunk {
			nty -= tilesPerChunk
			ncpos.Y++
		}
		if nch, ok := c.chunkAt(ncpos); ok {
			nch.CollisionDirty[nty*tilesPerChunk+ntx] = true
		}
	}
}

// ActiveTiles returns the global TilePos of every tile, across every chunk
// in the canvas, whose dirty-rect state is not Empty.
func (c *Canvas) ActiveTiles() []coords.TilePos {
	var out []coords.TilePos
	for cpos, ch := range c.chunks {
		origin := coords.TilePos{
			X: int64(cpos.X) * coords.TilesPerChunk,
			Y: int64(cpos.Y) * coords.TilesPerChunk,
		}
		for i, t := range ch.Tiles {
			if t.State == world.TileEmpty {
				continue
			}
			lx := i % coords.TilesPerChunk
			ly := i / coords.TilesPerChunk
			out = append(out, coords.TilePos{X: origin.X + int64(lx), Y: origin.Y + int64(ly)})
		}
	}
	return out
}
