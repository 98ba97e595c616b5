// Package world implements the streaming chunk store: Chunk storage with
// per-tile dirty-rect and heat tracking, the fixed-capacity ChunkPool that
// backs a bounded visible window, the Seeder contract, and the PixelWorld
// façade (update_center / get_pixel / set_pixel / swap) spec.md §4.1
// describes; blit and blast are composed in the top-level engine.
package world

import (
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/pixel"
)

// HeatGridSize is the edge length of a chunk's downsampled heat grid.
const HeatGridSize = coords.ChunkSize / 4

const tilesPerChunkSide = coords.TilesPerChunk
const numTilesPerChunk = tilesPerChunkSide * tilesPerChunkSide

// TileDirtyState is the lifecycle state of a tile's dirty rectangle.
type TileDirtyState int

const (
	TileEmpty TileDirtyState = iota
	TileActive
	TileCooling
)

// TileRect tracks the dirty bounding box of one tile, in tile-local pixel
// coordinates [0, TileSize).
type TileRect struct {
	State                  TileDirtyState
	MinX, MinY, MaxX, MaxY uint16
	Age                    int
	writtenThisTick        bool
}

// Expand grows the rect to include (lx, ly), local to the owning tile, and
// resets cooling — any write keeps a tile from going quiet.
func (t *TileRect) Expand(lx, ly uint16) {
	if t.State != TileActive {
		t.State = TileActive
		t.MinX, t.MaxX = lx, lx
		t.MinY, t.MaxY = ly, ly
	} else {
		if lx < t.MinX {
			t.MinX = lx
		}
		if lx > t.MaxX {
			t.MaxX = lx
		}
		if ly < t.MinY {
			t.MinY = ly
		}
		if ly > t.MaxY {
			t.MaxY = ly
		}
	}
	t.Age = 0
	t.writtenThisTick = true
}

// EndTick advances the cooling state machine. Call once per tick after all
// writes for the tick have been applied.
func (t *TileRect) EndTick(coolThreshold int) {
	switch t.State {
	case TileActive:
		if !t.writtenThisTick {
			t.State = TileCooling
			t.Age = 1
		}
	case TileCooling:
		t.Age++
		if t.Age >= coolThreshold {
			t.State = TileEmpty
		}
	}
	t.writtenThisTick = false
}

// Chunk is a ChunkSize x ChunkSize grid of pixels with per-tile dirty-rect,
// collision-dirty, and heat bookkeeping.
type Chunk struct {
	Pixels         [coords.ChunkSize * coords.ChunkSize]pixel.Pixel
	Tiles          [numTilesPerChunk]TileRect
	CollisionDirty [numTilesPerChunk]bool
	HeatGrid       [HeatGridSize * HeatGridSize]uint8
	HeatActive     [HeatGridSize * HeatGridSize]bool
}

func localIndex(l coords.LocalPos) int {
	return int(l.Y)*coords.ChunkSize + int(l.X)
}

// TileIndexAt returns the within-chunk tile index owning local position l.
func TileIndexAt(l coords.LocalPos) int {
	tx := int(l.X) / coords.TileSize
	ty := int(l.Y) / coords.TileSize
	return ty*tilesPerChunkSide + tx
}

// Get returns the pixel at a local position.
func (c *Chunk) Get(l coords.LocalPos) pixel.Pixel {
	return c.Pixels[localIndex(l)]
}

// Set writes a pixel at a local position and expands the owning tile's
// dirty rect. It does not handle cross-tile/cross-chunk collision-dirty
// propagation at chunk edges — that requires sibling chunk access and is
// handled by the scheduler (internal/scheduler) which owns a multi-chunk
// view.
func (c *Chunk) Set(l coords.LocalPos, p pixel.Pixel) {
	c.Pixels[localIndex(l)] = p
	ti := TileIndexAt(l)
	lx := l.X % coords.TileSize
	ly := l.Y % coords.TileSize
	c.Tiles[ti].Expand(lx, ly)
	c.CollisionDirty[ti] = true
}

// EndTick advances every tile's cooling state machine. Called once per tick.
func (c *Chunk) EndTick(coolThreshold int) {
	for i := range c.Tiles {
		c.Tiles[i].EndTick(coolThreshold)
	}
}

// ActiveTileLocalIndices returns the within-chunk tile indices that are not
// Empty (i.e. still have a live dirty rect and need scheduling).
func (c *Chunk) ActiveTileLocalIndices() []int {
	out := make([]int, 0, numTilesPerChunk)
	for i, t := range c.Tiles {
		if t.State != TileEmpty {
			out = append(out, i)
		}
	}
	return out
}

// Reset clears the chunk back to all-void, used before seeding.
func (c *Chunk) Reset() {
	for i := range c.Pixels {
		c.Pixels[i] = pixel.VoidPixel
	}
	for i := range c.Tiles {
		c.Tiles[i] = TileRect{}
	}
	for i := range c.CollisionDirty {
		c.CollisionDirty[i] = false
	}
	for i := range c.HeatGrid {
		c.HeatGrid[i] = 0
		c.HeatActive[i] = false
	}
}
