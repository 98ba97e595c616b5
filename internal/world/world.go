package world

import (
	"log"
	"sync"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/pixel"
)

// SpawnRequest is a chunk that needs to be loaded from persistence or, if
// persistence has no record, seeded.
type SpawnRequest struct {
	Pos       coords.ChunkPos
	SlotIndex int
}

// SaveRequest carries a snapshot of a chunk's pixels that must be persisted
// before its slot is reused. The snapshot is taken synchronously at eviction
// time; the actual encode/compress/write happens off the sim thread.
type SaveRequest struct {
	Pos    coords.ChunkPos
	Pixels [coords.ChunkSize * coords.ChunkSize]pixel.Pixel
}

// StreamingDelta is the result of moving the visible window: which chunks
// newly entered or left the window, which need a load/seed dispatched, and
// which need a save dispatched before their slot is reused (spec.md §4.1).
type StreamingDelta struct {
	Entering []coords.ChunkPos
	Leaving  []coords.ChunkPos
	ToSpawn  []SpawnRequest
	ToSave   []SaveRequest
}

// PixelWorld is the streaming chunk store: a bounded square window of
// ChunkSlots centered on a viewer position, with simple bounded pixel
// read/write/swap operations. Parallel, scheduler-mediated operations
// (Blit, Blast) are composed one layer up (see the top-level engine), since
// they need both this store and the scheduler package, which itself depends
// on this package for the Chunk type.
type PixelWorld struct {
	mu       sync.Mutex // serializes UpdateCenter against itself; pixel ops use the pool's own lock
	Pool     *ChunkPool
	Seeder   Seeder
	WorldSeed int64

	center    coords.ChunkPos
	hasCenter bool
	window    map[coords.ChunkPos]struct{}
}

// NewPixelWorld builds a streaming store with the given pool capacity,
// seeder, and world seed.
func NewPixelWorld(capacity int, seeder Seeder, worldSeed int64) *PixelWorld {
	return &PixelWorld{
		Pool:      NewChunkPool(capacity),
		Seeder:    seeder,
		WorldSeed: worldSeed,
		window:    make(map[coords.ChunkPos]struct{}),
	}
}

func windowPositions(center coords.ChunkPos, radius int) map[coords.ChunkPos]struct{} {
	out := make(map[coords.ChunkPos]struct{}, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			out[coords.ChunkPos{X: center.X + int32(dx), Y: center.Y + int32(dy)}] = struct{}{}
		}
	}
	return out
}

// UpdateCenter recomputes the visible window around newCenter and returns
// the set of chunks that entered/left along with load/seed/save work to
// dispatch. It never blocks: if the pool is exhausted, entering chunks that
// can't acquire a slot are logged and silently dropped (spec.md §7) — the
// window is expected to fit the pool's configured capacity by construction.
func (w *PixelWorld) UpdateCenter(newCenter coords.ChunkPos, radius int) StreamingDelta {
	w.mu.Lock()
	defer w.mu.Unlock()

	newWindow := windowPositions(newCenter, radius)
	var delta StreamingDelta

	if w.hasCenter {
		for pos := range w.window {
			if _, stillIn := newWindow[pos]; !stillIn {
				delta.Leaving = append(delta.Leaving, pos)
			}
		}
		for pos := range newWindow {
			if _, wasIn := w.window[pos]; !wasIn {
				delta.Entering = append(delta.Entering, pos)
			}
		}
	} else {
		for pos := range newWindow {
			delta.Entering = append(delta.Entering, pos)
		}
	}

	for _, pos := range delta.Leaving {
		idx, ok := w.Pool.BeginUnload(pos)
		if !ok {
			continue
		}
		slot := w.Pool.Slot(idx)
		if slot.Dirty && !slot.Persisted {
			delta.ToSave = append(delta.ToSave, SaveRequest{Pos: pos, Pixels: slot.Chunk.Pixels})
		}
		w.Pool.Release(pos)
	}

	for _, pos := range delta.Entering {
		idx, ok := w.Pool.Acquire(pos)
		if !ok {
			log.Printf("pixelworld: chunk pool exhausted, dropping spawn for %+v", pos)
			continue
		}
		delta.ToSpawn = append(delta.ToSpawn, SpawnRequest{Pos: pos, SlotIndex: idx})
	}

	w.center = newCenter
	w.hasCenter = true
	w.window = newWindow
	return delta
}

// FinishLoad applies persisted pixel data to a Loading slot and activates it.
func (w *PixelWorld) FinishLoad(pos coords.ChunkPos, pixels *[coords.ChunkSize * coords.ChunkSize]pixel.Pixel) {
	idx, ok := w.Pool.IndexOf(pos)
	if !ok {
		return
	}
	slot := w.Pool.Slot(idx)
	slot.Chunk.Pixels = *pixels
	slot.Persisted = true
	w.Pool.Activate(idx)
}

// BeginSeed marks a Loading slot as Seeding (persistence had no record).
func (w *PixelWorld) BeginSeed(pos coords.ChunkPos) {
	idx, ok := w.Pool.IndexOf(pos)
	if !ok {
		return
	}
	w.Pool.BeginSeeding(idx)
}

// FinishSeed runs the seeder over a Seeding slot's chunk and activates it.
func (w *PixelWorld) FinishSeed(pos coords.ChunkPos) {
	idx, ok := w.Pool.IndexOf(pos)
	if !ok {
		return
	}
	slot := w.Pool.Slot(idx)
	w.Seeder.Seed(w.WorldSeed, pos, &slot.Chunk)
	slot.Dirty = true
	slot.Persisted = false
	w.Pool.Activate(idx)
}

// FreshReseedAllChunks moves every Active slot back to Seeding and re-runs
// the (possibly newly-swapped) seeder over it — used when the host replaces
// the seeder at runtime (spec.md §4.2).
func (w *PixelWorld) FreshReseedAllChunks() {
	for _, pos := range w.Pool.ActivePositions() {
		idx, ok := w.Pool.IndexOf(pos)
		if !ok {
			continue
		}
		w.Pool.BeginSeeding(idx)
		w.FinishSeed(pos)
	}
}

// active returns the chunk at pos if its slot is Active, else nil.
func (w *PixelWorld) active(pos coords.ChunkPos) *Chunk {
	idx, ok := w.Pool.IndexOf(pos)
	if !ok {
		return nil
	}
	slot := w.Pool.Slot(idx)
	if slot.Lifecycle != SlotActive {
		return nil
	}
	return &slot.Chunk
}

// GetPixel returns the pixel at pos. The second return is false exactly
// when pos's chunk is not Active.
func (w *PixelWorld) GetPixel(pos coords.WorldPos) (pixel.Pixel, bool) {
	cpos, local := pos.ToChunk()
	c := w.active(cpos)
	if c == nil {
		return pixel.Pixel{}, false
	}
	return c.Get(local), true
}

// SetPixel writes a pixel at pos, marking the owning slot dirty. Returns
// false exactly when pos's chunk is not Active.
func (w *PixelWorld) SetPixel(pos coords.WorldPos, p pixel.Pixel) bool {
	cpos, local := pos.ToChunk()
	idx, ok := w.Pool.IndexOf(cpos)
	if !ok {
		return false
	}
	slot := w.Pool.Slot(idx)
	if slot.Lifecycle != SlotActive {
		return false
	}
	slot.Chunk.Set(local, p)
	slot.Dirty = true
	slot.Persisted = false
	markEdgeCollisionDirty(w, cpos, local)
	return true
}

// SwapPixels exchanges the pixels at a and b. Returns false if either
// position's chunk is not Active.
func (w *PixelWorld) SwapPixels(a, b coords.WorldPos) bool {
	pa, ok := w.GetPixel(a)
	if !ok {
		return false
	}
	pb, ok := w.GetPixel(b)
	if !ok {
		return false
	}
	if !w.SetPixel(a, pb) {
		return false
	}
	if !w.SetPixel(b, pa) {
		// best-effort: restore a, though this should not happen since we just
		// confirmed both chunks were Active.
		w.SetPixel(a, pa)
		return false
	}
	return true
}

// markEdgeCollisionDirty marks neighboring tiles (in the same or an
// adjacent chunk) collision-dirty when a write lands on a tile border,
// since collision extraction samples a 1px border from neighboring tiles
// (spec.md §4.6).
func markEdgeCollisionDirty(w *PixelWorld, cpos coords.ChunkPos, local coords.LocalPos) {
	atLeft := local.X%coords.TileSize == 0
	atRight := local.X%coords.TileSize == coords.TileSize-1
	atTop := local.Y%coords.TileSize == 0
	atBottom := local.Y%coords.TileSize == coords.TileSize-1

	if !atLeft && !atRight && !atTop && !atBottom {
		return
	}

	tx := int(local.X) / coords.TileSize
	ty := int(local.Y) / coords.TileSize

	for _, d := range []struct{ dx, dy int }{
		{-1, 0}, {1, 0}, {0, -1}, {0, 1},
		{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
	} {
		if d.dx < 0 && !atLeft {
			continue
		}
		if d.dx > 0 && !atRight {
			continue
		}
		if d.dy < 0 && !atTop {
			continue
		}
		if d.dy > 0 && !atBottom {
			continue
		}
		ntx, nty := tx+d.dx, ty+d.dy
		ncpos := cpos
		if ntx < 0 {
			ntx += tilesPerChunkSide
			ncpos.X--
		} else if ntx >= tilesPerChunkSide {
			ntx -= tilesPerChunkSide
			ncpos.X++
		}
		if nty < 0 {
			nty += tilesPerChunkSide
			ncpos.Y--
		} else if nty >= tilesPerChunkSide {
			nty -= tilesPerChunkSide
			ncpos.Y++
		}
		if c := w.active(ncpos); c != nil {
			c.CollisionDirty[nty*tilesPerChunkSide+ntx] = true
		}
	}
}

// ActiveSnapshot returns a position-to-chunk map of every currently Active
// chunk, for building a scheduler.Canvas one layer up.
func (w *PixelWorld) ActiveSnapshot() map[coords.ChunkPos]*Chunk {
	positions := w.Pool.ActivePositions()
	out := make(map[coords.ChunkPos]*Chunk, len(positions))
	for _, pos := range positions {
		idx, ok := w.Pool.IndexOf(pos)
		if !ok {
			continue
		}
		out[pos] = &w.Pool.Slot(idx).Chunk
	}
	return out
}
