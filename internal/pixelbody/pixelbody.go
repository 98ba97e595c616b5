// Package pixelbody implements rigid pixel-body entities: a grid of pixels
// that borrows space in the chunk world each tick (blit), is corrected for
// whatever the CA simulator did to it (readback), and fragments along
// connectivity boundaries when destruction disconnects it (split).
// spec.md §4.5.
package pixelbody

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/scheduler"
)

// StableID identifies a body across ticks and across a split, independent
// of whatever ECS/entity id the host assigns it.
type StableID uint64

// Transform is a body's rigid pose: translation plus rotation (radians)
// about its Origin.
type Transform struct {
	Position mgl32.Vec2
	Rotation float32
}

// blitRecord remembers one pixel this body wrote last tick, so Erase can
// tell a "still ours" cell from one some other system has since modified.
type blitRecord struct {
	pos     coords.WorldPos
	written pixel.Pixel
}

// PixelBody is a rigid Width x Height grid of pixels. ShapeMask and Surface
// are the authoritative geometry; chunk-space pixels are only a cache of
// the last blit.
type PixelBody struct {
	StableID StableID
	Width    int
	Height   int
	// Origin is the pivot, in body-local pixel coordinates, that Transform's
	// translation/rotation are applied about.
	Origin mgl32.Vec2

	ShapeMask []bool
	Surface   []pixel.Pixel

	LinearVelocity  mgl32.Vec2
	AngularVelocity float32

	lastBlit      []blitRecord
	lastTransform Transform
	hasLastBlit   bool
}

// New allocates an all-empty body of the given size.
func New(id StableID, width, height int) *PixelBody {
	return &PixelBody{
		StableID:  id,
		Width:     width,
		Height:    height,
		Origin:    mgl32.Vec2{float32(width) / 2, float32(height) / 2},
		ShapeMask: make([]bool, width*height),
		Surface:   make([]pixel.Pixel, width*height),
	}
}

func (b *PixelBody) index(x, y int) int { return y*b.Width + x }

// Get returns the pixel at local (x, y) and whether the cell is set.
func (b *PixelBody) Get(x, y int) (pixel.Pixel, bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return pixel.Pixel{}, false
	}
	i := b.index(x, y)
	return b.Surface[i], b.ShapeMask[i]
}

// Set writes a pixel at local (x, y) and marks the cell occupied.
func (b *PixelBody) Set(x, y int, p pixel.Pixel) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	i := b.index(x, y)
	b.Surface[i] = p
	b.ShapeMask[i] = true
}

// LiveCellCount returns how many cells of the shape mask are still set.
func (b *PixelBody) LiveCellCount() int {
	n := 0
	for _, set := range b.ShapeMask {
		if set {
			n++
		}
	}
	return n
}

// LastPose returns the transform this body was last blitted with — the
// pose persistence and chunk-unload ownership checks key off, since a
// body's authoritative world position outside of a tick is wherever it was
// last written, not wherever the integrator has since moved it to.
func (b *PixelBody) LastPose() Transform { return b.lastTransform }

// worldPosAt maps a body-local cell to its world position under transform.
func worldPosAt(b *PixelBody, x, y int, t Transform) coords.WorldPos {
	local := mgl32.Vec2{float32(x) + 0.5 - b.Origin[0], float32(y) + 0.5 - b.Origin[1]}
	rot := mgl32.Rotate2D(t.Rotation)
	rotated := rot.Mul2x1(local)
	world := rotated.Add(t.Position)
	return coords.WorldPos{X: int64(world[0]), Y: int64(world[1])}
}

// Erase restores the positions this body wrote last tick back to void,
// unless the chunk pixel there no longer matches what was written — that
// means some other system (a blast, a burn, another body) has since
// touched it, and it is treated as already externally erased.
func Erase(canvas *scheduler.Canvas, b *PixelBody) {
	if !b.hasLastBlit {
		return
	}
	for _, rec := range b.lastBlit {
		cur, ok := canvas.Get(rec.pos)
		if !ok {
			continue
		}
		if cur != rec.written {
			continue
		}
		canvas.Set(rec.pos, pixel.VoidPixel)
	}
	b.lastBlit = nil
	b.hasLastBlit = false
}

// Blit writes every set shape-mask cell into the chunk world at its
// transformed world position, tagging each with FlagPixelBody. Later bodies
// in iteration order win ties, giving deterministic overlap resolution for
// a stable iteration order over the body list.
func Blit(canvas *scheduler.Canvas, b *PixelBody, t Transform) {
	written := make([]blitRecord, 0, b.LiveCellCount())
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			i := b.index(x, y)
			if !b.ShapeMask[i] {
				continue
			}
			pos := worldPosAt(b, x, y, t)
			p := b.Surface[i].Set(pixel.FlagPixelBody)
			if !canvas.Set(pos, p) {
				continue
			}
			written = append(written, blitRecord{pos: pos, written: p})
		}
	}
	b.lastBlit = written
	b.lastTransform = t
	b.hasLastBlit = true
}

// Readback samples every position this body wrote this tick; a position
// whose chunk pixel is no longer this body's material/flags (the CA phase
// destroyed or transformed it) clears the corresponding shape-mask cell.
// Returns true if the body now has zero live cells and should be despawned.
func Readback(canvas *scheduler.Canvas, b *PixelBody) bool {
	for _, rec := range b.lastBlit {
		cur, ok := canvas.Get(rec.pos)
		if ok && cur == rec.written {
			continue
		}
		// Clear every cell that Blit mapped to this position under the
		// transform it was written with.
		for i := range b.ShapeMask {
			if b.ShapeMask[i] && worldPosAt(b, i%b.Width, i/b.Width, b.lastTransform) == rec.pos {
				b.ShapeMask[i] = false
			}
		}
	}
	return b.LiveCellCount() == 0
}
