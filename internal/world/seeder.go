package world

import (
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
)

// Seeder deterministically fills a freshly-loaded chunk that has no
// persisted record. Implementations must be a pure function of
// (world seed, chunk position) — no hidden state, no randomness beyond what
// the seed and position determine — since the same chunk must reseed
// identically after a FreshReseedAllChunks and across runs with the same
// seed.
type Seeder interface {
	Seed(seed int64, pos coords.ChunkPos, c *Chunk)
}

// SeederFunc adapts a plain function to the Seeder interface.
type SeederFunc func(seed int64, pos coords.ChunkPos, c *Chunk)

func (f SeederFunc) Seed(seed int64, pos coords.ChunkPos, c *Chunk) { f(seed, pos, c) }

// DefaultSeeder fills a chunk with layered terrain (soil over stone, with a
// sand-capped surface band) driven by octave value noise, and is the
// engine's built-in fallback when the host doesn't supply its own Seeder.
type DefaultSeeder struct {
	Octaves             int
	Persistence         float64
	Lacunarity          float64
	HorizontalFrequency float64
	SurfaceHeight       float64 // in pixels, amplitude of the noise terrain
	BaseLevel           float64 // world Y of the mean ground line
}

// NewDefaultSeeder returns a DefaultSeeder with reasonable built-in tuning.
func NewDefaultSeeder() *DefaultSeeder {
	return &DefaultSeeder{
		Octaves:             4,
		Persistence:         0.5,
		Lacunarity:          2.0,
		HorizontalFrequency: 1.0 / 256.0,
		SurfaceHeight:       96,
		BaseLevel:           0,
	}
}

func (s *DefaultSeeder) Seed(seed int64, pos coords.ChunkPos, c *Chunk) {
	c.Reset()
	origin := pos.Origin()

	for lx := 0; lx < coords.ChunkSize; lx++ {
		worldX := origin.X + int64(lx)
		n := octaveNoise2D(float64(worldX)*s.HorizontalFrequency, 0, seed, s.Octaves, s.Persistence, s.Lacunarity)
		groundY := s.BaseLevel + (n-0.5)*2*s.SurfaceHeight

		for ly := 0; ly < coords.ChunkSize; ly++ {
			worldY := origin.Y + int64(ly)
			depth := float64(worldY) - groundY
			l := coords.LocalPos{X: uint16(lx), Y: uint16(ly)}

			var p pixel.Pixel
			switch {
			case depth < 0:
				p = pixel.VoidPixel
			case depth < 4:
				p = newSolid(material.Sand)
			case depth < 24:
				p = newSolid(material.Soil)
			default:
				p = newSolid(material.Stone)
			}
			c.Pixels[localIndex(l)] = p
		}
	}
}

func newSolid(id pixel.MaterialID) pixel.Pixel {
	p := pixel.Pixel{Material: id}
	if id != material.Void {
		p = p.Set(pixel.FlagSolid)
	}
	return p
}
