package world

import (
	"testing"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
)

func BenchmarkSetPixel(b *testing.B) {
	pw := newTestWorld(4)
	d := pw.UpdateCenter(coords.ChunkPos{X: 0, Y: 0}, 4)
	activateAll(pw, d)
	pos := coords.WorldPos{X: 10, Y: 10}
	p := pixel.Pixel{Material: material.Sand}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pw.SetPixel(pos, p)
	}
}

func BenchmarkUpdateCenterPan(b *testing.B) {
	pw := newTestWorld(6)
	center := coords.ChunkPos{X: 0, Y: 0}
	pw.UpdateCenter(center, 6)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		center.X++
		pw.UpdateCenter(center, 6)
	}
}
