package automata

import (
	"testing"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/scheduler"
	"github.com/api-haus/pixelworld/internal/world"
)

func newCanvas(positions ...coords.ChunkPos) (*scheduler.Canvas, map[coords.ChunkPos]*world.Chunk) {
	chunks := make(map[coords.ChunkPos]*world.Chunk, len(positions))
	for _, pos := range positions {
		chunks[pos] = &world.Chunk{}
	}
	return scheduler.NewCanvas(chunks), chunks
}

func TestSandFallsStraightDownWhenClear(t *testing.T) {
	canvas, _ := newCanvas(coords.ChunkPos{X: 0, Y: 0})
	registry := material.NewRegistry()
	pos := coords.WorldPos{X: 10, Y: 10}
	canvas.Set(pos, pixel.Pixel{Material: material.Sand})

	swap := NewSwapFunc(registry)
	target, ok := swap(pos, canvas, 1)
	if !ok || target != (coords.WorldPos{X: 10, Y: 11}) {
		t.Fatalf("expected straight-down swap, got %+v ok=%v", target, ok)
	}
}

func TestStoneNeverSwaps(t *testing.T) {
	canvas, _ := newCanvas(coords.ChunkPos{X: 0, Y: 0})
	registry := material.NewRegistry()
	pos := coords.WorldPos{X: 10, Y: 10}
	canvas.Set(pos, pixel.Pixel{Material: material.Stone})

	swap := NewSwapFunc(registry)
	if _, ok := swap(pos, canvas, 1); ok {
		t.Fatalf("solid should never report a swap target")
	}
}

func TestPixelBodyPixelIsImmovable(t *testing.T) {
	canvas, _ := newCanvas(coords.ChunkPos{X: 0, Y: 0})
	registry := material.NewRegistry()
	pos := coords.WorldPos{X: 10, Y: 10}
	canvas.Set(pos, pixel.Pixel{Material: material.Sand, Flags: pixel.FlagPixelBody})

	swap := NewSwapFunc(registry)
	if _, ok := swap(pos, canvas, 1); ok {
		t.Fatalf("a PIXEL_BODY pixel must never be reported as swappable")
	}
}

func TestSameDensityLiquidDoesNotDisplace(t *testing.T) {
	registry := material.NewRegistry()
	if canDisplace(registry, pixel.Pixel{Material: material.Water}, pixel.Pixel{Material: material.Water}) {
		t.Fatalf("a liquid must not displace another liquid of equal density")
	}
}

func TestPowderSinksThroughLessDenseLiquid(t *testing.T) {
	registry := material.NewRegistry() // Sand density 160 > Water density 100
	if !canDisplace(registry, pixel.Pixel{Material: material.Sand}, pixel.Pixel{Material: material.Water}) {
		t.Fatalf("denser powder should sink through a less dense liquid")
	}
}

func TestBurnStepIgnoresNonBurningPixel(t *testing.T) {
	canvas, _ := newCanvas(coords.ChunkPos{X: 0, Y: 0})
	registry := material.NewRegistry()
	pos := coords.WorldPos{X: 5, Y: 5}
	canvas.Set(pos, pixel.Pixel{Material: material.Wood})

	step := NewBurnStep(BurnContext{Registry: registry, Heat: NewHeatConfig(), TPS: 60})
	touched := step(pos, canvas, 1)
	if len(touched) != 0 {
		t.Fatalf("non-burning pixel should not be touched, got %+v", touched)
	}
}

func TestHeatIgnitesAboveThreshold(t *testing.T) {
	canvas, chunks := newCanvas(coords.ChunkPos{X: 0, Y: 0})
	registry := material.NewRegistry()
	ch := chunks[coords.ChunkPos{X: 0, Y: 0}]
	ch.Set(coords.LocalPos{X: 0, Y: 0}, pixel.Pixel{Material: material.Wood})
	ch.HeatGrid[0] = 200
	ch.HeatActive[0] = true

	IgniteFromHeat(canvas, []coords.ChunkPos{{X: 0, Y: 0}}, registry)

	p := ch.Get(coords.LocalPos{X: 0, Y: 0})
	if !p.Has(pixel.FlagBurning) {
		t.Fatalf("wood above ignition threshold should be burning, got %+v", p)
	}
}

func TestPropagateHeatCoolsWithNoSources(t *testing.T) {
	canvas, chunks := newCanvas(coords.ChunkPos{X: 0, Y: 0})
	registry := material.NewRegistry()
	ch := chunks[coords.ChunkPos{X: 0, Y: 0}]
	ch.HeatGrid[0] = 100
	ch.HeatActive[0] = true

	cfg := NewHeatConfig()
	PropagateHeat(canvas, []coords.ChunkPos{{X: 0, Y: 0}}, registry, cfg)

	if ch.HeatGrid[0] >= 100 {
		t.Fatalf("heat with no sources should cool, got %d", ch.HeatGrid[0])
	}
}

func TestAshChancePerTickMatchesDurationConversion(t *testing.T) {
	cfg := NewHeatConfig()
	got := cfg.AshChancePerTick(60)
	want := 1.0 / (5.0 * 60.0)
	if got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("AshChancePerTick(60) = %v, want %v", got, want)
	}
}
