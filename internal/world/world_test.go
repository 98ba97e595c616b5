package world

import (
	"testing"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/pixel"
)

func newTestWorld(radius int) *PixelWorld {
	capacity := (2*radius+1)*(2*radius+1) + 4
	pw := NewPixelWorld(capacity, NewDefaultSeeder(), 1234)
	return pw
}

func activateAll(pw *PixelWorld, delta StreamingDelta) {
	for _, req := range delta.ToSpawn {
		pw.BeginSeed(req.Pos)
		pw.FinishSeed(req.Pos)
	}
}

func TestUpdateCenterSecondCallEmpty(t *testing.T) {
	pw := newTestWorld(2)
	center := coords.ChunkPos{X: 0, Y: 0}

	d1 := pw.UpdateCenter(center, 2)
	if len(d1.Entering) != 25 {
		t.Fatalf("expected 25 entering chunks for radius 2, got %d", len(d1.Entering))
	}
	activateAll(pw, d1)

	d2 := pw.UpdateCenter(center, 2)
	if len(d2.Entering) != 0 || len(d2.Leaving) != 0 {
		t.Fatalf("second UpdateCenter with same center should be a no-op, got entering=%d leaving=%d",
			len(d2.Entering), len(d2.Leaving))
	}
}

func TestUpdateCenterSlotPositionMatches(t *testing.T) {
	pw := newTestWorld(1)
	d := pw.UpdateCenter(coords.ChunkPos{X: 5, Y: -3}, 1)
	for _, req := range d.ToSpawn {
		slot := pw.Pool.Slot(req.SlotIndex)
		if slot.Pos != req.Pos {
			t.Fatalf("slot %d position %+v does not match requested %+v", req.SlotIndex, slot.Pos, req.Pos)
		}
	}
}

func TestSetGetPixelRequiresActiveChunk(t *testing.T) {
	pw := newTestWorld(1)
	pos := coords.WorldPos{X: 10, Y: 10}

	if ok := pw.SetPixel(pos, pixel.Pixel{Material: material.Stone}); ok {
		t.Fatalf("SetPixel should fail before the chunk is Active")
	}

	d := pw.UpdateCenter(coords.ChunkPos{X: 0, Y: 0}, 1)
	activateAll(pw, d)

	if ok := pw.SetPixel(pos, pixel.Pixel{Material: material.Stone}); !ok {
		t.Fatalf("SetPixel should succeed once the chunk is Active")
	}
	got, ok := pw.GetPixel(pos)
	if !ok || got.Material != material.Stone {
		t.Fatalf("GetPixel returned %+v, ok=%v; want Stone", got, ok)
	}
}

func TestSwapPixels(t *testing.T) {
	pw := newTestWorld(1)
	d := pw.UpdateCenter(coords.ChunkPos{X: 0, Y: 0}, 1)
	activateAll(pw, d)

	a := coords.WorldPos{X: 4, Y: 4}
	b := coords.WorldPos{X: 5, Y: 4}
	pw.SetPixel(a, pixel.Pixel{Material: material.Water})
	pw.SetPixel(b, pixel.Pixel{Material: material.Void})

	if !pw.SwapPixels(a, b) {
		t.Fatalf("SwapPixels failed")
	}
	pa, _ := pw.GetPixel(a)
	pb, _ := pw.GetPixel(b)
	if pa.Material != material.Void || pb.Material != material.Water {
		t.Fatalf("swap did not exchange materials: a=%+v b=%+v", pa, pb)
	}
}

func TestUpdateCenterLeavingDirtyChunkQueuesSave(t *testing.T) {
	pw := newTestWorld(1)
	origin := coords.ChunkPos{X: 0, Y: 0}
	d := pw.UpdateCenter(origin, 1)
	activateAll(pw, d)

	pw.SetPixel(coords.WorldPos{X: 1, Y: 1}, pixel.Pixel{Material: material.Water})

	far := coords.ChunkPos{X: 100, Y: 100}
	d2 := pw.UpdateCenter(far, 0)
	found := false
	for _, req := range d2.ToSave {
		if req.Pos == origin {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected origin chunk to be queued for save after becoming dirty, got %+v", d2.ToSave)
	}
}

func TestPoolExhaustionDropsSpawnWithoutBlocking(t *testing.T) {
	pw := NewPixelWorld(1, NewDefaultSeeder(), 1)
	d := pw.UpdateCenter(coords.ChunkPos{X: 0, Y: 0}, 1) // needs 9 slots, pool has 1
	if len(d.ToSpawn) != 1 {
		t.Fatalf("expected exactly 1 spawn to succeed with a 1-slot pool, got %d", len(d.ToSpawn))
	}
}
