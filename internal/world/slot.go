package world

import "github.com/api-haus/pixelworld/internal/coords"

// SlotLifecycle is a ChunkSlot's position in the load/seed/active/unload
// state machine (spec.md §3, §4.1).
type SlotLifecycle int

const (
	SlotFree SlotLifecycle = iota
	SlotLoading
	SlotSeeding
	SlotActive
	SlotUnloading
)

// ChunkSlot owns one Chunk's storage plus its lifecycle and GPU/persistence
// dirtiness flags.
type ChunkSlot struct {
	Chunk     Chunk
	Pos       coords.ChunkPos
	Lifecycle SlotLifecycle

	// Dirty is true when the CPU-side chunk has changed since the last GPU
	// texture upload (out of scope here, tracked for a future renderer).
	Dirty bool
	// Persisted is true when the CPU-side chunk matches what's on disk.
	Persisted bool

	// reenterDeferred is set when a position tries to re-enter the window
	// while its slot is still Unloading; the streaming store retries it next
	// tick instead of racing the release.
	reenterDeferred bool
}

func (s *ChunkSlot) reset() {
	s.Pos = coords.ChunkPos{}
	s.Lifecycle = SlotFree
	s.Dirty = false
	s.Persisted = false
	s.reenterDeferred = false
}
