package collision

import (
	"sync"

	"github.com/api-haus/pixelworld/internal/coords"
)

// CollisionCache holds the latest generated mesh per tile, plus which tiles
// currently have a generation job in flight so dispatch never double-queues
// the same tile.
type CollisionCache struct {
	mu         sync.RWMutex
	meshes     map[coords.TilePos]*TileCollisionMesh
	inFlight   map[coords.TilePos]struct{}
	generation uint64
}

// NewCollisionCache returns an empty cache.
func NewCollisionCache() *CollisionCache {
	return &CollisionCache{
		meshes:   make(map[coords.TilePos]*TileCollisionMesh),
		inFlight: make(map[coords.TilePos]struct{}),
	}
}

// Get returns the cached mesh for a tile, if any.
func (c *CollisionCache) Get(tile coords.TilePos) (*TileCollisionMesh, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.meshes[tile]
	return m, ok
}

// Contains reports whether a tile has a cached mesh (including an empty one).
func (c *CollisionCache) Contains(tile coords.TilePos) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.meshes[tile]
	return ok
}

// IsInFlight reports whether a generation job for tile is currently running.
func (c *CollisionCache) IsInFlight(tile coords.TilePos) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.inFlight[tile]
	return ok
}

// MarkInFlight records that tile now has a dispatched job, so a second
// dispatch attempt this tick is skipped.
func (c *CollisionCache) MarkInFlight(tile coords.TilePos) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[tile] = struct{}{}
}

// InsertDirect caches a mesh synchronously, for the common case of a tile
// with no collision pixels at all — not worth a worker round trip.
func (c *CollisionCache) InsertDirect(tile coords.TilePos, mesh TileCollisionMesh) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	mesh.Generation = c.generation
	c.meshes[tile] = &mesh
}

// Insert caches a mesh produced by a finished async job and clears its
// in-flight marker.
func (c *CollisionCache) Insert(tile coords.TilePos, mesh TileCollisionMesh) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	mesh.Generation = c.generation
	c.meshes[tile] = &mesh
	delete(c.inFlight, tile)
}

// Invalidate drops a tile's cached mesh, forcing the next dispatch pass to
// regenerate it. Does not touch the in-flight marker: a job already running
// for this tile still completes and overwrites whatever Invalidate leaves
// behind.
func (c *CollisionCache) Invalidate(tile coords.TilePos) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.meshes, tile)
}

// Remove drops both the cached mesh and any in-flight marker for a tile that
// has left the streaming window entirely.
func (c *CollisionCache) Remove(tile coords.TilePos) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.meshes, tile)
	delete(c.inFlight, tile)
}
