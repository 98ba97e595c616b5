package collision

import (
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/world"
)

// TilesInRadius returns every tile position within a square radius of
// center, used to decide which tiles near a query point (player, camera)
// need collision geometry kept warm.
func TilesInRadius(center coords.TilePos, radius int64) []coords.TilePos {
	out := make([]coords.TilePos, 0, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			out = append(out, coords.TilePos{X: center.X + dx, Y: center.Y + dy})
		}
	}
	return out
}

// ExtractTileGrid samples a GridSize x GridSize binary grid around tile (the
// 32x32 tile plus a 1px border from its neighbors), marking a cell true iff
// the underlying pixel is non-void and its material's physics state is
// Solid or Powder — settled powder forms a walkable surface the same way a
// solid does, but liquids and gases never contribute collision geometry.
func ExtractTileGrid(pw *world.PixelWorld, tile coords.TilePos, registry *material.Registry) [GridSize][GridSize]bool {
	var grid [GridSize][GridSize]bool
	origin := tile.Origin()

	for gy := 0; gy < GridSize; gy++ {
		for gx := 0; gx < GridSize; gx++ {
			pos := coords.WorldPos{X: origin.X + int64(gx) - 1, Y: origin.Y + int64(gy) - 1}
			p, ok := pw.GetPixel(pos)
			if !ok || p.IsVoid() {
				continue
			}
			state := registry.Get(p.Material).State
			grid[gy][gx] = state == material.Solid || state == material.Powder
		}
	}
	return grid
}

// HasCollision reports whether any cell in the grid is set.
func HasCollision(grid *[GridSize][GridSize]bool) bool {
	for _, row := range grid {
		for _, v := range row {
			if v {
				return true
			}
		}
	}
	return false
}

// ClearTileDirty clears the collision-dirty bit for tile's owning chunk/
// local-tile slot, called once a generation job has been dispatched for it
// so the next dirty-tile sweep doesn't immediately re-queue it.
func ClearTileDirty(snapshot map[coords.ChunkPos]*world.Chunk, tile coords.TilePos) {
	chunkPos, lx, ly := tile.ChunkAndLocal()
	chunk, ok := snapshot[chunkPos]
	if !ok {
		return
	}
	idx := ly*coords.TilesPerChunk + lx
	if idx >= 0 && idx < len(chunk.CollisionDirty) {
		chunk.CollisionDirty[idx] = false
	}
}

// DirtyTiles returns every tile position whose collision-dirty bit is set,
// across every active chunk in snapshot.
func DirtyTiles(snapshot map[coords.ChunkPos]*world.Chunk) []coords.TilePos {
	var out []coords.TilePos
	for chunkPos, chunk := range snapshot {
		for idx, dirty := range chunk.CollisionDirty {
			if !dirty {
				continue
			}
			lx := idx % coords.TilesPerChunk
			ly := idx / coords.TilesPerChunk
			worldTX := int64(chunkPos.X)*coords.TilesPerChunk + int64(lx)
			worldTY := int64(chunkPos.Y)*coords.TilesPerChunk + int64(ly)
			out = append(out, coords.TilePos{X: worldTX, Y: worldTY})
		}
	}
	return out
}
