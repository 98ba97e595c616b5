package collision

import (
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/api-haus/pixelworld/internal/coords"
)

type genJob struct {
	tile       coords.TilePos
	grid       [GridSize][GridSize]bool
	tileOrigin mgl32.Vec2
	tolerance  float32
}

type genResult struct {
	tile coords.TilePos
	mesh TileCollisionMesh
}

// Dispatcher runs tile collision generation (marching squares, simplify,
// triangulate) on a worker pool, keeping the heavy geometry work off the
// tick thread. Dispatch enqueues and returns immediately; Poll drains
// whatever jobs have finished and applies them to the cache.
type Dispatcher struct {
	cache *CollisionCache

	jobs    chan genJob
	results chan genResult

	wg sync.WaitGroup
}

// NewDispatcher starts a dispatcher with one worker goroutine per CPU,
// feeding the given cache.
func NewDispatcher(cache *CollisionCache) *Dispatcher {
	d := &Dispatcher{
		cache:   cache,
		jobs:    make(chan genJob, 1024),
		results: make(chan genResult, 1024),
	}
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		contours := MarchingSquares(&job.grid, job.tileOrigin)
		mesh := BuildTileCollisionMesh(contours, job.tolerance, 0)
		d.results <- genResult{tile: job.tile, mesh: mesh}
	}
}

// Close stops accepting new jobs and waits for in-flight ones to drain.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
	close(d.results)
}

// Dispatch queues a tile for background regeneration if it isn't already
// cached or in flight. Dispatch itself does not touch world state; the
// caller clears the tile's collision-dirty bit (ClearTileDirty) once the
// tile has been dispatched.
func (d *Dispatcher) Dispatch(tile coords.TilePos, grid [GridSize][GridSize]bool, tolerance float32) {
	if d.cache.Contains(tile) || d.cache.IsInFlight(tile) {
		return
	}

	if !HasCollision(&grid) {
		d.cache.InsertDirect(tile, TileCollisionMesh{})
		return
	}

	d.cache.MarkInFlight(tile)
	origin := tile.Origin()
	job := genJob{
		tile:       tile,
		grid:       grid,
		tileOrigin: mgl32.Vec2{float32(origin.X), float32(origin.Y)},
		tolerance:  tolerance,
	}
	select {
	case d.jobs <- job:
	default:
		// Queue saturated: drop the marker so the next dirty sweep retries.
		d.cache.mu.Lock()
		delete(d.cache.inFlight, tile)
		d.cache.mu.Unlock()
	}
}

// Poll applies every job result that has arrived since the last call,
// without blocking for ones still in flight.
func (d *Dispatcher) Poll() int {
	applied := 0
	for {
		select {
		case res := <-d.results:
			d.cache.Insert(res.tile, res.mesh)
			applied++
		default:
			return applied
		}
	}
}
