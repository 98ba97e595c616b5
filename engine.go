// Package pixelworld composes the streaming chunk store, the checkerboard
// scheduler, the cellular-automata phases, pixel bodies, persistence, and
// collision meshing into one Engine: the single entry point a host drives
// once per tick (spec.md §5). Everything below this file lives in
// internal/ and stays ignorant of how the pieces fit together; Engine is
// the only place that ordering is decided.
package pixelworld

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/api-haus/pixelworld/internal/automata"
	"github.com/api-haus/pixelworld/internal/collision"
	"github.com/api-haus/pixelworld/internal/config"
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/material"
	"github.com/api-haus/pixelworld/internal/persistence"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/pixelbody"
	"github.com/api-haus/pixelworld/internal/profiling"
	"github.com/api-haus/pixelworld/internal/scheduler"
	"github.com/api-haus/pixelworld/internal/world"
)

// SubmergenceThreshold is the default liquid-fraction a pixel body must
// reach before Engine emits Submerged, matching the reference tuning.
const SubmergenceThreshold = 0.5

// CollisionTolerance is the default Douglas-Peucker epsilon fed to the
// collision pipeline's simplify stage.
const CollisionTolerance = 0.75

// pendingLoad tracks one in-flight chunk load dispatched this or an earlier
// tick, so its completion can be applied before the next streaming delta
// (spec.md §5: "I/O completions are applied before the next tick's
// streaming delta").
type pendingLoad struct {
	pos   coords.ChunkPos
	reply <-chan persistence.ChunkLoadResult
}

// Engine is the top-level composition the host drives. It owns the
// streaming world, the live pixel-body roster, the save file, and the
// collision mesh cache, and sequences one tick's worth of work across all
// of them.
type Engine struct {
	World    *world.PixelWorld
	Registry *material.Registry

	Bodies      map[pixelbody.StableID]*pixelbody.PixelBody
	bodyOrder   []pixelbody.StableID // stable iteration order: later bodies win blit ties
	lastPose    map[pixelbody.StableID]pixelbody.Transform
	nextBodyID  pixelbody.StableID
	Submergence *pixelbody.SubmergenceTracker

	Save *persistence.WorldSave
	Io   *persistence.IoDispatcher

	CollisionCache      *collision.CollisionCache
	CollisionDispatcher *collision.Dispatcher
	CollisionTolerance  float32

	heatCtx automata.HeatConfig
	burnCtx automata.BurnContext
	swap    scheduler.SwapFunc

	tick          uint64
	ticksPerFlush uint64
	ticksToFlush  uint64
	pendingLoads  []pendingLoad

	// Events accumulates Submerged/Surfaced notifications produced during
	// the tick's pixel-body readback phase; the host drains and clears it
	// after each Tick call.
	Events []any
}

// NewEngine opens (or creates) the save file at savePath and wires up a
// fresh streaming world around it. seeder may be nil, in which case
// world.NewDefaultSeeder() is used.
func NewEngine(savePath string, worldSeed int64, registry *material.Registry, seeder world.Seeder) (*Engine, error) {
	if seeder == nil {
		seeder = world.NewDefaultSeeder()
	}

	save, corrupt, err := persistence.OpenOrCreate(savePath, worldSeed, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("pixelworld: open save: %w", err)
	}
	for _, entry := range corrupt {
		log.Printf("pixelworld: dropped corrupt page-table entry at chunk (%d,%d)", entry.ChunkX, entry.ChunkY)
	}

	cfg := config.Global()
	pw := world.NewPixelWorld(cfg.PoolCapacity(), seeder, worldSeed)
	cache := collision.NewCollisionCache()

	heatCtx := automata.NewHeatConfig()
	e := &Engine{
		World:               pw,
		Registry:            registry,
		Bodies:              make(map[pixelbody.StableID]*pixelbody.PixelBody),
		lastPose:            make(map[pixelbody.StableID]pixelbody.Transform),
		Submergence:         pixelbody.NewSubmergenceTracker(SubmergenceThreshold),
		Save:                save,
		Io:                  persistence.NewIoDispatcher(save),
		CollisionCache:      cache,
		CollisionDispatcher: collision.NewDispatcher(cache),
		CollisionTolerance:  CollisionTolerance,
		heatCtx:             heatCtx,
		burnCtx:             automata.BurnContext{Registry: registry, Heat: heatCtx, TPS: float32(cfg.TicksPerSecond())},
		swap:                automata.NewSwapFunc(registry),
		ticksPerFlush:       uint64(cfg.TicksPerSecond()) * 5, // flush roughly every 5s of sim time
	}
	e.ticksToFlush = e.ticksPerFlush
	return e, nil
}

// Close flushes outstanding saves to disk and releases the save file and
// worker pools. The host should call this once, on shutdown.
func (e *Engine) Close() error {
	res := <-e.Io.Flush(time.Now().Unix())
	e.Io.Close()
	e.CollisionDispatcher.Close()
	closeErr := e.Save.Close()
	if res.Err != nil {
		return res.Err
	}
	return closeErr
}

// SaveAs flushes the current save file, then clones it to destPath and
// retargets e.Save there — every SaveChunk/SaveBody/Flush after this call
// lands in the new file, the engine's view of "the save" having atomically
// moved (spec.md §4.3's Copy-on-Save).
func (e *Engine) SaveAs(destPath string) error {
	res := <-e.Io.Flush(time.Now().Unix())
	if res.Err != nil {
		return res.Err
	}
	return e.Save.CopyTo(destPath)
}

// SetSeeder replaces the active seeder and reseeds every currently Active
// chunk (spec.md §4.2).
func (e *Engine) SetSeeder(seeder world.Seeder) {
	e.World.Seeder = seeder
	e.World.FreshReseedAllChunks()
}

// GetPixel, SetPixel, and SwapPixels are thin delegations to the streaming
// store, matching the world-edit interface named in spec.md §6.
func (e *Engine) GetPixel(pos coords.WorldPos) (pixel.Pixel, bool) { return e.World.GetPixel(pos) }
func (e *Engine) SetPixel(pos coords.WorldPos, p pixel.Pixel) bool { return e.World.SetPixel(pos, p) }
func (e *Engine) SwapPixels(a, b coords.WorldPos) bool             { return e.World.SwapPixels(a, b) }

// Blit runs a parallel shader paint over rect against the current active
// window (spec.md §4.1/§4.6).
func (e *Engine) Blit(rect coords.WorldRect, shader scheduler.BlitShader) {
	defer profiling.Track("engine.Blit")()
	canvas := scheduler.NewCanvas(e.World.ActiveSnapshot())
	scheduler.ParallelBlit(canvas, rect, shader)
}

// Tick advances the simulation by one step, running every phase in the
// fixed order spec.md §5 requires. viewerCenter recenters the streaming
// window; transforms carries this tick's pose for every live pixel body,
// as read from whatever rigid-body integrator the host uses (a body
// missing from transforms keeps the pose it was last blitted under).
func (e *Engine) Tick(viewerCenter coords.ChunkPos, transforms map[pixelbody.StableID]pixelbody.Transform) {
	defer profiling.Track("engine.Tick")()
	profiling.ResetTick()
	e.tick++
	e.Events = e.Events[:0]

	e.drainCompletedLoads()
	e.streamWindow(viewerCenter)

	snapshot := e.World.ActiveSnapshot()
	canvas := scheduler.NewCanvas(snapshot)
	chunkPositions := canvas.ChunkPositions()

	e.blitBodies(canvas, transforms)

	tiles := canvas.ActiveTiles()
	func() {
		defer profiling.Track("automata.Heat")()
		automata.PropagateHeat(canvas, chunkPositions, e.Registry, e.heatCtx)
		automata.IgniteFromHeat(canvas, chunkPositions, e.Registry)
	}()
	func() {
		defer profiling.Track("automata.Burn")()
		scheduler.ParallelBurning(canvas, tiles, e.tick, automata.NewBurnStep(e.burnCtx))
	}()
	func() {
		defer profiling.Track("automata.Physics")()
		scheduler.ParallelSimulate(canvas, tiles, e.tick, e.swap)
	}()

	e.readbackBodies(canvas)
	e.splitBodies()

	e.runCollision(snapshot)

	cfg := config.Global()
	for _, cpos := range chunkPositions {
		if ch, ok := canvas.ChunkAt(cpos); ok {
			ch.EndTick(cfg.CoolThreshold())
		}
	}

	e.flushPersistenceQueue()
}

// drainCompletedLoads applies every load completion that has arrived since
// the last tick, without blocking on ones still in flight.
func (e *Engine) drainCompletedLoads() {
	if len(e.pendingLoads) == 0 {
		return
	}
	remaining := e.pendingLoads[:0]
	for _, pl := range e.pendingLoads {
		select {
		case res := <-pl.reply:
			e.applyLoadResult(res)
		default:
			remaining = append(remaining, pl)
		}
	}
	e.pendingLoads = remaining
}

func (e *Engine) applyLoadResult(res persistence.ChunkLoadResult) {
	if res.Err != nil {
		log.Printf("pixelworld: load chunk (%d,%d) failed, reseeding: %v", res.Pos.X, res.Pos.Y, res.Err)
		e.seedChunk(res.Pos)
		return
	}
	e.World.FinishLoad(res.Pos, &res.Chunk.Pixels)
}

// seedChunk runs the active seeder over a Loading slot and registers the
// freshly-seeded pixels as the delta baseline persistence diffs against.
func (e *Engine) seedChunk(pos coords.ChunkPos) {
	e.World.BeginSeed(pos)
	e.World.FinishSeed(pos)
	if idx, ok := e.World.Pool.IndexOf(pos); ok {
		e.Save.SetBaseline(pos, &e.World.Pool.Slot(idx).Chunk)
	}
}

// streamWindow recenters the visible window and dispatches whatever
// load/seed/save work the move produced (spec.md §4.1).
func (e *Engine) streamWindow(center coords.ChunkPos) {
	delta := e.World.UpdateCenter(center, config.Global().StreamWindowRadius())

	for _, req := range delta.ToSave {
		chunk := world.Chunk{Pixels: req.Pixels}
		e.Io.SaveChunk(req.Pos, &chunk)
	}
	for _, pos := range delta.Leaving {
		e.Save.ForgetBaseline(pos)
		e.unloadBodiesIn(pos)
		for ly := int64(0); ly < coords.TilesPerChunk; ly++ {
			for lx := int64(0); lx < coords.TilesPerChunk; lx++ {
				tile := coords.TilePos{X: int64(pos.X)*coords.TilesPerChunk + lx, Y: int64(pos.Y)*coords.TilesPerChunk + ly}
				e.CollisionCache.Remove(tile)
			}
		}
	}

	for _, spawn := range delta.ToSpawn {
		if e.Save.Has(spawn.Pos) {
			e.pendingLoads = append(e.pendingLoads, pendingLoad{pos: spawn.Pos, reply: e.Io.LoadChunk(spawn.Pos)})
			continue
		}
		e.seedChunk(spawn.Pos)
	}
}

// unloadBodiesIn serializes and despawns every live body whose last
// blitted position falls inside cpos, since a body's authoritative pose
// outside of a tick is wherever it was last blitted, not wherever the
// external integrator has since moved it (spec.md §4.5).
func (e *Engine) unloadBodiesIn(cpos coords.ChunkPos) {
	for _, id := range append([]pixelbody.StableID(nil), e.bodyOrder...) {
		b, ok := e.Bodies[id]
		if !ok {
			continue
		}
		pose := b.LastPose()
		center := coords.WorldPos{X: int64(pose.Position[0]), Y: int64(pose.Position[1])}
		bcpos, _ := center.ToChunk()
		if bcpos != cpos {
			continue
		}
		record, err := persistence.EncodePixelBodyRecord(b, [2]float32{pose.Position[0], pose.Position[1]}, pose.Rotation)
		if err != nil {
			log.Printf("pixelworld: encode body %d on unload: %v", id, err)
			e.DespawnBody(id)
			continue
		}
		e.Io.SaveBody(uint64(id), record, uint16(b.Width), uint16(b.Height))
		e.DespawnBody(id)
	}
}

// SpawnBody registers a new pixel body under a freshly assigned stable id.
// Its pose is seeded from whatever transform it already carries (e.g. a
// split fragment's computed pose), so it blits correctly even on a tick
// where the host's transforms map doesn't know about the new id yet.
func (e *Engine) SpawnBody(b *pixelbody.PixelBody) pixelbody.StableID {
	e.nextBodyID++
	id := e.nextBodyID
	b.StableID = id
	e.Bodies[id] = b
	e.bodyOrder = append(e.bodyOrder, id)
	e.lastPose[id] = b.LastPose()
	return id
}

// DespawnBody drops a body from the live roster without persisting it.
func (e *Engine) DespawnBody(id pixelbody.StableID) {
	delete(e.Bodies, id)
	delete(e.lastPose, id)
	e.Submergence.Forget(id)
	for i, bid := range e.bodyOrder {
		if bid == id {
			e.bodyOrder = append(e.bodyOrder[:i], e.bodyOrder[i+1:]...)
			break
		}
	}
}

// LoadBody rematerializes a previously unloaded body from its persisted
// record and registers it as live again. The host is responsible for
// knowing which stable ids to ask for — the on-disk index is keyed by
// stable id only, not by position, so Engine cannot discover "every body
// that was in this chunk" on its own (see DESIGN.md). A corrupt record
// (failed CRC8) is logged and treated as absent rather than returned as an
// error, matching how a missing/never-saved body is also just absent.
func (e *Engine) LoadBody(stableID uint64) (*pixelbody.PixelBody, error) {
	raw, err := e.Save.LoadPixelBody(stableID)
	if err != nil {
		return nil, err
	}
	b, pos, rotation, err := persistence.DecodePixelBodyRecord(raw)
	if errors.Is(err, persistence.ErrBodyRecordCorrupt) {
		log.Printf("pixelworld: body %d record failed CRC8, dropping", stableID)
		e.Io.DeleteBody(stableID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Bodies[b.StableID] = b
	e.bodyOrder = append(e.bodyOrder, b.StableID)
	e.lastPose[b.StableID] = pixelbody.Transform{Position: mgl32.Vec2{pos[0], pos[1]}, Rotation: rotation}
	if b.StableID >= e.nextBodyID {
		e.nextBodyID = b.StableID
	}
	e.Io.DeleteBody(stableID)
	return b, nil
}

// blitBodies erases every body's last-tick footprint, then re-blits each
// under this tick's transform (spec.md §4.5 steps 1-3).
func (e *Engine) blitBodies(canvas *scheduler.Canvas, transforms map[pixelbody.StableID]pixelbody.Transform) {
	defer profiling.Track("pixelbody.Blit")()
	for _, id := range e.bodyOrder {
		pixelbody.Erase(canvas, e.Bodies[id])
	}
	for _, id := range e.bodyOrder {
		t, ok := transforms[id]
		if !ok {
			t = e.lastPose[id]
		}
		e.lastPose[id] = t
		pixelbody.Blit(canvas, e.Bodies[id], t)
	}
}

// readbackBodies samples what the CA phase did to each body's footprint,
// despawning any body the phase emptied out, and samples submergence
// (spec.md §4.5 step 4, §6 events).
func (e *Engine) readbackBodies(canvas *scheduler.Canvas) {
	defer profiling.Track("pixelbody.Readback")()
	var despawn []pixelbody.StableID
	for _, id := range e.bodyOrder {
		b := e.Bodies[id]
		if pixelbody.Readback(canvas, b) {
			despawn = append(despawn, id)
			continue
		}
		e.Events = append(e.Events, e.Submergence.Sample(canvas, b, e.Registry)...)
	}
	for _, id := range despawn {
		e.Submergence.Forget(id)
		e.DespawnBody(id)
	}
}

// splitBodies runs connectivity analysis over every live body, fragmenting
// any that have disconnected since the last tick (spec.md §4.5 step 5).
func (e *Engine) splitBodies() {
	defer profiling.Track("pixelbody.Split")()
	for _, id := range append([]pixelbody.StableID(nil), e.bodyOrder...) {
		b, ok := e.Bodies[id]
		if !ok {
			continue
		}
		fragments, despawn := pixelbody.Split(b)
		if despawn {
			e.DespawnBody(id)
			continue
		}
		if fragments == nil {
			continue
		}
		e.DespawnBody(id)
		for _, frag := range fragments {
			e.SpawnBody(frag)
		}
	}
}

// runCollision invalidates every collision-dirty tile, extracts its binary
// grid, and dispatches regeneration; then drains whatever jobs the
// dispatcher has finished since the last call (spec.md §4.7).
func (e *Engine) runCollision(snapshot map[coords.ChunkPos]*world.Chunk) {
	defer profiling.Track("collision.Dispatch")()
	for _, tile := range collision.DirtyTiles(snapshot) {
		e.CollisionCache.Invalidate(tile)
		grid := collision.ExtractTileGrid(e.World, tile, e.Registry)
		e.CollisionDispatcher.Dispatch(tile, grid, e.CollisionTolerance)
		collision.ClearTileDirty(snapshot, tile)
	}
	e.CollisionDispatcher.Poll()
}

// flushPersistenceQueue periodically rewrites the save file's page table
// and header so accumulated SaveChunk/SavePixelBody calls become durable,
// without paying an fsync every tick.
func (e *Engine) flushPersistenceQueue() {
	if e.ticksToFlush > 0 {
		e.ticksToFlush--
		return
	}
	e.ticksToFlush = e.ticksPerFlush
	select {
	case res := <-e.Io.Flush(time.Now().Unix()):
		if res.Err != nil {
			log.Printf("pixelworld: periodic flush failed: %v", res.Err)
		}
	default:
	}
}

// BlastAction is the decision a Blast hit-callback makes for one non-void
// pixel a ray encounters (spec.md §4.1/§6).
type BlastAction int

const (
	// BlastSkip lets the ray pass through the pixel untouched and un-costed.
	BlastSkip BlastAction = iota
	// BlastStop ends the ray at this pixel without mutating it.
	BlastStop
	// BlastApplyHit replaces the pixel and spends Cost of the ray's energy.
	BlastApplyHit
)

// BlastHit is what a hit-callback returns for one pixel a blast ray
// encounters.
type BlastHit struct {
	Action      BlastAction
	Replacement pixel.Pixel
	Cost        float32
}

// BlastParams configures a single radial blast.
type BlastParams struct {
	Center     coords.WorldPos
	Strength   float32
	MaxRadius  float32
	HeatRadius float32
}

type blastMutation struct {
	pos coords.WorldPos
	p   pixel.Pixel
}

// Blast casts rays outward from Center in every direction, collecting
// mutations in parallel (phase 1), then applies them grouped by chunk,
// chunks in parallel (phase 2), and finally deposits heat and wakes the
// boundary ring so settled material resumes falling (spec.md §4.1).
func (e *Engine) Blast(params BlastParams, hit func(p pixel.Pixel, pos coords.WorldPos) BlastHit) {
	defer profiling.Track("engine.Blast")()
	canvas := scheduler.NewCanvas(e.World.ActiveSnapshot())

	rayCount := blastRayCount(params.MaxRadius)
	perRay := make([][]blastMutation, rayCount)

	var wg sync.WaitGroup
	wg.Add(rayCount)
	for i := 0; i < rayCount; i++ {
		go func(i int) {
			defer wg.Done()
			angle := 2 * math.Pi * float64(i) / float64(rayCount)
			perRay[i] = castBlastRay(canvas, params, angle, hit)
		}(i)
	}
	wg.Wait()

	byChunk := make(map[coords.ChunkPos][]blastMutation)
	for _, muts := range perRay {
		for _, m := range muts {
			cpos, _ := m.pos.ToChunk()
			byChunk[cpos] = append(byChunk[cpos], m)
		}
	}

	var applyWg sync.WaitGroup
	applyWg.Add(len(byChunk))
	for _, muts := range byChunk {
		go func(muts []blastMutation) {
			defer applyWg.Done()
			for _, m := range muts {
				if canvas.Set(m.pos, m.p) {
					canvas.MarkCollisionDirty(m.pos)
				}
			}
		}(muts)
	}
	applyWg.Wait()

	applyBlastHeat(canvas, params)
	wakeBlastRing(canvas, params)
}

func blastRayCount(maxRadius float32) int {
	n := int(2 * math.Pi * float64(maxRadius))
	if n < 16 {
		n = 16
	}
	return n
}

// castBlastRay walks outward from params.Center at the given angle, one
// pixel at a time, until the ray's energy is spent or it exits MaxRadius.
func castBlastRay(canvas *scheduler.Canvas, params BlastParams, angle float64, hit func(pixel.Pixel, coords.WorldPos) BlastHit) []blastMutation {
	dir := mgl32.Vec2{float32(math.Cos(angle)), float32(math.Sin(angle))}
	energy := params.Strength
	steps := int(params.MaxRadius) + 1

	var mutations []blastMutation
	for step := 1; step <= steps; step++ {
		if energy <= 0 {
			break
		}
		fx := float32(params.Center.X) + dir[0]*float32(step)
		fy := float32(params.Center.Y) + dir[1]*float32(step)
		pos := coords.WorldPos{X: int64(math.Round(float64(fx))), Y: int64(math.Round(float64(fy)))}

		p, ok := canvas.Get(pos)
		if !ok || p.IsVoid() {
			continue
		}

		outcome := hit(p, pos)
		switch outcome.Action {
		case BlastSkip:
			continue
		case BlastStop:
			return mutations
		case BlastApplyHit:
			mutations = append(mutations, blastMutation{pos: pos, p: outcome.Replacement})
			energy -= outcome.Cost
		}
	}
	return mutations
}

// applyBlastHeat deposits falloff heat into every heat cell within
// params.HeatRadius of the blast center.
func applyBlastHeat(canvas *scheduler.Canvas, params BlastParams) {
	if params.HeatRadius <= 0 {
		return
	}
	const heatCellSize = coords.ChunkSize / world.HeatGridSize
	r := int64(params.HeatRadius)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			dist := mgl32.Vec2{float32(dx), float32(dy)}.Len()
			if dist > params.HeatRadius {
				continue
			}
			pos := coords.WorldPos{X: params.Center.X + dx, Y: params.Center.Y + dy}
			cpos, local := pos.ToChunk()
			ch, ok := canvas.ChunkAt(cpos)
			if !ok {
				continue
			}
			hx, hy := int(local.X)/heatCellSize, int(local.Y)/heatCellSize
			idx := hy*world.HeatGridSize + hx
			falloff := 1 - dist/params.HeatRadius
			heat := uint8(255 * falloff)
			if heat > ch.HeatGrid[idx] {
				ch.HeatGrid[idx] = heat
				ch.HeatActive[idx] = true
			}
		}
	}
}

// wakeBlastRing wakes a ring of pixels just past the blast radius so any
// material that was resting on now-destroyed support resumes falling.
func wakeBlastRing(canvas *scheduler.Canvas, params BlastParams) {
	n := blastRayCount(params.MaxRadius)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		for _, rr := range [2]float32{params.MaxRadius, params.MaxRadius + 1} {
			fx := float32(params.Center.X) + float32(math.Cos(angle))*rr
			fy := float32(params.Center.Y) + float32(math.Sin(angle))*rr
			pos := coords.WorldPos{X: int64(math.Round(float64(fx))), Y: int64(math.Round(float64(fy)))}
			canvas.Wake(pos)
		}
	}
}
