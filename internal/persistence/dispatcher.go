package persistence

import (
	"errors"
	"log"
	"runtime"
	"sync"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/world"
)

// errQueueFull is returned when the dispatcher's job channel is saturated.
var errQueueFull = errors.New("persistence: dispatcher queue full")

// ioJobKind distinguishes the work items IoDispatcher's workers pull off the
// job channel.
type ioJobKind int

const (
	jobSaveChunk ioJobKind = iota
	jobLoadChunk
	jobFlush
	jobSaveBody
	jobDeleteBody
)

// ChunkLoadResult is delivered on a Load call's reply channel.
type ChunkLoadResult struct {
	Pos   coords.ChunkPos
	Chunk *world.Chunk
	Err   error
}

// FlushResult is delivered on a Flush call's reply channel.
type FlushResult struct {
	Err error
}

type ioJob struct {
	kind  ioJobKind
	pos   coords.ChunkPos
	chunk *world.Chunk

	loadReply  chan<- ChunkLoadResult
	flushReply chan<- FlushResult
	modifiedAt int64

	stableID      uint64
	record        []byte
	width, height uint16
}

// IoDispatcher runs a small worker pool over a shared WorldSave, so the
// simulation tick never blocks on disk: SaveChunk/SaveBody/DeleteBody
// enqueue and return immediately, LoadChunk/Flush return a reply channel the
// caller polls at its convenience, matching the teacher's ChunkStreamer
// worker-pool idiom. Chunk saves and loads, body saves and deletes, and
// flushes go through here. Not every WorldSave call does: the engine calls
// Has, SetBaseline and ForgetBaseline directly from Tick while streaming and
// seeding, and Engine.LoadBody calls LoadPixelBody synchronously.
type IoDispatcher struct {
	save *WorldSave

	jobs          chan ioJob
	pending       map[coords.ChunkPos]struct{}
	pendingBodies map[uint64]struct{}
	pendingMu     sync.Mutex
	maxPending    int

	wg sync.WaitGroup
}

// NewIoDispatcher starts a dispatcher backed by save, with one worker
// goroutine per CPU.
func NewIoDispatcher(save *WorldSave) *IoDispatcher {
	d := &IoDispatcher{
		save:          save,
		jobs:          make(chan ioJob, 1024),
		pending:       make(map[coords.ChunkPos]struct{}),
		pendingBodies: make(map[uint64]struct{}),
		maxPending:    8192,
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

// Close stops accepting new work and waits for in-flight jobs to finish.
// Callers should Flush before Close to make sure outstanding saves land.
func (d *IoDispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}

func (d *IoDispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		switch job.kind {
		case jobSaveChunk:
			if err := d.save.SaveChunk(job.pos, job.chunk); err != nil {
				log.Printf("pixelworld: save chunk (%d,%d) failed: %v", job.pos.X, job.pos.Y, err)
			}
			d.pendingMu.Lock()
			delete(d.pending, job.pos)
			d.pendingMu.Unlock()
		case jobLoadChunk:
			chunk, err := d.save.LoadChunk(job.pos)
			job.loadReply <- ChunkLoadResult{Pos: job.pos, Chunk: chunk, Err: err}
		case jobFlush:
			err := d.save.Flush(job.modifiedAt)
			job.flushReply <- FlushResult{Err: err}
		case jobSaveBody:
			if err := d.save.SavePixelBody(job.stableID, job.record, job.width, job.height); err != nil {
				log.Printf("pixelworld: save pixel body %d failed: %v", job.stableID, err)
			}
			d.pendingMu.Lock()
			delete(d.pendingBodies, job.stableID)
			d.pendingMu.Unlock()
		case jobDeleteBody:
			d.save.DeletePixelBody(job.stableID)
		}
	}
}

// SaveChunk enqueues a chunk for background saving. It is a no-op if the
// same position already has a save in flight — the in-flight save will pick
// up whatever state the chunk is in when its turn comes, so a second
// request for the identical position adds nothing.
func (d *IoDispatcher) SaveChunk(pos coords.ChunkPos, chunk *world.Chunk) bool {
	d.pendingMu.Lock()
	if _, inFlight := d.pending[pos]; inFlight {
		d.pendingMu.Unlock()
		return false
	}
	d.pending[pos] = struct{}{}
	d.pendingMu.Unlock()

	snapshot := *chunk
	select {
	case d.jobs <- ioJob{kind: jobSaveChunk, pos: pos, chunk: &snapshot}:
		return true
	default:
		d.pendingMu.Lock()
		delete(d.pending, pos)
		d.pendingMu.Unlock()
		return false
	}
}

// LoadChunk enqueues a background load and returns a channel the caller
// receives exactly one ChunkLoadResult from.
func (d *IoDispatcher) LoadChunk(pos coords.ChunkPos) <-chan ChunkLoadResult {
	reply := make(chan ChunkLoadResult, 1)
	select {
	case d.jobs <- ioJob{kind: jobLoadChunk, pos: pos, loadReply: reply}:
	default:
		reply <- ChunkLoadResult{Pos: pos, Err: &LoadError{Pos: pos, Reason: "dispatcher queue full"}}
	}
	return reply
}

// SaveBody enqueues a pixel body's already-encoded record for background
// saving. It is a no-op if the same stable id already has a save in flight,
// mirroring SaveChunk's in-flight dedup.
func (d *IoDispatcher) SaveBody(stableID uint64, record []byte, width, height uint16) bool {
	d.pendingMu.Lock()
	if _, inFlight := d.pendingBodies[stableID]; inFlight {
		d.pendingMu.Unlock()
		return false
	}
	d.pendingBodies[stableID] = struct{}{}
	d.pendingMu.Unlock()

	select {
	case d.jobs <- ioJob{kind: jobSaveBody, stableID: stableID, record: record, width: width, height: height}:
		return true
	default:
		d.pendingMu.Lock()
		delete(d.pendingBodies, stableID)
		d.pendingMu.Unlock()
		return false
	}
}

// DeleteBody enqueues a background removal of a pixel body's index entry.
func (d *IoDispatcher) DeleteBody(stableID uint64) bool {
	select {
	case d.jobs <- ioJob{kind: jobDeleteBody, stableID: stableID}:
		return true
	default:
		return false
	}
}

// Flush enqueues a page-table/header flush and returns a channel the caller
// receives exactly one FlushResult from.
func (d *IoDispatcher) Flush(modifiedAt int64) <-chan FlushResult {
	reply := make(chan FlushResult, 1)
	select {
	case d.jobs <- ioJob{kind: jobFlush, flushReply: reply, modifiedAt: modifiedAt}:
	default:
		reply <- FlushResult{Err: errQueueFull}
	}
	return reply
}
