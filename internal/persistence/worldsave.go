package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/world"
)

// OpenError reports why an existing save file could not be opened.
type OpenError struct {
	Path   string
	Reason string
	Err    error
}

func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persistence: open %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("persistence: open %s: %s", e.Path, e.Reason)
}

func (e *OpenError) Unwrap() error { return e.Err }

// LoadError reports why a chunk's payload could not be loaded from an
// otherwise-healthy save file.
type LoadError struct {
	Pos    coords.ChunkPos
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("persistence: load chunk (%d,%d): %s", e.Pos.X, e.Pos.Y, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// WorldSave owns one on-disk save file: the header, the chunk index, the
// pixel-body index, and the append-only data region backing both. All
// exported methods are safe to call concurrently; callers needing
// tick-thread isolation should go through an IoDispatcher instead of calling
// WorldSave directly from the simulation goroutine.
type WorldSave struct {
	mu sync.Mutex

	path   string
	file   *os.File
	header Header

	chunkIndex     *ChunkIndex
	pixelBodyIndex *PixelBodyIndex

	// dataEnd is the current append cursor: the byte offset one past the
	// last written payload.
	dataEnd uint64
	// seeded holds each active chunk's freshly-seeded baseline, used to
	// compute delta records; populated by the caller via SetBaseline.
	seeded map[coords.ChunkPos]*world.Chunk
}

// Create makes a brand-new save file at path, truncating any existing file.
func Create(path string, worldSeed int64, createdAt int64) (*WorldSave, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &OpenError{Path: path, Reason: "create", Err: err}
	}
	ws := &WorldSave{
		path:           path,
		file:           f,
		header:         NewHeader(worldSeed, createdAt),
		chunkIndex:     NewChunkIndex(),
		pixelBodyIndex: NewPixelBodyIndex(),
		dataEnd:        HeaderSize,
		seeded:         make(map[coords.ChunkPos]*world.Chunk),
	}
	if err := ws.writeHeader(); err != nil {
		f.Close()
		return nil, &OpenError{Path: path, Reason: "write header", Err: err}
	}
	return ws, nil
}

// Open opens an existing save file, reading its header and page table into
// memory. A corrupt page-table entry is dropped rather than failing the
// open (spec.md §7); corrupt entries are returned alongside the save so the
// caller can log them.
func Open(path string) (ws *WorldSave, corrupt []PageTableEntry, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, &OpenError{Path: path, Reason: "open", Err: err}
	}
	h, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, nil, &OpenError{Path: path, Reason: "read header", Err: err}
	}
	if err := h.Validate(); err != nil {
		f.Close()
		return nil, nil, &OpenError{Path: path, Reason: "validate header", Err: err}
	}

	if _, err := f.Seek(int64(pageTableOffset(h)), io.SeekStart); err != nil {
		f.Close()
		return nil, nil, &OpenError{Path: path, Reason: "seek page table", Err: err}
	}
	idx, corrupt, err := ReadChunkIndex(f, h.ChunkCount)
	if err != nil {
		f.Close()
		return nil, nil, &OpenError{Path: path, Reason: "read page table", Err: err}
	}

	ws = &WorldSave{
		path:           path,
		file:           f,
		header:         h,
		chunkIndex:     idx,
		pixelBodyIndex: NewPixelBodyIndex(),
		dataEnd:        h.DataRegionPtr,
		seeded:         make(map[coords.ChunkPos]*world.Chunk),
	}
	for _, e := range idx.Sorted() {
		end := e.DataOffset + uint64(e.DataSize)
		if end > ws.dataEnd {
			ws.dataEnd = end
		}
	}
	return ws, corrupt, nil
}

// OpenOrCreate opens path if it exists, otherwise creates a fresh save file.
func OpenOrCreate(path string, worldSeed int64, createdAt int64) (*WorldSave, []PageTableEntry, error) {
	if _, err := os.Stat(path); err == nil {
		return Open(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, &OpenError{Path: path, Reason: "stat", Err: err}
	}
	ws, err := Create(path, worldSeed, createdAt)
	return ws, nil, err
}

// pageTableOffset returns where the page table begins. The data region
// always starts right after the header at HeaderSize; DataRegionPtr is
// rewritten on every Flush to point past the last chunk payload, which is
// exactly where the page table was written.
func pageTableOffset(h Header) uint64 {
	return h.DataRegionPtr
}

// SetBaseline records a chunk's freshly seeded pixel state, the reference
// point SaveChunk diffs against to build a Delta record. Call once right
// after a chunk finishes seeding.
func (ws *WorldSave) SetBaseline(pos coords.ChunkPos, chunk *world.Chunk) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	baseline := *chunk
	ws.seeded[pos] = &baseline
}

// ForgetBaseline drops a chunk's baseline when it leaves the active window,
// since the save already reflects its last-saved state from then on.
func (ws *WorldSave) ForgetBaseline(pos coords.ChunkPos) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.seeded, pos)
}

// isEmptyChunk reports whether every pixel is Void, letting SaveChunk write
// an Empty record (zero-byte payload) instead of wasting space on a Delta
// or Full record for a chunk nobody touched.
func isEmptyChunk(chunk *world.Chunk) bool {
	for _, p := range chunk.Pixels {
		if !p.IsVoid() {
			return false
		}
	}
	return true
}

// SaveChunk appends chunk's current payload to the data region and updates
// its page-table entry in memory. It does not touch disk beyond the append;
// call Flush to persist the header and page table.
func (ws *WorldSave) SaveChunk(pos coords.ChunkPos, chunk *world.Chunk) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	var payload []byte
	storageType := StorageFull
	switch {
	case isEmptyChunk(chunk):
		storageType = StorageEmpty
	default:
		fullEncoded, err := encodeFullPayload(chunk)
		if err != nil {
			return err
		}
		storageType = StorageFull
		payload = fullEncoded

		// Delta only wins if it's both within the pixel-count threshold and
		// actually smaller than the Full record it would replace.
		if baseline, ok := ws.seeded[pos]; ok {
			if entries, within := buildDelta(chunk, baseline); within {
				if deltaEncoded := encodeDeltaPayload(entries); len(deltaEncoded) < len(fullEncoded) {
					storageType = StorageDelta
					payload = deltaEncoded
				}
			}
		}
	}

	offset := ws.dataEnd
	if len(payload) > 0 {
		if _, err := ws.file.WriteAt(prefixedWithLength(payload), int64(offset)); err != nil {
			return fmt.Errorf("persistence: write chunk payload: %w", err)
		}
		ws.dataEnd += uint64(4 + len(payload))
	}

	entry := NewPageTableEntry(pos, offset, uint32(len(payload)), storageType)
	ws.chunkIndex.Put(entry)
	return nil
}

// prefixedWithLength prepends a little-endian u32 length to payload.
func prefixedWithLength(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// LoadChunk reads a chunk's payload back from disk and reconstructs it. For
// an Empty record it returns a freshly reset chunk; for Delta it requires a
// registered baseline (via SetBaseline, typically from re-running the
// seeder for that position first).
func (ws *WorldSave) LoadChunk(pos coords.ChunkPos) (*world.Chunk, error) {
	ws.mu.Lock()
	entry, ok := ws.chunkIndex.Get(pos)
	ws.mu.Unlock()
	if !ok {
		return nil, &LoadError{Pos: pos, Reason: "not indexed"}
	}
	if !entry.ValidateChecksum() {
		return nil, &LoadError{Pos: pos, Reason: "checksum mismatch"}
	}

	switch entry.StorageType {
	case StorageEmpty:
		chunk := &world.Chunk{}
		chunk.Reset()
		return chunk, nil
	case StorageDelta, StorageFull:
		lengthBuf := make([]byte, 4)
		if _, err := ws.file.ReadAt(lengthBuf, int64(entry.DataOffset)); err != nil {
			return nil, &LoadError{Pos: pos, Reason: "read length prefix", Err: err}
		}
		size := binary.LittleEndian.Uint32(lengthBuf)
		if size != entry.DataSize {
			return nil, &LoadError{Pos: pos, Reason: "size prefix mismatch"}
		}
		payload := make([]byte, size)
		if _, err := ws.file.ReadAt(payload, int64(entry.DataOffset)+4); err != nil {
			return nil, &LoadError{Pos: pos, Reason: "read payload", Err: err}
		}
		if entry.StorageType == StorageFull {
			chunk, err := decodeFullPayload(payload)
			if err != nil {
				return nil, &LoadError{Pos: pos, Reason: "decode full payload", Err: err}
			}
			return chunk, nil
		}
		ws.mu.Lock()
		baseline, hasBaseline := ws.seeded[pos]
		ws.mu.Unlock()
		if !hasBaseline {
			return nil, &LoadError{Pos: pos, Reason: "delta record with no baseline; re-seed before loading"}
		}
		chunk, err := decodeDeltaPayload(payload, baseline)
		if err != nil {
			return nil, &LoadError{Pos: pos, Reason: "decode delta payload", Err: err}
		}
		return chunk, nil
	default:
		return nil, &LoadError{Pos: pos, Reason: fmt.Sprintf("unknown storage type %d", entry.StorageType)}
	}
}

// Has reports whether pos has ever been saved.
func (ws *WorldSave) Has(pos coords.ChunkPos) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	_, ok := ws.chunkIndex.Get(pos)
	return ok
}

// SavePixelBody appends a pixel-body record and updates its index entry.
func (ws *WorldSave) SavePixelBody(stableID uint64, record []byte, width, height uint16) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	offset := ws.dataEnd
	if _, err := ws.file.WriteAt(prefixedWithLength(record), int64(offset)); err != nil {
		return fmt.Errorf("persistence: write pixel body record: %w", err)
	}
	ws.dataEnd += uint64(4 + len(record))
	ws.pixelBodyIndex.Put(PixelBodyIndexEntry{
		StableID: stableID, DataOffset: offset, DataSize: uint32(len(record)),
		Width: width, Height: height,
	})
	return nil
}

// LoadPixelBody reads back a previously saved pixel-body record's raw bytes.
func (ws *WorldSave) LoadPixelBody(stableID uint64) ([]byte, error) {
	ws.mu.Lock()
	entry, ok := ws.pixelBodyIndex.Get(stableID)
	ws.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("persistence: pixel body %d not indexed", stableID)
	}
	lengthBuf := make([]byte, 4)
	if _, err := ws.file.ReadAt(lengthBuf, int64(entry.DataOffset)); err != nil {
		return nil, fmt.Errorf("persistence: read pixel body length: %w", err)
	}
	size := binary.LittleEndian.Uint32(lengthBuf)
	payload := make([]byte, size)
	if _, err := ws.file.ReadAt(payload, int64(entry.DataOffset)+4); err != nil {
		return nil, fmt.Errorf("persistence: read pixel body payload: %w", err)
	}
	return payload, nil
}

// DeletePixelBody removes a despawned body's index entry; its bytes remain
// as unreferenced garbage in the data region until the next full compaction
// (compaction is out of scope, matching the reference implementation).
func (ws *WorldSave) DeletePixelBody(stableID uint64) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.pixelBodyIndex.Delete(stableID)
}

// Flush rewrites the page table and header, making every SaveChunk/
// SavePixelBody call since the last Flush durable. modifiedAt is a
// Unix-seconds timestamp supplied by the caller.
func (ws *WorldSave) Flush(modifiedAt int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	pageTableStart := ws.dataEnd
	if _, err := ws.file.Seek(int64(pageTableStart), io.SeekStart); err != nil {
		return fmt.Errorf("persistence: seek page table: %w", err)
	}
	if err := ws.chunkIndex.WriteTo(ws.file); err != nil {
		return fmt.Errorf("persistence: write page table: %w", err)
	}

	ws.header.ChunkCount = uint32(ws.chunkIndex.Len())
	ws.header.PageTableSize = uint32(ws.chunkIndex.Len() * PageTableEntrySize)
	ws.header.DataRegionPtr = pageTableStart
	ws.header.ModifiedTime = uint64(modifiedAt)

	if err := ws.writeHeader(); err != nil {
		return fmt.Errorf("persistence: write header: %w", err)
	}
	return ws.file.Sync()
}

func (ws *WorldSave) writeHeader() error {
	if _, err := ws.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return ws.header.WriteTo(ws.file)
}

// Close flushes pending data is NOT implied; callers must call Flush
// explicitly before Close to avoid losing unflushed writes.
func (ws *WorldSave) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.file.Close()
}

// CopyTo duplicates the entire save file to destPath, then atomically
// retargets every subsequent SaveChunk/SavePixelBody/Flush call at ws to the
// new file — ws.path/ws.file are swapped under the same lock that guards
// every other WorldSave operation, so no writer ever observes a half-moved
// file. This matches the reference's PersistenceControl::copy_to, which
// swaps its world_save backend rather than leaving the original file as the
// write target (spec.md §4.3's Copy-on-Save).
func (ws *WorldSave) CopyTo(destPath string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if err := ws.file.Sync(); err != nil {
		return fmt.Errorf("persistence: sync before copy: %w", err)
	}
	src, err := os.Open(ws.path)
	if err != nil {
		return fmt.Errorf("persistence: reopen for copy: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("persistence: create copy destination: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("persistence: copy save file: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return fmt.Errorf("persistence: sync copy destination: %w", err)
	}

	old := ws.file
	ws.file = dst
	ws.path = destPath
	if err := old.Close(); err != nil {
		return fmt.Errorf("persistence: close previous save file: %w", err)
	}
	return nil
}
