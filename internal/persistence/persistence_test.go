package persistence

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/pixelbody"
	"github.com/api-haus/pixelworld/internal/world"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(42, 1_700_000_000)
	h.ChunkCount = 7
	h.PageTableSize = 7 * PageTableEntrySize

	var buf bytes.Buffer
	if err := h.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, buf.Len())
	}

	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestHeaderValidateRejectsBadMagic(t *testing.T) {
	h := NewHeader(1, 0)
	h.Magic = 0xDEADBEEF
	if err := h.Validate(); err == nil {
		t.Fatalf("expected validation error for bad magic")
	}
}

func TestPageTableEntryRoundTrip(t *testing.T) {
	e := NewPageTableEntry(coords.ChunkPos{X: -3, Y: 5}, 128, 4096, StorageFull)

	var buf bytes.Buffer
	if err := e.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.Len() != PageTableEntrySize {
		t.Fatalf("expected %d bytes, got %d", PageTableEntrySize, buf.Len())
	}

	got, err := ReadPageTableEntry(&buf)
	if err != nil {
		t.Fatalf("ReadPageTableEntry: %v", err)
	}
	if got != e {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, e)
	}
	if !got.ValidateChecksum() {
		t.Fatalf("expected checksum to validate")
	}
}

func TestPageTableEntryChecksumDetectsCorruption(t *testing.T) {
	e := NewPageTableEntry(coords.ChunkPos{X: 1, Y: 1}, 0, 100, StorageDelta)
	e.DataSize = 999 // corrupt a field after the checksum was computed
	if e.ValidateChecksum() {
		t.Fatalf("expected checksum mismatch after corrupting DataSize")
	}
}

func TestChunkIndexRoundTrip(t *testing.T) {
	idx := NewChunkIndex()
	idx.Put(NewPageTableEntry(coords.ChunkPos{X: 2, Y: -1}, 64, 10, StorageDelta))
	idx.Put(NewPageTableEntry(coords.ChunkPos{X: -1, Y: -1}, 74, 20, StorageFull))
	idx.Put(NewPageTableEntry(coords.ChunkPos{X: 0, Y: 0}, 94, 0, StorageEmpty))

	var buf bytes.Buffer
	if err := idx.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, corrupt, err := ReadChunkIndex(&buf, uint32(idx.Len()))
	if err != nil {
		t.Fatalf("ReadChunkIndex: %v", err)
	}
	if len(corrupt) != 0 {
		t.Fatalf("expected no corrupt entries, got %d", len(corrupt))
	}
	if got.Len() != idx.Len() {
		t.Fatalf("expected %d entries, got %d", idx.Len(), got.Len())
	}
	for _, want := range idx.Sorted() {
		entry, ok := got.Get(want.Pos())
		if !ok || entry != want {
			t.Fatalf("entry mismatch for %v: got %+v want %+v", want.Pos(), entry, want)
		}
	}
}

func TestChunkIndexSortedOrder(t *testing.T) {
	idx := NewChunkIndex()
	idx.Put(NewPageTableEntry(coords.ChunkPos{X: 5, Y: 0}, 0, 0, StorageEmpty))
	idx.Put(NewPageTableEntry(coords.ChunkPos{X: -5, Y: 0}, 0, 0, StorageEmpty))
	idx.Put(NewPageTableEntry(coords.ChunkPos{X: 0, Y: -1}, 0, 0, StorageEmpty))

	sorted := idx.Sorted()
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.ChunkY > cur.ChunkY || (prev.ChunkY == cur.ChunkY && prev.ChunkX > cur.ChunkX) {
			t.Fatalf("entries not sorted by (Y, X): %+v before %+v", prev, cur)
		}
	}
}

func TestPixelBodyRecordRoundTrip(t *testing.T) {
	body := pixelBodyForTest()
	buf, err := EncodePixelBodyRecord(body, [2]float32{12.5, -3.25}, 0.75)
	if err != nil {
		t.Fatalf("EncodePixelBodyRecord: %v", err)
	}

	got, pos, rotation, err := DecodePixelBodyRecord(buf)
	if err != nil {
		t.Fatalf("DecodePixelBodyRecord: %v", err)
	}
	if pos != [2]float32{12.5, -3.25} || rotation != 0.75 {
		t.Fatalf("pose mismatch: pos=%v rotation=%v", pos, rotation)
	}
	if got.Width != body.Width || got.Height != body.Height {
		t.Fatalf("dimension mismatch: got %dx%d want %dx%d", got.Width, got.Height, body.Width, body.Height)
	}
	for i := range body.ShapeMask {
		if got.ShapeMask[i] != body.ShapeMask[i] {
			t.Fatalf("shape mask mismatch at %d", i)
		}
		if got.ShapeMask[i] && got.Surface[i] != body.Surface[i] {
			t.Fatalf("surface pixel mismatch at %d: got %+v want %+v", i, got.Surface[i], body.Surface[i])
		}
	}
	if got.LinearVelocity != body.LinearVelocity || got.AngularVelocity != body.AngularVelocity {
		t.Fatalf("velocity mismatch: got %+v/%f want %+v/%f",
			got.LinearVelocity, got.AngularVelocity, body.LinearVelocity, body.AngularVelocity)
	}
}

func TestPixelBodyRecordHeaderDetectsCorruption(t *testing.T) {
	body := pixelBodyForTest()
	buf, err := EncodePixelBodyRecord(body, [2]float32{1, 2}, 0)
	if err != nil {
		t.Fatalf("EncodePixelBodyRecord: %v", err)
	}
	buf[0] ^= 0xFF // flip a byte inside the header, after its CRC8 was computed

	if _, _, _, err := DecodePixelBodyRecord(buf); !errors.Is(err, ErrBodyRecordCorrupt) {
		t.Fatalf("expected ErrBodyRecordCorrupt, got %v", err)
	}
}

func TestSaveChunkAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.pxw")

	ws, err := Create(path, 99, 1_700_000_000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	pos := coords.ChunkPos{X: 3, Y: -2}
	chunk := &world.Chunk{}
	chunk.Reset()
	chunk.Set(coords.LocalPos{X: 10, Y: 20}, pixel.Pixel{Material: 1, Color: 200})
	chunk.Set(coords.LocalPos{X: 11, Y: 20}, pixel.Pixel{Material: 1, Color: 201})

	ws.SetBaseline(pos, &world.Chunk{})
	if err := ws.SaveChunk(pos, chunk); err != nil {
		t.Fatalf("SaveChunk: %v", err)
	}
	if err := ws.Flush(1_700_000_100); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, corrupt, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	if len(corrupt) != 0 {
		t.Fatalf("expected no corrupt entries, got %d", len(corrupt))
	}
	if !reopened.Has(pos) {
		t.Fatalf("expected reopened save to have chunk %v", pos)
	}

	reopened.SetBaseline(pos, &world.Chunk{})
	loaded, err := reopened.LoadChunk(pos)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	if loaded.Get(coords.LocalPos{X: 10, Y: 20}) != (pixel.Pixel{Material: 1, Color: 200}) {
		t.Fatalf("pixel mismatch after reopen: got %+v", loaded.Get(coords.LocalPos{X: 10, Y: 20}))
	}
}

func TestSaveEmptyChunkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.pxw")

	ws, err := Create(path, 1, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ws.Close()

	pos := coords.ChunkPos{X: 0, Y: 0}
	chunk := &world.Chunk{}
	chunk.Reset()
	if err := ws.SaveChunk(pos, chunk); err != nil {
		t.Fatalf("SaveChunk: %v", err)
	}
	if err := ws.Flush(0); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	loaded, err := ws.LoadChunk(pos)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	for _, p := range loaded.Pixels {
		if !p.IsVoid() {
			t.Fatalf("expected all-void chunk, found %+v", p)
		}
	}
}

func TestCopyToRetargetsSubsequentWrites(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "world.pxw")
	destPath := filepath.Join(dir, "copy.pxw")

	ws, err := Create(srcPath, 1, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ws.Close()

	if err := ws.CopyTo(destPath); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}

	pos := coords.ChunkPos{X: 4, Y: 4}
	chunk := &world.Chunk{}
	chunk.Reset()
	chunk.Set(coords.LocalPos{X: 0, Y: 0}, pixel.Pixel{Material: 1, Color: 42})
	if err := ws.SaveChunk(pos, chunk); err != nil {
		t.Fatalf("SaveChunk after CopyTo: %v", err)
	}
	if err := ws.Flush(1); err != nil {
		t.Fatalf("Flush after CopyTo: %v", err)
	}

	reopenedDest, corrupt, err := Open(destPath)
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}
	defer reopenedDest.Close()
	if len(corrupt) != 0 {
		t.Fatalf("expected no corrupt entries in dest, got %d", len(corrupt))
	}
	if !reopenedDest.Has(pos) {
		t.Fatalf("expected the post-CopyTo save to have landed in destPath, not the original file")
	}

	reopenedSrc, _, err := Open(srcPath)
	if err != nil {
		t.Fatalf("Open src: %v", err)
	}
	defer reopenedSrc.Close()
	if reopenedSrc.Has(pos) {
		t.Fatalf("expected the post-CopyTo save NOT to have landed in the original file")
	}
}

func TestDispatcherSavesAndDeletesBodies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.pxw")

	ws, err := Create(path, 1, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ws.Close()

	d := NewIoDispatcher(ws)
	defer d.Close()

	body := pixelBodyForTest()
	record, err := EncodePixelBodyRecord(body, [2]float32{1, 1}, 0)
	if err != nil {
		t.Fatalf("EncodePixelBodyRecord: %v", err)
	}

	if !d.SaveBody(uint64(body.StableID), record, uint16(body.Width), uint16(body.Height)) {
		t.Fatalf("expected SaveBody to enqueue")
	}
	if res := <-d.Flush(0); res.Err != nil {
		t.Fatalf("Flush: %v", res.Err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := ws.LoadPixelBody(uint64(body.StableID)); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for async SaveBody to land")
		}
		time.Sleep(time.Millisecond)
	}

	if !d.DeleteBody(uint64(body.StableID)) {
		t.Fatalf("expected DeleteBody to enqueue")
	}
	if res := <-d.Flush(0); res.Err != nil {
		t.Fatalf("Flush: %v", res.Err)
	}

	deadline = time.Now().Add(time.Second)
	for {
		if _, err := ws.LoadPixelBody(uint64(body.StableID)); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for async DeleteBody to land")
		}
		time.Sleep(time.Millisecond)
	}
}

func pixelBodyForTest() *pixelbody.PixelBody {
	b := pixelbody.New(7, 3, 2)
	b.Set(0, 0, pixel.Pixel{Material: 2, Color: 10})
	b.Set(1, 0, pixel.Pixel{Material: 2, Color: 11})
	b.Set(2, 1, pixel.Pixel{Material: 3, Color: 12})
	b.LinearVelocity[0], b.LinearVelocity[1] = 1.5, -0.5
	b.AngularVelocity = 0.25
	return b
}
