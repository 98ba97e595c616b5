package persistence

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/api-haus/pixelworld/internal/coords"
)

// ChunkIndex is the in-memory, sorted-on-flush mirror of the page table: the
// authoritative lookup from chunk position to its on-disk payload.
type ChunkIndex struct {
	entries map[coords.ChunkPos]PageTableEntry
}

// NewChunkIndex returns an empty index.
func NewChunkIndex() *ChunkIndex {
	return &ChunkIndex{entries: make(map[coords.ChunkPos]PageTableEntry)}
}

// Put records or replaces the entry for a chunk position.
func (idx *ChunkIndex) Put(e PageTableEntry) {
	idx.entries[e.Pos()] = e
}

// Get looks up a chunk's page-table entry.
func (idx *ChunkIndex) Get(pos coords.ChunkPos) (PageTableEntry, bool) {
	e, ok := idx.entries[pos]
	return e, ok
}

// Delete removes a chunk's entry (used when a chunk reverts to fully empty
// and need not be indexed at all).
func (idx *ChunkIndex) Delete(pos coords.ChunkPos) {
	delete(idx.entries, pos)
}

// Len returns the number of indexed chunks.
func (idx *ChunkIndex) Len() int { return len(idx.entries) }

// Sorted returns every entry ordered by (ChunkY, ChunkX), the order the page
// table is rewritten in on flush so identical world state always produces a
// byte-identical save file.
func (idx *ChunkIndex) Sorted() []PageTableEntry {
	out := make([]PageTableEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChunkY != out[j].ChunkY {
			return out[i].ChunkY < out[j].ChunkY
		}
		return out[i].ChunkX < out[j].ChunkX
	})
	return out
}

// WriteTo serializes every entry, in sorted order, back to back.
func (idx *ChunkIndex) WriteTo(w io.Writer) error {
	for _, e := range idx.Sorted() {
		if err := e.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

// ReadChunkIndex reads count consecutive page-table entries, skipping (but
// still counting) any whose checksum fails — spec.md §7 treats a corrupt
// page-table entry as "drop that one chunk", not "fail the whole load".
func ReadChunkIndex(r io.Reader, count uint32) (*ChunkIndex, []PageTableEntry, error) {
	idx := NewChunkIndex()
	var corrupt []PageTableEntry
	for i := uint32(0); i < count; i++ {
		e, err := ReadPageTableEntry(r)
		if err != nil {
			return nil, nil, err
		}
		if !e.ValidateChecksum() {
			corrupt = append(corrupt, e)
			continue
		}
		idx.Put(e)
	}
	return idx, corrupt, nil
}

// PixelBodyIndexEntrySize is the fixed byte size of a PixelBodyIndexEntry.
const PixelBodyIndexEntrySize = 28

// PixelBodyIndexEntry locates one pixel-body record in the body data region.
type PixelBodyIndexEntry struct {
	StableID   uint64
	DataOffset uint64
	DataSize   uint32
	Width      uint16
	Height     uint16
	Reserved   uint64
}

// WriteTo encodes the entry in its fixed 28-byte layout.
func (e PixelBodyIndexEntry) WriteTo(w io.Writer) error {
	var buf [PixelBodyIndexEntrySize]byte
	binary.LittleEndian.PutUint64(buf[0:8], e.StableID)
	binary.LittleEndian.PutUint64(buf[8:16], e.DataOffset)
	binary.LittleEndian.PutUint32(buf[16:20], e.DataSize)
	binary.LittleEndian.PutUint16(buf[20:22], e.Width)
	binary.LittleEndian.PutUint16(buf[22:24], e.Height)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(e.Reserved))
	_, err := w.Write(buf[:])
	return err
}

// ReadPixelBodyIndexEntry decodes a 28-byte entry.
func ReadPixelBodyIndexEntry(r io.Reader) (PixelBodyIndexEntry, error) {
	var buf [PixelBodyIndexEntrySize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return PixelBodyIndexEntry{}, err
	}
	return PixelBodyIndexEntry{
		StableID:   binary.LittleEndian.Uint64(buf[0:8]),
		DataOffset: binary.LittleEndian.Uint64(buf[8:16]),
		DataSize:   binary.LittleEndian.Uint32(buf[16:20]),
		Width:      binary.LittleEndian.Uint16(buf[20:22]),
		Height:     binary.LittleEndian.Uint16(buf[22:24]),
		Reserved:   uint64(binary.LittleEndian.Uint32(buf[24:28])),
	}, nil
}

// PixelBodyIndex mirrors ChunkIndex for pixel-body records: stable-id keyed,
// sorted-on-flush for deterministic output.
type PixelBodyIndex struct {
	entries map[uint64]PixelBodyIndexEntry
}

// NewPixelBodyIndex returns an empty index.
func NewPixelBodyIndex() *PixelBodyIndex {
	return &PixelBodyIndex{entries: make(map[uint64]PixelBodyIndexEntry)}
}

// Put records or replaces a body's entry.
func (idx *PixelBodyIndex) Put(e PixelBodyIndexEntry) { idx.entries[e.StableID] = e }

// Get looks up a body's entry by stable id.
func (idx *PixelBodyIndex) Get(id uint64) (PixelBodyIndexEntry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

// Delete removes a despawned body's entry.
func (idx *PixelBodyIndex) Delete(id uint64) { delete(idx.entries, id) }

// Len returns the number of indexed bodies.
func (idx *PixelBodyIndex) Len() int { return len(idx.entries) }

// Sorted returns every entry ordered by StableID.
func (idx *PixelBodyIndex) Sorted() []PixelBodyIndexEntry {
	out := make([]PixelBodyIndexEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StableID < out[j].StableID })
	return out
}
