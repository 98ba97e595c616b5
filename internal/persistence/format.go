// Package persistence implements the binary save-file format spec.md §4.3
// describes: a 64-byte header, an append-only chunk/body data region, a
// page-table index rewritten on flush, and the async IoDispatcher the
// simulation thread hands work to instead of touching disk itself.
package persistence

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/api-haus/pixelworld/internal/coords"
)

// Magic identifies a pixel-world save file ("PXSW", little-endian).
const Magic uint32 = 0x5053_5857

// Version is the current on-disk format version.
const Version uint16 = 1

// HeaderSize is the fixed byte size of Header on disk.
const HeaderSize = 64

// Header is the 64-byte file header (spec.md §6).
type Header struct {
	Magic         uint32
	Version       uint16
	Flags         uint16
	WorldSeed     uint64
	CreationTime  uint64
	ModifiedTime  uint64
	ChunkCount    uint32
	PageTableSize uint32
	DataRegionPtr uint64
	ChunkSize     uint16
	TileSize      uint16
	PixelSize     uint8
	EntitySection uint64
}

// NewHeader builds a header for a freshly created save file. createdAt is a
// Unix-seconds timestamp supplied by the caller, since this package never
// reads the wall clock itself (spec.md's ambient-stack services, like the
// caller's tick loop, own time).
func NewHeader(worldSeed int64, createdAt int64) Header {
	return Header{
		Magic:         Magic,
		Version:       Version,
		WorldSeed:     uint64(worldSeed),
		CreationTime:  uint64(createdAt),
		ModifiedTime:  uint64(createdAt),
		DataRegionPtr: HeaderSize,
		ChunkSize:     coords.ChunkSize,
		TileSize:      coords.TileSize,
		PixelSize:     4,
	}
}

// HeaderError reports why an on-disk header failed validation — always a
// configuration error (spec.md §7): the caller must not proceed with a
// mismatched save file.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string { return "persistence: " + e.Reason }

// Validate checks the header against this build's compile-time geometry
// constants, per spec.md §9 Open Question 1 option (a): hard-coded constants,
// reject on mismatch.
func (h Header) Validate() error {
	if h.Magic != Magic {
		return &HeaderError{Reason: fmt.Sprintf("invalid magic 0x%08X", h.Magic)}
	}
	if h.Version > Version {
		return &HeaderError{Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}
	if h.ChunkSize != coords.ChunkSize {
		return &HeaderError{Reason: fmt.Sprintf("chunk size mismatch: file=%d engine=%d", h.ChunkSize, coords.ChunkSize)}
	}
	if h.TileSize != coords.TileSize {
		return &HeaderError{Reason: fmt.Sprintf("tile size mismatch: file=%d engine=%d", h.TileSize, coords.TileSize)}
	}
	if h.PixelSize != 4 {
		return &HeaderError{Reason: fmt.Sprintf("pixel size mismatch: file=%d engine=4", h.PixelSize)}
	}
	return nil
}

// WriteTo encodes the header in its fixed 64-byte little-endian layout.
func (h Header) WriteTo(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.WorldSeed)
	binary.LittleEndian.PutUint64(buf[16:24], h.CreationTime)
	binary.LittleEndian.PutUint64(buf[24:32], h.ModifiedTime)
	binary.LittleEndian.PutUint32(buf[32:36], h.ChunkCount)
	binary.LittleEndian.PutUint32(buf[36:40], h.PageTableSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.DataRegionPtr)
	binary.LittleEndian.PutUint16(buf[48:50], h.ChunkSize)
	binary.LittleEndian.PutUint16(buf[50:52], h.TileSize)
	buf[52] = h.PixelSize
	binary.LittleEndian.PutUint64(buf[53:61], h.EntitySection)
	// buf[61:64] reserved, left zero.
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader decodes a 64-byte header.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	h := Header{
		Magic:         binary.LittleEndian.Uint32(buf[0:4]),
		Version:       binary.LittleEndian.Uint16(buf[4:6]),
		Flags:         binary.LittleEndian.Uint16(buf[6:8]),
		WorldSeed:     binary.LittleEndian.Uint64(buf[8:16]),
		CreationTime:  binary.LittleEndian.Uint64(buf[16:24]),
		ModifiedTime:  binary.LittleEndian.Uint64(buf[24:32]),
		ChunkCount:    binary.LittleEndian.Uint32(buf[32:36]),
		PageTableSize: binary.LittleEndian.Uint32(buf[36:40]),
		DataRegionPtr: binary.LittleEndian.Uint64(buf[40:48]),
		ChunkSize:     binary.LittleEndian.Uint16(buf[48:50]),
		TileSize:      binary.LittleEndian.Uint16(buf[50:52]),
		PixelSize:     buf[52],
		EntitySection: binary.LittleEndian.Uint64(buf[53:61]),
	}
	return h, nil
}

// StorageType selects how a chunk payload is encoded on disk.
type StorageType uint8

const (
	StorageEmpty StorageType = iota
	StorageDelta
	StorageFull
)

func (s StorageType) String() string {
	switch s {
	case StorageEmpty:
		return "empty"
	case StorageDelta:
		return "delta"
	case StorageFull:
		return "full"
	default:
		return "unknown"
	}
}

// PageTableEntrySize is the fixed byte size of a PageTableEntry.
const PageTableEntrySize = 24

// PageTableEntry is one 24-byte chunk-index record.
type PageTableEntry struct {
	ChunkX, ChunkY int32
	DataOffset     uint64
	DataSize       uint32
	StorageType    StorageType
	Checksum       uint8
}

// Pos returns the chunk position this entry indexes.
func (e PageTableEntry) Pos() coords.ChunkPos {
	return coords.ChunkPos{X: e.ChunkX, Y: e.ChunkY}
}

// NewPageTableEntry builds an entry with its checksum computed.
func NewPageTableEntry(pos coords.ChunkPos, offset uint64, size uint32, st StorageType) PageTableEntry {
	e := PageTableEntry{ChunkX: pos.X, ChunkY: pos.Y, DataOffset: offset, DataSize: size, StorageType: st}
	e.Checksum = e.computeChecksum()
	return e
}

func (e PageTableEntry) computeChecksum() uint8 {
	var crc uint8
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(e.ChunkX))
	crc = crc8Update(crc, buf[:])
	binary.LittleEndian.PutUint32(buf[:], uint32(e.ChunkY))
	crc = crc8Update(crc, buf[:])
	var buf8 [8]byte
	binary.LittleEndian.PutUint64(buf8[:], e.DataOffset)
	crc = crc8Update(crc, buf8[:])
	binary.LittleEndian.PutUint32(buf[:], e.DataSize)
	crc = crc8Update(crc, buf[:])
	crc = crc8Update(crc, []byte{uint8(e.StorageType)})
	return crc
}

// ValidateChecksum reports whether the entry's stored CRC8 matches its
// fields, used to detect corruption on load (spec.md §7).
func (e PageTableEntry) ValidateChecksum() bool {
	return e.Checksum == e.computeChecksum()
}

// WriteTo encodes the entry in its fixed 24-byte layout.
func (e PageTableEntry) WriteTo(w io.Writer) error {
	var buf [PageTableEntrySize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.ChunkX))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.ChunkY))
	binary.LittleEndian.PutUint64(buf[8:16], e.DataOffset)
	binary.LittleEndian.PutUint32(buf[16:20], e.DataSize)
	buf[20] = uint8(e.StorageType)
	buf[21] = e.Checksum
	_, err := w.Write(buf[:])
	return err
}

// ReadPageTableEntry decodes a 24-byte entry.
func ReadPageTableEntry(r io.Reader) (PageTableEntry, error) {
	var buf [PageTableEntrySize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return PageTableEntry{}, err
	}
	e := PageTableEntry{
		ChunkX:      int32(binary.LittleEndian.Uint32(buf[0:4])),
		ChunkY:      int32(binary.LittleEndian.Uint32(buf[4:8])),
		DataOffset:  binary.LittleEndian.Uint64(buf[8:16]),
		DataSize:    binary.LittleEndian.Uint32(buf[16:20]),
		StorageType: StorageType(buf[20]),
		Checksum:    buf[21],
	}
	return e, nil
}

// crc8Update folds bytes into a running CRC-8 value using polynomial 0x07,
// matching the reference format exactly (spec.md §6).
func crc8Update(crc uint8, bytes []byte) uint8 {
	for _, b := range bytes {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
