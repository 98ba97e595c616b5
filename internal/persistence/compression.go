package persistence

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/api-haus/pixelworld/internal/config"
	"github.com/api-haus/pixelworld/internal/coords"
	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/world"
)

// chunkPixelCount is the flat pixel count of one chunk's payload.
const chunkPixelCount = coords.ChunkSize * coords.ChunkSize

// chunkPixelBytes is the raw (uncompressed) byte size of one chunk's pixel
// array: 4 bytes per pixel (internal/pixel.Pixel).
const chunkPixelBytes = chunkPixelCount * 4

// encodePixels flattens a chunk's pixel array into its raw wire bytes,
// Material/Color/Variant/Flags in that field order, matching pixel.Pixel's
// layout.
func encodePixels(pixels *[chunkPixelCount]pixel.Pixel) []byte {
	buf := make([]byte, chunkPixelBytes)
	for i, p := range pixels {
		o := i * 4
		buf[o] = byte(p.Material)
		buf[o+1] = p.Color
		buf[o+2] = p.Variant
		buf[o+3] = byte(p.Flags)
	}
	return buf
}

// decodePixels is the inverse of encodePixels.
func decodePixels(buf []byte, pixels *[chunkPixelCount]pixel.Pixel) error {
	if len(buf) != chunkPixelBytes {
		return fmt.Errorf("persistence: pixel buffer size mismatch: got %d want %d", len(buf), chunkPixelBytes)
	}
	for i := range pixels {
		o := i * 4
		pixels[i] = pixel.Pixel{
			Material: pixel.MaterialID(buf[o]),
			Color:    buf[o+1],
			Variant:  buf[o+2],
			Flags:    pixel.Flags(buf[o+3]),
		}
	}
	return nil
}

// lz4CompressBlock compresses src into a new buffer prefixed with src's
// uncompressed length (needed to size the decompression buffer later).
// Both Full chunk payloads and Delta payloads (encodeDeltaPayload) are
// compressed here; Empty chunks carry no payload and never reach it.
// Incompressible input falls back to a
// stored (uncompressed) block, distinguished by the prefix: if the stored
// compressed length equals len(src), the payload is stored raw.
func lz4CompressBlock(src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	dst := make([]byte, 4+bound)
	binary.LittleEndian.PutUint32(dst[:4], uint32(len(src)))

	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst[4:])
	if err != nil {
		return nil, fmt.Errorf("persistence: lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible: store raw, flagged by prefix == payload length.
		out := make([]byte, 4+len(src))
		binary.LittleEndian.PutUint32(out[:4], uint32(len(src)))
		copy(out[4:], src)
		return out, nil
	}
	return dst[:4+n], nil
}

// lz4DecompressBlock is the inverse of lz4CompressBlock.
func lz4DecompressBlock(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("persistence: truncated compressed block")
	}
	rawLen := int(binary.LittleEndian.Uint32(data[:4]))
	payload := data[4:]
	if len(payload) == rawLen {
		out := make([]byte, rawLen)
		copy(out, payload)
		return out, nil
	}
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(payload, dst)
	if err != nil {
		return nil, fmt.Errorf("persistence: lz4 decompress: %w", err)
	}
	return dst[:n], nil
}

// deltaEntry is one differing pixel against a chunk's seeded baseline.
type deltaEntry struct {
	Index uint16
	Pixel pixel.Pixel
}

// buildDelta diffs chunk against baseline (the freshly seeded chunk before
// any simulation touched it) and returns the differing cells, or ok=false if
// the count exceeds config.Global().DeltaThreshold() — the caller should
// fall back to a Full record in that case.
func buildDelta(chunk, baseline *world.Chunk) (entries []deltaEntry, ok bool) {
	limit := config.Global().DeltaThreshold()
	for i := 0; i < chunkPixelCount; i++ {
		cur := chunk.Pixels[i]
		base := baseline.Pixels[i]
		if cur == base {
			continue
		}
		if len(entries) >= limit {
			return nil, false
		}
		entries = append(entries, deltaEntry{Index: uint16(i), Pixel: cur})
	}
	return entries, true
}

// encodeDeltaPayload serializes delta entries as a count-prefixed, LZ4
// compressed run of (index uint16, pixel 4 bytes) records.
func encodeDeltaPayload(entries []deltaEntry) []byte {
	raw := make([]byte, 4+len(entries)*6)
	binary.LittleEndian.PutUint32(raw[:4], uint32(len(entries)))
	for i, e := range entries {
		o := 4 + i*6
		binary.LittleEndian.PutUint16(raw[o:o+2], e.Index)
		raw[o+2] = byte(e.Pixel.Material)
		raw[o+3] = e.Pixel.Color
		raw[o+4] = e.Pixel.Variant
		raw[o+5] = byte(e.Pixel.Flags)
	}
	compressed, err := lz4CompressBlock(raw)
	if err != nil {
		// lz4 compression of a well-formed buffer cannot fail in practice;
		// store raw as a last-resort, matching lz4CompressBlock's own
		// incompressible-input fallback shape.
		out := make([]byte, 4+len(raw))
		binary.LittleEndian.PutUint32(out[:4], uint32(len(raw)))
		copy(out[4:], raw)
		return out
	}
	return compressed
}

// decodeDeltaPayload is the inverse of encodeDeltaPayload, applying the
// decoded entries onto baseline to reconstruct the full chunk.
func decodeDeltaPayload(payload []byte, baseline *world.Chunk) (*world.Chunk, error) {
	raw, err := lz4DecompressBlock(payload)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("persistence: truncated delta payload")
	}
	count := binary.LittleEndian.Uint32(raw[:4])
	chunk := *baseline
	for i := uint32(0); i < count; i++ {
		o := 4 + int(i)*6
		if o+6 > len(raw) {
			return nil, fmt.Errorf("persistence: delta entry out of bounds")
		}
		idx := binary.LittleEndian.Uint16(raw[o : o+2])
		chunk.Pixels[idx] = pixel.Pixel{
			Material: pixel.MaterialID(raw[o+2]),
			Color:    raw[o+3],
			Variant:  raw[o+4],
			Flags:    pixel.Flags(raw[o+5]),
		}
	}
	return &chunk, nil
}

// encodeFullPayload LZ4-compresses a chunk's entire pixel array.
func encodeFullPayload(chunk *world.Chunk) ([]byte, error) {
	return lz4CompressBlock(encodePixels(&chunk.Pixels))
}

// decodeFullPayload is the inverse of encodeFullPayload.
func decodeFullPayload(payload []byte) (*world.Chunk, error) {
	raw, err := lz4DecompressBlock(payload)
	if err != nil {
		return nil, err
	}
	chunk := &world.Chunk{}
	if err := decodePixels(raw, &chunk.Pixels); err != nil {
		return nil, err
	}
	return chunk, nil
}
