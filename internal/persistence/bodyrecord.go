package persistence

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/api-haus/pixelworld/internal/pixel"
	"github.com/api-haus/pixelworld/internal/pixelbody"
)

func float32bits(f float32) uint32     { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

// PixelBodyRecordHeaderSize is the fixed byte size of a body record's header.
const PixelBodyRecordHeaderSize = 64

// PixelBodyRecordHeader precedes a pixel body's compressed payload. Origin
// is deliberately not part of the on-disk layout: pixelbody.New always
// recomputes it from width/height, so persisting it would just be a second
// copy of derived state to keep in sync (see DESIGN.md).
type PixelBodyRecordHeader struct {
	StableID        uint64
	Width, Height   uint16
	PosX, PosY      float32
	Rotation        float32
	LinearVelX      float32
	LinearVelY      float32
	AngularVelocity float32
	MaskBytes       uint32
	SurfaceBytes    uint32
	ExtensionBytes  uint32
	CRC8            uint8
}

// WriteTo encodes the header in its fixed 64-byte layout.
func (h PixelBodyRecordHeader) WriteTo(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.StableID)
	binary.LittleEndian.PutUint16(buf[8:10], h.Width)
	binary.LittleEndian.PutUint16(buf[10:12], h.Height)
	binary.LittleEndian.PutUint32(buf[12:16], float32bits(h.PosX))
	binary.LittleEndian.PutUint32(buf[16:20], float32bits(h.PosY))
	binary.LittleEndian.PutUint32(buf[20:24], float32bits(h.Rotation))
	binary.LittleEndian.PutUint32(buf[24:28], float32bits(h.LinearVelX))
	binary.LittleEndian.PutUint32(buf[28:32], float32bits(h.LinearVelY))
	binary.LittleEndian.PutUint32(buf[32:36], float32bits(h.AngularVelocity))
	binary.LittleEndian.PutUint32(buf[36:40], h.MaskBytes)
	binary.LittleEndian.PutUint32(buf[40:44], h.SurfaceBytes)
	binary.LittleEndian.PutUint32(buf[44:48], h.ExtensionBytes)
	buf[48] = crc8Update(0, buf[0:48])
	// buf[49:64] reserved, left zero.
}

// ErrBodyRecordCorrupt is returned by ReadPixelBodyRecordHeader when the
// header's CRC8 doesn't match its fields. Callers should treat this the
// same as a missing record — skip the body and log a warning — rather than
// propagating it as a hard load failure.
var ErrBodyRecordCorrupt = fmt.Errorf("persistence: pixel body record header failed CRC8 check")

// ReadPixelBodyRecordHeader decodes a 64-byte header, validating its CRC8.
func ReadPixelBodyRecordHeader(buf []byte) (PixelBodyRecordHeader, error) {
	if len(buf) < PixelBodyRecordHeaderSize {
		return PixelBodyRecordHeader{}, fmt.Errorf("persistence: truncated pixel body record header")
	}
	if crc8Update(0, buf[0:48]) != buf[48] {
		return PixelBodyRecordHeader{}, ErrBodyRecordCorrupt
	}
	return PixelBodyRecordHeader{
		StableID:        binary.LittleEndian.Uint64(buf[0:8]),
		Width:           binary.LittleEndian.Uint16(buf[8:10]),
		Height:          binary.LittleEndian.Uint16(buf[10:12]),
		PosX:            float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
		PosY:            float32frombits(binary.LittleEndian.Uint32(buf[16:20])),
		Rotation:        float32frombits(binary.LittleEndian.Uint32(buf[20:24])),
		LinearVelX:      float32frombits(binary.LittleEndian.Uint32(buf[24:28])),
		LinearVelY:      float32frombits(binary.LittleEndian.Uint32(buf[28:32])),
		AngularVelocity: float32frombits(binary.LittleEndian.Uint32(buf[32:36])),
		MaskBytes:       binary.LittleEndian.Uint32(buf[36:40]),
		SurfaceBytes:    binary.LittleEndian.Uint32(buf[40:44]),
		ExtensionBytes:  binary.LittleEndian.Uint32(buf[44:48]),
		CRC8:            buf[48],
	}, nil
}

// packBools packs a []bool shape mask into a bitset, 8 cells per byte,
// matching the reference format's pack_bools.
func packBools(mask []bool) []byte {
	out := make([]byte, (len(mask)+7)/8)
	for i, set := range mask {
		if set {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// unpackBools is the inverse of packBools.
func unpackBools(packed []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = packed[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}

// EncodePixelBodyRecord serializes a body into a header-prefixed,
// LZ4-compressed record: compressed shape mask, then compressed surface
// pixels. ExtensionBytes is reserved for future per-body metadata (spec.md
// §9 leaves its contents an Open Question); it is always written as zero
// here.
func EncodePixelBodyRecord(b *pixelbody.PixelBody, pos [2]float32, rotation float32) ([]byte, error) {
	maskRaw := packBools(b.ShapeMask)
	maskCompressed, err := lz4CompressBlock(maskRaw)
	if err != nil {
		return nil, err
	}
	surfaceRaw := make([]byte, len(b.Surface)*4)
	for i, p := range b.Surface {
		o := i * 4
		surfaceRaw[o] = byte(p.Material)
		surfaceRaw[o+1] = p.Color
		surfaceRaw[o+2] = p.Variant
		surfaceRaw[o+3] = byte(p.Flags)
	}
	surfaceCompressed, err := lz4CompressBlock(surfaceRaw)
	if err != nil {
		return nil, err
	}

	h := PixelBodyRecordHeader{
		StableID:        uint64(b.StableID),
		Width:           uint16(b.Width),
		Height:          uint16(b.Height),
		PosX:            pos[0],
		PosY:            pos[1],
		Rotation:        rotation,
		LinearVelX:      b.LinearVelocity[0],
		LinearVelY:      b.LinearVelocity[1],
		AngularVelocity: b.AngularVelocity,
		MaskBytes:       uint32(len(maskCompressed)),
		SurfaceBytes:    uint32(len(surfaceCompressed)),
		ExtensionBytes:  0,
	}

	out := make([]byte, PixelBodyRecordHeaderSize+len(maskCompressed)+len(surfaceCompressed))
	h.WriteTo(out[:PixelBodyRecordHeaderSize])
	copy(out[PixelBodyRecordHeaderSize:], maskCompressed)
	copy(out[PixelBodyRecordHeaderSize+len(maskCompressed):], surfaceCompressed)
	return out, nil
}

// DecodePixelBodyRecord is the inverse of EncodePixelBodyRecord. It returns
// a fresh PixelBody plus the world pose/velocity that engine.go restores
// the body under.
func DecodePixelBodyRecord(buf []byte) (body *pixelbody.PixelBody, pos [2]float32, rotation float32, err error) {
	h, err := ReadPixelBodyRecordHeader(buf)
	if err != nil {
		return nil, [2]float32{}, 0, err
	}
	cursor := PixelBodyRecordHeaderSize
	maskCompressed := buf[cursor : cursor+int(h.MaskBytes)]
	cursor += int(h.MaskBytes)
	surfaceCompressed := buf[cursor : cursor+int(h.SurfaceBytes)]

	n := int(h.Width) * int(h.Height)
	maskRaw, err := lz4DecompressBlock(maskCompressed)
	if err != nil {
		return nil, [2]float32{}, 0, err
	}
	surfaceRaw, err := lz4DecompressBlock(surfaceCompressed)
	if err != nil {
		return nil, [2]float32{}, 0, err
	}

	b := pixelbody.New(pixelbody.StableID(h.StableID), int(h.Width), int(h.Height))
	copy(b.ShapeMask, unpackBools(maskRaw, n))
	for i := 0; i < n && i*4+4 <= len(surfaceRaw); i++ {
		o := i * 4
		b.Surface[i] = pixel.Pixel{
			Material: pixel.MaterialID(surfaceRaw[o]),
			Color:    surfaceRaw[o+1],
			Variant:  surfaceRaw[o+2],
			Flags:    pixel.Flags(surfaceRaw[o+3]),
		}
	}
	b.LinearVelocity[0] = h.LinearVelX
	b.LinearVelocity[1] = h.LinearVelY
	b.AngularVelocity = h.AngularVelocity

	return b, [2]float32{h.PosX, h.PosY}, h.Rotation, nil
}
