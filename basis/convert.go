package basis

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// kindWidth is the byte width of each numeric kind.
var kindWidth = [...]int{
	KindUint8:    1,
	KindInt8:     1,
	KindUint16:   2,
	KindInt16:    2,
	KindUint32:   4,
	KindInt32:    4,
	KindUint64:   8,
	KindInt64:    8,
	KindUint128:  16,
	KindInt128:   16,
	KindFloat16:  2,
	KindFloat32:  4,
	KindFloat64:  8,
	KindFloat128: 16,
}

// componentReader decodes one little-endian numeric value of a fixed width.
type componentReader func(b []byte) float64

// readerFor returns the decoder for kind k at the given byte width.
func readerFor(k Kind, width int) (componentReader, error) {
	if int(k) >= len(kindWidth) || kindWidth[k] != width {
		return nil, fmt.Errorf("%w: %s at %d bytes", ErrUnsupportedWidth, k, width)
	}
	switch k {
	case KindUint8:
		return func(b []byte) float64 { return float64(b[0]) }, nil
	case KindInt8:
		return func(b []byte) float64 { return float64(int8(b[0])) }, nil
	case KindUint16:
		return func(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) }, nil
	case KindInt16:
		return func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) }, nil
	case KindUint32:
		return func(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) }, nil
	case KindInt32:
		return func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) }, nil
	case KindUint64:
		return func(b []byte) float64 { return float64(binary.LittleEndian.Uint64(b)) }, nil
	case KindInt64:
		return func(b []byte) float64 { return float64(int64(binary.LittleEndian.Uint64(b))) }, nil
	case KindUint128:
		return func(b []byte) float64 { return bigToFloat64(Uint128(b)) }, nil
	case KindInt128:
		return func(b []byte) float64 { return bigToFloat64(Int128(b)) }, nil
	case KindFloat16:
		return func(b []byte) float64 {
			return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
		}, nil
	case KindFloat32:
		return func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }, nil
	case KindFloat64:
		return func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }, nil
	case KindFloat128:
		return Float128, nil
	}
	return nil, fmt.Errorf("%w: %s at %d bytes", ErrUnsupportedWidth, k, width)
}

// componentWriter encodes one numeric value into b.
type componentWriter func(b []byte, v float64)

func writerFor(k Kind, width int) (componentWriter, error) {
	if int(k) >= len(kindWidth) || kindWidth[k] != width {
		return nil, fmt.Errorf("%w: %s at %d bytes", ErrUnsupportedWidth, k, width)
	}
	switch k {
	case KindUint8:
		return func(b []byte, v float64) { b[0] = uint8(saturate(v, 0, math.MaxUint8)) }, nil
	case KindInt8:
		return func(b []byte, v float64) { b[0] = byte(int8(saturate(v, math.MinInt8, math.MaxInt8))) }, nil
	case KindUint16:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint16(b, uint16(saturate(v, 0, math.MaxUint16)))
		}, nil
	case KindInt16:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint16(b, uint16(int16(saturate(v, math.MinInt16, math.MaxInt16))))
		}, nil
	case KindUint32:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint32(b, uint32(saturate(v, 0, math.MaxUint32)))
		}, nil
	case KindInt32:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint32(b, uint32(int32(saturate(v, math.MinInt32, math.MaxInt32))))
		}, nil
	case KindUint64:
		return func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, toUint64(v)) }, nil
	case KindInt64:
		return func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, uint64(toInt64(v))) }, nil
	case KindUint128:
		return func(b []byte, v float64) { putInt128(b, v, false) }, nil
	case KindInt128:
		return func(b []byte, v float64) { putInt128(b, v, true) }, nil
	case KindFloat16:
		return func(b []byte, v float64) {
			binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
		}, nil
	case KindFloat32:
		return func(b []byte, v float64) { binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v))) }, nil
	case KindFloat64:
		return func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }, nil
	case KindFloat128:
		return PutFloat128, nil
	}
	return nil, fmt.Errorf("%w: %s at %d bytes", ErrUnsupportedWidth, k, width)
}

// saturate truncates v toward zero and clamps it to [lo, hi]. NaN maps to 0.
func saturate(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// float64 cannot represent MaxUint64 or MaxInt64, so the 64-bit kinds clamp
// against the first power of two outside the range.
func toUint64(v float64) uint64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1<<64:
		return math.MaxUint64
	}
	return uint64(v)
}

func toInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1<<63:
		return math.MaxInt64
	case v < -(1 << 63):
		return math.MinInt64
	}
	return int64(v)
}

// convertPayload decodes count samples of format f from payload into p. The
// caller has already checked that count*BytesPerSample(f) fits in payload.
func convertPayload(f SampleFormat, payload []byte, count int, p *DecodedPacket) error {
	width := f.ComponentWidth()
	read, err := readerFor(f.Kind(), width)
	if err != nil {
		return err
	}

	if f.IsComplex() {
		p.IQ = grow(p.IQ, count)
		p.Real = p.Real[:0]
		for i := range p.IQ {
			off := i * 2 * width
			re := read(payload[off : off+width])
			im := read(payload[off+width : off+2*width])
			p.IQ[i] = complex(re, im)
		}
		return nil
	}

	p.Real = grow(p.Real, count)
	p.IQ = p.IQ[:0]
	for i := range p.Real {
		off := i * width
		p.Real[i] = read(payload[off : off+width])
	}
	return nil
}

func grow[T any](s []T, n int) []T {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]T, n)
}
