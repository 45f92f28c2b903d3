// Package basis decodes fixed-size Basis telemetry packets carrying a slice of
// RF samples. A packet is 1024 bytes: a 64-byte header region followed by a
// 960-byte payload region. The decoder performs no I/O and keeps no state, so
// Decode may be called concurrently on independent buffers.
package basis

import (
	"fmt"
	"strconv"
	"strings"
)

// SampleFormat identifies the numeric encoding of the payload samples.
// A high nibble of 0x8 marks an interleaved real/imaginary encoding.
type SampleFormat uint8

const (
	ScalarUint8    SampleFormat = 0x00
	ScalarInt8     SampleFormat = 0x01
	ScalarUint16   SampleFormat = 0x02
	ScalarInt16    SampleFormat = 0x03
	ScalarUint32   SampleFormat = 0x04
	ScalarInt32    SampleFormat = 0x05
	ScalarUint64   SampleFormat = 0x06
	ScalarInt64    SampleFormat = 0x07
	ScalarUint128  SampleFormat = 0x08
	ScalarInt128   SampleFormat = 0x09
	ScalarFloat16  SampleFormat = 0x0a
	ScalarFloat32  SampleFormat = 0x0b
	ScalarFloat64  SampleFormat = 0x0c
	ScalarFloat128 SampleFormat = 0x0d

	ComplexUint8    SampleFormat = 0x80
	ComplexInt8     SampleFormat = 0x81
	ComplexUint16   SampleFormat = 0x82
	ComplexInt16    SampleFormat = 0x83
	ComplexUint32   SampleFormat = 0x84
	ComplexInt32    SampleFormat = 0x85
	ComplexUint64   SampleFormat = 0x86
	ComplexInt64    SampleFormat = 0x87
	ComplexUint128  SampleFormat = 0x88
	ComplexInt128   SampleFormat = 0x89
	ComplexFloat16  SampleFormat = 0x8a
	ComplexFloat32  SampleFormat = 0x8b
	ComplexFloat64  SampleFormat = 0x8c
	ComplexFloat128 SampleFormat = 0x8d

	// InvalidFormat is the reserved "no format" code.
	InvalidFormat SampleFormat = 0xff
)

// Kind is the numeric kind selected by the low nibble of a SampleFormat.
type Kind uint8

const (
	KindUint8 Kind = iota
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindUint64
	KindInt64
	KindUint128
	KindInt128
	KindFloat16
	KindFloat32
	KindFloat64
	KindFloat128
)

var kindNames = [...]string{
	KindUint8:    "Uint8",
	KindInt8:     "Int8",
	KindUint16:   "Uint16",
	KindInt16:    "Int16",
	KindUint32:   "Uint32",
	KindInt32:    "Int32",
	KindUint64:   "Uint64",
	KindInt64:    "Int64",
	KindUint128:  "Uint128",
	KindInt128:   "Int128",
	KindFloat16:  "Float16",
	KindFloat32:  "Float32",
	KindFloat64:  "Float64",
	KindFloat128: "Float128",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Signed reports whether k is a two's complement integer kind.
func (k Kind) Signed() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindInt128:
		return true
	}
	return false
}

// Float reports whether k is an IEEE 754 floating point kind.
func (k Kind) Float() bool {
	return k >= KindFloat16 && k <= KindFloat128
}

// bytesPerSample is indexed by format code. Codes absent from the table stay 0.
var bytesPerSample = func() [256]uint8 {
	var t [256]uint8
	scalar := [...]uint8{1, 1, 2, 2, 4, 4, 8, 8, 16, 16, 2, 4, 8, 16}
	for i, n := range scalar {
		t[i] = n
		t[0x80|i] = 2 * n
	}
	return t
}()

// BytesPerSample returns the size in bytes of one sample of f, both components
// combined for complex formats. It returns 0 for any code outside the table.
func BytesPerSample(f SampleFormat) int {
	return int(bytesPerSample[f])
}

// IsComplex reports whether f is an interleaved real/imaginary encoding.
func IsComplex(f SampleFormat) bool {
	return f&0xF0 == 0x80
}

// BytesPerSample is shorthand for the package level function.
func (f SampleFormat) BytesPerSample() int { return BytesPerSample(f) }

// IsComplex is shorthand for the package level function.
func (f SampleFormat) IsComplex() bool { return IsComplex(f) }

// Valid reports whether f is one of the 28 defined encodings.
func (f SampleFormat) Valid() bool { return BytesPerSample(f) > 0 }

// Kind returns the numeric kind encoded in the low nibble. The result is only
// meaningful when f is Valid.
func (f SampleFormat) Kind() Kind {
	return Kind(f & 0x0F)
}

// ComponentWidth is the byte width of one numeric value: the whole sample for
// scalar formats, half of it for complex formats.
func (f SampleFormat) ComponentWidth() int {
	n := BytesPerSample(f)
	if IsComplex(f) {
		return n / 2
	}
	return n
}

func (f SampleFormat) String() string {
	if !f.Valid() {
		if f == InvalidFormat {
			return "Invalid"
		}
		return fmt.Sprintf("Unknown(0x%02x)", uint8(f))
	}
	if f.IsComplex() {
		return "Complex" + f.Kind().String()
	}
	return "Scalar" + f.Kind().String()
}

// Formats lists every defined encoding, scalar codes first.
func Formats() []SampleFormat {
	out := make([]SampleFormat, 0, 28)
	for k := KindUint8; k <= KindFloat128; k++ {
		out = append(out, SampleFormat(k))
	}
	for k := KindUint8; k <= KindFloat128; k++ {
		out = append(out, SampleFormat(0x80|uint8(k)))
	}
	return out
}

// ParseSampleFormat accepts a table name such as "ComplexInt16" (case
// insensitive) or a numeric code such as "0x83".
func ParseSampleFormat(s string) (SampleFormat, error) {
	s = strings.TrimSpace(s)
	for _, f := range Formats() {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil && SampleFormat(n).Valid() {
		return SampleFormat(n), nil
	}
	return InvalidFormat, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}
