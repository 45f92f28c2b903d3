package basis

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Packet layout constants.
const (
	PacketSize        = 1024
	HeaderRegionSize  = 64
	PayloadRegionSize = PacketSize - HeaderRegionSize
	// HeaderSize is the number of header bytes actually carrying fields.
	HeaderSize = 23

	offFormat       = 0
	offPayloadBytes = 1
	offSampleRate   = 5
	offCenterFreq   = 13
	offSequence     = 21
)

// Header holds the metadata fields of a packet.
// Layout: [Format:1][PayloadBytes:4][SampleRateHz:8][CenterFrequencyHz:8][Sequence:2]
type Header struct {
	Format            SampleFormat
	PayloadBytes      uint32
	SampleRateHz      float64
	CenterFrequencyHz float64
	Sequence          uint16
}

// ParseHeader deserializes the header fields from the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrMalformedHeader, HeaderSize, len(b))
	}
	return Header{
		Format:            SampleFormat(b[offFormat]),
		PayloadBytes:      binary.LittleEndian.Uint32(b[offPayloadBytes:offSampleRate]),
		SampleRateHz:      math.Float64frombits(binary.LittleEndian.Uint64(b[offSampleRate:offCenterFreq])),
		CenterFrequencyHz: math.Float64frombits(binary.LittleEndian.Uint64(b[offCenterFreq:offSequence])),
		Sequence:          binary.LittleEndian.Uint16(b[offSequence:HeaderSize]),
	}, nil
}

// PutHeader writes h into the first HeaderSize bytes of b. It panics if b is
// shorter than HeaderSize, like the encoding/binary Put functions.
func PutHeader(b []byte, h Header) {
	_ = b[HeaderSize-1]
	b[offFormat] = byte(h.Format)
	binary.LittleEndian.PutUint32(b[offPayloadBytes:], h.PayloadBytes)
	binary.LittleEndian.PutUint64(b[offSampleRate:], math.Float64bits(h.SampleRateHz))
	binary.LittleEndian.PutUint64(b[offCenterFreq:], math.Float64bits(h.CenterFrequencyHz))
	binary.LittleEndian.PutUint16(b[offSequence:], h.Sequence)
}

// Validate reports whether the packet described by h is usable. The sample
// rate is checked before the format; a NaN rate is rejected.
func (h Header) Validate() error {
	if !(h.SampleRateHz > 0) {
		return fmt.Errorf("%w: %v Hz", ErrInvalidSampleRate, h.SampleRateHz)
	}
	if BytesPerSample(h.Format) == 0 {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidFormat, uint8(h.Format))
	}
	return nil
}

// SampleCount is PayloadBytes divided by the bytes per sample, truncated.
// It is 0 for an invalid format.
func (h Header) SampleCount() int {
	bps := BytesPerSample(h.Format)
	if bps == 0 {
		return 0
	}
	return int(uint64(h.PayloadBytes) / uint64(bps))
}

func (h Header) String() string {
	return fmt.Sprintf("Header{Format:%s, PayloadBytes:%d, SampleRate:%g Hz, CenterFreq:%g Hz, Seq:%d}",
		h.Format, h.PayloadBytes, h.SampleRateHz, h.CenterFrequencyHz, h.Sequence)
}
