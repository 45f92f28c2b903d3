package basis

import (
	"fmt"
	"time"
)

// DecodedPacket is a validated packet with its samples converted to float64.
// Exactly one of Real and IQ is populated, depending on the format.
type DecodedPacket struct {
	Header
	Real []float64
	IQ   []complex128
}

// IsComplex reports whether the packet carries IQ samples.
func (p *DecodedPacket) IsComplex() bool { return p.Format.IsComplex() }

// NumSamples returns the number of decoded samples.
func (p *DecodedPacket) NumSamples() int {
	if p.IsComplex() {
		return len(p.IQ)
	}
	return len(p.Real)
}

// Complex returns the samples as complex values, promoting scalar samples to
// a zero imaginary part. The returned slice is freshly allocated for scalar
// packets and shared with p for complex ones.
func (p *DecodedPacket) Complex() []complex128 {
	if p.IsComplex() {
		return p.IQ
	}
	out := make([]complex128, len(p.Real))
	for i, v := range p.Real {
		out[i] = complex(v, 0)
	}
	return out
}

// Duration is the time span covered by the samples.
func (p *DecodedPacket) Duration() time.Duration {
	if p.SampleRateHz <= 0 {
		return 0
	}
	return time.Duration(float64(p.NumSamples()) / p.SampleRateHz * float64(time.Second))
}

func (p *DecodedPacket) String() string {
	return fmt.Sprintf("Packet{Seq:%d, Format:%s, Samples:%d, SampleRate:%g Hz, CenterFreq:%g Hz}",
		p.Sequence, p.Format, p.NumSamples(), p.SampleRateHz, p.CenterFrequencyHz)
}

// Decode parses, validates and converts a single packet. raw must be exactly
// PacketSize bytes. The returned packet does not alias raw.
func Decode(raw []byte) (*DecodedPacket, error) {
	p := &DecodedPacket{}
	if err := DecodeInto(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeInto is Decode writing into p, reusing its sample slices when they
// have enough capacity. On error p is left in an unspecified state.
func DecodeInto(raw []byte, p *DecodedPacket) error {
	if len(raw) != PacketSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrWrongLength, len(raw), PacketSize)
	}
	h, err := ParseHeader(raw[:HeaderSize])
	if err != nil {
		return err
	}
	if err := h.Validate(); err != nil {
		return err
	}

	bps := BytesPerSample(h.Format)
	count := h.SampleCount()
	if need := uint64(count) * uint64(bps); need > PayloadRegionSize {
		return fmt.Errorf("%w: %d samples of %s need %d bytes, region holds %d",
			ErrTruncatedPayload, count, h.Format, need, PayloadRegionSize)
	}

	p.Header = h
	return convertPayload(h.Format, raw[HeaderRegionSize:PacketSize], count, p)
}
