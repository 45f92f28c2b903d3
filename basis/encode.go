package basis

import "fmt"

// Encode builds a packet carrying scalar samples. h.Format must be a valid
// scalar format; h.PayloadBytes is overwritten with the encoded byte count.
// Integer formats truncate toward zero and saturate to their range.
func Encode(h Header, samples []float64) ([]byte, error) {
	if h.Format.IsComplex() {
		return nil, fmt.Errorf("%w: %s needs complex samples", ErrInvalidFormat, h.Format)
	}
	buf, write, width, err := prepare(&h, len(samples))
	if err != nil {
		return nil, err
	}
	payload := buf[HeaderRegionSize:]
	for i, v := range samples {
		write(payload[i*width:(i+1)*width], v)
	}
	return buf, nil
}

// EncodeComplex builds a packet carrying IQ samples with a complex format.
func EncodeComplex(h Header, samples []complex128) ([]byte, error) {
	if !h.Format.IsComplex() {
		return nil, fmt.Errorf("%w: %s needs scalar samples", ErrInvalidFormat, h.Format)
	}
	buf, write, width, err := prepare(&h, len(samples))
	if err != nil {
		return nil, err
	}
	payload := buf[HeaderRegionSize:]
	for i, v := range samples {
		off := i * 2 * width
		write(payload[off:off+width], real(v))
		write(payload[off+width:off+2*width], imag(v))
	}
	return buf, nil
}

func prepare(h *Header, count int) ([]byte, componentWriter, int, error) {
	bps := BytesPerSample(h.Format)
	if bps == 0 {
		return nil, nil, 0, fmt.Errorf("%w: 0x%02x", ErrInvalidFormat, uint8(h.Format))
	}
	if count*bps > PayloadRegionSize {
		return nil, nil, 0, fmt.Errorf("%w: %d samples of %s need %d bytes, region holds %d",
			ErrTruncatedPayload, count, h.Format, count*bps, PayloadRegionSize)
	}
	width := h.Format.ComponentWidth()
	write, err := writerFor(h.Format.Kind(), width)
	if err != nil {
		return nil, nil, 0, err
	}
	h.PayloadBytes = uint32(count * bps)

	buf := make([]byte, PacketSize)
	PutHeader(buf, *h)
	return buf, write, width, nil
}

// MaxSamples is the number of samples of format f that fit in one packet.
func MaxSamples(f SampleFormat) int {
	bps := BytesPerSample(f)
	if bps == 0 {
		return 0
	}
	return PayloadRegionSize / bps
}
