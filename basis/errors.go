package basis

import "errors"

var (
	// ErrWrongLength is returned when the input is not exactly PacketSize bytes.
	ErrWrongLength = errors.New("wrong packet length")
	// ErrMalformedHeader is returned when the header region cannot be read.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrInvalidSampleRate is returned when the sample rate is not positive.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	// ErrInvalidFormat is returned when the format code is not in the table.
	ErrInvalidFormat = errors.New("invalid sample format")
	// ErrTruncatedPayload is returned when the declared payload does not fit
	// in the payload region.
	ErrTruncatedPayload = errors.New("truncated payload")
	// ErrUnsupportedWidth is returned for a numeric kind and width pair that
	// has no decode path.
	ErrUnsupportedWidth = errors.New("unsupported sample width")
)

// ErrorKind is a stable label for a decode failure.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindWrongLength       ErrorKind = "wrong_length"
	KindMalformedHeader   ErrorKind = "malformed_header"
	KindInvalidSampleRate ErrorKind = "invalid_sample_rate"
	KindInvalidFormat     ErrorKind = "invalid_format"
	KindTruncatedPayload  ErrorKind = "truncated_payload"
	KindUnsupportedWidth  ErrorKind = "unsupported_width"
	KindOther             ErrorKind = "other"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrWrongLength, KindWrongLength},
	{ErrMalformedHeader, KindMalformedHeader},
	{ErrInvalidSampleRate, KindInvalidSampleRate},
	{ErrInvalidFormat, KindInvalidFormat},
	{ErrTruncatedPayload, KindTruncatedPayload},
	{ErrUnsupportedWidth, KindUnsupportedWidth},
}

// KindOf classifies err. A nil error yields KindNone and an error not produced
// by this package yields KindOther.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindOther
}

// IsStructural reports whether err concerns the shape of the buffer rather
// than the values carried in a well-formed header.
func IsStructural(err error) bool {
	return errors.Is(err, ErrWrongLength) || errors.Is(err, ErrMalformedHeader)
}
