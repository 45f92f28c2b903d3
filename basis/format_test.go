package basis

import "testing"

var documentedSizes = map[SampleFormat]int{
	0x00: 1, 0x01: 1, 0x02: 2, 0x03: 2, 0x04: 4, 0x05: 4, 0x06: 8, 0x07: 8,
	0x08: 16, 0x09: 16, 0x0a: 2, 0x0b: 4, 0x0c: 8, 0x0d: 16,
	0x80: 2, 0x81: 2, 0x82: 4, 0x83: 4, 0x84: 8, 0x85: 8, 0x86: 16, 0x87: 16,
	0x88: 32, 0x89: 32, 0x8a: 4, 0x8b: 8, 0x8c: 16, 0x8d: 32,
}

func TestBytesPerSampleCoversAllCodes(t *testing.T) {
	if len(documentedSizes) != 28 {
		t.Fatalf("expected 28 documented formats, got %d", len(documentedSizes))
	}
	for code := 0; code < 256; code++ {
		f := SampleFormat(code)
		want := documentedSizes[f]
		if got := BytesPerSample(f); got != want {
			t.Fatalf("code 0x%02x: expected %d bytes, got %d", code, want, got)
		}
		if got := f.Valid(); got != (want > 0) {
			t.Fatalf("code 0x%02x: Valid()=%v", code, got)
		}
	}
	if BytesPerSample(InvalidFormat) != 0 {
		t.Fatalf("expected the invalid code to map to 0 bytes")
	}
}

func TestIsComplexAllCodes(t *testing.T) {
	for code := 0; code < 256; code++ {
		want := code&0xF0 == 0x80
		if got := IsComplex(SampleFormat(code)); got != want {
			t.Fatalf("code 0x%02x: expected %v got %v", code, want, got)
		}
	}
}

func TestFormatNames(t *testing.T) {
	cases := []struct {
		f    SampleFormat
		want string
	}{
		{ScalarUint8, "ScalarUint8"},
		{ScalarInt16, "ScalarInt16"},
		{ScalarFloat128, "ScalarFloat128"},
		{ComplexInt8, "ComplexInt8"},
		{ComplexFloat32, "ComplexFloat32"},
		{InvalidFormat, "Invalid"},
		{SampleFormat(0x42), "Unknown(0x42)"},
		{SampleFormat(0x8e), "Unknown(0x8e)"},
	}
	for _, tc := range cases {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("0x%02x: expected %q got %q", uint8(tc.f), tc.want, got)
		}
	}
}

func TestComponentWidth(t *testing.T) {
	for _, f := range Formats() {
		want := documentedSizes[f]
		if f.IsComplex() {
			want /= 2
		}
		if got := f.ComponentWidth(); got != want {
			t.Fatalf("%s: expected component width %d got %d", f, want, got)
		}
		if got := kindWidth[f.Kind()]; got != want {
			t.Fatalf("%s: kind %s width %d does not match table %d", f, f.Kind(), got, want)
		}
	}
	if InvalidFormat.ComponentWidth() != 0 {
		t.Fatalf("invalid format should have zero width")
	}
}

func TestFormatsListsTable(t *testing.T) {
	all := Formats()
	if len(all) != 28 {
		t.Fatalf("expected 28 formats, got %d", len(all))
	}
	seen := map[SampleFormat]bool{}
	for _, f := range all {
		if _, ok := documentedSizes[f]; !ok {
			t.Fatalf("%s is not documented", f)
		}
		if seen[f] {
			t.Fatalf("%s listed twice", f)
		}
		seen[f] = true
	}
}

func TestKindPredicates(t *testing.T) {
	if !KindInt128.Signed() || KindUint128.Signed() || KindFloat32.Signed() {
		t.Fatalf("unexpected Signed results")
	}
	if !KindFloat16.Float() || !KindFloat128.Float() || KindInt64.Float() {
		t.Fatalf("unexpected Float results")
	}
	if Kind(14).String() != "Kind(14)" {
		t.Fatalf("unexpected name for out of range kind: %s", Kind(14))
	}
}

func TestParseSampleFormat(t *testing.T) {
	cases := map[string]SampleFormat{
		"ComplexInt16":  ComplexInt16,
		"scalarfloat32": ScalarFloat32,
		" 0x83 ":        ComplexInt16,
		"3":             ScalarInt16,
		"0x8d":          ComplexFloat128,
	}
	for in, want := range cases {
		got, err := ParseSampleFormat(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	for _, in := range []string{"", "Invalid", "0xff", "0x42", "256", "Int16"} {
		if _, err := ParseSampleFormat(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}
