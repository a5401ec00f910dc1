package varint_test

import (
	"testing"

	"github.com/lotlab/voxrelay/pkg/varint"
)

func TestRoundTrip(t *testing.T) {
	cases := []int64{
		0, 1, 127, 128, 16383, 16384,
		1<<21 - 1, 1 << 21,
		1<<28 - 1, 1 << 28,
		1<<32 - 1, 1 << 32,
		1 << 53,
		-1, -2, -4, -42, -1 << 20,
	}

	for _, want := range cases {
		buf := varint.Encode(nil, want)
		got, n, err := varint.Decode(buf)
		if err != nil {
			t.Fatalf("Decode(%d): %v", want, err)
		}
		if n != len(buf) {
			t.Errorf("Decode(%d): consumed %d bytes, encoded %d", want, n, len(buf))
		}
		if got != want {
			t.Errorf("round trip mismatch: encoded %d, decoded %d", want, got)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	// A 21-bit prefix promising two more bytes but supplying none.
	_, _, err := varint.Decode([]byte{0xC0})
	if err != varint.ErrTruncated {
		t.Fatalf("got %v, want ErrTruncated", err)
	}

	_, _, err = varint.Decode(nil)
	if err != varint.ErrTruncated {
		t.Fatalf("empty buffer: got %v, want ErrTruncated", err)
	}
}

func TestEncodeConsecutiveValues(t *testing.T) {
	var buf []byte
	buf = varint.Encode(buf, 1)
	buf = varint.Encode(buf, 300)
	buf = varint.Encode(buf, -3)

	v1, n1, err := varint.Decode(buf)
	if err != nil || v1 != 1 {
		t.Fatalf("first value: got %d, %d, %v", v1, n1, err)
	}
	buf = buf[n1:]

	v2, n2, err := varint.Decode(buf)
	if err != nil || v2 != 300 {
		t.Fatalf("second value: got %d, %d, %v", v2, n2, err)
	}
	buf = buf[n2:]

	v3, _, err := varint.Decode(buf)
	if err != nil || v3 != -3 {
		t.Fatalf("third value: got %d, %v", v3, err)
	}
}
