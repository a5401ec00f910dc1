package packetdata_test

import (
	"testing"

	"github.com/lotlab/voxrelay/pkg/packetdata"
)

func TestCursorReadsSequentially(t *testing.T) {
	buf := []byte{0x42, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0xAA, 0xBB}
	c := packetdata.New(buf)

	if got := c.Next8(); got != 0x42 {
		t.Fatalf("Next8 = %#x, want 0x42", got)
	}
	if got := c.GetUint16(); got != 1 {
		t.Fatalf("GetUint16 = %d, want 1", got)
	}
	if got := c.GetUint32(); got != 2 {
		t.Fatalf("GetUint32 = %d, want 2", got)
	}
	if got := c.GetBytes(2); !bytesEqual(got, []byte{0xAA, 0xBB}) {
		t.Fatalf("GetBytes = %v, want [0xAA 0xBB]", got)
	}
	if !c.IsValid() {
		t.Fatalf("expected cursor to remain valid")
	}
	if c.Left() != 0 {
		t.Fatalf("Left() = %d, want 0", c.Left())
	}
}

func TestCursorInvalidatesOnOverrun(t *testing.T) {
	c := packetdata.New([]byte{0x01})
	_ = c.GetUint32()
	if c.IsValid() {
		t.Fatalf("expected cursor to be invalidated by an out-of-bounds read")
	}
}

func TestCursorFloat32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	packetdata.New(buf).PutFloat32LE(-3.5)
	got := packetdata.New(buf).GetFloat32()
	if got != -3.5 {
		t.Fatalf("GetFloat32 = %v, want -3.5", got)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
