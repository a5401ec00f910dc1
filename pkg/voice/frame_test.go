package voice_test

import (
	"bytes"
	"testing"

	"github.com/lotlab/voxrelay/pkg/voice"
)

func TestEncodeDecodeRoundTripOpus(t *testing.T) {
	f := voice.Frame{
		Type:     voice.TypeNormal,
		Target:   0,
		Session:  1234,
		Sequence: 99,
		Codec:    voice.CodecOpus,
		Payload:  []byte{0x01, 0x02, 0x03, 0x04, 0x05},
	}

	wire := voice.Encode(f)
	got, err := voice.Decode(wire, voice.CodecOpus)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// Session is overwritten by the server on the fan-out path, not by
	// the codec itself, so it round-trips here exactly as encoded.
	if got.Type != f.Type || got.Target != f.Target || got.Session != f.Session || got.Sequence != f.Sequence {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("payload mismatch: got %v want %v", got.Payload, f.Payload)
	}
}

func TestEncodeDecodeRoundTripWithPositional(t *testing.T) {
	pos := [3]float32{1.5, -2.25, 0}
	f := voice.Frame{
		Type:       voice.TypeWhisperUser,
		Target:     5,
		Session:    7,
		Sequence:   1,
		Codec:      voice.CodecOpus,
		Payload:    []byte{0xAA, 0xBB},
		Positional: &pos,
	}

	wire := voice.Encode(f)
	got, err := voice.Decode(wire, voice.CodecOpus)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Positional == nil {
		t.Fatalf("Positional = nil, want %v", pos)
	}
	if *got.Positional != pos {
		t.Fatalf("Positional = %v, want %v", *got.Positional, pos)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	if _, err := voice.Decode(nil, voice.CodecOpus); err == nil {
		t.Fatalf("expected error decoding empty buffer")
	}
}

func TestPingFrameRoundTrip(t *testing.T) {
	f := voice.Frame{
		Type:     voice.TypePing,
		Sequence: 555,
		Codec:    voice.CodecOpus,
		Payload:  nil,
	}
	wire := voice.Encode(f)
	got, err := voice.Decode(wire, voice.CodecOpus)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != voice.TypePing || got.Sequence != 555 {
		t.Fatalf("got %+v", got)
	}
}
