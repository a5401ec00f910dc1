// Package voice implements the plaintext voice-frame codec that rides
// inside each CryptState-decrypted UDP datagram (or UDPTunnel payload).
// The header-byte layout (type in the top 3 bits, target in the low 5)
// is grounded on grumble's pkg/mumbleproto/udp_packet.go, whose
// PingPacket.LegacyData builds the same "(type << 5) | target" byte for
// the legacy wire; the per-codec frame body (varint length prefix,
// terminator bit) and the trailing positional-audio floats are this
// server's own extrapolation from that header, not copied from any
// single source file.
package voice

import (
	"errors"
	"math"

	"github.com/lotlab/voxrelay/pkg/packetdata"
	"github.com/lotlab/voxrelay/pkg/varint"
)

// Type is the voice frame's header type field (high 3 bits of the first
// byte).
type Type byte

const (
	TypeNormal         Type = 0
	TypeWhisperChannel Type = 1
	TypeWhisperUser    Type = 2
	TypeServerLoopback Type = 3
	TypePing           Type = 4
)

// Codec identifies the payload's audio codec, carried out-of-band by the
// caller (CodecVersion negotiated at handshake) — the frame header itself
// does not distinguish Opus from CELT.
type Codec int

const (
	CodecOpus Codec = iota
	CodecCELT
)

// CodecFor reports which codec framing to use for a client that
// negotiated opus at handshake (Authenticate.opus).
func CodecFor(opus bool) Codec {
	if opus {
		return CodecOpus
	}
	return CodecCELT
}

// PositionalSize is the byte length of the optional trailing positional
// trailer: three little-endian float32 coordinates.
const PositionalSize = 12

var (
	// ErrTruncated is returned when a frame is shorter than its header
	// declares.
	ErrTruncated = errors.New("voice: truncated frame")
	// ErrBadTarget is returned when the header's low 5 bits (target id)
	// are out of the 0..31 range the format reserves for them. This
	// cannot actually happen since the field is exactly 5 bits wide;
	// retained so callers have a stable sentinel if the mask ever widens.
	ErrBadTarget = errors.New("voice: target id out of range")
)

// Frame is one decoded voice packet.
type Frame struct {
	Type      Type
	Target    byte // 0..31, meaning depends on Type
	Session   uint32
	Sequence  int64
	Codec     Codec
	Payload   []byte // codec payload, with its length-prefix octets stripped
	Positional *[3]float32
}

// Decode parses a plaintext voice datagram (post-CryptState-decrypt)
// into a Frame. codec tells Decode how to delimit the audio payload,
// since the header byte alone does not carry that information.
func Decode(buf []byte, codec Codec) (Frame, error) {
	if len(buf) < 1 {
		return Frame{}, ErrTruncated
	}

	cur := packetdata.New(buf)
	header := cur.Next8()
	f := Frame{
		Type:   Type(header >> 5),
		Target: header & 0x1F,
		Codec:  codec,
	}

	f.Session = uint32(cur.GetUint64())
	f.Sequence = int64(cur.GetUint64())
	if !cur.IsValid() {
		return Frame{}, ErrTruncated
	}

	switch codec {
	case CodecOpus:
		// Bit 13 of the length varint is a terminator flag (more frames
		// follow in the same datagram when set); the low 13 bits are the
		// payload length.
		length := cur.GetUint64()
		payloadLen := int(length &^ (1 << 13))
		payload := cur.GetBytes(payloadLen)
		if !cur.IsValid() {
			return Frame{}, ErrTruncated
		}
		f.Payload = append([]byte(nil), payload...)
	case CodecCELT:
		for {
			head := cur.Next8()
			if !cur.IsValid() {
				return Frame{}, ErrTruncated
			}
			frameLen := int(head & 0x7F)
			chunk := cur.GetBytes(frameLen)
			if !cur.IsValid() {
				return Frame{}, ErrTruncated
			}
			f.Payload = append(f.Payload, chunk...)
			if head&0x80 == 0 {
				break
			}
		}
	default:
		return Frame{}, errors.New("voice: unknown codec")
	}

	if cur.Left() >= PositionalSize {
		var pos [3]float32
		for i := 0; i < 3; i++ {
			pos[i] = cur.GetFloat32()
		}
		f.Positional = &pos
	}

	return f, nil
}

// Encode serializes f into the plaintext wire form Decode accepts.
func Encode(f Frame) []byte {
	buf := make([]byte, 0, len(f.Payload)+16)
	buf = append(buf, byte(f.Type)<<5|f.Target&0x1F)
	buf = varint.Encode(buf, int64(f.Session))
	buf = varint.Encode(buf, f.Sequence)

	switch f.Codec {
	case CodecOpus:
		buf = varint.Encode(buf, int64(len(f.Payload)))
		buf = append(buf, f.Payload...)
	case CodecCELT:
		buf = append(buf, byte(len(f.Payload)&0x7F))
		buf = append(buf, f.Payload...)
	}

	if f.Positional != nil {
		for _, c := range f.Positional {
			buf = appendFloat32LE(buf, c)
		}
	}
	return buf
}

func appendFloat32LE(buf []byte, v float32) []byte {
	bits := math.Float32bits(v)
	return append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}
