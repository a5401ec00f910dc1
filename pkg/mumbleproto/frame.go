// Package mumbleproto implements the length-prefixed, protobuf-framed
// control channel messages (the voice-frame codec lives in pkg/voice). Message bodies
// are encoded field-by-field with google.golang.org/protobuf/encoding/protowire
// — the same module grumble (Lotlab-grumble) depends on for its generated
// mumbleproto package, used here at the field level since there is no
// protoc step to regenerate descriptors from a .proto file.
package mumbleproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type identifies a control message's wire type id.
type Type uint16

const (
	TypeVersion          Type = 0
	TypeUDPTunnel        Type = 1
	TypeAuthenticate     Type = 2
	TypePing             Type = 3
	TypeReject           Type = 4
	TypeServerSync       Type = 5
	TypeChannelState     Type = 7
	TypeUserRemove       Type = 8
	TypeUserState        Type = 9
	TypeTextMessage      Type = 11
	TypePermissionDenied Type = 12
	TypeCryptSetup       Type = 15
	TypeCodecVersion     Type = 21
	TypeVoiceTarget      Type = 22
	TypeServerConfig     Type = 24
)

func (t Type) String() string {
	switch t {
	case TypeVersion:
		return "Version"
	case TypeUDPTunnel:
		return "UDPTunnel"
	case TypeAuthenticate:
		return "Authenticate"
	case TypePing:
		return "Ping"
	case TypeReject:
		return "Reject"
	case TypeServerSync:
		return "ServerSync"
	case TypeChannelState:
		return "ChannelState"
	case TypeUserRemove:
		return "UserRemove"
	case TypeUserState:
		return "UserState"
	case TypeTextMessage:
		return "TextMessage"
	case TypePermissionDenied:
		return "PermissionDenied"
	case TypeCryptSetup:
		return "CryptSetup"
	case TypeCodecVersion:
		return "CodecVersion"
	case TypeVoiceTarget:
		return "VoiceTarget"
	case TypeServerConfig:
		return "ServerConfig"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// Message is implemented by every control message body.
type Message interface {
	Kind() Type
	Marshal() []byte
}

// WriteFrame writes the 2-byte type id, 4-byte big-endian length, and
// payload for msg to w.
func WriteFrame(w io.Writer, msg Message) (int, error) {
	payload := msg.Marshal()

	var header [6]byte
	binary.BigEndian.PutUint16(header[0:2], uint16(msg.Kind()))
	binary.BigEndian.PutUint32(header[2:6], uint32(len(payload)))

	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	n2, err := w.Write(payload)
	return n + n2, err
}

// ReadFrame reads one framed message header and payload from r.
func ReadFrame(r io.Reader) (Type, []byte, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	kind := Type(binary.BigEndian.Uint16(header[0:2]))
	length := binary.BigEndian.Uint32(header[2:6])

	// Guard against a malicious or corrupt length triggering an
	// unreasonable allocation; control messages are small.
	const maxFrameSize = 8 * 1024 * 1024
	if length > maxFrameSize {
		return kind, nil, fmt.Errorf("mumbleproto: frame too large (%d bytes)", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return kind, nil, err
	}
	return kind, payload, nil
}

// Decode parses payload into the message type identified by kind.
func Decode(kind Type, payload []byte) (Message, error) {
	switch kind {
	case TypeVersion:
		return UnmarshalVersion(payload)
	case TypeAuthenticate:
		return UnmarshalAuthenticate(payload)
	case TypePing:
		return UnmarshalPing(payload)
	case TypeReject:
		return UnmarshalReject(payload)
	case TypeServerSync:
		return UnmarshalServerSync(payload)
	case TypeChannelState:
		return UnmarshalChannelState(payload)
	case TypeUserRemove:
		return UnmarshalUserRemove(payload)
	case TypeUserState:
		return UnmarshalUserState(payload)
	case TypeTextMessage:
		return UnmarshalTextMessage(payload)
	case TypePermissionDenied:
		return UnmarshalPermissionDenied(payload)
	case TypeCryptSetup:
		return UnmarshalCryptSetup(payload)
	case TypeCodecVersion:
		return UnmarshalCodecVersion(payload)
	case TypeVoiceTarget:
		return UnmarshalVoiceTarget(payload)
	case TypeServerConfig:
		return UnmarshalServerConfig(payload)
	case TypeUDPTunnel:
		return UnmarshalUDPTunnel(payload)
	default:
		return nil, fmt.Errorf("mumbleproto: unknown message type %v", kind)
	}
}
