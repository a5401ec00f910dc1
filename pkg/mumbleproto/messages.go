package mumbleproto

// Helper constructors mirror google.golang.org/protobuf/proto's Bool,
// String, Uint32, ... package-level helpers (used throughout grumble's
// cmd/grumble/client.go as proto.Uint32(...), proto.String(...)) so call
// sites here read the same way.

func Bool(v bool) *bool       { return &v }
func Int32(v int32) *int32    { return &v }
func Uint32(v uint32) *uint32 { return &v }
func Uint64(v uint64) *uint64 { return &v }
func Float32(v float32) *float32 { return &v }
func String(v string) *string { return &v }

// RejectType mirrors the Reject.RejectType enum used during the initial
// handshake to explain why a session was refused.
type RejectType int32

const (
	RejectNone RejectType = iota
	RejectWrongVersion
	RejectInvalidUsername
	RejectUsernameInUse
	RejectServerFull
	RejectNoCertificate
)

// DenyType mirrors PermissionDenied.DenyType.
type DenyType int32

const (
	DenyText DenyType = iota
	DenyPermission
	DenySuperUser
	DenyChannelName
	DenyTextTooLong
	DenyH9K
	DenyTemporaryChannel
	DenyMissingCertificate
	DenyUserName
	DenyChannelFull
	DenyNestingLimit
)

// --- Version (type 0) ---

type Version struct {
	VersionV1 *uint32
	VersionV2 *uint64
	Release   *string
	Os        *string
	OsVersion *string
}

func (m *Version) Kind() Type { return TypeVersion }

func (m *Version) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.VersionV1)
	b = appendString(b, 2, m.Release)
	b = appendString(b, 3, m.Os)
	b = appendString(b, 4, m.OsVersion)
	b = appendUint64(b, 5, m.VersionV2)
	return b
}

func UnmarshalVersion(data []byte) (*Version, error) {
	m := &Version{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.VersionV1 = ptrUint32(f.varint)
		case 2:
			m.Release = ptrString(f.bytes)
		case 3:
			m.Os = ptrString(f.bytes)
		case 4:
			m.OsVersion = ptrString(f.bytes)
		case 5:
			m.VersionV2 = ptrUint64(f.varint)
		}
		return nil
	})
	return m, err
}

// --- Authenticate (type 2) ---

type Authenticate struct {
	Username     *string
	Password     *string
	Tokens       []string
	CeltVersions []int32
	Opus         *bool
}

func (m *Authenticate) Kind() Type { return TypeAuthenticate }

func (m *Authenticate) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Username)
	b = appendString(b, 2, m.Password)
	b = appendRepeatedString(b, 3, m.Tokens)
	b = appendRepeatedInt32(b, 4, m.CeltVersions)
	b = appendBool(b, 5, m.Opus)
	return b
}

func UnmarshalAuthenticate(data []byte) (*Authenticate, error) {
	m := &Authenticate{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Username = ptrString(f.bytes)
		case 2:
			m.Password = ptrString(f.bytes)
		case 3:
			m.Tokens = append(m.Tokens, string(f.bytes))
		case 4:
			m.CeltVersions = append(m.CeltVersions, *ptrInt32(f.varint))
		case 5:
			m.Opus = ptrBool(f.varint)
		}
		return nil
	})
	return m, err
}

// --- Ping (type 3) ---

type Ping struct {
	Timestamp  *uint64
	Good       *uint32
	Late       *uint32
	Lost       *uint32
	Resync     *uint32
	UDPPackets *uint32
	TCPPackets *uint32
}

func (m *Ping) Kind() Type { return TypePing }

func (m *Ping) Marshal() []byte {
	var b []byte
	b = appendUint64(b, 1, m.Timestamp)
	b = appendUint32(b, 2, m.Good)
	b = appendUint32(b, 3, m.Late)
	b = appendUint32(b, 4, m.Lost)
	b = appendUint32(b, 5, m.Resync)
	b = appendUint32(b, 6, m.UDPPackets)
	b = appendUint32(b, 7, m.TCPPackets)
	return b
}

func UnmarshalPing(data []byte) (*Ping, error) {
	m := &Ping{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Timestamp = ptrUint64(f.varint)
		case 2:
			m.Good = ptrUint32(f.varint)
		case 3:
			m.Late = ptrUint32(f.varint)
		case 4:
			m.Lost = ptrUint32(f.varint)
		case 5:
			m.Resync = ptrUint32(f.varint)
		case 6:
			m.UDPPackets = ptrUint32(f.varint)
		case 7:
			m.TCPPackets = ptrUint32(f.varint)
		}
		return nil
	})
	return m, err
}

// --- Reject (type 4) ---

type Reject struct {
	Type   *RejectType
	Reason *string
}

func (m *Reject) Kind() Type { return TypeReject }

func (m *Reject) Marshal() []byte {
	var b []byte
	if m.Type != nil {
		v := uint32(*m.Type)
		b = appendUint32(b, 1, &v)
	}
	b = appendString(b, 2, m.Reason)
	return b
}

func UnmarshalReject(data []byte) (*Reject, error) {
	m := &Reject{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			rt := RejectType(int32(f.varint))
			m.Type = &rt
		case 2:
			m.Reason = ptrString(f.bytes)
		}
		return nil
	})
	return m, err
}

// --- ServerSync (type 5) ---

type ServerSync struct {
	Session      *uint32
	MaxBandwidth *uint32
	WelcomeText  *string
}

func (m *ServerSync) Kind() Type { return TypeServerSync }

func (m *ServerSync) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.Session)
	b = appendUint32(b, 2, m.MaxBandwidth)
	b = appendString(b, 3, m.WelcomeText)
	return b
}

func UnmarshalServerSync(data []byte) (*ServerSync, error) {
	m := &ServerSync{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Session = ptrUint32(f.varint)
		case 2:
			m.MaxBandwidth = ptrUint32(f.varint)
		case 3:
			m.WelcomeText = ptrString(f.bytes)
		}
		return nil
	})
	return m, err
}

// --- ChannelState (type 7) ---

type ChannelState struct {
	ChannelID   *uint32
	Name        *string
	Parent      *uint32
	Links       []uint32
	Description *string
	Temporary   *bool
	Position    *int32
}

func (m *ChannelState) Kind() Type { return TypeChannelState }

func (m *ChannelState) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.ChannelID)
	b = appendString(b, 2, m.Name)
	b = appendUint32(b, 3, m.Parent)
	b = appendRepeatedUint32(b, 4, m.Links)
	b = appendString(b, 5, m.Description)
	b = appendBool(b, 8, m.Temporary)
	b = appendInt32(b, 9, m.Position)
	return b
}

func UnmarshalChannelState(data []byte) (*ChannelState, error) {
	m := &ChannelState{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.ChannelID = ptrUint32(f.varint)
		case 2:
			m.Name = ptrString(f.bytes)
		case 3:
			m.Parent = ptrUint32(f.varint)
		case 4:
			m.Links = append(m.Links, *ptrUint32(f.varint))
		case 5:
			m.Description = ptrString(f.bytes)
		case 8:
			m.Temporary = ptrBool(f.varint)
		case 9:
			m.Position = ptrInt32(f.varint)
		}
		return nil
	})
	return m, err
}

// --- UserRemove (type 8) ---

type UserRemove struct {
	Session *uint32
	Actor   *uint32
	Reason  *string
	Ban     *bool
}

func (m *UserRemove) Kind() Type { return TypeUserRemove }

func (m *UserRemove) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.Session)
	b = appendUint32(b, 2, m.Actor)
	b = appendString(b, 3, m.Reason)
	b = appendBool(b, 4, m.Ban)
	return b
}

func UnmarshalUserRemove(data []byte) (*UserRemove, error) {
	m := &UserRemove{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Session = ptrUint32(f.varint)
		case 2:
			m.Actor = ptrUint32(f.varint)
		case 3:
			m.Reason = ptrString(f.bytes)
		case 4:
			m.Ban = ptrBool(f.varint)
		}
		return nil
	})
	return m, err
}

// --- UserState (type 9) ---

type UserState struct {
	Session   *uint32
	Actor     *uint32
	Name      *string
	ChannelID *uint32
	Mute      *bool
	Deaf      *bool
	Suppress  *bool
	SelfMute  *bool
	SelfDeaf  *bool
}

func (m *UserState) Kind() Type { return TypeUserState }

func (m *UserState) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.Session)
	b = appendUint32(b, 2, m.Actor)
	b = appendString(b, 3, m.Name)
	b = appendUint32(b, 5, m.ChannelID)
	b = appendBool(b, 6, m.Mute)
	b = appendBool(b, 7, m.Deaf)
	b = appendBool(b, 8, m.Suppress)
	b = appendBool(b, 9, m.SelfMute)
	b = appendBool(b, 10, m.SelfDeaf)
	return b
}

func UnmarshalUserState(data []byte) (*UserState, error) {
	m := &UserState{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Session = ptrUint32(f.varint)
		case 2:
			m.Actor = ptrUint32(f.varint)
		case 3:
			m.Name = ptrString(f.bytes)
		case 5:
			m.ChannelID = ptrUint32(f.varint)
		case 6:
			m.Mute = ptrBool(f.varint)
		case 7:
			m.Deaf = ptrBool(f.varint)
		case 8:
			m.Suppress = ptrBool(f.varint)
		case 9:
			m.SelfMute = ptrBool(f.varint)
		case 10:
			m.SelfDeaf = ptrBool(f.varint)
		}
		return nil
	})
	return m, err
}

// --- TextMessage (type 11) ---

type TextMessage struct {
	Actor     *uint32
	Session   []uint32
	ChannelID []uint32
	Message   *string
}

func (m *TextMessage) Kind() Type { return TypeTextMessage }

func (m *TextMessage) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.Actor)
	b = appendRepeatedUint32(b, 2, m.Session)
	b = appendRepeatedUint32(b, 3, m.ChannelID)
	b = appendString(b, 5, m.Message)
	return b
}

func UnmarshalTextMessage(data []byte) (*TextMessage, error) {
	m := &TextMessage{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Actor = ptrUint32(f.varint)
		case 2:
			m.Session = append(m.Session, *ptrUint32(f.varint))
		case 3:
			m.ChannelID = append(m.ChannelID, *ptrUint32(f.varint))
		case 5:
			m.Message = ptrString(f.bytes)
		}
		return nil
	})
	return m, err
}

// --- PermissionDenied (type 12) ---

type PermissionDenied struct {
	Permission *uint32
	ChannelID  *uint32
	Session    *uint32
	Reason     *string
	Type       *DenyType
}

func (m *PermissionDenied) Kind() Type { return TypePermissionDenied }

func (m *PermissionDenied) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.Permission)
	b = appendUint32(b, 2, m.ChannelID)
	b = appendUint32(b, 3, m.Session)
	b = appendString(b, 4, m.Reason)
	if m.Type != nil {
		v := uint32(*m.Type)
		b = appendUint32(b, 5, &v)
	}
	return b
}

func UnmarshalPermissionDenied(data []byte) (*PermissionDenied, error) {
	m := &PermissionDenied{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Permission = ptrUint32(f.varint)
		case 2:
			m.ChannelID = ptrUint32(f.varint)
		case 3:
			m.Session = ptrUint32(f.varint)
		case 4:
			m.Reason = ptrString(f.bytes)
		case 5:
			dt := DenyType(int32(f.varint))
			m.Type = &dt
		}
		return nil
	})
	return m, err
}

// --- CryptSetup (type 15) ---

type CryptSetup struct {
	Key         []byte
	ClientNonce []byte
	ServerNonce []byte
}

func (m *CryptSetup) Kind() Type { return TypeCryptSetup }

func (m *CryptSetup) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.Key)
	b = appendBytes(b, 2, m.ClientNonce)
	b = appendBytes(b, 3, m.ServerNonce)
	return b
}

func UnmarshalCryptSetup(data []byte) (*CryptSetup, error) {
	m := &CryptSetup{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Key = append([]byte(nil), f.bytes...)
		case 2:
			m.ClientNonce = append([]byte(nil), f.bytes...)
		case 3:
			m.ServerNonce = append([]byte(nil), f.bytes...)
		}
		return nil
	})
	return m, err
}

// --- CodecVersion (type 21) ---

type CodecVersion struct {
	Alpha       *int32
	Beta        *int32
	PreferAlpha *bool
	Opus        *bool
}

func (m *CodecVersion) Kind() Type { return TypeCodecVersion }

func (m *CodecVersion) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.Alpha)
	b = appendInt32(b, 2, m.Beta)
	b = appendBool(b, 3, m.PreferAlpha)
	b = appendBool(b, 4, m.Opus)
	return b
}

func UnmarshalCodecVersion(data []byte) (*CodecVersion, error) {
	m := &CodecVersion{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Alpha = ptrInt32(f.varint)
		case 2:
			m.Beta = ptrInt32(f.varint)
		case 3:
			m.PreferAlpha = ptrBool(f.varint)
		case 4:
			m.Opus = ptrBool(f.varint)
		}
		return nil
	})
	return m, err
}

// --- VoiceTarget (type 22) ---

// VoiceTargetEntry is one Target submessage within a VoiceTarget message.
type VoiceTargetEntry struct {
	Session  []uint32
	ChannelID *uint32
	Group    *string
	Links    *bool
	Children *bool
}

func (e *VoiceTargetEntry) marshal() []byte {
	var b []byte
	b = appendRepeatedUint32(b, 1, e.Session)
	b = appendUint32(b, 2, e.ChannelID)
	b = appendString(b, 3, e.Group)
	b = appendBool(b, 4, e.Links)
	b = appendBool(b, 5, e.Children)
	return b
}

func unmarshalVoiceTargetEntry(data []byte) (*VoiceTargetEntry, error) {
	e := &VoiceTargetEntry{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			e.Session = append(e.Session, *ptrUint32(f.varint))
		case 2:
			e.ChannelID = ptrUint32(f.varint)
		case 3:
			e.Group = ptrString(f.bytes)
		case 4:
			e.Links = ptrBool(f.varint)
		case 5:
			e.Children = ptrBool(f.varint)
		}
		return nil
	})
	return e, err
}

type VoiceTarget struct {
	ID      *uint32
	Targets []*VoiceTargetEntry
}

func (m *VoiceTarget) Kind() Type { return TypeVoiceTarget }

func (m *VoiceTarget) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.ID)
	for _, t := range m.Targets {
		b = appendEmbedded(b, 2, t.marshal())
	}
	return b
}

func UnmarshalVoiceTarget(data []byte) (*VoiceTarget, error) {
	m := &VoiceTarget{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.ID = ptrUint32(f.varint)
		case 2:
			e, err := unmarshalVoiceTargetEntry(f.bytes)
			if err != nil {
				return err
			}
			m.Targets = append(m.Targets, e)
		}
		return nil
	})
	return m, err
}

// --- ServerConfig (type 24) ---

type ServerConfig struct {
	MaxBandwidth       *uint32
	WelcomeText        *string
	AllowHTML          *bool
	MessageLength      *uint32
	ImageMessageLength *uint32
	MaxUsers           *uint32
}

func (m *ServerConfig) Kind() Type { return TypeServerConfig }

func (m *ServerConfig) Marshal() []byte {
	var b []byte
	b = appendUint32(b, 1, m.MaxBandwidth)
	b = appendString(b, 2, m.WelcomeText)
	b = appendBool(b, 3, m.AllowHTML)
	b = appendUint32(b, 4, m.MessageLength)
	b = appendUint32(b, 5, m.ImageMessageLength)
	b = appendUint32(b, 6, m.MaxUsers)
	return b
}

func UnmarshalServerConfig(data []byte) (*ServerConfig, error) {
	m := &ServerConfig{}
	err := walkFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.MaxBandwidth = ptrUint32(f.varint)
		case 2:
			m.WelcomeText = ptrString(f.bytes)
		case 3:
			m.AllowHTML = ptrBool(f.varint)
		case 4:
			m.MessageLength = ptrUint32(f.varint)
		case 5:
			m.ImageMessageLength = ptrUint32(f.varint)
		case 6:
			m.MaxUsers = ptrUint32(f.varint)
		}
		return nil
	})
	return m, err
}

// --- UDPTunnel (type 1) ---
//
// The wire body wraps the raw voice-frame bytes in a single field, per
// ZUMBLE's client.rs (original_source): `tunnel_message.set_packet(...)`,
// which this follows for the exact framing of the tunneled payload.

type UDPTunnel struct {
	Packet []byte
}

func (m *UDPTunnel) Kind() Type { return TypeUDPTunnel }

func (m *UDPTunnel) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.Packet)
	return b
}

func UnmarshalUDPTunnel(data []byte) (*UDPTunnel, error) {
	m := &UDPTunnel{}
	err := walkFields(data, func(f field) error {
		if f.num == 1 {
			m.Packet = append([]byte(nil), f.bytes...)
		}
		return nil
	})
	return m, err
}
