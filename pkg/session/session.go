// Package session implements the control-plane session loop: the
// post-TLS-handshake version/authenticate exchange, then a steady-state
// dispatch loop that drains inbound control messages, drains the
// per-client outbound queue, and runs a periodic ping-liveness check. It
// is grounded on grumble's cmd/grumble/client.go tlsRecvLoop state machine
// (StateClientConnected → StateServerSentVersion → StateClientSentVersion
// → StateClientReady), generalized to this server's registration/broadcast
// rules and its minimum-protocol-version gate.
package session

import (
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/lotlab/voxrelay/pkg/channel"
	"github.com/lotlab/voxrelay/pkg/client"
	"github.com/lotlab/voxrelay/pkg/fanout"
	"github.com/lotlab/voxrelay/pkg/mumbleproto"
	"github.com/lotlab/voxrelay/pkg/state"
	"github.com/lotlab/voxrelay/pkg/target"
	"github.com/lotlab/voxrelay/pkg/voice"
	"github.com/lotlab/voxrelay/pkg/voxerr"
)

// MinProtocolVersion is the lowest client protocol version this server
// accepts. Not wire-mandated; chosen to match standard Mumble clients.
const MinProtocolVersion uint64 = 1<<48 | 2<<32 // encodes 1.2.0 in the version_v2 packed form

// VersionHandshakeTimeout bounds how long the server waits for the
// client's initial Version message.
const VersionHandshakeTimeout = 5 * time.Second

// OutboundQueueCapacity is the per-client publisher queue depth.
const OutboundQueueCapacity = 1024

// Config carries the values the ServerSync/ServerConfig handshake
// messages advertise.
type Config struct {
	WelcomeText        string
	MaxBandwidth       uint32
	MaxUsers           uint32
	MessageLength      uint32
	ImageMessageLength uint32
	ServerRelease      string

	// TargetCapacity sizes each client's VoiceTarget table (CLIENT_CAPACITY,
	// clamped to target.MaxSlots by the caller).
	TargetCapacity int
}

// DefaultConfig returns the relay's default handshake advertisement values.
func DefaultConfig() Config {
	return Config{
		WelcomeText:        "Welcome to the relay.",
		MaxBandwidth:       72000,
		MaxUsers:           2048,
		MessageLength:      512,
		ImageMessageLength: 0,
		ServerRelease:      "voxrelay",
		TargetCapacity:     target.MaxSlots,
	}
}

func protocolViolation(op string) error {
	return voxerr.New(op, voxerr.KindUnexpectedMessage, "inbound", nil)
}

func versionTooOld(op string) error {
	return voxerr.New(op, voxerr.KindUnexpectedMessage, "inbound", errors.New("client protocol version below server minimum"))
}

func ioErr(op string, err error) error {
	return voxerr.New(op, voxerr.KindIO, "inbound", err)
}

func decodeErr(op string, err error) error {
	return voxerr.New(op, voxerr.KindProtocolDecode, "inbound", err)
}

// EventSink receives join/leave/move notifications for the admin event
// stream. A Loop with a nil Events field simply skips notification.
type EventSink interface {
	Publish(kind string, session uint32, username string, channelID uint32)
}

// Loop runs one accepted connection's session from handshake through
// close.
type Loop struct {
	State      *state.ServerState
	Dispatcher *fanout.Dispatcher
	Config     Config
	Logger     *log.Logger
	Events     EventSink
}

// New returns a Loop wired to the given registry and dispatcher.
func New(s *state.ServerState, d *fanout.Dispatcher, cfg Config, logger *log.Logger) *Loop {
	return &Loop{State: s, Dispatcher: d, Config: cfg, Logger: logger}
}

func (l *Loop) notify(kind string, c *client.Client) {
	if l.Events == nil {
		return
	}
	l.Events.Publish(kind, c.Session, c.Username, c.Channel())
}

// Run drives conn through the handshake and then the steady-state
// dispatch loop until the session ends, for any reason. It always
// performs the ServerState cleanup (remove_client) before returning.
func (l *Loop) Run(conn net.Conn) error {
	c, err := l.handshake(conn)
	if err != nil {
		conn.Close()
		return err
	}

	err = l.steadyState(c)

	if removed, ok := l.State.RemoveClient(c.Session); ok {
		l.State.Channels.RemoveIfEmptyTemporary(removed.Channel(), l.State.CountInChannel(removed.Channel()))
		l.State.Broadcast(&mumbleproto.UserRemove{Session: mumbleproto.Uint32(removed.Session)}, nil)
		l.notify("leave", removed)
	}
	conn.Close()
	return err
}

// handshake runs the version exchange through session registration:
// receive the client's Version, reply with the server's own Version, wait
// for Authenticate, send the crypt setup, then register and broadcast
// join. A failure after registration removes the client again.
func (l *Loop) handshake(conn net.Conn) (*client.Client, error) {
	conn.SetReadDeadline(time.Now().Add(VersionHandshakeTimeout))
	kind, payload, err := mumbleproto.ReadFrame(conn)
	if err != nil {
		return nil, ioErr("session.handshake", err)
	}
	if kind != mumbleproto.TypeVersion {
		return nil, protocolViolation("session.handshake")
	}
	clientVersion, err := mumbleproto.UnmarshalVersion(payload)
	if err != nil {
		return nil, decodeErr("session.handshake", err)
	}
	if clientVersion.VersionV2 != nil && *clientVersion.VersionV2 < MinProtocolVersion {
		return nil, versionTooOld("session.handshake")
	}
	// Clients that send only version_v1 pack it as major<<16 | minor<<8 | patch.
	if clientVersion.VersionV2 == nil && clientVersion.VersionV1 != nil && *clientVersion.VersionV1 < 1<<16|2<<8 {
		return nil, versionTooOld("session.handshake")
	}
	conn.SetReadDeadline(time.Time{})

	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	c, err := client.New(0, conn, logger, OutboundQueueCapacity, l.Config.TargetCapacity)
	if err != nil {
		return nil, err
	}

	if err := c.Send(&mumbleproto.Version{
		VersionV2: mumbleproto.Uint64(MinProtocolVersion),
		Release:   mumbleproto.String(l.Config.ServerRelease),
	}); err != nil {
		return nil, err
	}

	kind, payload, err = mumbleproto.ReadFrame(conn)
	if err != nil {
		return nil, ioErr("session.handshake", err)
	}
	if kind != mumbleproto.TypeAuthenticate {
		return nil, protocolViolation("session.handshake")
	}
	auth, err := mumbleproto.UnmarshalAuthenticate(payload)
	if err != nil {
		return nil, decodeErr("session.handshake", err)
	}
	if auth.Username != nil {
		c.Username = *auth.Username
	}
	c.Tokens = auth.Tokens
	c.Codecs = auth.CeltVersions
	if auth.Opus != nil {
		c.Opus = *auth.Opus
	}

	if err := c.Send(&mumbleproto.CryptSetup{
		Key:         c.Crypt.GetCryptSetup().Key[:],
		ClientNonce: c.Crypt.GetCryptSetup().ClientNonce[:],
		ServerNonce: c.Crypt.GetCryptSetup().ServerNonce[:],
	}); err != nil {
		return nil, err
	}

	session := l.State.AddClient(c)
	c.SetChannel(channel.RootID)
	registered := false
	defer func() {
		if !registered {
			l.State.RemoveClient(session)
		}
	}()

	if err := c.Send(&mumbleproto.CodecVersion{
		Alpha: mumbleproto.Int32(0), Beta: mumbleproto.Int32(0),
		PreferAlpha: mumbleproto.Bool(true), Opus: mumbleproto.Bool(true),
	}); err != nil {
		return nil, err
	}
	for _, ch := range l.State.Channels.All() {
		if err := c.Send(&mumbleproto.ChannelState{
			ChannelID: mumbleproto.Uint32(ch.ID),
			Name:      mumbleproto.String(ch.Name),
			Parent:    mumbleproto.Uint32(ch.ParentID),
		}); err != nil {
			return nil, err
		}
	}
	for _, other := range l.State.All() {
		if other.Session == session {
			continue
		}
		if err := c.Send(&mumbleproto.UserState{
			Session:   mumbleproto.Uint32(other.Session),
			Name:      mumbleproto.String(other.Username),
			ChannelID: mumbleproto.Uint32(other.Channel()),
		}); err != nil {
			return nil, err
		}
	}
	if err := c.Send(&mumbleproto.UserState{
		Session:   mumbleproto.Uint32(session),
		Name:      mumbleproto.String(c.Username),
		ChannelID: mumbleproto.Uint32(channel.RootID),
	}); err != nil {
		return nil, err
	}
	if err := c.Send(&mumbleproto.ServerSync{
		Session:      mumbleproto.Uint32(session),
		MaxBandwidth: mumbleproto.Uint32(l.Config.MaxBandwidth),
		WelcomeText:  mumbleproto.String(l.Config.WelcomeText),
	}); err != nil {
		return nil, err
	}
	if err := c.Send(&mumbleproto.ServerConfig{
		MaxUsers:           mumbleproto.Uint32(l.Config.MaxUsers),
		AllowHTML:          mumbleproto.Bool(true),
		MessageLength:      mumbleproto.Uint32(l.Config.MessageLength),
		ImageMessageLength: mumbleproto.Uint32(l.Config.ImageMessageLength),
	}); err != nil {
		return nil, err
	}

	l.State.Broadcast(&mumbleproto.UserState{
		Session:   mumbleproto.Uint32(session),
		Name:      mumbleproto.String(c.Username),
		ChannelID: mumbleproto.Uint32(channel.RootID),
	}, func(other *client.Client) bool { return other.Session != session })
	l.notify("join", c)

	registered = true
	return c, nil
}

// steadyState concurrently drains the TLS control stream, drains the
// outbound publisher queue, and enforces ping liveness, until any of the
// three ends the session.
func (l *Loop) steadyState(c *client.Client) error {
	done := make(chan error, 3)
	stop := make(chan struct{})
	defer close(stop)

	go func() { done <- l.readLoop(c, stop) }()
	go func() { done <- l.outboundLoop(c, stop) }()
	go func() { done <- l.pingLivenessLoop(c, stop) }()

	return <-done
}

func (l *Loop) readLoop(c *client.Client, stop <-chan struct{}) error {
	for {
		kind, payload, err := mumbleproto.ReadFrame(c.Conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return ioErr("session.readLoop", err)
		}
		if err := l.handle(c, kind, payload); err != nil {
			return err
		}
		select {
		case <-stop:
			return nil
		default:
		}
	}
}

func (l *Loop) outboundLoop(c *client.Client, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case msg := <-c.Outbound:
			if err := c.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) pingLivenessLoop(c *client.Client, stop <-chan struct{}) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if c.Idle() {
				return voxerr.New("session.pingLivenessLoop", voxerr.KindNoPing, "inbound", nil)
			}
		}
	}
}

// handle dispatches one decoded control message to its handler.
func (l *Loop) handle(c *client.Client, kind mumbleproto.Type, payload []byte) error {
	switch kind {
	case mumbleproto.TypePing:
		return l.handlePing(c, payload)
	case mumbleproto.TypeUserState:
		return l.handleUserState(c, payload)
	case mumbleproto.TypeVoiceTarget:
		return l.handleVoiceTarget(c, payload)
	case mumbleproto.TypeUDPTunnel:
		return l.handleUDPTunnel(c, payload)
	case mumbleproto.TypeCryptSetup:
		return l.handleCryptSetup(c, payload)
	case mumbleproto.TypeAuthenticate:
		// Authenticate is only valid once, during the handshake.
		return protocolViolation("session.handle")
	default:
		// Unknown or not-yet-modeled message types are ignored rather
		// than treated as fatal, matching grumble's tolerance for
		// messages it doesn't act on.
		return nil
	}
}

func (l *Loop) handlePing(c *client.Client, payload []byte) error {
	ping, err := mumbleproto.UnmarshalPing(payload)
	if err != nil {
		return decodeErr("session.handlePing", err)
	}
	c.Touch()
	good, late, lost, resync := c.Crypt.Stats()
	reply := &mumbleproto.Ping{
		Good: mumbleproto.Uint32(good), Late: mumbleproto.Uint32(late),
		Lost: mumbleproto.Uint32(lost), Resync: mumbleproto.Uint32(resync),
	}
	if ping.Timestamp != nil {
		reply.Timestamp = ping.Timestamp
	}
	return c.Send(reply)
}

func (l *Loop) handleUserState(c *client.Client, payload []byte) error {
	us, err := mumbleproto.UnmarshalUserState(payload)
	if err != nil {
		return decodeErr("session.handleUserState", err)
	}
	c.SetMuteDeaf(us.Mute, us.Deaf, us.SelfMute, us.SelfDeaf)

	if us.ChannelID != nil {
		if err := l.State.MoveClient(c.Session, *us.ChannelID); err != nil {
			voxerr.New("session.handleUserState", voxerr.KindUnknownChannel, "inbound", err)
			return nil // invalid channel id: ignore, not fatal
		}
		c.SetChannel(*us.ChannelID)
		l.notify("move", c)
	}

	l.State.Broadcast(&mumbleproto.UserState{
		Session:   mumbleproto.Uint32(c.Session),
		ChannelID: mumbleproto.Uint32(c.Channel()),
		Mute:      mumbleproto.Bool(c.Mute()),
		Deaf:      mumbleproto.Bool(c.Deaf()),
		SelfMute:  mumbleproto.Bool(c.SelfMute()),
		SelfDeaf:  mumbleproto.Bool(c.SelfDeaf()),
	}, nil)
	return nil
}

func (l *Loop) handleVoiceTarget(c *client.Client, payload []byte) error {
	vt, err := mumbleproto.UnmarshalVoiceTarget(payload)
	if err != nil {
		return decodeErr("session.handleVoiceTarget", err)
	}
	if vt.ID == nil {
		return nil
	}
	id := byte(*vt.ID)
	if len(vt.Targets) == 0 {
		c.Targets.Clear(id)
		return nil
	}
	var entry target.Entry
	for _, t := range vt.Targets {
		entry.Users = append(entry.Users, t.Session...)
		if t.ChannelID != nil {
			entry.HasChannel = true
			entry.Channel = *t.ChannelID
		}
		if t.Links != nil {
			entry.IncludeLinked = *t.Links
		}
		if t.Children != nil {
			entry.IncludeChildren = *t.Children
		}
		if t.Group != nil {
			entry.Group = *t.Group
		}
	}
	c.Targets.Set(id, entry)
	return nil
}

func (l *Loop) handleUDPTunnel(c *client.Client, payload []byte) error {
	tun, err := mumbleproto.UnmarshalUDPTunnel(payload)
	if err != nil {
		return decodeErr("session.handleUDPTunnel", err)
	}
	frame, err := voice.Decode(tun.Packet, voice.CodecFor(c.Opus))
	if err != nil {
		voxerr.New("session.handleUDPTunnel", voxerr.KindProtocolDecode, "inbound", err)
		return nil // malformed voice frame: drop, not fatal to the session
	}
	if frame.Type == voice.TypePing {
		return c.Send(&mumbleproto.UDPTunnel{Packet: tun.Packet})
	}
	l.Dispatcher.Dispatch(c, frame, true)
	return nil
}

func (l *Loop) handleCryptSetup(c *client.Client, payload []byte) error {
	cs, err := mumbleproto.UnmarshalCryptSetup(payload)
	if err != nil {
		return decodeErr("session.handleCryptSetup", err)
	}
	if cs.ClientNonce != nil {
		if err := c.Crypt.SetDecryptNonce(cs.ClientNonce); err != nil {
			return voxerr.New("session.handleCryptSetup", voxerr.KindCryptSetupMissing, "inbound", err)
		}
	}
	return nil
}
