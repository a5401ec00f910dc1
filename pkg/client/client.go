// Package client implements the per-connection Client record: identity,
// mute/deaf state, the owned CryptState, the exclusive TLS writer
// half, and the VoiceTarget slot table. It is grounded on grumble's
// cmd/grumble/client.go Client struct and its sendMessage/SendUDP
// writer discipline, generalized from Grumble's registered-user model
// to this server's stateless-identity model.
package client

import (
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lotlab/voxrelay/pkg/cryptstate"
	"github.com/lotlab/voxrelay/pkg/mumbleproto"
	"github.com/lotlab/voxrelay/pkg/target"
	"github.com/lotlab/voxrelay/pkg/voxerr"
)

// writeTimeoutErr builds the error Send returns when the exclusive
// writer lock or the underlying write did not complete within
// WriteTimeout. It is a function, not a sentinel var, so every occurrence
// is counted.
func writeTimeoutErr() error {
	return voxerr.New("client.Send", voxerr.KindTimeout, "outbound", errors.New("write timeout"))
}

// WriteTimeout bounds one framed message write to the TLS connection.
const WriteTimeout = 1 * time.Second

// PingTimeout is how long a session may go without a Ping before the
// session loop closes it with NoPing.
const PingTimeout = 30 * time.Second

// Version records the handshake-reported client identity.
type Version struct {
	Protocol  uint64
	Release   string
	OS        string
	OSVersion string
}

// Client is one connected session: a TLS control stream, an optional
// UDP voice peer, and the mutable state the protocol exposes to other
// clients via UserState broadcasts.
type Client struct {
	*log.Logger

	Session uint32

	Conn   net.Conn // TLS stream; writes serialized by writeMu
	writeMu sync.Mutex

	Version  Version
	Username string
	Tokens   []string

	Opus   bool
	Codecs []int32

	channelID int64 // atomic: read/written without holding writeMu

	muteDeaf struct {
		mu       sync.RWMutex
		selfMute bool
		selfDeaf bool
		mute     bool
		deaf     bool
	}

	Crypt *cryptstate.CryptState

	udpAddr atomic.Pointer[net.UDPAddr]

	lastPing atomic.Int64 // unix nanos

	Targets target.Table

	// Outbound is a buffered queue of control messages that the session
	// loop drains concurrently with the TLS read loop, writing each one
	// with Send. Fan-out does not use it: Dispatch and Broadcast write to
	// recipients directly through Send/SendVoice, so no full-queue drop or
	// close policy applies to their writes.
	Outbound chan mumbleproto.Message
}

// New constructs a Client bound to conn with a fresh CryptState, an
// outbound queue of the given capacity, and a VoiceTarget table sized by
// targetCapacity (the server's configured CLIENT_CAPACITY, clamped to
// target.MaxSlots).
func New(session uint32, conn net.Conn, logger *log.Logger, outboundCapacity, targetCapacity int) (*Client, error) {
	cs, err := cryptstate.New()
	if err != nil {
		return nil, err
	}
	c := &Client{
		Logger:   logger,
		Session:  session,
		Conn:     conn,
		Crypt:    cs,
		Outbound: make(chan mumbleproto.Message, outboundCapacity),
	}
	c.Targets.Init(targetCapacity)
	c.lastPing.Store(time.Now().UnixNano())
	return c, nil
}

// Channel returns the client's current channel id.
func (c *Client) Channel() uint32 {
	return uint32(atomic.LoadInt64(&c.channelID))
}

// SetChannel atomically updates the client's current channel id.
func (c *Client) SetChannel(id uint32) {
	atomic.StoreInt64(&c.channelID, int64(id))
}

// Mute/Deaf/SelfMute/SelfDeaf report the corresponding UserState flags.
func (c *Client) Mute() bool {
	c.muteDeaf.mu.RLock()
	defer c.muteDeaf.mu.RUnlock()
	return c.muteDeaf.mute
}

func (c *Client) Deaf() bool {
	c.muteDeaf.mu.RLock()
	defer c.muteDeaf.mu.RUnlock()
	return c.muteDeaf.deaf
}

func (c *Client) SelfMute() bool {
	c.muteDeaf.mu.RLock()
	defer c.muteDeaf.mu.RUnlock()
	return c.muteDeaf.selfMute
}

func (c *Client) SelfDeaf() bool {
	c.muteDeaf.mu.RLock()
	defer c.muteDeaf.mu.RUnlock()
	return c.muteDeaf.selfDeaf
}

// SetMuteDeaf installs the given flags, whichever the caller supplies
// (nil means "leave unchanged") — mirrors the partial-update semantics
// of an incoming UserState message, where only set fields are touched.
func (c *Client) SetMuteDeaf(mute, deaf, selfMute, selfDeaf *bool) {
	c.muteDeaf.mu.Lock()
	defer c.muteDeaf.mu.Unlock()
	if mute != nil {
		c.muteDeaf.mute = *mute
	}
	if deaf != nil {
		c.muteDeaf.deaf = *deaf
	}
	if selfMute != nil {
		c.muteDeaf.selfMute = *selfMute
	}
	if selfDeaf != nil {
		c.muteDeaf.selfDeaf = *selfDeaf
	}
}

// IsDeaf reports whether the client should be excluded from any fan-out
// listener set regardless of channel membership.
func (c *Client) IsDeaf() bool {
	return c.Deaf() || c.SelfDeaf()
}

// IsMuted reports whether the client's own outbound voice should be
// dropped before fan-out resolution.
func (c *Client) IsMuted() bool {
	return c.Mute() || c.SelfMute()
}

// UDPAddr returns the last-observed UDP peer address, or nil if voice
// has never been observed over UDP for this client.
func (c *Client) UDPAddr() *net.UDPAddr {
	return c.udpAddr.Load()
}

// SetUDPAddr records addr as the client's UDP peer, set when a datagram
// from addr first decrypts under this client's key.
func (c *Client) SetUDPAddr(addr *net.UDPAddr) {
	c.udpAddr.Store(addr)
}

// Touch records that a Ping was just received from this client.
func (c *Client) Touch() {
	c.lastPing.Store(time.Now().UnixNano())
}

// Idle reports whether more than PingTimeout has elapsed since the last
// Ping.
func (c *Client) Idle() bool {
	last := time.Unix(0, c.lastPing.Load())
	return time.Since(last) > PingTimeout
}

// Send writes one framed control message to the TLS stream, holding the
// writer lock exclusively for the duration and enforcing WriteTimeout. It
// is safe to call concurrently from the session loop and from fan-out
// tasks delivering to this client.
func (c *Client) Send(msg mumbleproto.Message) error {
	done := make(chan error, 1)
	go func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		c.Conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		_, err := mumbleproto.WriteFrame(c.Conn, msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return voxerr.New("client.Send", voxerr.KindIO, "outbound", err)
		}
		return nil
	case <-time.After(WriteTimeout):
		return writeTimeoutErr()
	}
}

// SendVoice encrypts and sends a plaintext voice frame, either over UDP
// if the client has a known peer address, or wrapped in a UDPTunnel
// control message otherwise.
func (c *Client) SendVoice(plain []byte, udpSend func(addr *net.UDPAddr, encrypted []byte) error) error {
	if addr := c.UDPAddr(); addr != nil {
		encrypted := c.Crypt.Encrypt(make([]byte, 0, len(plain)+cryptstate.Overhead), plain)
		return udpSend(addr, encrypted)
	}
	return c.Send(&mumbleproto.UDPTunnel{Packet: plain})
}
