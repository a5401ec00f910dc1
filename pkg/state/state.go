// Package state implements ServerState: the single reader-writer-locked
// registry of channels and connected clients, plus a crypt-key index
// kept alongside it, and the trial-decrypt half of UDP demultiplexing.
// grumble's server-wide state container isn't in the retrieval pack as
// source; this is grounded on what cmd/grumble/client.go's per-client
// fields (voiceTargets, crypt, ACLContext) imply such a container must
// track, generalized to this server's lock-ordering and
// listener-resolution rules.
package state

import (
	"sync"

	"github.com/lotlab/voxrelay/pkg/channel"
	"github.com/lotlab/voxrelay/pkg/client"
	"github.com/lotlab/voxrelay/pkg/mumbleproto"
	"github.com/lotlab/voxrelay/pkg/voxerr"
)

// errNotFound and errChannelGone build fresh voxerr.Errors per
// occurrence rather than sentinel vars, so each lookup miss is counted.
func errNotFound(op string) error {
	return voxerr.New(op, voxerr.KindUnknownClient, "inbound", nil)
}

func errChannelGone(op string) error {
	return voxerr.New(op, voxerr.KindUnknownChannel, "inbound", nil)
}

// ServerState is the canonical lock-ordering root: ServerState → Channel
// → Client → CryptState. Its own guard protects the client and index
// maps; channel mutations go through Channels, which has its own lock —
// no code path holds the ServerState lock while acquiring a Channels
// lock in the opposite order.
type ServerState struct {
	mu sync.RWMutex

	Channels *channel.Graph

	clients map[uint32]*client.Client
	nextSession uint32

	// keyIndex maps a 16-byte CryptState key to the session it belongs
	// to. AddClient and RemoveClient maintain it; FindClientForUDP does
	// not consult it and trial-decrypts against every unbound client.
	keyIndex map[[16]byte]uint32
}

// New returns a ServerState with only the root channel present.
func New() *ServerState {
	return &ServerState{
		Channels:    channel.NewGraph(),
		clients:     make(map[uint32]*client.Client),
		nextSession: 1,
		keyIndex:    make(map[[16]byte]uint32),
	}
}

// AddClient allocates the next free session id, inserts c into the
// registry, and indexes its crypt key.
func (s *ServerState) AddClient(c *client.Client) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.nextSession
	s.nextSession++
	c.Session = session
	s.clients[session] = c

	setup := c.Crypt.GetCryptSetup()
	s.keyIndex[setup.Key] = session
	return session
}

// RemoveClient deletes session from the registry and its crypt index,
// returning the removed client so the caller can emit UserRemove and
// delete its channel if that is temporary and now empty.
func (s *ServerState) RemoveClient(session uint32) (*client.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[session]
	if !ok {
		return nil, false
	}
	delete(s.clients, session)
	setup := c.Crypt.GetCryptSetup()
	delete(s.keyIndex, setup.Key)
	return c, true
}

// Get returns the client for session, if connected.
func (s *ServerState) Get(session uint32) (*client.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[session]
	return c, ok
}

// All returns a snapshot slice of every connected client.
func (s *ServerState) All() []*client.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*client.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// CountInChannel reports how many connected clients currently occupy
// channelID, used to decide whether a vacated temporary channel should
// be deleted.
func (s *ServerState) CountInChannel(channelID uint32) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clients {
		if c.Channel() == channelID {
			n++
		}
	}
	return n
}

// MoveClient validates that channelID exists and updates the client's
// atomic channel id. The caller is
// responsible for emitting the resulting UserState broadcast.
func (s *ServerState) MoveClient(session, channelID uint32) error {
	if _, ok := s.Channels.Get(channelID); !ok {
		return errChannelGone("state.MoveClient")
	}
	c, ok := s.Get(session)
	if !ok {
		return errNotFound("state.MoveClient")
	}
	c.SetChannel(channelID)
	return nil
}

// RelocateChannelOccupants moves every client currently in channelID to
// channel.RootID, used when a channel is removed.
func (s *ServerState) RelocateChannelOccupants(channelID uint32) {
	s.mu.RLock()
	clients := make([]*client.Client, 0)
	for _, c := range s.clients {
		if c.Channel() == channelID {
			clients = append(clients, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.SetChannel(channel.RootID)
	}
}

// Broadcast sends msg to every client for which predicate returns true,
// collecting per-recipient send errors rather than aborting on the
// first one.
func (s *ServerState) Broadcast(msg mumbleproto.Message, predicate func(*client.Client) bool) map[uint32]error {
	clients := s.All()
	errs := make(map[uint32]error)
	for _, c := range clients {
		if predicate != nil && !predicate(c) {
			continue
		}
		if err := c.Send(msg); err != nil {
			errs[c.Session] = err
		}
	}
	return errs
}

// UnassociatedCandidates returns every connected client that has not yet
// bound a UDP peer address, the pool find_client_for_udp trial-decrypts
// against.
func (s *ServerState) UnassociatedCandidates() []*client.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*client.Client, 0)
	for _, c := range s.clients {
		if c.UDPAddr() == nil {
			out = append(out, c)
		}
	}
	return out
}

// FindClientForUDP implements the trial-decrypt half of
// find_client_for_udp: the fast path (an
// address already bound to a client) is the caller's responsibility,
// since only it — the UDP server — maintains the address→client index.
// This trials wire against every unassociated client's CryptState and
// returns the first one whose decrypt succeeds, which the caller then
// binds to the source address.
func (s *ServerState) FindClientForUDP(wire []byte) (*client.Client, []byte, bool) {
	for _, c := range s.UnassociatedCandidates() {
		plain, err := c.Crypt.Decrypt(wire)
		if err != nil {
			continue
		}
		return c, plain, true
	}
	return nil, nil, false
}

// SessionCounter exposes the next session id that would be allocated,
// for diagnostics (admin interface) only.
func (s *ServerState) SessionCounter() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSession
}
