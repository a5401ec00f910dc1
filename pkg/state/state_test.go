package state_test

import (
	"errors"
	"io"
	"log"
	"net"
	"testing"

	"github.com/lotlab/voxrelay/pkg/channel"
	"github.com/lotlab/voxrelay/pkg/client"
	"github.com/lotlab/voxrelay/pkg/state"
	"github.com/lotlab/voxrelay/pkg/voxerr"
)

func newClient(t *testing.T) *client.Client {
	t.Helper()
	server, _ := net.Pipe()
	c, err := client.New(0, server, log.New(io.Discard, "", 0), 8, 8)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestAddRemoveClientAssignsSession(t *testing.T) {
	s := state.New()
	c1 := newClient(t)
	c2 := newClient(t)

	s1 := s.AddClient(c1)
	s2 := s.AddClient(c2)
	if s1 == s2 {
		t.Fatalf("sessions must be distinct: %d == %d", s1, s2)
	}
	if s1 == 0 || s2 == 0 {
		t.Fatalf("session id must never be zero")
	}

	if _, ok := s.Get(s1); !ok {
		t.Fatalf("Get(%d): not found", s1)
	}

	removed, ok := s.RemoveClient(s1)
	if !ok || removed != c1 {
		t.Fatalf("RemoveClient(%d) = %v, %v", s1, removed, ok)
	}
	if _, ok := s.Get(s1); ok {
		t.Fatalf("client still present after removal")
	}
}

func TestMoveClientValidatesChannel(t *testing.T) {
	s := state.New()
	c := newClient(t)
	session := s.AddClient(c)

	if err := s.MoveClient(session, 999); !errors.Is(err, voxerr.KindUnknownChannel) {
		t.Fatalf("got %v, want KindUnknownChannel", err)
	}

	id, err := s.Channels.Add("alpha", channel.RootID, false)
	if err != nil {
		t.Fatalf("Channels.Add: %v", err)
	}
	if err := s.MoveClient(session, id); err != nil {
		t.Fatalf("MoveClient: %v", err)
	}
	if got, _ := s.Get(session); got.Channel() != id {
		t.Fatalf("Channel() = %d, want %d", got.Channel(), id)
	}
}

func TestCountInChannelAndRelocate(t *testing.T) {
	s := state.New()
	c1, c2 := newClient(t), newClient(t)
	s.AddClient(c1)
	s.AddClient(c2)

	id, _ := s.Channels.Add("alpha", channel.RootID, false)
	c1.SetChannel(id)
	c2.SetChannel(id)

	if n := s.CountInChannel(id); n != 2 {
		t.Fatalf("CountInChannel = %d, want 2", n)
	}

	s.RelocateChannelOccupants(id)
	if c1.Channel() != channel.RootID || c2.Channel() != channel.RootID {
		t.Fatalf("occupants not relocated to root: %d, %d", c1.Channel(), c2.Channel())
	}
}

func TestUnassociatedCandidatesExcludesUDPBound(t *testing.T) {
	s := state.New()
	c1, c2 := newClient(t), newClient(t)
	s.AddClient(c1)
	s.AddClient(c2)
	c1.SetUDPAddr(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1234})

	cands := s.UnassociatedCandidates()
	if len(cands) != 1 || cands[0] != c2 {
		t.Fatalf("UnassociatedCandidates = %v, want only c2", cands)
	}
}
