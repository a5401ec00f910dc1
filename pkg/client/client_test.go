package client_test

import (
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/lotlab/voxrelay/pkg/client"
	"github.com/lotlab/voxrelay/pkg/mumbleproto"
)

// newTestClient builds a Client over one half of a net.Pipe, which
// supports deadlines like a real net.Conn, and returns the other half.
func newTestClient(t *testing.T) (*client.Client, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	logger := log.New(io.Discard, "", 0)
	c, err := client.New(1, serverSide, logger, 8, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, clientSide
}

func TestChannelAtomicity(t *testing.T) {
	c, peer := newTestClient(t)
	defer peer.Close()

	c.SetChannel(42)
	if got := c.Channel(); got != 42 {
		t.Fatalf("Channel() = %d, want 42", got)
	}
}

func TestMuteDeafFlags(t *testing.T) {
	c, peer := newTestClient(t)
	defer peer.Close()

	if c.IsMuted() || c.IsDeaf() {
		t.Fatalf("new client should be neither muted nor deaf")
	}

	mute := true
	c.SetMuteDeaf(&mute, nil, nil, nil)
	if !c.IsMuted() {
		t.Fatalf("expected IsMuted after SetMuteDeaf(mute=true)")
	}

	selfDeaf := true
	c.SetMuteDeaf(nil, nil, nil, &selfDeaf)
	if !c.IsDeaf() {
		t.Fatalf("expected IsDeaf after self-deaf")
	}
}

func TestSendWritesFrame(t *testing.T) {
	c, peer := newTestClient(t)
	defer peer.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(&mumbleproto.Ping{Timestamp: mumbleproto.Uint64(7)}) }()

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err := mumbleproto.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if kind != mumbleproto.TypePing {
		t.Fatalf("kind = %v, want Ping", kind)
	}
	got, err := mumbleproto.UnmarshalPing(payload)
	if err != nil {
		t.Fatalf("UnmarshalPing: %v", err)
	}
	if got.Timestamp == nil || *got.Timestamp != 7 {
		t.Fatalf("Timestamp = %v, want 7", got.Timestamp)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestTouchAndIdle(t *testing.T) {
	c, peer := newTestClient(t)
	defer peer.Close()

	if c.Idle() {
		t.Fatalf("freshly created client should not be idle")
	}
	c.Touch()
	if c.Idle() {
		t.Fatalf("client should not be idle immediately after Touch")
	}
}
