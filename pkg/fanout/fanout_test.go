package fanout_test

import (
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/lotlab/voxrelay/pkg/channel"
	"github.com/lotlab/voxrelay/pkg/client"
	"github.com/lotlab/voxrelay/pkg/fanout"
	"github.com/lotlab/voxrelay/pkg/mumbleproto"
	"github.com/lotlab/voxrelay/pkg/state"
	"github.com/lotlab/voxrelay/pkg/target"
	"github.com/lotlab/voxrelay/pkg/voice"
)

type harness struct {
	client *client.Client
	peer   net.Conn
}

func newHarness(t *testing.T, s *state.ServerState) *harness {
	t.Helper()
	server, peer := net.Pipe()
	c, err := client.New(0, server, log.New(io.Discard, "", 0), 8, 8)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	s.AddClient(c)
	return &harness{client: c, peer: peer}
}

// recvTunnel reads one framed UDPTunnel message off h.peer in a
// background goroutine, sending the decoded packet bytes on the
// returned channel.
func (h *harness) recvTunnel(t *testing.T) <-chan []byte {
	ch := make(chan []byte, 1)
	go func() {
		h.peer.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, payload, err := mumbleproto.ReadFrame(h.peer)
		if err != nil || kind != mumbleproto.TypeUDPTunnel {
			ch <- nil
			return
		}
		tun, err := mumbleproto.UnmarshalUDPTunnel(payload)
		if err != nil {
			ch <- nil
			return
		}
		ch <- tun.Packet
	}()
	return ch
}

func TestDispatchNormalChannelFanout(t *testing.T) {
	s := state.New()
	sender := newHarness(t, s)
	listener := newHarness(t, s)
	other := newHarness(t, s)
	defer sender.peer.Close()
	defer listener.peer.Close()
	defer other.peer.Close()

	sender.client.SetChannel(channel.RootID)
	listener.client.SetChannel(channel.RootID)
	id, _ := s.Channels.Add("elsewhere", channel.RootID, false)
	other.client.SetChannel(id)

	d := fanout.New(s, func(addr *net.UDPAddr, encrypted []byte) error { return nil })

	recv := listener.recvTunnel(t)
	frame := voice.Frame{Type: voice.TypeNormal, Codec: voice.CodecOpus, Payload: []byte{1, 2, 3}}
	d.Dispatch(sender.client, frame, true)

	got := <-recv
	if got == nil {
		t.Fatalf("listener in same channel did not receive the frame")
	}
}

func TestDispatchWhisperUserOnlyReachesTarget(t *testing.T) {
	s := state.New()
	sender := newHarness(t, s)
	target1 := newHarness(t, s)
	bystander := newHarness(t, s)
	defer sender.peer.Close()
	defer target1.peer.Close()
	defer bystander.peer.Close()

	sender.client.Targets.Set(5, target.Entry{Users: []uint32{target1.client.Session}})

	d := fanout.New(s, func(addr *net.UDPAddr, encrypted []byte) error { return nil })

	recv := target1.recvTunnel(t)
	silent := make(chan int, 1)
	go func() {
		bystander.peer.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		buf := make([]byte, 1)
		n, _ := bystander.peer.Read(buf)
		silent <- n
	}()
	frame := voice.Frame{Type: voice.TypeWhisperUser, Target: 5, Codec: voice.CodecOpus}
	d.Dispatch(sender.client, frame, true)

	if got := <-recv; got == nil {
		t.Fatalf("explicit whisper target did not receive the frame")
	}
	if n := <-silent; n != 0 {
		t.Fatalf("bystander received a whisper addressed to another user")
	}
}

func TestDispatchDropsMutedSender(t *testing.T) {
	s := state.New()
	sender := newHarness(t, s)
	listener := newHarness(t, s)
	defer sender.peer.Close()
	defer listener.peer.Close()

	mute := true
	sender.client.SetMuteDeaf(&mute, nil, nil, nil)

	d := fanout.New(s, func(addr *net.UDPAddr, encrypted []byte) error { return nil })

	// Read from the listener's pipe while dispatching: a delivered frame
	// would be read within the deadline, a dropped one leaves nothing.
	got := make(chan int, 1)
	go func() {
		listener.peer.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		buf := make([]byte, 1)
		n, _ := listener.peer.Read(buf)
		got <- n
	}()
	d.Dispatch(sender.client, voice.Frame{Type: voice.TypeNormal}, true)

	if n := <-got; n != 0 {
		t.Fatalf("muted sender's frame reached a listener")
	}
}
