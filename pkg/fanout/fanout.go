// Package fanout implements the Dispatcher: it resolves a voice frame's
// listener set from the channel graph and the sender's VoiceTarget slot,
// then delivers the rewritten frame to each recipient.
package fanout

import (
	"net"

	"github.com/lotlab/voxrelay/pkg/acl"
	"github.com/lotlab/voxrelay/pkg/client"
	"github.com/lotlab/voxrelay/pkg/mumbleproto"
	"github.com/lotlab/voxrelay/pkg/state"
	"github.com/lotlab/voxrelay/pkg/target"
	"github.com/lotlab/voxrelay/pkg/voice"
	"github.com/lotlab/voxrelay/pkg/voxerr"
)

// UDPSender sends already-encrypted bytes to addr; the udpserver package
// supplies the concrete implementation over the shared socket.
type UDPSender func(addr *net.UDPAddr, encrypted []byte) error

// Dispatcher resolves and delivers voice frames.
type Dispatcher struct {
	State  *state.ServerState
	SendUDP UDPSender
}

// New returns a Dispatcher wired to s, delivering UDP-bound recipients
// through sendUDP.
func New(s *state.ServerState, sendUDP UDPSender) *Dispatcher {
	return &Dispatcher{State: s, SendUDP: sendUDP}
}

// Dispatch resolves the listener set for a voice frame sent by sender
// and delivers it to each recipient, rewriting the session id to the
// sender's own. forceTunnel is set by the UDPTunnel handler, which must
// force tunneled (TLS) egress regardless of any UDP peer address the
// recipient has.
func (d *Dispatcher) Dispatch(sender *client.Client, frame voice.Frame, forceTunnel bool) {
	if sender.IsMuted() {
		return
	}

	listeners := d.resolve(sender, frame)
	frame.Session = sender.Session
	wire := voice.Encode(frame)

	for _, recipient := range listeners {
		if recipient.IsDeaf() {
			continue
		}
		if forceTunnel {
			if err := recipient.Send(&mumbleproto.UDPTunnel{Packet: wire}); err != nil {
				voxerr.New("fanout.Dispatch", voxerr.KindQueueFull, "outbound", err)
			}
			continue
		}
		if err := recipient.SendVoice(wire, d.SendUDP); err != nil {
			voxerr.New("fanout.Dispatch", voxerr.KindQueueFull, "outbound", err)
		}
	}
}

func (d *Dispatcher) resolve(sender *client.Client, frame voice.Frame) []*client.Client {
	switch frame.Type {
	case voice.TypeServerLoopback:
		return []*client.Client{sender}
	case voice.TypeWhisperUser:
		entry := sender.Targets.Get(frame.Target)
		return d.byUserList(sender, entry.Users)
	case voice.TypeWhisperChannel:
		entry := sender.Targets.Get(frame.Target)
		return d.byChannelSelector(sender, entry)
	default: // voice.TypeNormal
		return d.byChannel(sender)
	}
}

// byChannel implements the normal-voice listener set: every client that
// shares the sender's channel or sits in a channel directly linked to
// it, excluding the sender. Direct link membership only — two channels
// joined by a chain of links but not linked to each other do not hear
// each other's normal voice.
func (d *Dispatcher) byChannel(sender *client.Client) []*client.Client {
	senderChannel := sender.Channel()

	var out []*client.Client
	for _, c := range d.State.All() {
		if c.Session == sender.Session {
			continue
		}
		if c.Channel() == senderChannel || d.State.Channels.Linked(c.Channel(), senderChannel) {
			out = append(out, c)
		}
	}
	return out
}

func (d *Dispatcher) byUserList(sender *client.Client, sessions []uint32) []*client.Client {
	var out []*client.Client
	for _, session := range sessions {
		if session == sender.Session {
			continue
		}
		if c, ok := d.State.Get(session); ok {
			out = append(out, c)
		}
	}
	return out
}

// byChannelSelector implements whisper-channel resolution: expand the
// slot's channel with its link set (if include-linked) and its
// descendant set (if include-children), then intersect with the slot's
// group token restriction if one is set.
func (d *Dispatcher) byChannelSelector(sender *client.Client, entry target.Entry) []*client.Client {
	if !entry.HasChannel {
		return nil
	}

	expanded := map[uint32]struct{}{entry.Channel: {}}
	if entry.IncludeLinked {
		for id := range d.State.Channels.LinkedSet(entry.Channel) {
			expanded[id] = struct{}{}
		}
	}
	if entry.IncludeChildren {
		for id := range d.State.Channels.Descendants(entry.Channel) {
			expanded[id] = struct{}{}
		}
	}

	if entry.Group != "" {
		ids := make([]uint32, 0, len(expanded))
		for id := range expanded {
			ids = append(ids, id)
		}
		restricted := acl.Intersect(ids, d.State.Channels.GateOf, []string{entry.Group})
		expanded = make(map[uint32]struct{}, len(restricted))
		for _, id := range restricted {
			expanded[id] = struct{}{}
		}
	}

	var out []*client.Client
	for _, c := range d.State.All() {
		if c.Session == sender.Session {
			continue
		}
		if _, ok := expanded[c.Channel()]; ok {
			out = append(out, c)
		}
	}
	return out
}
