// Package channel implements the channel graph: a parent forest overlaid
// with a symmetric "link" relation, used to resolve normal and
// whisper-channel fan-out sets. The shape (id, name, parent, children,
// a links set) is grounded on the Channel struct visible through
// grumble's cmd/grumble/client.go (sendChannelTree walks channel.parent,
// channel.children, and channel.Links), generalized to this server's
// listener-resolution rules, with cycle-safety added since the link
// relation can form arbitrary graphs, unlike the parent forest.
package channel

import (
	"errors"
	"sync"

	"github.com/lotlab/voxrelay/pkg/acl"
)

// RootID is the channel id of the implicit root channel, created before
// any other and never removed.
const RootID uint32 = 0

var (
	ErrNotFound     = errors.New("channel: not found")
	ErrRootImmutable = errors.New("channel: root channel cannot be removed")
)

// Channel is one node in the graph.
type Channel struct {
	ID          uint32
	Name        string
	ParentID    uint32
	Description string
	Temporary   bool
	Position    int32

	// Tokens gates entry: a client must hold one of these tokens to be
	// considered a member for whisper-channel group restriction. Empty
	// means unrestricted. This is a minimal token-gate, not a general ACL
	// engine.
	Tokens []string

	links map[uint32]struct{}
}

// Graph owns the full set of channels and the symmetric link overlay.
type Graph struct {
	mu       sync.RWMutex
	channels map[uint32]*Channel
	nextID   uint32
}

// NewGraph returns a Graph containing only the root channel.
func NewGraph() *Graph {
	g := &Graph{
		channels: make(map[uint32]*Channel),
		nextID:   1,
	}
	g.channels[RootID] = &Channel{
		ID:    RootID,
		Name:  "Root",
		links: make(map[uint32]struct{}),
	}
	return g
}

// Add creates a new channel under parentID and returns its assigned id.
func (g *Graph) Add(name string, parentID uint32, temporary bool) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.channels[parentID]; !ok {
		return 0, ErrNotFound
	}
	id := g.nextID
	g.nextID++
	g.channels[id] = &Channel{
		ID:        id,
		Name:      name,
		ParentID:  parentID,
		Temporary: temporary,
		links:     make(map[uint32]struct{}),
	}
	return id, nil
}

// Remove deletes a channel, reparenting its children to root and dropping
// every link to it. It does not move the channel's occupants; the caller
// relocates them (ServerState.RelocateChannelOccupants).
func (g *Graph) Remove(id uint32) error {
	if id == RootID {
		return ErrRootImmutable
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.channels[id]
	if !ok {
		return ErrNotFound
	}
	for _, other := range g.channels {
		if other.ParentID == id {
			other.ParentID = RootID
		}
		delete(other.links, id)
	}
	delete(ch.links, id)
	delete(g.channels, id)
	return nil
}

// RemoveIfEmptyTemporary deletes id only if it is marked temporary and
// occupantCount reports zero current occupants: temporary channels that
// become empty are deleted.
func (g *Graph) RemoveIfEmptyTemporary(id uint32, occupantCount int) {
	if occupantCount > 0 {
		return
	}
	g.mu.RLock()
	ch, ok := g.channels[id]
	temporary := ok && ch.Temporary
	g.mu.RUnlock()
	if temporary {
		_ = g.Remove(id)
	}
}

// Get returns a copy of the channel record for id.
func (g *Graph) Get(id uint32) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[id]
	if !ok {
		return Channel{}, false
	}
	return cloneChannel(ch), true
}

// All returns a copy of every channel, in no particular order.
func (g *Graph) All() []Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Channel, 0, len(g.channels))
	for _, ch := range g.channels {
		out = append(out, cloneChannel(ch))
	}
	return out
}

func cloneChannel(ch *Channel) Channel {
	c := *ch
	c.Tokens = append([]string(nil), ch.Tokens...)
	c.links = nil
	return c
}

// Link establishes a symmetric link between a and b.
func (g *Graph) Link(a, b uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ca, ok := g.channels[a]
	if !ok {
		return ErrNotFound
	}
	cb, ok := g.channels[b]
	if !ok {
		return ErrNotFound
	}
	ca.links[b] = struct{}{}
	cb.links[a] = struct{}{}
	return nil
}

// Unlink removes a symmetric link between a and b.
func (g *Graph) Unlink(a, b uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ca, ok := g.channels[a]
	if !ok {
		return ErrNotFound
	}
	cb, ok := g.channels[b]
	if !ok {
		return ErrNotFound
	}
	delete(ca.links, b)
	delete(cb.links, a)
	return nil
}

// LinkedSet returns id together with every channel reachable from it by
// following links transitively, visited-set guarded since links can form
// cycles.
func (g *Graph) LinkedSet(id uint32) map[uint32]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[uint32]struct{}{id: {}}
	queue := []uint32{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ch, ok := g.channels[cur]
		if !ok {
			continue
		}
		for linked := range ch.links {
			if _, seen := visited[linked]; seen {
				continue
			}
			visited[linked] = struct{}{}
			queue = append(queue, linked)
		}
	}
	return visited
}

// Linked reports whether a and b are directly linked.
func (g *Graph) Linked(a, b uint32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[a]
	if !ok {
		return false
	}
	_, linked := ch.links[b]
	return linked
}

// Descendants returns every channel transitively parented under id,
// not including id itself. The parent relation is a forest so this
// cannot cycle, but traversal is still guarded defensively.
func (g *Graph) Descendants(id uint32) map[uint32]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	children := make(map[uint32][]uint32)
	for cid, ch := range g.channels {
		children[ch.ParentID] = append(children[ch.ParentID], cid)
	}

	out := make(map[uint32]struct{})
	queue := append([]uint32(nil), children[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, seen := out[cur]; seen {
			continue
		}
		out[cur] = struct{}{}
		queue = append(queue, children[cur]...)
	}
	return out
}

// SetTokens installs the token gate for channel id, replacing any
// previous gate. An empty list clears the gate.
func (g *Graph) SetTokens(id uint32, tokens []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[id]
	if !ok {
		return ErrNotFound
	}
	ch.Tokens = append([]string(nil), tokens...)
	return nil
}

// HasToken reports whether channel id has no token gate, or tokens holds
// at least one of its gate tokens. A missing channel has no gate.
func (g *Graph) HasToken(id uint32, tokens []string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[id]
	if !ok {
		return true
	}
	return acl.Grants(ch.Tokens, tokens)
}

// GateOf returns the token gate for id, suitable for use with
// acl.Intersect when filtering an expanded channel set.
func (g *Graph) GateOf(id uint32) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[id]
	if !ok {
		return nil
	}
	return ch.Tokens
}
