package channel_test

import (
	"testing"

	"github.com/lotlab/voxrelay/pkg/channel"
)

func TestAddAndGet(t *testing.T) {
	g := channel.NewGraph()
	id, err := g.Add("alpha", channel.RootID, false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	ch, ok := g.Get(id)
	if !ok {
		t.Fatalf("Get(%d): not found", id)
	}
	if ch.Name != "alpha" || ch.ParentID != channel.RootID {
		t.Fatalf("got %+v", ch)
	}
}

func TestLinkIsSymmetric(t *testing.T) {
	g := channel.NewGraph()
	a, _ := g.Add("a", channel.RootID, false)
	b, _ := g.Add("b", channel.RootID, false)

	if err := g.Link(a, b); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !g.Linked(a, b) || !g.Linked(b, a) {
		t.Fatalf("expected symmetric link between %d and %d", a, b)
	}
}

func TestLinkedSetHandlesCycles(t *testing.T) {
	g := channel.NewGraph()
	a, _ := g.Add("a", channel.RootID, false)
	b, _ := g.Add("b", channel.RootID, false)
	c, _ := g.Add("c", channel.RootID, false)

	// a-b-c-a forms a cycle; LinkedSet must still terminate and include
	// every member exactly once.
	_ = g.Link(a, b)
	_ = g.Link(b, c)
	_ = g.Link(c, a)

	set := g.LinkedSet(a)
	for _, id := range []uint32{a, b, c} {
		if _, ok := set[id]; !ok {
			t.Errorf("LinkedSet(a) missing %d", id)
		}
	}
	if len(set) != 3 {
		t.Errorf("LinkedSet(a) = %v, want 3 members", set)
	}
}

func TestDescendants(t *testing.T) {
	g := channel.NewGraph()
	parent, _ := g.Add("parent", channel.RootID, false)
	child, _ := g.Add("child", parent, false)
	grandchild, _ := g.Add("grandchild", child, false)
	sibling, _ := g.Add("sibling", channel.RootID, false)

	desc := g.Descendants(parent)
	if _, ok := desc[child]; !ok {
		t.Errorf("missing child")
	}
	if _, ok := desc[grandchild]; !ok {
		t.Errorf("missing grandchild")
	}
	if _, ok := desc[sibling]; ok {
		t.Errorf("sibling should not be a descendant")
	}
}

func TestRemoveReparentsChildrenToRoot(t *testing.T) {
	g := channel.NewGraph()
	parent, _ := g.Add("parent", channel.RootID, false)
	child, _ := g.Add("child", parent, false)

	if err := g.Remove(parent); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ch, ok := g.Get(child)
	if !ok {
		t.Fatalf("child vanished")
	}
	if ch.ParentID != channel.RootID {
		t.Fatalf("ParentID = %d, want root", ch.ParentID)
	}
	if _, ok := g.Get(parent); ok {
		t.Fatalf("parent should be removed")
	}
}

func TestRemoveRootFails(t *testing.T) {
	g := channel.NewGraph()
	if err := g.Remove(channel.RootID); err != channel.ErrRootImmutable {
		t.Fatalf("got %v, want ErrRootImmutable", err)
	}
}

func TestRemoveIfEmptyTemporaryDeletesOnlyWhenEmpty(t *testing.T) {
	g := channel.NewGraph()
	id, _ := g.Add("temp", channel.RootID, true)

	g.RemoveIfEmptyTemporary(id, 1)
	if _, ok := g.Get(id); !ok {
		t.Fatalf("non-empty temporary channel was removed")
	}

	g.RemoveIfEmptyTemporary(id, 0)
	if _, ok := g.Get(id); ok {
		t.Fatalf("empty temporary channel was not removed")
	}
}

func TestHasToken(t *testing.T) {
	g := channel.NewGraph()
	id, _ := g.Add("gated", channel.RootID, false)

	if !g.HasToken(id, nil) {
		t.Fatalf("ungated channel rejected empty token set")
	}

	if err := g.SetTokens(id, []string{"squad-six"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if g.HasToken(id, nil) {
		t.Fatalf("gated channel accepted empty token set")
	}
	if g.HasToken(id, []string{"wrong"}) {
		t.Fatalf("gated channel accepted wrong token")
	}
	if !g.HasToken(id, []string{"squad-six"}) {
		t.Fatalf("gated channel rejected matching token")
	}
}
