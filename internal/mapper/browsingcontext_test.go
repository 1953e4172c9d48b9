package mapper

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestClosingAContextClosesItsSubtree: removing a
// context removes its entire descendant subtree, and the removal order is
// children-before-parents (bottom-up), matching contextDestroyed event
// emission order.
func TestClosingAContextClosesItsSubtree(t *testing.T) {
	s := NewBrowsingContextStorage()
	s.CreateTopLevel("top", "default", "win1")
	s.CreateChild("child1", "top")
	s.CreateChild("grandchild", "child1")
	s.CreateChild("child2", "top")

	removed := s.Remove("top")
	want := []string{"grandchild", "child1", "child2", "top"}
	if diff := cmp.Diff(want, removed); diff != "" {
		t.Fatalf("unexpected removal order (-want +got):\n%s", diff)
	}

	for _, id := range want {
		if _, err := s.Get(id); err == nil {
			t.Fatalf("expected %q to be gone after Remove", id)
		}
	}
	if len(s.AllTopLevel()) != 0 {
		t.Fatal("expected no top-level contexts left")
	}
}

func TestTopLevelIDWalksToRoot(t *testing.T) {
	s := NewBrowsingContextStorage()
	s.CreateTopLevel("top", "default", "win1")
	s.CreateChild("child1", "top")
	s.CreateChild("grandchild", "child1")

	top, ok := s.TopLevelID("grandchild")
	if !ok || top != "top" {
		t.Fatalf("TopLevelID(grandchild) = %q, %v, want top, true", top, ok)
	}
}

func TestChildInheritsUserContextAndWindow(t *testing.T) {
	s := NewBrowsingContextStorage()
	s.CreateTopLevel("top", "profile-1", "win1")
	child, err := s.CreateChild("child1", "top")
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}
	if child.UserContext != "profile-1" || child.ClientWindow != "win1" {
		t.Fatalf("child did not inherit parent's user context/window: %+v", child)
	}
}

func TestCreateChildOnUnknownParentFails(t *testing.T) {
	s := NewBrowsingContextStorage()
	if _, err := s.CreateChild("child1", "nonexistent"); err == nil {
		t.Fatal("expected no-such-frame error")
	}
}

func TestDescendantsPreOrder(t *testing.T) {
	s := NewBrowsingContextStorage()
	s.CreateTopLevel("top", "default", "win1")
	s.CreateChild("child1", "top")
	s.CreateChild("grandchild", "child1")
	s.CreateChild("child2", "top")

	got := s.Descendants("top")
	want := []string{"top", "child1", "grandchild", "child2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected descendant order (-want +got):\n%s", diff)
	}
}
