package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPushBackForward(t *testing.T) {
	h := New()
	h.Push("/index.html", nil)
	h.Push("/profile.html", &State{URL: "profile.html"})

	var events []PopState
	h.OnPopState(func(ps PopState) { events = append(events, ps) })

	if !h.Back() {
		t.Fatal("Back should succeed with two entries")
	}
	cur, _ := h.Current()
	if cur.URL != "/index.html" {
		t.Errorf("current after Back = %q", cur.URL)
	}
	if len(events) != 1 || events[0].Delta != -1 || events[0].Entry.State != nil {
		t.Errorf("unexpected popstate events: %+v", events)
	}

	if !h.Forward() {
		t.Fatal("Forward should succeed after Back")
	}
	cur, _ = h.Current()
	if cur.State == nil || cur.State.URL != "profile.html" {
		t.Errorf("forward entry lost its state: %+v", cur)
	}
	if h.Len() != 2 {
		t.Errorf("traversal must not create entries, Len = %d", h.Len())
	}
}

func TestBackAtStart(t *testing.T) {
	h := New()
	if h.Back() {
		t.Error("Back on empty history should fail")
	}
	h.Push("/index.html", nil)
	if h.Back() {
		t.Error("Back with a single entry should fail")
	}
	if h.Forward() {
		t.Error("Forward with no forward entries should fail")
	}
}

func TestPushClearsForward(t *testing.T) {
	h := New()
	h.Push("/a.html", nil)
	h.Push("/b.html", nil)
	h.Back()
	h.Push("/c.html", nil)

	if h.Forward() {
		t.Error("push should discard the forward stack")
	}
	got := h.Entries()
	if len(got) != 2 || got[0].URL != "/a.html" || got[1].URL != "/c.html" {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestReplace(t *testing.T) {
	h := New()
	h.Push("/dashboard.html", nil)
	first, _ := h.Current()
	h.Replace("/dashboard.html#recent", &State{URL: "/dashboard.html#recent"})

	cur, _ := h.Current()
	if cur.ID == first.ID || cur.URL != "/dashboard.html#recent" {
		t.Errorf("replace did not update current: %+v", cur)
	}
	if h.Len() != 1 {
		t.Errorf("replace must not add entries, Len = %d", h.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	h := New()
	h.Push("/index.html", nil)
	h.Push("/dashboard.html", &State{URL: "/dashboard.html"})
	h.Back()

	if err := Save(path, h.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	snap, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	restored := New()
	restored.Restore(*snap)
	cur, ok := restored.Current()
	if !ok || cur.URL != "/index.html" {
		t.Errorf("restored current = %+v", cur)
	}
	if !restored.Forward() {
		t.Error("restored forward stack is empty")
	}

	if err := Clear(path); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist after Clear, got %v", err)
	}
}

func TestPopStateSubscriberMaySubscribe(t *testing.T) {
	h := New()
	h.Push("/index.html", nil)
	h.Push("/dashboard.html", &State{URL: "dashboard.html"})

	var late, early int
	h.OnPopState(func(PopState) {
		early++
		h.OnPopState(func(PopState) { late++ })
	})

	h.Back()
	if early != 1 || late != 0 {
		t.Fatalf("after Back: early=%d late=%d", early, late)
	}
	h.Forward()
	if early != 2 || late != 1 {
		t.Errorf("after Forward: early=%d late=%d", early, late)
	}
}
