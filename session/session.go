// Package session keeps the navigation history of a page and saves it between
// runs.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// State is the value recorded with a history entry by in-page navigation.
type State struct {
	URL string `json:"url"`
}

// Entry is a single page in history.
type Entry struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	State *State `json:"state,omitempty"` // nil for entries made by full page loads
}

// PopState is delivered to subscribers when history traversal changes the
// current entry.
type PopState struct {
	Entry Entry
	Delta int // -1 for back, +1 for forward
}

// Snapshot is the persisted form of a History.
type Snapshot struct {
	History []Entry `json:"history"` // back stack
	Current *Entry  `json:"current"`
	Forward []Entry `json:"forward"` // forward stack
}

// History is a back/current/forward stack of entries.
type History struct {
	mu      sync.Mutex
	back    []Entry
	current *Entry
	forward []Entry
	subs    []func(PopState)
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// Push records a new current entry. The previous current entry moves to the
// back stack and the forward stack is discarded.
func (h *History) Push(url string, state *State) Entry {
	e := Entry{ID: uuid.NewString(), URL: url, State: state}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		h.back = append(h.back, *h.current)
	}
	h.current = &e
	// New navigation breaks the forward chain
	h.forward = nil
	return e
}

// Replace overwrites the current entry, or creates one when history is empty.
func (h *History) Replace(url string, state *State) Entry {
	e := Entry{ID: uuid.NewString(), URL: url, State: state}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = &e
	return e
}

// Back moves to the previous entry and notifies subscribers. It returns false
// when there is nothing to go back to.
func (h *History) Back() bool {
	h.mu.Lock()
	if len(h.back) == 0 || h.current == nil {
		h.mu.Unlock()
		return false
	}
	h.forward = append([]Entry{*h.current}, h.forward...)
	prev := h.back[len(h.back)-1]
	h.back = h.back[:len(h.back)-1]
	h.current = &prev
	subs := append([]func(PopState){}, h.subs...)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(PopState{Entry: prev, Delta: -1})
	}
	return true
}

// Forward moves to the next entry and notifies subscribers.
func (h *History) Forward() bool {
	h.mu.Lock()
	if len(h.forward) == 0 || h.current == nil {
		h.mu.Unlock()
		return false
	}
	h.back = append(h.back, *h.current)
	next := h.forward[0]
	h.forward = h.forward[1:]
	h.current = &next
	subs := append([]func(PopState){}, h.subs...)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(PopState{Entry: next, Delta: 1})
	}
	return true
}

// OnPopState subscribes fn to traversal events. Subscribers run on the
// goroutine that called Back or Forward.
func (h *History) OnPopState(fn func(PopState)) {
	h.mu.Lock()
	h.subs = append(h.subs, fn)
	h.mu.Unlock()
}

// Current returns the current entry.
func (h *History) Current() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return Entry{}, false
	}
	return *h.current, true
}

// Len returns the total number of entries, back and forward included.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.back) + len(h.forward)
	if h.current != nil {
		n++
	}
	return n
}

// Entries lists every entry from oldest to newest.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]Entry(nil), h.back...)
	if h.current != nil {
		out = append(out, *h.current)
	}
	return append(out, h.forward...)
}

// Snapshot copies the stacks for persistence.
func (h *History) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Snapshot{
		History: append([]Entry(nil), h.back...),
		Forward: append([]Entry(nil), h.forward...),
	}
	if h.current != nil {
		c := *h.current
		s.Current = &c
	}
	return s
}

// Restore replaces the stacks with a snapshot. Subscribers are kept.
func (h *History) Restore(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.back = append([]Entry(nil), s.History...)
	h.forward = append([]Entry(nil), s.Forward...)
	h.current = nil
	if s.Current != nil {
		c := *s.Current
		h.current = &c
	}
}

// Path returns the default session file path.
func Path() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "findit", "session.json"), nil
}

// Load reads a snapshot from disk. An empty path means Path().
func Load(path string) (*Snapshot, error) {
	path, err := resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Save writes a snapshot to disk.
func Save(path string, s Snapshot) error {
	path, err := resolve(path)
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Clear removes the session file.
func Clear(path string) error {
	path, err := resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func resolve(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return Path()
}
