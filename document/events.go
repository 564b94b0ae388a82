package document

import (
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"
)

// Event is dispatched to listeners on a node and its ancestors.
type Event struct {
	Type string
	Key  string // set for keydown events

	// Target is the node the event was dispatched on.
	Target *html.Node
	// CurrentTarget is the node whose listeners are running; nil while the
	// document-level listeners run.
	CurrentTarget *html.Node

	defaultPrevented bool
	stopped          bool
}

// PreventDefault cancels the default action (link activation, form submit).
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether a listener called PreventDefault.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// StopPropagation stops the event from reaching further ancestors.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// Handler handles a dispatched event.
type Handler func(*Event)

// ListenerID identifies one registered listener. IDs are unique per process
// so a stale ID never removes a listener registered later.
type ListenerID uint64

var lastListenerID atomic.Uint64

// Target is anything listeners can be attached to.
type Target interface {
	AddEventListener(typ string, h Handler) ListenerID
	RemoveEventListener(typ string, id ListenerID) bool
}

type listener struct {
	id ListenerID
	h  Handler
}

// EventTarget keeps the listeners of one node (or of the document itself).
type EventTarget struct {
	mu        sync.Mutex
	listeners map[string][]listener
}

// AddEventListener registers h for events of the given type.
func (t *EventTarget) AddEventListener(typ string, h Handler) ListenerID {
	id := ListenerID(lastListenerID.Add(1))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners == nil {
		t.listeners = make(map[string][]listener)
	}
	t.listeners[typ] = append(t.listeners[typ], listener{id: id, h: h})
	return id
}

// RemoveEventListener detaches the listener with the given ID. It returns
// false if no such listener is attached.
func (t *EventTarget) RemoveEventListener(typ string, id ListenerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ls := t.listeners[typ]
	for i, l := range ls {
		if l.id == id {
			t.listeners[typ] = append(ls[:i:i], ls[i+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns the number of listeners for typ, or for every type
// when typ is empty.
func (t *EventTarget) ListenerCount(typ string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if typ != "" {
		return len(t.listeners[typ])
	}
	n := 0
	for _, ls := range t.listeners {
		n += len(ls)
	}
	return n
}

// dispatch runs the listeners for ev.Type. Listeners are called without the
// lock held so they may add or remove listeners.
func (t *EventTarget) dispatch(ev *Event) {
	t.mu.Lock()
	ls := append([]listener(nil), t.listeners[ev.Type]...)
	t.mu.Unlock()

	for _, l := range ls {
		l.h(ev)
	}
}

func (t *EventTarget) reset() {
	t.mu.Lock()
	t.listeners = nil
	t.mu.Unlock()
}
