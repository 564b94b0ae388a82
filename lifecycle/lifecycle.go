// Package lifecycle defines the contract page controllers implement and the
// listener registry they use to honour it.
package lifecycle

import (
	"sync"

	"findit/document"
)

// Controller is a page-specific component the navigator mounts after a page
// becomes current and unmounts before it is replaced.
//
// Mount must be safe to call repeatedly: each call re-resolves the elements
// it needs from the current document and drops the listeners of any earlier
// mount before attaching new ones. Unmount must be a no-op when nothing is
// mounted.
type Controller interface {
	Mount() error
	Unmount()
}

// Record is one listener attached through a Registry.
type Record struct {
	Target document.Target
	Type   string
	ID     document.ListenerID
}

// Registry attaches listeners and remembers them so they can all be detached
// at once.
type Registry struct {
	mu      sync.Mutex
	records []Record
}

// Listen attaches h to target and records it. A nil target is ignored, so
// callers can pass elements that may be missing from the current page.
func (r *Registry) Listen(target document.Target, typ string, h document.Handler) {
	if isNil(target) {
		return
	}
	id := target.AddEventListener(typ, h)

	r.mu.Lock()
	r.records = append(r.records, Record{Target: target, Type: typ, ID: id})
	r.mu.Unlock()
}

// Clear detaches every recorded listener and returns how many were recorded.
func (r *Registry) Clear() int {
	r.mu.Lock()
	records := r.records
	r.records = nil
	r.mu.Unlock()

	for _, rec := range records {
		rec.Target.RemoveEventListener(rec.Type, rec.ID)
	}
	return len(records)
}

// Len returns the number of listeners currently recorded.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a copy of the recorded listeners.
func (r *Registry) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

func isNil(t document.Target) bool {
	if t == nil {
		return true
	}
	et, ok := t.(*document.EventTarget)
	return ok && et == nil
}
