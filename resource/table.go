package resource

import (
	"sync"
)

// Table is a typed handle table with lifecycle observers. Host adapters keep
// one Table per WASI environment.
type Table struct {
	store     *Store
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{store: NewStore()}
}

// Insert adds a value and returns its handle, or Invalid once closed.
func (t *Table) Insert(typeID TypeID, value any) Handle {
	h, err := t.store.Create(typeID, value)
	if err != nil {
		return Invalid
	}
	t.notify(Event{Type: EventCreated, Handle: h, TypeID: typeID, Value: value})
	return h
}

// Get retrieves a value by handle.
func (t *Table) Get(h Handle) (any, bool) {
	v, _, ok := t.store.Get(h)
	return v, ok
}

// GetTyped retrieves a value only if it was inserted with typeID.
func (t *Table) GetTyped(h Handle, typeID TypeID) (any, bool) {
	v, actual, ok := t.store.Get(h)
	if !ok || actual != typeID {
		return nil, false
	}
	return v, true
}

// Remove drops a handle, running the value's Drop if it has one.
func (t *Table) Remove(h Handle) (any, error) {
	value, typeID, err := t.store.Drop(h)
	if err != nil {
		return nil, err
	}
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: h, TypeID: typeID, Value: value})
	return value, nil
}

// Borrow pins parent while a child resource derived from it is live.
func (t *Table) Borrow(parent Handle) bool {
	return t.store.Borrow(parent)
}

// ReturnBorrow unpins parent when a child resource is dropped.
func (t *Table) ReturnBorrow(parent Handle) bool {
	return t.store.ReturnBorrow(parent)
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	return t.store.Len()
}

// Handles returns the live handles in ascending order.
func (t *Table) Handles() []Handle {
	handles := make([]Handle, 0, t.store.Len())
	t.store.Each(func(h Handle, _ TypeID, _ any) bool {
		handles = append(handles, h)
		return true
	})
	return handles
}

// Clear removes every live handle it can. Handles pinned by a borrow that is
// never returned stay live until Close.
func (t *Table) Clear() {
	for pass := 0; pass < 8 && t.Len() > 0; pass++ {
		handles := t.Handles()
		for i := len(handles) - 1; i >= 0; i-- {
			_, _ = t.Remove(handles[i])
		}
	}
}

// Close releases all resources and stops accepting inserts.
func (t *Table) Close() error {
	t.Clear()
	return t.store.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
