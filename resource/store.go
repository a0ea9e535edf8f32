package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed            = errors.New("resource store closed")
	ErrOutstandingBorrow = errors.New("cannot drop resource with outstanding child borrows")
	ErrNotFound          = errors.New("resource handle not found")
)

// Store is an in-memory slot allocator for host resources. Freed slots are
// reused; a slot with outstanding borrows cannot be dropped.
type Store struct {
	slots  []slot
	free   []Handle
	mu     sync.RWMutex
	closed bool
}

type slot struct {
	value   any
	typeID  TypeID
	borrows uint32
	live    bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		slots: make([]slot, 0, 64),
		free:  make([]Handle, 0, 16),
	}
}

// lookup returns the live slot for h. Caller holds mu.
func (s *Store) lookup(h Handle) *slot {
	if h == Invalid || int(h) > len(s.slots) {
		return nil
	}
	sl := &s.slots[h-1]
	if !sl.live {
		return nil
	}
	return sl
}

// Create stores value and returns its handle.
func (s *Store) Create(typeID TypeID, value any) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Invalid, ErrClosed
	}

	sl := slot{value: value, typeID: typeID, live: true}
	if n := len(s.free); n > 0 {
		h := s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[h-1] = sl
		return h, nil
	}
	s.slots = append(s.slots, sl)
	return Handle(len(s.slots)), nil
}

// Get returns the value and type of a live handle.
func (s *Store) Get(h Handle) (any, TypeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl := s.lookup(h)
	if sl == nil {
		return nil, 0, false
	}
	return sl.value, sl.typeID, true
}

// Drop frees a handle and returns its value. Dropping a handle that still
// has borrows fails with ErrOutstandingBorrow and leaves it live.
func (s *Store) Drop(h Handle) (any, TypeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.lookup(h)
	if sl == nil {
		return nil, 0, ErrNotFound
	}
	if sl.borrows > 0 {
		return nil, 0, ErrOutstandingBorrow
	}
	value, typeID := sl.value, sl.typeID
	*sl = slot{}
	s.free = append(s.free, h)
	return value, typeID, nil
}

// Borrow records a child borrow against h.
func (s *Store) Borrow(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.lookup(h)
	if sl == nil {
		return false
	}
	sl.borrows++
	return true
}

// ReturnBorrow releases a child borrow recorded with Borrow.
func (s *Store) ReturnBorrow(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.lookup(h)
	if sl == nil || sl.borrows == 0 {
		return false
	}
	sl.borrows--
	return true
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.slots) - len(s.free)
}

// Each calls fn for every live handle until fn returns false.
func (s *Store) Each(fn func(Handle, TypeID, any) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.slots {
		sl := s.slots[i]
		if sl.live && !fn(Handle(i+1), sl.typeID, sl.value) {
			return
		}
	}
}

// Close drops every live value and rejects further inserts.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var droppers []Dropper
	for i := range s.slots {
		if s.slots[i].live {
			if d, ok := s.slots[i].value.(Dropper); ok {
				droppers = append(droppers, d)
			}
		}
	}
	s.slots = nil
	s.free = nil
	s.mu.Unlock()

	for _, d := range droppers {
		d.Drop()
	}
	return nil
}
