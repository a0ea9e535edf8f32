package resource

import (
	"fmt"
	"reflect"

	"github.com/wippyai/wasi-hostbridge/internal/invariant"
)

// Ref holds one host handle of resource kind T, tagged owned or borrowed.
//
// An owned Ref is consumed exactly once, by Take. A borrowed Ref is never
// taken; its holder calls Release when done with it. After either, the Ref
// is poisoned and Valid reports false. Refs must not be copied by value.
type Ref[T any] struct {
	handle Handle
	owned  bool
}

// Own wraps a handle the caller is responsible for closing.
func Own[T any](h Handle) *Ref[T] {
	invariant.Assert(h != Invalid, "own: invalid %s handle", kindName[T]())
	register(reflect.TypeFor[T](), h)
	return &Ref[T]{handle: h, owned: true}
}

// Borrow wraps a handle owned by someone else.
func Borrow[T any](h Handle) *Ref[T] {
	invariant.Assert(h != Invalid, "borrow: invalid %s handle", kindName[T]())
	register(reflect.TypeFor[T](), h)
	return &Ref[T]{handle: h}
}

// Valid reports whether the handle has not been taken or released.
func (r *Ref[T]) Valid() bool {
	if r == nil || r.handle == Invalid {
		return false
	}
	assertLive(reflect.TypeFor[T](), r.handle)
	return true
}

// Owned reports whether the holder is responsible for consuming the handle.
func (r *Ref[T]) Owned() bool {
	return r != nil && r.owned
}

// Borrow returns the handle for a host call that does not consume it.
func (r *Ref[T]) Borrow() Handle {
	invariant.Assert(r.Valid(), "borrow of consumed %s handle", kindName[T]())
	return r.handle
}

// Take transfers ownership of the handle out of r and poisons r.
func (r *Ref[T]) Take() Handle {
	invariant.Assert(r.Valid(), "take of consumed %s handle", kindName[T]())
	invariant.Assert(r.owned, "take of borrowed %s handle %d", kindName[T](), r.handle)
	h := r.handle
	unregister(reflect.TypeFor[T](), h)
	r.handle = Invalid
	return h
}

// Release gives up a borrowed handle and poisons r.
func (r *Ref[T]) Release() {
	invariant.Assert(r.Valid(), "release of consumed %s handle", kindName[T]())
	invariant.Assert(!r.owned, "release of owned %s handle %d; use Take", kindName[T](), r.handle)
	unregister(reflect.TypeFor[T](), r.handle)
	r.handle = Invalid
}

func (r *Ref[T]) String() string {
	if r == nil || r.handle == Invalid {
		return kindName[T]() + "(consumed)"
	}
	mode := "borrowed"
	if r.owned {
		mode = "owned"
	}
	return fmt.Sprintf("%s(%d, %s)", kindName[T](), r.handle, mode)
}

func kindName[T any]() string {
	return reflect.TypeFor[T]().String()
}
