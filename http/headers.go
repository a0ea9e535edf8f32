package http

import (
	"bytes"
	"slices"
	"strconv"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/internal/invariant"
	"github.com/wippyai/wasi-hostbridge/resource"
)

// HeadersReadOnly is a read-only view of a host fields resource. Entries
// keep the order the host reports, which is insertion order; duplicate
// names are kept as separate entries.
type HeadersReadOnly struct {
	h   Host
	ref *resource.Ref[HeadersReadOnly]
}

// Headers is a mutable fields resource.
type Headers struct {
	HeadersReadOnly
}

func newHeadersReadOnly(h Host, handle host.Handle) *HeadersReadOnly {
	return &HeadersReadOnly{h: h, ref: resource.Own[HeadersReadOnly](handle)}
}

func newHeaders(h Host, handle host.Handle) *Headers {
	return &Headers{HeadersReadOnly: *newHeadersReadOnly(h, handle)}
}

// NewHeaders creates an empty mutable header set.
func NewHeaders(h Host) *Headers {
	return newHeaders(h, h.NewFields())
}

// HeadersFromEntries creates a mutable header set holding entries in order.
func HeadersFromEntries(h Host, entries []host.Field) (*Headers, error) {
	handle, err := h.FieldsFromList(entries)
	if err != nil {
		return nil, headerErr(err)
	}
	return newHeaders(h, handle), nil
}

// ForbiddenRequestHeaders lists the header names the host refuses on
// requests.
func ForbiddenRequestHeaders() []string {
	return slices.Clone(host.DefaultForbiddenHeaders)
}

// ForbiddenResponseHeaders lists the header names the host refuses on
// responses. Hosts do not distinguish the two lists, so this is the same
// set as ForbiddenRequestHeaders.
func ForbiddenResponseHeaders() []string {
	return slices.Clone(host.DefaultForbiddenHeaders)
}

// Handle borrows the fields handle.
func (r *HeadersReadOnly) Handle() host.Handle {
	return r.ref.Borrow()
}

// Valid reports whether the headers still own their handle.
func (r *HeadersReadOnly) Valid() bool {
	return r.ref.Valid()
}

// Entries returns every (name, value) pair in host order.
func (r *HeadersReadOnly) Entries() []host.Field {
	return r.h.FieldsEntries(r.ref.Borrow())
}

// Names returns the name of every entry in host order. A name appears once
// per entry carrying it.
func (r *HeadersReadOnly) Names() [][]byte {
	entries := r.Entries()
	names := make([][]byte, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Get returns all values for name in order. ok is false when name is
// absent.
func (r *HeadersReadOnly) Get(name []byte) (values [][]byte, ok bool) {
	values = r.h.FieldsGet(r.ref.Borrow(), name)
	return values, len(values) > 0
}

// Has reports whether name has at least one value.
func (r *HeadersReadOnly) Has(name []byte) bool {
	return r.h.FieldsHas(r.ref.Borrow(), name)
}

// Clone returns a new, owned, mutable copy.
func (r *HeadersReadOnly) Clone() *Headers {
	return newHeaders(r.h, r.h.FieldsClone(r.ref.Borrow()))
}

// Close drops the fields handle.
func (r *HeadersReadOnly) Close() {
	r.h.DropFields(r.ref.Take())
}

// take hands the fields handle to a host call that consumes it.
func (r *HeadersReadOnly) take() host.Handle {
	return r.ref.Take()
}

// Set replaces all values of name.
func (w *Headers) Set(name []byte, values ...[]byte) error {
	return headerErr(w.h.FieldsSet(w.ref.Borrow(), name, values))
}

// Append adds one value for name after any existing ones.
func (w *Headers) Append(name, value []byte) error {
	return headerErr(w.h.FieldsAppend(w.ref.Borrow(), name, value))
}

// Remove deletes every value of name.
func (w *Headers) Remove(name []byte) error {
	return headerErr(w.h.FieldsDelete(w.ref.Borrow(), name))
}

// headerErr passes syntax and deny-list failures through. A mutable
// Headers always wraps a mutable resource, so an immutability error is a
// broken invariant.
func headerErr(err error) error {
	if err == nil {
		return nil
	}
	switch errors.KindOf(err) {
	case errors.KindInvalidSyntax, errors.KindForbidden:
		return err
	case errors.KindImmutable:
		invariant.Unreachable("mutation of immutable fields through a mutable Headers: %v", err)
	}
	return errors.HostCall("fields", err)
}

func contentLengthOf(r *HeadersReadOnly) int64 {
	values, ok := r.Get([]byte("content-length"))
	if !ok || len(values) != 1 {
		return -1
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(values[0])), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
