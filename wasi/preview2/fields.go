package preview2

import (
	"bytes"
	"strings"
	"sync"

	"golang.org/x/net/http/httpguts"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
)

// FieldsResource stores HTTP fields as an ordered list of entries.
// Lookups are case-insensitive; names keep the case they were added with.
// Shared across wasi:http/types and wasi:http/outgoing-handler.
type FieldsResource struct {
	forbidden map[string]struct{}
	entries   []host.Field
	mu        sync.RWMutex
	immutable bool
}

// NewFieldsResource creates mutable fields that reject the given names.
func NewFieldsResource(forbidden []string) *FieldsResource {
	f := &FieldsResource{forbidden: make(map[string]struct{}, len(forbidden))}
	for _, name := range forbidden {
		f.forbidden[strings.ToLower(name)] = struct{}{}
	}
	return f
}

// NewImmutableFields creates fields with the given entries that reject all
// mutation. Entries are not validated; they come from the host itself.
// Clones get the forbidden deny-list.
func NewImmutableFields(forbidden []string, entries []host.Field) *FieldsResource {
	f := NewFieldsResource(forbidden)
	f.immutable = true
	for _, e := range entries {
		f.entries = append(f.entries, cloneField(e))
	}
	return f
}

func (f *FieldsResource) Type() ResourceType { return ResourceFields }
func (f *FieldsResource) Drop()              {}

// Freeze makes the fields immutable.
func (f *FieldsResource) Freeze() {
	f.mu.Lock()
	f.immutable = true
	f.mu.Unlock()
}

// Immutable reports whether mutation is rejected.
func (f *FieldsResource) Immutable() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.immutable
}

func (f *FieldsResource) check(name []byte, values ...[]byte) error {
	if f.immutable {
		return errors.HeaderError(errors.KindImmutable, name)
	}
	if !httpguts.ValidHeaderFieldName(string(name)) {
		return errors.HeaderError(errors.KindInvalidSyntax, name)
	}
	for _, v := range values {
		if !httpguts.ValidHeaderFieldValue(string(v)) {
			return errors.HeaderError(errors.KindInvalidSyntax, name)
		}
	}
	if _, ok := f.forbidden[strings.ToLower(string(name))]; ok {
		return errors.HeaderError(errors.KindForbidden, name)
	}
	return nil
}

// Append adds one value for name after any existing entries.
func (f *FieldsResource) Append(name, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(name, value); err != nil {
		return err
	}
	f.entries = append(f.entries, cloneField(host.Field{Name: name, Value: value}))
	return nil
}

// Set replaces every value for name.
func (f *FieldsResource) Set(name []byte, values [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(name, values...); err != nil {
		return err
	}
	f.entries = f.without(name)
	for _, v := range values {
		f.entries = append(f.entries, cloneField(host.Field{Name: name, Value: v}))
	}
	return nil
}

// Delete removes every value for name.
func (f *FieldsResource) Delete(name []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(name); err != nil {
		return err
	}
	f.entries = f.without(name)
	return nil
}

// without returns entries minus those named name. Caller holds mu.
func (f *FieldsResource) without(name []byte) []host.Field {
	kept := f.entries[:0:0]
	for _, e := range f.entries {
		if !bytes.EqualFold(e.Name, name) {
			kept = append(kept, e)
		}
	}
	return kept
}

// Get returns every value for name in insertion order.
func (f *FieldsResource) Get(name []byte) [][]byte {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var values [][]byte
	for _, e := range f.entries {
		if bytes.EqualFold(e.Name, name) {
			values = append(values, bytes.Clone(e.Value))
		}
	}
	return values
}

// Has reports whether name has at least one value.
func (f *FieldsResource) Has(name []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, e := range f.entries {
		if bytes.EqualFold(e.Name, name) {
			return true
		}
	}
	return false
}

// Entries returns a copy of all entries in insertion order.
func (f *FieldsResource) Entries() []host.Field {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]host.Field, len(f.entries))
	for i, e := range f.entries {
		out[i] = cloneField(e)
	}
	return out
}

// Clone returns a mutable copy with the same deny-list.
func (f *FieldsResource) Clone() *FieldsResource {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c := &FieldsResource{forbidden: f.forbidden}
	for _, e := range f.entries {
		c.entries = append(c.entries, cloneField(e))
	}
	return c
}

func cloneField(e host.Field) host.Field {
	return host.Field{Name: bytes.Clone(e.Name), Value: bytes.Clone(e.Value)}
}
