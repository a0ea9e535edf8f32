package preview2

import (
	"sync"

	"github.com/wippyai/wasi-hostbridge/resource"
)

// MaxAllocationSize caps a single stream read (1 GB).
const MaxAllocationSize = 1 << 30

// DefaultBufferSize is the write capacity streams report when no capacity
// schedule is configured (64 KB).
const DefaultBufferSize = 65536

// Resource is a WASI preview2 resource that can be managed by ResourceTable.
type Resource interface {
	// Type returns the resource type identifier.
	Type() ResourceType
	// Drop releases any underlying resources.
	Drop()
}

// ResourceType identifies the type of a WASI resource for type-safe handle management.
type ResourceType uint8

const (
	ResourcePollable ResourceType = iota + 1
	ResourceInputStream
	ResourceOutputStream
	ResourceFields
	ResourceNetwork
	ResourceTCPSocket
	ResourceIncomingRequest
	ResourceIncomingBody
	ResourceOutgoingRequest
	ResourceOutgoingBody
	ResourceOutgoingResponse
	ResourceResponseOutparam
	ResourceFutureIncomingResponse
	ResourceIncomingResponse
)

var resourceTypeNames = map[ResourceType]string{
	ResourcePollable:               "pollable",
	ResourceInputStream:            "input-stream",
	ResourceOutputStream:           "output-stream",
	ResourceFields:                 "fields",
	ResourceNetwork:                "network",
	ResourceTCPSocket:              "tcp-socket",
	ResourceIncomingRequest:        "incoming-request",
	ResourceIncomingBody:           "incoming-body",
	ResourceOutgoingRequest:        "outgoing-request",
	ResourceOutgoingBody:           "outgoing-body",
	ResourceOutgoingResponse:       "outgoing-response",
	ResourceResponseOutparam:       "response-outparam",
	ResourceFutureIncomingResponse: "future-incoming-response",
	ResourceIncomingResponse:       "incoming-response",
}

func (t ResourceType) String() string {
	if name, ok := resourceTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ResourceTable manages WASI preview2 resource handles on top of
// resource.Table. It remembers which handles are children of which, so a
// child's removal unpins its parent.
type ResourceTable struct {
	table   *resource.Table
	parents map[resource.Handle]resource.Handle
	mu      sync.Mutex
}

// NewResourceTable creates a new resource table
func NewResourceTable() *ResourceTable {
	return &ResourceTable{
		table:   resource.NewTable(),
		parents: make(map[resource.Handle]resource.Handle),
	}
}

// Add stores a resource and returns its handle.
func (t *ResourceTable) Add(r Resource) resource.Handle {
	return t.table.Insert(resource.TypeID(r.Type()), r)
}

// AddChild stores r as a child of parent. The parent cannot be removed
// until the child is. Returns false if parent is not live.
func (t *ResourceTable) AddChild(parent resource.Handle, r Resource) (resource.Handle, bool) {
	if !t.table.Borrow(parent) {
		return resource.Invalid, false
	}
	h := t.Add(r)
	if h == resource.Invalid {
		t.table.ReturnBorrow(parent)
		return resource.Invalid, false
	}
	t.mu.Lock()
	t.parents[h] = parent
	t.mu.Unlock()
	return h, true
}

// Get returns the resource for a handle, or (nil, false) if invalid.
func (t *ResourceTable) Get(h resource.Handle) (Resource, bool) {
	v, ok := t.table.Get(h)
	if !ok {
		return nil, false
	}
	r, ok := v.(Resource)
	return r, ok
}

// Lookup returns the resource for h if it has concrete type R.
func Lookup[R Resource](t *ResourceTable, h resource.Handle) (R, bool) {
	var zero R
	r, ok := t.Get(h)
	if !ok {
		return zero, false
	}
	typed, ok := r.(R)
	return typed, ok
}

// Remove drops the resource and removes it from the table. Removing a
// parent with live children fails with resource.ErrOutstandingBorrow.
func (t *ResourceTable) Remove(h resource.Handle) error {
	if _, err := t.table.Remove(h); err != nil {
		return err
	}
	t.mu.Lock()
	parent, ok := t.parents[h]
	delete(t.parents, h)
	t.mu.Unlock()
	if ok {
		t.table.ReturnBorrow(parent)
	}
	return nil
}

// Subscribe registers an observer for create/drop events.
func (t *ResourceTable) Subscribe(o resource.Observer) {
	t.table.Subscribe(o)
}

// Len returns the number of live handles.
func (t *ResourceTable) Len() int {
	return t.table.Len()
}

// Clear drops and removes all resources, children before parents.
func (t *ResourceTable) Clear() {
	for pass := 0; pass < 8 && t.table.Len() > 0; pass++ {
		handles := t.table.Handles()
		for i := len(handles) - 1; i >= 0; i-- {
			_ = t.Remove(handles[i])
		}
	}
}

// NetworkResource represents a network instance for socket creation.
type NetworkResource struct{}

func NewNetworkResource() *NetworkResource {
	return &NetworkResource{}
}

func (n *NetworkResource) Type() ResourceType { return ResourceNetwork }
func (n *NetworkResource) Drop()              {}
