package resource

import (
	"reflect"
	"sync"

	"github.com/wippyai/wasi-hostbridge/internal/invariant"
)

type liveKey struct {
	kind   reflect.Type
	handle Handle
}

// registry is the process-wide set of live handle identities. It is only
// populated while tracking is enabled.
var registry struct {
	live    map[liveKey]struct{}
	mu      sync.Mutex
	enabled bool
}

// EnableTracking switches the live-handle registry on or off. Switching it
// on starts from an empty set, so enable it before any Ref is created.
func EnableTracking(on bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.enabled = on
	if on {
		registry.live = make(map[liveKey]struct{})
	} else {
		registry.live = nil
	}
}

// Tracking reports whether the live-handle registry is active.
func Tracking() bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.enabled
}

// LiveHandles returns the number of registered handles, or 0 when tracking
// is off.
func LiveHandles() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.live)
}

func register(kind reflect.Type, h Handle) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if !registry.enabled {
		return
	}
	k := liveKey{kind: kind, handle: h}
	_, dup := registry.live[k]
	invariant.Assert(!dup, "%s handle %d registered twice", kind, h)
	registry.live[k] = struct{}{}
}

func unregister(kind reflect.Type, h Handle) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if !registry.enabled {
		return
	}
	k := liveKey{kind: kind, handle: h}
	_, ok := registry.live[k]
	invariant.Assert(ok, "%s handle %d is not live", kind, h)
	delete(registry.live, k)
}

func assertLive(kind reflect.Type, h Handle) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if !registry.enabled {
		return
	}
	_, ok := registry.live[liveKey{kind: kind, handle: h}]
	invariant.Assert(ok, "%s handle %d used after free", kind, h)
}
