// Package resource manages host resource handles on both sides of the
// bridge.
//
// # Refs
//
// The core holds host handles through Ref[T], a single-owner wrapper tagged
// owned or borrowed:
//
//	body := resource.Own[IncomingBody](h)
//	host.IncomingBodyStream(body.Borrow()) // does not consume
//	host.DropIncomingBody(body.Take())     // consumes, body is now poisoned
//
// Take on a borrowed or already consumed Ref, and Borrow on a consumed Ref,
// are contract violations and panic.
//
// # Live-handle registry
//
// With EnableTracking(true) every Ref registers its (kind, handle) identity
// in a process-wide set. Creating a second Ref for a live identity, or using
// a Ref whose identity has been removed, panics. Tracking is meant for debug
// runs and tests; it is off by default.
//
// # Tables
//
// Host adapters store resource values in a Table:
//
//	table := resource.NewTable()
//	h := table.Insert(typeID, value)
//	v, ok := table.GetTyped(h, typeID)
//	_, err := table.Remove(h)
//
// A child resource (a stream derived from a body, say) pins its parent with
// Borrow; Remove on a pinned parent fails with ErrOutstandingBorrow until the
// child returns the borrow. Observers receive created/dropped events.
package resource
