// Package preview2 holds the host side resources of the WASI 0.2 interfaces
// the bridge talks to: pollables, streams, header fields, sockets and the
// clock behind them.
//
// A WASI value owns one ResourceTable. The interface hosts in the
// sub-packages (io, http, sockets, clocks, cli, random) share it, so a
// pollable subscribed from a stream lives in the same handle space as the
// stream itself. Children pin their parents: a stream cannot be dropped
// while one of its pollables is live.
//
//	w := preview2.New().
//	    WithArgs([]string{"app"}).
//	    WithStreamCapacities(0, 3, 2)
//	defer w.Close()
//
// Output streams report write capacity from a schedule rather than from
// socket buffers, which makes backpressure deterministic in tests. Input
// streams read from a Pipe fed by a goroutine.
package preview2
