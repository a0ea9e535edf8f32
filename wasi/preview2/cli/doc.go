// Package cli implements wasi:cli/environment@0.2.0: arguments and
// environment variables handed to the guest.
package cli
