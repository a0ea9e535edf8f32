// Package random implements wasi:random/random@0.2.0 on crypto/rand.
package random
