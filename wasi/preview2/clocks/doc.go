// Package clocks implements wasi:clocks/monotonic-clock@0.2.0.
//
// Time comes from the preview2.Clock configured on the environment, so
// tests can drive timers with a fake clock.
package clocks
