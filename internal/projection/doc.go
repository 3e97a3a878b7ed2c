// Package projection folds admitted session events into SessionState.
//
// Apply is a pure reducer over a caller-owned state; Store wraps one state
// for a session view with a single writer and snapshot readers.
package projection
