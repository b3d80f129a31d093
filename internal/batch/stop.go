// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import "sync/atomic"

// StopFlag is a leveled cancellation signal shared between the goroutine
// that requests a stop and the worker that polls it. Once set it stays set
// until Clear.
type StopFlag struct {
	set atomic.Bool
}

// Set requests that the current run stop before its next row.
func (f *StopFlag) Set() { f.set.Store(true) }

// Clear resets the flag.
func (f *StopFlag) Clear() { f.set.Store(false) }

// IsSet reports whether a stop has been requested.
func (f *StopFlag) IsSet() bool { return f.set.Load() }
