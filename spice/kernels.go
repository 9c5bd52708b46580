// Package spice loads and unloads CSPICE kernels.
//
// CSPICE keeps its kernel pool in process-wide state, so a process holds at
// most one open *Kernels at a time. A *Kernels is not safe for concurrent
// use; callers must serialize access.
package spice

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
)

// Backend is the native library. Furnish and Unload report failure through
// LastError, which also clears it.
type Backend interface {
	Furnish(path string)
	Unload(path string)
	LastError() error
}

var (
	ErrAlreadyOpen = errors.New("spice: kernels already open in this process")
	ErrClosed      = errors.New("spice: kernels closed")
	ErrNotLoaded   = errors.New("spice: kernel not loaded")
	// ErrNoBackend is returned by OpenDefault in builds without the cspice
	// tag.
	ErrNoBackend = errors.New("spice: built without the cspice tag")
)

var open atomic.Bool

// Error is a failure reported by the native library.
type Error struct {
	Op   string // "load" or "unload"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("spice: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Kernels struct {
	backend Backend
	// loaded in load order
	loaded []string
	closed bool
}

// Open claims the process-wide kernel pool.
func Open(b Backend) (*Kernels, error) {
	if b == nil {
		return nil, ErrNoBackend
	}
	if !open.CompareAndSwap(false, true) {
		return nil, ErrAlreadyOpen
	}
	return &Kernels{backend: b}, nil
}

// Load furnishes the kernel at path. Loading a path again moves it to the
// end of the load order, as CSPICE does.
func (k *Kernels) Load(path string) error {
	if k.closed {
		return ErrClosed
	}
	k.backend.Furnish(path)
	if err := k.backend.LastError(); err != nil {
		return &Error{Op: "load", Path: path, Err: err}
	}
	k.loaded = slices.DeleteFunc(k.loaded, func(p string) bool { return p == path })
	k.loaded = append(k.loaded, path)
	return nil
}

// Unload removes a kernel loaded through k.
func (k *Kernels) Unload(path string) error {
	if k.closed {
		return ErrClosed
	}
	i := slices.Index(k.loaded, path)
	if i < 0 {
		return &Error{Op: "unload", Path: path, Err: ErrNotLoaded}
	}
	k.backend.Unload(path)
	if err := k.backend.LastError(); err != nil {
		return &Error{Op: "unload", Path: path, Err: err}
	}
	k.loaded = slices.Delete(k.loaded, i, i+1)
	return nil
}

// Loaded returns the loaded kernels in load order.
func (k *Kernels) Loaded() []string {
	return slices.Clone(k.loaded)
}

// Close unloads every kernel, most recent first, and releases the pool.
// Close is idempotent.
func (k *Kernels) Close() error {
	if k.closed {
		return nil
	}
	var errs []error
	for _, path := range slices.Backward(k.loaded) {
		k.backend.Unload(path)
		if err := k.backend.LastError(); err != nil {
			errs = append(errs, &Error{Op: "unload", Path: path, Err: err})
		}
	}
	k.loaded = nil
	k.closed = true
	open.Store(false)
	return errors.Join(errs...)
}
