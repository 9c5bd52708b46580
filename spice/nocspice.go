//go:build !cspice

package spice

// OpenDefault opens the kernel pool of the linked CSPICE library. This
// build has none.
func OpenDefault() (*Kernels, error) {
	return nil, ErrNoBackend
}
