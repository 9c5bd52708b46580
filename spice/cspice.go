//go:build cspice

package spice

/*
#include <stdlib.h>
#include "SpiceUsr.h"
*/
import "C"

import (
	"errors"
	"strings"
	"unsafe"
)

// longMessageLen is SPICE_ERROR_LMSGLN plus the terminator.
const longMessageLen = 1841

func cstr(s string) *C.char { return C.CString(s) }

func init() {
	set, ret, none := cstr("SET"), cstr("RETURN"), cstr("NONE")
	defer C.free(unsafe.Pointer(set))
	defer C.free(unsafe.Pointer(ret))
	defer C.free(unsafe.Pointer(none))

	// report errors through failed_c instead of aborting the process
	C.erract_c((*C.ConstSpiceChar)(unsafe.Pointer(set)), 0, (*C.SpiceChar)(unsafe.Pointer(ret)))
	C.errprt_c((*C.ConstSpiceChar)(unsafe.Pointer(set)), 0, (*C.SpiceChar)(unsafe.Pointer(none)))
}

type cspiceBackend struct{}

func (cspiceBackend) Furnish(path string) { FurnshC(path) }

func (cspiceBackend) Unload(path string) { UnloadC(path) }

func (cspiceBackend) LastError() error {
	if C.failed_c() == 0 {
		return nil
	}
	opt := cstr("LONG")
	defer C.free(unsafe.Pointer(opt))

	buf := make([]C.SpiceChar, longMessageLen)
	C.getmsg_c((*C.ConstSpiceChar)(unsafe.Pointer(opt)), C.SpiceInt(len(buf)), &buf[0])
	C.reset_c()
	return errors.New(strings.TrimSpace(C.GoString((*C.char)(unsafe.Pointer(&buf[0])))))
}

// OpenDefault opens the kernel pool of the linked CSPICE library.
func OpenDefault() (*Kernels, error) {
	return Open(cspiceBackend{})
}
