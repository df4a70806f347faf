//go:build cgo && (darwin || freebsd || linux || netbsd)

package bridge

/*
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>

int hz_guarded_call(uintptr_t f, const char* payload, const char** result, char* what, size_t n);
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// guarded reports whether native calls catch c++ exceptions.
const guarded = true

// caller of the hz_process at sym, exceptions thrown inside it are returned as ErrThrown.
func caller(sym uintptr) func(string) (*byte, error) {
	return func(payload string) (*byte, error) {
		p := C.CString(payload)
		defer C.free(unsafe.Pointer(p))
		var result *C.char
		var what [256]C.char
		if C.hz_guarded_call(C.uintptr_t(sym), p, &result, &what[0], C.size_t(len(what))) != 0 {
			return nil, fmt.Errorf("%w: %s", ErrThrown, C.GoString(&what[0]))
		}
		return (*byte)(unsafe.Pointer(result)), nil
	}
}
