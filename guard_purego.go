//go:build !cgo && (darwin || freebsd || linux || netbsd)

package bridge

import "github.com/ebitengine/purego"

// guarded reports whether native calls catch c++ exceptions.
// Without cgo an exception escaping hz_process terminates the process.
const guarded = false

func caller(sym uintptr) func(string) (*byte, error) {
	var process func(string) *byte
	purego.RegisterFunc(&process, sym)
	return func(payload string) (*byte, error) {
		return process(payload), nil
	}
}
