//go:build !(darwin || freebsd || linux || netbsd)

package bridge

import (
	"context"
	"fmt"
	"runtime"
)

// Native is unavailable on this platform, every Open fails with ErrUnsupported.
var Native Loader = nativeLoader{}

type nativeLoader struct{}

func (nativeLoader) Open(_ context.Context, name string) (Module, error) {
	return nil, fmt.Errorf("%w: %s/%s can not open %s", ErrUnsupported, runtime.GOOS, runtime.GOARCH, name)
}
