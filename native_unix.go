//go:build darwin || freebsd || linux || netbsd

package bridge

import (
	"context"
	"fmt"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// Native opens shared libraries with local symbol visibility.
var Native Loader = nativeLoader{}

type nativeLoader struct{}

type library struct {
	name   string
	handle uintptr
}

func (nativeLoader) Open(_ context.Context, name string) (Module, error) {
	h, err := purego.Dlopen(name, purego.RTLD_LOCAL|purego.RTLD_LAZY)
	if err != nil {
		return nil, err
	}
	return &library{name: name, handle: h}, nil
}

func (l *library) Lookup(symbol string) (Func, error) {
	sym, err := purego.Dlsym(l.handle, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrMissingSymbol, symbol, err)
	}
	process := caller(sym)
	var release func(*byte)
	if fr, err := purego.Dlsym(l.handle, FreeSymbol); err == nil {
		purego.RegisterFunc(&release, fr)
	}
	return func(_ context.Context, payload string) (string, error) {
		p, err := process(payload)
		if err != nil {
			return "", err
		}
		if p == nil {
			return "", ErrNullResult
		}
		s := unix.BytePtrToString(p)
		if release != nil {
			release(p)
		}
		return s, nil
	}, nil
}

func (l *library) Close() error {
	if l.handle == 0 {
		return nil
	}
	h := l.handle
	l.handle = 0
	return purego.Dlclose(h)
}
