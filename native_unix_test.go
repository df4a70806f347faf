//go:build darwin || freebsd || linux || netbsd

package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ZenLiuCN/fn"
)

var (
	fixturesMu  sync.Mutex
	fixtures    string
	fixtureErrs = make(map[string]error)
)

// native builds testdata/<source> into a module, skipping without a suitable compiler.
func native(t *testing.T, source string) string {
	t.Helper()
	fixturesMu.Lock()
	defer fixturesMu.Unlock()
	if fixtures == "" {
		fixtures = fn.Panic1(os.MkdirTemp("", "bridge"))
	}
	if !strings.Contains(source, ".") {
		source += ".c"
	}
	out := filepath.Join(fixtures, strings.TrimSuffix(source, filepath.Ext(source))+".so")
	err, built := fixtureErrs[source]
	if !built {
		err = CompileShared(context.Background(), out, filepath.Join("testdata", source))
		fixtureErrs[source] = err
	}
	if err != nil {
		t.Skipf("native fixture %s unavailable: %v", source, err)
	}
	return out
}

func TestMain(m *testing.M) {
	code := m.Run()
	if fixtures != "" {
		_ = os.RemoveAll(fixtures)
	}
	os.Exit(code)
}

func TestNativeEcho(t *testing.T) {
	lib := native(t, "echo")
	b := New(WithLoader(Native))
	for _, payload := range []string{"abc", "", "abc", "ünïcode"} {
		got := fn.Panic1(b.Invoke(context.Background(), payload, lib))
		if got != payload {
			t.Errorf("Invoke(%q) = %q", payload, got)
		}
	}
}

func TestNativeStatic(t *testing.T) {
	lib := native(t, "static")
	if got := Run("abc", lib); got != "static" {
		t.Errorf("Run() = %q", got)
	}
}

func TestNativeNull(t *testing.T) {
	lib := native(t, "null")
	_, err := New(WithLoader(Native)).Invoke(context.Background(), "abc", lib)
	if !errors.Is(err, ErrNullResult) {
		t.Fatalf("want null result, got %v", err)
	}
	if got := Run("abc", lib); got != Sentinel {
		t.Errorf("Run() = %q", got)
	}
}

func TestNativeMissingSymbol(t *testing.T) {
	lib := native(t, "nosym")
	_, err := New(WithLoader(Native)).Invoke(context.Background(), "abc", lib)
	if !errors.Is(err, ErrSymbolNotFound) || !errors.Is(err, ErrMissingSymbol) {
		t.Fatalf("want symbol not found, got %v", err)
	}
	if !strings.Contains(err.Error(), Symbol) {
		t.Errorf("diagnostic should name the symbol: %v", err)
	}
}

func TestNativeMissingLibrary(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "absent.so")
	_, err := New(WithLoader(Native)).Invoke(context.Background(), "abc", lib)
	if !errors.Is(err, ErrLoadFailure) {
		t.Fatalf("want load failure, got %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Error("loader diagnostic missing")
	}
	if got := Run("abc", lib); got != Sentinel {
		t.Errorf("Run() = %q", got)
	}
}

func TestNativeCheck(t *testing.T) {
	if err := Check(context.Background(), Native, native(t, "echo")); err != nil {
		t.Errorf("Check(echo) = %v", err)
	}
	if err := Check(context.Background(), Native, native(t, "nosym")); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("Check(nosym) = %v", err)
	}
}

func TestNativeRepeatedRelease(t *testing.T) {
	lib := native(t, "echo")
	m := fn.Panic1(Native.Open(context.Background(), lib))
	fn.Panic(m.Close())
	if err := m.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

type countingNative struct {
	opened, closed int
}

type countedLibrary struct {
	Module
	c *countingNative
}

func (c *countingNative) Open(ctx context.Context, name string) (Module, error) {
	m, err := Native.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	c.opened++
	return countedLibrary{m, c}, nil
}

func (m countedLibrary) Close() error {
	m.c.closed++
	return m.Module.Close()
}

func TestNativeThrow(t *testing.T) {
	if !guarded {
		t.Skip("exceptions are only caught with cgo")
	}
	for _, tt := range []struct{ source, what string }{
		{"throw.cpp", "boom"},
		{"throwany.cpp", "unknown exception"},
	} {
		t.Run(tt.source, func(t *testing.T) {
			lib := native(t, tt.source)
			c := new(countingNative)
			b := New(WithLoader(c))
			_, err := b.Invoke(context.Background(), "abc", lib)
			if !errors.Is(err, ErrCallFailure) || !errors.Is(err, ErrThrown) {
				t.Fatalf("want call failure, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.what) {
				t.Errorf("diagnostic should carry %q: %v", tt.what, err)
			}
			if c.opened != 1 || c.closed != 1 {
				t.Errorf("opened %d closed %d", c.opened, c.closed)
			}
			if got := b.Run(context.Background(), "abc", lib); got != Sentinel {
				t.Errorf("Run() = %q", got)
			}
			if c.opened != 2 || c.closed != 2 {
				t.Errorf("opened %d closed %d", c.opened, c.closed)
			}
		})
	}
}

func TestIsCXX(t *testing.T) {
	for src, want := range map[string]bool{"a.c": false, "a.cpp": true, "b/a.cc": true, "a.cxx": true, "a.h": false} {
		if IsCXX(src) != want {
			t.Errorf("IsCXX(%s) != %v", src, want)
		}
	}
}
