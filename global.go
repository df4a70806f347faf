package bridge

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ZenLiuCN/fn"
)

type (
	// Func is a resolved hz_process. It returns ErrNullResult when the module answers null.
	Func func(ctx context.Context, payload string) (string, error)
	// Module is an opened library, valid until Close.
	Module interface {
		Lookup(symbol string) (Func, error) //resolve an export, ErrMissingSymbol (wrapped) when absent
		Close() error                       //release the library
	}
	// Loader opens modules by name.
	Loader interface {
		Open(ctx context.Context, name string) (Module, error)
	}
	// LoaderFunc adapts a function to Loader.
	LoaderFunc func(ctx context.Context, name string) (Module, error)
)

func (f LoaderFunc) Open(ctx context.Context, name string) (Module, error) {
	return f(ctx, name)
}

var (
	mu      sync.RWMutex
	loaders map[string]Loader
)

func init() {
	loaders = make(map[string]Loader)
	fn.Panic(Register(".so", Native))
	fn.Panic(Register(".dylib", Native))
}

// Register a loader for module names with the file extension ext (with leading dot).
func Register(ext string, l Loader) error {
	ext = strings.ToLower(ext)
	mu.Lock()
	defer mu.Unlock()
	if _, ok := loaders[ext]; ok {
		return ErrAlreadyRegistered
	}
	loaders[ext] = l
	return nil
}

// Unregister removes the loader of ext, it reports whether one was present.
func Unregister(ext string) bool {
	ext = strings.ToLower(ext)
	mu.Lock()
	defer mu.Unlock()
	_, ok := loaders[ext]
	delete(loaders, ext)
	return ok
}

// Extensions registered, sorted.
func Extensions() []string {
	mu.RLock()
	defer mu.RUnlock()
	v := fn.MapKeys(loaders)
	slices.Sort(v)
	return v
}

// LoaderFor the module name, falls back to Native for unknown extensions.
//
// A '#' suffix carries loader specific selectors and is ignored here.
func LoaderFor(name string) Loader {
	if i := strings.LastIndexByte(name, '#'); i >= 0 {
		name = name[:i]
	}
	mu.RLock()
	defer mu.RUnlock()
	if l, ok := loaders[strings.ToLower(filepath.Ext(name))]; ok {
		return l
	}
	return Native
}

// Default loader dispatching on the registered extensions at open time.
func Default() Loader {
	return LoaderFunc(func(ctx context.Context, name string) (Module, error) {
		return LoaderFor(name).Open(ctx, name)
	})
}
