// Package wasm opens WebAssembly modules as bridge modules with [wazero].
//
// A module exports its linear memory as "memory", an allocator "hz_alloc" (or "malloc")
// taking a size and returning an offset, and
//
//	hz_process(ptr i32, len i32) i64
//
// which answers the packed result ptr<<32|len, or 0 for null. An optional
// hz_free(ptr i32, len i32) releases the result after it was copied out.
//
// Each Open compiles and instantiates the module in its own runtime, Close releases it.
// Traps are reported as call errors. Importing this package registers the Loader for .wasm files.
//
// [wazero]: https://github.com/tetratelabs/wazero
package wasm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ZenLiuCN/bridge"
	"github.com/ZenLiuCN/fn"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Allocators tried in order when preparing the payload.
var Allocators = []string{"hz_alloc", "malloc"}

var (
	// ErrNoMemory occurs when a module exports no linear memory.
	ErrNoMemory = errors.New("module exports no memory")
	// ErrNoAllocator occurs when a module exports none of Allocators.
	ErrNoAllocator = errors.New("module exports no allocator")
	// ErrOutOfBounds occurs when a module answers a range outside its memory.
	ErrOutOfBounds = errors.New("memory access out of bounds")
)

// Loader instantiates WebAssembly modules.
type Loader struct {
	MemoryLimitPages uint32 //0 keeps the wazero default
	WASI             bool   //instantiate wasi_snapshot_preview1 before the module
}

var _ bridge.Loader = (*Loader)(nil)

func init() {
	fn.Panic(bridge.Register(".wasm", &Loader{WASI: true}))
}

type instance struct {
	ctx     context.Context
	runtime wazero.Runtime
	module  api.Module
}

func (l *Loader) Open(ctx context.Context, name string) (bridge.Module, error) {
	bin, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return l.Instantiate(ctx, bin)
}

// Instantiate a module from its binary.
func (l *Loader) Instantiate(ctx context.Context, bin []byte) (m bridge.Module, err error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if l.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(l.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer func() {
		if err != nil {
			_ = r.Close(ctx)
		}
	}()
	if l.WASI {
		if _, err = wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return
		}
	}
	var compiled wazero.CompiledModule
	if compiled, err = r.CompileModule(ctx, bin); err != nil {
		return
	}
	var mod api.Module
	modCfg := wazero.NewModuleConfig().WithName("").WithStartFunctions("_initialize")
	if mod, err = r.InstantiateModule(ctx, compiled, modCfg); err != nil {
		return
	}
	return &instance{ctx: ctx, runtime: r, module: mod}, nil
}

func (i *instance) allocator() api.Function {
	for _, name := range Allocators {
		if f := i.module.ExportedFunction(name); f != nil {
			return f
		}
	}
	return nil
}

func (i *instance) Lookup(symbol string) (bridge.Func, error) {
	process := i.module.ExportedFunction(symbol)
	if process == nil {
		return nil, fmt.Errorf("%w %s", bridge.ErrMissingSymbol, symbol)
	}
	mem := i.module.Memory()
	if mem == nil {
		return nil, ErrNoMemory
	}
	alloc := i.allocator()
	if alloc == nil {
		return nil, ErrNoAllocator
	}
	release := i.module.ExportedFunction(bridge.FreeSymbol)
	return func(ctx context.Context, payload string) (string, error) {
		if ctx == nil {
			ctx = i.ctx
		}
		res, err := alloc.Call(ctx, uint64(len(payload)))
		if err != nil {
			return "", fmt.Errorf("allocate %d bytes: %w", len(payload), err)
		}
		ptr := uint32(res[0])
		if !mem.WriteString(ptr, payload) {
			return "", fmt.Errorf("%w: write %d bytes at %d", ErrOutOfBounds, len(payload), ptr)
		}
		if res, err = process.Call(ctx, uint64(ptr), uint64(len(payload))); err != nil {
			return "", err
		}
		if res[0] == 0 {
			return "", bridge.ErrNullResult
		}
		rp, rn := uint32(res[0]>>32), uint32(res[0])
		b, ok := mem.Read(rp, rn)
		if !ok {
			return "", fmt.Errorf("%w: read %d bytes at %d", ErrOutOfBounds, rn, rp)
		}
		s := string(b)
		if release != nil {
			if _, err = release.Call(ctx, uint64(rp), uint64(rn)); err != nil {
				return "", fmt.Errorf("release result: %w", err)
			}
		}
		return s, nil
	}, nil
}

func (i *instance) Close() error {
	return i.runtime.Close(i.ctx)
}
