// Package goobj opens go relocatable object files (.o) and archives (.a) as bridge modules through [goloader].
//
// The exported hz_process maps to the go function HzProcess of type func(string) string,
// since goloader only links exported functions. A module name may carry its package path
// after a '#', such as "testdata/echo.o#sample", otherwise the Loader package is used.
//
// Importing this package registers the Loader for .o and .a files.
//
// [goloader]: https://github.com/pkujhd/goloader
package goobj

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/ZenLiuCN/bridge"
	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"
)

// Names maps bridge symbols to go function names.
var Names = map[string]string{
	bridge.Symbol: "HzProcess",
}

var (
	// ErrUnlinked occurs on use of a module after Close.
	ErrUnlinked = errors.New("module not linked")
)

// Loader links object files against the symbols of the running executable.
type Loader struct {
	Pkg   string //default package path, "main" when empty
	Types []any  //types registered before linking, for interfaces crossing the module boundary
	Debug bool
}

var _ bridge.Loader = (*Loader)(nil)

func init() {
	l := new(Loader)
	fn.Panic(bridge.Register(".o", l))
	fn.Panic(bridge.Register(".a", l))
}

type object struct {
	file   string
	pkg    string
	module *goloader.CodeModule
	mu     sync.Mutex
}

// Split a module name into file and package path.
func Split(name, pkg string) (file, pkgPath string) {
	file = name
	if i := strings.LastIndexByte(name, '#'); i >= 0 {
		file, pkg = name[:i], name[i+1:]
	}
	if pkg == "" {
		pkg = "main"
	}
	return file, pkg
}

func (l *Loader) Open(_ context.Context, name string) (m bridge.Module, err error) {
	file, pkg := Split(name, l.Pkg)
	sym := make(map[string]uintptr)
	if err = goloader.RegSymbol(sym); err != nil {
		return
	}
	if len(l.Types) > 0 {
		goloader.RegTypes(sym, l.Types...)
	}
	var linker *goloader.Linker
	if linker, err = goloader.ReadObj(file, pkg); err != nil {
		return
	}
	o := &object{file: file, pkg: pkg}
	if o.module, err = goloader.Load(linker, sym); err != nil {
		return
	}
	if l.Debug {
		bridge.Logger().Sugar().Debugf("linked %s(%s): %d symbols", file, pkg, len(o.module.Syms))
	}
	return o, nil
}

// Qualify a symbol with the package path, applying Names.
func Qualify(pkg, symbol string) string {
	if n, ok := Names[symbol]; ok {
		symbol = n
	}
	if strings.IndexByte(symbol, '.') < 0 {
		return pkg + "." + symbol
	}
	return symbol
}

func (o *object) Lookup(symbol string) (bridge.Func, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.module == nil {
		return nil, ErrUnlinked
	}
	name := Qualify(o.pkg, symbol)
	p, ok := o.module.Syms[name]
	if !ok {
		return nil, fmt.Errorf("%w %s in %s", bridge.ErrMissingSymbol, name, o.file)
	}
	code := new(uintptr)
	*code = p
	process := *(*func(string) string)(unsafe.Pointer(&code))
	return func(_ context.Context, payload string) (string, error) {
		return strings.Clone(process(payload)), nil
	}, nil
}

func (o *object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.module != nil {
		o.module.Unload()
		o.module = nil
	}
	return nil
}
