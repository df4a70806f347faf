package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// ErrNoCompiler occurs when no c or c++ compiler can be found.
var ErrNoCompiler = errors.New("missing compiler")

func lookup(env string, candidates ...string) (string, error) {
	if cc := strings.Fields(os.Getenv(env)); len(cc) > 0 {
		return exec.LookPath(cc[0])
	}
	for _, cc := range candidates {
		if p, err := exec.LookPath(cc); err == nil {
			return p, nil
		}
	}
	return "", ErrNoCompiler
}

// Compiler finds the c compiler, honoring $CC.
func Compiler() (string, error) {
	return lookup("CC", "cc", "gcc", "clang")
}

// CXXCompiler finds the c++ compiler, honoring $CXX.
func CXXCompiler() (string, error) {
	return lookup("CXX", "c++", "g++", "clang++")
}

// IsCXX reports whether source is a c++ file.
func IsCXX(source string) bool {
	switch filepath.Ext(source) {
	case ".cc", ".cpp", ".cxx", ".C":
		return true
	}
	return false
}

// CompileShared builds c or c++ sources into a shared library out, which can be opened by Native.
func CompileShared(ctx context.Context, out string, sources ...string) (err error) {
	find := Compiler
	if slices.ContainsFunc(sources, IsCXX) {
		find = CXXCompiler
	}
	var cc string
	if cc, err = find(); err != nil {
		return
	}
	args := append([]string{"-shared", "-fPIC", "-o", out}, sources...)
	cmd := exec.CommandContext(ctx, cc, args...)
	Logger().Debug("execute", zap.Strings("args", cmd.Args))
	var b []byte
	if b, err = cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("compile %s: %w\n%s", out, err, b)
	}
	return
}

// Check opens library and resolves Symbol without calling it.
func Check(ctx context.Context, l Loader, library string) (err error) {
	var m Module
	if m, err = l.Open(ctx, library); err != nil {
		return &Failure{Kind: KindLoad, Library: library, Cause: err}
	}
	defer func() {
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = m.Lookup(Symbol); err != nil {
		return &Failure{Kind: KindSymbol, Library: library, Symbol: Symbol, Cause: err}
	}
	return
}
