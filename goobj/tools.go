package goobj

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZenLiuCN/bridge"
	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"
	"go.uber.org/zap"
)

// Inspect lists the symbols of an object file.
func Inspect(file, pkg string) ([]string, error) {
	if pkg == "" {
		pkg = "main"
	}
	return goloader.Parse(file, pkg)
}

// Exports reports whether the object file defines the go function behind symbol.
func Exports(file, pkg, symbol string) (bool, error) {
	syms, err := Inspect(file, pkg)
	if err != nil {
		return false, err
	}
	if pkg == "" {
		pkg = "main"
	}
	want := Qualify(pkg, symbol)
	for _, s := range syms {
		if s == want {
			return true, nil
		}
	}
	return false, nil
}

// Toolchain drives the go sdk to produce object modules.
type Toolchain struct {
	Dir string //working directory, current one when empty
	Log *zap.Logger
}

func (t Toolchain) log() *zap.Logger {
	if t.Log == nil {
		return bridge.Logger()
	}
	return t.Log
}

func (t Toolchain) command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.Dir = t.Dir
	t.log().Debug("execute", zap.Strings("args", cmd.Args))
	return cmd
}

// Compile sources into an object file named out, the package path is pkg.
func (t Toolchain) Compile(out, pkg string, sources []string) (err error) {
	if _, err = exec.LookPath("go"); err != nil {
		return fmt.Errorf("missing go sdk: %w", err)
	}
	if err = t.Imports(sources); err != nil {
		return fmt.Errorf("generate importcfg: %w", err)
	}
	if pkg == "" {
		pkg = "main"
	}
	args := append([]string{"tool", "compile", "-importcfg", "importcfg", "-p", pkg, "-o", out}, sources...)
	cmd := t.command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err = cmd.Run(); err != nil {
		return
	}
	return os.Remove(filepath.Join(t.Dir, "importcfg"))
}

// Imports writes the importcfg file of sources into the working directory.
func (t Toolchain) Imports(sources []string) (err error) {
	var cfg *os.File
	if cfg, err = os.OpenFile(filepath.Join(t.Dir, "importcfg"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644); err != nil {
		return
	}
	defer fn.IgnoreClose(cfg)
	var bout []byte
	if bout, err = t.command("go", append([]string{"list", "-export", "-f", "{{.Imports}}"}, sources...)...).Output(); err != nil {
		return fmt.Errorf("inspect imports: %w%s", err, stderr(err))
	}
	out := strings.TrimSpace(string(bout))
	out = strings.TrimSuffix(strings.TrimPrefix(out, "["), "]")
	deps := strings.Fields(out)
	t.log().Debug("dependencies", zap.Strings("imports", deps))
	args := append([]string{"list", "-export", "-f", "{{if .Export}}packagefile {{.ImportPath}}={{.Export}}{{end}}", "std"}, deps...)
	if bout, err = t.command("go", args...).Output(); err != nil {
		return fmt.Errorf("inspect dependencies: %w%s", err, stderr(err))
	}
	_, err = cfg.Write(bout)
	return
}

func stderr(err error) string {
	if e, ok := err.(*exec.ExitError); ok && len(e.Stderr) > 0 {
		return "\n" + string(e.Stderr)
	}
	return ""
}

// objfileDir is where goloader expects the copied internals of the sdk.
func objfileDir() (src, dst string) {
	root := os.Getenv("GOROOT")
	if root == "" {
		if out, err := exec.Command("go", "env", "GOROOT").Output(); err == nil {
			root = strings.TrimSpace(string(out))
		}
	}
	return filepath.Join(root, "src", "cmd", "internal"), filepath.Join(root, "src", "cmd", "objfile")
}

// Prepare copies the sdk internals goloader builds against, it does nothing when already prepared.
func Prepare() (dir string, err error) {
	src, dir := objfileDir()
	if _, err = os.Stat(dir); err == nil {
		return dir, nil
	} else if !os.IsNotExist(err) {
		return
	}
	return dir, CopyDir(src, dir, nil)
}

// Clean removes what Prepare copied.
func Clean() (dir string, err error) {
	_, dir = objfileDir()
	if _, err = os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}
	return dir, os.RemoveAll(dir)
}

// CopyFile from src to dest with optional src file info
func CopyFile(src string, dest string, si fs.FileInfo) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer fn.IgnoreClose(sf)
	df, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer fn.IgnoreClose(df)
	if _, err = io.Copy(df, sf); err != nil {
		return
	}
	if si == nil {
		if si, err = os.Stat(src); err != nil {
			return
		}
	}
	return os.Chmod(dest, si.Mode())
}

// CopyDir from src to dest with optional src file info
func CopyDir(src string, dest string, si fs.FileInfo) (err error) {
	if si == nil {
		if si, err = os.Stat(src); err != nil {
			return err
		}
	}
	if err = os.MkdirAll(dest, si.Mode()); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == src {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		dp := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(dp, info.Mode())
		}
		return CopyFile(path, dp, info)
	})
}
