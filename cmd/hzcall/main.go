package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZenLiuCN/bridge"
	"github.com/ZenLiuCN/bridge/goobj"
	"github.com/ZenLiuCN/bridge/pool"
	_ "github.com/ZenLiuCN/bridge/wasm"
	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		bridge.Logger().Fatal("failure", zap.Error(err))
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "hzcall"
	app.Usage = "call hz_process of dynamic modules"
	app.Description = "load a shared library, wasm module or go object and run payloads through its hz_process"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, EnvVars: []string{"HZCALL_DEBUG"}, Usage: "trace every invocation"},
		&cli.BoolFlag{Name: "json", EnvVars: []string{"HZCALL_JSON"}, Usage: "log as json"},
	}
	app.Before = setup
	libFlag := &cli.StringFlag{Name: "lib", Aliases: []string{"l"}, Required: true, EnvVars: []string{"HZCALL_LIB"}, Usage: "module to load"}
	app.Commands = []*cli.Command{
		{
			Name:      "run",
			Action:    run,
			ArgsUsage: "payload...",
			Usage:     "run each payload argument, printing one result per line",
			Flags: []cli.Flag{
				libFlag,
				&cli.BoolFlag{Name: "strict", Aliases: []string{"s"}, Usage: "fail with the failure kind instead of printing NULL"},
				&cli.BoolFlag{Name: "retain", Usage: "keep the module loaded after a successful call"},
			},
		},
		{
			Name:   "map",
			Action: mapping,
			Usage:  "map stdin lines through the module, printing results in order",
			Flags: []cli.Flag{
				libFlag,
				&cli.StringFlag{Name: "dir", Value: ".", EnvVars: []string{"HZCALL_DIR"}, Usage: "directory a relative module is resolved in"},
				&cli.IntFlag{Name: "parallel", Aliases: []string{"p"}, Value: 1, Usage: "concurrent invocations"},
			},
		},
		{
			Name:   "inspect",
			Action: inspect,
			Usage:  "check a module exports hz_process, listing symbols of go objects",
			Flags: []cli.Flag{
				libFlag,
				&cli.StringFlag{Name: "pkg", Aliases: []string{"k"}, Usage: "package path of go objects, default main"},
				&cli.BoolFlag{Name: "dump", Usage: "dump the failure"},
			},
		},
		{
			Name:      "compile",
			Action:    compile,
			ArgsUsage: "sources...",
			Usage:     "compile c sources into a shared library or go sources into an object file",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "output file, .o for go objects"},
				&cli.StringFlag{Name: "pkg", Aliases: []string{"k"}, Usage: "package import path of go sources"},
			},
		},
		{
			Name:   "prepare",
			Action: prepare,
			Usage:  "copy the go sdk internals needed by go object modules",
		},
		{
			Name:   "clean",
			Action: clean,
			Usage:  "remove the copied go sdk internals",
		},
	}
	return app
}

func setup(ctx *cli.Context) error {
	cfg := zap.NewDevelopmentConfig()
	if ctx.Bool("json") {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if ctx.Bool("debug") {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	bridge.SetLogger(l.Named("hzcall"))
	return nil
}

func newBridge(ctx *cli.Context) *bridge.Bridge {
	return bridge.New(
		bridge.WithDebug(ctx.Bool("debug")),
		bridge.WithLogger(bridge.Logger()),
		bridge.WithRetain(ctx.Bool("retain")),
	)
}

func run(ctx *cli.Context) error {
	b := newBridge(ctx)
	lib := ctx.String("lib")
	for _, payload := range ctx.Args().Slice() {
		if !ctx.Bool("strict") {
			fmt.Fprintln(ctx.App.Writer, b.Run(ctx.Context, payload, lib))
			continue
		}
		r, err := b.Invoke(ctx.Context, payload, lib)
		if err != nil {
			return cli.Exit(err, int(bridge.KindOf(err))+1)
		}
		fmt.Fprintln(ctx.App.Writer, r)
	}
	return nil
}

// locate splits lib into the directory to attach and the module name inside it.
// An absolute lib ignores dir, a #pkg suffix stays on the name.
func locate(dir, lib string) (string, string) {
	if !filepath.IsAbs(lib) {
		return dir, lib
	}
	file, pkg, ok := strings.Cut(lib, "#")
	name := filepath.Base(file)
	if ok {
		name += "#" + pkg
	}
	return filepath.Dir(file), name
}

func mapping(ctx *cli.Context) error {
	p := pool.NewPool(newBridge(ctx))
	dir, lib := locate(ctx.String("dir"), ctx.String("lib"))
	if err := p.Attach("cli", dir); err != nil {
		return err
	}
	in := make(chan string)
	scan := bufio.NewScanner(ctx.App.Reader)
	go func() {
		defer close(in)
		for scan.Scan() {
			select {
			case in <- scan.Text():
			case <-ctx.Context.Done():
				return
			}
		}
	}()
	out, err := p.Map(ctx.Context, "cli", lib, in, ctx.Int("parallel"))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(ctx.App.Writer)
	defer w.Flush()
	for r := range out {
		if _, err = fmt.Fprintln(w, r); err != nil {
			return err
		}
	}
	return scan.Err()
}

func inspect(ctx *cli.Context) (err error) {
	lib := ctx.String("lib")
	if ext := filepath.Ext(lib); ext == ".o" || ext == ".a" {
		file, pkg := goobj.Split(lib, ctx.String("pkg"))
		var syms []string
		if syms, err = goobj.Inspect(file, pkg); err != nil {
			return
		}
		for _, s := range syms {
			fmt.Fprintf(ctx.App.Writer, "\t%s\n", s)
		}
		lib = file + "#" + pkg
	}
	if err = bridge.Check(context.Background(), bridge.Default(), lib); err != nil {
		if ctx.Bool("dump") {
			spew.Fdump(ctx.App.ErrWriter, err)
		}
		return cli.Exit(err, int(bridge.KindOf(err))+1)
	}
	fmt.Fprintf(ctx.App.Writer, "%s exports %s\n", lib, bridge.Symbol)
	return nil
}

func compile(ctx *cli.Context) error {
	src := ctx.Args().Slice()
	if len(src) == 0 {
		return errors.New("missing sources")
	}
	out := ctx.String("out")
	if filepath.Ext(out) != ".o" {
		return bridge.CompileShared(ctx.Context, out, src...)
	}
	for _, s := range src {
		if !strings.HasSuffix(s, ".go") {
			return fmt.Errorf("not a go source: %s", s)
		}
	}
	return goobj.Toolchain{Log: bridge.Logger()}.Compile(out, ctx.String("pkg"), src)
}

func prepare(ctx *cli.Context) error {
	dir, err := goobj.Prepare()
	if err == nil {
		fmt.Fprintf(ctx.App.Writer, "prepared %s\n", dir)
	}
	return err
}

func clean(ctx *cli.Context) error {
	dir, err := goobj.Clean()
	if err == nil && dir != "" {
		fmt.Fprintf(ctx.App.Writer, "removed %s\n", dir)
	}
	return err
}
