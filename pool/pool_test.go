package pool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZenLiuCN/bridge"
	"github.com/ZenLiuCN/fn"
	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

type module struct {
	f bridge.Func
}

func (m module) Lookup(symbol string) (bridge.Func, error) {
	if symbol != bridge.Symbol {
		return nil, bridge.ErrMissingSymbol
	}
	return m.f, nil
}

func (module) Close() error { return nil }

var running, peak atomic.Int32

// upper.so upper-cases after a short random-ish delay, fail.so always errors.
func loader() bridge.Loader {
	return bridge.LoaderFunc(func(_ context.Context, name string) (bridge.Module, error) {
		switch filepath.Base(name) {
		case "upper.so":
			return module{func(_ context.Context, payload string) (string, error) {
				n := running.Add(1)
				defer running.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Duration(len(payload)%3) * time.Millisecond)
				return strings.ToUpper(payload), nil
			}}, nil
		case "fail.so":
			return module{func(context.Context, string) (string, error) {
				return "", errors.New("fail")
			}}, nil
		}
		return nil, fmt.Errorf("no module %s", name)
	})
}

func newPool(t *testing.T) *Pool {
	p := NewPool(bridge.New(bridge.WithLoader(loader()), bridge.WithLogger(zap.NewNop())))
	fn.Panic(p.Attach("res", t.TempDir()))
	return p
}

func feed(items ...string) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, i := range items {
			ch <- i
		}
	}()
	return ch
}

func TestAttach(t *testing.T) {
	p := newPool(t)
	if err := p.Attach("res", "."); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("Attach() twice = %v", err)
	}
	fn.Panic(p.Attach("other", "."))
	if got := p.Attached(); len(got) != 2 || got[0] != "other" || got[1] != "res" {
		t.Errorf("Attached() = %v", got)
	}
	fn.Panic(p.Detach("other"))
	if err := p.Detach("other"); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Detach() twice = %v", err)
	}
	t.Log(spew.Sdump(p.Resource))
}

func TestResolve(t *testing.T) {
	p := newPool(t)
	path := fn.Panic1(p.Resolve("res", "lib/upper.so"))
	if !filepath.IsAbs(path) || !strings.HasSuffix(path, filepath.Join("lib", "upper.so")) {
		t.Errorf("Resolve() = %s", path)
	}
	if _, err := p.Resolve("res", "../upper.so"); !errors.Is(err, ErrEscapes) {
		t.Errorf("Resolve() escaping = %v", err)
	}
	if _, err := p.Resolve("absent", "upper.so"); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Resolve() absent = %v", err)
	}
}

func TestRun(t *testing.T) {
	p := newPool(t)
	if r := fn.Panic1(p.Run(context.Background(), "res", "upper.so", "abc")); r != "ABC" {
		t.Errorf("Run() = %q", r)
	}
	if r := fn.Panic1(p.Run(context.Background(), "res", "fail.so", "abc")); r != bridge.Sentinel {
		t.Errorf("Run() = %q", r)
	}
}

func TestMapOrdered(t *testing.T) {
	p := newPool(t)
	peak.Store(0)
	var items []string
	for i := 0; i < 50; i++ {
		items = append(items, strings.Repeat("x", i%7)+fmt.Sprint(i))
	}
	out := fn.Panic1(p.Map(context.Background(), "res", "upper.so", feed(items...), 4))
	i := 0
	for r := range out {
		if want := strings.ToUpper(items[i]); r != want {
			t.Errorf("item %d = %q, want %q", i, r, want)
		}
		i++
	}
	if i != len(items) {
		t.Errorf("got %d items", i)
	}
	if n := peak.Load(); n > 4 {
		t.Errorf("parallelism exceeded: %d", n)
	}
}

func TestMapFailures(t *testing.T) {
	p := newPool(t)
	out := fn.Panic1(p.Map(context.Background(), "res", "fail.so", feed("a", "b"), 0))
	var got []string
	for r := range out {
		got = append(got, r)
	}
	if len(got) != 2 || got[0] != bridge.Sentinel || got[1] != bridge.Sentinel {
		t.Errorf("Map() = %v", got)
	}
	if _, err := p.Map(context.Background(), "absent", "fail.so", feed(), 1); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Map() absent = %v", err)
	}
}

func TestMapCancel(t *testing.T) {
	p := newPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan string)
	out := fn.Panic1(p.Map(ctx, "res", "upper.so", in, 2))
	in <- "a"
	if r := <-out; r != "A" {
		t.Errorf("first = %q", r)
	}
	cancel()
	select {
	case _, ok := <-out:
		for ok {
			_, ok = <-out
		}
	case <-time.After(time.Second):
		t.Fatal("output not closed after cancel")
	}
}
