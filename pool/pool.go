// Package pool maps streams of payloads through modules shipped as attached resources.
package pool

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ZenLiuCN/bridge"
	"github.com/ZenLiuCN/fn"
	"golang.org/x/sync/errgroup"
)

// Pool resolves module names inside attached directories and runs them through a Bridge.
type Pool struct {
	Bridge   *bridge.Bridge
	Resource map[string]string //resource id to attached directory
	sync.RWMutex
}

var (
	ErrAlreadyAttached = errors.New("resource already attached")
	ErrNotAttached     = errors.New("resource not attached")
	ErrEscapes         = errors.New("library escapes resource directory")
)

// NewPool create new pool, a nil bridge uses bridge.New()
func NewPool(b *bridge.Bridge) *Pool {
	if b == nil {
		b = bridge.New()
	}
	return &Pool{Bridge: b, Resource: make(map[string]string)}
}

// Attach dir as resource id.
func (p *Pool) Attach(id, dir string) (err error) {
	if dir, err = filepath.Abs(dir); err != nil {
		return
	}
	p.Lock()
	defer p.Unlock()
	if _, ok := p.Resource[id]; ok {
		return ErrAlreadyAttached
	}
	p.Resource[id] = dir
	return
}

// Detach resource id.
func (p *Pool) Detach(id string) error {
	p.Lock()
	defer p.Unlock()
	if _, ok := p.Resource[id]; !ok {
		return ErrNotAttached
	}
	delete(p.Resource, id)
	return nil
}

// Attached resource ids, sorted.
func (p *Pool) Attached() []string {
	p.RLock()
	defer p.RUnlock()
	v := fn.MapKeys(p.Resource)
	slices.Sort(v)
	return v
}

// Resolve the path of libName inside resource id.
func (p *Pool) Resolve(id, libName string) (string, error) {
	p.RLock()
	dir, ok := p.Resource[id]
	p.RUnlock()
	if !ok {
		return "", ErrNotAttached
	}
	path := filepath.Join(dir, libName)
	if rel, err := filepath.Rel(dir, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrEscapes
	}
	return path, nil
}

// Run one payload through libName of resource id, Sentinel on any failure.
func (p *Pool) Run(ctx context.Context, id, libName, payload string) (string, error) {
	path, err := p.Resolve(id, libName)
	if err != nil {
		return "", err
	}
	return p.Bridge.Run(ctx, payload, path), nil
}

// Map every payload of in through libName of resource id.
//
// At most parallel invocations run at once (1 when parallel < 1), results keep the input order
// and failed items are replaced by bridge.Sentinel. The output closes once in is drained or ctx is done.
func (p *Pool) Map(ctx context.Context, id, libName string, in <-chan string, parallel int) (<-chan string, error) {
	path, err := p.Resolve(id, libName)
	if err != nil {
		return nil, err
	}
	if parallel < 1 {
		parallel = 1
	}
	out := make(chan string)
	order := make(chan chan string, parallel)
	go func() {
		defer close(order)
		g := new(errgroup.Group)
		g.SetLimit(parallel)
		defer func() { _ = g.Wait() }()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-in:
				if !ok {
					return
				}
				slot := make(chan string, 1)
				select {
				case order <- slot:
				case <-ctx.Done():
					return
				}
				g.Go(func() error {
					slot <- p.Bridge.Run(ctx, payload, path)
					return nil
				})
			}
		}
	}()
	go func() {
		defer close(out)
		for slot := range order {
			var r string
			select {
			case r = <-slot:
			case <-ctx.Done():
				continue
			}
			select {
			case out <- r:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
