package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	// Option configures a Bridge.
	Option func(*Bridge)
	// Bridge loads a module, calls its hz_process and releases it, once per invocation.
	//
	// A Bridge holds no per call state and is safe for concurrent use.
	// Each invocation pays a fresh load, nothing is deduplicated.
	Bridge struct {
		loader Loader
		logger *zap.Logger
		debug  bool
		retain bool
	}
)

// WithLoader replaces the Default loader.
func WithLoader(l Loader) Option {
	return func(b *Bridge) {
		b.loader = l
	}
}

// WithLogger sets the logger used for failure diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithDebug traces each invocation step. Without WithLogger it also lowers the default logger to debug level.
func WithDebug(debug bool) Option {
	return func(b *Bridge) {
		b.debug = debug
	}
}

// WithRetain keeps the module loaded after a successful call, failures always release.
//
// It leaks one handle per successful call, for hosts relying on the module staying resident.
func WithRetain(retain bool) Option {
	return func(b *Bridge) {
		b.retain = retain
	}
}

// New create a Bridge
func New(opts ...Option) *Bridge {
	b := new(Bridge)
	for _, opt := range opts {
		opt(b)
	}
	if b.loader == nil {
		b.loader = Default()
	}
	if b.logger == nil {
		if b.debug {
			b.logger = newLogger(zapcore.DebugLevel)
		} else {
			b.logger = Logger()
		}
	}
	return b
}

// Invoke loads library, calls its hz_process with payload and returns the copied result.
//
// Errors are either a *Failure or ErrNullResult.
func (b *Bridge) Invoke(ctx context.Context, payload, library string) (result string, err error) {
	log := b.logger.With(zap.String("library", library))
	if b.debug {
		log.Debug("loading")
	}
	var m Module
	if m, err = b.loader.Open(ctx, library); err != nil {
		err = &Failure{Kind: KindLoad, Library: library, Cause: err}
		log.Warn("could not open library", zap.Error(err))
		return
	}
	retained := false
	defer func() {
		if retained {
			if b.debug {
				log.Debug("retained")
			}
			return
		}
		if cerr := m.Close(); cerr != nil {
			log.Warn("could not release library", zap.Error(cerr))
		} else if b.debug {
			log.Debug("released")
		}
	}()
	if b.debug {
		log.Debug("resolving", zap.String("symbol", Symbol))
	}
	var f Func
	if f, err = m.Lookup(Symbol); err != nil {
		err = &Failure{Kind: KindSymbol, Library: library, Symbol: Symbol, Cause: err}
		log.Warn("could not find symbol", zap.Error(err))
		return
	}
	if b.debug {
		log.Debug("calling", zap.Int("payload", len(payload)))
	}
	if result, err = Call(ctx, f, payload); err != nil {
		result = ""
		if errors.Is(err, ErrNullResult) {
			if b.debug {
				log.Debug("returned null")
			}
			return
		}
		err = &Failure{Kind: KindCall, Library: library, Symbol: Symbol, Cause: err}
		log.Warn("error while running "+Symbol, zap.Error(err))
		return
	}
	if b.debug {
		log.Debug("returned", zap.Int("result", len(result)))
	}
	retained = b.retain
	return
}

// Run is the boundary call: the module result, or Sentinel for any failure or null result.
func (b *Bridge) Run(ctx context.Context, payload, library string) string {
	r, err := b.Invoke(ctx, payload, library)
	if err != nil {
		return Sentinel
	}
	return r
}

// RunAsync performs Run on a new goroutine, the channel receives exactly one value.
func (b *Bridge) RunAsync(ctx context.Context, payload, library string) <-chan string {
	ch := make(chan string, 1)
	go func() {
		ch <- b.Run(ctx, payload, library)
	}()
	return ch
}

// Call f inside a supervised region, panics and memory faults are returned as errors.
func Call(ctx context.Context, f Func, payload string) (result string, err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		switch r := recover().(type) {
		case nil:
		case error:
			err = fmt.Errorf("panic: %w", r)
		default:
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f(ctx, payload)
}

var defaultBridge = sync.OnceValue(func() *Bridge { return New() })

// Run the payload through library with a shared default Bridge.
func Run(payload, library string) string {
	return defaultBridge().Run(context.Background(), payload, library)
}

var logger atomic.Pointer[zap.Logger]

// Logger used by bridges created without WithLogger.
// It writes warnings and above to stderr by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	logger.CompareAndSwap(nil, newLogger(zapcore.WarnLevel))
	return logger.Load()
}

// SetLogger replaces the package logger, bridges already created keep the previous one.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

func newLogger(lvl zapcore.Level) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)).Named("bridge")
}
