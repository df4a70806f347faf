package bridge

import (
	"errors"
	"strings"
)

const (
	// Symbol is the entry every loadable module must export.
	Symbol = "hz_process"
	// FreeSymbol is an optional export used to release a buffer returned by Symbol.
	FreeSymbol = "hz_free"
	// Sentinel replaces the result of any failed invocation at the boundary.
	Sentinel = "NULL"
)

// Kind of invocation failure.
type Kind uint8

const (
	KindLoad   Kind = iota + 1 // module could not be loaded
	KindSymbol                 // module loaded but Symbol is missing
	KindCall                   // the call raised, trapped or returned an error
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "LoadFailure"
	case KindSymbol:
		return "SymbolNotFound"
	case KindCall:
		return "CallFailure"
	default:
		return "Unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindLoad:
		return ErrLoadFailure
	case KindSymbol:
		return ErrSymbolNotFound
	case KindCall:
		return ErrCallFailure
	default:
		return nil
	}
}

var (
	// ErrLoadFailure matches a Failure of KindLoad.
	ErrLoadFailure = errors.New("load failure")
	// ErrSymbolNotFound matches a Failure of KindSymbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrCallFailure matches a Failure of KindCall.
	ErrCallFailure = errors.New("call failure")
	// ErrNullResult occurs when the module returns a null text.
	ErrNullResult = errors.New("null result")
	// ErrThrown occurs when a native hz_process throws an exception.
	ErrThrown = errors.New("exception thrown")
	// ErrMissingSymbol is returned by loaders when a module lacks an export.
	ErrMissingSymbol = errors.New("missing symbol")
	// ErrUnsupported is returned by loaders unavailable on the current platform.
	ErrUnsupported = errors.New("loader not supported on this platform")
	// ErrAlreadyRegistered occurs when registering a loader twice for the same extension.
	ErrAlreadyRegistered = errors.New("loader already registered")
)

// Failure is the error produced by [Bridge.Invoke].
//
// It matches one of ErrLoadFailure, ErrSymbolNotFound or ErrCallFailure through [errors.Is],
// and unwraps to the loader diagnostic.
type Failure struct {
	Kind    Kind
	Library string
	Symbol  string
	Cause   error
}

func (e *Failure) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Library)
	if e.Symbol != "" {
		b.WriteByte('#')
		b.WriteString(e.Symbol)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Failure) Unwrap() error {
	return e.Cause
}

func (e *Failure) Is(target error) bool {
	if t, ok := target.(*Failure); ok {
		return t.Kind == e.Kind
	}
	return target != nil && target == e.Kind.sentinel()
}

// KindOf reports the failure kind carried by err, or zero when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
