package bridge

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func BenchmarkInvoke(b *testing.B) {
	br := New(WithLoader(newFake()), WithLogger(zap.NewNop()))
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = br.Invoke(ctx, "abc", "echo.so")
	}
}

func BenchmarkInvokeFailure(b *testing.B) {
	br := New(WithLoader(newFake()), WithLogger(zap.NewNop()))
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = br.Invoke(ctx, "abc", "panic.so")
	}
}

func BenchmarkCall(b *testing.B) {
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Call(ctx, echo, "abc")
	}
}

func BenchmarkCallRaw(b *testing.B) {
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = echo(ctx, "abc")
	}
}
