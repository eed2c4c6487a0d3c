package codevault

import (
	"context"
	"testing"

	"github.com/codevault/codevault/store/memory"
)

func newBenchVault(b *testing.B) *Vault {
	b.Helper()
	v, err := New(
		WithSecret(testSecret),
		WithStore(memory.New()),
		WithBcryptCost(4),
		WithLoginLimit(0, 0),
	)
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	b.Cleanup(func() { v.Close() })

	if _, err := v.Register(context.Background(), "bench", "bench@example.com", "bench-password"); err != nil {
		b.Fatalf("Register() error = %v", err)
	}
	return v
}

func BenchmarkLogin(b *testing.B) {
	v := newBenchVault(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Login(ctx, "bench@example.com", "bench-password"); err != nil {
			b.Fatalf("Login() error = %v", err)
		}
	}
}

func BenchmarkCurrentUser(b *testing.B) {
	v := newBenchVault(b)
	ctx := context.Background()

	res, err := v.Login(ctx, "bench@example.com", "bench-password")
	if err != nil {
		b.Fatalf("Login() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.CurrentUser(ctx, res.Token); err != nil {
			b.Fatalf("CurrentUser() error = %v", err)
		}
	}
}
