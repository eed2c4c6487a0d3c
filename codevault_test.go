package codevault

import (
	"context"
	"errors"
	"testing"

	"github.com/codevault/codevault/password"
	"github.com/codevault/codevault/store"
	"github.com/codevault/codevault/store/memory"
)

func TestNew_Success(t *testing.T) {
	v := newTestVault(t)

	if v.config == nil {
		t.Error("config should not be nil")
	}
	if v.issuer == nil {
		t.Error("issuer should not be nil")
	}
	if v.loginLimiter == nil || !v.ownsLimiter {
		t.Error("default login limiter should be created")
	}
	if err := v.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNew_WithoutStore(t *testing.T) {
	_, err := New(WithSecret(testSecret))
	if !errors.Is(err, ErrStoreRequired) {
		t.Errorf("New() error = %v, want %v", err, ErrStoreRequired)
	}
}

func TestNew_WithoutSecret(t *testing.T) {
	s := memory.New()
	defer s.Close()

	_, err := New(WithStore(s))
	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("New() error = %v, want %v", err, ErrConfigInvalid)
	}
}

func TestNew_Argon2(t *testing.T) {
	v := newTestVault(t, WithHashAlgorithm(password.Argon2id))

	if _, ok := v.hasher.(*password.Argon2Hasher); !ok {
		t.Errorf("hasher = %T, want *password.Argon2Hasher", v.hasher)
	}
}

func TestNew_AutoMigrate(t *testing.T) {
	newTestVault(t, WithAutoMigrate(true))
}

func TestVault_CloseTwice(t *testing.T) {
	s := memory.New()
	v, err := New(WithSecret(testSecret), WithStore(s), WithBcryptCost(4))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := v.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := v.Ping(context.Background()); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Ping() after Close error = %v, want %v", err, store.ErrClosed)
	}
}

// alice registers first and becomes admin; bob is a regular user who can
// log in but not act as admin.
func TestVault_AliceBobScenario(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	alice := mustRegister(t, v, "alice", "alice@x.com", "pw123")
	if alice.Role != store.RoleAdmin {
		t.Fatalf("alice role = %q, want admin", alice.Role)
	}

	bob := mustRegister(t, v, "bob", "bob@x.com", "pw456")
	if bob.Role != store.RoleUser {
		t.Fatalf("bob role = %q, want user", bob.Role)
	}

	res := mustLogin(t, v, "bob", "pw456")
	if res.TokenType != "bearer" {
		t.Errorf("TokenType = %q, want bearer", res.TokenType)
	}
	if res.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", res.ExpiresIn)
	}
	if res.User.Username != "bob" || res.User.Role != store.RoleUser {
		t.Errorf("User = %+v, want bob/user", res.User)
	}

	me, err := v.CurrentUser(ctx, res.Token)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if me.Username != "bob" || me.Role != store.RoleUser {
		t.Errorf("CurrentUser() = %s/%s, want bob/user", me.Username, me.Role)
	}

	if err := v.RequireAdmin(me); !errors.Is(err, ErrForbidden) {
		t.Errorf("RequireAdmin(bob) error = %v, want %v", err, ErrForbidden)
	}
	if err := v.RequireAdmin(alice); err != nil {
		t.Errorf("RequireAdmin(alice) error = %v", err)
	}
}
