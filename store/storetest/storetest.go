// Package storetest holds behavioral tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/codevault/codevault/store"
)

// Factory returns an empty, migrated store. The store is closed by the suite.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"RegisterFirstUserIsAdmin", testRegisterFirstUserIsAdmin},
		{"RegisterConflict", testRegisterConflict},
		{"CreateUser", testCreateUser},
		{"CreateUserInvalidRole", testCreateUserInvalidRole},
		{"FindUser", testFindUser},
		{"DeleteUser", testDeleteUser},
		{"UpdateUser", testUpdateUser},
		{"Snippets", testSnippets},
		{"Favorites", testFavorites},
		{"ConcurrentRegistration", testConcurrentRegistration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func register(t *testing.T, s store.Store, username, email string) *store.User {
	t.Helper()
	u, err := s.RegisterUser(context.Background(), store.Registration{
		Username:     username,
		Email:        email,
		PasswordHash: "hash-" + username,
	})
	if err != nil {
		t.Fatalf("RegisterUser(%q) error = %v", username, err)
	}
	return u
}

func testRegisterFirstUserIsAdmin(t *testing.T, s store.Store) {
	ctx := context.Background()

	alice := register(t, s, "alice", "alice@x.com")
	if alice.Role != store.RoleAdmin {
		t.Errorf("first user role = %q, want admin", alice.Role)
	}
	if alice.ID == 0 {
		t.Error("first user has zero id")
	}
	if alice.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	bob := register(t, s, "bob", "bob@x.com")
	if bob.Role != store.RoleUser {
		t.Errorf("second user role = %q, want user", bob.Role)
	}

	n, err := s.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountUsers() = %d, want 2", n)
	}
}

func testRegisterConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	register(t, s, "alice", "alice@x.com")

	tests := []struct {
		name     string
		username string
		email    string
	}{
		{"same username", "alice", "other@x.com"},
		{"same email", "alice2", "alice@x.com"},
		{"same email other case", "alice3", "ALICE@x.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RegisterUser(ctx, store.Registration{
				Username: tt.username, Email: tt.email, PasswordHash: "h",
			})
			if !errors.Is(err, store.ErrConflict) {
				t.Errorf("RegisterUser() error = %v, want ErrConflict", err)
			}
		})
	}

	stored, err := s.FindUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindUserByUsername() error = %v", err)
	}
	if stored.PasswordHash != "hash-alice" {
		t.Error("conflicting registration overwrote the stored user")
	}
}

func testCreateUser(t *testing.T, s store.Store) {
	ctx := context.Background()

	u, err := s.CreateUser(ctx, store.NewUser{
		Username: "carol", Email: "carol@x.com", PasswordHash: "h", Role: store.RoleUser,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.Role != store.RoleUser {
		t.Errorf("Role = %q, want user", u.Role)
	}

	_, err = s.CreateUser(ctx, store.NewUser{
		Username: "carol", Email: "c2@x.com", PasswordHash: "h", Role: store.RoleAdmin,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrConflict", err)
	}
}

func testCreateUserInvalidRole(t *testing.T, s store.Store) {
	_, err := s.CreateUser(context.Background(), store.NewUser{
		Username: "mallory", Email: "m@x.com", PasswordHash: "h", Role: store.Role("root"),
	})
	if !errors.Is(err, store.ErrInvalidRole) {
		t.Errorf("CreateUser() error = %v, want ErrInvalidRole", err)
	}
}

func testFindUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := register(t, s, "alice", "alice@x.com")

	byEmail, err := s.FindUserByEmail(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("FindUserByEmail() error = %v", err)
	}
	if byEmail.ID != alice.ID || byEmail.PasswordHash != "hash-alice" {
		t.Errorf("FindUserByEmail() = %+v", byEmail)
	}

	byID, err := s.FindUserByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("FindUserByID() error = %v", err)
	}
	if byID.Email != "alice@x.com" || byID.Role != store.RoleAdmin {
		t.Errorf("FindUserByID() = %+v", byID)
	}

	if _, err := s.FindUserByUsernameOrEmail(ctx, "alice", "nobody@x.com"); err != nil {
		t.Errorf("FindUserByUsernameOrEmail(username match) error = %v", err)
	}
	if _, err := s.FindUserByUsernameOrEmail(ctx, "nobody", "alice@x.com"); err != nil {
		t.Errorf("FindUserByUsernameOrEmail(email match) error = %v", err)
	}
	if _, err := s.FindUserByUsernameOrEmail(ctx, "nobody", "nobody@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindUserByUsernameOrEmail(no match) error = %v, want ErrNotFound", err)
	}
	if _, err := s.FindUserByEmail(ctx, "missing@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindUserByEmail(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.FindUserByID(ctx, alice.ID+1000); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindUserByID(missing) error = %v, want ErrNotFound", err)
	}
}

func testDeleteUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	register(t, s, "alice", "alice@x.com")
	bob := register(t, s, "bob", "bob@x.com")

	sn, err := s.CreateSnippet(ctx, bob.ID, store.SnippetInput{Title: "t", Language: "go", Code: "x"})
	if err != nil {
		t.Fatalf("CreateSnippet() error = %v", err)
	}
	if _, err := s.ToggleFavorite(ctx, bob.ID, sn.ID); err != nil {
		t.Fatalf("ToggleFavorite() error = %v", err)
	}

	if err := s.DeleteUser(ctx, bob.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := s.FindUserByEmail(ctx, "bob@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted user still found, error = %v", err)
	}
	if _, err := s.GetSnippet(ctx, sn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("snippet of deleted user still found, error = %v", err)
	}
	if err := s.DeleteUser(ctx, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteUser() error = %v, want ErrNotFound", err)
	}

	// The freed username and email can be registered again.
	again := register(t, s, "bob", "bob@x.com")
	if again.Role != store.RoleUser {
		t.Errorf("re-registered role = %q, want user", again.Role)
	}
}

func testUpdateUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	register(t, s, "alice", "alice@x.com")
	bob := register(t, s, "bob", "bob@x.com")

	if err := s.UpdateUserRole(ctx, bob.ID, store.RoleAdmin); err != nil {
		t.Fatalf("UpdateUserRole() error = %v", err)
	}
	if err := s.UpdateUserRole(ctx, bob.ID, store.Role("owner")); !errors.Is(err, store.ErrInvalidRole) {
		t.Errorf("UpdateUserRole(invalid) error = %v, want ErrInvalidRole", err)
	}
	if err := s.UpdatePasswordHash(ctx, bob.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash() error = %v", err)
	}

	got, err := s.FindUserByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("FindUserByID() error = %v", err)
	}
	if got.Role != store.RoleAdmin {
		t.Errorf("Role = %q, want admin", got.Role)
	}
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want new-hash", got.PasswordHash)
	}

	if err := s.UpdateUserRole(ctx, 9999, store.RoleUser); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateUserRole(missing) error = %v, want ErrNotFound", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("ListUsers() = %v", users)
	}
}

func testSnippets(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := register(t, s, "alice", "alice@x.com")
	bob := register(t, s, "bob", "bob@x.com")

	first, err := s.CreateSnippet(ctx, alice.ID, store.SnippetInput{
		Title: "hello", Language: "go", Description: "d", Code: "fmt.Println()", Tags: "go,basics",
	})
	if err != nil {
		t.Fatalf("CreateSnippet() error = %v", err)
	}
	second, err := s.CreateSnippet(ctx, alice.ID, store.SnippetInput{Title: "query", Language: "sql", Code: "select 1"})
	if err != nil {
		t.Fatalf("CreateSnippet() error = %v", err)
	}
	if _, err := s.CreateSnippet(ctx, bob.ID, store.SnippetInput{Title: "bob", Language: "py", Code: "pass"}); err != nil {
		t.Fatalf("CreateSnippet() error = %v", err)
	}

	list, err := s.ListSnippets(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListSnippets() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("ListSnippets() = %v, want newest first", list)
	}

	title := "hello world"
	updated, err := s.UpdateSnippet(ctx, first.ID, store.SnippetPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateSnippet() error = %v", err)
	}
	if updated.Title != title || updated.Code != "fmt.Println()" || updated.Tags != "go,basics" {
		t.Errorf("UpdateSnippet() = %+v", updated)
	}

	got, err := s.GetSnippet(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetSnippet() error = %v", err)
	}
	if got.Title != title || got.OwnerID != alice.ID {
		t.Errorf("GetSnippet() = %+v", got)
	}

	if err := s.DeleteSnippet(ctx, first.ID); err != nil {
		t.Fatalf("DeleteSnippet() error = %v", err)
	}
	if err := s.DeleteSnippet(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteSnippet() error = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateSnippet(ctx, first.ID, store.SnippetPatch{Title: &title}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateSnippet(deleted) error = %v, want ErrNotFound", err)
	}
}

func testFavorites(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := register(t, s, "alice", "alice@x.com")
	sn, err := s.CreateSnippet(ctx, alice.ID, store.SnippetInput{Title: "t", Language: "go", Code: "x"})
	if err != nil {
		t.Fatalf("CreateSnippet() error = %v", err)
	}

	on, err := s.ToggleFavorite(ctx, alice.ID, sn.ID)
	if err != nil || !on {
		t.Fatalf("ToggleFavorite() = %v, %v; want true", on, err)
	}
	ids, err := s.ListFavoriteIDs(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListFavoriteIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != sn.ID {
		t.Errorf("ListFavoriteIDs() = %v, want [%d]", ids, sn.ID)
	}

	on, err = s.ToggleFavorite(ctx, alice.ID, sn.ID)
	if err != nil || on {
		t.Fatalf("second ToggleFavorite() = %v, %v; want false", on, err)
	}
	ids, _ = s.ListFavoriteIDs(ctx, alice.ID)
	if len(ids) != 0 {
		t.Errorf("ListFavoriteIDs() after untoggle = %v", ids)
	}

	if _, err := s.ToggleFavorite(ctx, alice.ID, sn.ID+1000); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ToggleFavorite(missing) error = %v, want ErrNotFound", err)
	}

	if _, err := s.ToggleFavorite(ctx, alice.ID, sn.ID); err != nil {
		t.Fatalf("ToggleFavorite() error = %v", err)
	}
	if err := s.DeleteSnippet(ctx, sn.ID); err != nil {
		t.Fatalf("DeleteSnippet() error = %v", err)
	}
	ids, _ = s.ListFavoriteIDs(ctx, alice.ID)
	if len(ids) != 0 {
		t.Errorf("favorites survived snippet deletion: %v", ids)
	}
}

func testConcurrentRegistration(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	users := make(chan *store.User, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.RegisterUser(ctx, store.Registration{
				Username:     fmt.Sprintf("user%d", i),
				Email:        fmt.Sprintf("user%d@x.com", i),
				PasswordHash: "h",
			})
			if err != nil {
				errs <- err
				return
			}
			users <- u
		}(i)
	}
	wg.Wait()
	close(users)
	close(errs)

	for err := range errs {
		t.Errorf("RegisterUser() error = %v", err)
	}
	admins := 0
	for u := range users {
		if u.Role == store.RoleAdmin {
			admins++
		}
	}
	if admins != 1 {
		t.Errorf("concurrent registrations produced %d admins, want 1", admins)
	}
}
