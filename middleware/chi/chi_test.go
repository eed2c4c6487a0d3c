package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/codevault/codevault"
	"github.com/codevault/codevault/store"
)

type mockGate struct {
	user *store.User
}

func (m *mockGate) CurrentUser(ctx context.Context, token string) (*store.User, error) {
	if token != "good-token" {
		return nil, codevault.ErrUnauthenticated
	}
	return m.user, nil
}

func (m *mockGate) RequireAdmin(user *store.User) error {
	if !user.IsAdmin() {
		return codevault.ErrForbidden
	}
	return nil
}

func newRouter(gate Gate) *chi.Mux {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(gate, nil))
		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(User(r).Username))
		})
		r.With(RequireAdmin(gate, nil)).Delete("/admin/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := URLParamInt64(r, "id")
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if strconv.FormatInt(id, 10) != URLParam(r, "id") {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(RoutePattern(r) + " " + URLParam(r, "id")))
		})
	})
	return r
}

func TestChiAuthenticate(t *testing.T) {
	r := newRouter(&mockGate{user: &store.User{ID: 2, Username: "bob", Role: store.RoleUser}})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer good-token", http.StatusOK, "bob"},
		{"invalid token", "Bearer bad-token", http.StatusUnauthorized, ""},
		{"no token", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestChiRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		role       store.Role
		path       string
		wantStatus int
		wantBody   string
	}{
		{"admin", store.RoleAdmin, "/admin/delete/5", http.StatusOK, "/admin/delete/{id} 5"},
		{"admin bad id", store.RoleAdmin, "/admin/delete/abc", http.StatusBadRequest, ""},
		{"user", store.RoleUser, "/admin/delete/5", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&mockGate{user: &store.User{ID: 1, Username: "alice", Role: tt.role}})

			req := httptest.NewRequest(http.MethodDelete, tt.path, nil)
			req.Header.Set("Authorization", "Bearer good-token")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRoutePattern_NoRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	if got := RoutePattern(req); got != "/unrouted" {
		t.Errorf("RoutePattern() = %q, want /unrouted", got)
	}
}
