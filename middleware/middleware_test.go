package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codevault/codevault"
	"github.com/codevault/codevault/store"
)

func TestExtractFromHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		scheme   string
		value    string
		expected string
	}{
		{"bearer token", "Authorization", "Bearer", "Bearer abc123", "abc123"},
		{"lowercase scheme", "Authorization", "Bearer", "bearer abc123", "abc123"},
		{"wrong scheme", "Authorization", "Bearer", "Basic abc123", ""},
		{"no scheme", "X-Token", "", "abc123", "abc123"},
		{"empty", "Authorization", "Bearer", "", ""},
		{"scheme only", "Authorization", "Bearer", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.value != "" {
				req.Header.Set(tt.header, tt.value)
			}
			if got := ExtractFromHeader(tt.header, tt.scheme)(req); got != tt.expected {
				t.Errorf("ExtractFromHeader() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestChainExtractors(t *testing.T) {
	extractor := ChainExtractors(
		ExtractFromHeader("Authorization", "Bearer"),
		ExtractFromCookie("access_token"),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	if got := extractor(req); got != "from-cookie" {
		t.Errorf("extractor() = %q, want from-cookie", got)
	}

	req.Header.Set("Authorization", "Bearer from-header")
	if got := extractor(req); got != "from-header" {
		t.Errorf("extractor() = %q, want from-header", got)
	}

	if got := extractor(httptest.NewRequest(http.MethodGet, "/", nil)); got != "" {
		t.Errorf("extractor() = %q, want empty", got)
	}
}

func TestErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{codevault.ErrUnauthenticated, http.StatusUnauthorized},
		{ErrMissingToken, http.StatusUnauthorized},
		{codevault.ErrForbidden, http.StatusForbidden},
		{codevault.ErrNotFound, http.StatusNotFound},
		{codevault.ErrConflict, http.StatusBadRequest},
		{codevault.ErrInvalidCredentials, http.StatusBadRequest},
		{codevault.ErrInvalidInput, http.StatusBadRequest},
		{codevault.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", codevault.ErrForbidden), http.StatusForbidden},
		{errors.New("token database exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := ErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("ErrorToHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   ErrorBody
	}{
		{
			name:       "conflict",
			err:        codevault.NewError(codevault.CodeConflict, "username or email already exists", codevault.ErrConflict),
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrorBody{Detail: "username or email already exists", Code: codevault.CodeConflict},
		},
		{
			name:       "bare sentinel",
			err:        codevault.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantBody:   ErrorBody{Detail: "not found", Code: codevault.CodeNotFound},
		},
		{
			name:       "internal error is hidden",
			err:        errors.New("pq: password authentication failed for user codevault"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   ErrorBody{Detail: "internal server error", Code: codevault.CodeInternal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body != tt.wantBody {
				t.Errorf("body = %+v, want %+v", body, tt.wantBody)
			}
			if rec.Header().Get("WWW-Authenticate") != "" {
				t.Error("WWW-Authenticate should only be set on 401")
			}
		})
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"/healthz", []string{"/healthz"}, true},
		{"/public/a/b", []string{"/public/*"}, true},
		{"/api/v1/users", []string{"/api/*/users"}, true},
		{"/api/v1/snippets", []string{"/api/*/users"}, false},
		{"/me", []string{"/healthz"}, false},
		{"/me", nil, false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := ShouldSkip(req, tt.patterns); got != tt.want {
			t.Errorf("ShouldSkip(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
}

func TestUserContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if GetUser(req.Context()) != nil {
		t.Error("GetUser() on empty context should be nil")
	}

	u := &store.User{ID: 1, Username: "alice"}
	ctx := SetUser(req.Context(), u)
	if GetUser(ctx) != u {
		t.Error("GetUser() should return the stored user")
	}
}

func TestErrorBody_NeverLeaksHash(t *testing.T) {
	err := fmt.Errorf("update failed for hash $2a$04$abcdefghijkl: %w", errors.New("boom"))
	body := NewErrorBody(err)
	if strings.Contains(body.Detail, "$2a$") {
		t.Errorf("detail leaked a hash: %q", body.Detail)
	}
}
