package codevault

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codevault/codevault/events"
	"github.com/codevault/codevault/metrics"
	"github.com/codevault/codevault/store"
)

// UserSummary is the public view of a user returned at login.
type UserSummary struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     store.Role `json:"role"`
}

// Summarize returns the public view of u.
func Summarize(u *store.User) UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string      `json:"access_token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int64       `json:"expires_in"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

// Register creates a user. The first user ever registered becomes admin;
// the decision is made by the store in the same atomic unit as the insert.
// The password is hashed as given: no trimming, no length limit.
func (v *Vault) Register(ctx context.Context, username, email, pw string) (*store.User, error) {
	username = strings.TrimSpace(username)
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if username == "" {
		return nil, invalidInput("username is required")
	}
	if utf8.RuneCountInString(username) > store.MaxUsernameLen {
		return nil, invalidInput("username must be at most %d characters", store.MaxUsernameLen)
	}
	// Login tries the identifier as an email first, so a username that
	// looks like one could shadow another account.
	if strings.Contains(username, "@") {
		return nil, invalidInput("username must not contain @")
	}
	if pw == "" {
		return nil, invalidInput("password is required")
	}

	hash, err := v.hasher.Hash(pw)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := v.store.RegisterUser(ctx, store.Registration{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, NewError(CodeConflict, "username or email already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	v.metrics.Registration(user.Role.String())
	v.log.Info(ctx, "user registered", "user", user)

	e := v.event(events.UserRegistered, nil, user.ID)
	e.Data = map[string]any{"username": user.Username, "role": user.Role}
	v.publish(ctx, e)

	return user, nil
}

// Authenticate checks identifier (an email, or failing that a username) and
// password. Unknown users and wrong passwords produce the same
// ErrInvalidCredentials. Only the boolean outcome is logged.
func (v *Vault) Authenticate(ctx context.Context, identifier, pw string) (*store.User, error) {
	user, err := v.lookup(ctx, strings.TrimSpace(identifier))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user == nil {
		v.hasher.Verify(pw, v.dummyHash)
		v.log.Info(ctx, "authentication attempt", "success", false)
		return nil, NewError(CodeInvalidCredentials, "invalid email or password", ErrInvalidCredentials)
	}

	ok := v.hasher.Verify(pw, user.PasswordHash)
	v.log.Info(ctx, "authentication attempt", "success", ok)
	if !ok {
		return nil, NewError(CodeInvalidCredentials, "invalid email or password", ErrInvalidCredentials)
	}

	return user, nil
}

func (v *Vault) lookup(ctx context.Context, identifier string) (*store.User, error) {
	if identifier == "" {
		return nil, store.ErrNotFound
	}

	user, err := v.store.FindUserByEmail(ctx, strings.ToLower(identifier))
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return user, err
	}
	return v.store.FindUserByUsername(ctx, identifier)
}

// Login authenticates the caller and issues a session token whose subject
// is the user's email. Attempts are limited per identifier when a login
// limiter is configured.
func (v *Vault) Login(ctx context.Context, identifier, pw string) (*LoginResult, error) {
	limitKey := "login:" + strings.ToLower(strings.TrimSpace(identifier))

	if v.loginLimiter != nil {
		allowed, err := v.loginLimiter.Allow(ctx, limitKey)
		if err != nil {
			v.log.Warn(ctx, "login limiter unavailable", "error", err)
		} else if !allowed {
			v.metrics.Login(metrics.OutcomeLimited)
			return nil, NewError(CodeRateLimited, "too many login attempts", ErrRateLimited)
		}
	}

	user, err := v.Authenticate(ctx, identifier, pw)
	if err != nil {
		v.metrics.Login(metrics.OutcomeFailure)
		return nil, err
	}

	if v.hasher.NeedsRehash(user.PasswordHash) {
		v.rehash(ctx, user, pw)
	}

	tok, err := v.issuer.Issue(user.Email, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	if v.loginLimiter != nil {
		if err := v.loginLimiter.Reset(ctx, limitKey); err != nil {
			v.log.Warn(ctx, "failed to reset login limiter", "error", err)
		}
	}
	v.metrics.Login(metrics.OutcomeSuccess)

	return &LoginResult{
		Token:     tok.Value,
		TokenType: "bearer",
		ExpiresIn: tok.ExpiresIn(),
		ExpiresAt: tok.ExpiresAt,
		User:      Summarize(user),
	}, nil
}

func (v *Vault) rehash(ctx context.Context, user *store.User, pw string) {
	hash, err := v.hasher.Hash(pw)
	if err == nil {
		err = v.store.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		v.log.Warn(ctx, "failed to upgrade password hash", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
}

// CurrentUser resolves a bearer token to its user. Every failure is
// ErrUnauthenticated: a bad or expired token, a user that no longer exists,
// or a stored role that fails validation.
func (v *Vault) CurrentUser(ctx context.Context, tokenString string) (*store.User, error) {
	if tokenString == "" {
		return nil, unauthenticated()
	}

	claims, err := v.issuer.Verify(tokenString)
	if err != nil {
		v.metrics.TokenVerification(metrics.OutcomeFailure)
		v.log.Debug(ctx, "token rejected", "error", err)
		return nil, unauthenticated()
	}
	v.metrics.TokenVerification(metrics.OutcomeSuccess)

	user, err := v.store.FindUserByEmail(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			v.log.Warn(ctx, "failed to resolve token subject", "error", err)
		}
		return nil, unauthenticated()
	}
	if !user.Role.Valid() {
		v.log.Warn(ctx, "user has invalid role", "user_id", user.ID)
		return nil, unauthenticated()
	}

	return user, nil
}

// RequireAdmin fails with ErrForbidden unless user holds the admin role.
func (v *Vault) RequireAdmin(user *store.User) error {
	if user == nil {
		return unauthenticated()
	}
	if !user.IsAdmin() {
		return NewError(CodeForbidden, "admin privileges required", ErrForbidden)
	}
	return nil
}

func unauthenticated() error {
	return NewError(CodeUnauthenticated, "could not validate credentials", ErrUnauthenticated)
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", invalidInput("email is required")
	}
	if len(email) > store.MaxEmailLen {
		return "", invalidInput("email must be at most %d characters", store.MaxEmailLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidInput("email is not a valid address")
	}
	return strings.ToLower(email), nil
}
