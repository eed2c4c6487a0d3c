package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "this-is-a-32-character-secret!!!"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestIssuer(t *testing.T, clock *fakeClock) *Issuer {
	t.Helper()
	cfg := &Config{Secret: testSecret, Issuer: "codevault"}
	if clock != nil {
		cfg.Now = clock.Now
	}
	i, err := NewIssuer(cfg)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return i
}

func TestNewIssuer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{"nil config", nil, ErrMissingSecret},
		{"empty secret", &Config{}, ErrMissingSecret},
		{"default method", &Config{Secret: testSecret}, nil},
		{"HS256", &Config{Secret: testSecret, SigningMethod: "HS256"}, nil},
		{"HS384", &Config{Secret: testSecret, SigningMethod: "HS384"}, nil},
		{"HS512", &Config{Secret: testSecret, SigningMethod: "HS512"}, nil},
		{"RS256 unsupported", &Config{Secret: testSecret, SigningMethod: "RS256"}, ErrUnsupportedMethod},
		{"none unsupported", &Config{Secret: testSecret, SigningMethod: "none"}, ErrUnsupportedMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIssuer(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewIssuer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIssuer_DefaultTTL(t *testing.T) {
	i := newTestIssuer(t, nil)
	if i.TTL() != 60*time.Minute {
		t.Errorf("TTL() = %v, want 60m", i.TTL())
	}

	tok, err := i.Issue("alice@x.com", 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if tok.ExpiresIn() != 3600 {
		t.Errorf("ExpiresIn() = %d, want 3600", tok.ExpiresIn())
	}
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	i := newTestIssuer(t, nil)

	tok, err := i.Issue("alice@x.com", 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if tok.Value == "" || tok.ID == "" {
		t.Fatal("Issue() returned an empty token or id")
	}
	if len(strings.Split(tok.Value, ".")) != 3 {
		t.Errorf("token should have 3 segments: %s", tok.Value)
	}

	claims, err := i.Verify(tok.Value)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "alice@x.com" {
		t.Errorf("Subject = %q, want alice@x.com", claims.Subject)
	}
	if claims.ID != tok.ID {
		t.Errorf("ID = %q, want %q", claims.ID, tok.ID)
	}
	if claims.Issuer != "codevault" {
		t.Errorf("Issuer = %q, want codevault", claims.Issuer)
	}
	if !claims.ExpiresAt.Time.Equal(tok.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, tok.ExpiresAt)
	}
}

func TestIssuer_IssueEmptySubject(t *testing.T) {
	i := newTestIssuer(t, nil)
	if _, err := i.Issue("", time.Minute); !errors.Is(err, ErrEmptySubject) {
		t.Errorf("Issue(\"\") error = %v, want ErrEmptySubject", err)
	}
}

func TestIssuer_ExpiryBoundary(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	i := newTestIssuer(t, clock)

	ttl := 30 * time.Minute
	tok, err := i.Issue("bob@x.com", ttl)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"just issued", start, nil},
		{"one second before expiry", start.Add(ttl - time.Second), nil},
		{"at expiry", start.Add(ttl), ErrTokenExpired},
		{"one second after expiry", start.Add(ttl + time.Second), ErrTokenExpired},
		{"long after expiry", start.Add(24 * time.Hour), ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.now = tt.at
			_, err := i.Verify(tok.Value)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() at %v error = %v, want %v", tt.at, err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expired token error should match ErrInvalidToken")
			}
		})
	}
}

func TestIssuer_RejectsOtherSecret(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	other, err := NewIssuer(&Config{Secret: "another-secret-of-at-least-32-chars!", Issuer: "codevault"})
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	tok, _ := other.Issue("alice@x.com", time.Hour)
	_, err = issuer.Verify(tok.Value)
	if !errors.Is(err, ErrTokenInvalidSig) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalidSig", err)
	}
}

func TestIssuer_RejectsTamperedPayload(t *testing.T) {
	i := newTestIssuer(t, nil)
	tok, _ := i.Issue("bob@x.com", time.Hour)

	parts := strings.Split(tok.Value, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	forged := strings.Replace(string(payload), "bob@x.com", "alice@x.com", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = i.Verify(strings.Join(parts, "."))
	if !errors.Is(err, ErrTokenInvalidSig) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalidSig", err)
	}
}

func TestIssuer_RejectsMalformed(t *testing.T) {
	i := newTestIssuer(t, nil)

	for _, s := range []string{"", "garbage", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"} {
		_, err := i.Verify(s)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) error = %v, want ErrInvalidToken", s, err)
		}
	}
}

func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestIssuer_RejectsMissingClaims(t *testing.T) {
	i := newTestIssuer(t, nil)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		claims  jwt.MapClaims
		wantErr error
	}{
		{"missing subject", jwt.MapClaims{"exp": exp, "iss": "codevault"}, ErrMissingSubject},
		{"empty subject", jwt.MapClaims{"sub": "", "exp": exp, "iss": "codevault"}, ErrMissingSubject},
		{"missing expiry", jwt.MapClaims{"sub": "alice@x.com", "iss": "codevault"}, ErrTokenMalformed},
		{"wrong issuer", jwt.MapClaims{"sub": "alice@x.com", "exp": exp, "iss": "someone-else"}, ErrTokenInvalidIssuer},
		{"non-numeric expiry", jwt.MapClaims{"sub": "alice@x.com", "exp": "soon", "iss": "codevault"}, ErrTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), tt.claims)
			_, err := i.Verify(raw)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIssuer_RejectsOtherAlgorithms(t *testing.T) {
	i := newTestIssuer(t, nil)
	claims := jwt.MapClaims{"sub": "alice@x.com", "exp": time.Now().Add(time.Hour).Unix(), "iss": "codevault"}

	hs512 := signRaw(t, jwt.SigningMethodHS512, []byte(testSecret), claims)
	if _, err := i.Verify(hs512); !errors.Is(err, ErrTokenInvalidSig) {
		t.Errorf("HS512 token error = %v, want ErrTokenInvalidSig", err)
	}

	none := signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims)
	if _, err := i.Verify(none); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg=none token error = %v, want ErrInvalidToken", err)
	}
}

func TestMapJWTError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{nil, nil},
		{jwt.ErrTokenExpired, ErrTokenExpired},
		{jwt.ErrTokenNotValidYet, ErrTokenNotYetValid},
		{jwt.ErrTokenInvalidIssuer, ErrTokenInvalidIssuer},
		{jwt.ErrSignatureInvalid, ErrTokenInvalidSig},
		{jwt.ErrTokenSignatureInvalid, ErrTokenInvalidSig},
		{jwt.ErrTokenUnverifiable, ErrTokenInvalidSig},
		{jwt.ErrTokenMalformed, ErrTokenMalformed},
		{errors.New("other"), ErrTokenMalformed},
	}

	for _, tt := range tests {
		if got := mapJWTError(tt.in); got != tt.want {
			t.Errorf("mapJWTError(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
