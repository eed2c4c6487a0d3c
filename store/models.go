package store

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Column limits shared by every backend.
const (
	MaxUsernameLen    = 50
	MaxEmailLen       = 100
	MaxTitleLen       = 200
	MaxLanguageLen    = 50
	MaxDescriptionLen = 500
	MaxTagsLen        = 500
)

// Role is a user's authorization level.
type Role string

const (
	// RoleUser is the default role.
	RoleUser Role = "user"
	// RoleAdmin may manage other users.
	RoleAdmin Role = "admin"
)

// ParseRole validates s against the closed set of roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// UnmarshalText rejects unknown roles when decoding JSON or YAML.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User is a stored identity record.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// LogValue keeps the password hash out of structured logs.
func (u *User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", string(u.Role)),
	)
}

// NewUser holds the fields of a user created with an explicit role.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
}

// Registration holds the fields of a self-registered user. The role is
// decided by the store.
type Registration struct {
	Username     string
	Email        string
	PasswordHash string
}

// Snippet is a stored code snippet. IsFavorite is computed for the caller and
// is not a column of the snippet itself.
type Snippet struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"user_id"`
	Title       string    `json:"title"`
	Language    string    `json:"language"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	Tags        string    `json:"tags"`
	IsFavorite  bool      `json:"is_favorite"`
	CreatedAt   time.Time `json:"created_at"`
}

// TagList splits the comma-separated tags, dropping blanks.
func (s *Snippet) TagList() []string {
	var tags []string
	for _, t := range strings.Split(s.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// SnippetInput holds the fields of a new snippet.
type SnippetInput struct {
	Title       string `json:"title"`
	Language    string `json:"language"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Tags        string `json:"tags"`
}

// SnippetPatch holds a partial update; nil fields are left unchanged.
type SnippetPatch struct {
	Title       *string `json:"title"`
	Language    *string `json:"language"`
	Description *string `json:"description"`
	Code        *string `json:"code"`
	Tags        *string `json:"tags"`
}

// Apply copies the non-nil fields of p onto s.
func (p SnippetPatch) Apply(s *Snippet) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Code != nil {
		s.Code = *p.Code
	}
	if p.Tags != nil {
		s.Tags = *p.Tags
	}
}

// Sort orders for snippet listings.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortTitle  = "title"
)

// SnippetFilter narrows a snippet listing.
type SnippetFilter struct {
	Language      string
	Tag           string
	Query         string
	FavoritesOnly bool
	Sort          string
}

// Match reports whether s satisfies every set criterion. Comparisons are
// case-insensitive.
func (f SnippetFilter) Match(s *Snippet) bool {
	if f.FavoritesOnly && !s.IsFavorite {
		return false
	}
	if f.Language != "" && !strings.EqualFold(s.Language, f.Language) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range s.TagList() {
			if strings.EqualFold(t, f.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		haystack := strings.ToLower(s.Title + "\n" + s.Description + "\n" + s.Code + "\n" + s.Tags)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

// Apply filters and sorts snippets. The input slice is not modified.
func (f SnippetFilter) Apply(snippets []*Snippet) []*Snippet {
	out := make([]*Snippet, 0, len(snippets))
	for _, s := range snippets {
		if f.Match(s) {
			out = append(out, s)
		}
	}

	switch f.Sort {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	case SortTitle:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}
	return out
}
