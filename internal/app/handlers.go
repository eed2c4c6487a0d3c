package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/codevault/codevault"
	"github.com/codevault/codevault/middleware"
	cvchi "github.com/codevault/codevault/middleware/chi"
	"github.com/codevault/codevault/store"
)

// maxBodyBytes bounds request bodies. Snippet code is the largest field.
const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse keeps username and role at the top level for clients that
// read them directly.
type loginResponse struct {
	*codevault.LoginResult
	Username string     `json:"username"`
	Role     store.Role `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type favoriteResponse struct {
	ID         int64 `json:"id"`
	IsFavorite bool  `json:"is_favorite"`
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "CodeVault API running"})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.vault.Ping(r.Context()); err != nil {
		a.log.Warn(r.Context(), "health check failed", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleNotFound(w http.ResponseWriter, r *http.Request) {
	a.writeError(w, r, codevault.NewError(codevault.CodeNotFound, "Not Found", codevault.ErrNotFound))
}

func (a *App) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusMethodNotAllowed, middleware.ErrorBody{
		Detail: "Method Not Allowed",
		Code:   "METHOD_NOT_ALLOWED",
	})
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	user, err := a.vault.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, codevault.Summarize(user))
}

// handleLogin accepts a JSON body or an OAuth2 password form, where the
// username field carries the email or the username.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var identifier, pw string

	if mt := formType(r); mt != "" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var err error
		if mt == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			a.writeError(w, r, badRequest("invalid form body"))
			return
		}
		identifier, pw = r.PostForm.Get("username"), r.PostForm.Get("password")
	} else {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		identifier, pw = req.Email, req.Password
		if identifier == "" {
			identifier = req.Username
		}
	}

	res, err := a.vault.Login(r.Context(), identifier, pw)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		LoginResult: res,
		Username:    res.User.Username,
		Role:        res.User.Role,
	})
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, codevault.Summarize(cvchi.User(r)))
}

func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.vault.ListUsers(r.Context(), cvchi.User(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]codevault.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, codevault.Summarize(u))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, a)
	if !ok {
		return
	}
	if err := a.vault.DeleteUser(r.Context(), cvchi.User(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "User deleted successfully"})
}

func (a *App) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, a)
	if !ok {
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	user, err := a.vault.SetRole(r.Context(), cvchi.User(r), id, store.Role(req.Role))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, codevault.Summarize(user))
}

func (a *App) handleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	var in store.SnippetInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	sn, err := a.vault.CreateSnippet(r.Context(), cvchi.User(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, sn)
}

func (a *App) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	list, err := a.vault.ListSnippets(r.Context(), cvchi.User(r), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeSnippets(w, list)
}

func (a *App) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := a.vault.ListFavorites(r.Context(), cvchi.User(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeSnippets(w, list)
}

func (a *App) handleSearchSnippets(w http.ResponseWriter, r *http.Request) {
	list, err := a.vault.SearchSnippets(r.Context(), cvchi.User(r), r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeSnippets(w, list)
}

func (a *App) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, a)
	if !ok {
		return
	}
	sn, err := a.vault.GetSnippet(r.Context(), cvchi.User(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sn)
}

func (a *App) handleUpdateSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, a)
	if !ok {
		return
	}
	var patch store.SnippetPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		a.writeError(w, r, err)
		return
	}

	sn, err := a.vault.UpdateSnippet(r.Context(), cvchi.User(r), id, patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sn)
}

func (a *App) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, a)
	if !ok {
		return
	}
	if err := a.vault.DeleteSnippet(r.Context(), cvchi.User(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Snippet deleted successfully"})
}

func (a *App) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, a)
	if !ok {
		return
	}
	on, err := a.vault.ToggleFavorite(r.Context(), cvchi.User(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, favoriteResponse{ID: id, IsFavorite: on})
}

// writeError logs server-side failures and writes the JSON error body.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !codevault.IsClientError(err) {
		a.log.Error(r.Context(), "request failed",
			"request_id", RequestID(r.Context()),
			"route", cvchi.RoutePattern(r),
			"error", err,
		)
	}
	middleware.WriteError(w, err)
}

func writeSnippets(w http.ResponseWriter, list []*store.Snippet) {
	if list == nil {
		list = []*store.Snippet{}
	}
	middleware.WriteJSON(w, http.StatusOK, list)
}

func pathID(w http.ResponseWriter, r *http.Request, a *App) (int64, bool) {
	id, ok := cvchi.URLParamInt64(r, "id")
	if !ok {
		a.writeError(w, r, badRequest("id must be a positive integer"))
	}
	return id, ok
}

func parseFilter(r *http.Request) (store.SnippetFilter, error) {
	q := r.URL.Query()
	f := store.SnippetFilter{
		Language: q.Get("language"),
		Tag:      q.Get("tag"),
		Query:    q.Get("q"),
		Sort:     q.Get("sort"),
	}
	switch f.Sort {
	case "", store.SortNewest, store.SortOldest, store.SortTitle:
	default:
		return f, badRequest("sort must be one of newest, oldest, title")
	}
	if v := q.Get("favorites"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return f, badRequest("favorites must be a boolean")
		}
		f.FavoritesOnly = on
	}
	return f, nil
}

// formType returns the form media type of r, or "" for non-form bodies.
func formType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	if mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data" {
		return mt
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		default:
			return badRequest("invalid JSON body: " + strings.TrimPrefix(err.Error(), "json: "))
		}
	}
	return nil
}

func badRequest(msg string) error {
	return codevault.NewError(codevault.CodeInvalidInput, msg, codevault.ErrInvalidInput)
}
