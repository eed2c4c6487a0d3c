package codevault

import (
	"context"
	"errors"
	"fmt"

	"github.com/codevault/codevault/events"
	"github.com/codevault/codevault/store"
)

// ListUsers returns every user. Admin only.
func (v *Vault) ListUsers(ctx context.Context, caller *store.User) ([]*store.User, error) {
	if err := v.RequireAdmin(caller); err != nil {
		return nil, err
	}

	users, err := v.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the user with id together with its snippets and
// favorites. Admin only; an admin cannot delete itself.
func (v *Vault) DeleteUser(ctx context.Context, caller *store.User, id int64) error {
	if err := v.RequireAdmin(caller); err != nil {
		return err
	}
	if id == caller.ID {
		return NewError(CodeForbidden, "cannot delete self", ErrForbidden)
	}

	// Collected first: the store cascade removes them.
	owned, err := v.store.ListSnippets(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list user snippets: %w", err)
	}

	if err := v.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewError(CodeNotFound, "user not found", ErrNotFound)
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	for _, sn := range owned {
		if err := v.indexer.DeleteSnippet(ctx, sn.ID); err != nil {
			v.log.Warn(ctx, "failed to unindex snippet", "snippet_id", sn.ID, "error", err)
		}
	}

	v.log.Info(ctx, "user deleted", "user_id", id, "actor_id", caller.ID)
	v.publish(ctx, v.event(events.UserDeleted, caller, id))

	return nil
}

// SetRole changes the role of the user with id. Admin only; an admin cannot
// change its own role, so the last admin can never demote itself.
func (v *Vault) SetRole(ctx context.Context, caller *store.User, id int64, role store.Role) (*store.User, error) {
	if err := v.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, NewError(CodeInvalidInput, fmt.Sprintf("invalid role %q", role), errors.Join(ErrInvalidInput, store.ErrInvalidRole))
	}
	if id == caller.ID {
		return nil, NewError(CodeForbidden, "cannot change own role", ErrForbidden)
	}

	if err := v.store.UpdateUserRole(ctx, id, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewError(CodeNotFound, "user not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	user, err := v.store.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewError(CodeNotFound, "user not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	v.log.Info(ctx, "user role changed", "user", user, "actor_id", caller.ID)
	e := v.event(events.UserRoleChanged, caller, id)
	e.Data = map[string]any{"role": role}
	v.publish(ctx, e)

	return user, nil
}
