package services

import (
	"context"
	"testing"

	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/types"
)

func TestRegisterCreatesPendingOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, Registration{Email: "owner@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Status != types.UserPending || user.Role != types.RoleOwner {
		t.Fatalf("registered user = %+v", user)
	}
	if user.PasswordHash == "password123" || !VerifyPassword("password123", user.PasswordHash) {
		t.Fatal("password was not hashed")
	}

	manager, err := f.users.Register(ctx, Registration{Email: "m@example.com", Password: "password123", Role: types.RoleManager})
	if err != nil || manager.Status != types.UserPending {
		t.Fatalf("Register(manager) = %+v, %v", manager, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.users.Register(ctx, Registration{Email: "taken@example.com", Password: "password123"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name string
		reg  Registration
		kind apperr.Kind
	}{
		{"missing password", Registration{Email: "a@example.com"}, apperr.KindValidation},
		{"bad email", Registration{Email: "not-an-email", Password: "password123"}, apperr.KindValidation},
		{"short password", Registration{Email: "a@example.com", Password: "short"}, apperr.KindValidation},
		{"unknown role", Registration{Email: "a@example.com", Password: "password123", Role: "root"}, apperr.KindValidation},
		{"self-registered admin", Registration{Email: "a@example.com", Password: "password123", Role: types.RoleAdmin}, apperr.KindValidation},
		{"duplicate email", Registration{Email: "taken@example.com", Password: "password123"}, apperr.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.users.Register(ctx, tc.reg)
			if !apperr.Is(err, tc.kind) {
				t.Fatalf("Register() error = %v, want %s", err, tc.kind)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending, _ := f.users.Register(ctx, Registration{Email: "pending@example.com", Password: "password123"})
	f.user(t, "active@example.com", types.RoleOwner)

	if _, err := f.users.Login(ctx, "active@example.com", "wrong-password"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("wrong password error = %v", err)
	}
	if _, err := f.users.Login(ctx, "nobody@example.com", "password123"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("unknown email error = %v", err)
	}
	if _, err := f.users.Login(ctx, pending.Email, "password123"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("pending user error = %v", err)
	}
	user, err := f.users.Login(ctx, "active@example.com", "password123")
	if err != nil || user.Email != "active@example.com" {
		t.Fatalf("Login() = %+v, %v", user, err)
	}
}

func TestUpdateSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	f.user(t, "other@example.com", types.RoleOwner)

	role := types.RoleAdmin
	if _, err := f.users.UpdateSelf(ctx, owner, types.UserUpdate{Role: &role}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("role change error = %v", err)
	}
	status := types.UserActive
	if _, err := f.users.UpdateSelf(ctx, owner, types.UserUpdate{Status: &status}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("status change error = %v", err)
	}
	if _, err := f.users.UpdateSelf(ctx, owner, types.UserUpdate{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty update error = %v", err)
	}
	if _, err := f.users.UpdateSelf(ctx, owner, types.UserUpdate{Email: strPtr("other@example.com")}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("taken email error = %v", err)
	}

	if _, err := f.users.UpdateSelf(ctx, owner, types.UserUpdate{Password: strPtr("new-password")}); err != nil {
		t.Fatalf("password change error = %v", err)
	}
	if _, err := f.users.Login(ctx, "owner@example.com", "new-password"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAdminUserManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", types.RoleAdmin)
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	pending, _ := f.users.Register(ctx, Registration{Email: "new@example.com", Password: "password123"})

	if _, err := f.users.List(ctx, owner, types.UserFilter{}); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("non-admin List() error = %v", err)
	}

	status := types.UserPending
	listed, err := f.users.List(ctx, admin, types.UserFilter{Status: &status})
	if err != nil || len(listed) != 1 || listed[0].ID != pending.ID {
		t.Fatalf("List(pending) = %+v, %v", listed, err)
	}

	active := types.UserActive
	updated, err := f.users.Update(ctx, admin, pending.ID, types.UserUpdate{Status: &active})
	if err != nil || updated.Status != types.UserActive {
		t.Fatalf("activate = %+v, %v", updated, err)
	}
	if _, err := f.users.Update(ctx, admin, 999, types.UserUpdate{Status: &active}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("update missing user error = %v", err)
	}

	if err := f.users.Delete(ctx, admin, admin.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("self delete error = %v", err)
	}
	if err := f.users.Delete(ctx, owner, pending.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("non-admin delete error = %v", err)
	}
	if err := f.users.Delete(ctx, admin, pending.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.users.Get(ctx, admin, pending.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("Get(deleted) error = %v", err)
	}
	if _, err := f.users.Get(ctx, policy.Actor{ID: owner.ID, Role: types.RoleManager}, owner.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("non-admin Get() error = %v", err)
	}
}

func TestDemotingAssignedManagerIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", types.RoleAdmin)
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	manager := f.user(t, "manager@example.com", types.RoleManager)
	idle := f.user(t, "idle@example.com", types.RoleManager)
	account := f.account(t, owner, &manager)

	demote := types.RoleOwner
	if _, err := f.users.Update(ctx, admin, manager.ID, types.UserUpdate{Role: &demote}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("demote assigned manager error = %v", err)
	}
	if _, err := f.users.Update(ctx, admin, idle.ID, types.UserUpdate{Role: &demote}); err != nil {
		t.Fatalf("demote idle manager error = %v", err)
	}

	promote := types.RoleAdmin
	if _, err := f.users.Update(ctx, admin, manager.ID, types.UserUpdate{Role: &promote}); err != nil {
		t.Fatalf("promote assigned manager error = %v", err)
	}
	got, err := f.accounts.Get(ctx, owner, account.ID)
	if err != nil || got.ManagerID == nil || *got.ManagerID != manager.ID {
		t.Fatalf("account manager = %+v, %v", got.ManagerID, err)
	}
}
