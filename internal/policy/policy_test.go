package policy

import (
	"testing"

	"github.com/steward-platform/apiserver/types"
)

func intPtr(v int) *int { return &v }

var (
	admin     = Actor{ID: 1, Role: types.RoleAdmin}
	owner     = Actor{ID: 2, Role: types.RoleOwner}
	manager   = Actor{ID: 3, Role: types.RoleManager}
	stranger  = Actor{ID: 4, Role: types.RoleManager}
	creator   = Actor{ID: 5, Role: types.RoleOwner}
	assignee  = Actor{ID: 6, Role: types.RoleManager}
	account   = AccountRef{OwnerID: 2, ManagerID: intPtr(3)}
	task      = TaskRef{CreatedBy: 5, AssignedTo: intPtr(6)}
	unmanaged = AccountRef{OwnerID: 2}
)

func TestAccountMatrix(t *testing.T) {
	cases := []struct {
		name  string
		check func(Actor) bool
		allow map[Actor]bool
	}{
		{
			name:  "read",
			check: func(a Actor) bool { return CanReadAccount(a, account) },
			allow: map[Actor]bool{admin: true, owner: true, manager: true, stranger: false},
		},
		{
			name:  "write",
			check: func(a Actor) bool { return CanWriteAccount(a, account) },
			allow: map[Actor]bool{admin: true, owner: true, manager: false, stranger: false},
		},
		{
			name:  "activate",
			check: func(a Actor) bool { return CanSetAccountStatus(a, account, types.AccountActive) },
			allow: map[Actor]bool{admin: true, owner: false, manager: false, stranger: false},
		},
		{
			name:  "suspend",
			check: func(a Actor) bool { return CanSetAccountStatus(a, account, types.AccountSuspended) },
			allow: map[Actor]bool{admin: true, owner: true, manager: true, stranger: false},
		},
		{
			name:  "assign manager",
			check: func(a Actor) bool { return CanAssignAccountManager(a, account) },
			allow: map[Actor]bool{admin: true, owner: true, manager: false, stranger: false},
		},
		{
			name:  "submit",
			check: CanSubmitAccount,
			allow: map[Actor]bool{admin: true, owner: true, manager: false},
		},
		{
			name:  "list managed",
			check: CanListManagedAccounts,
			allow: map[Actor]bool{admin: true, owner: false, manager: true},
		},
		{
			name:  "unassigned account read",
			check: func(a Actor) bool { return CanReadAccount(a, unmanaged) },
			allow: map[Actor]bool{admin: true, owner: true, manager: false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for actor, want := range tc.allow {
				if got := tc.check(actor); got != want {
					t.Fatalf("actor %+v: got %v, want %v", actor, got, want)
				}
			}
		})
	}
}

func TestTaskMatrix(t *testing.T) {
	cases := []struct {
		name  string
		check func(Actor) bool
		allow map[Actor]bool
	}{
		{
			name:  "read",
			check: func(a Actor) bool { return CanReadTask(a, account, task) },
			allow: map[Actor]bool{admin: true, owner: true, manager: true, creator: true, assignee: true, stranger: false},
		},
		{
			name:  "update",
			check: func(a Actor) bool { return CanUpdateTask(a, account, task) },
			allow: map[Actor]bool{admin: true, owner: true, manager: true, creator: true, assignee: true, stranger: false},
		},
		{
			name:  "delete",
			check: func(a Actor) bool { return CanDeleteTask(a, account, task) },
			allow: map[Actor]bool{admin: true, owner: true, manager: false, creator: true, assignee: false, stranger: false},
		},
		{
			name:  "progress",
			check: func(a Actor) bool { return CanUpdateTaskProgress(a, account, task) },
			allow: map[Actor]bool{admin: true, owner: true, manager: true, creator: false, assignee: true, stranger: false},
		},
		{
			name:  "create",
			check: func(a Actor) bool { return CanCreateTask(a, account) },
			allow: map[Actor]bool{admin: true, owner: true, manager: true, creator: false, stranger: false},
		},
		{
			name:  "assign",
			check: func(a Actor) bool { return CanAssignTask(a, account) },
			allow: map[Actor]bool{admin: true, owner: true, manager: true, assignee: false, stranger: false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for actor, want := range tc.allow {
				if got := tc.check(actor); got != want {
					t.Fatalf("actor %+v: got %v, want %v", actor, got, want)
				}
			}
		})
	}
}

func TestCanListManagerTasks(t *testing.T) {
	if !CanListManagerTasks(manager, manager.ID) {
		t.Fatal("manager should list own tasks")
	}
	if CanListManagerTasks(manager, stranger.ID) {
		t.Fatal("manager should not list another manager's tasks")
	}
	if !CanListManagerTasks(admin, stranger.ID) {
		t.Fatal("admin should list any manager's tasks")
	}
}

func TestIsAssignableManager(t *testing.T) {
	if IsAssignableManager(types.RoleOwner) {
		t.Fatal("owners cannot be assigned as managers")
	}
	if !IsAssignableManager(types.RoleManager) || !IsAssignableManager(types.RoleAdmin) {
		t.Fatal("managers and admins are assignable")
	}
}
