// Package policy holds the authorization decisions for every resource action.
// The functions are pure: callers load the resource, then ask.
package policy

import "github.com/steward-platform/apiserver/types"

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID   int
	Role types.Role
}

// IsAdmin reports whether the actor has platform-wide authority.
func (a Actor) IsAdmin() bool {
	return a.Role == types.RoleAdmin
}

// AccountRef carries the ownership fields of a managed account.
type AccountRef struct {
	OwnerID   int
	ManagerID *int
}

// AccountRefOf extracts the ownership fields of account.
func AccountRefOf(account types.ManagedAccount) AccountRef {
	return AccountRef{OwnerID: account.OwnerID, ManagerID: account.ManagerID}
}

// TaskRef carries the ownership fields of a task.
type TaskRef struct {
	CreatedBy  int
	AssignedTo *int
}

// TaskRefOf extracts the ownership fields of task.
func TaskRefOf(task types.Task) TaskRef {
	return TaskRef{CreatedBy: task.CreatedBy, AssignedTo: task.AssignedTo}
}

func (a Actor) owns(account AccountRef) bool {
	return a.ID == account.OwnerID
}

func (a Actor) manages(account AccountRef) bool {
	return matches(a.ID, account.ManagerID)
}

func matches(id int, ref *int) bool {
	return ref != nil && *ref == id
}

// CanReadAccount: admin, owner or assigned manager.
func CanReadAccount(actor Actor, account AccountRef) bool {
	return actor.IsAdmin() || actor.owns(account) || actor.manages(account)
}

// CanWriteAccount covers field updates, instructions and deletion: admin or owner.
func CanWriteAccount(actor Actor, account AccountRef) bool {
	return actor.IsAdmin() || actor.owns(account)
}

// CanSetAccountStatus: only admins activate; any reader may set other statuses.
func CanSetAccountStatus(actor Actor, account AccountRef, status types.AccountStatus) bool {
	if status == types.AccountActive {
		return actor.IsAdmin()
	}
	return CanReadAccount(actor, account)
}

// CanAssignAccountManager: admin or owner. The target must also pass
// IsAssignableManager.
func CanAssignAccountManager(actor Actor, account AccountRef) bool {
	return actor.IsAdmin() || actor.owns(account)
}

// IsAssignableManager reports whether a user with role may manage accounts
// or be assigned tasks.
func IsAssignableManager(role types.Role) bool {
	return role.CanManage()
}

// CanSubmitAccount: owners and admins.
func CanSubmitAccount(actor Actor) bool {
	return actor.Role == types.RoleOwner || actor.IsAdmin()
}

// CanListManagedAccounts gates "accounts I manage": managers and admins.
func CanListManagedAccounts(actor Actor) bool {
	return actor.Role == types.RoleManager || actor.IsAdmin()
}

// CanListAllAccounts: admins only.
func CanListAllAccounts(actor Actor) bool {
	return actor.IsAdmin()
}

// CanReadTask: admin, account owner, account manager, task creator or assignee.
func CanReadTask(actor Actor, account AccountRef, task TaskRef) bool {
	return actor.IsAdmin() ||
		actor.owns(account) ||
		actor.manages(account) ||
		actor.ID == task.CreatedBy ||
		matches(actor.ID, task.AssignedTo)
}

// CanUpdateTask has the same audience as CanReadTask.
func CanUpdateTask(actor Actor, account AccountRef, task TaskRef) bool {
	return CanReadTask(actor, account, task)
}

// CanDeleteTask: admin, account owner or task creator.
func CanDeleteTask(actor Actor, account AccountRef, task TaskRef) bool {
	return actor.IsAdmin() || actor.owns(account) || actor.ID == task.CreatedBy
}

// CanUpdateTaskProgress: admin, account owner, account manager or assignee.
func CanUpdateTaskProgress(actor Actor, account AccountRef, task TaskRef) bool {
	return actor.IsAdmin() ||
		actor.owns(account) ||
		actor.manages(account) ||
		matches(actor.ID, task.AssignedTo)
}

// CanCreateTask: admin, account owner or account manager.
func CanCreateTask(actor Actor, account AccountRef) bool {
	return actor.IsAdmin() || actor.owns(account) || actor.manages(account)
}

// CanAssignTask has the same audience as CanCreateTask.
func CanAssignTask(actor Actor, account AccountRef) bool {
	return CanCreateTask(actor, account)
}

// CanListManagerTasks: a manager may list their own tasks; admins anyone's.
func CanListManagerTasks(actor Actor, managerID int) bool {
	return actor.ID == managerID || actor.IsAdmin()
}

// CanManageUsers: admins only.
func CanManageUsers(actor Actor) bool {
	return actor.IsAdmin()
}

// CanJoinRoom gates real-time subscriptions to an account's room.
func CanJoinRoom(actor Actor, account AccountRef) bool {
	return CanReadAccount(actor, account)
}
