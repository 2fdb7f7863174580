package services

import (
	"context"
	"testing"

	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/types"
)

func TestCreateTaskDefaultsAssigneeToAccountManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	manager := f.user(t, "manager@example.com", types.RoleManager)
	account := f.account(t, owner, &manager)

	task, err := f.tasks.Create(ctx, manager, types.TaskCreate{AccountID: account.ID, Title: "  Post update  "})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.AssignedTo == nil || *task.AssignedTo != manager.ID {
		t.Fatalf("assigned_to = %v, want %d", task.AssignedTo, manager.ID)
	}
	if task.Title != "Post update" || task.Priority != types.PriorityMedium || task.Status != types.TaskPending || task.CreatedBy != manager.ID {
		t.Fatalf("created task = %+v", task)
	}
	ev, ok := f.notifier.last()
	if !ok || ev.name != types.EventTaskUpdated || ev.accountID != account.ID {
		t.Fatalf("last event = %+v", ev)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	stranger := f.user(t, "stranger@example.com", types.RoleManager)
	account := f.account(t, owner, nil)

	cases := []struct {
		name string
		in   types.TaskCreate
		kind apperr.Kind
	}{
		{"missing account", types.TaskCreate{Title: "t"}, apperr.KindValidation},
		{"blank title", types.TaskCreate{AccountID: account.ID, Title: " "}, apperr.KindValidation},
		{"bad priority", types.TaskCreate{AccountID: account.ID, Title: "t", Priority: "urgent"}, apperr.KindValidation},
		{"bad status", types.TaskCreate{AccountID: account.ID, Title: "t", Status: "done"}, apperr.KindValidation},
		{"bad completion", types.TaskCreate{AccountID: account.ID, Title: "t", CompletionStatus: floatPtr(101)}, apperr.KindValidation},
		{"unknown account", types.TaskCreate{AccountID: 999, Title: "t"}, apperr.KindNotFound},
		{"owner-role assignee", types.TaskCreate{AccountID: account.ID, Title: "t", AssignedTo: intPtr(owner.ID)}, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.tasks.Create(ctx, owner, tc.in); !apperr.Is(err, tc.kind) {
				t.Fatalf("Create() error = %v, want %s", err, tc.kind)
			}
		})
	}

	if _, err := f.tasks.Create(ctx, stranger, types.TaskCreate{AccountID: account.ID, Title: "t"}); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("stranger Create() error = %v", err)
	}

	completed, err := f.tasks.Create(ctx, owner, types.TaskCreate{AccountID: account.ID, Title: "t", Status: types.TaskCompleted})
	if err != nil || completed.CompletionStatus != 100 {
		t.Fatalf("Create(completed) = %+v, %v", completed, err)
	}
}

func TestStatusProgressCoupling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	manager := f.user(t, "manager@example.com", types.RoleManager)
	account := f.account(t, owner, &manager)
	task, _ := f.tasks.Create(ctx, manager, types.TaskCreate{AccountID: account.ID, Title: "t"})

	got, err := f.tasks.UpdateStatus(ctx, manager, task.ID, types.TaskCompleted)
	if err != nil || got.CompletionStatus != 100 {
		t.Fatalf("UpdateStatus(completed) = %+v, %v", got, err)
	}
	got, err = f.tasks.UpdateProgress(ctx, manager, task.ID, 40)
	if err != nil || got.Status != types.TaskInProgress || got.CompletionStatus != 40 {
		t.Fatalf("UpdateProgress(40) = %+v, %v", got, err)
	}
	got, err = f.tasks.UpdateProgress(ctx, manager, task.ID, 100)
	if err != nil || got.Status != types.TaskCompleted {
		t.Fatalf("UpdateProgress(100) = %+v, %v", got, err)
	}
	got, err = f.tasks.UpdateStatus(ctx, manager, task.ID, types.TaskCancelled)
	if err != nil || got.CompletionStatus != 0 {
		t.Fatalf("UpdateStatus(cancelled) = %+v, %v", got, err)
	}

	got, err = f.tasks.Update(ctx, manager, task.ID, types.TaskUpdate{CompletionStatus: floatPtr(100)})
	if err != nil || got.Status != types.TaskCompleted {
		t.Fatalf("Update(completion=100) = %+v, %v", got, err)
	}
	status := types.TaskCancelled
	got, err = f.tasks.Update(ctx, manager, task.ID, types.TaskUpdate{Status: &status, CompletionStatus: floatPtr(50)})
	if err != nil || got.Status != types.TaskCancelled || got.CompletionStatus != 0 {
		t.Fatalf("Update(cancelled, 50) = %+v, %v", got, err)
	}

	if _, err := f.tasks.UpdateProgress(ctx, manager, task.ID, 120); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("out-of-range progress error = %v", err)
	}
	if _, err := f.tasks.UpdateStatus(ctx, manager, task.ID, "done"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("invalid status error = %v", err)
	}
}

func TestCouplingFollowUpFailureIsPersistenceError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	account := f.account(t, owner, nil)
	task, _ := f.tasks.Create(ctx, owner, types.TaskCreate{AccountID: account.ID, Title: "t"})

	f.store.FailFollowUp = true
	if _, err := f.tasks.UpdateProgress(ctx, owner, task.ID, 100); !apperr.Is(err, apperr.KindPersistence) {
		t.Fatalf("UpdateProgress() error = %v, want persistence", err)
	}
	got, _ := f.tasks.Get(ctx, owner, task.ID)
	if got.CompletionStatus != 0 || got.Status != types.TaskPending {
		t.Fatalf("task changed after failed follow-up: %+v", got)
	}
}

func TestTaskAuthorizationMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	manager := f.user(t, "manager@example.com", types.RoleManager)
	assignee := f.user(t, "assignee@example.com", types.RoleManager)
	stranger := f.user(t, "stranger@example.com", types.RoleManager)
	account := f.account(t, owner, &manager)
	task, _ := f.tasks.Create(ctx, manager, types.TaskCreate{AccountID: account.ID, Title: "t", AssignedTo: intPtr(assignee.ID)})

	if _, err := f.tasks.Get(ctx, assignee, task.ID); err != nil {
		t.Fatalf("assignee Get() error = %v", err)
	}
	if _, err := f.tasks.Get(ctx, stranger, task.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("stranger Get() error = %v", err)
	}
	if _, err := f.tasks.UpdateProgress(ctx, assignee, task.ID, 10); err != nil {
		t.Fatalf("assignee UpdateProgress() error = %v", err)
	}
	if _, err := f.tasks.AssignManager(ctx, assignee, task.ID, assignee.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("assignee AssignManager() error = %v", err)
	}
	if err := f.tasks.Delete(ctx, assignee, task.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("assignee Delete() error = %v", err)
	}

	reassigned, err := f.tasks.AssignManager(ctx, owner, task.ID, manager.ID)
	if err != nil || *reassigned.AssignedTo != manager.ID {
		t.Fatalf("AssignManager() = %+v, %v", reassigned, err)
	}
	if _, err := f.tasks.AssignManager(ctx, owner, task.ID, owner.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("assign owner-role error = %v", err)
	}

	if err := f.tasks.Delete(ctx, manager, task.ID); err != nil {
		t.Fatalf("creator Delete() error = %v", err)
	}
	if _, err := f.tasks.Get(ctx, owner, task.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("Get(deleted) error = %v", err)
	}
}

func TestTaskListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", types.RoleOwner)
	manager := f.user(t, "manager@example.com", types.RoleManager)
	other := f.user(t, "other@example.com", types.RoleManager)
	admin := f.user(t, "admin@example.com", types.RoleAdmin)
	account := f.account(t, owner, &manager)

	for i, status := range []types.TaskStatus{types.TaskPending, types.TaskInProgress, types.TaskPending} {
		if _, err := f.tasks.Create(ctx, owner, types.TaskCreate{AccountID: account.ID, Title: "t", Status: status}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	pending := types.TaskPending
	list, err := f.tasks.ListByAccount(ctx, owner, account.ID, types.TaskQuery{Status: &pending})
	if err != nil {
		t.Fatalf("ListByAccount() error = %v", err)
	}
	if len(list.Tasks) != 2 {
		t.Fatalf("filtered tasks = %d, want 2", len(list.Tasks))
	}
	want := types.TaskCounts{"total": 3, "pending": 2, "in-progress": 1, "completed": 0, "cancelled": 0}
	for k, v := range want {
		if list.Counts[k] != v {
			t.Fatalf("counts[%s] = %d, want %d (%v)", k, list.Counts[k], v, list.Counts)
		}
	}
	if _, err := f.tasks.ListByAccount(ctx, other, account.ID, types.TaskQuery{}); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("other manager ListByAccount() error = %v", err)
	}

	mine, err := f.tasks.ListByManager(ctx, manager, manager.ID, types.TaskQuery{})
	if err != nil || len(mine.Tasks) != 3 || mine.Counts["total"] != 3 {
		t.Fatalf("ListByManager(self) = %+v, %v", mine, err)
	}
	if mine.Tasks[0].AccountType != "shop" {
		t.Fatalf("manager listing missing account type: %+v", mine.Tasks[0])
	}
	if _, err := f.tasks.ListByManager(ctx, other, manager.ID, types.TaskQuery{}); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("other manager ListByManager() error = %v", err)
	}
	if _, err := f.tasks.ListByManager(ctx, admin, manager.ID, types.TaskQuery{}); err != nil {
		t.Fatalf("admin ListByManager() error = %v", err)
	}
}
