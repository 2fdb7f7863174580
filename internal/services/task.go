package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/types"
)

// TaskRepository defines persistence operations for tasks. UpdateStatus and
// UpdateProgress apply the status/progress coupling atomically.
type TaskRepository interface {
	Create(ctx context.Context, task types.Task) (types.Task, error)
	GetByID(ctx context.Context, id int) (types.Task, error)
	Update(ctx context.Context, id int, update types.TaskUpdate) (types.Task, error)
	UpdateStatus(ctx context.Context, id int, status types.TaskStatus) (types.Task, error)
	UpdateProgress(ctx context.Context, id int, completion float64) (types.Task, error)
	Delete(ctx context.Context, id int) error
	ListByAccount(ctx context.Context, accountID int, q types.TaskQuery) ([]types.Task, error)
	ListByManager(ctx context.Context, managerID int, q types.TaskQuery) ([]types.Task, error)
	CountByAccount(ctx context.Context, accountID int) (types.TaskCounts, error)
	CountByManager(ctx context.Context, managerID int) (types.TaskCounts, error)
}

// AccountLookup loads accounts referenced by tasks.
type AccountLookup interface {
	GetByID(ctx context.Context, id int) (types.ManagedAccount, error)
}

// TaskService encapsulates task use-cases.
type TaskService struct {
	repo     TaskRepository
	accounts AccountLookup
	users    UserLookup
	notifier Notifier
	logger   *slog.Logger
}

func NewTaskService(repo TaskRepository, accounts AccountLookup, users UserLookup, notifier Notifier, logger *slog.Logger) *TaskService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &TaskService{repo: repo, accounts: accounts, users: users, notifier: notifier, logger: logger}
}

// TaskList is a page of tasks plus per-status counts over the whole scope.
type TaskList struct {
	Tasks  []types.Task
	Counts types.TaskCounts
}

// Create validates and stores a task. The assignee defaults to the account's
// manager.
func (s *TaskService) Create(ctx context.Context, actor policy.Actor, in types.TaskCreate) (types.Task, error) {
	if in.AccountID <= 0 {
		return types.Task{}, apperr.Validation("Account ID is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return types.Task{}, apperr.Validation("Task title is required")
	}
	if in.Priority == "" {
		in.Priority = types.PriorityMedium
	}
	if !in.Priority.Valid() {
		return types.Task{}, apperr.Validation("Priority must be one of: low, medium, high")
	}
	if in.Status == "" {
		in.Status = types.TaskPending
	}
	if !in.Status.Valid() {
		return types.Task{}, apperr.Validation("Status must be one of: pending, in-progress, completed, cancelled")
	}
	completion := types.MinCompletion
	if in.CompletionStatus != nil {
		if !types.ValidCompletion(*in.CompletionStatus) {
			return types.Task{}, apperr.Validation("Completion status must be a number between 0 and 100")
		}
		completion = *in.CompletionStatus
	}

	account, err := s.loadAccount(ctx, in.AccountID)
	if err != nil {
		return types.Task{}, err
	}
	ref := policy.AccountRefOf(account)
	if !policy.CanCreateTask(actor, ref) {
		s.logger.Warn("unauthorized task creation", "user_id", actor.ID, "account_id", in.AccountID)
		return types.Task{}, apperr.Forbidden("You are not authorized to create tasks for this account")
	}

	assignee := account.ManagerID
	if in.AssignedTo != nil {
		if err := s.checkAssignee(ctx, *in.AssignedTo); err != nil {
			return types.Task{}, err
		}
		assignee = in.AssignedTo
	}

	// Creation is a transition from nothing, so the same coupling applies.
	coupled := types.TaskUpdate{Status: &in.Status, CompletionStatus: &completion}
	coupled.Couple(types.TaskPending)

	task, err := s.repo.Create(ctx, types.Task{
		AccountID:        in.AccountID,
		Title:            title,
		Description:      in.Description,
		Priority:         in.Priority,
		Status:           *coupled.Status,
		DueDate:          in.DueDate,
		CreatedBy:        actor.ID,
		AssignedTo:       assignee,
		CompletionStatus: *coupled.CompletionStatus,
	})
	if err != nil {
		return types.Task{}, apperr.Persistence("create task", err)
	}
	s.logger.Info("task created", "task_id", task.ID, "account_id", task.AccountID, "user_id", actor.ID)
	s.announce(task, "created")
	return task, nil
}

// Get returns a task the actor may read.
func (s *TaskService) Get(ctx context.Context, actor policy.Actor, id int) (types.Task, error) {
	task, account, err := s.load(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if !policy.CanReadTask(actor, policy.AccountRefOf(account), policy.TaskRefOf(task)) {
		s.logger.Warn("unauthorized task access", "user_id", actor.ID, "task_id", id)
		return types.Task{}, apperr.Forbidden("You are not authorized to access this task")
	}
	return task, nil
}

// Update applies a partial update with the status/progress coupling folded in.
func (s *TaskService) Update(ctx context.Context, actor policy.Actor, id int, update types.TaskUpdate) (types.Task, error) {
	if update.Empty() {
		return types.Task{}, apperr.Validation("No data to update")
	}
	if err := validateTaskUpdate(&update); err != nil {
		return types.Task{}, err
	}

	task, account, err := s.load(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if !policy.CanUpdateTask(actor, policy.AccountRefOf(account), policy.TaskRefOf(task)) {
		s.logger.Warn("unauthorized task update", "user_id", actor.ID, "task_id", id)
		return types.Task{}, apperr.Forbidden("You are not authorized to update this task")
	}
	if update.AssignedTo != nil && (task.AssignedTo == nil || *update.AssignedTo != *task.AssignedTo) {
		if err := s.checkAssignee(ctx, *update.AssignedTo); err != nil {
			return types.Task{}, err
		}
	}

	update.Couple(task.Status)
	updated, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return types.Task{}, translate("update task", "Task not found", err)
	}
	s.logger.Info("task updated", "task_id", id, "user_id", actor.ID)
	s.announce(updated, "updated")
	return updated, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, actor policy.Actor, id int) error {
	task, account, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !policy.CanDeleteTask(actor, policy.AccountRefOf(account), policy.TaskRefOf(task)) {
		s.logger.Warn("unauthorized task deletion", "user_id", actor.ID, "task_id", id)
		return apperr.Forbidden("You are not authorized to delete this task")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate("delete task", "Task not found", err)
	}
	s.logger.Info("task deleted", "task_id", id, "user_id", actor.ID)
	s.notifier.Broadcast(task.AccountID, types.EventTaskUpdated, types.TaskUpdatedPayload{
		AccountID: task.AccountID,
		TaskID:    id,
		Action:    "deleted",
	})
	return nil
}

// ListByAccount returns the account's tasks matching q plus counts over all
// of the account's tasks.
func (s *TaskService) ListByAccount(ctx context.Context, actor policy.Actor, accountID int, q types.TaskQuery) (TaskList, error) {
	if err := validateTaskQuery(q); err != nil {
		return TaskList{}, err
	}
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return TaskList{}, err
	}
	if !policy.CanReadAccount(actor, policy.AccountRefOf(account)) {
		s.logger.Warn("unauthorized account tasks access", "user_id", actor.ID, "account_id", accountID)
		return TaskList{}, apperr.Forbidden("You are not authorized to view tasks for this account")
	}

	tasks, err := s.repo.ListByAccount(ctx, accountID, q)
	if err != nil {
		return TaskList{}, apperr.Persistence("list account tasks", err)
	}
	counts, err := s.repo.CountByAccount(ctx, accountID)
	if err != nil {
		return TaskList{}, apperr.Persistence("count account tasks", err)
	}
	return TaskList{Tasks: tasks, Counts: counts}, nil
}

// ListByManager returns the tasks assigned to managerID matching q plus
// counts over all of them.
func (s *TaskService) ListByManager(ctx context.Context, actor policy.Actor, managerID int, q types.TaskQuery) (TaskList, error) {
	if !policy.CanListManagerTasks(actor, managerID) {
		s.logger.Warn("unauthorized manager tasks access", "user_id", actor.ID, "manager_id", managerID)
		return TaskList{}, apperr.Forbidden("You can only view your own tasks")
	}
	if err := validateTaskQuery(q); err != nil {
		return TaskList{}, err
	}

	tasks, err := s.repo.ListByManager(ctx, managerID, q)
	if err != nil {
		return TaskList{}, apperr.Persistence("list manager tasks", err)
	}
	counts, err := s.repo.CountByManager(ctx, managerID)
	if err != nil {
		return TaskList{}, apperr.Persistence("count manager tasks", err)
	}
	return TaskList{Tasks: tasks, Counts: counts}, nil
}

// UpdateStatus sets the status; completed forces 100% and cancelled 0%.
func (s *TaskService) UpdateStatus(ctx context.Context, actor policy.Actor, id int, status types.TaskStatus) (types.Task, error) {
	if !status.Valid() {
		return types.Task{}, apperr.Validation("Invalid status value")
	}
	task, account, err := s.load(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if !policy.CanUpdateTask(actor, policy.AccountRefOf(account), policy.TaskRefOf(task)) {
		return types.Task{}, apperr.Forbidden("Not authorized to update task status")
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return types.Task{}, translate("update task status", "Task not found", err)
	}
	s.logger.Info("task status updated", "task_id", id, "status", status, "user_id", actor.ID)
	s.announce(updated, "status")
	return updated, nil
}

// UpdateProgress sets the completion; 100% completes the task and anything
// less reopens a completed one.
func (s *TaskService) UpdateProgress(ctx context.Context, actor policy.Actor, id int, completion float64) (types.Task, error) {
	if !types.ValidCompletion(completion) {
		return types.Task{}, apperr.Validation("Progress must be a number between 0 and 100")
	}
	task, account, err := s.load(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if !policy.CanUpdateTaskProgress(actor, policy.AccountRefOf(account), policy.TaskRefOf(task)) {
		return types.Task{}, apperr.Forbidden("Not authorized to update task progress")
	}

	updated, err := s.repo.UpdateProgress(ctx, id, completion)
	if err != nil {
		return types.Task{}, translate("update task progress", "Task not found", err)
	}
	s.logger.Info("task progress updated", "task_id", id, "completion", completion, "user_id", actor.ID)
	s.announce(updated, "progress")
	return updated, nil
}

// AssignManager reassigns a task to a manager or admin.
func (s *TaskService) AssignManager(ctx context.Context, actor policy.Actor, id, managerID int) (types.Task, error) {
	if managerID <= 0 {
		return types.Task{}, apperr.Validation("Manager ID is required")
	}
	task, account, err := s.load(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if !policy.CanAssignTask(actor, policy.AccountRefOf(account)) {
		s.logger.Warn("unauthorized task assignment", "user_id", actor.ID, "task_id", task.ID)
		return types.Task{}, apperr.Forbidden("You are not authorized to assign this task")
	}
	if err := s.checkAssignee(ctx, managerID); err != nil {
		return types.Task{}, err
	}

	updated, err := s.repo.Update(ctx, id, types.TaskUpdate{AssignedTo: &managerID})
	if err != nil {
		return types.Task{}, translate("assign task", "Task not found", err)
	}
	s.logger.Info("task assigned", "task_id", id, "manager_id", managerID, "user_id", actor.ID)
	s.announce(updated, "assigned")
	return updated, nil
}

func (s *TaskService) load(ctx context.Context, id int) (types.Task, types.ManagedAccount, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Task{}, types.ManagedAccount{}, translate("load task", "Task not found", err)
	}
	account, err := s.loadAccount(ctx, task.AccountID)
	if err != nil {
		return types.Task{}, types.ManagedAccount{}, err
	}
	return task, account, nil
}

func (s *TaskService) loadAccount(ctx context.Context, id int) (types.ManagedAccount, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, translate("load account", "Account not found", err)
	}
	return account, nil
}

func (s *TaskService) checkAssignee(ctx context.Context, userID int) error {
	if userID <= 0 {
		return apperr.Validation("Invalid manager ID format")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return translate("load assignee", "Assigned manager not found", err)
	}
	if !policy.IsAssignableManager(user.Role) {
		return apperr.Validation("Tasks can only be assigned to managers or admins")
	}
	return nil
}

func (s *TaskService) announce(task types.Task, action string) {
	snapshot := task
	s.notifier.Broadcast(task.AccountID, types.EventTaskUpdated, types.TaskUpdatedPayload{
		AccountID: task.AccountID,
		TaskID:    task.ID,
		Action:    action,
		Task:      &snapshot,
	})
}

func validateTaskUpdate(update *types.TaskUpdate) error {
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return apperr.Validation("Task title is required")
		}
		update.Title = &title
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return apperr.Validation("Priority must be one of: low, medium, high")
	}
	if update.Status != nil && !update.Status.Valid() {
		return apperr.Validation("Status must be one of: pending, in-progress, completed, cancelled")
	}
	if update.CompletionStatus != nil && !types.ValidCompletion(*update.CompletionStatus) {
		return apperr.Validation("Completion status must be a number between 0 and 100")
	}
	return nil
}

func validateTaskQuery(q types.TaskQuery) error {
	if q.Status != nil && !q.Status.Valid() {
		return apperr.Validation("Status must be one of: pending, in-progress, completed, cancelled")
	}
	if q.Priority != nil && !q.Priority.Valid() {
		return apperr.Validation("Priority must be one of: low, medium, high")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return apperr.Validation("limit and offset must not be negative")
	}
	return nil
}
