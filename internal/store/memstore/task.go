package memstore

import (
	"cmp"
	"context"
	"errors"
	"sort"

	"github.com/steward-platform/apiserver/internal/store"
	"github.com/steward-platform/apiserver/types"
)

var errFollowUp = errors.New("follow-up write failed")

// TaskStore is the in-memory task repository.
type TaskStore struct {
	s *Store
}

func cloneTask(task types.Task) types.Task {
	task.Description = cloneString(task.Description)
	task.DueDate = cloneDate(task.DueDate)
	task.AssignedTo = cloneInt(task.AssignedTo)
	task.AccountType = ""
	return task
}

func (r *TaskStore) Create(_ context.Context, task types.Task) (types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextTask++
	now := r.s.now()
	task = cloneTask(task)
	task.ID = r.s.nextTask
	task.CreatedAt = now
	task.UpdatedAt = now
	r.s.tasks[task.ID] = task
	return cloneTask(task), nil
}

func (r *TaskStore) GetByID(_ context.Context, id int) (types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	task, ok := r.s.tasks[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	return cloneTask(task), nil
}

func (r *TaskStore) Update(_ context.Context, id int, update types.TaskUpdate) (types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	task, ok := r.s.tasks[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = cloneString(update.Description)
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.DueDate != nil {
		task.DueDate = cloneDate(update.DueDate)
	}
	if update.AssignedTo != nil {
		task.AssignedTo = cloneInt(update.AssignedTo)
	}
	if update.CompletionStatus != nil {
		task.CompletionStatus = *update.CompletionStatus
	}
	task.UpdatedAt = r.s.now()
	r.s.tasks[id] = task
	return cloneTask(task), nil
}

// UpdateStatus applies the status and its forced completion together, or
// neither when the follow-up fails.
func (r *TaskStore) UpdateStatus(_ context.Context, id int, status types.TaskStatus) (types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	task, ok := r.s.tasks[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	task.Status = status
	task.UpdatedAt = r.s.now()
	if completion, ok := types.CompletionForStatus(status); ok {
		if r.s.FailFollowUp {
			return types.Task{}, errFollowUp
		}
		task.CompletionStatus = completion
	}
	r.s.tasks[id] = task
	return cloneTask(task), nil
}

// UpdateProgress applies the completion and its forced status together, or
// neither when the follow-up fails.
func (r *TaskStore) UpdateProgress(_ context.Context, id int, completion float64) (types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	task, ok := r.s.tasks[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	task.CompletionStatus = completion
	task.UpdatedAt = r.s.now()
	if forced, ok := types.StatusForCompletion(completion, task.Status); ok {
		if r.s.FailFollowUp {
			return types.Task{}, errFollowUp
		}
		task.Status = forced
	}
	r.s.tasks[id] = task
	return cloneTask(task), nil
}

func (r *TaskStore) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

func (r *TaskStore) ListByAccount(_ context.Context, accountID int, q types.TaskQuery) ([]types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tasks := make([]types.Task, 0)
	for _, task := range r.s.tasks {
		if task.AccountID == accountID && matchesQuery(task, q) {
			tasks = append(tasks, cloneTask(task))
		}
	}
	sortTasks(tasks, q)
	return paginate(tasks, q.Limit, q.Offset), nil
}

func (r *TaskStore) ListByManager(_ context.Context, managerID int, q types.TaskQuery) ([]types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tasks := make([]types.Task, 0)
	for _, task := range r.s.tasks {
		if task.AssignedTo == nil || *task.AssignedTo != managerID || !matchesQuery(task, q) {
			continue
		}
		if q.AccountID != nil && task.AccountID != *q.AccountID {
			continue
		}
		account, ok := r.s.accounts[task.AccountID]
		if !ok {
			continue
		}
		out := cloneTask(task)
		out.AccountType = account.AccountType
		tasks = append(tasks, out)
	}
	sortTasks(tasks, q)
	return paginate(tasks, q.Limit, q.Offset), nil
}

func (r *TaskStore) CountByAccount(_ context.Context, accountID int) (types.TaskCounts, error) {
	return r.count(func(t types.Task) bool { return t.AccountID == accountID }), nil
}

func (r *TaskStore) CountByManager(_ context.Context, managerID int) (types.TaskCounts, error) {
	return r.count(func(t types.Task) bool {
		return t.AssignedTo != nil && *t.AssignedTo == managerID
	}), nil
}

func (r *TaskStore) count(match func(types.Task) bool) types.TaskCounts {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := types.NewTaskCounts()
	for _, task := range r.s.tasks {
		if match(task) {
			counts.Add(task.Status, 1)
		}
	}
	return counts
}

func matchesQuery(task types.Task, q types.TaskQuery) bool {
	if q.Status != nil && task.Status != *q.Status {
		return false
	}
	if q.Priority != nil && task.Priority != *q.Priority {
		return false
	}
	return true
}

// sortTasks mirrors the SQL ordering: the chosen column (NULL due dates
// last when ascending), then id.
func sortTasks(tasks []types.Task, q types.TaskQuery) {
	column := q.SortColumn()
	sort.SliceStable(tasks, func(i, j int) bool {
		c := compareTasks(tasks[i], tasks[j], column)
		if c == 0 {
			c = cmp.Compare(tasks[i].ID, tasks[j].ID)
		}
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	})
}

func compareTasks(a, b types.Task, column string) int {
	switch column {
	case types.SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case types.SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case types.SortByPriority:
		return cmp.Compare(a.Priority, b.Priority)
	default:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(b.DueDate.Time)
	}
}
