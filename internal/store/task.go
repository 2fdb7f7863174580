package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steward-platform/apiserver/types"
)

const taskColumns = `t.id, t.account_id, t.title, t.description, t.priority, t.status, t.due_date,
	t.created_by, t.assigned_to, t.completion_status, t.created_at, t.updated_at`

// TaskRepository handles persistence for tasks.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func taskScanTargets(task *types.Task) []any {
	return []any{
		&task.ID,
		&task.AccountID,
		&task.Title,
		&task.Description,
		&task.Priority,
		&task.Status,
		&task.DueDate,
		&task.CreatedBy,
		&task.AssignedTo,
		&task.CompletionStatus,
		&task.CreatedAt,
		&task.UpdatedAt,
	}
}

func scanTask(row rowScanner) (types.Task, error) {
	var task types.Task
	err := row.Scan(taskScanTargets(&task)...)
	return task, err
}

func getTask(ctx context.Context, q rowQueryer, id int) (types.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	task, err := scanTask(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	const query = `
		INSERT INTO tasks AS t (account_id, title, description, priority, status, due_date, created_by, assigned_to, completion_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + taskColumns
	created, err := scanTask(r.db.QueryRowContext(
		ctx,
		query,
		task.AccountID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.DueDate,
		task.CreatedBy,
		task.AssignedTo,
		task.CompletionStatus,
	))
	if err != nil {
		return types.Task{}, err
	}
	return created, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id int) (types.Task, error) {
	return getTask(ctx, r.db, id)
}

// Update writes the non-nil fields of update in a single statement. Callers
// fold the status/progress coupling into update beforehand.
func (r *TaskRepository) Update(ctx context.Context, id int, update types.TaskUpdate) (types.Task, error) {
	var a args
	set := assignments{args: &a}
	if update.Title != nil {
		set.set("title", *update.Title)
	}
	if update.Description != nil {
		set.set("description", *update.Description)
	}
	if update.Priority != nil {
		set.set("priority", *update.Priority)
	}
	if update.Status != nil {
		set.set("status", *update.Status)
	}
	if update.DueDate != nil {
		set.set("due_date", *update.DueDate)
	}
	if update.AssignedTo != nil {
		set.set("assigned_to", *update.AssignedTo)
	}
	if update.CompletionStatus != nil {
		set.set("completion_status", *update.CompletionStatus)
	}
	set.setRaw("updated_at = NOW()")

	query := `UPDATE tasks AS t SET ` + set.String() + ` WHERE t.id = ` + a.add(id) + ` RETURNING ` + taskColumns
	task, err := scanTask(r.db.QueryRowContext(ctx, query, a...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

// UpdateStatus sets the status and, in the same transaction, the completion
// it forces.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id int, status types.TaskStatus) (types.Task, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (types.Task, error) {
		result, err := tx.ExecContext(ctx, `UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
		if err != nil {
			return types.Task{}, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return types.Task{}, err
		}
		if affected == 0 {
			return types.Task{}, ErrNotFound
		}

		if completion, ok := types.CompletionForStatus(status); ok {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET completion_status = $1 WHERE id = $2`, completion, id); err != nil {
				return types.Task{}, fmt.Errorf("apply completion for status %s: %w", status, err)
			}
		}
		return getTask(ctx, tx, id)
	})
}

// UpdateProgress sets the completion and, in the same transaction, the
// status it forces.
func (r *TaskRepository) UpdateProgress(ctx context.Context, id int, completion float64) (types.Task, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (types.Task, error) {
		var current types.TaskStatus
		err := tx.QueryRowContext(
			ctx,
			`UPDATE tasks SET completion_status = $1, updated_at = NOW() WHERE id = $2 RETURNING status`,
			completion,
			id,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.Task{}, ErrNotFound
			}
			return types.Task{}, err
		}

		if forced, ok := types.StatusForCompletion(completion, current); ok {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = $1 WHERE id = $2`, forced, id); err != nil {
				return types.Task{}, fmt.Errorf("apply status for completion %.2f: %w", completion, err)
			}
		}
		return getTask(ctx, tx, id)
	})
}

func (r *TaskRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) (types.Task, error)) (types.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Task{}, fmt.Errorf("begin task tx: %w", err)
	}
	task, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return types.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Task{}, fmt.Errorf("commit task tx: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByAccount returns the tasks of accountID matching q.
func (r *TaskRepository) ListByAccount(ctx context.Context, accountID int, q types.TaskQuery) ([]types.Task, error) {
	var a args
	where := conditions{args: &a}
	where.eq("t.account_id", accountID)
	applyTaskFilters(&where, q)

	query := `SELECT ` + taskColumns + ` FROM tasks t ` + where.String() + taskOrder(q) + paginate(&a, q.Limit, q.Offset)
	rows, err := r.db.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListByManager returns the tasks assigned to managerID matching q, each
// carrying its account's type.
func (r *TaskRepository) ListByManager(ctx context.Context, managerID int, q types.TaskQuery) ([]types.Task, error) {
	var a args
	where := conditions{args: &a}
	where.eq("t.assigned_to", managerID)
	applyTaskFilters(&where, q)
	if q.AccountID != nil {
		where.eq("t.account_id", *q.AccountID)
	}

	query := `SELECT ` + taskColumns + `, ma.account_type
		FROM tasks t
		INNER JOIN managed_accounts ma ON t.account_id = ma.id ` +
		where.String() + taskOrder(q) + paginate(&a, q.Limit, q.Offset)
	rows, err := r.db.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0)
	for rows.Next() {
		var task types.Task
		if err := rows.Scan(append(taskScanTargets(&task), &task.AccountType)...); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func applyTaskFilters(where *conditions, q types.TaskQuery) {
	if q.Status != nil {
		where.eq("t.status", *q.Status)
	}
	if q.Priority != nil {
		where.eq("t.priority", *q.Priority)
	}
}

// taskOrder sorts on the stored column value, so priority orders lexically.
func taskOrder(q types.TaskQuery) string {
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY t.%s %s, t.id %s", q.SortColumn(), dir, dir)
}

// CountByAccount returns zero-filled per-status counts for accountID.
func (r *TaskRepository) CountByAccount(ctx context.Context, accountID int) (types.TaskCounts, error) {
	const query = `SELECT status, COUNT(*) FROM tasks WHERE account_id = $1 GROUP BY status`
	return r.count(ctx, query, accountID)
}

// CountByManager returns zero-filled per-status counts for tasks assigned to managerID.
func (r *TaskRepository) CountByManager(ctx context.Context, managerID int) (types.TaskCounts, error) {
	const query = `SELECT status, COUNT(*) FROM tasks WHERE assigned_to = $1 GROUP BY status`
	return r.count(ctx, query, managerID)
}

func (r *TaskRepository) count(ctx context.Context, query string, id int) (types.TaskCounts, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := types.NewTaskCounts()
	for rows.Next() {
		var (
			status types.TaskStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts.Add(status, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
