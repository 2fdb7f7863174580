package types

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Supported task statuses.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskStatuses lists every valid task status in reporting order.
var TaskStatuses = []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskCancelled}

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	default:
		return false
	}
}

// Priority ranks tasks.
type Priority string

// Supported priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Completion bounds.
const (
	MinCompletion = 0.0
	MaxCompletion = 100.0
)

// ValidCompletion reports whether v is an acceptable completion percentage.
func ValidCompletion(v float64) bool {
	return v >= MinCompletion && v <= MaxCompletion
}

// Task represents a unit of work executed against a managed account.
type Task struct {
	// ID is the unique identifier of the task.
	ID int `json:"id" db:"id"`

	// AccountID references the managed account the task belongs to.
	AccountID int `json:"account_id" db:"account_id"`

	// Title is the required, non-blank summary.
	Title string `json:"title" db:"title"`

	// Description is optional free text.
	Description *string `json:"description" db:"description"`

	// Priority ranks the task; defaults to medium.
	Priority Priority `json:"priority" db:"priority"`

	// Status is the lifecycle state, coupled with CompletionStatus.
	Status TaskStatus `json:"status" db:"status"`

	// DueDate is the optional calendar date the task is due.
	DueDate *Date `json:"due_date" db:"due_date"`

	// CreatedBy references the user who created the task.
	CreatedBy int `json:"created_by" db:"created_by"`

	// AssignedTo references the manager executing the task, if any.
	AssignedTo *int `json:"assigned_to" db:"assigned_to"`

	// CompletionStatus is the progress percentage in [0, 100].
	CompletionStatus float64 `json:"completion_status" db:"completion_status"`

	// AccountType is the owning account's type. Only manager listings fill it.
	AccountType string `json:"account_type,omitempty" db:"account_type"`

	// CreatedAt is the timestamp when the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskUpdate is a partial update of a task. Nil fields are left unchanged.
type TaskUpdate struct {
	Title            *string     `json:"title,omitempty"`
	Description      *string     `json:"description,omitempty"`
	Priority         *Priority   `json:"priority,omitempty"`
	Status           *TaskStatus `json:"status,omitempty"`
	DueDate          *Date       `json:"due_date,omitempty"`
	AssignedTo       *int        `json:"assigned_to,omitempty"`
	CompletionStatus *float64    `json:"completion_status,omitempty"`
}

// Empty reports whether the update touches no field.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Priority == nil && u.Status == nil &&
		u.DueDate == nil && u.AssignedTo == nil && u.CompletionStatus == nil
}

// CompletionForStatus returns the completion percentage forced by moving a
// task into status, and whether the move forces one at all.
func CompletionForStatus(status TaskStatus) (float64, bool) {
	switch status {
	case TaskCompleted:
		return MaxCompletion, true
	case TaskCancelled:
		return MinCompletion, true
	default:
		return 0, false
	}
}

// StatusForCompletion returns the status forced by setting a task's
// completion to value while it is in current, and whether one is forced.
func StatusForCompletion(value float64, current TaskStatus) (TaskStatus, bool) {
	if value >= MaxCompletion {
		if current == TaskCompleted {
			return "", false
		}
		return TaskCompleted, true
	}
	if current == TaskCompleted {
		return TaskInProgress, true
	}
	return "", false
}

// Couple folds the status/progress side effects into u, given the task's
// current status. An explicit completed or cancelled status wins over a
// conflicting completion value; otherwise the completion rule is evaluated
// against the status the update leaves behind.
func (u *TaskUpdate) Couple(current TaskStatus) {
	if u.Status != nil {
		if forced, ok := CompletionForStatus(*u.Status); ok {
			u.CompletionStatus = &forced
			return
		}
	}
	if u.CompletionStatus == nil {
		return
	}
	next := current
	if u.Status != nil {
		next = *u.Status
	}
	if forced, ok := StatusForCompletion(*u.CompletionStatus, next); ok {
		u.Status = &forced
	}
}

// TaskCreate carries the fields accepted when creating a task.
type TaskCreate struct {
	AccountID        int        `json:"account_id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	Priority         Priority   `json:"priority,omitempty"`
	Status           TaskStatus `json:"status,omitempty"`
	DueDate          *Date      `json:"due_date,omitempty"`
	AssignedTo       *int       `json:"assigned_to,omitempty"`
	CompletionStatus *float64   `json:"completion_status,omitempty"`
}

// Sort keys accepted by task listings.
const (
	SortByDueDate   = "due_date"
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByPriority  = "priority"
)

// TaskQuery filters, sorts and paginates task listings. Zero values mean
// "no filter", due_date ascending and no limit.
type TaskQuery struct {
	Status    *TaskStatus
	Priority  *Priority
	AccountID *int
	SortBy    string
	SortDesc  bool
	Limit     int
	Offset    int
}

// SortColumn returns the validated sort key, falling back to due_date.
func (q TaskQuery) SortColumn() string {
	switch q.SortBy {
	case SortByDueDate, SortByCreatedAt, SortByUpdatedAt, SortByPriority:
		return q.SortBy
	default:
		return SortByDueDate
	}
}

// TaskCounts maps each task status to its number of tasks, plus "total".
type TaskCounts map[string]int

// NewTaskCounts returns a zero-filled TaskCounts.
func NewTaskCounts() TaskCounts {
	counts := TaskCounts{"total": 0}
	for _, status := range TaskStatuses {
		counts[string(status)] = 0
	}
	return counts
}

// Add records n tasks in status.
func (c TaskCounts) Add(status TaskStatus, n int) {
	c[string(status)] += n
	c["total"] += n
}
