// Package memstore provides in-memory repositories with the same contract as
// the Postgres ones in package store. Entities are copied on the way in and
// out, so callers never share state with the store.
package memstore

import (
	"sync"
	"time"

	"github.com/steward-platform/apiserver/types"
)

// Store holds users, accounts and tasks behind a single lock so that
// cross-entity reads (task listings joining account types) stay consistent.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users    map[int]types.User
	accounts map[int]types.ManagedAccount
	tasks    map[int]types.Task

	nextUser    int
	nextAccount int
	nextTask    int

	// FailFollowUp makes the coupled follow-up write of UpdateStatus and
	// UpdateProgress fail, leaving the task untouched.
	FailFollowUp bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[int]types.User),
		accounts: make(map[int]types.ManagedAccount),
		tasks:    make(map[int]types.Task),
	}
}

// Users returns the user repository view of s.
func (s *Store) Users() *UserStore { return &UserStore{s: s} }

// Accounts returns the account repository view of s.
func (s *Store) Accounts() *AccountStore { return &AccountStore{s: s} }

// Tasks returns the task repository view of s.
func (s *Store) Tasks() *TaskStore { return &TaskStore{s: s} }

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneDate(v *types.Date) *types.Date {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return items
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}
