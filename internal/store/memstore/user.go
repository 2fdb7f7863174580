package memstore

import (
	"context"
	"sort"

	"github.com/steward-platform/apiserver/internal/store"
	"github.com/steward-platform/apiserver/types"
)

// UserStore is the in-memory user repository.
type UserStore struct {
	s *Store
}

func (r *UserStore) GetByID(_ context.Context, id int) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserStore) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserStore) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.emailTaken(user.Email, 0) {
		return types.User{}, store.ErrDuplicate
	}
	r.s.nextUser++
	now := r.s.now()
	user.ID = r.s.nextUser
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserStore) Update(_ context.Context, id int, changes types.UserChanges) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if changes.Email != nil {
		if r.s.emailTaken(*changes.Email, id) {
			return types.User{}, store.ErrDuplicate
		}
		user.Email = *changes.Email
	}
	if changes.PasswordHash != nil {
		user.PasswordHash = *changes.PasswordHash
	}
	if changes.Role != nil {
		user.Role = *changes.Role
	}
	if changes.Status != nil {
		user.Status = *changes.Status
	}
	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return user, nil
}

// Delete removes the user and cascades the way the schema's foreign keys do.
func (r *UserStore) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.users, id)
	for accountID, account := range r.s.accounts {
		if account.OwnerID == id {
			r.s.deleteAccount(accountID)
			continue
		}
		if account.ManagerID != nil && *account.ManagerID == id {
			account.ManagerID = nil
			r.s.accounts[accountID] = account
		}
	}
	for taskID, task := range r.s.tasks {
		if task.CreatedBy == id {
			delete(r.s.tasks, taskID)
			continue
		}
		if task.AssignedTo != nil && *task.AssignedTo == id {
			task.AssignedTo = nil
			r.s.tasks[taskID] = task
		}
	}
	return nil
}

func (r *UserStore) List(_ context.Context, filter types.UserFilter) ([]types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	users := make([]types.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && user.Status != *filter.Status {
			continue
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID > users[j].ID
	})
	return paginate(users, filter.Limit, filter.Offset), nil
}

func (s *Store) emailTaken(email string, except int) bool {
	for id, user := range s.users {
		if id != except && user.Email == email {
			return true
		}
	}
	return false
}

func (r *UserStore) ManagesAccounts(_ context.Context, id int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, account := range r.s.accounts {
		if account.ManagerID != nil && *account.ManagerID == id {
			return true, nil
		}
	}
	return false, nil
}
