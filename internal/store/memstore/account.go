package memstore

import (
	"context"
	"sort"

	"github.com/steward-platform/apiserver/internal/store"
	"github.com/steward-platform/apiserver/types"
)

// AccountStore is the in-memory managed-account repository.
type AccountStore struct {
	s *Store
}

func cloneAccount(account types.ManagedAccount) types.ManagedAccount {
	account.ManagerID = cloneInt(account.ManagerID)
	account.EncryptedCredentials = cloneString(account.EncryptedCredentials)
	account.Credentials = nil
	return account
}

func summarize(account types.ManagedAccount) types.ManagedAccount {
	account = cloneAccount(account)
	account.EncryptedCredentials = nil
	return account
}

func (r *AccountStore) Create(_ context.Context, account types.ManagedAccount) (types.ManagedAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextAccount++
	now := r.s.now()
	account = cloneAccount(account)
	account.ID = r.s.nextAccount
	account.CreatedAt = now
	account.UpdatedAt = now
	r.s.accounts[account.ID] = account
	return cloneAccount(account), nil
}

func (r *AccountStore) GetByID(_ context.Context, id int) (types.ManagedAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return types.ManagedAccount{}, store.ErrNotFound
	}
	return cloneAccount(account), nil
}

func (r *AccountStore) Update(_ context.Context, id int, changes types.AccountChanges) (types.ManagedAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return types.ManagedAccount{}, store.ErrNotFound
	}
	if changes.AccountType != nil {
		account.AccountType = *changes.AccountType
	}
	if changes.EncryptedCredentials != nil {
		account.EncryptedCredentials = cloneString(changes.EncryptedCredentials)
	}
	if changes.Status != nil {
		account.Status = *changes.Status
	}
	if changes.ManagementInstructions != nil {
		account.ManagementInstructions = *changes.ManagementInstructions
	}
	if changes.ClearManager {
		account.ManagerID = nil
	} else if changes.ManagerID != nil {
		account.ManagerID = cloneInt(changes.ManagerID)
	}
	account.UpdatedAt = r.s.now()
	r.s.accounts[id] = account
	return cloneAccount(account), nil
}

func (r *AccountStore) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[id]; !ok {
		return store.ErrNotFound
	}
	r.s.deleteAccount(id)
	return nil
}

func (r *AccountStore) ListByOwner(_ context.Context, ownerID int) ([]types.ManagedAccount, error) {
	return r.list(func(a types.ManagedAccount) bool { return a.OwnerID == ownerID }, 0, 0), nil
}

func (r *AccountStore) ListByManager(_ context.Context, managerID int) ([]types.ManagedAccount, error) {
	return r.list(func(a types.ManagedAccount) bool {
		return a.ManagerID != nil && *a.ManagerID == managerID
	}, 0, 0), nil
}

func (r *AccountStore) List(_ context.Context, filter types.AccountFilter) ([]types.ManagedAccount, error) {
	return r.list(func(a types.ManagedAccount) bool {
		if filter.Status != nil && a.Status != *filter.Status {
			return false
		}
		if filter.AccountType != nil && a.AccountType != *filter.AccountType {
			return false
		}
		return true
	}, filter.Limit, filter.Offset), nil
}

func (r *AccountStore) list(match func(types.ManagedAccount) bool, limit, offset int) []types.ManagedAccount {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	accounts := make([]types.ManagedAccount, 0)
	for _, account := range r.s.accounts {
		if match(account) {
			accounts = append(accounts, summarize(account))
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
		}
		return accounts[i].ID > accounts[j].ID
	})
	return paginate(accounts, limit, offset)
}

func (s *Store) deleteAccount(id int) {
	delete(s.accounts, id)
	for taskID, task := range s.tasks {
		if task.AccountID == id {
			delete(s.tasks, taskID)
		}
	}
}
