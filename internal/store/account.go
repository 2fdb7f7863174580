package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/steward-platform/apiserver/types"
)

// List projections never select the credentials column.
const (
	accountColumns = `id, owner_id, manager_id, account_type, credentials, status, management_instructions, created_at, updated_at`
	accountSummary = `id, owner_id, manager_id, account_type, status, management_instructions, created_at, updated_at`
)

// AccountRepository handles persistence for managed accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row rowScanner) (types.ManagedAccount, error) {
	var (
		account     types.ManagedAccount
		managerID   sql.NullInt64
		credentials sql.NullString
	)
	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&managerID,
		&account.AccountType,
		&credentials,
		&account.Status,
		&account.ManagementInstructions,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	account.ManagerID = nullableInt(managerID)
	if credentials.Valid {
		account.EncryptedCredentials = &credentials.String
	}
	return account, nil
}

func scanAccountSummary(row rowScanner) (types.ManagedAccount, error) {
	var (
		account   types.ManagedAccount
		managerID sql.NullInt64
	)
	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&managerID,
		&account.AccountType,
		&account.Status,
		&account.ManagementInstructions,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	account.ManagerID = nullableInt(managerID)
	return account, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	id := int(v.Int64)
	return &id
}

func (r *AccountRepository) Create(ctx context.Context, account types.ManagedAccount) (types.ManagedAccount, error) {
	const query = `
		INSERT INTO managed_accounts (owner_id, manager_id, account_type, credentials, status, management_instructions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns
	created, err := scanAccount(r.db.QueryRowContext(
		ctx,
		query,
		account.OwnerID,
		account.ManagerID,
		account.AccountType,
		account.EncryptedCredentials,
		account.Status,
		account.ManagementInstructions,
	))
	if err != nil {
		return types.ManagedAccount{}, err
	}
	return created, nil
}

// GetByID returns the account including its encrypted credentials.
func (r *AccountRepository) GetByID(ctx context.Context, id int) (types.ManagedAccount, error) {
	const query = `SELECT ` + accountColumns + ` FROM managed_accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ManagedAccount{}, ErrNotFound
		}
		return types.ManagedAccount{}, err
	}
	return account, nil
}

// Update applies the non-nil fields of changes and re-stamps updated_at.
func (r *AccountRepository) Update(ctx context.Context, id int, changes types.AccountChanges) (types.ManagedAccount, error) {
	var a args
	set := assignments{args: &a}
	if changes.AccountType != nil {
		set.set("account_type", *changes.AccountType)
	}
	if changes.EncryptedCredentials != nil {
		set.set("credentials", *changes.EncryptedCredentials)
	}
	if changes.Status != nil {
		set.set("status", *changes.Status)
	}
	if changes.ManagementInstructions != nil {
		set.set("management_instructions", *changes.ManagementInstructions)
	}
	if changes.ClearManager {
		set.setRaw("manager_id = NULL")
	} else if changes.ManagerID != nil {
		set.set("manager_id", *changes.ManagerID)
	}
	set.setRaw("updated_at = NOW()")

	query := `UPDATE managed_accounts SET ` + set.String() + ` WHERE id = ` + a.add(id) + ` RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, a...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ManagedAccount{}, ErrNotFound
		}
		return types.ManagedAccount{}, err
	}
	return account, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM managed_accounts WHERE id = $1`
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

// ListByOwner returns the credential-free projection of every account owned by ownerID.
func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID int) ([]types.ManagedAccount, error) {
	const query = `SELECT ` + accountSummary + ` FROM managed_accounts WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	return r.listSummaries(ctx, query, ownerID)
}

// ListByManager returns the credential-free projection of every account managed by managerID.
func (r *AccountRepository) ListByManager(ctx context.Context, managerID int) ([]types.ManagedAccount, error) {
	const query = `SELECT ` + accountSummary + ` FROM managed_accounts WHERE manager_id = $1 ORDER BY created_at DESC, id DESC`
	return r.listSummaries(ctx, query, managerID)
}

// List returns the credential-free projection of accounts matching filter.
func (r *AccountRepository) List(ctx context.Context, filter types.AccountFilter) ([]types.ManagedAccount, error) {
	var a args
	where := conditions{args: &a}
	if filter.Status != nil {
		where.eq("status", *filter.Status)
	}
	if filter.AccountType != nil {
		where.eq("account_type", *filter.AccountType)
	}
	query := `SELECT ` + accountSummary + ` FROM managed_accounts ` + where.String() +
		` ORDER BY created_at DESC, id DESC` + paginate(&a, filter.Limit, filter.Offset)
	return r.listSummaries(ctx, query, a...)
}

func (r *AccountRepository) listSummaries(ctx context.Context, query string, queryArgs ...any) ([]types.ManagedAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]types.ManagedAccount, 0)
	for rows.Next() {
		account, err := scanAccountSummary(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}
