package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/cipher"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/types"
)

// AccountRepository defines persistence operations for managed accounts.
type AccountRepository interface {
	Create(ctx context.Context, account types.ManagedAccount) (types.ManagedAccount, error)
	GetByID(ctx context.Context, id int) (types.ManagedAccount, error)
	Update(ctx context.Context, id int, changes types.AccountChanges) (types.ManagedAccount, error)
	Delete(ctx context.Context, id int) error
	ListByOwner(ctx context.Context, ownerID int) ([]types.ManagedAccount, error)
	ListByManager(ctx context.Context, managerID int) ([]types.ManagedAccount, error)
	List(ctx context.Context, filter types.AccountFilter) ([]types.ManagedAccount, error)
}

// UserLookup resolves users referenced by other entities.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// AccountService encapsulates managed-account use-cases: credential
// encryption, authorization and status notifications.
type AccountService struct {
	repo     AccountRepository
	users    UserLookup
	cipher   *cipher.Cipher
	notifier Notifier
	logger   *slog.Logger
}

func NewAccountService(repo AccountRepository, users UserLookup, c *cipher.Cipher, notifier Notifier, logger *slog.Logger) *AccountService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &AccountService{repo: repo, users: users, cipher: c, notifier: notifier, logger: logger}
}

// Submission is the request to put an account under management.
type Submission struct {
	AccountType            string `json:"account_type"`
	Credentials            any    `json:"credentials,omitempty"`
	ManagementInstructions string `json:"management_instructions,omitempty"`
}

// Submit stores a new pending account owned by actor.
func (s *AccountService) Submit(ctx context.Context, actor policy.Actor, sub Submission) (types.ManagedAccount, error) {
	if !policy.CanSubmitAccount(actor) {
		return types.ManagedAccount{}, apperr.Forbidden("Access denied. Not authorized.")
	}
	accountType := strings.TrimSpace(sub.AccountType)
	if accountType == "" {
		return types.ManagedAccount{}, apperr.Validation("Please provide account type")
	}
	credentials := sub.Credentials
	if credentials == nil {
		credentials = map[string]any{}
	}
	blob, err := s.encrypt(credentials)
	if err != nil {
		return types.ManagedAccount{}, err
	}

	account, err := s.repo.Create(ctx, types.ManagedAccount{
		OwnerID:                actor.ID,
		AccountType:            accountType,
		EncryptedCredentials:   &blob,
		Status:                 types.AccountPending,
		ManagementInstructions: sub.ManagementInstructions,
	})
	if err != nil {
		return types.ManagedAccount{}, apperr.Persistence("create account", err)
	}
	s.logger.Info("account submitted", "account_id", account.ID, "owner_id", actor.ID, "account_type", accountType)
	return s.reveal(account), nil
}

// Get returns a single account with decrypted credentials.
func (s *AccountService) Get(ctx context.Context, actor policy.Actor, id int) (types.ManagedAccount, error) {
	account, err := s.load(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	if !policy.CanReadAccount(actor, policy.AccountRefOf(account)) {
		s.logger.Warn("unauthorized account access", "user_id", actor.ID, "account_id", id)
		return types.ManagedAccount{}, apperr.Forbidden("You are not authorized to access this account")
	}
	return s.reveal(account), nil
}

// Update applies a partial update. Status and manager changes are checked
// against their own, stricter rules.
func (s *AccountService) Update(ctx context.Context, actor policy.Actor, id int, update types.AccountUpdate) (types.ManagedAccount, error) {
	if update.Empty() {
		return types.ManagedAccount{}, apperr.Validation("No data to update")
	}
	account, err := s.load(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	ref := policy.AccountRefOf(account)
	if !policy.CanWriteAccount(actor, ref) {
		s.logger.Warn("unauthorized account update", "user_id", actor.ID, "account_id", id)
		return types.ManagedAccount{}, apperr.Forbidden("You are not authorized to update this account")
	}

	var changes types.AccountChanges
	if update.AccountType != nil {
		accountType := strings.TrimSpace(*update.AccountType)
		if accountType == "" {
			return types.ManagedAccount{}, apperr.Validation("Please provide account type")
		}
		changes.AccountType = &accountType
	}
	if update.Status != nil {
		if err := s.checkStatus(actor, ref, *update.Status); err != nil {
			return types.ManagedAccount{}, err
		}
		changes.Status = update.Status
	}
	if update.ManagerID != nil {
		if err := s.checkManager(ctx, actor, ref, *update.ManagerID); err != nil {
			return types.ManagedAccount{}, err
		}
		changes.ManagerID = update.ManagerID
	}
	if update.ManagementInstructions != nil {
		changes.ManagementInstructions = update.ManagementInstructions
	}
	if update.Credentials != nil {
		blob, err := s.encrypt(update.Credentials)
		if err != nil {
			return types.ManagedAccount{}, err
		}
		changes.EncryptedCredentials = &blob
	}

	updated, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		return types.ManagedAccount{}, translate("update account", "Account not found", err)
	}
	s.logger.Info("account updated", "account_id", id, "user_id", actor.ID)
	if update.Status != nil && *update.Status != account.Status {
		s.announceStatus(actor, updated)
	}
	return s.reveal(updated), nil
}

// Delete removes an account and its tasks.
func (s *AccountService) Delete(ctx context.Context, actor policy.Actor, id int) error {
	account, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !policy.CanWriteAccount(actor, policy.AccountRefOf(account)) {
		return apperr.Forbidden("You are not authorized to delete this account")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate("delete account", "Account not found", err)
	}
	s.logger.Info("account deleted", "account_id", id, "user_id", actor.ID)
	return nil
}

// ListOwned returns the credential-free accounts owned by actor.
func (s *AccountService) ListOwned(ctx context.Context, actor policy.Actor) ([]types.ManagedAccount, error) {
	accounts, err := s.repo.ListByOwner(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Persistence("list owner accounts", err)
	}
	return accounts, nil
}

// ListManaged returns the credential-free accounts actor manages.
func (s *AccountService) ListManaged(ctx context.Context, actor policy.Actor) ([]types.ManagedAccount, error) {
	if !policy.CanListManagedAccounts(actor) {
		return nil, apperr.Forbidden("You are not authorized to access this resource")
	}
	accounts, err := s.repo.ListByManager(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Persistence("list manager accounts", err)
	}
	return accounts, nil
}

// List returns every credential-free account matching filter. Admin only.
func (s *AccountService) List(ctx context.Context, actor policy.Actor, filter types.AccountFilter) ([]types.ManagedAccount, error) {
	if !policy.CanListAllAccounts(actor) {
		return nil, apperr.Forbidden("Access denied. Not authorized.")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperr.Validation("Invalid status. Must be one of: pending, active, suspended, completed")
	}
	accounts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence("list accounts", err)
	}
	return accounts, nil
}

// UpdateStatus moves an account to status. Only admins may activate.
func (s *AccountService) UpdateStatus(ctx context.Context, actor policy.Actor, id int, status types.AccountStatus) (types.ManagedAccount, error) {
	if !status.Valid() {
		return types.ManagedAccount{}, apperr.Validation("Invalid status. Must be one of: pending, active, suspended, completed")
	}
	account, err := s.load(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	if err := s.checkStatus(actor, policy.AccountRefOf(account), status); err != nil {
		return types.ManagedAccount{}, err
	}

	updated, err := s.repo.Update(ctx, id, types.AccountChanges{Status: &status})
	if err != nil {
		return types.ManagedAccount{}, translate("update account status", "Account not found", err)
	}
	s.logger.Info("account status updated", "account_id", id, "status", status, "user_id", actor.ID)
	s.announceStatus(actor, updated)
	return s.reveal(updated), nil
}

// AssignManager sets the account's manager. The target must be a manager or admin.
func (s *AccountService) AssignManager(ctx context.Context, actor policy.Actor, id, managerID int) (types.ManagedAccount, error) {
	if managerID <= 0 {
		return types.ManagedAccount{}, apperr.Validation("Please provide a manager ID")
	}
	account, err := s.load(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	if err := s.checkManager(ctx, actor, policy.AccountRefOf(account), managerID); err != nil {
		return types.ManagedAccount{}, err
	}

	updated, err := s.repo.Update(ctx, id, types.AccountChanges{ManagerID: &managerID})
	if err != nil {
		return types.ManagedAccount{}, translate("assign account manager", "Account not found", err)
	}
	s.logger.Info("manager assigned", "account_id", id, "manager_id", managerID, "user_id", actor.ID)
	return s.reveal(updated), nil
}

// UnassignManager clears the account's manager.
func (s *AccountService) UnassignManager(ctx context.Context, actor policy.Actor, id int) (types.ManagedAccount, error) {
	account, err := s.load(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	if !policy.CanAssignAccountManager(actor, policy.AccountRefOf(account)) {
		return types.ManagedAccount{}, apperr.Forbidden("You are not authorized to assign a manager to this account")
	}

	updated, err := s.repo.Update(ctx, id, types.AccountChanges{ClearManager: true})
	if err != nil {
		return types.ManagedAccount{}, translate("unassign account manager", "Account not found", err)
	}
	s.logger.Info("manager unassigned", "account_id", id, "user_id", actor.ID)
	return s.reveal(updated), nil
}

// UpdateInstructions replaces the management instructions.
func (s *AccountService) UpdateInstructions(ctx context.Context, actor policy.Actor, id int, instructions string) (types.ManagedAccount, error) {
	if strings.TrimSpace(instructions) == "" {
		return types.ManagedAccount{}, apperr.Validation("Please provide valid instructions")
	}
	account, err := s.load(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	if !policy.CanWriteAccount(actor, policy.AccountRefOf(account)) {
		return types.ManagedAccount{}, apperr.Forbidden("You are not authorized to update instructions for this account")
	}

	updated, err := s.repo.Update(ctx, id, types.AccountChanges{ManagementInstructions: &instructions})
	if err != nil {
		return types.ManagedAccount{}, translate("update account instructions", "Account not found", err)
	}
	s.logger.Info("instructions updated", "account_id", id, "user_id", actor.ID)
	return s.reveal(updated), nil
}

// Authorize loads the account and checks check against it. Other services
// and the real-time layer use it to scope work to an account.
func (s *AccountService) Authorize(ctx context.Context, id int, check func(policy.AccountRef) bool) (types.ManagedAccount, error) {
	account, err := s.load(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, err
	}
	if !check(policy.AccountRefOf(account)) {
		return types.ManagedAccount{}, apperr.Forbidden("You are not authorized to access this account")
	}
	account.EncryptedCredentials = nil
	return account, nil
}

func (s *AccountService) load(ctx context.Context, id int) (types.ManagedAccount, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.ManagedAccount{}, translate("load account", "Account not found", err)
	}
	return account, nil
}

func (s *AccountService) checkStatus(actor policy.Actor, ref policy.AccountRef, status types.AccountStatus) error {
	if !status.Valid() {
		return apperr.Validation("Invalid status. Must be one of: pending, active, suspended, completed")
	}
	if !policy.CanReadAccount(actor, ref) {
		return apperr.Forbidden("You are not authorized to update this account status")
	}
	if !policy.CanSetAccountStatus(actor, ref, status) {
		return apperr.Forbidden("Only administrators can activate accounts")
	}
	return nil
}

func (s *AccountService) checkManager(ctx context.Context, actor policy.Actor, ref policy.AccountRef, managerID int) error {
	if !policy.CanAssignAccountManager(actor, ref) {
		return apperr.Forbidden("You are not authorized to assign a manager to this account")
	}
	manager, err := s.users.GetByID(ctx, managerID)
	if err != nil {
		return translate("load manager", "Manager not found", err)
	}
	if !policy.IsAssignableManager(manager.Role) {
		return apperr.Validation("The user you are trying to assign is not a manager")
	}
	return nil
}

func (s *AccountService) announceStatus(actor policy.Actor, account types.ManagedAccount) {
	s.notifier.Broadcast(account.ID, types.EventAccountStatusChange, types.AccountStatusPayload{
		AccountID: account.ID,
		Status:    account.Status,
		ChangedBy: actor.ID,
	})
}

func (s *AccountService) encrypt(value any) (string, error) {
	blob, err := s.cipher.Encrypt(value)
	if err != nil {
		return "", apperr.Persistence("encrypt credentials", err)
	}
	return blob, nil
}

// reveal decrypts the stored credentials. A blob that cannot be decrypted is
// logged and rendered as null rather than failing the read.
func (s *AccountService) reveal(account types.ManagedAccount) types.ManagedAccount {
	if account.EncryptedCredentials == nil {
		account.Credentials = &types.Credentials{}
		return account
	}
	value, err := s.cipher.Decrypt(*account.EncryptedCredentials)
	if err != nil {
		s.logger.Error("failed to decrypt account credentials", "account_id", account.ID, "error", err)
		value = nil
	}
	account.Credentials = &types.Credentials{Value: value}
	account.EncryptedCredentials = nil
	return account
}
