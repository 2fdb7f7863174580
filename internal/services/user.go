package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/internal/store"
	"github.com/steward-platform/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id int, changes types.UserChanges) (types.User, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, filter types.UserFilter) ([]types.User, error)
	ManagesAccounts(ctx context.Context, id int) (bool, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo     UserRepository
	logger   *slog.Logger
	hashCost int
}

func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

// Registration is the public sign-up request.
type Registration struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     types.Role `json:"role,omitempty"`
}

// Register creates a pending user. The role defaults to owner; admins cannot
// be self-registered.
func (s *UserService) Register(ctx context.Context, reg Registration) (types.User, error) {
	if reg.Role == "" {
		reg.Role = types.RoleOwner
	}
	if reg.Role == types.RoleAdmin {
		return types.User{}, apperr.Validation("Admin accounts cannot be self-registered")
	}
	user, err := s.Create(ctx, reg.Email, reg.Password, reg.Role, types.UserPending)
	if err != nil {
		return types.User{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Create validates and stores a user with the given role and status.
func (s *UserService) Create(ctx context.Context, email, password string, role types.Role, status types.UserStatus) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.User{}, apperr.Validation("Please provide email and password")
	}
	if !validEmail(email) {
		return types.User{}, apperr.Validation("Please provide a valid email address")
	}
	if len(password) < MinPasswordLength {
		return types.User{}, apperr.Validation("Password must be at least %d characters long", MinPasswordLength)
	}
	if !role.Valid() {
		return types.User{}, apperr.Validation("Invalid role. Must be owner, manager, or admin")
	}
	if !status.Valid() {
		return types.User{}, apperr.Validation("Invalid status. Must be active, pending, or suspended")
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, apperr.Conflict("User with this email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, apperr.Persistence("check user email", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return types.User{}, err
	}
	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return types.User{}, apperr.Conflict("User with this email already exists")
	}
	return user, translate("create user", "User not found", err)
}

// Login verifies credentials. A wrong password and a non-active account are
// both reported as 401.
func (s *UserService) Login(ctx context.Context, email, password string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.User{}, apperr.Validation("Please provide email and password")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.Unauthenticated("Invalid email or password")
		}
		return types.User{}, apperr.Persistence("load user", err)
	}
	if !VerifyPassword(password, user.PasswordHash) {
		s.logger.Warn("failed login attempt", "user_id", user.ID)
		return types.User{}, apperr.Unauthenticated("Invalid email or password")
	}
	if user.Status != types.UserActive {
		s.logger.Warn("inactive user attempted to login", "user_id", user.ID, "status", user.Status)
		return types.User{}, apperr.Unauthenticated("Your account is not active. Please contact an administrator.")
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	return user, translate("load user", "User not found", err)
}

// GetByEmail returns the user including its password hash. Internal use only.
func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	return user, translate("load user", "User not found", err)
}

// UpdateSelf lets a user change their own email or password.
func (s *UserService) UpdateSelf(ctx context.Context, actor policy.Actor, update types.UserUpdate) (types.User, error) {
	if update.Role != nil {
		return types.User{}, apperr.Validation("You cannot update your role")
	}
	if update.Status != nil {
		return types.User{}, apperr.Validation("You cannot update your status")
	}
	return s.update(ctx, actor.ID, update)
}

// List returns users matching filter. Admin only.
func (s *UserService) List(ctx context.Context, actor policy.Actor, filter types.UserFilter) ([]types.User, error) {
	if !policy.CanManageUsers(actor) {
		return nil, apperr.Forbidden("Access denied. Not authorized.")
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, apperr.Validation("Invalid role. Must be owner, manager, or admin")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperr.Validation("Invalid status. Must be active, pending, or suspended")
	}
	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence("list users", err)
	}
	return users, nil
}

// Get returns any user. Admin only.
func (s *UserService) Get(ctx context.Context, actor policy.Actor, id int) (types.User, error) {
	if !policy.CanManageUsers(actor) {
		return types.User{}, apperr.Forbidden("Access denied. Not authorized.")
	}
	return s.GetByID(ctx, id)
}

// Update changes any field of any user. Admin only.
func (s *UserService) Update(ctx context.Context, actor policy.Actor, id int, update types.UserUpdate) (types.User, error) {
	if !policy.CanManageUsers(actor) {
		return types.User{}, apperr.Forbidden("Access denied. Not authorized.")
	}
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	// An account's manager_id must keep pointing at a manager or admin.
	if update.Role != nil && *update.Role == types.RoleOwner && current.Role != types.RoleOwner {
		manages, err := s.repo.ManagesAccounts(ctx, id)
		if err != nil {
			return types.User{}, apperr.Persistence("check managed accounts", err)
		}
		if manages {
			return types.User{}, apperr.Conflict("User still manages accounts. Reassign them before changing the role to owner")
		}
	}
	user, err := s.update(ctx, id, update)
	if err != nil {
		return types.User{}, err
	}
	s.logger.Info("admin updated user", "admin_id", actor.ID, "user_id", id)
	return user, nil
}

// Delete permanently removes a user. Admin only, and never the caller.
func (s *UserService) Delete(ctx context.Context, actor policy.Actor, id int) error {
	if !policy.CanManageUsers(actor) {
		return apperr.Forbidden("Access denied. Not authorized.")
	}
	if id == actor.ID {
		return apperr.Validation("You cannot delete your own account")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate("delete user", "User not found", err)
	}
	s.logger.Info("admin deleted user", "admin_id", actor.ID, "user_id", id)
	return nil
}

func (s *UserService) update(ctx context.Context, id int, update types.UserUpdate) (types.User, error) {
	if update.Empty() {
		return types.User{}, apperr.Validation("No data to update")
	}

	var changes types.UserChanges
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if !validEmail(email) {
			return types.User{}, apperr.Validation("Please provide a valid email address")
		}
		if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing.ID != id {
			return types.User{}, apperr.Conflict("Email is already in use")
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.Persistence("check user email", err)
		}
		changes.Email = &email
	}
	if update.Password != nil {
		if len(*update.Password) < MinPasswordLength {
			return types.User{}, apperr.Validation("Password must be at least %d characters long", MinPasswordLength)
		}
		hash, err := s.hash(*update.Password)
		if err != nil {
			return types.User{}, err
		}
		changes.PasswordHash = &hash
	}
	if update.Role != nil {
		if !update.Role.Valid() {
			return types.User{}, apperr.Validation("Invalid role. Must be owner, manager, or admin")
		}
		changes.Role = update.Role
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return types.User{}, apperr.Validation("Invalid status. Must be active, pending, or suspended")
		}
		changes.Status = update.Status
	}

	user, err := s.repo.Update(ctx, id, changes)
	return user, translate("update user", "User not found", err)
}

func (s *UserService) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperr.Validation("Password must be at most 72 bytes long")
	}
	if err != nil {
		return "", apperr.Persistence("hash password", err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches the bcrypt hash.
func VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
