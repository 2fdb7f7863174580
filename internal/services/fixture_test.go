package services

import (
	"context"
	"sync"
	"testing"

	"github.com/steward-platform/apiserver/internal/cipher"
	"github.com/steward-platform/apiserver/internal/logging"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/internal/store/memstore"
	"github.com/steward-platform/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type event struct {
	accountID int
	name      string
	payload   any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) Broadcast(accountID int, name string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{accountID: accountID, name: name, payload: payload})
}

func (n *recordingNotifier) last() (event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return event{}, false
	}
	return n.events[len(n.events)-1], true
}

type fixture struct {
	store    *memstore.Store
	notifier *recordingNotifier
	users    *UserService
	accounts *AccountService
	tasks    *TaskService
	cipher   *cipher.Cipher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()
	s := memstore.New()
	n := &recordingNotifier{}
	c := cipher.New("0123456789abcdef0123456789abcdef")
	return &fixture{
		store:    s,
		notifier: n,
		cipher:   c,
		users:    NewUserService(s.Users(), logger).WithHashCost(bcrypt.MinCost),
		accounts: NewAccountService(s.Accounts(), s.Users(), c, n, logger),
		tasks:    NewTaskService(s.Tasks(), s.Accounts(), s.Users(), n, logger),
	}
}

func (f *fixture) user(t *testing.T, email string, role types.Role) policy.Actor {
	t.Helper()
	user, err := f.users.Create(context.Background(), email, "password123", role, types.UserActive)
	if err != nil {
		t.Fatalf("create %s: %v", email, err)
	}
	return policy.Actor{ID: user.ID, Role: user.Role}
}

func (f *fixture) account(t *testing.T, owner policy.Actor, manager *policy.Actor) types.ManagedAccount {
	t.Helper()
	ctx := context.Background()
	account, err := f.accounts.Submit(ctx, owner, Submission{
		AccountType: "shop",
		Credentials: map[string]any{"username": "acme", "password": "hunter22"},
	})
	if err != nil {
		t.Fatalf("submit account: %v", err)
	}
	if manager != nil {
		account, err = f.accounts.AssignManager(ctx, owner, account.ID, manager.ID)
		if err != nil {
			t.Fatalf("assign manager: %v", err)
		}
	}
	return account
}

func strPtr(v string) *string     { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
