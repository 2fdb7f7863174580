//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/steward-platform/apiserver/config"
	"github.com/steward-platform/apiserver/internal/db"
	"github.com/steward-platform/apiserver/internal/logging"
	"github.com/steward-platform/apiserver/internal/server"
)

const (
	serverPort = 18080
	password   = "testpass123!"
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srvCtx, stopServer := context.WithCancel(context.Background())
	done, err := startServer(srvCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		stopServer()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		stopServer()
		<-done
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	stopServer()
	<-done
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountAndTaskLifecycle(t *testing.T) {
	suffix := time.Now().UnixNano()
	adminEmail := fmt.Sprintf("admin_%d@example.com", suffix)
	ownerEmail := fmt.Sprintf("owner_%d@example.com", suffix)
	managerEmail := fmt.Sprintf("manager_%d@example.com", suffix)

	var registered struct {
		User struct {
			ID int `json:"id"`
		} `json:"user"`
	}
	request(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": adminEmail, "password": password}, http.StatusCreated, nil)
	if err := promoteUserToAdmin(adminEmail); err != nil {
		t.Fatalf("promote user: %v", err)
	}
	adminToken := login(t, adminEmail)

	request(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": ownerEmail, "password": password}, http.StatusCreated, &registered)
	ownerID := registered.User.ID
	request(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": managerEmail, "password": password, "role": "manager"}, http.StatusCreated, &registered)
	managerID := registered.User.ID

	// Pending users cannot log in.
	request(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": ownerEmail, "password": password}, http.StatusUnauthorized, nil)
	for _, id := range []int{ownerID, managerID} {
		request(t, http.MethodPut, fmt.Sprintf("/api/auth/users/%d", id), adminToken, map[string]string{"status": "active"}, http.StatusOK, nil)
	}
	ownerToken := login(t, ownerEmail)
	managerToken := login(t, managerEmail)

	var account struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	}
	request(t, http.MethodPost, "/api/accounts/submit", ownerToken, map[string]any{
		"account_type": "marketplace",
		"credentials":  map[string]string{"username": "acme", "password": "hunter22"},
	}, http.StatusCreated, &account)
	if account.Status != "pending" {
		t.Fatalf("unexpected account status %q", account.Status)
	}

	stored, err := storedCredentials(account.ID)
	if err != nil {
		t.Fatalf("read stored credentials: %v", err)
	}
	if stored == "" || strings.Contains(stored, "hunter22") {
		t.Fatalf("credentials stored in clear: %q", stored)
	}

	accountPath := fmt.Sprintf("/api/accounts/%d", account.ID)
	request(t, http.MethodPost, accountPath+"/manager", ownerToken, map[string]int{"manager_id": managerID}, http.StatusOK, nil)
	request(t, http.MethodPut, accountPath+"/status", ownerToken, map[string]string{"status": "active"}, http.StatusForbidden, nil)
	request(t, http.MethodPut, accountPath+"/status", adminToken, map[string]string{"status": "active"}, http.StatusOK, nil)

	var task struct {
		ID               int     `json:"id"`
		Status           string  `json:"status"`
		AssignedTo       *int    `json:"assigned_to"`
		CompletionStatus float64 `json:"completion_status"`
		DueDate          *string `json:"due_date"`
	}
	request(t, http.MethodPost, "/api/tasks", managerToken, map[string]any{
		"account_id": account.ID,
		"title":      "Refresh listings",
		"due_date":   "2026-12-01",
	}, http.StatusCreated, &task)
	if task.AssignedTo == nil || *task.AssignedTo != managerID {
		t.Fatalf("task not assigned to account manager: %+v", task)
	}
	if task.DueDate == nil || *task.DueDate != "2026-12-01" {
		t.Fatalf("unexpected due date: %v", task.DueDate)
	}

	taskPath := fmt.Sprintf("/api/tasks/%d", task.ID)
	request(t, http.MethodPut, taskPath+"/progress", managerToken, map[string]float64{"progress": 100}, http.StatusOK, &task)
	if task.Status != "completed" {
		t.Fatalf("progress 100 left status %q", task.Status)
	}
	request(t, http.MethodPut, taskPath+"/status", managerToken, map[string]string{"status": "in-progress"}, http.StatusOK, &task)
	if task.CompletionStatus != 100 {
		t.Fatalf("in-progress changed completion to %v", task.CompletionStatus)
	}
	request(t, http.MethodPut, taskPath+"/progress", managerToken, map[string]float64{"progress": 101}, http.StatusBadRequest, nil)

	request(t, http.MethodDelete, accountPath, ownerToken, nil, http.StatusOK, nil)
	request(t, http.MethodGet, taskPath, adminToken, nil, http.StatusNotFound, nil)
}

func login(t *testing.T, email string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	request(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password}, http.StatusOK, &resp)
	if resp.Token == "" {
		t.Fatalf("missing token for %s", email)
	}
	return resp.Token
}

// request performs a JSON call and decodes the envelope's data into out.
func request(t *testing.T, method, path, token string, payload any, wantStatus int, out any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, wantStatus, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("%s %s: decode envelope: %v", method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("%s %s: decode data: %v", method, path, err)
	}
}

func openDB() (*sql.DB, error) {
	return sql.Open("postgres", db.DSN(config.LoadConfig()))
}

func promoteUserToAdmin(email string) error {
	conn, err := openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE users SET role = 'admin', status = 'active', updated_at = NOW() WHERE email = $1", email)
	return err
}

func storedCredentials(accountID int) (string, error) {
	conn, err := openDB()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	var blob sql.NullString
	err = conn.QueryRow("SELECT credentials FROM managed_accounts WHERE id = $1", accountID).Scan(&blob)
	return blob.String, err
}

func setEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "steward")
	_ = os.Setenv("DB_PASSWORD", "steward")
	_ = os.Setenv("DB_NAME", "steward")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("REALTIME_RELAY", "redis")
	_ = os.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func waitForPostgres(ctx context.Context) error {
	conn, err := openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")
	migrator, err := migrate.New(migrationsURL, db.DSN(config.LoadConfig()))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer(ctx context.Context) (<-chan struct{}, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(ctx, cfg, logging.New(os.Stderr, "warn"))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "server stopped: %v\n", err)
		}
	}()
	return done, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
