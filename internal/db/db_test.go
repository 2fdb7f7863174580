package db

import (
	"net/url"
	"testing"

	"github.com/steward-platform/apiserver/config"
)

func TestDSN(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "steward",
		Password: "p@ss word",
		DBName:   "steward_db",
		UseSSL:   true,
	}}

	u, err := url.Parse(DSN(cfg))
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if u.Host != "db.internal:5433" || u.Path != "/steward_db" {
		t.Fatalf("unexpected dsn: %s", u)
	}
	if pw, _ := u.User.Password(); pw != "p@ss word" {
		t.Fatalf("password = %q", pw)
	}
	if got := u.Query().Get("sslmode"); got != "require" {
		t.Fatalf("sslmode = %q, want require", got)
	}
}
