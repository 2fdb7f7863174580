package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "secret")

	cfg := LoadConfig()
	if cfg.Database.MaxOpenConns != 10 {
		t.Fatalf("MaxOpenConns = %d, want 10", cfg.Database.MaxOpenConns)
	}
	if cfg.Realtime.Channel != "steward.realtime" {
		t.Fatalf("Channel = %q", cfg.Realtime.Channel)
	}
	if cfg.Dev() {
		t.Fatal("production config reported dev mode")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("DB_MAX_OPEN_CONNS", "4")
	t.Setenv("REALTIME_RELAY", "Redis")

	cfg := LoadConfig()
	if !cfg.Database.UseSSL || cfg.Database.MaxOpenConns != 4 {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Realtime.Relay != "redis" {
		t.Fatalf("Relay = %q, want redis", cfg.Realtime.Relay)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing secret", cfg: Config{}, wantErr: true},
		{name: "unknown relay", cfg: Config{Auth: AuthConfig{JWTSecret: "s"}, Realtime: RealtimeConfig{Relay: "kafka"}}, wantErr: true},
		{name: "pubsub without project", cfg: Config{Auth: AuthConfig{JWTSecret: "s"}, Realtime: RealtimeConfig{Relay: "pubsub"}}, wantErr: true},
		{name: "local fan-out", cfg: Config{Auth: AuthConfig{JWTSecret: "s"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
