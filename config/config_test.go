package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GAME_SERVICE_TOKEN", "tok")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "5200" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.DatabaseURL != "minigame.db" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.StaleSweepInterval != time.Minute {
		t.Fatalf("StaleSweepInterval = %v", cfg.StaleSweepInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.ArchiveEnabled() {
		t.Fatalf("archive should be disabled without R2 settings")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"postgres without url", Config{DatabaseDriver: "postgres", ServiceToken: "x"}, true},
		{"unknown driver", Config{DatabaseDriver: "mysql", DatabaseURL: "x", ServiceToken: "x"}, true},
		{"missing token", Config{DatabaseDriver: "sqlite"}, true},
		{"ok", Config{DatabaseDriver: "Postgres", DatabaseURL: "postgres://", ServiceToken: "x"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
