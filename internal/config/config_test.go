package config

import (
	"testing"

	"github.com/link-makers/linkgen/pkg/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("port: %d", cfg.Port)
	}
	if cfg.BatchCap != DefaultBatchCap {
		t.Errorf("batch cap: %d", cfg.BatchCap)
	}
	if cfg.FormTimeout != DefaultFormTimeout {
		t.Errorf("form timeout: %v", cfg.FormTimeout)
	}
	if cfg.ResetStrategy != models.ResetButton {
		t.Errorf("reset strategy: %q", cfg.ResetStrategy)
	}
	if !cfg.WarmSession {
		t.Error("warm session must default on")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STOCIP_EMAIL", "user@example.com")
	t.Setenv("STOCIP_PASSWORD", "hunter2")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("LINKGEN_SESSION_MAX_AGE", "30m")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("port: %d", cfg.Port)
	}
	if cfg.Email != "user@example.com" || cfg.Password != "hunter2" {
		t.Error("credentials not read from environment")
	}
	if cfg.Headless {
		t.Error("non-production environment must not force headless")
	}
	if cfg.SessionMaxAge.Minutes() != 30 {
		t.Errorf("session max age: %v", cfg.SessionMaxAge)
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(nil)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"batch cap zero", func(c *Config) { c.BatchCap = 0 }},
		{"no form timeout", func(c *Config) { c.FormTimeout = 0 }},
		{"no settle budget", func(c *Config) { c.SettleBudget = 0 }},
		{"bad reset strategy", func(c *Config) { c.ResetStrategy = models.ResetStrategy("explode") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected validation failure")
			}
		})
	}
}
