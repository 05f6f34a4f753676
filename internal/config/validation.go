package config

import (
	"fmt"

	"github.com/link-makers/linkgen/pkg/models"
)

func validate(c *Config) error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.BatchCap <= 0 {
		return fmt.Errorf("batch cap must be > 0")
	}
	if c.FormTimeout <= 0 || c.LoginTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}
	if c.SettleBudget <= 0 {
		return fmt.Errorf("settle budget must be > 0")
	}
	if c.SessionMaxAge <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("session lifecycle intervals must be > 0")
	}
	switch c.ResetStrategy {
	case models.ResetReload, models.ResetButton, models.ResetNone:
	default:
		return fmt.Errorf("unknown reset strategy %q", c.ResetStrategy)
	}
	return nil
}
