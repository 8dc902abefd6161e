package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// WhatsApp credentials
	if c.WhatsApp.VerifyToken == "" {
		errs = append(errs, "WHATSAPP_VERIFY_TOKEN is required")
	}
	if c.WhatsApp.AccessToken == "" {
		errs = append(errs, "WHATSAPP_ACCESS_TOKEN is required")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		errs = append(errs, "WHATSAPP_PHONE_NUMBER_ID is required")
	}
	if c.WhatsApp.AppSecret == "" {
		slog.Warn("WHATSAPP_APP_SECRET is empty, webhook signatures will not be verified")
	}

	// LLM credentials
	if c.LLM.APIKey == "" {
		errs = append(errs, "LLM_API_KEY is required")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
