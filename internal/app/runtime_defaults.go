package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/refledger/pkg/crypto"
)

const (
	jwtSecretBytes     = 48
	webhookSecretBytes = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	// Only webhook deliveries are authenticated by the shared secret.
	if cfg.Telegram.Enabled() && cfg.Telegram.UsesWebhook() && strings.TrimSpace(cfg.Telegram.WebhookSecret) == "" {
		secret, err := crypto.GenerateToken(webhookSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate webhook secret: %w", err)
		}
		cfg.Telegram.WebhookSecret = secret
		generated["telegram.webhook_secret"] = true
	}

	return generated, nil
}
