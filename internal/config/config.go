package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const DefaultWebhookTolerance = 5 * time.Minute

type Config struct {
	ServerAddr       string
	DataFile         string
	DatabaseDSN      string
	SigningKey       []byte
	WebhookSecret    string
	WebhookTolerance time.Duration
	AllowedOrigins   []string
}

// UsePostgres reports whether the Postgres repository replaces the file
// ledger.
func (c *Config) UsePostgres() bool {
	return c.DatabaseDSN != ""
}

// WebhookSigningEnabled is false in the development mode where unsigned
// webhook payloads are trusted.
func (c *Config) WebhookSigningEnabled() bool {
	return c.WebhookSecret != ""
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("decoded key is empty")
	}
	return key, nil
}

func NewConfig(serverAddr, dataFile, databaseDSN, base64Secret, webhookSecret string, webhookTolerance time.Duration, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if dataFile == "" && databaseDSN == "" {
		return nil, fmt.Errorf("either a data file or a database DSN is required")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if webhookTolerance < 0 {
		return nil, fmt.Errorf("webhook tolerance cannot be negative")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:       serverAddr,
		DataFile:         dataFile,
		DatabaseDSN:      databaseDSN,
		SigningKey:       signingKey,
		WebhookSecret:    webhookSecret,
		WebhookTolerance: webhookTolerance,
		AllowedOrigins:   allowedOrigins,
	}, nil
}
