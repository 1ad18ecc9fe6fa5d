package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN      string   `env:"DATABASE_DSN,required=true"`
	RedisURL         string   `env:"REDIS_URL,required=true"`
	SecretKey        string   `env:"SECRET_KEY,required=true"`
	LegacySecretKeys []string `env:"LEGACY_SECRET_KEYS"`

	AWSRegion                   string   `env:"AWS_REGION,default=us-east-1"`
	SESSource                   string   `env:"SES_SOURCE_EMAIL,required=true"`
	PinpointOriginationIdentity string   `env:"PINPOINT_ORIGINATION_IDENTITY"`
	ShortcodeTemplateIDs        []string `env:"SHORTCODE_TEMPLATE_IDS"`

	PrintEndpoint string `env:"PRINT_ENDPOINT,required=true"`
	PrintAPIKey   string `env:"PRINT_API_KEY"`

	RateLimitPerSec      int `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency    int `env:"WORKER_CONCURRENCY,default=16"`
	VisibilityTimeoutSec int `env:"VISIBILITY_TIMEOUT_SEC,default=300"`
	RetryScanIntervalSec int `env:"RETRY_SCAN_INTERVAL_SEC,default=5"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
