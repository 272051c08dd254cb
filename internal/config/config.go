package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string        `env:"DATABASE_URL" envDefault:"phasetrack.db"`
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	RefreshSecret   string        `env:"REFRESH_SECRET" envDefault:"your-refresh-secret-change-in-production"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	Port            string        `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AMQPURL string `env:"AMQP_URL"`

	FCMServiceAccount string `env:"FCM_SERVICE_ACCOUNT"`
	StorageBucket     string `env:"STORAGE_BUCKET"`
	UploadDir         string `env:"UPLOAD_DIR" envDefault:"storage"`
	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`

	PhaseSeedFile string `env:"PHASE_SEED_FILE" envDefault:"phases.yaml"`
}

// Load reads an optional .env file and then parses the environment.
// Variables already present in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL < cfg.AccessTokenTTL {
		return nil, fmt.Errorf("REFRESH_TOKEN_TTL (%s) must not be shorter than ACCESS_TOKEN_TTL (%s)", cfg.RefreshTokenTTL, cfg.AccessTokenTTL)
	}
	return cfg, nil
}

func (c *Config) UsePostgres() bool {
	return len(c.DatabaseURL) >= 8 && c.DatabaseURL[:8] == "postgres"
}
