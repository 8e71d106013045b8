package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type WorkshopSeed struct {
	ID       string `mapstructure:"id"`
	Title    string `mapstructure:"title"`
	HostID   string `mapstructure:"host_id"`
	Capacity int    `mapstructure:"capacity"`
}

type SFUConfig struct {
	AppID          string        `mapstructure:"app_id"`
	AppCertificate string        `mapstructure:"app_certificate"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	IssueRetries   int           `mapstructure:"issue_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	IssueTimeout   time.Duration `mapstructure:"issue_timeout"`
}

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	Secret        string        `mapstructure:"secret"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	IdleLobbyWarn time.Duration `mapstructure:"idle_lobby_warn"`

	SFU       SFUConfig      `mapstructure:"sfu"`
	Workshops []WorkshopSeed `mapstructure:"workshops"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("sweep_interval", "30s")
	v.SetDefault("idle_lobby_warn", "30m")
	v.SetDefault("sfu.app_id", "dev-app")
	v.SetDefault("sfu.token_ttl", "1h")
	v.SetDefault("sfu.issue_retries", 3)
	v.SetDefault("sfu.retry_backoff", "200ms")
	v.SetDefault("sfu.issue_timeout", "15s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Workshops seeded: %d\n", cfg.Mode, cfg.Port, len(cfg.Workshops))
	return &cfg, nil
}
