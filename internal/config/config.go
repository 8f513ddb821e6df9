package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
		// ResultDelay is how long a result message stays on screen.
		ResultDelay string `yaml:"result_delay"`
		// DeliveryMaxAge evicts queued messages older than this.
		DeliveryMaxAge string `yaml:"delivery_max_age"`
		// CompletionScope is "per_quiz" (default) or "global": whether one
		// finished quiz blocks just that quiz or all of them.
		CompletionScope  string `yaml:"completion_scope"`
		LeaderboardLimit int    `yaml:"leaderboard_limit"`
	} `yaml:"quiz"`
	Admin struct {
		UserIDs []int64 `yaml:"user_ids"`
	} `yaml:"admin"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or
// invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
