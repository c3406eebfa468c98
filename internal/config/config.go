package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
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
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Telegram struct {
		Token   string `yaml:"token"`
		Debug   bool   `yaml:"debug"`
		Timeout int    `yaml:"timeout"`
	} `yaml:"telegram"`
	Catalog struct {
		Dir string `yaml:"dir"`
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Quiz struct {
		DailyLimit        int      `yaml:"daily_limit"`
		BatchSize         int      `yaml:"batch_size"`
		FallbackBatchSize int      `yaml:"fallback_batch_size"`
		PointsPerCorrect  int      `yaml:"points_per_correct"`
		AnswerWindow      string   `yaml:"answer_window"`
		Grace             string   `yaml:"grace"`
		FeedbackDelay     string   `yaml:"feedback_delay"`
		TimezoneOffset    string   `yaml:"timezone_offset"`
		DefaultLanguage   string   `yaml:"default_language"`
		DefaultCategory   string   `yaml:"default_category"`
		Languages         []string `yaml:"languages"`
		Categories        []string `yaml:"categories"`
	} `yaml:"quiz"`
	Leaderboard struct {
		CohortSize int `yaml:"cohort_size"`
	} `yaml:"leaderboard"`
}

// Load reads YAML config from path. TELEGRAM_TOKEN overrides telegram.token.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	return cfg, nil
}

// DurationOr parses a duration string or returns the fallback if empty or
// malformed.
func DurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns v, or fallback when v is not positive.
func IntOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// ParseOffset turns "+05:30" style offsets into a fixed zone. An empty string
// returns nil so callers keep their default.
func ParseOffset(raw string) (*time.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	sign := 1
	switch raw[0] {
	case '+':
		raw = raw[1:]
	case '-':
		sign = -1
		raw = raw[1:]
	}
	hh, mm, found := strings.Cut(raw, ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return nil, fmt.Errorf("invalid timezone offset %q", raw)
	}
	m := 0
	if found {
		if m, err = strconv.Atoi(mm); err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid timezone offset %q", raw)
		}
	}
	offset := sign * (h*3600 + m*60)
	return time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", sign*h, m), offset), nil
}
