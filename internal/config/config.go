// Package config loads environment configuration for hidbridge.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr        = "0.0.0.0:8788"
	defaultDataDir           = "./data"
	defaultStaticDir         = "./web"
	defaultExecutorTimeoutMs = 3000
	defaultSensitivity       = 1.0
	defaultLogLevel          = "info"
	defaultHoldWindowMs      = 400
	defaultClickMaxMs        = 200
	defaultSuppressDelayMs   = 100
)

// FileName is the optional YAML config inside the data dir.
const FileName = "hidbridge.yaml"

// Config holds runtime configuration values.
type Config struct {
	ListenAddr   string
	UIPassword   string
	PasswordMode bool
	DataDir      string
	PrefsPath    string
	StaticDir    string
	LogLevel     string
	ICEServers   []string

	ExecutorURL     string
	ExecutorUser    string
	ExecutorPass    string
	ExecutorTimeout time.Duration

	Sensitivity   float64
	HoldWindow    time.Duration
	ClickMax      time.Duration
	SuppressDelay time.Duration
}

// fileConfig mirrors hidbridge.yaml. Zero values leave defaults alone.
type fileConfig struct {
	ListenAddr string   `yaml:"listen_addr"`
	StaticDir  string   `yaml:"static_dir"`
	LogLevel   string   `yaml:"log_level"`
	ICEServers []string `yaml:"ice_servers"`
	Executor   struct {
		URL       string `yaml:"url"`
		User      string `yaml:"user"`
		Password  string `yaml:"password"`
		TimeoutMs int    `yaml:"timeout_ms"`
	} `yaml:"executor"`
	Sensitivity float64 `yaml:"sensitivity"`
	Gesture     struct {
		HoldWindowMs    int `yaml:"hold_window_ms"`
		ClickMaxMs      int `yaml:"click_max_ms"`
		SuppressDelayMs int `yaml:"suppress_delay_ms"`
	} `yaml:"gesture"`
}

// Load reads configuration from defaults, <data>/.env, <data>/hidbridge.yaml
// and environment variables, later sources winning.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DataDir:         envString("DATA_DIR", defaultDataDir),
		PasswordMode:    true,
		StaticDir:       defaultStaticDir,
		LogLevel:        defaultLogLevel,
		ExecutorTimeout: defaultExecutorTimeoutMs * time.Millisecond,
		Sensitivity:     defaultSensitivity,
		HoldWindow:      defaultHoldWindowMs * time.Millisecond,
		ClickMax:        defaultClickMaxMs * time.Millisecond,
		SuppressDelay:   defaultSuppressDelayMs * time.Millisecond,
	}

	if err := loadEnvFile(filepath.Join(cfg.DataDir, ".env")); err != nil {
		return Config{}, err
	}
	cfg.DataDir = envString("DATA_DIR", cfg.DataDir)

	if err := applyFile(&cfg, filepath.Join(cfg.DataDir, FileName)); err != nil {
		return Config{}, err
	}

	cfg.ListenAddr = envString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.StaticDir = envString("STATIC_DIR", cfg.StaticDir)
	cfg.LogLevel = strings.ToLower(envString("LOG_LEVEL", cfg.LogLevel))
	if v := envString("ICE_SERVERS", ""); v != "" {
		cfg.ICEServers = splitList(v)
	}
	cfg.PrefsPath = envString("PREFS_PATH", filepath.Join(cfg.DataDir, "prefs.yaml"))
	cfg.UIPassword = strings.TrimSpace(os.Getenv("UI_PASSWORD"))
	cfg.PasswordMode = envBool("PASSWORD_MODE", cfg.PasswordMode)

	cfg.ExecutorURL = envString("EXECUTOR_URL", cfg.ExecutorURL)
	cfg.ExecutorUser = envString("EXECUTOR_USER", cfg.ExecutorUser)
	cfg.ExecutorPass = envString("EXECUTOR_PASS", cfg.ExecutorPass)

	timeoutMs, err := envInt("EXECUTOR_TIMEOUT_MS", int(cfg.ExecutorTimeout/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	if timeoutMs <= 0 {
		return Config{}, fmt.Errorf("EXECUTOR_TIMEOUT_MS must be > 0")
	}
	cfg.ExecutorTimeout = time.Duration(timeoutMs) * time.Millisecond

	sensitivity, err := envFloat("SENSITIVITY", cfg.Sensitivity)
	if err != nil {
		return Config{}, err
	}
	if sensitivity <= 0 || math.IsInf(sensitivity, 0) || math.IsNaN(sensitivity) {
		return Config{}, fmt.Errorf("SENSITIVITY must be > 0")
	}
	cfg.Sensitivity = sensitivity

	if cfg.HoldWindow <= 0 || cfg.ClickMax <= 0 || cfg.SuppressDelay <= 0 {
		return Config{}, fmt.Errorf("gesture timings must be > 0")
	}

	if cfg.PasswordMode && cfg.UIPassword == "" {
		return Config{}, errors.New("UI_PASSWORD is required")
	}

	return cfg, nil
}

// applyFile overlays hidbridge.yaml when present.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.StaticDir != "" {
		cfg.StaticDir = fc.StaticDir
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if len(fc.ICEServers) > 0 {
		cfg.ICEServers = fc.ICEServers
	}
	if fc.Executor.URL != "" {
		cfg.ExecutorURL = fc.Executor.URL
	}
	if fc.Executor.User != "" {
		cfg.ExecutorUser = fc.Executor.User
	}
	if fc.Executor.Password != "" {
		cfg.ExecutorPass = fc.Executor.Password
	}
	if fc.Executor.TimeoutMs != 0 {
		cfg.ExecutorTimeout = time.Duration(fc.Executor.TimeoutMs) * time.Millisecond
	}
	if fc.Sensitivity != 0 {
		cfg.Sensitivity = fc.Sensitivity
	}
	if fc.Gesture.HoldWindowMs != 0 {
		cfg.HoldWindow = time.Duration(fc.Gesture.HoldWindowMs) * time.Millisecond
	}
	if fc.Gesture.ClickMaxMs != 0 {
		cfg.ClickMax = time.Duration(fc.Gesture.ClickMaxMs) * time.Millisecond
	}
	if fc.Gesture.SuppressDelayMs != 0 {
		cfg.SuppressDelay = time.Duration(fc.Gesture.SuppressDelayMs) * time.Millisecond
	}
	return nil
}

// splitList splits a comma separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envString returns an env override when present, otherwise a default.
func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt returns an int env override when present, otherwise a default.
func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

// envFloat returns a float env override when present, otherwise a default.
func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return value, nil
}

// envBool returns a bool env override when present, otherwise a default.
func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// loadEnvFile loads KEY=VALUE pairs from a .env file.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}

	return nil
}

// parseEnvLine parses a single .env line into key/value.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	if strings.HasPrefix(line, "export ") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	}
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	key := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])
	if key == "" {
		return "", "", false
	}
	value = strings.Trim(value, `"'`)
	return key, value, true
}
