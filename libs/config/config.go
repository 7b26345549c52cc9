package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	mu sync.RWMutex
	v  = newViper()
)

func newViper() *viper.Viper {
	vp := viper.New()
	vp.AutomaticEnv()
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return vp
}

// Load merges an optional YAML/JSON/TOML config file underneath the environment.
// Environment variables always win over file values. An empty path is a no-op.
func Load(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	vp := newViper()
	vp.SetConfigFile(path)
	if err := vp.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	mu.Lock()
	v = vp
	mu.Unlock()
	return nil
}

func lookup(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return v.GetString(key)
}

func String(key, fallback string) string {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	return val
}

func RequiredString(key string) (string, error) {
	val := lookup(key)
	if val == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return val, nil
}

func Port(key, fallback string) (string, error) {
	val := String(key, fallback)
	p, err := strconv.Atoi(val)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, val)
	}
	return val, nil
}

// Int returns fallback when the key is unset or not a valid integer.
func Int(key string, fallback int) int {
	val := strings.TrimSpace(lookup(key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

// Duration accepts Go duration strings ("3s", "24h").
func Duration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(lookup(key))
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Bool(key string, fallback bool) bool {
	val := strings.ToLower(strings.TrimSpace(lookup(key)))
	switch val {
	case "":
		return fallback
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// List splits a comma separated value, dropping empty entries.
func List(key string, fallback string) []string {
	var out []string
	for _, part := range strings.Split(String(key, fallback), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
