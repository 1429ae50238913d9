package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env followed by .env.<mode>; values already present in the
// process environment win.
func LoadEnv(mode string) error {
	files := []string{".env"}
	if mode != "" {
		files = append(files, fmt.Sprintf(".env.%s", mode))
	}
	var loaded int
	var lastErr error
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			lastErr = err
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
		loaded++
	}
	if loaded == 0 {
		return lastErr
	}
	return nil
}

func GetEnv(key string) string {
	return os.Getenv(key)
}

func GetStringOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func GetIntOrDefault(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func GetBoolOrDefault(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// GetDurationOrDefault accepts Go duration strings ("30s"); a bare integer is
// read as seconds.
func GetDurationOrDefault(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}
