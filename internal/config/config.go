package config

import (
	"os"
	"strconv"
)

type Config struct {
	URLFile          string
	CacheType        string
	CacheDir         string
	CacheCapacityMiB int
	CachePolicy      string
	Concurrency      int
	TimeoutSec       int
	UserAgent        string
	ProxyURL         string
	ProxyUser        string
	ProxyPassword    string
	LogLevel         string
	LogFormat        string
}

func Load() *Config {
	cfg := &Config{
		URLFile:          getEnv("URL_FILE", "-"),
		CacheType:        getEnv("CACHE_TYPE", "disk"),
		CacheDir:         getEnv("CACHE_DIR", "./tiles"),
		CacheCapacityMiB: getEnvInt("CACHE_CAPACITY_MIB", 250),
		CachePolicy:      getEnv("CACHE_POLICY", "prefer-cache"),
		Concurrency:      getEnvInt("CONCURRENCY", 4),
		TimeoutSec:       getEnvInt("TIMEOUT_SEC", 30),
		UserAgent:        getEnv("USER_AGENT", "tilecache/tilewarm"),
		ProxyURL:         getEnv("PROXY_URL", ""),
		ProxyUser:        getEnv("PROXY_USER", ""),
		ProxyPassword:    getEnv("PROXY_PASSWORD", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
