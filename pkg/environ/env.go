// Package environ reads settings from the environment, falling back to a
// default when a variable is unset or malformed.
package environ

import (
	"os"
	"strconv"
	"time"

	"k8s.io/kube-openapi/pkg/validation/strfmt"

	"github.com/voluzi/memwatch/pkg/utils"
)

func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}

	return fallback
}

func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}

	return fallback
}

// GetDuration accepts Go durations as well as day and week units ("1d").
func GetDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if t, err := strfmt.ParseDuration(value); err == nil {
			return t
		}
	}
	return fallback
}

// GetSize reads a byte size such as "512MB". Units are binary.
func GetSize(key string, fallback uint64) uint64 {
	if value, ok := os.LookupEnv(key); ok {
		if size, err := utils.ParseSize(value); err == nil {
			return size
		}
	}
	return fallback
}
