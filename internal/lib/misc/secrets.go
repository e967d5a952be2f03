package misc

import (
	"os"
)

// Fallback values for secrets not present in the process environment.
// Tests inject here rather than mutating os.Environ.
var secretsMap = map[string]string{}

func GetSecret(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return secretsMap[key]
}

func SetSecret(key, value string) {
	secretsMap[key] = value
}
