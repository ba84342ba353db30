// Package env reads individual process environment values. Structured
// configuration lives in pkg/config; this package covers the few knobs
// consulted before the config layer is up, such as the log format.
package env

import (
	"os"
	"strings"
)

// Get returns the named environment variable, or fallback when it is unset
// or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
