// Package config resolves the bills configuration from viper: config file,
// BILLS_ environment variables and flags, on top of the engine defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	// First expand tilde if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// Then expand environment variables
	return os.ExpandEnv(path)
}

// EnvKeyReplacer maps nested config keys to environment variable names, so
// database.path is read from BILLS_DATABASE_PATH.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
