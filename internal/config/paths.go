package config

import (
	"os"
	"path/filepath"
	"strings"
)

const configFileName = "konflikt/config.json"

// UserConfigPath returns the per-user config path, following
// os.UserConfigDir()'s platform-specific XDG/AppData/Library
// resolution.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// SystemConfigPaths returns the system fallback search path, derived
// from $XDG_CONFIG_DIRS (colon-separated on POSIX), defaulting to
// /etc/xdg when unset.
func SystemConfigPaths() []string {
	raw := os.Getenv("XDG_CONFIG_DIRS")
	if raw == "" {
		raw = "/etc/xdg"
	}
	var out []string
	for _, dir := range strings.Split(raw, string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		out = append(out, filepath.Join(dir, configFileName))
	}
	return out
}
