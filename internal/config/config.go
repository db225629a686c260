// Package config implements CLI flag parsing and the JSON
// configuration file: loading from the XDG per-user path first, then
// system fallback paths, and merging with CLI flags (which always
// win when explicitly set) into the final Settings used to wire up
// the rest of the application.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// EdgeConfig is the JSON shape of a per-display edge override.
type EdgeConfig struct {
	Left   bool `json:"left"`
	Right  bool `json:"right"`
	Top    bool `json:"top"`
	Bottom bool `json:"bottom"`
}

// FileConfig is the on-disk config file schema. Every field mirrors a
// CLI flag's semantics except InstanceID, KeyRemap, DisplayEdges, and
// LockCursorHotkey, which have no CLI flag equivalent beyond the
// boot-time --lock-cursor initial value.
type FileConfig struct {
	InstanceID string `json:"instanceId,omitempty"`

	Role   string `json:"role,omitempty"`
	Server string `json:"server,omitempty"`
	Port   int    `json:"port,omitempty"`
	Name   string `json:"name,omitempty"`

	NoEdgeLeft       bool                  `json:"noEdgeLeft,omitempty"`
	NoEdgeRight      bool                  `json:"noEdgeRight,omitempty"`
	NoEdgeTop        bool                  `json:"noEdgeTop,omitempty"`
	NoEdgeBottom     bool                  `json:"noEdgeBottom,omitempty"`
	LockCursorHotkey int                   `json:"lockCursorHotkey,omitempty"`
	KeyRemap         map[string]int        `json:"keyRemap,omitempty"`
	DisplayEdges     map[string]EdgeConfig `json:"displayEdges,omitempty"`

	TLS           bool   `json:"tls,omitempty"`
	TLSCert       string `json:"tlsCert,omitempty"`
	TLSKey        string `json:"tlsKey,omitempty"`
	TLSPassphrase string `json:"tlsPassphrase,omitempty"`
	InsecureTLS   bool   `json:"insecureTls,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// Load reads the config file from explicitPath if given, else the
// per-user path, else the first existing system path. Without an
// explicitPath, a missing file anywhere in the search path is not an
// error: Load returns a zero FileConfig and an empty path. A missing
// explicitPath is an error.
func Load(explicitPath string) (*FileConfig, string, error) {
	candidates := []string{}
	if explicitPath != "" {
		candidates = append(candidates, explicitPath)
	} else {
		if userPath, err := UserConfigPath(); err == nil {
			candidates = append(candidates, userPath)
		}
		candidates = append(candidates, SystemConfigPaths()...)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", fmt.Errorf("config: read %s: %w", path, err)
		}
		var cfg FileConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("config: parse %s: %w", path, err)
		}
		return &cfg, path, nil
	}

	if explicitPath != "" {
		return nil, "", fmt.Errorf("config: no config file found at %s", explicitPath)
	}
	return &FileConfig{}, "", nil
}
