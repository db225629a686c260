package config

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/konflikt/konflikt/internal/engine"
	"github.com/spf13/pflag"
)

// Settings is the fully merged, ready-to-use configuration: CLI flags
// override the file wherever a flag was explicitly set, the file
// supplies everything else, and InstanceID is generated if neither
// source provides one.
type Settings struct {
	InstanceID string
	Role       string
	Server     string
	Port       int
	Name       string

	GlobalEdges      engine.EdgeSettings
	DisplayEdges     map[string]engine.EdgeSettings
	LockCursorHotkey int
	KeyRemap         map[int]int

	TLS           bool
	TLSCert       string
	TLSKey        string
	TLSPassphrase string
	InsecureTLS   bool

	Verbose bool
}

// Merge combines file with cli, consulting flagSet.Changed so a flag
// left at its zero-value default never silently overrides a value
// from the config file.
func Merge(file *FileConfig, cli *CLI, flagSet *pflag.FlagSet) (*Settings, error) {
	if file == nil {
		file = &FileConfig{}
	}

	s := &Settings{
		InstanceID: file.InstanceID,
		Role:       file.Role,
		Server:     file.Server,
		Port:       file.Port,
		Name:       file.Name,
		GlobalEdges: engine.EdgeSettings{
			Left:   !file.NoEdgeLeft,
			Right:  !file.NoEdgeRight,
			Top:    !file.NoEdgeTop,
			Bottom: !file.NoEdgeBottom,
		},
		LockCursorHotkey: file.LockCursorHotkey,
		TLS:              file.TLS,
		TLSCert:          file.TLSCert,
		TLSKey:           file.TLSKey,
		TLSPassphrase:    file.TLSPassphrase,
		InsecureTLS:      file.InsecureTLS,
		Verbose:          file.Verbose,
	}
	if s.Port == 0 {
		s.Port = 7934
	}

	if flagSet.Changed("role") {
		s.Role = cli.Role
	}
	if flagSet.Changed("server") {
		s.Server = cli.Server
	}
	if flagSet.Changed("port") {
		s.Port = cli.Port
	}
	if flagSet.Changed("name") {
		s.Name = cli.Name
	}
	if flagSet.Changed("no-edge-left") {
		s.GlobalEdges.Left = !cli.NoEdgeLeft
	}
	if flagSet.Changed("no-edge-right") {
		s.GlobalEdges.Right = !cli.NoEdgeRight
	}
	if flagSet.Changed("no-edge-top") {
		s.GlobalEdges.Top = !cli.NoEdgeTop
	}
	if flagSet.Changed("no-edge-bottom") {
		s.GlobalEdges.Bottom = !cli.NoEdgeBottom
	}
	if flagSet.Changed("lock-cursor") {
		s.LockCursorHotkey = cli.LockCursor
	}
	if flagSet.Changed("tls") {
		s.TLS = cli.TLS
	}
	if flagSet.Changed("tls-cert") {
		s.TLSCert = cli.TLSCert
	}
	if flagSet.Changed("tls-key") {
		s.TLSKey = cli.TLSKey
	}
	if flagSet.Changed("tls-passphrase") {
		s.TLSPassphrase = cli.TLSPassphrase
	}
	if flagSet.Changed("insecure-tls") {
		s.InsecureTLS = cli.InsecureTLS
	}
	if flagSet.Changed("verbose") {
		s.Verbose = cli.Verbose
	}

	s.DisplayEdges = make(map[string]engine.EdgeSettings, len(file.DisplayEdges))
	for id, e := range file.DisplayEdges {
		s.DisplayEdges[id] = engine.EdgeSettings{Left: e.Left, Right: e.Right, Top: e.Top, Bottom: e.Bottom}
	}

	keyRemap, err := parseKeyRemap(file.KeyRemap)
	if err != nil {
		return nil, err
	}
	s.KeyRemap = keyRemap

	if s.InstanceID == "" {
		s.InstanceID = uuid.NewString()
	}

	return s, nil
}

func parseKeyRemap(raw map[string]int) (map[int]int, error) {
	out := make(map[int]int, len(raw))
	for k, v := range raw {
		code, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("config: keyRemap key %q is not a decimal keycode: %w", k, err)
		}
		out[code] = v
	}
	return out, nil
}
