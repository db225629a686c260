package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// CLI holds every flag from the spec's minimum reproduction set, parsed
// with spf13/pflag for GNU-style --long=value parsing.
type CLI struct {
	Role   string
	Server string
	Port   int
	Name   string
	Config string

	NoEdgeLeft   bool
	NoEdgeRight  bool
	NoEdgeTop    bool
	NoEdgeBottom bool
	LockCursor   int

	TLS           bool
	TLSCert       string
	TLSKey        string
	TLSPassphrase string
	InsecureTLS   bool

	Verbose bool
	Version bool
	Help    bool
}

// ParseFlags parses args (excluding argv[0]) into a CLI and returns the
// FlagSet so callers can distinguish an explicitly-set flag from its
// zero-value default when merging with a config file.
func ParseFlags(args []string) (*CLI, *pflag.FlagSet, error) {
	cli := &CLI{}
	fs := pflag.NewFlagSet("konflikt", pflag.ContinueOnError)

	fs.StringVar(&cli.Role, "role", "", "server or client")
	fs.StringVar(&cli.Server, "server", "", "server host to connect to (client only)")
	fs.IntVar(&cli.Port, "port", 7934, "transport port")
	fs.StringVar(&cli.Name, "name", "", "this instance's display name")
	fs.StringVar(&cli.Config, "config", "", "path to a config file, overriding the default search path")

	fs.BoolVar(&cli.NoEdgeLeft, "no-edge-left", false, "disable the left screen edge")
	fs.BoolVar(&cli.NoEdgeRight, "no-edge-right", false, "disable the right screen edge")
	fs.BoolVar(&cli.NoEdgeTop, "no-edge-top", false, "disable the top screen edge")
	fs.BoolVar(&cli.NoEdgeBottom, "no-edge-bottom", false, "disable the bottom screen edge")
	fs.IntVar(&cli.LockCursor, "lock-cursor", 0, "keycode that toggles lock_cursor_to_screen (0 = disabled)")

	fs.BoolVar(&cli.TLS, "tls", false, "enable TLS for the transport")
	fs.StringVar(&cli.TLSCert, "tls-cert", "", "TLS certificate file (server)")
	fs.StringVar(&cli.TLSKey, "tls-key", "", "TLS private key file (server)")
	fs.StringVar(&cli.TLSPassphrase, "tls-passphrase", "", "passphrase for an encrypted TLS private key")
	fs.BoolVar(&cli.InsecureTLS, "insecure-tls", false, "skip TLS certificate verification (client only, self-signed deployments)")

	fs.BoolVar(&cli.Verbose, "verbose", false, "enable text-format debug logging")
	fs.BoolVarP(&cli.Version, "version", "v", false, "print version and exit")
	fs.BoolVarP(&cli.Help, "help", "h", false, "show this help text")

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("config: parse flags: %w", err)
	}
	return cli, fs, nil
}
