// Command konflikt runs one instance of the software KVM, in either
// server or client role, selected by --role (or the config file's
// "role" key).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/konflikt/konflikt/internal/config"
	"github.com/konflikt/konflikt/internal/inputbackend"
	"github.com/konflikt/konflikt/internal/supervisor"
)

const usage = `konflikt --role=server|client [options]

  --role=server|client        this instance's role
  --server=HOST                server to connect to (client only)
  --port=PORT                   transport port (default 7934)
  --name=NAME                   this instance's display name
  --config=PATH                 explicit config file path
  --no-edge-left/right/top/bottom   disable one screen edge
  --lock-cursor=KEYCODE          hotkey that toggles lock_cursor_to_screen
  --tls --tls-cert=PATH --tls-key=PATH [--tls-passphrase=PASS]
  --insecure-tls                 skip TLS certificate verification (client only)
  --verbose                      text-format debug logging
  -v, --version                  print version and exit
  -h, --help                     show this help text
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli, flagSet, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cli.Help {
		fmt.Fprint(os.Stderr, usage)
		return 0
	}
	if cli.Version {
		fmt.Println(supervisor.Version)
		return 0
	}

	file, _, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "konflikt:", err)
		return 1
	}

	cfg, err := config.Merge(file, cli, flagSet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "konflikt:", err)
		return 1
	}

	backend := inputbackend.NewRobotgoBackend()

	var s *supervisor.Supervisor
	switch cfg.Role {
	case "server":
		s, err = supervisor.NewServer(cfg, backend)
	case "client":
		s, err = supervisor.NewClient(cfg, backend)
	default:
		fmt.Fprintf(os.Stderr, "konflikt: --role must be \"server\" or \"client\", got %q\n", cfg.Role)
		return 1
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "konflikt:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	if cfg.Role == "server" {
		err = s.RunServer(ctx)
	} else {
		err = s.RunClient(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "konflikt:", err)
		return 1
	}
	return 0
}
