// Package cli implements the tunnelpool command-line entry points: the
// run subcommand that starts the daemon, and the add/delete/list
// subcommands that operate against a running daemon's admin HTTP API.
package cli

import (
	"flag"
	"fmt"
	"os"
)

// Run dispatches args[0] to a subcommand and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return runDaemon(rest)
	case "add":
		return runAdd(rest)
	case "delete":
		return runDelete(rest)
	case "list":
		return runList(rest)
	case "version":
		return runVersion()
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "tunnelpool: unknown command %q\n", cmd)
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tunnelpool <command> [flags]

commands:
  run                 start the tunnel pool daemon
  add <url>           register and activate a tunnel
  delete <url>        deactivate a tunnel, or forget it if inactive
  list [active|all]   print tunnels known to a running daemon
  version             print the build version`)
}

// adminFlags returns a FlagSet pre-wired with the --admin flag every
// client subcommand needs to reach a running daemon.
func adminFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	admin := fs.String("admin", "http://localhost:8181", "Admin HTTP base URL of a running tunnelpool daemon")
	return fs, admin
}
