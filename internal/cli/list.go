package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/koltyakov/tunnelpool/internal/pool"
)

// runList implements the list subcommand: fetch a running daemon's
// active or cached set over the admin HTTP API and print it. Output is
// colorized by state only when stdout is a terminal.
func runList(args []string) int {
	fs, admin := adminFlags("list")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	which := "active"
	if fs.NArg() > 0 {
		which = fs.Arg(0)
	}
	if which != "active" && which != "all" {
		fmt.Fprintln(os.Stderr, "usage: tunnelpool list [--admin url] [active|all]")
		return 2
	}

	set := "all"
	if which == "active" {
		set = "active"
	}
	resp, err := adminHTTPClient.Get(*admin + "/tunnels.json?set=" + set)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tunnelpool list:", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "tunnelpool list: daemon returned %s\n", resp.Status)
		return 1
	}

	var snapshots []pool.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		fmt.Fprintln(os.Stderr, "tunnelpool list: decode response:", err)
		return 1
	}

	colorize := isatty.IsTerminal(os.Stdout.Fd())
	for _, s := range snapshots {
		printSnapshot(s, colorize)
	}
	return 0
}

func printSnapshot(s pool.Snapshot, colorize bool) {
	if !colorize {
		fmt.Printf("%-40s %-8s id=%-5d age=%-3d weight=%.3f\n", s.URL, s.State, s.ID, s.Age, s.Weight)
		return
	}

	const (
		green  = "\x1b[32m"
		yellow = "\x1b[33m"
		red    = "\x1b[31m"
		reset  = "\x1b[0m"
	)
	color := yellow
	switch s.State {
	case "open":
		color = green
	case "dead":
		color = red
	}
	fmt.Printf("%-40s %s%-8s%s id=%-5d age=%-3d weight=%.3f\n", s.URL, color, s.State, reset, s.ID, s.Age, s.Weight)
}
