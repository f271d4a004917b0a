package cli

import (
	"fmt"
	"os"
)

func runAdd(args []string) int {
	fs, admin := adminFlags("add")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tunnelpool add [--admin url] <tunnel-url>")
		return 2
	}

	if err := postURL(*admin, "/add", fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "tunnelpool add:", err)
		return 1
	}
	return 0
}
