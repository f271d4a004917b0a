package cli

import (
	"fmt"
	"os"
)

func runDelete(args []string) int {
	fs, admin := adminFlags("delete")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tunnelpool delete [--admin url] <tunnel-url>")
		return 2
	}

	if err := postURL(*admin, "/delete", fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "tunnelpool delete:", err)
		return 1
	}
	return 0
}
