package cli

import (
	"fmt"

	"github.com/koltyakov/tunnelpool/internal/versionutil"
)

func runVersion() int {
	fmt.Println(versionutil.EnsureVPrefix(versionutil.BuildVersion))
	return 0
}
