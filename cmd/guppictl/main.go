// File: cmd/guppictl/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// guppictl is the command-line front end of the status registry.

package main

import (
	"fmt"
	"os"

	"github.com/momentics/guppi-status/cmd"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	os.Exit(cmd.Main())
}
