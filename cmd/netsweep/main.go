// Command netsweep runs LAN discovery scans from the terminal.
package main

import "github.com/anstrom/netsweep/cmd/cli"

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
