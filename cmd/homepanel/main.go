// homepanel - Telegram control panel for a home server
//
// Usage:
//
//	BOT_TOKEN=123:abc ADMIN_ID=42 homepanel
//
// Or with an environment file:
//
//	homepanel --env-file /etc/homepanel/homepanel.env run
package main

import (
	"os"

	"github.com/homepanel/homepanel/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
