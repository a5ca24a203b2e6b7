package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/toicours/fundme-go/cli/server"
	"github.com/toicours/fundme-go/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "FundMe\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates a FundMe instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "fundme"
	ctl.Version = config.Version
	ctl.Usage = "Crowdfunding ledger node"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, server.NewCommands()...)
	return ctl
}
