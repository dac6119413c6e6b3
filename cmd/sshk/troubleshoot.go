package main

import (
	"github.com/greymatter-io/sshk/validate"
	"github.com/urfave/cli/v2"
)

var troubleshootCmd = &cli.Command{
	Name:   "troubleshoot",
	Usage:  "print daemon status for every host",
	Flags:  []cli.Flag{outputFlag},
	Action: doTroubleshoot,
}

func doTroubleshoot(ctx *cli.Context) error {
	c, err := clusterFromContext(ctx)
	if err != nil {
		return err
	}

	reports, err := c.Troubleshoot(ctx.Context)
	if err != nil {
		return err
	}
	return validate.RenderReports(ctx.App.Writer, reports, ctx.String("output"))
}
