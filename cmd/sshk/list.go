package main

import (
	"fmt"

	"github.com/greymatter-io/sshk/config"
	"github.com/urfave/cli/v2"
)

var listCmd = &cli.Command{
	Name:   "list",
	Usage:  "list clusters",
	Action: doList,
}

func doList(ctx *cli.Context) error {
	stateManager, err := config.ClusterStateManagerFromContext(ctx)
	if err != nil {
		return err
	}

	clusters, err := stateManager.List()
	if err != nil {
		return err
	}

	for _, c := range clusters {
		fmt.Fprintln(ctx.App.Writer, c)
	}

	return nil
}
