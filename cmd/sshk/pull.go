package main

import (
	"fmt"

	"github.com/greymatter-io/sshk/config"
	"github.com/urfave/cli/v2"
)

var pullCmd = &cli.Command{
	Name:      "pull",
	Usage:     "fetch a cluster's state into the cache",
	ArgsUsage: "[cluster name]",
	Action:    doPull,
}

func doPull(ctx *cli.Context) error {
	stateManager, err := config.ClusterStateManagerFromContext(ctx)
	if err != nil {
		return err
	}

	state, err := stateManager.Pull(clusterNameFromContext(ctx))
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "%s\t%s\t%s\n", state.Name, state.RunState, state.Server)
	return nil
}
