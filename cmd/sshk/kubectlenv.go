package main

import (
	"fmt"

	"github.com/greymatter-io/sshk/config"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var kubectlenvCmd = &cli.Command{
	Name:      "kubectl-env",
	Usage:     "print kubectl environment variables",
	ArgsUsage: "[cluster name]",
	Action:    runKubectlenv,
}

func runKubectlenv(ctx *cli.Context) error {
	clusterName := clusterNameFromContext(ctx)

	stateManager, err := config.ClusterStateManagerFromContext(ctx)
	if err != nil {
		return err
	}

	state, err := stateManager.Pull(clusterName)
	if err != nil {
		return err
	}
	if state.RunState == config.Uninitialized {
		return errors.Errorf("cluster %s has not been brought up", clusterName)
	}

	kfgPath := state.Kubeconfig
	if kfgPath == "" {
		kfgPath = defaultKubeconfig(ctx.String("cache"), clusterName)
	}
	fmt.Fprintf(ctx.App.Writer, "export KUBECONFIG=%s\n", kfgPath)

	return nil
}

// clusterNameFromContext is the first argument, else --context, else the
// default context.
func clusterNameFromContext(ctx *cli.Context) string {
	if name := ctx.Args().First(); name != "" {
		return name
	}
	if name := ctx.String("context"); name != "" {
		return name
	}
	return config.DefaultContext
}
