package main

import (
	"context"

	"github.com/greymatter-io/sshk/cluster"
	"github.com/urfave/cli/v2"
)

var downCmd = &cli.Command{
	Name:  "down",
	Usage: "tear a cluster down (not supported)",
	Action: unsupported(func(c *cluster.Cluster, ctx context.Context) error {
		return c.Down(ctx)
	}),
}

var updateCmd = &cli.Command{
	Name:  "update",
	Usage: "update a running cluster (not supported)",
	Action: unsupported(func(c *cluster.Cluster, ctx context.Context) error {
		return c.Update(ctx)
	}),
}

var pushCmd = &cli.Command{
	Name:  "push",
	Usage: "publish cluster state (not supported)",
	Action: unsupported(func(c *cluster.Cluster, ctx context.Context) error {
		return c.Push(ctx)
	}),
}

func unsupported(op func(*cluster.Cluster, context.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		return op(&cluster.Cluster{}, ctx.Context)
	}
}
