package main

import (
	"time"

	"github.com/greymatter-io/sshk/cluster"
	"github.com/greymatter-io/sshk/kubernetes"
	"github.com/greymatter-io/sshk/topology"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var upCmd = &cli.Command{
	Name:  "up",
	Usage: "provision the master, then every node, and write a kubeconfig",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "provision up to this many nodes at once",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "wait-apiserver",
			Usage: "wait for kube-apiserver to answer /healthz before starting the next daemon",
		},
		&cli.DurationFlag{
			Name:  "wait-timeout",
			Value: 5 * time.Minute,
		},
	},
	Action: doUp,
}

func doUp(ctx *cli.Context) error {
	c, err := clusterFromContext(ctx)
	if err != nil {
		return err
	}
	c.Parallelism = ctx.Int("parallel")

	if ctx.Bool("wait-apiserver") {
		server, err := masterServer(c.Options.Master)
		if err != nil {
			return err
		}
		c.Readiness = kubernetes.APIServerReadiness(server, 2*time.Second, ctx.Duration("wait-timeout"),
			logrus.NewEntry(logrus.StandardLogger()))
	}

	return c.Up(ctx.Context)
}

func masterServer(master string) (string, error) {
	host, err := topology.DetectMaster(master)
	if err != nil {
		return "", err
	}
	return cluster.ServerURL(host.IP), nil
}
