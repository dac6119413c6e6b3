package main

import (
	"path"
	"time"

	"github.com/greymatter-io/sshk/cluster"
	"github.com/greymatter-io/sshk/config"
	"github.com/greymatter-io/sshk/k8s"
	"github.com/greymatter-io/sshk/lxd"
	"github.com/greymatter-io/sshk/remote"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const dialTimeout = 30 * time.Second

// optionsFromContext builds the run's options and fills in the kubeconfig
// path from the cache dir when none was configured.
func optionsFromContext(ctx *cli.Context) (config.Options, error) {
	opts, err := config.OptionsFromCLIContext(ctx)
	if err != nil {
		return opts, err
	}

	if opts.Kubeconfig == "" {
		opts.Kubeconfig = defaultKubeconfig(ctx.String("cache"), opts.Context)
	}
	return opts, nil
}

func defaultKubeconfig(cacheDir, context string) string {
	return path.Join(config.ClusterDir(cacheDir, context), "kubeconfig")
}

func connectorFromContext(ctx *cli.Context) (remote.Connector, error) {
	log := logrus.NewEntry(logrus.StandardLogger())

	switch ctx.String("transport") {
	case "", "ssh":
		return &remote.SSHConnector{
			Identity: remote.Identity{
				SocketPath:  ctx.String("ssh-auth-sock"),
				DefaultKeys: ctx.StringSlice("identity"),
				Log:         log,
			},
			Port:        ctx.Int("ssh-port"),
			DialTimeout: dialTimeout,
			Log:         log,
		}, nil
	case "lxd":
		return &lxd.Connector{Remote: ctx.String("lxd-remote"), Log: log}, nil
	}

	return nil, errors.Errorf("unknown transport %q", ctx.String("transport"))
}

func clusterFromContext(ctx *cli.Context) (*cluster.Cluster, error) {
	opts, err := optionsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	connector, err := connectorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	stateManager, err := config.ClusterStateManagerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	return &cluster.Cluster{
		Options:      opts,
		Connector:    connector,
		Layout:       k8s.Layout{Root: opts.ArtifactDir},
		StateManager: stateManager,
		Out:          ctx.App.Writer,
		Log:          logrus.NewEntry(logrus.StandardLogger()),
	}, nil
}
