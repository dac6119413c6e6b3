package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/greymatter-io/sshk/version"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2" // imports as package "cli"
)

var app = &cli.App{
	Name:    "sshk",
	Usage:   "Kubernetes on a fixed set of machines over ssh",
	Version: version.Version(),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:      "config",
			Aliases:   []string{"c"},
			Usage:     "Path to config file",
			TakesFile: true,
			Value:     path.Join(os.Getenv("HOME"), ".config", "sshk", "config.toml"),
			EnvVars:   []string{"SSHK_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "cache",
			Usage:   "Directory for cluster state and kubeconfigs",
			Value:   path.Join(os.Getenv("HOME"), ".cache", "sshk"),
			EnvVars: []string{"SSHK_CACHE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			EnvVars: []string{"SSHK_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "master",
			Usage:   "master address, user@ip",
			EnvVars: []string{"MASTER"},
		},
		&cli.StringFlag{
			Name:    "nodes",
			Usage:   "node addresses, user@ip, separated by spaces or commas",
			EnvVars: []string{"NODES"},
		},
		&cli.StringFlag{
			Name:    "etcd-servers",
			Usage:   "etcd endpoints (default http://<master ip>:2379)",
			EnvVars: []string{"ETCD_SERVERS"},
		},
		&cli.StringFlag{
			Name:    "service-cluster-ip-range",
			EnvVars: []string{"SERVICE_CLUSTER_IP_RANGE"},
		},
		&cli.StringFlag{
			Name:    "admission-control",
			EnvVars: []string{"ADMISSION_CONTROL"},
		},
		&cli.StringFlag{
			Name:    "flannel-net",
			EnvVars: []string{"FLANNEL_NET"},
		},
		&cli.StringFlag{
			Name:    "docker-opts",
			EnvVars: []string{"DOCKER_OPTS"},
		},
		&cli.StringFlag{
			Name:    "runtime-install-url",
			EnvVars: []string{"SSHK_RUNTIME_INSTALL_URL"},
		},
		&cli.StringFlag{
			Name:    "kube-temp",
			Usage:   "staging directory on every host",
			EnvVars: []string{"KUBE_TEMP"},
		},
		&cli.StringFlag{
			Name:      "artifact-dir",
			Usage:     "local directory with binaries/, master/, node/ and make-ca-cert.sh",
			TakesFile: true,
			EnvVars:   []string{"SSHK_ARTIFACTS"},
		},
		&cli.StringFlag{
			Name:    "context",
			Usage:   "cluster and kubeconfig context name",
			EnvVars: []string{"SSHK_CONTEXT"},
		},
		&cli.StringFlag{
			Name:      "kubeconfig",
			Usage:     "kubeconfig to write (default <cache>/<context>/kubeconfig)",
			TakesFile: true,
			EnvVars:   []string{"SSHK_KUBECONFIG"},
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "how hosts are reached: ssh or lxd",
			Value: "ssh",
		},
		&cli.StringFlag{
			Name:    "lxd-remote",
			Usage:   "lxc remote used by the lxd transport; empty means the default remote",
			EnvVars: []string{"SSHK_LXD_REMOTE"},
		},
		&cli.IntFlag{
			Name:  "ssh-port",
			Value: 22,
		},
		&cli.StringFlag{
			Name:    "ssh-auth-sock",
			EnvVars: []string{"SSH_AUTH_SOCK"},
		},
		&cli.StringSliceFlag{
			Name:  "identity",
			Usage: "private keys added to an empty ssh agent",
			Value: cli.NewStringSlice(
				path.Join(os.Getenv("HOME"), ".ssh", "id_rsa"),
				path.Join(os.Getenv("HOME"), ".ssh", "id_ecdsa"),
				path.Join(os.Getenv("HOME"), ".ssh", "id_ed25519"),
			),
		},
		&cli.StringFlag{
			Name:  "state-manager",
			Usage: "where cluster state lives: local or git",
			Value: "local",
		},
		&cli.StringFlag{
			Name:    "git-url",
			EnvVars: []string{"SSHK_GIT_URL"},
		},
		&cli.StringFlag{
			Name:      "git-keypath",
			TakesFile: true,
			EnvVars:   []string{"SSHK_GIT_KEYPATH"},
		},
		&cli.StringFlag{
			Name:    "git-key-password",
			EnvVars: []string{"SSHK_GIT_KEY_PASSWORD"},
		},
	},
	Before: setLogLevel,
	Commands: []*cli.Command{
		upCmd,
		validateCmd,
		troubleshootCmd,
		detectCmd,
		kubectlenvCmd,
		debugCertCmd,
		listCmd,
		pullCmd,
		downCmd,
		updateCmd,
		pushCmd,
	},
	CommandNotFound: func(c *cli.Context, cmd string) {
		fmt.Fprintf(c.App.Writer, `command not found: %s, run "sshk --help" for help`, cmd)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func setLogLevel(ctx *cli.Context) error {
	level, err := logrus.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}
