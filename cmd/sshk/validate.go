package main

import (
	"github.com/greymatter-io/sshk/kubernetes"
	"github.com/greymatter-io/sshk/validate"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var outputFlag = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "table or yaml",
	Value:   "table",
}

var validateCmd = &cli.Command{
	Name:  "validate",
	Usage: "check the cluster and troubleshoot every host if the check fails",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "validate-cmd",
			Usage:   "external check, run with no arguments, exit 0 means healthy",
			EnvVars: []string{"SSHK_VALIDATE_CMD"},
		},
		&cli.BoolFlag{
			Name:  "kube",
			Usage: "check node readiness and component statuses through the API server instead",
		},
		outputFlag,
	},
	Action: doValidate,
}

func doValidate(ctx *cli.Context) error {
	c, err := clusterFromContext(ctx)
	if err != nil {
		return err
	}
	c.Format = ctx.String("output")

	switch {
	case ctx.Bool("kube"):
		clientset, err := kubernetes.GetClientset(c.Options.Kubeconfig, c.Options.Context)
		if err != nil {
			return err
		}
		c.Check = validate.KubeCheck{Clientset: clientset, ExpectedNodes: len(c.Options.Nodes)}
	case ctx.String("validate-cmd") != "":
		c.Check = validate.ExecCheck{
			Command: ctx.String("validate-cmd"),
			Stdout:  ctx.App.Writer,
			Stderr:  ctx.App.ErrWriter,
		}
	default:
		return errors.New("set --validate-cmd or --kube")
	}

	_, err = c.Validate(ctx.Context)
	return err
}
