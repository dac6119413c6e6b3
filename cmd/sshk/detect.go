package main

import (
	"fmt"
	"strings"

	"github.com/greymatter-io/sshk/topology"
	"github.com/urfave/cli/v2"
)

var detectCmd = &cli.Command{
	Name:   "detect",
	Usage:  "print the master and node IPs",
	Action: doDetect,
}

func doDetect(ctx *cli.Context) error {
	opts, err := optionsFromContext(ctx)
	if err != nil {
		return err
	}

	topo, err := topology.Resolve(opts.Master, opts.Nodes)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "KUBE_MASTER_IP=%s\n", topo.Master.IP)
	fmt.Fprintf(ctx.App.Writer, "KUBE_NODE_IP_ADDRESSES=(%s)\n", strings.Join(topo.NodeIPs(), " "))
	return nil
}
