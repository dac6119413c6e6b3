// Package cluster sequences a whole cluster bring-up: identity, topology,
// master, nodes and the client configuration.
package cluster

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/greymatter-io/sshk/config"
	"github.com/greymatter-io/sshk/k8s"
	"github.com/greymatter-io/sshk/kubernetes"
	"github.com/greymatter-io/sshk/provision"
	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/topology"
	"github.com/greymatter-io/sshk/validate"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Cluster struct {
	Options   config.Options
	Connector remote.Connector
	Layout    k8s.Layout

	// StateManager, when set, records the run state of the cluster.
	StateManager config.ClusterStateManager
	// Readiness is passed to every host's provisioner. Nil starts daemons
	// without waiting.
	Readiness provision.ReadinessHook
	// Parallelism above 1 provisions up to that many nodes at once once the
	// master is up. Otherwise nodes go one at a time in configured order.
	Parallelism int

	// Check, Out and Format are used by Validate.
	Check  validate.Check
	Out    io.Writer
	Format string

	Log *logrus.Entry
}

// ServerURL is the API server address written to the kubeconfig.
func ServerURL(masterIP string) string {
	return "http://" + net.JoinHostPort(masterIP, strconv.Itoa(config.APIPort))
}

// Up provisions the master, then every node, then writes the kubeconfig. The
// first error stops the run. No remote command is issued unless the
// connector's identity precondition holds.
func (c *Cluster) Up(ctx context.Context) (err error) {
	if c.Options.Kubeconfig == "" {
		return errors.New("no kubeconfig path configured")
	}

	ch, err := c.Connector.Connect(ctx)
	if err != nil {
		return err
	}
	defer c.Connector.Close()

	topo, err := topology.Resolve(c.Options.Master, c.Options.Nodes)
	if err != nil {
		return err
	}

	if err := c.Layout.CheckMaster(); err != nil {
		return err
	}
	if len(topo.Nodes) > 0 {
		if err := c.Layout.CheckNode(); err != nil {
			return err
		}
	}

	c.saveState(config.Provisioning, "")
	defer func() {
		if err != nil {
			c.saveState(config.Failed, "")
		}
	}()

	p := &provision.Provisioner{Channel: ch, Readiness: c.Readiness, Log: c.logger()}

	masterPlan, err := provision.MasterPlan(c.Options, c.Layout, topo)
	if err != nil {
		return err
	}
	if err := p.Provision(ctx, masterPlan); err != nil {
		return err
	}

	if err := c.provisionNodes(ctx, p, topo); err != nil {
		return err
	}

	server := ServerURL(topo.Master.IP)
	if err := c.writeKubeconfig(server); err != nil {
		return err
	}

	c.saveState(config.Provisioned, server)
	c.logger().WithField("server", server).Info("cluster is up")
	return nil
}

func (c *Cluster) provisionNodes(ctx context.Context, p *provision.Provisioner, topo topology.Topology) error {
	if c.Parallelism <= 1 {
		for _, node := range topo.Nodes {
			if err := p.Provision(ctx, provision.NodePlan(c.Options, c.Layout, topo, node)); err != nil {
				return err
			}
		}
		return nil
	}

	sem := semaphore.NewWeighted(int64(c.Parallelism))
	group, groupCtx := errgroup.WithContext(ctx)

	for _, node := range topo.Nodes {
		plan := provision.NodePlan(c.Options, c.Layout, topo, node)
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return errors.Wrapf(err, "waiting to provision %s", plan.Host)
			}
			defer sem.Release(1)

			return p.Provision(groupCtx, plan)
		})
	}

	return group.Wait()
}

func (c *Cluster) writeKubeconfig(server string) error {
	creds, reused, err := kubernetes.GetOrCreateCredentials(c.Options.Kubeconfig, c.Options.Context)
	if err != nil {
		return err
	}
	c.logger().WithField("reused", reused).Debug("basic auth credentials")

	if err := kubernetes.WriteKubeconfig(c.Options.Kubeconfig, c.Options.Context, server, creds); err != nil {
		return err
	}
	c.logger().WithField("kubeconfig", c.Options.Kubeconfig).Info("wrote kubeconfig")
	return nil
}

func (c *Cluster) saveState(run config.RunState, server string) {
	if c.StateManager == nil {
		return
	}

	state := config.ClusterState{
		Name:       c.Options.Context,
		RunState:   run,
		Master:     c.Options.Master,
		Nodes:      c.Options.Nodes,
		Server:     server,
		Kubeconfig: c.Options.Kubeconfig,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := c.StateManager.Cache(state); err != nil {
		c.logger().WithError(err).Warn("could not cache cluster state")
	}
}

// Validate runs the cluster check and troubleshoots every host when it fails.
// Hosts are only connected to for troubleshooting, so a healthy cluster
// validates without an SSH identity.
func (c *Cluster) Validate(ctx context.Context) (validate.State, error) {
	topo, err := topology.Resolve(c.Options.Master, c.Options.Nodes)
	if err != nil {
		return validate.Unhealthy, err
	}

	v := &validate.Validator{
		Check:        c.Check,
		Troubleshoot: c.troubleshoot,
		Out:          c.Out,
		Format:       c.Format,
		Log:          c.logger(),
	}
	return v.Validate(ctx, topo)
}

// Troubleshoot inspects every host without running the check first.
func (c *Cluster) Troubleshoot(ctx context.Context) ([]validate.Report, error) {
	topo, err := topology.Resolve(c.Options.Master, c.Options.Nodes)
	if err != nil {
		return nil, err
	}
	return c.troubleshoot(ctx, topo)
}

func (c *Cluster) troubleshoot(ctx context.Context, topo topology.Topology) ([]validate.Report, error) {
	ch, err := c.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Connector.Close()

	ts := &validate.Troubleshooter{Channel: ch, Log: c.logger()}
	return ts.TroubleshootAll(ctx, topo), nil
}

// Down is not implemented.
func (c *Cluster) Down(ctx context.Context) error {
	return errors.Wrap(config.ErrNotSupported, "down")
}

// Update is not implemented.
func (c *Cluster) Update(ctx context.Context) error {
	return errors.Wrap(config.ErrNotSupported, "update")
}

// Push is not implemented.
func (c *Cluster) Push(ctx context.Context) error {
	return errors.Wrap(config.ErrNotSupported, "push")
}

func (c *Cluster) logger() *logrus.Entry {
	if c.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.Log
}
