package lxd

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/topology"
	lxd "github.com/lxc/lxd/client"
	"github.com/lxc/lxd/shared/api"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// sudoShim lets the same command lines run in instances without sudo, where
// exec already runs as root.
const sudoShim = `command -v sudo >/dev/null 2>&1 || sudo() { "$@"; }; `

// Channel runs commands in LXD instances through the LXD API instead of SSH.
// Hosts are matched to instances by IP address; the user part of the address
// is ignored since exec runs as root.
type Channel struct {
	Server lxd.InstanceServer
	Log    *logrus.Entry

	mu    sync.Mutex
	names map[string]string
}

func (c *Channel) Run(ctx context.Context, cmd remote.Command) error {
	line := cmd.Line()
	c.logger().WithField("host", cmd.Host.String()).Debugf("lxd exec: %s", line)

	status, err := c.exec(ctx, cmd.Host, line, nil, cmd.Stdout, cmd.Stderr)
	if err != nil {
		return &remote.RemoteExecutionError{Host: cmd.Host, Command: line, ExitStatus: -1, Err: err}
	}
	if status != 0 {
		return &remote.RemoteExecutionError{Host: cmd.Host, Command: line, ExitStatus: status}
	}
	return nil
}

func (c *Channel) Copy(ctx context.Context, t remote.Transfer) error {
	if err := remote.CheckSources(t.Sources, t.Recursive); err != nil {
		return &remote.TransferError{Host: t.Host, Sources: t.Sources, Err: err}
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(remote.WriteArchive(pw, t.Sources, t.Recursive))
	}()
	defer pr.Close()

	status, err := c.exec(ctx, t.Host, remote.ExtractCommand(t.Destination), pr, nil, nil)
	if err == nil && status != 0 {
		err = errors.Errorf("tar exited with status %d", status)
	}
	if err != nil {
		return &remote.TransferError{Host: t.Host, Sources: t.Sources, Err: err}
	}
	return nil
}

func (c *Channel) exec(ctx context.Context, host topology.Host, line string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	name, err := c.instanceName(host)
	if err != nil {
		return -1, err
	}

	if stdin == nil {
		stdin = strings.NewReader("")
	}
	req := api.InstanceExecPost{
		Command:   []string{"sh", "-c", sudoShim + line},
		WaitForWS: true,
	}
	args := &lxd.InstanceExecArgs{
		Stdin:    io.NopCloser(stdin),
		Stdout:   nopWriteCloser{writerOrDiscard(stdout)},
		Stderr:   nopWriteCloser{writerOrDiscard(stderr)},
		DataDone: make(chan bool),
	}

	op, err := c.Server.ExecInstance(name, req, args)
	if err != nil {
		return -1, errors.Wrapf(err, "exec in %s", name)
	}

	done := make(chan error, 1)
	go func() { done <- op.Wait() }()
	select {
	case err = <-done:
	case <-ctx.Done():
		op.Cancel()
		return -1, ctx.Err()
	}
	if err != nil {
		return -1, errors.Wrapf(err, "exec in %s", name)
	}
	<-args.DataDone

	return exitStatus(op.Get()), nil
}

func (c *Channel) instanceName(host topology.Host) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name, ok := c.names[host.IP]; ok {
		return name, nil
	}

	instances, err := c.Server.GetInstancesFull(api.InstanceTypeAny)
	if err != nil {
		return "", errors.Wrap(err, "listing instances")
	}

	name, err := InstanceForIP(instances, host.IP)
	if err != nil {
		return "", err
	}
	if c.names == nil {
		c.names = map[string]string{}
	}
	c.names[host.IP] = name
	return name, nil
}

// InstanceForIP finds the running instance with ip on a non-loopback
// interface. Link-local addresses are skipped.
func InstanceForIP(instances []api.InstanceFull, ip string) (string, error) {
	for _, in := range instances {
		if in.State == nil {
			continue
		}
		for _, addr := range InstanceIPs(in.State) {
			if addr == ip {
				return in.Name, nil
			}
		}
	}
	return "", errors.Errorf("no lxd instance has address %s", ip)
}

// InstanceIPs lists the global inet addresses of an instance.
func InstanceIPs(state *api.InstanceState) []string {
	var ips []string
	for _, net := range state.Network {
		if net.Type == "loopback" {
			continue
		}

		for _, addr := range net.Addresses {
			if addr.Scope == "link" || addr.Scope == "local" {
				continue
			}

			if strings.Contains(addr.Family, "inet") {
				ips = append(ips, addr.Address)
			}
		}
	}
	return ips
}

func exitStatus(op api.Operation) int {
	ret, ok := op.Metadata["return"].(float64)
	if !ok {
		return -1
	}
	return int(ret)
}

func (c *Channel) logger() *logrus.Entry {
	if c.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.Log
}

// Connector connects to a remote of the local lxc client. There is no
// identity precondition for LXD.
type Connector struct {
	// Remote names the lxc remote. Empty means the client's default.
	Remote string
	Log    *logrus.Entry
}

func (c *Connector) Connect(ctx context.Context) (remote.Channel, error) {
	is, err := InstanceServerConnect(c.Remote, c.logger())
	if err != nil {
		return nil, err
	}
	return &Channel{Server: is, Log: c.Log}, nil
}

func (c *Connector) logger() *logrus.Entry {
	if c.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.Log
}

func (c *Connector) Close() error {
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
