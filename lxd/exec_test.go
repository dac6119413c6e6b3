package lxd

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/topology"
	lxd "github.com/lxc/lxd/client"
	"github.com/lxc/lxd/shared/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer runs exec requests with the local shell in a per-instance
// directory. Methods it does not override panic through the nil embedded
// interface.
type fakeServer struct {
	lxd.InstanceServer

	instances []api.InstanceFull
	root      string
	listed    int
	execs     []string
}

func (s *fakeServer) GetInstancesFull(api.InstanceType) ([]api.InstanceFull, error) {
	s.listed++
	return s.instances, nil
}

func (s *fakeServer) ExecInstance(name string, req api.InstanceExecPost, args *lxd.InstanceExecArgs) (lxd.Operation, error) {
	s.execs = append(s.execs, name)

	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	cmd := exec.Command(req.Command[0], req.Command[1:]...)
	cmd.Dir = dir
	cmd.Stdin = args.Stdin
	cmd.Stdout = args.Stdout
	cmd.Stderr = args.Stderr

	status := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		status = exitErr.ExitCode()
	}
	close(args.DataDone)

	return &fakeOperation{status: status}, nil
}

type fakeOperation struct {
	lxd.Operation
	status int
}

func (o *fakeOperation) Wait() error { return nil }

func (o *fakeOperation) Cancel() error { return nil }

func (o *fakeOperation) Get() api.Operation {
	return api.Operation{Metadata: map[string]interface{}{"return": float64(o.status)}}
}

var master = topology.Host{Address: "ubuntu@10.0.0.1", User: "ubuntu", IP: "10.0.0.1"}

func newFakeServer(t *testing.T) *fakeServer {
	return &fakeServer{
		root: t.TempDir(),
		instances: []api.InstanceFull{
			instance("master", api.InstanceStateNetworkAddress{Family: "inet", Address: "10.0.0.1", Scope: "global"}),
			instance("node-1", api.InstanceStateNetworkAddress{Family: "inet", Address: "10.0.0.2", Scope: "global"}),
		},
	}
}

func TestChannelRun(t *testing.T) {
	srv := newFakeServer(t)
	c := &Channel{Server: srv}

	var out bytes.Buffer
	cmd := remote.NewCommand(master, "mkdir -p kube_temp", "echo ok")
	cmd.Stdout = &out
	require.NoError(t, c.Run(context.Background(), cmd))

	assert.Equal(t, "ok\n", out.String())
	assert.DirExists(t, filepath.Join(srv.root, "master", "kube_temp"))
	assert.Equal(t, []string{"master"}, srv.execs)
}

func TestChannelRunExitStatus(t *testing.T) {
	c := &Channel{Server: newFakeServer(t)}

	err := c.Run(context.Background(), remote.NewCommand(master, "true", "exit 3"))

	var execErr *remote.RemoteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitStatus)
	assert.Equal(t, "true && exit 3", execErr.Command)
	assert.Equal(t, master, execErr.Host)
}

func TestChannelRunUnknownHost(t *testing.T) {
	srv := newFakeServer(t)
	c := &Channel{Server: srv}

	err := c.Run(context.Background(), remote.NewCommand(topology.Host{Address: "root@10.0.0.9", User: "root", IP: "10.0.0.9"}, "true"))

	var execErr *remote.RemoteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, -1, execErr.ExitStatus)
	assert.Empty(t, srv.execs)
}

func TestChannelCachesInstanceNames(t *testing.T) {
	srv := newFakeServer(t)
	c := &Channel{Server: srv}
	node := topology.Host{Address: "ubuntu@10.0.0.2", User: "ubuntu", IP: "10.0.0.2"}

	for _, h := range []topology.Host{master, node, master, node} {
		require.NoError(t, c.Run(context.Background(), remote.NewCommand(h, "true")))
	}

	assert.Equal(t, 2, srv.listed)
	assert.Equal(t, []string{"master", "node-1", "master", "node-1"}, srv.execs)
}

func TestChannelCopy(t *testing.T) {
	srv := newFakeServer(t)
	c := &Channel{Server: srv}

	local := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(local, "master", "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(local, "master", "bin", "kube-apiserver"), []byte("apiserver"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(local, "make-ca-cert.sh"), []byte("ca"), 0755))

	err := c.Copy(context.Background(), remote.Transfer{
		Host:        master,
		Sources:     []string{filepath.Join(local, "master"), filepath.Join(local, "make-ca-cert.sh")},
		Destination: "kube_temp",
		Recursive:   true,
	})
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(srv.root, "master", "kube_temp", "master", "bin", "kube-apiserver"))
	require.NoError(t, err)
	assert.Equal(t, "apiserver", string(b))

	b, err = os.ReadFile(filepath.Join(srv.root, "master", "kube_temp", "make-ca-cert.sh"))
	require.NoError(t, err)
	assert.Equal(t, "ca", string(b))
}

func TestChannelCopyMissingSource(t *testing.T) {
	srv := newFakeServer(t)
	c := &Channel{Server: srv}

	err := c.Copy(context.Background(), remote.Transfer{
		Host:        master,
		Sources:     []string{filepath.Join(t.TempDir(), "missing")},
		Destination: "kube_temp",
	})

	var transferErr *remote.TransferError
	require.True(t, errors.As(err, &transferErr))
	assert.Empty(t, srv.execs)
}
