package provision

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greymatter-io/sshk/config"
	"github.com/greymatter-io/sshk/k8s"
	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/testutils"
	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sans = "IP:10.0.0.1,IP:192.168.3.1,DNS:kubernetes,DNS:kubernetes.default,DNS:kubernetes.default.svc,DNS:kubernetes.default.svc.cluster.local"

func testTopology(t *testing.T) topology.Topology {
	t.Helper()
	topo, err := topology.Resolve("root@10.0.0.1", []string{"root@10.0.0.2", "root@10.0.0.3"})
	require.NoError(t, err)
	return topo
}

func daemonNames(plan Plan) []string {
	var names []string
	for _, d := range plan.Daemons {
		names = append(names, d.Name)
	}
	return names
}

func TestStepStatementQuotes(t *testing.T) {
	s := Step{Script: "kube_temp/node/scripts/docker.sh", Args: []string{"--bip=10.1.0.1/24 --mtu=1450"}}
	assert.Equal(t, "sudo bash kube_temp/node/scripts/docker.sh '--bip=10.1.0.1/24 --mtu=1450'", s.Statement())

	s = Step{Script: "kube_temp/node/scripts/docker.sh", Args: []string{""}}
	assert.Equal(t, "sudo bash kube_temp/node/scripts/docker.sh ''", s.Statement())
}

func TestMasterPlanDaemonOrder(t *testing.T) {
	plan, err := MasterPlan(config.Defaults(), k8s.Layout{Root: "/art"}, testTopology(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"etcd", "kube-apiserver", "kube-controller-manager", "kube-scheduler"}, daemonNames(plan))
	assert.Equal(t, Master, plan.Role)
	assert.Equal(t, "10.0.0.1", plan.Host.IP)
	assert.Contains(t, plan.Files, "config-default.env")
	assert.Contains(t, plan.Files, CSRFile)
}

func TestMasterPlanBadServiceRange(t *testing.T) {
	opts := config.Defaults()
	opts.ServiceClusterIPRange = "nope"
	_, err := MasterPlan(opts, k8s.Layout{Root: "/art"}, testTopology(t))
	require.Error(t, err)
}

func TestNodePlanDaemonOrder(t *testing.T) {
	topo := testTopology(t)
	plan := NodePlan(config.Defaults(), k8s.Layout{Root: "/art"}, topo, topo.Nodes[1])

	assert.Equal(t, []string{"flannel", "docker", "kubelet", "kube-proxy"}, daemonNames(plan))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.3"}, plan.Daemons[2].Args)
}

func TestProvisionMaster(t *testing.T) {
	topo := testTopology(t)
	plan, err := MasterPlan(config.Defaults(), k8s.Layout{Root: "/art"}, topo)
	require.NoError(t, err)

	ch := &testutils.FakeChannel{}
	p := &Provisioner{Channel: ch}
	require.NoError(t, p.Provision(context.Background(), plan))

	assert.Equal(t, []string{
		"mkdir -p kube_temp && sudo mkdir -p /opt/kubernetes/bin && sudo mkdir -p /opt/kubernetes/cfg",
		"sudo cp -r kube_temp/master/bin /opt/kubernetes && sudo chmod -R +x /opt/kubernetes/bin && sudo bash kube_temp/make-ca-cert.sh 10.0.0.1 " + sans,
		"sudo bash kube_temp/master/scripts/etcd.sh",
		"sudo bash kube_temp/master/scripts/apiserver.sh 10.0.0.1 http://10.0.0.1:2379 192.168.3.0/24 " + config.DefaultAdmissionControl,
		"sudo bash kube_temp/master/scripts/controller-manager.sh 10.0.0.1",
		"sudo bash kube_temp/master/scripts/scheduler.sh 10.0.0.1",
	}, ch.Lines("10.0.0.1"))

	transfers := ch.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "kube_temp", transfers[0].Destination)
	assert.True(t, transfers[0].Recursive)

	srcs := transfers[0].Sources
	require.Len(t, srcs, 5)
	assert.Equal(t, []string{"/art/make-ca-cert.sh", "/art/binaries/master", "/art/master"}, srcs[:3])
	assert.Equal(t, "config-default.env", filepath.Base(srcs[3]))
	assert.Equal(t, CSRFile, filepath.Base(srcs[4]))

	// copy happens between ensure-dirs and install
	calls := ch.Calls()
	assert.True(t, strings.HasPrefix(calls[1], "10.0.0.1 copy "))
}

func TestProvisionNode(t *testing.T) {
	topo := testTopology(t)
	opts := config.Defaults()
	opts.DockerOpts = "--insecure-registry=10.0.0.0/8"
	plan := NodePlan(opts, k8s.Layout{Root: "/art"}, topo, topo.Nodes[0])

	ch := &testutils.FakeChannel{}
	require.NoError(t, (&Provisioner{Channel: ch}).Provision(context.Background(), plan))

	assert.Equal(t, []string{
		"mkdir -p kube_temp && sudo mkdir -p /opt/kubernetes/bin && sudo mkdir -p /opt/kubernetes/cfg",
		"curl -fsSL https://get.docker.com | sudo sh && sudo cp -r kube_temp/node/bin /opt/kubernetes && sudo chmod -R +x /opt/kubernetes/bin",
		"sudo bash kube_temp/node/scripts/flannel.sh http://10.0.0.1:2379 172.16.0.0/16",
		"sudo bash kube_temp/node/scripts/docker.sh --insecure-registry=10.0.0.0/8",
		"sudo bash kube_temp/node/scripts/kubelet.sh 10.0.0.1 10.0.0.2",
		"sudo bash kube_temp/node/scripts/proxy.sh 10.0.0.1",
	}, ch.Lines("10.0.0.2"))
}

func TestProvisionAbortsOnFirstFailure(t *testing.T) {
	plan, err := MasterPlan(config.Defaults(), k8s.Layout{Root: "/art"}, testTopology(t))
	require.NoError(t, err)

	ch := &testutils.FakeChannel{
		RunFunc: func(cmd remote.Command) error {
			if strings.Contains(cmd.Line(), "apiserver.sh") {
				return testutils.ExitStatus(cmd, 1)
			}
			return nil
		},
	}
	err = (&Provisioner{Channel: ch}).Provision(context.Background(), plan)
	require.Error(t, err)

	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "kube-apiserver", perr.Step)
	assert.Equal(t, "10.0.0.1", perr.Host.IP)

	var rerr *remote.RemoteExecutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 1, rerr.ExitStatus)

	lines := ch.Lines("10.0.0.1")
	assert.Len(t, lines, 4)
	for _, l := range lines {
		assert.NotContains(t, l, "controller-manager")
	}
}

func TestProvisionCopyFailure(t *testing.T) {
	topo := testTopology(t)
	plan := NodePlan(config.Defaults(), k8s.Layout{Root: "/art"}, topo, topo.Nodes[0])

	ch := &testutils.FakeChannel{
		CopyFunc: func(tr remote.Transfer) error {
			return &remote.TransferError{Host: tr.Host, Sources: tr.Sources, Err: errors.New("permission denied")}
		},
	}
	err := (&Provisioner{Channel: ch}).Provision(context.Background(), plan)

	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "copy", perr.Step)
	assert.Len(t, ch.Lines("10.0.0.2"), 1)
}

func TestReadinessHookRunsAfterEachStart(t *testing.T) {
	plan, err := MasterPlan(config.Defaults(), k8s.Layout{Root: "/art"}, testTopology(t))
	require.NoError(t, err)

	ch := &testutils.FakeChannel{}
	var seen []string
	hook := func(ctx context.Context, host topology.Host, daemon string) error {
		// the daemon's start command is the last thing sent
		calls := ch.Calls()
		assert.Contains(t, calls[len(calls)-1], "scripts/")
		seen = append(seen, daemon)
		return nil
	}

	require.NoError(t, (&Provisioner{Channel: ch, Readiness: hook}).Provision(context.Background(), plan))
	assert.Equal(t, []string{"etcd", "kube-apiserver", "kube-controller-manager", "kube-scheduler"}, seen)
}

func TestReadinessHookErrorAborts(t *testing.T) {
	plan, err := MasterPlan(config.Defaults(), k8s.Layout{Root: "/art"}, testTopology(t))
	require.NoError(t, err)

	ch := &testutils.FakeChannel{}
	hook := func(ctx context.Context, host topology.Host, daemon string) error {
		if daemon == "kube-apiserver" {
			return errors.New("timed out")
		}
		return nil
	}

	err = (&Provisioner{Channel: ch, Readiness: hook}).Provision(context.Background(), plan)
	var perr *ProvisionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "kube-apiserver readiness", perr.Step)
	assert.Len(t, ch.Lines("10.0.0.1"), 4)
}
