// Package provision brings a single host's daemons up: it stages artifacts,
// installs binaries and starts each daemon in a fixed order.
package provision

import (
	"path"

	"github.com/greymatter-io/sshk/certificates"
	"github.com/greymatter-io/sshk/config"
	"github.com/greymatter-io/sshk/k8s"
	"github.com/greymatter-io/sshk/kubernetes"
	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/topology"
)

type Role string

const (
	Master Role = "master"
	Node   Role = "node"
)

const (
	InstallDir = "/opt/kubernetes"
	CSRFile    = "kubernetes-csr.json"
)

// Step starts one daemon by running its installer script with positional
// arguments.
type Step struct {
	Name   string
	Script string
	Args   []string
}

func (s Step) Statement() string {
	return "sudo bash " + remote.QuoteAll(append([]string{s.Script}, s.Args...)...)
}

// Plan is everything needed to provision one host. Daemons are started in
// slice order and that order is part of the contract: each daemon expects the
// ones before it to be reachable.
type Plan struct {
	Role Role
	Host topology.Host

	Stage   string
	Sources []string
	// Files are generated next to Sources in the staging dir.
	Files map[string][]byte

	Install []string
	Daemons []Step
}

func ensureDirs(stage string) []string {
	return []string{
		"mkdir -p " + remote.Quote(stage),
		"sudo mkdir -p " + path.Join(InstallDir, "bin"),
		"sudo mkdir -p " + path.Join(InstallDir, "cfg"),
	}
}

// EnsureDirs creates the staging dir and the install dirs.
func (p Plan) EnsureDirs() []string {
	return ensureDirs(p.Stage)
}

func installBinaries(stage string, role Role) []string {
	return []string{
		"sudo cp -r " + remote.Quote(k8s.RemoteBin(stage, string(role))) + " " + InstallDir,
		"sudo chmod -R +x " + path.Join(InstallDir, "bin"),
	}
}

// MasterPlan starts etcd, kube-apiserver, kube-controller-manager and
// kube-scheduler, in that order, after generating the API server certificate.
func MasterPlan(opts config.Options, layout k8s.Layout, topo topology.Topology) (Plan, error) {
	serviceIP, err := opts.FirstServiceIP()
	if err != nil {
		return Plan{}, err
	}

	stage := opts.RemoteDir
	masterIP := topo.Master.IP
	script := func(name string) string {
		return k8s.RemoteScript(stage, string(Master), name)
	}

	install := installBinaries(stage, Master)
	install = append(install, "sudo bash "+remote.QuoteAll(
		path.Join(stage, k8s.CertScript), masterIP, certificates.SANArg(masterIP, serviceIP)))

	return Plan{
		Role:    Master,
		Host:    topo.Master,
		Stage:   stage,
		Sources: layout.MasterSources(),
		Files: map[string][]byte{
			kubernetes.EnvFileName: kubernetes.ClusterEnv(opts, topo),
			CSRFile:                certificates.CertJSON(masterIP, serviceIP),
		},
		Install: install,
		Daemons: []Step{
			{Name: "etcd", Script: script("etcd")},
			{Name: "kube-apiserver", Script: script("apiserver"), Args: []string{
				masterIP, opts.EtcdEndpoints(masterIP), opts.ServiceClusterIPRange, opts.AdmissionControl,
			}},
			{Name: "kube-controller-manager", Script: script("controller-manager"), Args: []string{masterIP}},
			{Name: "kube-scheduler", Script: script("scheduler"), Args: []string{masterIP}},
		},
	}, nil
}

// NodePlan installs the container runtime and starts flannel, docker, kubelet
// and kube-proxy, in that order.
func NodePlan(opts config.Options, layout k8s.Layout, topo topology.Topology, node topology.Host) Plan {
	stage := opts.RemoteDir
	masterIP := topo.Master.IP
	script := func(name string) string {
		return k8s.RemoteScript(stage, string(Node), name)
	}

	install := []string{"curl -fsSL " + remote.Quote(opts.RuntimeInstallURL) + " | sudo sh"}
	install = append(install, installBinaries(stage, Node)...)

	return Plan{
		Role:    Node,
		Host:    node,
		Stage:   stage,
		Sources: layout.NodeSources(),
		Files: map[string][]byte{
			kubernetes.EnvFileName: kubernetes.ClusterEnv(opts, topo),
		},
		Install: install,
		Daemons: []Step{
			{Name: "flannel", Script: script("flannel"), Args: []string{opts.EtcdEndpoints(masterIP), opts.FlannelNet}},
			{Name: "docker", Script: script("docker"), Args: []string{opts.DockerOpts}},
			{Name: "kubelet", Script: script("kubelet"), Args: []string{masterIP, node.IP}},
			{Name: "kube-proxy", Script: script("proxy"), Args: []string{masterIP}},
		},
	}
}
