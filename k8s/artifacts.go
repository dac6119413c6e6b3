package k8s

import (
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
)

// Layout is the local artifact tree staged to cluster hosts. Downloading and
// packaging it happens elsewhere; sshk only ships it.
//
//	<root>/make-ca-cert.sh
//	<root>/binaries/master/bin/...   etcd, kube-apiserver, ...
//	<root>/binaries/node/bin/...     flanneld, kubelet, kube-proxy
//	<root>/master/scripts/*.sh       one installer per master daemon
//	<root>/node/scripts/*.sh         one installer per node daemon
type Layout struct {
	Root string
}

var (
	MasterBinaries = []string{"etcd", "etcdctl", "kube-apiserver", "kube-controller-manager", "kube-scheduler"}
	NodeBinaries   = []string{"flanneld", "kubelet", "kube-proxy"}

	MasterScripts = []string{"etcd", "apiserver", "controller-manager", "scheduler"}
	NodeScripts   = []string{"flannel", "docker", "kubelet", "proxy"}
)

const CertScript = "make-ca-cert.sh"

// MasterSources are copied into the master's staging dir. binaries/master and
// master both land in <stage>/master.
func (l Layout) MasterSources() []string {
	return []string{
		filepath.Join(l.Root, CertScript),
		filepath.Join(l.Root, "binaries", "master"),
		filepath.Join(l.Root, "master"),
	}
}

func (l Layout) NodeSources() []string {
	return []string{
		filepath.Join(l.Root, "binaries", "node"),
		filepath.Join(l.Root, "node"),
	}
}

func (l Layout) CheckMaster() error {
	return l.check(l.MasterSources(), "master", MasterBinaries, MasterScripts)
}

func (l Layout) CheckNode() error {
	return l.check(l.NodeSources(), "node", NodeBinaries, NodeScripts)
}

func (l Layout) check(sources []string, role string, binaries, scripts []string) error {
	want := append([]string{}, sources...)
	for _, b := range binaries {
		want = append(want, filepath.Join(l.Root, "binaries", role, "bin", b))
	}
	for _, s := range scripts {
		want = append(want, filepath.Join(l.Root, role, "scripts", s+".sh"))
	}

	for _, p := range want {
		if _, err := os.Stat(p); err != nil {
			return errors.Wrapf(err, "missing %s artifact", role)
		}
	}
	return nil
}

// RemoteScript is the staged path of an installer script for role.
func RemoteScript(stage, role, script string) string {
	return path.Join(stage, role, "scripts", script+".sh")
}

// RemoteBin is the staged binary directory for role.
func RemoteBin(stage, role string) string {
	return path.Join(stage, role, "bin")
}
