package lxd

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	lxd "github.com/lxc/lxd/client"
	"github.com/lxc/lxd/lxc/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	snapSocketPath = "/var/snap/lxd/common/lxd/unix.socket"
	localRemote    = "local"
)

// ConfigDir is the lxc client configuration directory. LXD_CONF wins over
// the snap and the plain ~/.config/lxc locations.
func ConfigDir(home string, snap bool) string {
	if dir := os.Getenv("LXD_CONF"); dir != "" {
		return dir
	}
	if snap {
		return filepath.Join(home, "snap", "lxd", "common", "config")
	}
	return filepath.Join(home, ".config", "lxc")
}

// LoadClientConfig reads config.yml from dir. A missing file yields the lxc
// defaults, whose default remote is the local unix socket.
func LoadClientConfig(dir string) (*config.Config, error) {
	file := filepath.Join(dir, "config.yml")
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return config.NewConfig(dir, true), nil
	}

	conf, err := config.LoadConfig(file)
	if err != nil {
		return nil, errors.Wrapf(err, "loading lxc config %s", file)
	}
	return conf, nil
}

// InstanceServerConnect connects to the named remote of the local lxc
// client, or to its default remote when remoteName is empty.
func InstanceServerConnect(remoteName string, log *logrus.Entry) (lxd.InstanceServer, error) {
	snap := isSnap()
	conf, err := LoadClientConfig(ConfigDir(os.Getenv("HOME"), snap))
	if err != nil {
		return nil, err
	}

	if remoteName == "" {
		remoteName = conf.DefaultRemote
	}
	log = log.WithField("remote", remoteName)

	// The snap daemon does not listen on the socket path the lxc config
	// assumes for "local".
	if snap && remoteName == localRemote {
		log.Debugf("lxd: connecting to %s", snapSocketPath)
		is, err := lxd.ConnectLXDUnix(snapSocketPath, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "connecting to %s", snapSocketPath)
		}
		return is, nil
	}

	log.Debug("lxd: connecting")
	is, err := conf.GetInstanceServer(remoteName)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to lxd remote %q", remoteName)
	}
	return is, nil
}

// isSnap reports whether the lxc on PATH comes from the snap. No lxc binary
// means the plain layout.
func isSnap() bool {
	p, err := exec.LookPath("lxc")
	if err != nil {
		return false
	}
	return strings.Contains(p, "/snap/")
}
