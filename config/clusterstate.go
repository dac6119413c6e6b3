package config

import (
	"time"
)

type RunState string

const (
	Uninitialized RunState = "uninitialized"
	Provisioning  RunState = "provisioning"
	Provisioned   RunState = "provisioned"
	Failed        RunState = "failed"
)

// ClusterState is what sshk remembers about a cluster between runs. It is
// written as state.toml in the cluster's cache directory.
type ClusterState struct {
	Name     string   `toml:"name"`
	RunState RunState `toml:"run_state"`

	Master string   `toml:"master"`
	Nodes  []string `toml:"nodes"`

	Server     string    `toml:"server"`
	Kubeconfig string    `toml:"kubeconfig"`
	UpdatedAt  time.Time `toml:"updated_at"`
}
