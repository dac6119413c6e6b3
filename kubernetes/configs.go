package kubernetes

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/greymatter-io/sshk/config"
	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/topology"
)

// EnvFileName is the rendered options file staged to every host so the
// installer scripts can source it.
const EnvFileName = "config-default.env"

// ClusterEnv renders the run's options as a shell sourceable file.
func ClusterEnv(opts config.Options, topo topology.Topology) []byte {
	nodes := make([]string, 0, len(topo.Nodes))
	for _, n := range topo.Nodes {
		nodes = append(nodes, n.Address)
	}

	vars := [][2]string{
		{"MASTER", topo.Master.Address},
		{"MASTER_IP", topo.Master.IP},
		{"NODES", strings.Join(nodes, " ")},
		{"ETCD_SERVERS", opts.EtcdEndpoints(topo.Master.IP)},
		{"SERVICE_CLUSTER_IP_RANGE", opts.ServiceClusterIPRange},
		{"ADMISSION_CONTROL", opts.AdmissionControl},
		{"FLANNEL_NET", opts.FlannelNet},
		{"DOCKER_OPTS", opts.DockerOpts},
		{"KUBE_TEMP", opts.RemoteDir},
	}

	var b bytes.Buffer
	b.WriteString("# generated by sshk\n")
	for _, v := range vars {
		fmt.Fprintf(&b, "export %s=%s\n", v[0], remote.Quote(v[1]))
	}
	return b.Bytes()
}
