package config

import (
	"net"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const (
	DefaultServiceClusterIPRange = "192.168.3.0/24"
	DefaultFlannelNet            = "172.16.0.0/16"
	DefaultAdmissionControl      = "NamespaceLifecycle,NamespaceExists,LimitRanger,ServiceAccount,ResourceQuota,SecurityContextDeny"
	DefaultRemoteDir             = "kube_temp"
	DefaultRuntimeInstallURL     = "https://get.docker.com"
	DefaultContext               = "sshk"

	// APIPort is the insecure API server port the emitted kubeconfig points at.
	APIPort = 8080
)

// Options is the read-only configuration for one run. It is built once by
// the CLI and passed by value; nothing below cmd/ reads the environment.
type Options struct {
	Master string   `toml:"master"`
	Nodes  []string `toml:"nodes"`

	// EtcdServers is a comma separated endpoint list. Empty means
	// http://<master ip>:2379.
	EtcdServers           string `toml:"etcd_servers"`
	ServiceClusterIPRange string `toml:"service_cluster_ip_range"`
	AdmissionControl      string `toml:"admission_control"`
	FlannelNet            string `toml:"flannel_net"`
	DockerOpts            string `toml:"docker_opts"`
	RuntimeInstallURL     string `toml:"runtime_install_url"`

	// RemoteDir is the staging directory on every host, relative to the
	// login user's home unless absolute.
	RemoteDir string `toml:"kube_temp"`
	// ArtifactDir is the local root holding binaries/, master/, node/ and
	// make-ca-cert.sh.
	ArtifactDir string `toml:"artifact_dir"`

	Context    string `toml:"context"`
	Kubeconfig string `toml:"kubeconfig"`
}

func Defaults() Options {
	return Options{
		ServiceClusterIPRange: DefaultServiceClusterIPRange,
		AdmissionControl:      DefaultAdmissionControl,
		FlannelNet:            DefaultFlannelNet,
		RuntimeInstallURL:     DefaultRuntimeInstallURL,
		RemoteDir:             DefaultRemoteDir,
		ArtifactDir:           ".",
		Context:               DefaultContext,
	}
}

// LoadFile decodes a TOML options file over base. A missing file is not an
// error.
func LoadFile(path string, base Options) (Options, error) {
	if path == "" {
		return base, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}

	conf := base
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return base, errors.Wrap(err, "error loading config file")
	}
	return conf, nil
}

// OptionsFromCLIContext layers defaults, the --config file, and any flag or
// environment variable that was explicitly set, in that order.
func OptionsFromCLIContext(ctx *cli.Context) (Options, error) {
	conf, err := LoadFile(ctx.String("config"), Defaults())
	if err != nil {
		return conf, err
	}

	set := func(flag string, dst *string) {
		if ctx.IsSet(flag) {
			*dst = ctx.String(flag)
		}
	}
	set("master", &conf.Master)
	set("etcd-servers", &conf.EtcdServers)
	set("service-cluster-ip-range", &conf.ServiceClusterIPRange)
	set("admission-control", &conf.AdmissionControl)
	set("flannel-net", &conf.FlannelNet)
	set("docker-opts", &conf.DockerOpts)
	set("runtime-install-url", &conf.RuntimeInstallURL)
	set("kube-temp", &conf.RemoteDir)
	set("artifact-dir", &conf.ArtifactDir)
	set("context", &conf.Context)
	set("kubeconfig", &conf.Kubeconfig)
	if ctx.IsSet("nodes") {
		conf.Nodes = SplitList(ctx.String("nodes"))
	}

	return conf, conf.Validate()
}

// SplitList splits a NODES style list on whitespace and commas.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func (o Options) Validate() error {
	if strings.TrimSpace(o.Master) == "" {
		return errors.New("master address must be set (--master or MASTER)")
	}
	if _, _, err := net.ParseCIDR(o.ServiceClusterIPRange); err != nil {
		return errors.Wrap(err, "invalid service cluster ip range")
	}
	if _, _, err := net.ParseCIDR(o.FlannelNet); err != nil {
		return errors.Wrap(err, "invalid flannel net")
	}
	if o.RemoteDir == "" {
		return errors.New("kube_temp must not be empty")
	}
	return nil
}

// EtcdEndpoints returns the configured store endpoints, defaulting to an etcd
// on the master.
func (o Options) EtcdEndpoints(masterIP string) string {
	if o.EtcdServers != "" {
		return o.EtcdServers
	}
	return "http://" + net.JoinHostPort(masterIP, "2379")
}

// FirstServiceIP is the first address of the service range, the cluster IP of
// the kubernetes service.
func (o Options) FirstServiceIP() (net.IP, error) {
	_, ipnet, err := net.ParseCIDR(o.ServiceClusterIPRange)
	if err != nil {
		return nil, errors.Wrap(err, "invalid service cluster ip range")
	}

	ip := ipnet.IP.To4()
	if ip == nil {
		ip = ipnet.IP
	}
	first := make(net.IP, len(ip))
	copy(first, ip)
	for i := len(first) - 1; i >= 0; i-- {
		first[i]++
		if first[i] != 0 {
			break
		}
	}
	if !ipnet.Contains(first) {
		return nil, errors.Errorf("service range %s has no usable address", o.ServiceClusterIPRange)
	}
	return first, nil
}
