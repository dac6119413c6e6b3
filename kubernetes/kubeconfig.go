package kubernetes

import (
	"crypto/rand"
	"math/big"
	"os"

	"github.com/pkg/errors"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const (
	DefaultUser    = "admin"
	passwordLength = 16
	passwordChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Credentials are the basic-auth credentials for the API server.
type Credentials struct {
	User     string
	Password string
}

// GetOrCreateCredentials reuses the basic-auth user of context in the
// kubeconfig at path, or generates admin plus a random password. reused
// reports which happened.
func GetOrCreateCredentials(path, context string) (creds Credentials, reused bool, err error) {
	cfg, err := loadKubeconfig(path)
	if err != nil {
		return Credentials{}, false, err
	}

	if ctx, ok := cfg.Contexts[context]; ok {
		if auth, ok := cfg.AuthInfos[ctx.AuthInfo]; ok && auth.Username != "" && auth.Password != "" {
			return Credentials{User: auth.Username, Password: auth.Password}, true, nil
		}
	}

	password, err := randomPassword(passwordLength)
	if err != nil {
		return Credentials{}, false, err
	}
	return Credentials{User: DefaultUser, Password: password}, false, nil
}

// WriteKubeconfig adds or replaces cluster, user and context entries named
// context in the kubeconfig at path and makes context current. Other entries
// are kept.
func WriteKubeconfig(path, context, server string, creds Credentials) error {
	cfg, err := loadKubeconfig(path)
	if err != nil {
		return err
	}

	cluster := clientcmdapi.NewCluster()
	cluster.Server = server
	cfg.Clusters[context] = cluster

	auth := clientcmdapi.NewAuthInfo()
	auth.Username = creds.User
	auth.Password = creds.Password
	cfg.AuthInfos[context] = auth

	kctx := clientcmdapi.NewContext()
	kctx.Cluster = context
	kctx.AuthInfo = context
	cfg.Contexts[context] = kctx
	cfg.CurrentContext = context

	if err := clientcmd.WriteToFile(*cfg, path); err != nil {
		return errors.Wrapf(err, "writing kubeconfig %s", path)
	}
	return nil
}

func loadKubeconfig(path string) (*clientcmdapi.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return clientcmdapi.NewConfig(), nil
	}

	cfg, err := clientcmd.LoadFromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading kubeconfig %s", path)
	}

	empty := clientcmdapi.NewConfig()
	if cfg.Clusters == nil {
		cfg.Clusters = empty.Clusters
	}
	if cfg.AuthInfos == nil {
		cfg.AuthInfos = empty.AuthInfos
	}
	if cfg.Contexts == nil {
		cfg.Contexts = empty.Contexts
	}
	return cfg, nil
}

func randomPassword(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(passwordChars)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "generating password")
		}
		b[i] = passwordChars[idx.Int64()]
	}
	return string(b), nil
}
