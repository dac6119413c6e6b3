package kubernetes

import (
	"context"
	"time"

	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// APIServerDaemon is the daemon name the readiness hook waits on.
const APIServerDaemon = "kube-apiserver"

// GetClientset builds a clientset for context in the kubeconfig at filename.
// An empty context means the current context.
func GetClientset(filename, context string) (*kubernetes.Clientset, error) {
	rules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: filename}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: context}

	kfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "loading kubeconfig %s", filename)
	}
	return kubernetes.NewForConfig(kfg)
}

// Healthz reports whether the API server answers /healthz with ok.
func Healthz(ctx context.Context, clientset kubernetes.Interface) bool {
	body, err := clientset.Discovery().RESTClient().Get().AbsPath("/healthz").Do(ctx).Raw()
	return err == nil && string(body) == "ok"
}

// APIServerReadiness returns a readiness hook that, after kube-apiserver was
// started, polls the API server at server until /healthz answers or timeout
// passes. Other daemons return immediately.
func APIServerReadiness(server string, interval, timeout time.Duration, log *logrus.Entry) func(context.Context, topology.Host, string) error {
	return func(ctx context.Context, host topology.Host, daemon string) error {
		if daemon != APIServerDaemon {
			return nil
		}

		clientset, err := kubernetes.NewForConfig(&rest.Config{Host: server, Timeout: interval})
		if err != nil {
			return err
		}
		return WaitAPIServerReady(ctx, clientset, interval, timeout, log.WithField("host", host.String()))
	}
}

func WaitAPIServerReady(ctx context.Context, clientset kubernetes.Interface, interval, timeout time.Duration, log *logrus.Entry) error {
	err := wait.PollImmediate(interval, timeout, func() (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		ok := Healthz(ctx, clientset)
		if !ok {
			log.Debug("waiting for kube-apiserver")
		}
		return ok, nil
	})
	if err != nil {
		return errors.Wrap(err, "kube-apiserver did not become ready")
	}
	return nil
}
