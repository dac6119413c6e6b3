// Package validate checks a provisioned cluster and, when the check fails,
// reports which daemons are down on which host.
package validate

import (
	"context"
	"io"
	"os/exec"

	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Check is a whole-cluster health check. A nil error means healthy.
type Check interface {
	Check(ctx context.Context) error
}

// ExecCheck runs an external validation command. Exit status 0 is healthy.
type ExecCheck struct {
	Command string
	Args    []string

	Stdout io.Writer
	Stderr io.Writer
}

func (c ExecCheck) Check(ctx context.Context) error {
	if c.Command == "" {
		return errors.New("no validation command configured")
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "running %s", c.Command)
	}
	return nil
}

// KubeCheck asks the API server: at least ExpectedNodes nodes must be Ready
// and every component status must be Healthy.
type KubeCheck struct {
	Clientset     kubernetes.Interface
	ExpectedNodes int
}

func (c KubeCheck) Check(ctx context.Context) error {
	nodes, err := c.Clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return errors.Wrap(err, "listing nodes")
	}

	ready := 0
	for _, n := range nodes.Items {
		if nodeReady(n) {
			ready++
		}
	}
	if ready < c.ExpectedNodes {
		return errors.Errorf("%d of %d nodes ready", ready, c.ExpectedNodes)
	}

	statuses, err := c.Clientset.CoreV1().ComponentStatuses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return errors.Wrap(err, "listing component statuses")
	}
	for _, cs := range statuses.Items {
		if !componentHealthy(cs) {
			return errors.Errorf("component %s is unhealthy", cs.Name)
		}
	}

	return nil
}

func nodeReady(n v1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == v1.NodeReady {
			return cond.Status == v1.ConditionTrue
		}
	}
	return false
}

func componentHealthy(cs v1.ComponentStatus) bool {
	for _, cond := range cs.Conditions {
		if cond.Type == v1.ComponentHealthy {
			return cond.Status == v1.ConditionTrue
		}
	}
	return false
}
