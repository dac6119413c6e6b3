package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/greymatter-io/sshk/remote"
	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReadinessHook is called after each daemon start command returns. A nil hook
// means daemons are started back to back without waiting.
type ReadinessHook func(ctx context.Context, host topology.Host, daemon string) error

// ProvisionError names the host and the step that stopped provisioning.
type ProvisionError struct {
	Host topology.Host
	Role Role
	Step string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning %s %s: %s: %v", e.Role, e.Host, e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

type Provisioner struct {
	Channel   remote.Channel
	Readiness ReadinessHook
	Log       *logrus.Entry
}

// Provision runs plan: ensure dirs, copy, install, then one start per daemon.
// The first failure aborts; nothing is rolled back.
func (p *Provisioner) Provision(ctx context.Context, plan Plan) error {
	log := p.logger().WithFields(logrus.Fields{"host": plan.Host.String(), "role": plan.Role})
	fail := func(step string, err error) error {
		return &ProvisionError{Host: plan.Host, Role: plan.Role, Step: step, Err: err}
	}

	log.WithField("step", "ensure-dirs").Debug("creating remote directories")
	if err := p.Channel.Run(ctx, remote.NewCommand(plan.Host, plan.EnsureDirs()...)); err != nil {
		return fail("ensure-dirs", err)
	}

	sources, cleanup, err := stageFiles(plan)
	if err != nil {
		return fail("copy", err)
	}
	defer cleanup()

	log.WithField("step", "copy").Info("copying artifacts")
	err = p.Channel.Copy(ctx, remote.Transfer{
		Host:        plan.Host,
		Sources:     sources,
		Destination: plan.Stage,
		Recursive:   true,
	})
	if err != nil {
		return fail("copy", err)
	}

	log.WithField("step", "install").Info("installing binaries")
	if err := p.Channel.Run(ctx, remote.NewCommand(plan.Host, plan.Install...)); err != nil {
		return fail("install", err)
	}

	for _, d := range plan.Daemons {
		log.WithField("step", d.Name).Info("starting daemon")
		if err := p.Channel.Run(ctx, remote.NewCommand(plan.Host, d.Statement())); err != nil {
			return fail(d.Name, err)
		}

		if p.Readiness != nil {
			if err := p.Readiness(ctx, plan.Host, d.Name); err != nil {
				return fail(d.Name+" readiness", err)
			}
		}
	}

	log.Info("provisioned")
	return nil
}

// stageFiles writes the plan's generated files to a temp dir and returns the
// full source list.
func stageFiles(plan Plan) ([]string, func(), error) {
	sources := append([]string{}, plan.Sources...)
	if len(plan.Files) == 0 {
		return sources, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "sshk-stage-*")
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating staging dir")
	}
	cleanup := func() { os.RemoveAll(dir) }

	names := make([]string, 0, len(plan.Files))
	for name := range plan.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, plan.Files[name], 0644); err != nil {
			cleanup()
			return nil, nil, errors.Wrapf(err, "writing %s", name)
		}
		sources = append(sources, p)
	}
	return sources, cleanup, nil
}

func (p *Provisioner) logger() *logrus.Entry {
	if p.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return p.Log
}
