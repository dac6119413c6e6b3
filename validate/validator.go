package validate

import (
	"context"
	"io"

	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type State int

const (
	Validating State = iota
	Healthy
	Unhealthy
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	}
	return "unknown"
}

var ErrValidationFailed = errors.New("cluster validation failed")

// ValidationError carries the failed check's error and matches
// ErrValidationFailed.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return ErrValidationFailed.Error() + ": " + e.Cause.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// TroubleshootFunc inspects every host of topo. It is only called once the
// check has failed, so it may open connections the check does not need.
type TroubleshootFunc func(ctx context.Context, topo topology.Topology) ([]Report, error)

type Validator struct {
	Check        Check
	Troubleshoot TroubleshootFunc

	// Out receives troubleshooting output, rendered in Format.
	Out    io.Writer
	Format string
	Log    *logrus.Entry
}

// Validate runs the check. When it fails every host is troubleshot, the
// reports are written to Out and a *ValidationError is returned. An error
// from Troubleshoot is returned in its place.
func (v *Validator) Validate(ctx context.Context, topo topology.Topology) (State, error) {
	log := v.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log.WithField("state", Validating).Info("validating cluster")

	checkErr := v.Check.Check(ctx)
	if checkErr == nil {
		log.WithField("state", Healthy).Info("cluster is healthy")
		return Healthy, nil
	}
	log.WithField("state", Unhealthy).WithError(checkErr).Error("cluster is unhealthy, troubleshooting")

	reports, err := v.Troubleshoot(ctx, topo)
	if err != nil {
		return Unhealthy, errors.Wrap(err, "troubleshooting")
	}
	if err := RenderReports(v.Out, reports, v.Format); err != nil {
		log.WithError(err).Error("rendering troubleshooting output")
	}
	return Unhealthy, &ValidationError{Cause: checkErr}
}
