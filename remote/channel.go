// Package remote is the single way sshk reaches cluster machines: it runs
// commands on, and copies files to, a topology.Host.
package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/greymatter-io/sshk/topology"
)

// Channel executes commands on and copies files to cluster hosts. Every call
// blocks until the remote side finishes.
type Channel interface {
	// Run executes cmd. A non-zero exit status is returned as a
	// *RemoteExecutionError; callers decide whether it is fatal.
	Run(ctx context.Context, cmd Command) error

	// Copy transfers local paths into a remote directory. Failures are
	// returned as a *TransferError.
	Copy(ctx context.Context, t Transfer) error
}

// Connector prepares a Channel for one run and releases whatever it set up
// (for SSH, an agent started for the run) on Close.
type Connector interface {
	Connect(ctx context.Context) (Channel, error)
	Close() error
}

// Command is one remote invocation. Statements are joined with "&&" so the
// first failing statement stops the sequence and its status is returned.
type Command struct {
	Host       topology.Host
	Statements []string

	// TTY requests a pseudo-terminal, which sudo on some distributions needs.
	TTY bool

	// Stdout and Stderr receive command output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

func NewCommand(host topology.Host, statements ...string) Command {
	return Command{Host: host, Statements: statements, TTY: true}
}

// Line is the shell line sent to the host.
func (c Command) Line() string {
	return strings.Join(c.Statements, " && ")
}

// Transfer copies local paths into a directory on Host.
type Transfer struct {
	Host        topology.Host
	Sources     []string
	Destination string
	Recursive   bool
}

// RemoteExecutionError reports a command that did not exit 0. ExitStatus is -1
// when the command never produced a status (connection failure, killed
// session).
type RemoteExecutionError struct {
	Host       topology.Host
	Command    string
	ExitStatus int
	Err        error
}

func (e *RemoteExecutionError) Error() string {
	if e.ExitStatus < 0 {
		return fmt.Sprintf("running %q on %s: %v", e.Command, e.Host, e.Err)
	}
	return fmt.Sprintf("%q on %s exited with status %d", e.Command, e.Host, e.ExitStatus)
}

func (e *RemoteExecutionError) Unwrap() error {
	return e.Err
}

type TransferError struct {
	Host    topology.Host
	Sources []string
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("copying %s to %s: %v", strings.Join(e.Sources, ", "), e.Host, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
