package testutils

import (
	"context"
	"io/ioutil"
	"os"
	"strings"
	"sync"

	"github.com/greymatter-io/sshk/remote"
)

// TempDir creates a temporary directory in /tmp and returns the dir and a
// function to delete it.
func TempDir() (tmpDir string, cleanup func() error, err error) {
	tmpDir, err = ioutil.TempDir(os.TempDir(), "sshk-*")
	if err != nil {
		return "", nil, err
	}

	cleanup = func() error {
		return os.RemoveAll(tmpDir)
	}

	return tmpDir, cleanup, nil
}

// FakeChannel records every call and succeeds unless RunFunc or CopyFunc say
// otherwise. It is safe for concurrent use.
type FakeChannel struct {
	RunFunc  func(cmd remote.Command) error
	CopyFunc func(t remote.Transfer) error

	mu        sync.Mutex
	commands  []remote.Command
	transfers []remote.Transfer
	calls     []string
}

func (f *FakeChannel) Run(ctx context.Context, cmd remote.Command) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.calls = append(f.calls, cmd.Host.IP+" run "+cmd.Line())
	f.mu.Unlock()

	if f.RunFunc != nil {
		return f.RunFunc(cmd)
	}
	return nil
}

func (f *FakeChannel) Copy(ctx context.Context, t remote.Transfer) error {
	f.mu.Lock()
	f.transfers = append(f.transfers, t)
	f.calls = append(f.calls, t.Host.IP+" copy "+strings.Join(t.Sources, " ")+" -> "+t.Destination)
	f.mu.Unlock()

	if f.CopyFunc != nil {
		return f.CopyFunc(t)
	}
	return nil
}

func (f *FakeChannel) Commands() []remote.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Command(nil), f.commands...)
}

func (f *FakeChannel) Transfers() []remote.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Transfer(nil), f.transfers...)
}

// Calls returns "<ip> run <line>" and "<ip> copy <sources> -> <dest>" entries
// in call order.
func (f *FakeChannel) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Lines returns the command lines sent to ip, in order.
func (f *FakeChannel) Lines(ip string) []string {
	var lines []string
	for _, c := range f.Commands() {
		if c.Host.IP == ip {
			lines = append(lines, c.Line())
		}
	}
	return lines
}

// ExitStatus builds the error a channel returns for a non-zero exit.
func ExitStatus(cmd remote.Command, status int) error {
	return &remote.RemoteExecutionError{Host: cmd.Host, Command: cmd.Line(), ExitStatus: status}
}

// FakeConnector hands out Channel, or fails with Err.
type FakeConnector struct {
	Channel remote.Channel
	Err     error

	Connected bool
	Closed    bool
}

func (c *FakeConnector) Connect(ctx context.Context) (remote.Channel, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.Connected = true
	return c.Channel, nil
}

func (c *FakeConnector) Close() error {
	c.Closed = true
	return nil
}
