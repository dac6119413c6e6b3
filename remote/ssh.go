package remote

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

const defaultSSHPort = 22

// SSHChannel runs commands over a fresh SSH connection per call. Calls have
// no timeout: a hung remote command blocks until ctx is cancelled.
type SSHChannel struct {
	Auth []ssh.AuthMethod
	Port int

	// DialTimeout bounds the TCP connect only. Zero means no bound.
	DialTimeout time.Duration

	Log *logrus.Entry
}

func (c *SSHChannel) Run(ctx context.Context, cmd Command) error {
	line := cmd.Line()
	c.logger().WithField("host", cmd.Host.String()).Debugf("ssh: %s", line)

	err := c.withSession(ctx, cmd.Host, func(s *ssh.Session) error {
		if cmd.TTY {
			modes := ssh.TerminalModes{ssh.ECHO: 0}
			if err := s.RequestPty("xterm", 40, 80, modes); err != nil {
				return errors.Wrap(err, "requesting pty")
			}
		}
		s.Stdout = writerOrDiscard(cmd.Stdout)
		s.Stderr = writerOrDiscard(cmd.Stderr)
		return s.Run(line)
	})
	if err != nil {
		return execError(cmd.Host, line, err)
	}
	return nil
}

func (c *SSHChannel) Copy(ctx context.Context, t Transfer) error {
	if err := CheckSources(t.Sources, t.Recursive); err != nil {
		return &TransferError{Host: t.Host, Sources: t.Sources, Err: err}
	}
	c.logger().WithField("host", t.Host.String()).Debugf("copy: %v -> %s", t.Sources, t.Destination)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteArchive(pw, t.Sources, t.Recursive))
	}()
	defer pr.Close()

	err := c.withSession(ctx, t.Host, func(s *ssh.Session) error {
		s.Stdin = pr
		return s.Run(ExtractCommand(t.Destination))
	})
	if err != nil {
		return &TransferError{Host: t.Host, Sources: t.Sources, Err: err}
	}
	return nil
}

func (c *SSHChannel) withSession(ctx context.Context, host topology.Host, fn func(*ssh.Session) error) error {
	client, err := c.dial(ctx, host)
	if err != nil {
		return err
	}
	defer client.Close()

	s, err := client.NewSession()
	if err != nil {
		return errors.Wrapf(err, "opening session on %s", host)
	}
	defer s.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	return fn(s)
}

func (c *SSHChannel) dial(ctx context.Context, host topology.Host) (*ssh.Client, error) {
	port := c.Port
	if port == 0 {
		port = defaultSSHPort
	}
	addr := net.JoinHostPort(host.IP, strconv.Itoa(port))

	cfg := &ssh.ClientConfig{
		User: host.User,
		Auth: c.Auth,
		// Cluster hosts are ephemeral and get re-imaged, so there is no
		// stable host key to pin. Host keys are accepted without
		// verification and nothing is written to known_hosts. This is a
		// deliberate trust trade-off: run sshk only on networks you trust.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         c.DialTimeout,
	}

	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", host)
	}

	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s", host)
	}
	return ssh.NewClient(cc, chans, reqs), nil
}

func (c *SSHChannel) logger() *logrus.Entry {
	if c.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.Log
}

func execError(host topology.Host, line string, err error) error {
	status := -1
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		status = exitErr.ExitStatus()
	}
	return &RemoteExecutionError{Host: host, Command: line, ExitStatus: status, Err: err}
}

// SSHConnector gates every SSH run on the agent identity precondition and
// hands out a channel authenticating through that agent.
type SSHConnector struct {
	Identity    Identity
	Port        int
	DialTimeout time.Duration
	Log         *logrus.Entry

	session *AgentSession
}

func (c *SSHConnector) Connect(ctx context.Context) (Channel, error) {
	s, err := c.Identity.Ensure()
	if err != nil {
		return nil, err
	}
	c.session = s

	return &SSHChannel{
		Auth:        []ssh.AuthMethod{s.AuthMethod()},
		Port:        c.Port,
		DialTimeout: c.DialTimeout,
		Log:         c.Log,
	}, nil
}

func (c *SSHConnector) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
