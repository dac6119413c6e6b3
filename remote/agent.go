package remote

import (
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// IdentityOutcome is the rung of the identity ladder a run ended on.
type IdentityOutcome int

const (
	// IdentityAvailable means the agent already held an identity.
	IdentityAvailable IdentityOutcome = iota
	// IdentityRecoveredByAdd means a default identity was added.
	IdentityRecoveredByAdd
	// IdentityUnrecoverable means no identity could be found or added.
	IdentityUnrecoverable
)

func (o IdentityOutcome) String() string {
	switch o {
	case IdentityAvailable:
		return "already-available"
	case IdentityRecoveredByAdd:
		return "recovered-by-add"
	default:
		return "unrecoverable"
	}
}

// NoIdentityError is the fatal precondition failure raised before any remote
// work when the agent holds no usable identity.
type NoIdentityError struct {
	SocketPath string
	Tried      []string
}

func (e *NoIdentityError) Error() string {
	return fmt.Sprintf("could not find or add an SSH identity (agent %q, tried %v): "+
		"start ssh-agent, add your identity with ssh-add, and retry", e.SocketPath, e.Tried)
}

// Identity is the agent precondition. SocketPath and DefaultKeys are resolved
// by the caller (usually from SSH_AUTH_SOCK and ~/.ssh).
type Identity struct {
	SocketPath  string
	DefaultKeys []string
	Log         *logrus.Entry
}

// AgentSession holds the agent used for one run.
type AgentSession struct {
	Agent   agent.Agent
	Outcome IdentityOutcome

	// Started is true when no agent was reachable and one was created for
	// this run; Close then wipes it.
	Started bool

	conn net.Conn
}

// Ensure walks the ladder: reach an agent (or start one scoped to the run),
// add a default identity if the agent is empty, and fail with
// *NoIdentityError if it is still empty.
func (i Identity) Ensure() (*AgentSession, error) {
	log := i.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &AgentSession{}
	if conn, err := dialAgent(i.SocketPath); err == nil {
		s.Agent = agent.NewClient(conn)
		s.conn = conn
	} else {
		log.WithError(err).Debug("no ssh agent reachable, starting one for this run")
		s.Agent = agent.NewKeyring()
		s.Started = true
	}

	if hasIdentity(s.Agent) {
		s.Outcome = IdentityAvailable
		return s, nil
	}

	for _, path := range i.DefaultKeys {
		if err := addKey(s.Agent, path); err != nil {
			log.WithError(err).Debugf("could not add identity %s", path)
		}
	}
	if hasIdentity(s.Agent) {
		s.Outcome = IdentityRecoveredByAdd
		log.Info("added default ssh identity to agent")
		return s, nil
	}

	s.Outcome = IdentityUnrecoverable
	_ = s.Close()
	return nil, &NoIdentityError{SocketPath: i.SocketPath, Tried: i.DefaultKeys}
}

// AuthMethod authenticates with whatever the agent holds.
func (s *AgentSession) AuthMethod() ssh.AuthMethod {
	return ssh.PublicKeysCallback(s.Agent.Signers)
}

// Close tears down an agent started for the run and drops the connection to
// an existing one.
func (s *AgentSession) Close() error {
	if s.Started {
		if err := s.Agent.RemoveAll(); err != nil {
			return err
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func dialAgent(socket string) (net.Conn, error) {
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	return net.Dial("unix", socket)
}

func hasIdentity(a agent.Agent) bool {
	keys, err := a.List()
	return err == nil && len(keys) > 0
}

// addKey adds an unencrypted private key. Encrypted keys fail and are
// skipped.
func addKey(a agent.Agent, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	key, err := ssh.ParseRawPrivateKey(b)
	if err != nil {
		return err
	}
	return a.Add(agent.AddedKey{PrivateKey: key, Comment: path})
}
