package remote

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/greymatter-io/sshk/topology"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

var localhost = topology.Host{Address: "root@127.0.0.1", User: "root", IP: "127.0.0.1"}

// startSSHServer runs an ssh server on a loopback port that executes every
// exec request with sh in dir and reports its exit status.
func startSSHServer(t *testing.T, dir string) int {
	t.Helper()

	hostKey, err := ssh.NewSignerFromKey(newKey(t))
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	cfg.AddHostKey(hostKey)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(conn, cfg, dir)
		}
	}()

	return l.Addr().(*net.TCPAddr).Port
}

func serveSSHConn(conn net.Conn, cfg *ssh.ServerConfig, dir string) {
	sc, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, requests, dir)
	}
}

func serveSession(ch ssh.Channel, requests <-chan *ssh.Request, dir string) {
	defer ch.Close()

	for req := range requests {
		switch req.Type {
		case "pty-req":
			req.Reply(true, nil)
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				return
			}
			req.Reply(true, nil)

			cmd := exec.Command("sh", "-c", payload.Command)
			cmd.Dir = dir
			cmd.Stdin = ch
			cmd.Stdout = ch
			cmd.Stderr = ch.Stderr()

			status := 0
			if err := cmd.Run(); err != nil {
				status = 255
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					status = exitErr.ExitCode()
				}
			}
			ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
			return
		default:
			req.Reply(false, nil)
		}
	}
}

func testSSHChannel(t *testing.T, dir string) *SSHChannel {
	t.Helper()
	signer, err := ssh.NewSignerFromKey(newKey(t))
	require.NoError(t, err)

	return &SSHChannel{
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Port: startSSHServer(t, dir),
	}
}

func TestSSHChannelRun(t *testing.T) {
	dir := t.TempDir()
	c := testSSHChannel(t, dir)

	var out bytes.Buffer
	cmd := NewCommand(localhost, "mkdir -p kube_temp", "echo ok")
	cmd.Stdout = &out
	require.NoError(t, c.Run(context.Background(), cmd))

	assert.Equal(t, "ok\n", out.String())
	info, err := os.Stat(filepath.Join(dir, "kube_temp"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSSHChannelRunExitStatus(t *testing.T) {
	c := testSSHChannel(t, t.TempDir())

	err := c.Run(context.Background(), NewCommand(localhost, "true", "exit 3"))
	require.Error(t, err)

	var execErr *RemoteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitStatus)
	assert.Equal(t, "true && exit 3", execErr.Command)
	assert.Equal(t, localhost, execErr.Host)
}

func TestSSHChannelRunUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	c := &SSHChannel{Port: port}
	err = c.Run(context.Background(), NewCommand(localhost, "true"))

	var execErr *RemoteExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, -1, execErr.ExitStatus)
}

func TestSSHChannelCopy(t *testing.T) {
	remoteDir := t.TempDir()
	c := testSSHChannel(t, remoteDir)

	local := t.TempDir()
	writeFile(t, filepath.Join(local, "binaries", "node", "bin", "kubelet"), "kubelet-bin", 0755)
	writeFile(t, filepath.Join(local, "release", "node", "scripts", "kubelet.sh"), "#!/bin/bash", 0644)
	require.NoError(t, os.Symlink(filepath.Join(local, "release", "node"), filepath.Join(local, "node")))

	err := c.Copy(context.Background(), Transfer{
		Host:        localhost,
		Sources:     []string{filepath.Join(local, "binaries", "node"), filepath.Join(local, "node")},
		Destination: "kube_temp",
		Recursive:   true,
	})
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(remoteDir, "kube_temp", "node", "bin", "kubelet"))
	require.NoError(t, err)
	assert.Equal(t, "kubelet-bin", string(b))

	info, err := os.Lstat(filepath.Join(remoteDir, "kube_temp", "node"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = os.Lstat(filepath.Join(remoteDir, "kube_temp", "node", "scripts", "kubelet.sh"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestSSHChannelCopyFailure(t *testing.T) {
	remoteDir := t.TempDir()
	c := testSSHChannel(t, remoteDir)
	writeFile(t, filepath.Join(remoteDir, "kube_temp"), "a file, not a dir", 0644)

	local := t.TempDir()
	writeFile(t, filepath.Join(local, "make-ca-cert.sh"), "ca", 0755)

	err := c.Copy(context.Background(), Transfer{
		Host:        localhost,
		Sources:     []string{filepath.Join(local, "make-ca-cert.sh")},
		Destination: "kube_temp",
	})

	var transferErr *TransferError
	require.True(t, errors.As(err, &transferErr))
	assert.Equal(t, localhost, transferErr.Host)
}
