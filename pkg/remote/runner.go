// Package remote is the command-and-response channel to the server host: run
// a shell script and capture its output, or push a file. It is deliberately
// thin; all provisioning semantics live in the callers.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// ExecError reports a command that ran on the remote host and exited
// non-zero. Connection-level failures are returned as plain wrapped errors so
// callers can tell the two apart.
type ExecError struct {
	ExitCode int
	Output   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("remote command exited %d (%s)", e.ExitCode, e.Output)
}

// TransferError reports a failed file push, naming the remote path.
type TransferError struct {
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer to %s failed: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Client executes commands on a single remote host over SSH with key auth.
// Each call dials a fresh connection; the channel is slow but stateless.
type Client struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	Timeout time.Duration
	Sudo    bool
}

func (c *Client) dial() (*ssh.Client, error) {
	keyPath := expandHome(c.KeyPath)
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", keyPath, err)
	}

	cfg := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.Timeout,
	}
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s@%s: %w", c.User, addr, err)
	}
	return client, nil
}

// Run executes a multi-line shell script on the remote host and returns its
// trimmed combined output. A non-zero exit comes back as *ExecError.
func (c *Client) Run(ctx context.Context, script string) (string, error) {
	client, err := c.dial()
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	remoteCmd := "/bin/sh -lc " + ShellQuote(script)
	if c.Sudo {
		remoteCmd = "sudo -n " + remoteCmd
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(remoteCmd)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", ctx.Err()
	case res := <-done:
		out := strings.TrimSpace(string(res.out))
		if res.err != nil {
			var ee *ssh.ExitError
			if errors.As(res.err, &ee) {
				return out, &ExecError{ExitCode: ee.ExitStatus(), Output: out}
			}
			return out, fmt.Errorf("remote command failed: %w", res.err)
		}
		return out, nil
	}
}

// Push streams content to remotePath on the remote host. The destination
// directory must already exist; callers move the file into its final place
// themselves so the install is atomic.
func (c *Client) Push(ctx context.Context, content []byte, remotePath string) error {
	client, err := c.dial()
	if err != nil {
		return &TransferError{Path: remotePath, Err: err}
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return &TransferError{Path: remotePath, Err: err}
	}
	defer session.Close()

	session.Stdin = strings.NewReader(string(content))
	cmd := "/bin/sh -c " + ShellQuote("cat > "+ShellQuote(remotePath))
	if c.Sudo {
		cmd = "sudo -n " + cmd
	}

	done := make(chan error, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		if err != nil {
			err = fmt.Errorf("%w (%s)", err, strings.TrimSpace(string(out)))
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return &TransferError{Path: remotePath, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return &TransferError{Path: remotePath, Err: err}
		}
		log.WithFields(log.Fields{"host": c.Host, "path": remotePath, "bytes": len(content)}).Debug("file pushed")
		return nil
	}
}

// ShellQuote wraps s in single quotes with embedded quotes escaped, making it
// safe to splice into a shell command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
