// Package mikrotik talks to MikroTik access concentrators over SSH. Each
// command opens its own session and closes it on return; connections are
// not pooled or shared between concurrent calls.
package mikrotik

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrConnection wraps transport or auth failures against the router.
var ErrConnection = errors.New("router connection failed")

// CommandError means the router's interpreter reported a failure for a
// command that was delivered fine.
type CommandError struct {
	Cmd    string
	Output string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("router command failed: %s: %s", e.Cmd, strings.TrimSpace(e.Output))
}

// Credentials identify one router and how to log into it.
type Credentials struct {
	Host     string // host or host:port, port 22 assumed
	Username string
	Secret   string
}

const defaultDialTimeout = 10 * time.Second

// RunCommand executes one RouterOS command over a fresh SSH session and
// returns its combined output. RouterOS prints "failure: ..." on command
// errors instead of using the exit status, so the output is checked too.
func RunCommand(ctx context.Context, creds Credentials, cmd string) (string, error) {
	addr := creds.Host
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	config := &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Secret),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // routers use self-generated keys
		Timeout:         defaultDialTimeout,
	}

	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("%w: handshake %s: %v", ErrConnection, addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: session %s: %v", ErrConnection, addr, err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	if err := session.Run(cmd); err != nil {
		return "", &CommandError{Cmd: cmd, Output: out.String() + err.Error()}
	}

	output := out.String()
	if strings.Contains(strings.ToLower(output), "failure") {
		return "", &CommandError{Cmd: cmd, Output: output}
	}
	return output, nil
}
