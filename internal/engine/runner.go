// Package engine drives a docker-compatible command-line client, either
// locally or on another host through a remote shell.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/mattn/go-shellwords"
)

// DefaultSSHCommand is the remote shell client used when none is configured.
const DefaultSSHCommand = "ssh"

// maxStderr bounds the stderr kept for error messages.
const maxStderr = 4096

// Runner executes a command vector. argv[0] names the program.
type Runner interface {
	Run(ctx context.Context, argv []string, stdin io.Reader, stdout io.Writer) error
}

// CommandError reports a command that could not be started or exited non-zero.
type CommandError struct {
	Argv   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// LocalRunner runs commands on this host.
type LocalRunner struct {
	// Stderr receives the command's standard error in addition to error reports.
	Stderr io.Writer
}

// Run implements Runner.
func (r *LocalRunner) Run(ctx context.Context, argv []string, stdin io.Reader, stdout io.Writer) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	return runCommand(ctx, argv, stdin, stdout, r.Stderr)
}

// SSHRunner runs commands on a remote host through a remote shell client.
// No timeout is applied; the context is the only way to stop a hung command.
type SSHRunner struct {
	command []string
	args    []string
	host    string

	// Stderr receives the remote shell's standard error in addition to error reports.
	Stderr io.Writer
}

// NewSSHRunner builds a runner for host. sshcmd is split into words the way a
// shell would ("ssh -p 2222" is allowed); args are appended verbatim.
func NewSSHRunner(sshcmd string, args []string, host string) (*SSHRunner, error) {
	if sshcmd == "" {
		sshcmd = DefaultSSHCommand
	}
	words, err := shellwords.Parse(sshcmd)
	if err != nil {
		return nil, fmt.Errorf("parse ssh command %q: %w", sshcmd, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("parse ssh command %q: no program", sshcmd)
	}
	if host == "" {
		return nil, errors.New("empty destination host")
	}
	if strings.HasPrefix(host, "-") {
		return nil, fmt.Errorf("invalid destination host %q", host)
	}
	return &SSHRunner{
		command: words,
		args:    append([]string(nil), args...),
		host:    host,
	}, nil
}

// Host returns the destination host.
func (r *SSHRunner) Host() string {
	return r.host
}

// Argv returns the full local command vector used to run argv remotely. The
// remote shell splits the quoted command line back into argv.
func (r *SSHRunner) Argv(argv []string) []string {
	out := make([]string, 0, len(r.command)+len(r.args)+2)
	out = append(out, r.command...)
	out = append(out, r.args...)
	out = append(out, r.host, shellescape.QuoteCommand(argv))
	return out
}

// Run implements Runner.
func (r *SSHRunner) Run(ctx context.Context, argv []string, stdin io.Reader, stdout io.Writer) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	return runCommand(ctx, r.Argv(argv), stdin, stdout, r.Stderr)
}

func runCommand(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) error {
	//nolint:gosec // G204: the command vector is built from CLI configuration
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}

	captured := &tailBuffer{max: maxStderr}
	if stderr != nil {
		cmd.Stderr = io.MultiWriter(captured, stderr)
	} else {
		cmd.Stderr = captured
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &CommandError{
			Argv:   argv,
			Stderr: strings.TrimSpace(captured.String()),
			Err:    err,
		}
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > b.max {
		p = p[len(p)-b.max:]
	}
	if over := b.buf.Len() + len(p) - b.max; over > 0 {
		b.buf.Next(over)
	}
	b.buf.Write(p)
	return n, nil
}

func (b *tailBuffer) String() string {
	return b.buf.String()
}
