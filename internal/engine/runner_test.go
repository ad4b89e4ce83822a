package engine

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSSHRunner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sshcmd  string
		args    []string
		host    string
		want    []string
		wantErr bool
	}{
		{
			name: "defaults to ssh",
			host: "user@example",
			want: []string{"ssh", "user@example", "docker load"},
		},
		{
			name:   "command with words",
			sshcmd: "ssh -p 2222",
			host:   "example",
			want:   []string{"ssh", "-p", "2222", "example", "docker load"},
		},
		{
			name:   "quoted words",
			sshcmd: `ssh -o "ProxyCommand=nc -x proxy %h %p"`,
			host:   "example",
			want:   []string{"ssh", "-o", "ProxyCommand=nc -x proxy %h %p", "example", "docker load"},
		},
		{
			name:   "extra arguments in order",
			sshcmd: "ssh",
			args:   []string{"-i", "/keys/id", "-o", "BatchMode=yes"},
			host:   "example",
			want:   []string{"ssh", "-i", "/keys/id", "-o", "BatchMode=yes", "example", "docker load"},
		},
		{
			name:    "host looks like an option",
			host:    "-oProxyCommand=true",
			wantErr: true,
		},
		{
			name:    "empty host",
			wantErr: true,
		},
		{
			name:    "unbalanced quotes",
			sshcmd:  `ssh "-p 22`,
			host:    "example",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewSSHRunner(tt.sshcmd, tt.args, tt.host)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, r.Host())
			assert.Equal(t, tt.want, r.Argv([]string{"docker", "load"}))
		})
	}
}

func TestSSHRunner_QuotesRemoteCommand(t *testing.T) {
	t.Parallel()

	r, err := NewSSHRunner("ssh", nil, "example")
	require.NoError(t, err)

	argv := r.Argv([]string{"sh", "-c", "echo $HOME"})
	assert.Equal(t, "sh -c 'echo $HOME'", argv[len(argv)-1])
}

func TestSSHRunner_RemoteCommandRoundTripsThroughShell(t *testing.T) {
	t.Parallel()
	requireShell(t)

	r, err := NewSSHRunner("ssh", nil, "example")
	require.NoError(t, err)

	argv := []string{"printf", `%s\n`, "plain", "with space", "it's", "$(false)", "{{range .RootFS.Layers}}", ""}
	remote := r.Argv(argv)
	out, err := exec.Command("sh", "-c", remote[len(remote)-1]).Output()
	require.NoError(t, err)

	got := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	assert.Equal(t, argv[2:], got)
}

func TestNewSSHRunner_CopiesArgs(t *testing.T) {
	t.Parallel()

	args := []string{"-v"}
	r, err := NewSSHRunner("ssh", args, "example")
	require.NoError(t, err)
	args[0] = "-q"

	assert.Equal(t, []string{"ssh", "-v", "example", "true"}, r.Argv([]string{"true"}))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestLocalRunner_Run(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var out bytes.Buffer
	err := (&LocalRunner{}).Run(context.Background(), []string{"sh", "-c", "cat; echo done"},
		strings.NewReader("input\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "input\ndone\n", out.String())
}

func TestLocalRunner_CapturesStderr(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var tee bytes.Buffer
	r := &LocalRunner{Stderr: &tee}
	err := r.Run(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"}, nil, nil)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "boom", cmdErr.Stderr)
	assert.Equal(t, "boom\n", tee.String())
	assert.Contains(t, err.Error(), "exit status 3")
}

func TestLocalRunner_ContextCanceled(t *testing.T) {
	t.Parallel()
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&LocalRunner{}).Run(ctx, []string{"sh", "-c", "sleep 5"}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalRunner_EmptyCommand(t *testing.T) {
	t.Parallel()

	assert.Error(t, (&LocalRunner{}).Run(context.Background(), nil, nil, nil))
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	b := &tailBuffer{max: 8}
	_, _ = b.Write([]byte("0123"))
	_, _ = b.Write([]byte("456789"))
	assert.Equal(t, "23456789", b.String())

	n, err := b.Write([]byte("abcdefghijkl"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "efghijkl", b.String())
}
