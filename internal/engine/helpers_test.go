package engine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755)) //nolint:gosec // test helper script
}
