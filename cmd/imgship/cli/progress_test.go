package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/imgship"
)

func TestShouldShowProgress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.False(t, shouldShowProgress(progressPlain, &buf))
	assert.True(t, shouldShowProgress(progressTTY, &buf))
	assert.False(t, shouldShowProgress(progressAuto, &buf), "a buffer is not a terminal")
}

func TestNewTransferProgress(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		cb, finish := newTransferProgress(progressPlain, &bytes.Buffer{})
		assert.Nil(t, cb)
		finish()
	})

	t.Run("renders", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cb, finish := newTransferProgress(progressTTY, &buf)
		require.NotNil(t, cb)

		cb(imgship.ProgressEvent{Ref: "app:1", BytesTransferred: 512, TotalBytes: 2048})
		cb(imgship.ProgressEvent{Ref: "app:1", BytesTransferred: 2048, TotalBytes: 2048})
		finish()

		assert.Contains(t, buf.String(), "Sending app:1")
	})
}
