package imgship

import (
	"bytes"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/imgship/core"
)

func TestPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		transfer int64
		original int64
		want     int64
	}{
		{name: "quarter", transfer: 250_000, original: 1_000_000, want: 25},
		{name: "rounds down", transfer: 999, original: 1000, want: 99},
		{name: "unchanged", transfer: 4096, original: 4096, want: 100},
		{name: "everything skipped", transfer: 0, original: 4096, want: 0},
		{name: "empty original", transfer: 0, original: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Percent(tt.transfer, tt.original))
		})
	}
}

func TestWriteLayers(t *testing.T) {
	t.Parallel()

	a, b := digest.FromString("a"), digest.FromString("b")
	plan := &Plan{Layers: []LayerDecision{
		{Layer: core.Layer{Path: "L1/layer.tar", DiffID: a}, Decision: Transfer},
		{Layer: core.Layer{Path: "L2/layer.tar", DiffID: b}, Decision: Skip},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteLayers(&buf, plan))
	assert.Equal(t,
		"transfer "+a.String()+" L1/layer.tar\n"+
			"skip     "+b.String()+" L2/layer.tar\n",
		buf.String())
}

func TestWriteSizes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteSizes(&buf, &Result{
		OriginalSize: 1_000_000,
		TransferSize: 250_000,
		Percent:      25,
	}))
	assert.Equal(t,
		"original size: 1.0 MB (1000000 bytes)\n"+
			"transfer size: 250 kB (250000 bytes, 25% of original)\n",
		buf.String())
}
