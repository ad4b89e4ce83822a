package imgship

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// Percent returns transfer as a whole percentage of original, rounded down.
// An empty original reports 0.
func Percent(transfer, original int64) int64 {
	if original <= 0 {
		return 0
	}
	return transfer * 100 / original
}

// WriteLayers writes one line per layer in manifest order:
//
//	transfer sha256:... 1a2b.../layer.tar
//	skip     sha256:... 3c4d.../layer.tar
func WriteLayers(w io.Writer, plan *Plan) error {
	for _, l := range plan.Layers {
		if _, err := fmt.Fprintf(w, "%-8s %s %s\n", l.Decision, l.DiffID, l.Path); err != nil {
			return err
		}
	}
	return nil
}

// WriteSizes writes the original and transfer archive sizes of r.
func WriteSizes(w io.Writer, r *Result) error {
	_, err := fmt.Fprintf(w, "original size: %s (%d bytes)\ntransfer size: %s (%d bytes, %d%% of original)\n",
		humanize.Bytes(uint64(max(r.OriginalSize, 0))), r.OriginalSize,
		humanize.Bytes(uint64(max(r.TransferSize, 0))), r.TransferSize, r.Percent)
	return err
}
