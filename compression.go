package imgship

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/imgship/core"
)

// Compression selects the encoding applied to the archive stream during transfer.
// Re-exported from core package.
type Compression = core.Compression

// Stream encodings.
const (
	CompressionNone = core.CompressionNone
	CompressionGzip = core.CompressionGzip
	CompressionZstd = core.CompressionZstd
)

// newCompressor wraps w in an encoder for c. The caller must Close the
// returned writer to flush it; closing does not close w.
func newCompressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.BestSpeed)
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	default:
		return nil, fmt.Errorf("unsupported stream compression %q", c)
	}
}
