package imgship

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/meigma/imgship/core"
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a logger for the pipeline. By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		p.logger = logger
		return nil
	}
}

// WithReport enables the verbose report: one line per layer followed by the
// original and transfer sizes, written to w.
func WithReport(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.report = w
		return nil
	}
}

// WithProgress sets a callback invoked while the archive is streamed.
func WithProgress(fn ProgressCallback) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

// WithCompression sets the encoding of the transfer stream. The default is
// CompressionNone.
func WithCompression(c Compression) Option {
	return func(p *Pipeline) error {
		parsed, err := core.ParseCompression(string(c))
		if err != nil {
			return err
		}
		p.compression = parsed
		return nil
	}
}

// WithMatchMode sets how local layers are matched against the remote
// inventory. The default is MatchDiffID.
func WithMatchMode(m MatchMode) Option {
	return func(p *Pipeline) error {
		parsed, err := core.ParseMatchMode(string(m))
		if err != nil {
			return err
		}
		p.match = parsed
		return nil
	}
}

// WithParallel runs inventory collection and export concurrently.
// By default they run one after the other.
func WithParallel(parallel bool) Option {
	return func(p *Pipeline) error {
		p.parallel = parallel
		return nil
	}
}

// WithTimeout bounds a whole run. Zero, the default, means no limit.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return errors.New("negative timeout")
		}
		p.timeout = d
		return nil
	}
}

// WithDryRun stops a run after the archive is rewritten, without loading it remotely.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) error {
		p.dryRun = dryRun
		return nil
	}
}

// WithWorkDir sets the parent of the per-run scratch directory.
// By default the system temp directory is used.
func WithWorkDir(dir string) Option {
	return func(p *Pipeline) error {
		p.workDirBase = dir
		return nil
	}
}
