package imgship

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/imgship/core"
	"github.com/meigma/imgship/internal/archive"
	"github.com/meigma/imgship/internal/diff"
	"github.com/meigma/imgship/internal/progress"
	"github.com/meigma/imgship/internal/workdir"
)

// workDirPrefix names the per-run scratch directories.
const workDirPrefix = "imgship"

// Pipeline transfers images from a local engine to a remote engine.
// A Pipeline holds no per-run state and may run several transfers.
type Pipeline struct {
	local    Engine
	remote   Engine
	reader   metadataReader
	rewriter archiveRewriter
	logger   *slog.Logger

	report      io.Writer
	progress    ProgressCallback
	compression Compression
	match       MatchMode
	parallel    bool
	timeout     time.Duration
	dryRun      bool
	workDirBase string
}

// Result describes a completed run.
type Result struct {
	// Ref is the transferred image reference.
	Ref string
	// Plan holds the decision for every layer, in manifest order.
	Plan *Plan
	// OriginalSize is the exported archive size in bytes.
	OriginalSize int64
	// TransferSize is the archive size after skipped layers were removed.
	TransferSize int64
	// Percent is TransferSize as a whole percentage of OriginalSize.
	Percent int64
	// Loaded reports whether the archive was loaded remotely. It is false for dry runs.
	Loaded bool
}

// NewPipeline creates a pipeline that exports from local and loads into remote.
func NewPipeline(local, remote Engine, opts ...Option) (*Pipeline, error) {
	if local == nil || remote == nil {
		return nil, errors.New("local and remote engines are required")
	}

	p := &Pipeline{
		local:       local,
		remote:      remote,
		logger:      slog.New(slog.DiscardHandler),
		compression: CompressionNone,
		match:       MatchDiffID,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	p.reader = archive.NewReader()
	p.rewriter = archive.NewRewriter(p.logger)

	return p, nil
}

// Run transfers ref. Each step must succeed before the next one starts, and
// the first failure aborts the run. The scratch directory is removed on
// every return path; a removal failure is joined to the returned error.
func (p *Pipeline) Run(ctx context.Context, ref string) (result *Result, err error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: missing image reference", ErrUsage)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	dir, err := workdir.New(p.workDirBase, workDirPrefix)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
			result = nil
		}
	}()
	p.logger.Debug("created working directory", "path", dir.Path())

	archivePath := dir.File(ref + ".tar")
	snap, meta, origSize, err := p.collect(ctx, ref, archivePath)
	if err != nil {
		return nil, err
	}

	plan, err := diff.Classify(meta, snap, p.match)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", ref, err)
	}
	p.logger.Info("classified layers", "ref", ref, "layers", len(plan.Layers), "skip", plan.Skipped())
	if p.report != nil {
		if err := WriteLayers(p.report, plan); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
	}

	transferSize, err := p.rewriter.Remove(ctx, archivePath, plan.Delete)
	if err != nil {
		return nil, fmt.Errorf("rewrite archive: %w", err)
	}

	result = &Result{
		Ref:          ref,
		Plan:         plan,
		OriginalSize: origSize,
		TransferSize: transferSize,
		Percent:      Percent(transferSize, origSize),
	}
	if p.report != nil {
		if err := WriteSizes(p.report, result); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
	}

	if p.dryRun {
		p.logger.Info("dry run, not loading", "ref", ref, "size", transferSize)
		return result, nil
	}

	if err := p.transfer(ctx, ref, archivePath, transferSize); err != nil {
		return nil, err
	}
	result.Loaded = true
	p.logger.Info("loaded image", "ref", ref, "size", transferSize)

	return result, nil
}

// collect gathers the remote inventory and the exported image. The two are
// independent; they run concurrently only when the pipeline is parallel.
func (p *Pipeline) collect(ctx context.Context, ref, path string) (*Snapshot, *core.Metadata, int64, error) {
	var (
		snap *Snapshot
		meta *core.Metadata
		size int64
	)

	inventory := func(ctx context.Context) error {
		var err error
		snap, err = p.remote.ListDigests(ctx)
		if err != nil {
			return fmt.Errorf("remote inventory: %w", err)
		}
		p.logger.Debug("collected remote inventory", "images", len(snap.Images), "digests", snap.Len())
		return nil
	}
	export := func(ctx context.Context) error {
		var err error
		meta, size, err = p.export(ctx, ref, path)
		return err
	}

	if !p.parallel {
		if err := inventory(ctx); err != nil {
			return nil, nil, 0, err
		}
		if err := export(ctx); err != nil {
			return nil, nil, 0, err
		}
		return snap, meta, size, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inventory(gctx) })
	g.Go(func() error { return export(gctx) })
	if err := g.Wait(); err != nil {
		return nil, nil, 0, err
	}
	return snap, meta, size, nil
}

// export saves ref to path and reads its metadata. It returns the archive size.
func (p *Pipeline) export(ctx context.Context, ref, path string) (*core.Metadata, int64, error) {
	if err := p.local.Export(ctx, ref, path); err != nil {
		return nil, 0, fmt.Errorf("export %s: %w", ref, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrExport, ref, err)
	}
	p.logger.Debug("exported image", "ref", ref, "path", path, "size", info.Size())

	meta, err := p.reader.ReadMetadata(ctx, path, ref)
	if err != nil {
		return nil, 0, fmt.Errorf("read metadata %s: %w", ref, err)
	}
	return meta, info.Size(), nil
}

// transfer streams the archive at path into the remote engine.
func (p *Pipeline) transfer(ctx context.Context, ref, path string, size int64) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is inside the run's working directory
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var callback progress.Callback
	if p.progress != nil {
		callback = func(transferred, total int64) {
			p.progress(ProgressEvent{Ref: ref, BytesTransferred: transferred, TotalBytes: total})
		}
	}
	src := progress.NewReader(f, size, callback)

	if p.compression == CompressionNone {
		if err := p.remote.Load(ctx, src); err != nil {
			return fmt.Errorf("load %s: %w", ref, err)
		}
		return nil
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- compressTo(pw, src, p.compression)
	}()

	loadErr := p.remote.Load(ctx, pr)
	// Unblock the encoder if the load stopped reading early.
	pr.Close()
	compressErr := <-done

	if loadErr != nil {
		return fmt.Errorf("load %s: %w", ref, loadErr)
	}
	if compressErr != nil && !errors.Is(compressErr, io.ErrClosedPipe) {
		return fmt.Errorf("compress %s: %w", ref, compressErr)
	}
	p.logger.Debug("streamed archive", "ref", ref, "compression", string(p.compression), "size", src.Count())
	return nil
}

// compressTo encodes src into pw and closes pw with the outcome.
func compressTo(pw *io.PipeWriter, src io.Reader, c Compression) error {
	zw, err := newCompressor(pw, c)
	if err != nil {
		pw.CloseWithError(err)
		return err
	}
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		pw.CloseWithError(err)
		return err
	}
	err = zw.Close()
	pw.CloseWithError(err)
	return err
}
