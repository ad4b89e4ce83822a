package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/meigma/imgship/core"
	"github.com/meigma/imgship/internal/inventory"
)

// DefaultBinary is the engine client invoked when none is configured.
const DefaultBinary = "docker"

// Messages printed by docker-compatible clients when a reference is unknown.
var notFoundMarkers = []string{
	"No such image",
	"reference does not exist",
	"image not known",
}

// Docker implements core.Engine on top of a docker-compatible command-line
// client reached through a Runner.
type Docker struct {
	runner Runner
	binary string
	logger *slog.Logger
}

// Option configures a Docker engine.
type Option func(*Docker)

// WithBinary sets the client program, for example "podman".
func WithBinary(binary string) Option {
	return func(d *Docker) {
		if binary != "" {
			d.binary = binary
		}
	}
}

// WithLogger sets the logger for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Docker) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New returns an engine that runs its client through runner.
func New(runner Runner, opts ...Option) *Docker {
	d := &Docker{
		runner: runner,
		binary: DefaultBinary,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ core.Engine = (*Docker)(nil)

// Script returns the shell program that prints the layer inventory of every
// image known to binary. An engine with no images prints nothing.
func Script(binary string) string {
	b := shellescape.Quote(binary)
	return fmt.Sprintf(`ids=$(%s image ls --all --quiet --no-trunc) || exit $?; [ -z "$ids" ] || %s image inspect --format %s $ids`,
		b, b, shellescape.Quote(inventory.InspectFormat))
}

// ListDigests implements core.Engine.
func (d *Docker) ListDigests(ctx context.Context) (*core.Snapshot, error) {
	argv := []string{"sh", "-c", Script(d.binary)}
	d.logger.Debug("listing layers", "argv", argv)

	var out bytes.Buffer
	if err := d.runner.Run(ctx, argv, nil, &out); err != nil {
		return nil, wrapRunError(ctx, core.ErrInventory, err)
	}
	snap, err := inventory.Parse(&out)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("listed layers", "images", len(snap.Images), "digests", snap.Len())
	return snap, nil
}

// Export implements core.Engine.
func (d *Docker) Export(ctx context.Context, ref, path string) error {
	argv := []string{d.binary, "save", "-o", path, ref}
	d.logger.Debug("exporting image", "ref", ref, "path", path)

	if err := d.runner.Run(ctx, argv, nil, nil); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s: %v", core.ErrImageNotFound, ref, err)
		}
		return wrapRunError(ctx, core.ErrExport, err)
	}
	return nil
}

// Load implements core.Engine.
func (d *Docker) Load(ctx context.Context, r io.Reader) error {
	argv := []string{d.binary, "load"}
	d.logger.Debug("loading image", "argv", argv)

	var out bytes.Buffer
	if err := d.runner.Run(ctx, argv, r, &out); err != nil {
		return wrapRunError(ctx, core.ErrLoad, err)
	}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line != "" {
			d.logger.Debug("load output", "line", line)
		}
	}
	return nil
}

// wrapRunError tags err with sentinel, keeping context cancellation visible
// to errors.Is.
func wrapRunError(ctx context.Context, sentinel, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w: %v", sentinel, ctxErr, err)
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func isNotFound(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(cmdErr.Stderr, marker) {
			return true
		}
	}
	return false
}
