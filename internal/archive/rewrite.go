package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/meigma/imgship/core"
	"github.com/meigma/imgship/internal/safepath"
)

// Rewriter removes members from an archive in place.
type Rewriter struct {
	logger *slog.Logger
}

// NewRewriter creates a Rewriter. A nil logger discards output.
func NewRewriter(logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rewriter{logger: logger}
}

// Remove deletes every member named in names from the archive at path and
// returns the resulting archive size.
//
// Remaining members keep their exact bytes and order. Kept spans are moved
// toward the start of the file and the file is truncated, so no second copy
// of the archive is written. All names must exist; otherwise the archive is
// left untouched and core.ErrInvalidArchive is returned. The same happens when
// a kept symlink or hard link points at a removed member. An empty names list
// leaves the file unmodified.
func (rw *Rewriter) Remove(ctx context.Context, path string, names []string) (int64, error) {
	//nolint:gosec // G304: path is the archive this run exported
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	ix, err := scanArchive(ctx, f)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return ix.size, nil
	}

	drop := make(map[string]struct{}, len(names))
	for _, name := range names {
		cleaned, err := safepath.Clean(name)
		if err != nil {
			return 0, err
		}
		if _, ok := ix.byName[cleaned]; !ok {
			return 0, fmt.Errorf("%w: missing member %s", core.ErrInvalidArchive, name)
		}
		drop[cleaned] = struct{}{}
	}
	for _, m := range ix.members {
		if m.Link == "" {
			continue
		}
		if _, gone := drop[m.Name]; gone {
			continue
		}
		if _, ok := drop[m.Link]; ok {
			return 0, fmt.Errorf("%w: kept member %s links to removed member %s",
				core.ErrInvalidArchive, m.Name, m.Link)
		}
	}

	buf := make([]byte, copyBufferSize)
	var w int64
	var removed int64
	for _, m := range ix.members {
		span := m.End - m.Start
		if _, ok := drop[m.Name]; ok {
			rw.logger.Debug("removing archive member", "member", m.Name, "size", span)
			removed += span
			continue
		}
		if err := moveSpan(ctx, f, w, m.Start, span, buf); err != nil {
			return 0, fmt.Errorf("move %s: %w", m.Name, err)
		}
		w += span
	}

	// Keep the end-of-archive blocks.
	trailer := ix.size - ix.tail
	if err := moveSpan(ctx, f, w, ix.tail, trailer, buf); err != nil {
		return 0, fmt.Errorf("move trailer: %w", err)
	}
	w += trailer

	if err := f.Truncate(w); err != nil {
		return 0, fmt.Errorf("truncate archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync archive: %w", err)
	}

	rw.logger.Debug("rewrote archive", "path", path, "removed", removed, "size", w)
	return w, nil
}

// moveSpan copies length bytes from offset src to offset dst within f.
// dst must not be greater than src, so a forward copy never reads bytes it
// has already overwritten.
func moveSpan(ctx context.Context, f *os.File, dst, src, length int64, buf []byte) error {
	if dst == src || length == 0 {
		return nil
	}
	if dst > src {
		return fmt.Errorf("invalid move from %d to %d", src, dst)
	}
	n, err := copyWithContext(ctx, io.NewOffsetWriter(f, dst), io.NewSectionReader(f, src, length), buf)
	if err != nil {
		return err
	}
	if n != length {
		return fmt.Errorf("%w: short span at %d: %d of %d bytes", core.ErrInvalidArchive, src, n, length)
	}
	return nil
}
