package cli

import (
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/meigma/imgship"
)

// Progress modes.
const (
	progressAuto  = "auto"
	progressTTY   = "tty"
	progressPlain = "plain"
)

// shouldShowProgress reports whether a progress bar should be drawn on w.
func shouldShowProgress(mode string, w io.Writer) bool {
	switch mode {
	case progressPlain:
		return false
	case progressTTY:
		return true
	}

	// Auto mode: show progress only if connected to a TTY
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newProgressBar creates a new progress bar for byte-based operations.
func newProgressBar(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
}

// newTransferProgress creates a progress callback for the archive stream.
// Returns the callback and a finish function to call when done.
// Returns nil callback if progress should not be shown.
func newTransferProgress(mode string, w io.Writer) (callback imgship.ProgressCallback, finish func()) {
	if !shouldShowProgress(mode, w) {
		return nil, func() {}
	}

	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)

	callback = func(event imgship.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = newProgressBar(w, event.TotalBytes, "Sending "+event.Ref)
		}
		//nolint:errcheck // progress bar errors are not critical
		bar.Set64(event.BytesTransferred)
	}

	finish = func() {
		mu.Lock()
		defer mu.Unlock()
		if bar != nil {
			//nolint:errcheck // progress bar errors are not critical
			bar.Finish()
			_, _ = io.WriteString(w, "\n")
		}
	}

	return callback, finish
}
