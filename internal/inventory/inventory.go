// Package inventory parses layer listings produced by a container engine.
package inventory

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/imgship/core"
)

// InspectFormat is the Go template passed to "image inspect" so that each image
// prints one diff-ID per line followed by a blank line.
const InspectFormat = "{{range .RootFS.Layers}}{{println .}}{{end}}"

// Parse reads an inventory listing: one digest per line, images separated by
// blank lines. Any line that is not a valid digest fails the whole parse.
func Parse(r io.Reader) (*core.Snapshot, error) {
	snap := &core.Snapshot{}
	var current []digest.Digest

	flush := func() {
		if len(current) > 0 {
			snap.Images = append(snap.Images, current)
			current = nil
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		d, err := digest.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q: %v", core.ErrInventory, lineNo, line, err)
		}
		current = append(current, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read listing: %v", core.ErrInventory, err)
	}
	flush()

	return snap, nil
}
