// Package archive reads and rewrites image archives produced by "docker save".
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/meigma/imgship/core"
	"github.com/meigma/imgship/internal/safepath"
)

const blockSize = 512

// member is the raw byte span of one tar entry.
type member struct {
	Name  string // cleaned member name
	Start int64  // first byte of the first header block (including PAX/GNU records)
	Data  int64  // first byte of the entry content
	Size  int64  // content length in bytes
	End   int64  // first byte after the content padding
	Link  string // cleaned target of a symlink or hard link, empty otherwise
}

// index lists the members of an archive in stream order.
type index struct {
	members []member
	byName  map[string][]int
	// tail is where the end-of-archive blocks begin.
	tail int64
	// size is the size of the archive file.
	size int64
}

// lookup returns the last member stored under name. Later entries win, matching
// how tar extraction overwrites earlier entries.
func (ix *index) lookup(name string) (member, bool) {
	pos := ix.byName[name]
	if len(pos) == 0 {
		return member{}, false
	}
	return ix.members[pos[len(pos)-1]], true
}

// scanArchive walks the tar stream in f and records the byte span of every
// member. f must not be read by anyone else during the scan.
func scanArchive(ctx context.Context, f *os.File) (*index, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek archive: %w", err)
	}

	ix := &index{byName: make(map[string][]int), size: info.Size()}
	tr := tar.NewReader(f)
	var prevEnd int64
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidArchive, err)
		}
		if isSparse(hdr) {
			return nil, fmt.Errorf("%w: sparse entry %q is not supported", core.ErrInvalidArchive, hdr.Name)
		}

		// archive/tar does not buffer, so the file offset is the content start.
		data, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek archive: %w", err)
		}

		size := hdr.Size
		if headerOnly(hdr.Typeflag) {
			size = 0
		}
		m := member{
			Name:  cleanName(hdr.Name),
			Start: prevEnd,
			Data:  data,
			Size:  size,
			End:   data + padded(size),
			Link:  linkTarget(hdr),
		}
		ix.byName[m.Name] = append(ix.byName[m.Name], len(ix.members))
		ix.members = append(ix.members, m)
		prevEnd = m.End
	}

	if prevEnd > ix.size {
		return nil, fmt.Errorf("%w: truncated archive", core.ErrInvalidArchive)
	}
	ix.tail = prevEnd
	return ix, nil
}

// cleanName normalizes a tar header name for lookups. Unsafe names are kept
// verbatim; they can never match a validated manifest path.
func cleanName(name string) string {
	name = strings.TrimSuffix(name, "/")
	if cleaned, err := safepath.Clean(name); err == nil {
		return cleaned
	}
	return name
}

// linkTarget resolves a link member's target to an archive member name.
// Symlink targets are relative to the link's directory; hard link targets
// are relative to the archive root.
func linkTarget(hdr *tar.Header) string {
	switch hdr.Typeflag {
	case tar.TypeSymlink:
		if path.IsAbs(hdr.Linkname) {
			return ""
		}
		return cleanName(path.Join(path.Dir(strings.TrimSuffix(hdr.Name, "/")), hdr.Linkname))
	case tar.TypeLink:
		return cleanName(hdr.Linkname)
	}
	return ""
}

func padded(n int64) int64 {
	if rem := n % blockSize; rem != 0 {
		return n + blockSize - rem
	}
	return n
}

func headerOnly(flag byte) bool {
	switch flag {
	case tar.TypeLink, tar.TypeSymlink, tar.TypeChar, tar.TypeBlock, tar.TypeDir, tar.TypeFifo:
		return true
	}
	return false
}

func isSparse(hdr *tar.Header) bool {
	if hdr.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for k := range hdr.PAXRecords {
		if strings.HasPrefix(k, "GNU.sparse.") {
			return true
		}
	}
	return false
}
