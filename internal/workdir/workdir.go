// Package workdir provides the scratch directory owned by a single transfer.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meigma/imgship/core"
)

// Dir is an exclusively owned temporary directory. The zero value is not usable;
// create one with New and release it with Close.
type Dir struct {
	path string
	once sync.Once
	err  error
}

// New creates a fresh directory under the system temp dir (or under base when
// non-empty) with the given name prefix.
func New(base, prefix string) (*Dir, error) {
	path, err := os.MkdirTemp(base, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrWorkDir, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// File returns the path of name inside the directory. Separators and colons
// in name are replaced so image references can be used as file names.
func (d *Dir) File(name string) string {
	name = strings.NewReplacer("/", "_", ":", "_", "@", "_", `\`, "_").Replace(name)
	return filepath.Join(d.path, name)
}

// Close removes the directory and everything in it. It is safe to call more
// than once; later calls return the first result.
func (d *Dir) Close() error {
	d.once.Do(func() {
		if err := os.RemoveAll(d.path); err != nil {
			d.err = fmt.Errorf("%w: remove %s: %v", core.ErrWorkDir, d.path, err)
		}
	})
	return d.err
}
