// Package safepath validates archive member names referenced by image metadata.
package safepath

import (
	"fmt"
	"path"
	"strings"

	"github.com/meigma/imgship/core"
)

// Clean validates a member name and returns its canonical form.
//
// Names must be relative, free of null bytes and must not climb out of the
// archive root with "..". A leading "./" is dropped so that names written by
// different tools compare equal.
func Clean(name string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty member path", core.ErrInvalidArchive)
	case containsNull(name):
		return "", fmt.Errorf("%w: member path %q contains a null byte", core.ErrInvalidArchive, name)
	case isAbsolute(name):
		return "", fmt.Errorf("%w: member path %q is absolute", core.ErrInvalidArchive, name)
	case containsTraversal(name):
		return "", fmt.Errorf("%w: member path %q escapes the archive", core.ErrInvalidArchive, name)
	}

	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", fmt.Errorf("%w: member path %q names the archive root", core.ErrInvalidArchive, name)
	}
	return cleaned, nil
}

func containsNull(name string) bool {
	return strings.IndexByte(name, 0) >= 0
}

func containsTraversal(name string) bool {
	for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func isAbsolute(name string) bool {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return true
	}
	// Windows drive letters, e.g. C:\ or C:/
	return len(name) >= 2 && name[1] == ':' &&
		((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z'))
}
