package imgship

import (
	"context"

	"github.com/meigma/imgship/core"
)

type metadataReader interface {
	ReadMetadata(ctx context.Context, path, ref string) (*core.Metadata, error)
}

type archiveRewriter interface {
	Remove(ctx context.Context, path string, names []string) (int64, error)
}
