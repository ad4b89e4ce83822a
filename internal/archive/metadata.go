package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/imgship/core"
	"github.com/meigma/imgship/internal/safepath"
)

// ManifestName is the top-level manifest member written by "docker save".
const ManifestName = "manifest.json"

// maxMetadataSize bounds the manifest and config members read into memory.
const maxMetadataSize = 16 << 20

// Reader reads image metadata from exported archives.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadMetadata calls the package-level ReadMetadata.
func (*Reader) ReadMetadata(ctx context.Context, path, ref string) (*core.Metadata, error) {
	return ReadMetadata(ctx, path, ref)
}

// ReadMetadata extracts the layer paths and diff-IDs of ref from the archive at path.
//
// The archive manifest selects the image: a single entry is used as is, otherwise
// the entry tagged with ref. A manifest entry without a config path returns
// core.ErrNoConfig.
func ReadMetadata(ctx context.Context, path, ref string) (*core.Metadata, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is the archive this run exported
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	ix, err := scanArchive(ctx, f)
	if err != nil {
		return nil, err
	}

	var manifest tarball.Manifest
	if err := decodeMember(f, ix, ManifestName, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&manifest)
	}); err != nil {
		return nil, err
	}

	desc, err := selectImage(manifest, ref)
	if err != nil {
		return nil, err
	}
	if desc.Config == "" {
		return nil, fmt.Errorf("%w: %s", core.ErrNoConfig, ref)
	}

	meta := &core.Metadata{RepoTags: desc.RepoTags}
	if meta.ConfigPath, err = safepath.Clean(desc.Config); err != nil {
		return nil, err
	}
	for _, l := range desc.Layers {
		p, err := safepath.Clean(l)
		if err != nil {
			return nil, err
		}
		meta.LayerPaths = append(meta.LayerPaths, p)
	}

	var cfg *v1.ConfigFile
	if err := decodeMember(f, ix, meta.ConfigPath, func(r io.Reader) error {
		var parseErr error
		cfg, parseErr = v1.ParseConfigFile(r)
		return parseErr
	}); err != nil {
		return nil, err
	}
	for _, h := range cfg.RootFS.DiffIDs {
		d, err := digest.Parse(h.String())
		if err != nil {
			return nil, fmt.Errorf("%w: config diff-id %q: %v", core.ErrInvalidArchive, h.String(), err)
		}
		meta.DiffIDs = append(meta.DiffIDs, d)
	}

	return meta, nil
}

// decodeMember hands the content of the named member to decode.
func decodeMember(f *os.File, ix *index, name string, decode func(io.Reader) error) error {
	m, ok := ix.lookup(name)
	if !ok {
		return fmt.Errorf("%w: missing member %s", core.ErrInvalidArchive, name)
	}
	if m.Size > maxMetadataSize {
		return fmt.Errorf("%w: member %s is too large (%d bytes)", core.ErrInvalidArchive, name, m.Size)
	}
	if err := decode(io.NewSectionReader(f, m.Data, m.Size)); err != nil {
		return fmt.Errorf("%w: decode %s: %v", core.ErrInvalidArchive, name, err)
	}
	return nil
}

// selectImage picks the manifest entry describing ref.
func selectImage(manifest tarball.Manifest, ref string) (tarball.Descriptor, error) {
	switch len(manifest) {
	case 0:
		return tarball.Descriptor{}, fmt.Errorf("%w: manifest lists no images", core.ErrInvalidArchive)
	case 1:
		return manifest[0], nil
	}
	for _, desc := range manifest {
		if slices.Contains(desc.RepoTags, ref) {
			return desc, nil
		}
	}
	return tarball.Descriptor{}, fmt.Errorf("%w: manifest lists %d images, none tagged %s",
		core.ErrInvalidArchive, len(manifest), ref)
}
