// Package core provides the shared types and interfaces for imgship.
//
// This package exists to break import cycles between the root imgship package
// and internal implementation packages. The imgship package re-exports the
// public types from this package, so external users should import imgship
// directly, not imgship/core.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// Sentinel errors for common failure conditions.
var (
	// ErrUsage indicates malformed or missing command-line arguments.
	ErrUsage = errors.New("imgship: usage error")

	// ErrImageNotFound indicates the local engine does not know the requested image.
	ErrImageNotFound = errors.New("imgship: image not found")

	// ErrInvalidArchive indicates the exported archive is malformed.
	ErrInvalidArchive = errors.New("imgship: invalid image archive")

	// ErrNoConfig indicates the archive manifest does not resolve to a config blob.
	ErrNoConfig = errors.New("imgship: manifest has no config path")

	// ErrLayerCountMismatch indicates the manifest and config disagree on the number of layers.
	ErrLayerCountMismatch = errors.New("imgship: layer count does not match diff-id count")

	// ErrInventory indicates a layer inventory could not be collected.
	ErrInventory = errors.New("imgship: layer inventory failed")

	// ErrExport indicates the local engine failed to save the image.
	ErrExport = errors.New("imgship: export failed")

	// ErrLoad indicates the remote engine failed to load the archive.
	ErrLoad = errors.New("imgship: remote load failed")

	// ErrWorkDir indicates the scratch working directory could not be created or removed.
	ErrWorkDir = errors.New("imgship: working directory failure")
)

// Engine is the capability shared by the local and the remote container engine.
// This interface is implemented by internal/engine.
type Engine interface {
	// ListDigests returns every layer diff-ID known to the engine, grouped per image.
	ListDigests(ctx context.Context) (*Snapshot, error)

	// Export writes a portable archive of ref to path.
	Export(ctx context.Context, ref, path string) error

	// Load reads an archive from r and loads it into the engine.
	Load(ctx context.Context, r io.Reader) error
}

// Metadata is the portion of an exported archive needed to plan a transfer.
type Metadata struct {
	// ConfigPath is the archive member holding the image config blob.
	ConfigPath string
	// RepoTags are the tags recorded for the image in the manifest.
	RepoTags []string
	// LayerPaths are the layer archive members, in manifest order.
	LayerPaths []string
	// DiffIDs are the uncompressed layer digests from the config, in config order.
	DiffIDs []digest.Digest
}

// Layer pairs a layer archive member with its diff-ID.
type Layer struct {
	Path   string
	DiffID digest.Digest
	// ChainID identifies the layer stacked on all layers before it.
	ChainID digest.Digest
}

// Decision is the classification of a single layer.
type Decision int

const (
	// Transfer means the layer is missing remotely and must be sent.
	Transfer Decision = iota
	// Skip means the remote engine already holds the layer.
	Skip
)

// String returns the report label for the decision.
func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "transfer"
}

// LayerDecision is one classified layer.
type LayerDecision struct {
	Layer
	Decision Decision
}

// Plan is the outcome of diffing an image against a remote inventory.
type Plan struct {
	// Layers holds every layer in manifest order.
	Layers []LayerDecision
	// Delete is the set of archive members to remove before transfer.
	Delete []string
}

// Skipped returns the number of layers classified as Skip.
func (p *Plan) Skipped() int {
	n := 0
	for _, l := range p.Layers {
		if l.Decision == Skip {
			n++
		}
	}
	return n
}

// MatchMode selects how local layers are matched against the remote inventory.
type MatchMode string

const (
	// MatchDiffID skips a layer when its diff-ID is present anywhere remotely.
	MatchDiffID MatchMode = "diffid"
	// MatchChainID skips a layer only when its whole layer prefix is present remotely.
	MatchChainID MatchMode = "chain"
)

// ParseMatchMode validates s as a MatchMode. The empty string selects MatchDiffID.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case "", MatchDiffID:
		return MatchDiffID, nil
	case MatchChainID:
		return MatchChainID, nil
	default:
		return "", fmt.Errorf("unknown match mode %q (want %s or %s)", s, MatchDiffID, MatchChainID)
	}
}
