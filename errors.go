package imgship

import "github.com/meigma/imgship/core"

// Sentinel errors for common failure conditions.
// Re-exported from core package.
var (
	// ErrUsage indicates malformed or missing command-line arguments.
	ErrUsage = core.ErrUsage

	// ErrImageNotFound indicates the local engine does not know the requested image.
	ErrImageNotFound = core.ErrImageNotFound

	// ErrInvalidArchive indicates the exported archive is malformed.
	ErrInvalidArchive = core.ErrInvalidArchive

	// ErrNoConfig indicates the archive manifest does not resolve to a config blob.
	ErrNoConfig = core.ErrNoConfig

	// ErrLayerCountMismatch indicates the manifest and config disagree on the number of layers.
	ErrLayerCountMismatch = core.ErrLayerCountMismatch

	// ErrInventory indicates a layer inventory could not be collected.
	ErrInventory = core.ErrInventory

	// ErrExport indicates the local engine failed to save the image.
	ErrExport = core.ErrExport

	// ErrLoad indicates the remote engine failed to load the archive.
	ErrLoad = core.ErrLoad

	// ErrWorkDir indicates the scratch working directory could not be created or removed.
	ErrWorkDir = core.ErrWorkDir
)
