package imgship

// ProgressEvent represents a progress update while the archive is streamed
// to the remote engine.
type ProgressEvent struct {
	// Ref is the image being transferred.
	Ref string
	// BytesTransferred is the cumulative archive bytes sent so far, before compression.
	BytesTransferred int64
	// TotalBytes is the size of the rewritten archive.
	TotalBytes int64
}

// ProgressCallback is called during the transfer to report progress.
// Implementations should be efficient as this may be called frequently.
type ProgressCallback func(event ProgressEvent)
