// Package imgship transfers a container image from a local engine to a remote
// engine, skipping the layers the remote engine already holds.
//
// A transfer runs as a fixed pipeline: the remote layer inventory is
// collected and the image is exported locally; the image's layers are
// classified against the inventory; layers already present remotely are cut
// out of the exported archive; the remaining archive is streamed into the
// remote engine's load command.
//
// # Basic Usage
//
// Build the two engines and run a transfer:
//
//	remote, err := engine.NewSSHRunner("ssh", nil, "user@host")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p, err := imgship.NewPipeline(
//	    engine.New(&engine.LocalRunner{}),
//	    engine.New(remote),
//	    imgship.WithReport(os.Stdout),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := p.Run(ctx, "app:1")
//
// # Matching
//
// By default a layer is skipped when its diff-ID is present anywhere in the
// remote inventory. WithMatchMode(MatchChainID) skips a layer only when the
// remote engine holds the same layer stacked on the same parents.
//
// # Compression
//
// The archive stream may be compressed with gzip or zstd during transfer.
// The remote load command detects the encoding:
//
//	imgship.NewPipeline(local, remote, imgship.WithCompression(imgship.CompressionZstd))
package imgship
