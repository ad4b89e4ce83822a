//go:build profiling
// +build profiling

// Command profile runs the transfer pipeline against a synthetic image held
// in memory-backed engines and records CPU, heap and allocation profiles.
//
// Run with: go run -tags profiling ./cmd/profile -layers 40 -layer-size 8MiB
package main

import (
	"archive/tar"
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/grafana/pyroscope-go"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/imgship"
)

type profileKind string

const (
	profileCPU   profileKind = "cpu"
	profileFG    profileKind = "fgprof"
	profileTrace profileKind = "trace"
	profileNone  profileKind = "none"
	defaultRef               = "profile/app:latest"
)

func main() {
	var (
		layers      = flag.Int("layers", 20, "number of layers in the synthetic image")
		layerSize   = flag.String("layer-size", "4MiB", "size of each layer")
		present     = flag.Float64("present", 0.5, "fraction of layers the remote engine already holds")
		dryRun      = flag.Bool("dry-run", false, "stop after the rewrite")
		compress    = flag.String("compress", "none", "stream compression: none, gzip, zstd")
		match       = flag.String("match", "diffid", "match mode: diffid, chain")
		parallel    = flag.Bool("parallel", false, "collect inventory while exporting")
		profile     = flag.String("profile", "cpu", "profile type: cpu, fgprof, trace, none")
		outDir      = flag.String("out", "profiles", "output directory for profiles")
		labelSuffix = flag.String("label", "", "label suffix for profile files")
		repeat      = flag.Int("repeat", 1, "number of iterations")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		timeout     = flag.Duration("timeout", 15*time.Minute, "overall timeout")
		pyroAddr    = flag.String("pyroscope", "", "Pyroscope server URL (enables streaming, disables local profiles)")
	)
	flag.Parse()

	runID := time.Now().UTC().Format("20060102T150405Z")

	size, err := humanize.ParseBytes(*layerSize)
	if err != nil {
		log.Fatalf("parse layer size: %v", err)
	}
	if *layers < 1 || *repeat < 1 {
		log.Fatalf("layers and repeat must be >= 1")
	}
	if *present < 0 || *present > 1 {
		log.Fatalf("present must be between 0 and 1")
	}

	kind := profileKind(strings.ToLower(*profile))
	switch kind {
	case profileCPU, profileFG, profileTrace, profileNone:
	default:
		log.Fatalf("invalid profile %q (expected cpu, fgprof, trace, none)", *profile)
	}

	var streaming *pyroscope.Profiler
	if *pyroAddr != "" {
		streaming, err = streamTo(*pyroAddr, map[string]string{
			"compress": *compress,
			"dry_run":  fmt.Sprint(*dryRun),
			"git_sha":  os.Getenv("GITHUB_SHA"),
			"run_id":   runID,
		})
		if err != nil {
			log.Fatalf("start pyroscope: %v", err)
		}
		log.Printf("streaming profiles to %s", *pyroAddr)
	} else if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create profile output dir: %v", err)
	}

	scratch, err := os.MkdirTemp("", "imgship-profile-*")
	if err != nil {
		log.Fatalf("create scratch dir: %v", err)
	}
	defer os.RemoveAll(scratch)

	archivePath := filepath.Join(scratch, "image.tar")
	diffIDs, err := writeImage(archivePath, *layers, int64(size))
	if err != nil {
		log.Fatalf("build image: %v", err)
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		log.Fatalf("stat image: %v", err)
	}
	log.Printf("synthetic image: %d layers, %s", *layers, humanize.Bytes(uint64(info.Size())))

	held := diffIDs[:int(float64(len(diffIDs))*(*present))]
	local := &fileEngine{archive: archivePath}
	remote := &sinkEngine{snapshot: &imgship.Snapshot{Images: [][]digest.Digest{held}}}

	label := string(kind) + "_" + runID
	if *labelSuffix != "" {
		label = string(kind) + "_" + unsafeLabel.ReplaceAllString(*labelSuffix, "_") + "_" + runID
	}
	prof := &profiler{dir: *outDir, label: label}

	stop := func() error { return nil }
	if streaming == nil {
		if stop, err = prof.start(kind); err != nil {
			log.Fatalf("start profile: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := []imgship.Option{
		imgship.WithCompression(imgship.Compression(*compress)),
		imgship.WithMatchMode(imgship.MatchMode(*match)),
		imgship.WithParallel(*parallel),
		imgship.WithDryRun(*dryRun),
		imgship.WithWorkDir(scratch),
	}
	if *logLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
			log.Fatalf("parse log level: %v", err)
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		opts = append(opts, imgship.WithLogger(logger))
	}

	pipeline, err := imgship.NewPipeline(local, remote, opts...)
	if err != nil {
		log.Fatalf("create pipeline: %v", err)
	}

	for i := range *repeat {
		if *repeat > 1 {
			log.Printf("iteration %d/%d", i+1, *repeat)
		}
		start := time.Now()
		result, err := pipeline.Run(ctx, defaultRef)
		if err != nil {
			log.Fatalf("run: %v", err)
		}
		log.Printf("run complete: %s (skipped %d/%d layers, sent %s, %d%% of original)",
			time.Since(start), result.Plan.Skipped(), len(result.Plan.Layers),
			humanize.Bytes(uint64(remote.received)), result.Percent)
	}

	if streaming != nil {
		if err := streaming.Stop(); err != nil {
			log.Fatalf("stop pyroscope: %v", err)
		}
		return
	}
	if err := stop(); err != nil {
		log.Fatalf("stop profile: %v", err)
	}
	if err := prof.snapshot(); err != nil {
		log.Fatalf("snapshot: %v", err)
	}
}

// fileEngine exports a prebuilt archive by copying it.
type fileEngine struct {
	archive string
}

func (e *fileEngine) ListDigests(context.Context) (*imgship.Snapshot, error) {
	return &imgship.Snapshot{}, nil
}

func (e *fileEngine) Export(ctx context.Context, _, path string) error {
	src, err := os.Open(e.archive)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := ctx.Err(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (e *fileEngine) Load(context.Context, io.Reader) error {
	return errors.New("file engine cannot load")
}

// sinkEngine reports a fixed inventory and discards loaded archives.
type sinkEngine struct {
	snapshot *imgship.Snapshot
	received int64
}

func (e *sinkEngine) ListDigests(context.Context) (*imgship.Snapshot, error) {
	return e.snapshot, nil
}

func (e *sinkEngine) Export(context.Context, string, string) error {
	return errors.New("sink engine cannot export")
}

func (e *sinkEngine) Load(_ context.Context, r io.Reader) error {
	n, err := io.Copy(io.Discard, r)
	e.received = n
	return err
}

// writeImage writes a docker-save archive with n random layers of size bytes
// and returns their diff-ids in order.
func writeImage(path string, n int, size int64) ([]digest.Digest, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)
	tw := tar.NewWriter(bw)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	diffIDs := make([]digest.Digest, 0, n)
	layerPaths := make([]string, 0, n)
	for i := range n {
		name := fmt.Sprintf("%04d/layer.tar", i)
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: size, Typeflag: tar.TypeReg}); err != nil {
			return nil, err
		}
		digester := digest.SHA256.Digester()
		if _, err := io.CopyN(io.MultiWriter(tw, digester.Hash()), rng, size); err != nil {
			return nil, err
		}
		diffIDs = append(diffIDs, digester.Digest())
		layerPaths = append(layerPaths, name)
	}

	config, err := json.Marshal(map[string]any{
		"architecture": runtime.GOARCH,
		"os":           "linux",
		"rootfs":       map[string]any{"type": "layers", "diff_ids": diffIDs},
	})
	if err != nil {
		return nil, err
	}
	configName := digest.FromBytes(config).Encoded() + ".json"
	manifest, err := json.Marshal([]map[string]any{{
		"Config":   configName,
		"RepoTags": []string{defaultRef},
		"Layers":   layerPaths,
	}})
	if err != nil {
		return nil, err
	}
	for _, m := range []struct {
		name string
		body []byte
	}{{configName, config}, {"manifest.json", manifest}} {
		if err := tw.WriteHeader(&tar.Header{Name: m.name, Mode: 0o644, Size: int64(len(m.body)), Typeflag: tar.TypeReg}); err != nil {
			return nil, err
		}
		if _, err := tw.Write(m.body); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return diffIDs, f.Close()
}
