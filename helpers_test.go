package imgship

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

// testLayer is a layer of a synthetic saved image.
type testLayer struct {
	path string
	body []byte
}

func (l testLayer) diffID() digest.Digest {
	return digest.FromBytes(l.body)
}

// savedArchive returns the bytes of a "docker save" archive of one image.
func savedArchive(t *testing.T, tag string, layers []testLayer) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	write := func(name string, body []byte) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(body)
		require.NoError(t, err)
	}

	diffIDs := make([]string, 0, len(layers))
	paths := make([]string, 0, len(layers))
	for _, l := range layers {
		diffIDs = append(diffIDs, l.diffID().String())
		paths = append(paths, l.path)
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     path.Dir(l.path) + "/",
			Mode:     0o755,
			Typeflag: tar.TypeDir,
		}))
		write(l.path, l.body)
	}

	config, err := json.Marshal(map[string]any{
		"architecture": "amd64",
		"os":           "linux",
		"rootfs":       map[string]any{"type": "layers", "diff_ids": diffIDs},
	})
	require.NoError(t, err)
	configName := digest.FromBytes(config).Encoded() + ".json"
	write(configName, config)

	manifest, err := json.Marshal([]map[string]any{{
		"Config":   configName,
		"RepoTags": []string{tag},
		"Layers":   paths,
	}})
	require.NoError(t, err)
	write("manifest.json", manifest)

	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// tarMembers returns the regular-file members of a tar stream, in order.
func tarMembers(t *testing.T, data []byte) ([]string, map[string][]byte) {
	t.Helper()

	var names []string
	contents := make(map[string][]byte)
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		names = append(names, hdr.Name)
		contents[hdr.Name] = body
	}
	return names, contents
}

// decompress reverses the transfer stream encoding.
func decompress(t *testing.T, data []byte, c Compression) []byte {
	t.Helper()

	switch c {
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		out, err := io.ReadAll(zr)
		require.NoError(t, err)
		return out
	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer zr.Close()
		out, err := io.ReadAll(zr)
		require.NoError(t, err)
		return out
	default:
		return data
	}
}

// fakeEngine is an in-memory Engine.
type fakeEngine struct {
	mu sync.Mutex

	snapshot *Snapshot
	archive  []byte

	listErr   error
	exportErr error
	loadErr   error

	// exported records the path the archive was written to.
	exported string
	// loaded holds the bytes received by Load.
	loaded []byte
	calls  []string
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) ListDigests(ctx context.Context) (*Snapshot, error) {
	f.record("list")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.snapshot == nil {
		return &Snapshot{}, nil
	}
	return f.snapshot, nil
}

func (f *fakeEngine) Export(ctx context.Context, _, dst string) error {
	f.record("export")
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.exportErr != nil {
		return f.exportErr
	}
	f.mu.Lock()
	f.exported = dst
	f.mu.Unlock()
	return os.WriteFile(dst, f.archive, 0o600)
}

func (f *fakeEngine) Load(ctx context.Context, r io.Reader) error {
	f.record("load")
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.loadErr != nil {
		return f.loadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.loaded = data
	f.mu.Unlock()
	return nil
}

// requireEmptyDir fails unless dir has no entries.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "working directory left behind")
}
