package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

// testEntry is a member written into a synthetic archive.
type testEntry struct {
	name string
	body []byte
	// link makes the entry a symlink to link.
	link string
}

// writeArchive writes entries as an uncompressed tar into a temp directory.
func writeArchive(t *testing.T, entries []testEntry) string {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.body)),
			Typeflag: tar.TypeReg,
		}
		switch {
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
			hdr.Mode = 0o777
			hdr.Size = 0
		case strings.HasSuffix(e.name, "/"):
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(e.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())

	path := filepath.Join(t.TempDir(), "image.tar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

// testLayer is a layer of a synthetic saved image.
type testLayer struct {
	path string
	body []byte
}

// diffID returns the layer digest as it would appear in the image config.
func (l testLayer) diffID() digest.Digest {
	return digest.FromBytes(l.body)
}

// savedImage builds the members of a "docker save" archive for one image.
func savedImage(t *testing.T, tag string, layers []testLayer) []testEntry {
	t.Helper()

	diffIDs := make([]string, 0, len(layers))
	paths := make([]string, 0, len(layers))
	var entries []testEntry
	for _, l := range layers {
		diffIDs = append(diffIDs, l.diffID().String())
		paths = append(paths, l.path)
		if dir, _ := filepath.Split(l.path); dir != "" {
			entries = append(entries, testEntry{name: dir})
		}
		entries = append(entries, testEntry{name: l.path, body: l.body})
	}

	config, err := json.Marshal(map[string]any{
		"architecture": "amd64",
		"os":           "linux",
		"rootfs": map[string]any{
			"type":     "layers",
			"diff_ids": diffIDs,
		},
	})
	require.NoError(t, err)
	configName := digest.FromBytes(config).Encoded() + ".json"

	manifest, err := json.Marshal([]map[string]any{{
		"Config":   configName,
		"RepoTags": []string{tag},
		"Layers":   paths,
	}})
	require.NoError(t, err)

	entries = append(entries,
		testEntry{name: configName, body: config},
		testEntry{name: ManifestName, body: manifest},
	)
	return entries
}

// readMembers returns the name and content of every member, in order.
func readMembers(t *testing.T, path string) ([]string, map[string][]byte) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	contents := make(map[string][]byte)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		names = append(names, hdr.Name)
		contents[hdr.Name] = body
	}
	return names, contents
}
