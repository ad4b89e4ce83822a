package core

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/identity"
)

// DigestSet is an exact set of layer digests.
type DigestSet = mapset.Set[digest.Digest]

// NewDigestSet returns a set holding the given digests.
func NewDigestSet(dgsts ...digest.Digest) DigestSet {
	return mapset.NewThreadUnsafeSet(dgsts...)
}

// Snapshot is the layer inventory of an engine at one point in time.
// It is never refreshed; changes made on the engine after collection are not seen.
type Snapshot struct {
	// Images holds the ordered diff-IDs of each image known to the engine.
	Images [][]digest.Digest
}

// DiffIDs returns the set of all diff-IDs across all images.
func (s *Snapshot) DiffIDs() DigestSet {
	set := NewDigestSet()
	if s == nil {
		return set
	}
	for _, layers := range s.Images {
		for _, d := range layers {
			set.Add(d)
		}
	}
	return set
}

// ChainIDs returns the chain ID of every layer prefix of every image.
func (s *Snapshot) ChainIDs() DigestSet {
	set := NewDigestSet()
	if s == nil {
		return set
	}
	for _, layers := range s.Images {
		for _, c := range identity.ChainIDs(append([]digest.Digest(nil), layers...)) {
			set.Add(c)
		}
	}
	return set
}

// Len returns the number of distinct diff-IDs in the snapshot.
func (s *Snapshot) Len() int {
	return s.DiffIDs().Cardinality()
}
