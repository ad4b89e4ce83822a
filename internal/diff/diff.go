// Package diff classifies image layers against a remote layer inventory.
package diff

import (
	"fmt"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/identity"

	"github.com/meigma/imgship/core"
)

// Classify pairs each layer path with its diff-ID and decides whether the
// remote engine already holds it. Layers are returned in manifest order.
//
// The layer and diff-ID counts must agree; a mismatch returns
// core.ErrLayerCountMismatch and no plan. A nil snapshot skips nothing.
func Classify(meta *core.Metadata, remote *core.Snapshot, mode core.MatchMode) (*core.Plan, error) {
	if len(meta.LayerPaths) != len(meta.DiffIDs) {
		return nil, fmt.Errorf("%w: %d layers, %d diff-ids",
			core.ErrLayerCountMismatch, len(meta.LayerPaths), len(meta.DiffIDs))
	}

	var known core.DigestSet
	switch mode {
	case core.MatchDiffID, "":
		known = remote.DiffIDs()
	case core.MatchChainID:
		known = remote.ChainIDs()
	default:
		return nil, fmt.Errorf("unknown match mode %q", mode)
	}

	chain := identity.ChainIDs(append(meta.DiffIDs[:0:0], meta.DiffIDs...))

	plan := &core.Plan{Layers: make([]core.LayerDecision, 0, len(meta.LayerPaths))}
	deleted := make(map[string]struct{})
	for i, path := range meta.LayerPaths {
		ld := core.LayerDecision{
			Layer: core.Layer{
				Path:    path,
				DiffID:  meta.DiffIDs[i],
				ChainID: chain[i],
			},
			Decision: core.Transfer,
		}

		key := ld.DiffID
		if mode == core.MatchChainID {
			key = ld.ChainID
		}
		if known.Contains(key) {
			ld.Decision = core.Skip
		}
		plan.Layers = append(plan.Layers, ld)
	}

	// A member can only be removed if no transferred layer uses it. Layers
	// share a member either by path or, in legacy archives, through a symlink
	// from a repeated diff-ID to its first copy, so both keys are checked.
	neededPaths := make(map[string]struct{})
	neededDiffIDs := make(map[digest.Digest]struct{})
	for _, ld := range plan.Layers {
		if ld.Decision == core.Transfer {
			neededPaths[ld.Path] = struct{}{}
			neededDiffIDs[ld.DiffID] = struct{}{}
		}
	}
	for _, ld := range plan.Layers {
		if ld.Decision != core.Skip {
			continue
		}
		if _, ok := neededPaths[ld.Path]; ok {
			continue
		}
		if _, ok := neededDiffIDs[ld.DiffID]; ok {
			continue
		}
		if _, ok := deleted[ld.Path]; ok {
			continue
		}
		deleted[ld.Path] = struct{}{}
		plan.Delete = append(plan.Delete, ld.Path)
	}

	return plan, nil
}
