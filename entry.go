package imgship

import "github.com/meigma/imgship/core"

// Engine is the capability shared by the local and the remote container engine.
// Re-exported from core package.
type Engine = core.Engine

// Snapshot is the layer inventory of an engine at one point in time.
type Snapshot = core.Snapshot

// Plan is the classification of every layer of an image.
type Plan = core.Plan

// LayerDecision is one classified layer.
type LayerDecision = core.LayerDecision

// Decision is the classification of a single layer.
type Decision = core.Decision

// Layer decisions.
const (
	Transfer = core.Transfer
	Skip     = core.Skip
)

// MatchMode selects how local layers are matched against the remote inventory.
type MatchMode = core.MatchMode

// Match modes.
const (
	MatchDiffID  = core.MatchDiffID
	MatchChainID = core.MatchChainID
)

// Metadata is the portion of an exported archive needed to plan a transfer.
type Metadata = core.Metadata
