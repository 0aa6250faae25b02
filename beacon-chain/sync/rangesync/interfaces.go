package rangesync

import "context"

// SignedBlock is the minimal surface range sync needs from an externally
// supplied block type. The real type (and its HashTreeRoot implementation)
// belongs to the block-by-block state-transition engine, which is out of
// scope for this package (§1); we only ever read these three properties.
type SignedBlock interface {
	Slot() Slot
	ParentRoot() Root
	// HashTreeRoot returns the block's canonical root, used both for
	// hashOfBlocks and for linkage checks the caller may perform.
	HashTreeRoot() (Root, error)
}

// BlockRangeRequest mirrors the wire-level beacon_blocks_by_range request
// shape (§3): a contiguous range of slots at a fixed step.
type BlockRangeRequest struct {
	StartSlot Slot
	Count     uint64
	Step      uint64
}

// ChainSegmentProcessor applies an ordered list of blocks to the local
// chain (§6). A nil error means every block imported; otherwise the
// returned error should be (or wrap) a *ChainSegmentError carrying the
// count of blocks imported before the failure.
type ChainSegmentProcessor interface {
	ProcessChainSegment(ctx context.Context, blocks []SignedBlock) error
}

// RangeRequester fetches at most req.Count blocks from peer, ascending by
// slot, linked by ParentRoot (§6). Any malformed or failed response should
// be returned as (or wrapped in) a *DownloadError.
type RangeRequester interface {
	DownloadBeaconBlocksByRange(ctx context.Context, p Peer, req BlockRangeRequest) ([]SignedBlock, error)
}

// ReportAction is the peer-scoring action a PeerReporter is asked to apply.
type ReportAction int

const (
	// HighTolerance is a mild positive/neutral nudge.
	HighTolerance ReportAction = iota
	// MidTolerance is a moderate penalty.
	MidTolerance
	// LowTolerance is a heavy penalty.
	LowTolerance
	// Fatal requests immediate disconnection/banning.
	Fatal
)

func (a ReportAction) String() string {
	switch a {
	case HighTolerance:
		return "high_tolerance"
	case MidTolerance:
		return "mid_tolerance"
	case LowTolerance:
		return "low_tolerance"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PeerReporter is a fire-and-forget peer-scoring sink (§6). Implementations
// are expected to be internally synchronized; range sync never mutates
// peer-score state directly.
type PeerReporter interface {
	ReportPeer(p Peer, action ReportAction, reason string)
}

// Clock exposes the current slot, used only to bound candidate chains and
// never as part of the sync state machine itself (§6).
type Clock interface {
	CurrentSlot() Slot
}
