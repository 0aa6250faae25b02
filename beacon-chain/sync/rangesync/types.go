package rangesync

import (
	"fmt"

	"github.com/libp2p/go-libp2p-core/peer"
)

// Slot is a consensus time unit; SlotsPerEpoch slots make up one Epoch.
type Slot uint64

// Epoch is a nonnegative count of SlotsPerEpoch-sized periods since genesis.
type Epoch uint64

// Root is a 32-byte Merkle root, used here only as an opaque chain/block
// identity; range sync never interprets its contents.
type Root [32]byte

// String renders a Root the way the corpus renders hashes in log fields.
func (r Root) String() string {
	return fmt.Sprintf("%#x", [32]byte(r))
}

// Peer identifies a remote node. It is libp2p's peer.ID: hashable, usable
// directly as a map key, and already the currency the rest of the corpus's
// p2p layer (peerstore, scorer, stream muxer) trades in.
type Peer = peer.ID

// SyncType classifies a peer's relationship to the local chain (§3).
type SyncType int

const (
	// SyncTypeUnknown covers a peer that is irrelevant to range sync: one
	// that qualifies for neither finalized nor head sync, including any
	// peer not ahead on finality or on head.
	SyncTypeUnknown SyncType = iota
	// SyncTypeFinalized peers are ahead on finality and their finalized
	// root isn't locally known; sync to that checkpoint.
	SyncTypeFinalized
	// SyncTypeHead peers share a known finalized root but have a higher
	// head slot; short-range sync to head.
	SyncTypeHead
)

func (t SyncType) String() string {
	switch t {
	case SyncTypeFinalized:
		return "finalized"
	case SyncTypeHead:
		return "head"
	default:
		return "unknown"
	}
}

// ChainTarget is the head a peer (or a chain) is working towards.
type ChainTarget struct {
	Slot Slot
	Root Root
}

func (t ChainTarget) String() string {
	return fmt.Sprintf("{slot: %d, root: %s}", t.Slot, t.Root)
}

// Status is the lifecycle state of a SyncChain.
type Status int

const (
	// StatusStopped is the initial state; the chain has not started
	// syncing, or chain selection has paused it.
	StatusStopped Status = iota
	// StatusSyncing means the downloader/processor loops are active.
	StatusSyncing
	// StatusSynced means the chain reached its target and is done.
	StatusSynced
	// StatusError means the chain hit an unrecoverable error.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// PeerCheckpoint is what RangeSync needs from a single status event to
// classify the reporting peer and route it to a chain.
type PeerCheckpoint struct {
	FinalizedEpoch Epoch
	FinalizedRoot  Root
	HeadSlot       Slot
	HeadRoot       Root
}

// LocalCheckpoint is the local node's view at the moment a peer status is
// processed.
type LocalCheckpoint struct {
	FinalizedEpoch Epoch
	HeadSlot       Slot
	// HasBlock reports whether the local chain already holds the block
	// with the given root, used to decide whether a peer's finalized or
	// head root is "known locally".
	HasBlock func(Root) bool
	// EpochOfBlock returns the epoch of a locally known block, used to
	// anchor a head-sync chain at the common finalized root's epoch.
	EpochOfBlock func(Root) (Epoch, bool)
}
