package rangesync

import (
	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// BatchState is the discriminant of a Batch's tagged state (§3/§4.1). Only
// the fields relevant to the current state are meaningful; transition
// methods move the owned payload (peer, blocks, attempt) rather than
// copying across a cyclic reference, per §9's redesign note on the union
// type.
type BatchState int

const (
	// BatchAwaitingDownload has no peer or blocks assigned yet.
	BatchAwaitingDownload BatchState = iota
	// BatchDownloading has a peer assigned and a request in flight.
	BatchDownloading
	// BatchAwaitingProcessing holds a peer's response, not yet handed to
	// the processor.
	BatchAwaitingProcessing
	// BatchProcessing is being applied to the local chain right now.
	BatchProcessing
	// BatchAwaitingValidation succeeded processing and is waiting for the
	// owning chain to advance past it.
	BatchAwaitingValidation
)

func (s BatchState) String() string {
	switch s {
	case BatchAwaitingDownload:
		return "awaiting_download"
	case BatchDownloading:
		return "downloading"
	case BatchAwaitingProcessing:
		return "awaiting_processing"
	case BatchProcessing:
		return "processing"
	case BatchAwaitingValidation:
		return "awaiting_validation"
	default:
		return "unknown"
	}
}

// Attempt is the (peer, hash-of-blocks) witness of one download that made
// it to processing (§4.1/GLOSSARY).
type Attempt struct {
	Peer Peer
	Hash Root
}

// Batch is a unit of work covering EpochsPerBatch consecutive epochs (§3).
// It is a passive value type: all mutation happens through its transition
// methods, and it is owned and indexed by a single SyncChain, never shared.
type Batch struct {
	startEpoch Epoch
	request    BlockRangeRequest
	state      BatchState

	peer   Peer
	blocks []SignedBlock

	attempt Attempt

	failedDownloadAttempts   []Peer
	failedProcessingAttempts []Attempt

	cfg *Config
}

// newBatch constructs a Batch anchored at startEpoch, in BatchAwaitingDownload.
func newBatch(startEpoch Epoch, cfg *Config) *Batch {
	startSlot := cfg.computeStartSlot(startEpoch)
	return &Batch{
		startEpoch: startEpoch,
		request: BlockRangeRequest{
			StartSlot: startSlot,
			Count:     cfg.batchSlotCount(),
			Step:      1,
		},
		state: BatchAwaitingDownload,
		cfg:   cfg,
	}
}

// StartEpoch returns the batch's anchor epoch.
func (b *Batch) StartEpoch() Epoch { return b.startEpoch }

// State returns the batch's current discriminant.
func (b *Batch) State() BatchState { return b.state }

// Request returns the beacon_blocks_by_range request this batch issues.
func (b *Batch) Request() BlockRangeRequest { return b.request }

// Peer returns the peer currently assigned, valid in Downloading and
// AwaitingProcessing.
func (b *Batch) Peer() Peer { return b.peer }

// Attempt returns the (peer, hash) pair of the in-flight or completed
// processing attempt, valid in Processing and AwaitingValidation.
func (b *Batch) Attempt() Attempt { return b.attempt }

// FailedPeers returns peers that should be excluded from retry selection
// for this batch (§4.2): everyone who failed a download, plus everyone
// whose processing attempt failed.
func (b *Batch) FailedPeers() []Peer {
	out := make([]Peer, 0, len(b.failedDownloadAttempts)+len(b.failedProcessingAttempts))
	out = append(out, b.failedDownloadAttempts...)
	for _, a := range b.failedProcessingAttempts {
		out = append(out, a.Peer)
	}
	return out
}

// startDownloading transitions AwaitingDownload -> Downloading{peer}.
func (b *Batch) startDownloading(p Peer) error {
	if b.state != BatchAwaitingDownload {
		return wrongState(b.state, "startDownloading")
	}
	b.peer = p
	b.state = BatchDownloading
	return nil
}

// downloadingSuccess transitions Downloading -> AwaitingProcessing{peer,blocks}.
func (b *Batch) downloadingSuccess(blocks []SignedBlock) error {
	if b.state != BatchDownloading {
		return wrongState(b.state, "downloadingSuccess")
	}
	b.blocks = blocks
	b.state = BatchAwaitingProcessing
	return nil
}

// downloadingError transitions Downloading -> AwaitingDownload, recording
// the failed peer. Returns ErrMaxDownloadAttempts once the per-batch
// lifetime cap is reached (§7 fixes this as a lifetime, not per-state-entry,
// cap).
func (b *Batch) downloadingError() error {
	if b.state != BatchDownloading {
		return wrongState(b.state, "downloadingError")
	}
	b.failedDownloadAttempts = append(b.failedDownloadAttempts, b.peer)
	b.peer = ""
	b.state = BatchAwaitingDownload
	if len(b.failedDownloadAttempts) >= b.cfg.MaxDownloadAttempts {
		return ErrMaxDownloadAttempts
	}
	return nil
}

// startProcessing transitions AwaitingProcessing -> Processing{attempt} and
// returns the blocks to be processed. The attempt's hash is the
// domain-separated hash over the ordered block roots (§4.1), so two peers
// returning identical blocks collapse to the same attempt identity.
func (b *Batch) startProcessing() ([]SignedBlock, error) {
	if b.state != BatchAwaitingProcessing {
		return nil, wrongState(b.state, "startProcessing")
	}
	hash, err := hashOfBlocks(b.blocks)
	if err != nil {
		return nil, errors.Wrap(err, "could not hash batch blocks")
	}
	b.attempt = Attempt{Peer: b.peer, Hash: hash}
	b.state = BatchProcessing
	return b.blocks, nil
}

// processingSuccess transitions Processing -> AwaitingValidation{attempt}.
func (b *Batch) processingSuccess() error {
	if b.state != BatchProcessing {
		return wrongState(b.state, "processingSuccess")
	}
	b.state = BatchAwaitingValidation
	return nil
}

// processingError transitions Processing -> AwaitingDownload, recording the
// failed attempt. Returns ErrMaxProcessingAttempts once the lifetime cap is
// reached.
func (b *Batch) processingError() error {
	if b.state != BatchProcessing {
		return wrongState(b.state, "processingError")
	}
	b.failedProcessingAttempts = append(b.failedProcessingAttempts, b.attempt)
	b.attempt = Attempt{}
	b.peer = ""
	b.blocks = nil
	b.state = BatchAwaitingDownload
	if len(b.failedProcessingAttempts) >= b.cfg.MaxProcessingAttempts {
		return ErrMaxProcessingAttempts
	}
	return nil
}

// validationError transitions AwaitingValidation -> AwaitingDownload,
// recording the failed attempt. Used to force redownload of a suspicious
// prefix of batches after a later batch's processing failure (§4.4 step 5).
// Shares the same lifetime cap and failure list as processingError.
func (b *Batch) validationError() error {
	if b.state != BatchAwaitingValidation {
		return wrongState(b.state, "validationError")
	}
	b.failedProcessingAttempts = append(b.failedProcessingAttempts, b.attempt)
	b.attempt = Attempt{}
	b.peer = ""
	b.blocks = nil
	b.state = BatchAwaitingDownload
	if len(b.failedProcessingAttempts) >= b.cfg.MaxProcessingAttempts {
		return ErrMaxProcessingAttempts
	}
	return nil
}

// validationSuccess is the terminal transition: the batch is about to be
// removed by the owning chain, and the winning attempt is returned so the
// caller can score peers that contributed a diverging, failed attempt.
func (b *Batch) validationSuccess() (Attempt, error) {
	if b.state != BatchAwaitingValidation {
		return Attempt{}, wrongState(b.state, "validationSuccess")
	}
	return b.attempt, nil
}

// FailedProcessingAttemptsSnapshot returns a copy of the batch's recorded
// failed processing/validation attempts, safe for a caller to range over
// after the batch itself has moved on.
func (b *Batch) FailedProcessingAttemptsSnapshot() []Attempt {
	out := make([]Attempt, len(b.failedProcessingAttempts))
	copy(out, b.failedProcessingAttempts)
	return out
}

func wrongState(got BatchState, op string) error {
	return errors.Wrapf(ErrWrongBatchState, "%s called while batch in state %s", op, got)
}

// hashOfBlocks computes a domain-separated hash over the ordered sequence
// of block hash-tree-roots (§4.1). sha256-simd is a drop-in, SIMD-accelerated
// crypto/sha256, the same primitive the corpus's own shared/hashutil wraps.
func hashOfBlocks(blocks []SignedBlock) (Root, error) {
	h := sha256.New()
	if _, err := h.Write(batchAttemptDomain); err != nil {
		return Root{}, err
	}
	for _, blk := range blocks {
		root, err := blk.HashTreeRoot()
		if err != nil {
			return Root{}, errors.Wrap(err, "could not compute block hash tree root")
		}
		if _, err := h.Write(root[:]); err != nil {
			return Root{}, err
		}
	}
	var out Root
	copy(out[:], h.Sum(nil))
	return out, nil
}

// batchAttemptDomain separates batch-attempt hashing from any other use of
// sha256 elsewhere in a host process.
var batchAttemptDomain = []byte("rangesync.batch.attempt")
