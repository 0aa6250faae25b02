package rangesync

import "github.com/pkg/errors"

// Sentinel errors (§7). Compared with errors.Is after unwrapping, the way
// blocksFetcher compares against errNoPeersAvailable/errSlotIsTooHigh.
var (
	// ErrWrongBatchState is returned when a Batch transition method is
	// called from a state it doesn't support. It is always a programming
	// error in the calling SyncChain and is fatal to the chain.
	ErrWrongBatchState = errors.New("wrong batch state for requested transition")

	// ErrMaxDownloadAttempts is returned once a batch's download retry
	// count reaches Config.MaxDownloadAttempts.
	ErrMaxDownloadAttempts = errors.New("batch exceeded max download attempts")

	// ErrMaxProcessingAttempts is returned once a batch's processing
	// retry count reaches Config.MaxProcessingAttempts.
	ErrMaxProcessingAttempts = errors.New("batch exceeded max processing attempts")

	// ErrInvalidBatchOrder is returned by validateBatchesStatus when the
	// ascending-epoch batch sequence violates the global state invariant.
	ErrInvalidBatchOrder = errors.New("batch set violates status ordering invariant")

	// ErrStartAfterEnded is returned by SyncChain.StartSyncing when the
	// chain has already reached Synced or Error.
	ErrStartAfterEnded = errors.New("cannot start syncing an ended chain")

	// ErrAborted marks a silent cancellation of a chain's loops; it is
	// never surfaced through onEnd.
	ErrAborted = errors.New("sync chain aborted")

	// ErrNoPeers is returned when an operation needs at least one peer
	// and none is available.
	ErrNoPeers = errors.New("no peers available for range sync")

	// ErrBatchAlreadyExists signals the includeNextBatch invariant
	// violation described in §4.4: a batch already occupies the computed
	// startEpoch slot.
	ErrBatchAlreadyExists = errors.New("batch already exists at computed start epoch")
)

// ChainSegmentError is returned by a ChainSegmentProcessor when it imports
// a strict prefix of the requested blocks before failing (§6). ImportedBlocks
// may be zero (nothing imported) up to len(blocks)-1.
type ChainSegmentError struct {
	ImportedBlocks int
	cause          error
}

// NewChainSegmentError wraps cause with the count of blocks that were
// successfully imported before the failure.
func NewChainSegmentError(imported int, cause error) *ChainSegmentError {
	return &ChainSegmentError{ImportedBlocks: imported, cause: cause}
}

func (e *ChainSegmentError) Error() string {
	if e.cause == nil {
		return errors.Errorf("chain segment import failed after %d blocks", e.ImportedBlocks).Error()
	}
	return errors.Wrapf(e.cause, "chain segment import failed after %d blocks", e.ImportedBlocks).Error()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ChainSegmentError) Unwrap() error {
	return e.cause
}

// DownloadError wraps any failure returned by a RangeRequester, including
// request timeouts (TTFB/RESP) and malformed responses (§5); range sync
// treats all of these identically as a transient download failure.
type DownloadError struct {
	cause error
}

// NewDownloadError wraps cause as a DownloadError.
func NewDownloadError(cause error) *DownloadError {
	return &DownloadError{cause: cause}
}

func (e *DownloadError) Error() string {
	if e.cause == nil {
		return "download failed"
	}
	return errors.Wrap(e.cause, "download failed").Error()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *DownloadError) Unwrap() error {
	return e.cause
}

// Peer report reasons (§6, exact strings are part of the external contract
// and are asserted on by tests and by any host-side peer scoring policy).
const (
	ReasonInvalidBatchSelf      = "SyncChainInvalidBatchSelf"
	ReasonInvalidBatchOther     = "SyncChainInvalidBatchOther"
	ReasonMaxProcessingAttempts = "SyncChainMaxProcessingAttempts"
)
