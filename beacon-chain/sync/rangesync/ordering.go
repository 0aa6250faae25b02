package rangesync

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// sortedEpochs returns the keys of batches in ascending order, the iteration
// order every ChainOrdering helper and the global batch-state invariant (§3)
// assumes.
func sortedEpochs(batches map[Epoch]*Batch) []Epoch {
	epochs := make([]Epoch, 0, len(batches))
	for e := range batches {
		epochs = append(epochs, e)
	}
	slices.Sort(epochs)
	return epochs
}

// validateBatchesStatus walks batches in ascending startEpoch order and
// rejects any state sequence that doesn't match the regular pattern from
// §3:
//
//	AwaitingValidation*   Processing?   (AwaitingDownload | Downloading | AwaitingProcessing)*
//
// i.e.: once a non-AwaitingValidation batch is seen, no AwaitingValidation
// may appear after it; at most one Processing batch may appear, and only
// before any AwaitingDownload, Downloading or AwaitingProcessing batch.
func validateBatchesStatus(batches map[Epoch]*Batch) error {
	epochs := sortedEpochs(batches)

	seenPastValidation := false
	seenProcessing := false
	seenPreProcessing := false
	for _, e := range epochs {
		b := batches[e]
		switch b.State() {
		case BatchAwaitingValidation:
			if seenPastValidation {
				return errors.Wrapf(ErrInvalidBatchOrder, "batch %d: AwaitingValidation found after non-validation batches", e)
			}
		case BatchProcessing:
			seenPastValidation = true
			if seenProcessing {
				return errors.Wrapf(ErrInvalidBatchOrder, "batch %d: more than one Processing batch", e)
			}
			if seenPreProcessing {
				return errors.Wrapf(ErrInvalidBatchOrder, "batch %d: Processing found after pre-processing batches", e)
			}
			seenProcessing = true
		case BatchAwaitingDownload, BatchDownloading, BatchAwaitingProcessing:
			seenPastValidation = true
			seenPreProcessing = true
		default:
			return errors.Wrapf(ErrInvalidBatchOrder, "batch %d: unrecognized state %s", e, b.State())
		}
	}
	return nil
}

// getNextBatchToProcess returns the first batch (ascending startEpoch)
// whose state is AwaitingProcessing, skipping a leading run of
// AwaitingValidation batches (§4.3). If the first non-AwaitingValidation
// batch encountered is in AwaitingDownload, Downloading, or Processing, no
// batch is ready yet and ok is false.
func getNextBatchToProcess(batches map[Epoch]*Batch) (*Batch, bool) {
	for _, e := range sortedEpochs(batches) {
		b := batches[e]
		switch b.State() {
		case BatchAwaitingValidation:
			continue
		case BatchAwaitingProcessing:
			return b, true
		default:
			return nil, false
		}
	}
	return nil, false
}

// toBeProcessedStartEpoch is the max startEpoch among AwaitingValidation
// batches plus epochsPerBatch, or anchor if there are none (§4.3). This is
// the epoch the processor is working towards validating next.
func toBeProcessedStartEpoch(batches map[Epoch]*Batch, anchor Epoch, epochsPerBatch Epoch) Epoch {
	max, found := Epoch(0), false
	for _, b := range batches {
		if b.State() != BatchAwaitingValidation {
			continue
		}
		if !found || b.StartEpoch() > max {
			max = b.StartEpoch()
			found = true
		}
	}
	if !found {
		return anchor
	}
	return max + epochsPerBatch
}

// toBeDownloadedStartEpoch is lastBatch.startEpoch + epochsPerBatch, or
// anchor if batches is empty (§4.3). This is the next epoch a new batch
// should be created at.
func toBeDownloadedStartEpoch(batches map[Epoch]*Batch, anchor Epoch, epochsPerBatch Epoch) Epoch {
	epochs := sortedEpochs(batches)
	if len(epochs) == 0 {
		return anchor
	}
	return epochs[len(epochs)-1] + epochsPerBatch
}
