package rangesync

import (
	"testing"

	"github.com/prysmaticlabs/rangesync/testing/assert"
	"github.com/prysmaticlabs/rangesync/testing/require"
)

func batchInState(startEpoch Epoch, state BatchState, cfg *Config) *Batch {
	b := newBatch(startEpoch, cfg)
	switch state {
	case BatchAwaitingDownload:
	case BatchDownloading:
		_ = b.startDownloading("p1")
	case BatchAwaitingProcessing:
		_ = b.startDownloading("p1")
		_ = b.downloadingSuccess(blocksWithRoots(1))
	case BatchProcessing:
		_ = b.startDownloading("p1")
		_ = b.downloadingSuccess(blocksWithRoots(1))
		_, _ = b.startProcessing()
	case BatchAwaitingValidation:
		_ = b.startDownloading("p1")
		_ = b.downloadingSuccess(blocksWithRoots(1))
		_, _ = b.startProcessing()
		_ = b.processingSuccess()
	}
	return b
}

func TestSortedEpochs(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		4: batchInState(4, BatchAwaitingDownload, cfg),
		0: batchInState(0, BatchAwaitingDownload, cfg),
		2: batchInState(2, BatchAwaitingDownload, cfg),
	}
	assert.Equal(t, []Epoch{0, 2, 4}, sortedEpochs(batches))
}

func TestValidateBatchesStatus_ValidSequence(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		0: batchInState(0, BatchAwaitingValidation, cfg),
		2: batchInState(2, BatchAwaitingValidation, cfg),
		4: batchInState(4, BatchProcessing, cfg),
		6: batchInState(6, BatchAwaitingProcessing, cfg),
		8: batchInState(8, BatchAwaitingDownload, cfg),
	}
	require.NoError(t, validateBatchesStatus(batches))
}

func TestValidateBatchesStatus_AwaitingValidationAfterProcessing(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		0: batchInState(0, BatchAwaitingProcessing, cfg),
		2: batchInState(2, BatchAwaitingValidation, cfg),
	}
	err := validateBatchesStatus(batches)
	require.ErrorIs(t, err, ErrInvalidBatchOrder)
}

func TestValidateBatchesStatus_TwoProcessingBatches(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		0: batchInState(0, BatchProcessing, cfg),
		2: batchInState(2, BatchProcessing, cfg),
	}
	err := validateBatchesStatus(batches)
	require.ErrorIs(t, err, ErrInvalidBatchOrder)
}

func TestGetNextBatchToProcess_SkipsValidatedPrefix(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		0: batchInState(0, BatchAwaitingValidation, cfg),
		2: batchInState(2, BatchAwaitingProcessing, cfg),
	}
	b, ok := getNextBatchToProcess(batches)
	require.True(t, ok)
	assert.Equal(t, Epoch(2), b.StartEpoch())
}

func TestGetNextBatchToProcess_BlockedByDownloading(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		0: batchInState(0, BatchAwaitingValidation, cfg),
		2: batchInState(2, BatchDownloading, cfg),
	}
	_, ok := getNextBatchToProcess(batches)
	assert.False(t, ok)
}

func TestToBeProcessedStartEpoch_NoneAwaitingValidation(t *testing.T) {
	batches := map[Epoch]*Batch{}
	assert.Equal(t, Epoch(6), toBeProcessedStartEpoch(batches, 6, 2))
}

func TestToBeProcessedStartEpoch_UsesMaxAwaitingValidation(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		0: batchInState(0, BatchAwaitingValidation, cfg),
		2: batchInState(2, BatchAwaitingValidation, cfg),
	}
	assert.Equal(t, Epoch(4), toBeProcessedStartEpoch(batches, 0, 2))
}

func TestToBeDownloadedStartEpoch_EmptyUsesAnchor(t *testing.T) {
	batches := map[Epoch]*Batch{}
	assert.Equal(t, Epoch(10), toBeDownloadedStartEpoch(batches, 10, 2))
}

func TestToBeDownloadedStartEpoch_PastLastBatch(t *testing.T) {
	cfg := testConfig()
	batches := map[Epoch]*Batch{
		0: batchInState(0, BatchAwaitingDownload, cfg),
		2: batchInState(2, BatchAwaitingDownload, cfg),
	}
	assert.Equal(t, Epoch(4), toBeDownloadedStartEpoch(batches, 0, 2))
}
