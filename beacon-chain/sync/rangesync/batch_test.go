package rangesync

import (
	"testing"

	"github.com/prysmaticlabs/rangesync/testing/assert"
	"github.com/prysmaticlabs/rangesync/testing/require"
)

type fakeBlock struct {
	slot   Slot
	parent Root
	root   Root
}

func (b fakeBlock) Slot() Slot                  { return b.slot }
func (b fakeBlock) ParentRoot() Root            { return b.parent }
func (b fakeBlock) HashTreeRoot() (Root, error) { return b.root, nil }

func blocksWithRoots(roots ...byte) []SignedBlock {
	out := make([]SignedBlock, len(roots))
	for i, r := range roots {
		var root Root
		root[0] = r
		out[i] = fakeBlock{slot: Slot(i), root: root}
	}
	return out
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SlotsPerEpoch = 4
	cfg.EpochsPerBatch = 2
	cfg.MaxDownloadAttempts = 2
	cfg.MaxProcessingAttempts = 2
	return cfg
}

func TestBatch_NewBatch(t *testing.T) {
	cfg := testConfig()
	b := newBatch(2, cfg)
	assert.Equal(t, Epoch(2), b.StartEpoch())
	assert.Equal(t, BatchAwaitingDownload, b.State())
	assert.Equal(t, Slot(9), b.Request().StartSlot) // 2*4 + 1
	assert.Equal(t, uint64(8), b.Request().Count)
}

func TestBatch_DownloadLifecycle(t *testing.T) {
	cfg := testConfig()
	b := newBatch(0, cfg)

	require.NoError(t, b.startDownloading("p1"))
	assert.Equal(t, BatchDownloading, b.State())
	assert.Equal(t, Peer("p1"), b.Peer())

	blocks := blocksWithRoots(1, 2)
	require.NoError(t, b.downloadingSuccess(blocks))
	assert.Equal(t, BatchAwaitingProcessing, b.State())
}

func TestBatch_DownloadingErrorCapsOut(t *testing.T) {
	cfg := testConfig() // MaxDownloadAttempts = 2
	b := newBatch(0, cfg)

	require.NoError(t, b.startDownloading("p1"))
	err := b.downloadingError()
	require.NoError(t, err) // first failure: still retryable
	assert.Equal(t, BatchAwaitingDownload, b.State())

	require.NoError(t, b.startDownloading("p2"))
	err = b.downloadingError()
	require.ErrorIs(t, err, ErrMaxDownloadAttempts)
}

func TestBatch_WrongStateTransition(t *testing.T) {
	cfg := testConfig()
	b := newBatch(0, cfg)
	_, err := b.startProcessing()
	require.ErrorIs(t, err, ErrWrongBatchState)
}

func TestBatch_ProcessingLifecycle(t *testing.T) {
	cfg := testConfig()
	b := newBatch(0, cfg)
	require.NoError(t, b.startDownloading("p1"))
	require.NoError(t, b.downloadingSuccess(blocksWithRoots(1, 2)))

	blocks, err := b.startProcessing()
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
	assert.Equal(t, BatchProcessing, b.State())
	assert.Equal(t, Peer("p1"), b.Attempt().Peer)

	require.NoError(t, b.processingSuccess())
	assert.Equal(t, BatchAwaitingValidation, b.State())

	winner, err := b.validationSuccess()
	require.NoError(t, err)
	assert.Equal(t, Peer("p1"), winner.Peer)
}

func TestBatch_ProcessingErrorCapsOutAndReportsFailedPeers(t *testing.T) {
	cfg := testConfig() // MaxProcessingAttempts = 2
	b := newBatch(0, cfg)

	require.NoError(t, b.startDownloading("p1"))
	require.NoError(t, b.downloadingSuccess(blocksWithRoots(1)))
	_, err := b.startProcessing()
	require.NoError(t, err)
	require.NoError(t, b.processingError()) // 1st failure

	require.NoError(t, b.startDownloading("p2"))
	require.NoError(t, b.downloadingSuccess(blocksWithRoots(2)))
	_, err = b.startProcessing()
	require.NoError(t, err)
	err = b.processingError() // 2nd failure: cap reached
	require.ErrorIs(t, err, ErrMaxProcessingAttempts)

	failed := b.FailedPeers()
	assert.Len(t, failed, 2)
}

func TestBatch_SameBlocksHashToSameAttempt(t *testing.T) {
	a, err := hashOfBlocks(blocksWithRoots(1, 2, 3))
	require.NoError(t, err)
	c, err := hashOfBlocks(blocksWithRoots(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, a, c)

	d, err := hashOfBlocks(blocksWithRoots(3, 2, 1))
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}
