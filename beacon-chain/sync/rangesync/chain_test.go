package rangesync

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/mock/gomock"

	"github.com/prysmaticlabs/rangesync/beacon-chain/sync/rangesync/mock"
	"github.com/prysmaticlabs/rangesync/testing/assert"
	"github.com/prysmaticlabs/rangesync/testing/require"
)

const waitTimeout = 2 * time.Second

func TestSyncChain_CleanSync(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	processor := mock.NewMockChainSegmentProcessor(ctrl)
	requester := mock.NewMockRangeRequester(ctrl)
	reporter := mock.NewMockPeerReporter(ctrl) // no ReportPeer calls expected

	requester.EXPECT().
		DownloadBeaconBlocksByRange(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ Peer, req BlockRangeRequest) ([]SignedBlock, error) {
			return blocksWithRoots(byte(req.StartSlot)), nil
		}).AnyTimes()
	processor.EXPECT().ProcessChainSegment(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	done := make(chan error, 1)
	chain := NewSyncChain(context.Background(), 0, SyncTypeFinalized, processor, requester, reporter,
		func(err error) { done <- err })
	chain.cfg = testConfig() // SlotsPerEpoch=4, EpochsPerBatch=2

	chain.AddPeer("p1", ChainTarget{Slot: 40, Root: Root{1}})
	require.NoError(t, chain.StartSyncing(0))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("sync chain did not finish in time")
	}

	assert.Equal(t, StatusSynced, chain.Status())
	assert.Equal(t, Epoch(10), chain.StartEpoch())
}

func TestSyncChain_MaxProcessingAttemptsReportsPeerset(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	processor := mock.NewMockChainSegmentProcessor(ctrl)
	requester := mock.NewMockRangeRequester(ctrl)
	reporter := mock.NewMockPeerReporter(ctrl)

	requester.EXPECT().
		DownloadBeaconBlocksByRange(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(blocksWithRoots(1, 2), nil).AnyTimes()
	processor.EXPECT().
		ProcessChainSegment(gomock.Any(), gomock.Any()).
		Return(NewChainSegmentError(0, errors.New("bad block"))).AnyTimes()
	// Two peers are needed: bestRetryPeer excludes a batch's own failed
	// peers, so a lone peer would never be retried a second time and the
	// cap would never be reached.
	reporter.EXPECT().ReportPeer(Peer("p1"), LowTolerance, ReasonMaxProcessingAttempts).Times(1)
	reporter.EXPECT().ReportPeer(Peer("p2"), LowTolerance, ReasonMaxProcessingAttempts).Times(1)

	done := make(chan error, 1)
	chain := NewSyncChain(context.Background(), 0, SyncTypeFinalized, processor, requester, reporter,
		func(err error) { done <- err })
	chain.cfg = testConfig() // MaxProcessingAttempts=2

	chain.AddPeer("p1", ChainTarget{Slot: 4000, Root: Root{1}})
	chain.AddPeer("p2", ChainTarget{Slot: 4000, Root: Root{1}})
	require.NoError(t, chain.StartSyncing(0))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("sync chain did not finish in time")
	}

	assert.Equal(t, StatusError, chain.Status())
}

func TestSyncChain_StartSyncingIsIdempotentWhileSyncing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	processor := mock.NewMockChainSegmentProcessor(ctrl)
	requester := mock.NewMockRangeRequester(ctrl)
	reporter := mock.NewMockPeerReporter(ctrl)

	requester.EXPECT().DownloadBeaconBlocksByRange(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("no route to peer")).AnyTimes()

	chain := NewSyncChain(context.Background(), 0, SyncTypeHead, processor, requester, reporter,
		func(error) {})
	chain.cfg = testConfig()
	chain.cfg.MaxDownloadAttempts = 1000000 // keep retrying instead of failing mid-test

	chain.AddPeer("p1", ChainTarget{Slot: 4000, Root: Root{1}})
	require.NoError(t, chain.StartSyncing(0))
	require.NoError(t, chain.StartSyncing(0)) // no-op, already Syncing
	assert.Equal(t, StatusSyncing, chain.Status())

	chain.Remove()
}

func TestSyncChain_StartAfterEndedFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	processor := mock.NewMockChainSegmentProcessor(ctrl)
	requester := mock.NewMockRangeRequester(ctrl)
	reporter := mock.NewMockPeerReporter(ctrl)

	chain := NewSyncChain(context.Background(), 10, SyncTypeFinalized, processor, requester, reporter,
		func(error) {})
	chain.cfg = testConfig()
	chain.status = StatusSynced

	err := chain.StartSyncing(20)
	require.ErrorIs(t, err, ErrStartAfterEnded)
}
