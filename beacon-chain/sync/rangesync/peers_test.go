package rangesync

import (
	"testing"

	"github.com/prysmaticlabs/rangesync/testing/assert"
	"github.com/prysmaticlabs/rangesync/testing/require"
)

func TestIdlePeers_ExcludesActiveDownloaders(t *testing.T) {
	cfg := testConfig()
	busy := newBatch(0, cfg)
	require.NoError(t, busy.startDownloading("p1"))

	batches := map[Epoch]*Batch{0: busy}
	peers := []Peer{"p1", "p2", "p3"}
	balancer := newPeerBalancer()

	idle := idlePeers(peers, batches, balancer)
	assert.Len(t, idle, 2)
	for _, p := range idle {
		assert.True(t, p == "p2" || p == "p3")
	}
}

func TestIdlePeers_PrefersLowerLoad(t *testing.T) {
	balancer := newPeerBalancer()
	balancer.noteDispatch("p1")
	balancer.noteDispatch("p1") // p1 carries more decaying load than p2

	idle := idlePeers([]Peer{"p1", "p2"}, map[Epoch]*Batch{}, balancer)
	assert.Equal(t, []Peer{"p2", "p1"}, idle)
}

func TestBestRetryPeer_ExcludesFailedPeers(t *testing.T) {
	cfg := testConfig()
	b := newBatch(0, cfg)
	require.NoError(t, b.startDownloading("p1"))
	require.NoError(t, b.downloadingError()) // p1 now in FailedPeers

	peer, ok := bestRetryPeer([]Peer{"p1", "p2"}, b, map[Epoch]*Batch{0: b}, newPeerBalancer())
	require.True(t, ok)
	assert.Equal(t, Peer("p2"), peer)
}

func TestBestRetryPeer_NoEligiblePeers(t *testing.T) {
	cfg := testConfig()
	b := newBatch(0, cfg)
	require.NoError(t, b.startDownloading("p1"))
	require.NoError(t, b.downloadingError())

	_, ok := bestRetryPeer([]Peer{"p1"}, b, map[Epoch]*Batch{0: b}, newPeerBalancer())
	assert.False(t, ok)
}

func TestBestRetryPeer_PrefersFewestActiveDownloads(t *testing.T) {
	cfg := testConfig()
	b0 := newBatch(0, cfg)
	require.NoError(t, b0.startDownloading("p1"))
	b2 := newBatch(2, cfg)

	batches := map[Epoch]*Batch{0: b0, 2: b2}
	peer, ok := bestRetryPeer([]Peer{"p1", "p2"}, b2, batches, newPeerBalancer())
	require.True(t, ok)
	assert.Equal(t, Peer("p2"), peer)
}

func TestBestRetryPeer_PrefersLowerLoadOverHigherPeerID(t *testing.T) {
	balancer := newPeerBalancer()
	balancer.noteDispatch("p1")

	b := newBatch(0, testConfig())
	peer, ok := bestRetryPeer([]Peer{"p1", "p2"}, b, map[Epoch]*Batch{}, balancer)
	require.True(t, ok)
	assert.Equal(t, Peer("p2"), peer) // p2 has strictly lower load despite the higher id
}

func TestActiveDownloads_CountsOnlyDownloadingState(t *testing.T) {
	cfg := testConfig()
	b0 := newBatch(0, cfg)
	require.NoError(t, b0.startDownloading("p1"))
	b2 := newBatch(2, cfg) // still AwaitingDownload

	counts := activeDownloads(map[Epoch]*Batch{0: b0, 2: b2})
	assert.Equal(t, 1, counts["p1"])
	assert.Equal(t, 0, counts["p2"])
}

func TestPeerBalancer_ActiveLoadIncreasesWithDispatch(t *testing.T) {
	pb := newPeerBalancer()
	assert.Equal(t, int64(0), pb.activeLoad("p1"))
	pb.noteDispatch("p1")
	assert.Equal(t, int64(1), pb.activeLoad("p1"))
	pb.noteDispatch("p1")
	assert.Equal(t, int64(2), pb.activeLoad("p1"))
}
