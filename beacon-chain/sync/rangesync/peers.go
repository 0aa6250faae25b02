package rangesync

import (
	"math/rand"
	"sync"
	"time"

	"github.com/kevinms/leakybucket-go"
	"golang.org/x/exp/slices"
)

// Per-peer load accounting constants. A peer's bucket fills by one unit per
// batch dispatched to it and drains at peerLoadDrainPerSecond units/sec, the
// same leaky-bucket shape blocksFetcher.rateLimiter uses for request rate
// limiting; here it tracks *concurrent load* rather than request rate, so a
// peer that was recently saturated cools down gradually instead of being
// instantly eligible again the moment a response lands.
const (
	peerLoadCapacity       = 8
	peerLoadDrainPerSecond = 1
)

// peerBalancer is the stateless-per-call (but accounting-stateful) helper
// set described in §4.2: sort idle peers, pick the best retry peer avoiding
// prior failures, and track active-request load per peer.
type peerBalancer struct {
	mu    sync.Mutex
	load  *leakybucket.Collector
	randr *rand.Rand
}

func newPeerBalancer() *peerBalancer {
	return &peerBalancer{
		load:  leakybucket.NewCollector(peerLoadDrainPerSecond, peerLoadCapacity, true /* deleteEmptyBuckets */),
		randr: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// noteDispatch records a batch being handed to peer, increasing its tracked
// load.
func (pb *peerBalancer) noteDispatch(p Peer) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.load.Add(p.String(), 1)
}

// activeLoad returns the peer's current tracked load (roughly: how many
// batches it has been handed recently, decaying over time).
func (pb *peerBalancer) activeLoad(p Peer) int64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.load.Capacity() - pb.load.Remaining(p.String())
}

// idlePeers returns peerset members with zero currently-dispatched batches
// among the given batches, shuffled uniformly at random so concurrently
// created batches spread across peers rather than always preferring the
// same ordering (§4.2, §9's note on peer-map iteration determinism), then
// stable-sorted by balancer's decaying load so a peer that was recently
// saturated is deprioritized for a cooldown window instead of being
// instantly eligible again the moment a response lands.
func idlePeers(peers []Peer, batches map[Epoch]*Batch, balancer *peerBalancer) []Peer {
	busy := activeDownloads(batches)
	idle := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if busy[p] == 0 {
			idle = append(idle, p)
		}
	}
	balancer.randr.Shuffle(len(idle), func(i, j int) { idle[i], idle[j] = idle[j], idle[i] })
	slices.SortStableFunc(idle, func(a, b Peer) bool {
		return balancer.activeLoad(a) < balancer.activeLoad(b)
	})
	return idle
}

// bestRetryPeer picks the best peer to retry batch's download (§4.2):
// exclude peers already in batch.FailedPeers(); among the rest, prefer
// fewest active downloads for this batch's siblings, then lowest decaying
// load in balancer (so a recently-saturated peer cools down instead of
// being retried immediately), then lowest peer id for determinism.
func bestRetryPeer(peers []Peer, batch *Batch, batches map[Epoch]*Batch, balancer *peerBalancer) (Peer, bool) {
	excluded := make(map[Peer]bool, len(batch.FailedPeers()))
	for _, p := range batch.FailedPeers() {
		excluded[p] = true
	}

	candidates := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if !excluded[p] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	busy := activeDownloads(batches)
	slices.SortStableFunc(candidates, func(a, b Peer) bool {
		if busy[a] != busy[b] {
			return busy[a] < busy[b]
		}
		if la, lb := balancer.activeLoad(a), balancer.activeLoad(b); la != lb {
			return la < lb
		}
		return a.String() < b.String()
	})
	return candidates[0], true
}

// activeDownloads counts, per peer, how many batches currently list them as
// the Downloading peer.
func activeDownloads(batches map[Epoch]*Batch) map[Peer]int {
	counts := make(map[Peer]int, len(batches))
	for _, b := range batches {
		if b.State() == BatchDownloading {
			counts[b.Peer()]++
		}
	}
	return counts
}
