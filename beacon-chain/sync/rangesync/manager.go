package rangesync

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// chainKey is the routing key RangeSync groups peers and chains under (§4.5).
type chainKey struct {
	syncType SyncType
	target   Root
}

// RangeSync maintains many SyncChains, classifies peers into sync types,
// and selects which chains are actively syncing under a parallelism budget
// (§4.5).
type RangeSync struct {
	mu  sync.Mutex
	ctx context.Context
	cfg *Config

	processor ChainSegmentProcessor
	requester RangeRequester
	reporter  PeerReporter
	clock     Clock

	chains    map[chainKey]*SyncChain
	peerChain map[Peer]chainKey

	localFinalizedEpoch Epoch
}

// NewRangeSync constructs a RangeSync manager. It does not start anything on
// its own; chains are created and started in response to OnPeerStatus.
func NewRangeSync(
	ctx context.Context,
	processor ChainSegmentProcessor,
	requester RangeRequester,
	reporter PeerReporter,
	clock Clock,
	opts ...Option,
) *RangeSync {
	return &RangeSync{
		ctx:       ctx,
		cfg:       ApplyOptions(opts...),
		processor: processor,
		requester: requester,
		reporter:  reporter,
		clock:     clock,
		chains:    make(map[chainKey]*SyncChain),
		peerChain: make(map[Peer]chainKey),
	}
}

// classifyPeer is the pure classification function of §4.5.
func classifyPeer(local LocalCheckpoint, peerCP PeerCheckpoint) SyncType {
	if peerCP.FinalizedEpoch <= local.FinalizedEpoch && peerCP.HeadSlot <= local.HeadSlot {
		return SyncTypeUnknown
	}
	if peerCP.FinalizedEpoch > local.FinalizedEpoch && !local.HasBlock(peerCP.FinalizedRoot) {
		return SyncTypeFinalized
	}
	if local.HasBlock(peerCP.FinalizedRoot) && peerCP.HeadSlot > local.HeadSlot {
		return SyncTypeHead
	}
	return SyncTypeUnknown
}

// anchorForHead resolves the starting epoch for a newly created Head chain:
// the epoch of the peer's (locally known) finalized root, or the local head
// epoch if that root predates what EpochOfBlock can resolve (§9 open
// question: treated as the local head epoch rather than refused).
func (rs *RangeSync) anchorForHead(local LocalCheckpoint, peerCP PeerCheckpoint) Epoch {
	if epoch, ok := local.EpochOfBlock(peerCP.FinalizedRoot); ok {
		return epoch
	}
	return Epoch(uint64(local.HeadSlot) / uint64(rs.cfg.SlotsPerEpoch))
}

// OnPeerStatus processes one peer status event (§4.5): classify, route to a
// chain (creating one if needed), add the peer, and re-run chain selection.
func (rs *RangeSync) OnPeerStatus(p Peer, local LocalCheckpoint, peerCP PeerCheckpoint) {
	syncType := classifyPeer(local, peerCP)

	rs.mu.Lock()
	rs.localFinalizedEpoch = local.FinalizedEpoch
	if syncType == SyncTypeUnknown {
		rs.mu.Unlock()
		rs.RemovePeer(p)
		return
	}

	var target ChainTarget
	var anchor Epoch
	switch syncType {
	case SyncTypeFinalized:
		target = ChainTarget{Slot: Slot(uint64(peerCP.FinalizedEpoch) * uint64(rs.cfg.SlotsPerEpoch)), Root: peerCP.FinalizedRoot}
		anchor = local.FinalizedEpoch
	case SyncTypeHead:
		target = ChainTarget{Slot: peerCP.HeadSlot, Root: peerCP.HeadRoot}
		anchor = rs.anchorForHead(local, peerCP)
	}

	// Bound candidate chains by wall-clock slot (§6): a peer claiming a
	// target beyond what the clock says can exist yet is never a legitimate
	// sync candidate, so it's dropped before a chain is created or joined.
	if rs.clock != nil && target.Slot > rs.clock.CurrentSlot() {
		rs.mu.Unlock()
		log.WithFields(logrus.Fields{"peer": p, "targetSlot": target.Slot}).
			Debug("ignoring peer status with target slot beyond current slot")
		rs.RemovePeer(p)
		return
	}

	key := chainKey{syncType: syncType, target: target.Root}

	chain, ok := rs.chains[key]
	if !ok {
		chain = NewSyncChain(rs.ctx, anchor, syncType, rs.processor, rs.requester, rs.reporter,
			func(err error) { rs.handleChainEnd(key, err) },
			WithEpochsPerBatch(rs.cfg.EpochsPerBatch),
			WithBatchBufferSize(rs.cfg.BatchBufferSize),
			WithMaxDownloadAttempts(rs.cfg.MaxDownloadAttempts),
			WithMaxProcessingAttempts(rs.cfg.MaxProcessingAttempts),
			WithParallelHeadChains(rs.cfg.ParallelHeadChains),
			WithMinFinalizedChainValidatedEpochs(rs.cfg.MinFinalizedChainValidatedEpochs),
		)
		rs.chains[key] = chain
	}
	rs.peerChain[p] = key
	rs.mu.Unlock()

	chain.AddPeer(p, target)
	rs.runSelection()
}

// RemovePeer drops a peer from whichever chain it belongs to, dropping the
// chain entirely if it was its last peer (§4.1 lifecycles), and re-runs
// chain selection.
func (rs *RangeSync) RemovePeer(p Peer) {
	rs.mu.Lock()
	key, ok := rs.peerChain[p]
	if !ok {
		rs.mu.Unlock()
		return
	}
	delete(rs.peerChain, p)
	chain := rs.chains[key]
	rs.mu.Unlock()

	if chain == nil {
		return
	}
	chain.RemovePeer(p)
	if chain.PeerCount() == 0 {
		rs.dropChain(key, chain)
	}
	rs.runSelection()
}

// dropChain removes key from the chain table (if it still maps to chain)
// and aborts its loops.
func (rs *RangeSync) dropChain(key chainKey, chain *SyncChain) {
	rs.mu.Lock()
	if rs.chains[key] == chain {
		delete(rs.chains, key)
	}
	rs.mu.Unlock()
	chain.Remove()
}

// handleChainEnd is the onEnd callback handed to every SyncChain this
// manager creates (§4.4 end-of-life). RangeSync never throws: it logs,
// removes the chain, and re-runs selection (§7 propagation policy).
func (rs *RangeSync) handleChainEnd(key chainKey, err error) {
	rs.mu.Lock()
	if _, ok := rs.chains[key]; ok {
		delete(rs.chains, key)
		for p, k := range rs.peerChain {
			if k == key {
				delete(rs.peerChain, p)
			}
		}
	}
	rs.mu.Unlock()

	fields := logrus.Fields{"syncType": key.syncType, "target": key.target}
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("Sync chain ended with error")
	} else {
		log.WithFields(fields).Info("Sync chain synced")
	}
	rs.runSelection()
}

// runSelection implements §4.5's chain selection algorithm: at most one
// Syncing finalized chain, preferred by peer count with a validated-epochs
// thrash guard; head chains syncing up to ParallelHeadChains only when no
// finalized chain is active.
func (rs *RangeSync) runSelection() {
	rs.mu.Lock()
	var finalized, head []*SyncChain
	for k, c := range rs.chains {
		switch k.syncType {
		case SyncTypeFinalized:
			finalized = append(finalized, c)
		case SyncTypeHead:
			head = append(head, c)
		}
	}
	cfg := rs.cfg
	localFinalizedEpoch := rs.localFinalizedEpoch
	rs.mu.Unlock()

	sortChainsByPreference(finalized)
	sortChainsByPreference(head)

	var toStart, toStop []*SyncChain

	if len(finalized) > 0 {
		top := finalized[0]
		var current *SyncChain
		for _, c := range finalized {
			if c.Status() == StatusSyncing {
				current = c
				break
			}
		}
		chosen := top
		switch {
		case current == nil, top == current:
			// chosen already = top
		case top.PeerCount() > current.PeerCount() && current.ValidatedEpochs() > uint64(cfg.MinFinalizedChainValidatedEpochs):
			toStop = append(toStop, current)
		default:
			chosen = current
		}
		toStart = append(toStart, chosen)
		for _, c := range finalized {
			if c != chosen {
				toStop = append(toStop, c)
			}
		}
		// A finalized chain is active: no head chain may sync concurrently.
		toStop = append(toStop, head...)
	} else {
		n := cfg.ParallelHeadChains
		for i, c := range head {
			if i < n {
				toStart = append(toStart, c)
			} else {
				toStop = append(toStop, c)
			}
		}
	}

	for _, c := range toStart {
		if err := c.StartSyncing(localFinalizedEpoch); err != nil {
			log.WithError(err).Warn("could not start syncing chain")
		}
	}
	for _, c := range toStop {
		c.Pause()
	}
}

// sortChainsByPreference sorts by peer count descending, then prefers the
// currently-Syncing chain on a tie (§4.5).
func sortChainsByPreference(chains []*SyncChain) {
	slices.SortStableFunc(chains, func(a, b *SyncChain) bool {
		if pa, pb := a.PeerCount(), b.PeerCount(); pa != pb {
			return pa > pb
		}
		aSyncing := a.Status() == StatusSyncing
		bSyncing := b.Status() == StatusSyncing
		if aSyncing != bSyncing {
			return aSyncing
		}
		return a.ID() < b.ID()
	})
}

// ChainStatus is one entry of RangeSync.Status()'s snapshot (supplemented
// beyond spec.md; see SPEC_FULL.md).
type ChainStatus struct {
	SyncType        SyncType
	Status          Status
	PeerCount       int
	StartEpoch      Epoch
	ValidatedEpochs uint64
	Target          ChainTarget
	HasTarget       bool
}

// Status returns a read-only snapshot of every chain currently tracked, for
// host-process health reporting.
func (rs *RangeSync) Status() []ChainStatus {
	rs.mu.Lock()
	chains := make([]*SyncChain, 0, len(rs.chains))
	for _, c := range rs.chains {
		chains = append(chains, c)
	}
	rs.mu.Unlock()

	out := make([]ChainStatus, 0, len(chains))
	for _, c := range chains {
		target, hasTarget := c.Target()
		out = append(out, ChainStatus{
			SyncType:        c.SyncType(),
			Status:          c.Status(),
			PeerCount:       c.PeerCount(),
			StartEpoch:      c.StartEpoch(),
			ValidatedEpochs: c.ValidatedEpochs(),
			Target:          target,
			HasTarget:       hasTarget,
		})
	}
	return out
}
