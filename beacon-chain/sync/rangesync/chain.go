package rangesync

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
)

// SyncChain owns one candidate target chain: its ordered batches, its
// peerset, and the downloader/processor loops that advance it (§4.4).
type SyncChain struct {
	mu  sync.Mutex
	cfg *Config

	id       string
	syncType SyncType

	startEpoch       Epoch
	processorTarget  Epoch
	downloaderTarget Epoch
	validatedEpochs  uint64

	batches map[Epoch]*Batch
	peerset map[Peer]ChainTarget
	target  *ChainTarget
	status  Status

	balancer *peerBalancer
	progress *progressLogger

	downloadTrigger *trigger
	processTrigger  *trigger

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	endOnce   sync.Once

	processor ChainSegmentProcessor
	requester RangeRequester
	reporter  PeerReporter
	onEnd     func(error)
}

// NewSyncChain constructs a SyncChain anchored at startEpoch. It does not
// start syncing; call StartSyncing to ignite it (§4.4).
func NewSyncChain(
	ctx context.Context,
	startEpoch Epoch,
	syncType SyncType,
	processor ChainSegmentProcessor,
	requester RangeRequester,
	reporter PeerReporter,
	onEnd func(error),
	opts ...Option,
) *SyncChain {
	cfg := ApplyOptions(opts...)
	cctx, cancel := context.WithCancel(ctx)
	return &SyncChain{
		cfg:              cfg,
		id:               uuid.NewString(),
		syncType:         syncType,
		startEpoch:       startEpoch,
		processorTarget:  startEpoch,
		downloaderTarget: startEpoch,
		batches:          make(map[Epoch]*Batch),
		peerset:          make(map[Peer]ChainTarget),
		status:           StatusStopped,
		balancer:         newPeerBalancer(),
		progress:         newProgressLogger(),
		downloadTrigger:  newTrigger(),
		processTrigger:   newTrigger(),
		ctx:              cctx,
		cancel:           cancel,
		processor:        processor,
		requester:        requester,
		reporter:         reporter,
		onEnd:            onEnd,
	}
}

// ID is a short correlation identifier for log lines.
func (c *SyncChain) ID() string { return c.id }

// SyncType returns the fixed classification this chain was constructed with.
func (c *SyncChain) SyncType() SyncType { return c.syncType }

// Status returns the chain's current lifecycle state.
func (c *SyncChain) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Target returns the chain's currently selected target, if any.
func (c *SyncChain) Target() (ChainTarget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil {
		return ChainTarget{}, false
	}
	return *c.target, true
}

// StartEpoch returns the greatest epoch known validated.
func (c *SyncChain) StartEpoch() Epoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startEpoch
}

// ValidatedEpochs returns the monotonic validated-epoch counter (§3, P5).
func (c *SyncChain) ValidatedEpochs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validatedEpochs
}

// PeerCount returns the number of peers currently claiming this chain.
func (c *SyncChain) PeerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peerset)
}

// HasPeer reports whether p is in this chain's peerset.
func (c *SyncChain) HasPeer(p Peer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.peerset[p]
	return ok
}

// AddPeer adds p to the peerset with its claimed target and recomputes the
// selected target (§4.4). Idempotent: re-adding the same (peer, target)
// pair is a no-op (§8 idempotence law).
func (c *SyncChain) AddPeer(p Peer, target ChainTarget) {
	c.mu.Lock()
	if existing, ok := c.peerset[p]; ok && existing == target {
		c.mu.Unlock()
		return
	}
	c.peerset[p] = target
	c.recomputeTargetLocked()
	c.mu.Unlock()

	c.downloadTrigger.fire()
}

// RemovePeer drops p from the peerset and recomputes the selected target.
func (c *SyncChain) RemovePeer(p Peer) {
	c.mu.Lock()
	delete(c.peerset, p)
	c.recomputeTargetLocked()
	c.mu.Unlock()
}

// recomputeTargetLocked selects the ChainTarget claimed by the most peers,
// breaking ties by the lexicographically greatest root (§4.4). Must be
// called with c.mu held.
func (c *SyncChain) recomputeTargetLocked() {
	counts := make(map[ChainTarget]int, len(c.peerset))
	for _, t := range c.peerset {
		counts[t]++
	}
	var best *ChainTarget
	bestCount := 0
	for t, n := range counts {
		t := t
		if best == nil || n > bestCount || (n == bestCount && bytes.Compare(t.Root[:], best.Root[:]) > 0) {
			best = &t
			bestCount = n
		}
	}
	c.target = best
}

// StartSyncing ignites the chain (§4.4). A no-op if already Syncing; fails
// with ErrStartAfterEnded if the chain already ended.
func (c *SyncChain) StartSyncing(localFinalizedEpoch Epoch) error {
	_, span := trace.StartSpan(c.ctx, "rangesync.SyncChain.StartSyncing")
	defer span.End()

	c.mu.Lock()
	switch c.status {
	case StatusSyncing:
		c.mu.Unlock()
		return nil
	case StatusSynced, StatusError:
		c.mu.Unlock()
		return ErrStartAfterEnded
	}
	if len(c.peerset) == 0 {
		c.mu.Unlock()
		return ErrNoPeers
	}

	alignedEpoch := c.alignedStartEpochLocked(localFinalizedEpoch)
	c.startEpoch = alignedEpoch
	c.processorTarget = alignedEpoch
	c.downloaderTarget = alignedEpoch
	c.status = StatusSyncing
	c.mu.Unlock()

	c.startOnce.Do(func() {
		go c.downloaderLoop()
		go c.processorLoop()
	})

	log.WithFields(logrus.Fields{"chain": c.id, "syncType": c.syncType, "startEpoch": alignedEpoch}).Info("Sync chain starting")
	c.downloadTrigger.fire()
	c.processTrigger.fire()
	return nil
}

// alignedStartEpochLocked computes the §4.4 step 2 alignment. Must be
// called with c.mu held.
func (c *SyncChain) alignedStartEpochLocked(localFinalizedEpoch Epoch) Epoch {
	diff := int64(localFinalizedEpoch) - int64(c.startEpoch)
	if diff <= 0 {
		return c.startEpoch
	}
	steps := diff / int64(c.cfg.EpochsPerBatch)
	return c.startEpoch + Epoch(steps)*c.cfg.EpochsPerBatch
}

// Pause flips a Syncing chain back to Stopped without ending it, used by
// RangeSync's chain selection to park a head chain that lost the
// parallelism budget (§4.5). A no-op for chains already Stopped/Synced/Error.
func (c *SyncChain) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusSyncing {
		c.status = StatusStopped
	}
}

// Remove aborts the chain's loops via its cancellation token (§4.4
// end-of-life, §5 cancellation). Abort is silent: onEnd is never invoked
// for this path, only logged with ErrAborted for diagnostics.
func (c *SyncChain) Remove() {
	log.WithFields(logrus.Fields{"chain": c.id}).WithError(ErrAborted).Debug("Sync chain removed")
	c.cancel()
}

// downloaderLoop is the persistent goroutine backing the downloader; it
// wakes on every trigger fire and is a no-op whenever the chain isn't
// Syncing, so Pause/StartSyncing cycles don't need to tear it down (§4.4,
// §9 redesign note on the trigger channel).
func (c *SyncChain) downloaderLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.downloadTrigger.c():
			c.downloadTrigger.drain()
			c.runDownloader()
		}
	}
}

// processorLoop is the persistent, strictly single-flight goroutine backing
// the processor (§5 ordering guarantees: at most one Processing batch at a
// time is structurally guaranteed because only this goroutine ever calls
// runProcessor).
func (c *SyncChain) processorLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.processTrigger.c():
			c.processTrigger.drain()
			c.runProcessor()
		}
	}
}

// dispatchJob pairs a batch with the peer chosen to serve its download.
type dispatchJob struct {
	batch *Batch
	peer  Peer
}

// runDownloader implements the downloader loop body (§4.4): retry batches
// stuck in AwaitingDownload, then fill idle peers with freshly created
// batches, then dispatch everything concurrently.
func (c *SyncChain) runDownloader() {
	ctx, span := trace.StartSpan(c.ctx, "rangesync.SyncChain.runDownloader")
	defer span.End()

	c.mu.Lock()
	if c.status != StatusSyncing {
		c.mu.Unlock()
		return
	}

	var jobs []dispatchJob

	// Retry: every AwaitingDownload batch gets the best non-failed peer.
	for _, e := range sortedEpochs(c.batches) {
		b := c.batches[e]
		if b.State() != BatchAwaitingDownload {
			continue
		}
		p, ok := bestRetryPeer(c.peerIDsLocked(), b, c.batches, c.balancer)
		if !ok {
			continue
		}
		if err := b.startDownloading(p); err != nil {
			c.mu.Unlock()
			c.fail(err)
			return
		}
		c.balancer.noteDispatch(p)
		jobs = append(jobs, dispatchJob{batch: b, peer: p})
	}

	// Fill: every idle peer gets a freshly created batch, if one can be
	// produced.
	for _, p := range idlePeers(c.peerIDsLocked(), c.batches, c.balancer) {
		b, err := c.includeNextBatchLocked()
		if err != nil {
			c.mu.Unlock()
			c.fail(err)
			return
		}
		if b == nil {
			break
		}
		if err := b.startDownloading(p); err != nil {
			c.mu.Unlock()
			c.fail(err)
			return
		}
		c.balancer.noteDispatch(p)
		jobs = append(jobs, dispatchJob{batch: b, peer: p})
	}
	c.mu.Unlock()

	if len(jobs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			c.sendBatch(gctx, job.batch, job.peer)
			return nil
		})
	}
	_ = g.Wait()
}

// peerIDsLocked returns the current peerset's keys. Must be called with
// c.mu held.
func (c *SyncChain) peerIDsLocked() []Peer {
	peers := make([]Peer, 0, len(c.peerset))
	for p := range c.peerset {
		peers = append(peers, p)
	}
	return peers
}

// countBuffered returns how many batches are currently Downloading or
// AwaitingProcessing (the "batch buffer", §4.4/GLOSSARY).
func countBuffered(batches map[Epoch]*Batch) int {
	n := 0
	for _, b := range batches {
		if b.State() == BatchDownloading || b.State() == BatchAwaitingProcessing {
			n++
		}
	}
	return n
}

// includeNextBatchLocked implements §4.4's includeNextBatch. A nil batch with
// a nil error means there is legitimately nothing to include right now
// (buffer full, no target yet, or past the target bound); a non-nil error
// means an invariant was violated and the chain must fail. Must be called
// with c.mu held.
func (c *SyncChain) includeNextBatchLocked() (*Batch, error) {
	if countBuffered(c.batches) > c.cfg.BatchBufferSize {
		return nil, nil
	}
	if c.target == nil {
		return nil, nil
	}

	startEpoch := toBeDownloadedStartEpoch(c.batches, c.downloaderTarget, c.cfg.EpochsPerBatch)
	requestStartSlot := c.cfg.computeStartSlot(startEpoch)
	if requestStartSlot > c.target.Slot {
		return nil, nil
	}
	if _, exists := c.batches[startEpoch]; exists {
		return nil, errors.Wrapf(ErrBatchAlreadyExists, "chain %s: start epoch %d", c.id, startEpoch)
	}

	b := newBatch(startEpoch, c.cfg)
	c.batches[startEpoch] = b
	c.downloaderTarget = startEpoch
	return b, nil
}

// sendBatch dispatches batch to peer and applies the result (§4.4). It is
// called concurrently, once per dispatched job, from runDownloader.
func (c *SyncChain) sendBatch(ctx context.Context, batch *Batch, p Peer) {
	ctx, span := trace.StartSpan(ctx, "rangesync.SyncChain.sendBatch")
	defer span.End()

	reqID := uuid.NewString()
	log.WithFields(logrus.Fields{
		"chain":     c.id,
		"requestID": reqID,
		"peer":      p,
		"epoch":     batch.StartEpoch(),
		"startSlot": batch.Request().StartSlot,
		"count":     batch.Request().Count,
	}).Debug("Requesting blocks")

	blocks, err := c.requester.DownloadBeaconBlocksByRange(ctx, p, batch.Request())
	if c.ctx.Err() != nil {
		log.WithFields(logrus.Fields{"chain": c.id, "requestID": reqID}).WithError(ErrAborted).Debug("sendBatch aborted")
		return // unwind silently (§5 cancellation); onEnd is never invoked for this path
	}
	if err != nil {
		log.WithFields(logrus.Fields{"chain": c.id, "requestID": reqID, "peer": p}).
			WithError(err).Debug("Download failed")
		c.mu.Lock()
		txErr := batch.downloadingError()
		c.mu.Unlock()
		if txErr != nil {
			c.fail(errors.Wrap(txErr, "batch download retries exhausted"))
			return
		}
		c.downloadTrigger.fire()
		return
	}

	c.mu.Lock()
	txErr := batch.downloadingSuccess(blocks)
	c.mu.Unlock()
	if txErr != nil {
		c.fail(txErr)
		return
	}
	c.processTrigger.fire()
	c.downloadTrigger.fire()
}

// runProcessor implements the processor loop body (§4.4 step-by-step),
// draining ready batches until none is ready or the chain ends.
func (c *SyncChain) runProcessor() {
	ctx, span := trace.StartSpan(c.ctx, "rangesync.SyncChain.runProcessor")
	defer span.End()

	for {
		c.mu.Lock()
		if c.status != StatusSyncing {
			c.mu.Unlock()
			return
		}
		if err := validateBatchesStatus(c.batches); err != nil {
			c.mu.Unlock()
			c.fail(err)
			return
		}

		toBeProcessed := toBeProcessedStartEpoch(c.batches, c.processorTarget, c.cfg.EpochsPerBatch)
		c.processorTarget = toBeProcessed
		if c.target != nil && c.epochSlotLocked(toBeProcessed) >= c.target.Slot {
			c.mu.Unlock()
			c.advanceChain(toBeProcessed)
			c.mu.Lock()
			c.status = StatusSynced
			c.mu.Unlock()
			log.WithFields(logrus.Fields{"chain": c.id, "startEpoch": toBeProcessed}).Info("Sync chain synced")
			c.finish(nil)
			return
		}

		batch, ok := getNextBatchToProcess(c.batches)
		if !ok {
			c.mu.Unlock()
			return
		}
		blocks, txErr := batch.startProcessing()
		c.mu.Unlock()
		if txErr != nil {
			c.fail(txErr)
			return
		}

		procErr := c.processor.ProcessChainSegment(ctx, blocks)
		if c.ctx.Err() != nil {
			log.WithFields(logrus.Fields{"chain": c.id}).WithError(ErrAborted).Debug("runProcessor aborted")
			return // unwind silently; onEnd is never invoked for this path
		}

		if procErr == nil {
			c.mu.Lock()
			txErr = batch.processingSuccess()
			c.mu.Unlock()
			if txErr != nil {
				c.fail(txErr)
				return
			}
			if len(blocks) > 0 {
				c.advanceChain(batch.StartEpoch())
			}
			c.downloadTrigger.fire()
			continue
		}

		c.handleProcessingError(batch, procErr)
		if c.ctx.Err() != nil {
			return
		}
		c.downloadTrigger.fire()
	}
}

// epochSlotLocked converts an epoch to its first slot (no BatchSlotOffset,
// unlike computeStartSlot, since this expresses "next epoch not yet
// covered" rather than a batch request start). Must be called with c.mu
// held.
func (c *SyncChain) epochSlotLocked(e Epoch) Slot {
	return Slot(uint64(e) * uint64(c.cfg.SlotsPerEpoch))
}

// handleProcessingError implements §4.4 step 5's error branch: retry,
// partial-import advancement, and forced redownload of the suspicious
// prefix.
func (c *SyncChain) handleProcessingError(batch *Batch, procErr error) {
	var segErr *ChainSegmentError
	imported := 0
	if errors.As(procErr, &segErr) {
		imported = segErr.ImportedBlocks
	}

	c.mu.Lock()
	txErr := batch.processingError()
	c.mu.Unlock()

	if txErr != nil {
		c.reportPeersetAndFail(ReasonMaxProcessingAttempts, txErr)
		return
	}

	if imported > 0 {
		c.advanceChain(batch.StartEpoch())
	}

	// Force redownload of the suspicious prefix: every AwaitingValidation
	// batch strictly before this one.
	c.mu.Lock()
	var toInvalidate []*Batch
	for _, e := range sortedEpochs(c.batches) {
		if e >= batch.StartEpoch() {
			continue
		}
		if b := c.batches[e]; b.State() == BatchAwaitingValidation {
			toInvalidate = append(toInvalidate, b)
		}
	}
	c.mu.Unlock()

	for _, b := range toInvalidate {
		c.mu.Lock()
		capErr := b.validationError()
		c.mu.Unlock()
		if capErr != nil {
			c.reportPeersetAndFail(ReasonMaxProcessingAttempts, capErr)
			return
		}
	}
}

// reportPeersetAndFail reports every current peer with LowTolerance and
// reason, then transitions the chain to Error (§4.4/§7: MaxProcessingAttempts).
func (c *SyncChain) reportPeersetAndFail(reason string, cause error) {
	c.mu.Lock()
	peers := c.peerIDsLocked()
	c.mu.Unlock()

	for _, p := range peers {
		c.reporter.ReportPeer(p, LowTolerance, reason)
	}
	c.fail(errors.Wrap(cause, "max processing attempts"))
}

// advanceChain moves startEpoch forward, removing and validating every
// batch below newStartEpoch, and penalizing peers whose failed attempts
// diverged from the winning one (§4.4).
func (c *SyncChain) advanceChain(newStartEpoch Epoch) {
	type pendingReport struct {
		peer   Peer
		action ReportAction
		reason string
	}

	c.mu.Lock()
	if newStartEpoch <= c.startEpoch {
		c.mu.Unlock()
		return
	}

	var reports []pendingReport
	var removed Epoch
	for _, e := range sortedEpochs(c.batches) {
		if e >= newStartEpoch {
			continue
		}
		b := c.batches[e]
		if b.State() == BatchAwaitingValidation {
			winner, err := b.validationSuccess()
			if err == nil {
				for _, att := range b.FailedProcessingAttemptsSnapshot() {
					if att.Hash == winner.Hash {
						continue
					}
					if att.Peer == winner.Peer {
						reports = append(reports, pendingReport{att.Peer, MidTolerance, ReasonInvalidBatchSelf})
					} else {
						reports = append(reports, pendingReport{att.Peer, LowTolerance, ReasonInvalidBatchOther})
					}
				}
			}
			c.validatedEpochs += uint64(c.cfg.EpochsPerBatch)
		} else {
			log.WithFields(logrus.Fields{"chain": c.id, "startEpoch": e, "state": b.State()}).
				Warn("advancing past a batch that was never validated")
		}
		delete(c.batches, e)
		removed++
	}

	c.startEpoch = newStartEpoch
	if c.processorTarget < newStartEpoch {
		c.processorTarget = newStartEpoch
	}
	if c.downloaderTarget < newStartEpoch {
		c.downloaderTarget = newStartEpoch
	}
	target := c.target
	id := c.id
	slotsPerEpoch := c.cfg.SlotsPerEpoch
	c.mu.Unlock()

	for _, r := range reports {
		c.reporter.ReportPeer(r.peer, r.action, r.reason)
	}
	if target != nil && removed > 0 {
		c.progress.report(id, removed*c.cfg.EpochsPerBatch, newStartEpoch, *target, slotsPerEpoch)
	}
}

// fail transitions the chain to Error and ends it with cause (§7).
func (c *SyncChain) fail(cause error) {
	c.mu.Lock()
	c.status = StatusError
	c.mu.Unlock()
	log.WithFields(logrus.Fields{"chain": c.id}).WithError(cause).Warn("Sync chain failed")
	c.finish(cause)
}

// finish invokes onEnd exactly once and releases the chain's loops.
func (c *SyncChain) finish(err error) {
	c.endOnce.Do(func() {
		c.cancel()
		if c.onEnd != nil {
			c.onEnd(err)
		}
	})
}
