package rangesync

import (
	"fmt"
	"time"

	"github.com/paulbellamy/ratecounter"
)

// progressCounterWindow is the sliding window used to smooth the reported
// epochs/sec rate, matching round_robin.go's logSyncStatus counterSeconds.
const progressCounterWindow = 20 * time.Second

// progressLogger reports epochs/sec and an ETA to a chain's target, the
// generalized form of the teacher's per-block logSyncStatus (round_robin.go)
// applied to per-batch advancement instead of per-block receipt. This is a
// supplement beyond spec.md (see SPEC_FULL.md); it has no effect on sync
// correctness.
type progressLogger struct {
	counter *ratecounter.RateCounter
}

func newProgressLogger() *progressLogger {
	return &progressLogger{counter: ratecounter.NewRateCounter(progressCounterWindow)}
}

// report logs progress after advancing by epochsAdvanced epochs towards
// targetSlot from newStartEpoch, expressed in slots-per-epoch units.
func (p *progressLogger) report(chainID string, epochsAdvanced Epoch, newStartEpoch Epoch, target ChainTarget, slotsPerEpoch Slot) {
	p.counter.Incr(int64(epochsAdvanced))
	rate := float64(p.counter.Rate()) / progressCounterWindow.Seconds()
	eta := "unknown"
	if rate > 0 {
		remainingEpochs := float64(target.Slot/slotsPerEpoch) - float64(newStartEpoch)
		if remainingEpochs < 0 {
			remainingEpochs = 0
		}
		eta = time.Duration(remainingEpochs / rate * float64(time.Second)).Round(time.Second).String()
	}
	log.WithFields(map[string]interface{}{
		"chain":           chainID,
		"startEpoch":      newStartEpoch,
		"target":          target,
		"epochsPerSecond": fmt.Sprintf("%.2f", rate),
		"eta":             eta,
	}).Info("Sync progress")
}
