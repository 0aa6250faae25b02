package rangesync

// Default tunables (§6), mirroring the teacher's shared/params.BeaconConfig
// pattern of a single overridable config struct rather than free constants
// sprinkled through the package.
const (
	// DefaultSlotsPerEpoch is the network default; real deployments
	// override this through Config.SlotsPerEpoch.
	DefaultSlotsPerEpoch = 32

	// DefaultEpochsPerBatch is the batch width in epochs.
	DefaultEpochsPerBatch = 2
	// BatchSlotOffset is the fixed +1 slot alignment offset (§3 rationale).
	BatchSlotOffset = 1
	// DefaultMaxDownloadAttempts bounds per-batch download retries.
	DefaultMaxDownloadAttempts = 5
	// DefaultMaxProcessingAttempts bounds per-batch processing retries.
	DefaultMaxProcessingAttempts = 3
	// DefaultBatchBufferSize bounds concurrent non-processing downloads.
	DefaultBatchBufferSize = 5
	// DefaultParallelHeadChains bounds concurrently syncing head chains.
	DefaultParallelHeadChains = 2
	// DefaultMinFinalizedChainValidatedEpochs is the thrash guard for
	// switching the active finalized chain.
	DefaultMinFinalizedChainValidatedEpochs = 10
)

// Config holds the tunable knobs recognized by range sync (§6). All fields
// have sane defaults via DefaultConfig; callers override individual fields
// as needed.
type Config struct {
	// SlotsPerEpoch is the network's slots-per-epoch constant.
	SlotsPerEpoch Slot
	// EpochsPerBatch is the batch width; MUST be >= 1.
	EpochsPerBatch Epoch
	// MaxDownloadAttempts bounds per-batch lifetime download retries
	// before the chain is declared errored.
	MaxDownloadAttempts int
	// MaxProcessingAttempts bounds per-batch lifetime processing retries.
	MaxProcessingAttempts int
	// BatchBufferSize bounds how many batches may sit in Downloading or
	// AwaitingProcessing at once.
	BatchBufferSize int
	// ParallelHeadChains bounds concurrently syncing head-sync chains.
	ParallelHeadChains int
	// MinFinalizedChainValidatedEpochs is the thrash guard: a challenger
	// finalized chain only preempts the current one once the current one
	// has validated more than this many epochs.
	MinFinalizedChainValidatedEpochs Epoch
}

// DefaultConfig returns a Config populated with the defaults from §6.
func DefaultConfig() *Config {
	return &Config{
		SlotsPerEpoch:                    DefaultSlotsPerEpoch,
		EpochsPerBatch:                   DefaultEpochsPerBatch,
		MaxDownloadAttempts:              DefaultMaxDownloadAttempts,
		MaxProcessingAttempts:            DefaultMaxProcessingAttempts,
		BatchBufferSize:                  DefaultBatchBufferSize,
		ParallelHeadChains:               DefaultParallelHeadChains,
		MinFinalizedChainValidatedEpochs: DefaultMinFinalizedChainValidatedEpochs,
	}
}

// Option mutates a Config; used by both SyncChain and RangeSync constructors
// to accept functional overrides without exposing every field in every
// constructor signature.
type Option func(*Config)

// WithEpochsPerBatch overrides the batch width.
func WithEpochsPerBatch(e Epoch) Option {
	return func(c *Config) { c.EpochsPerBatch = e }
}

// WithBatchBufferSize overrides the in-flight batch buffer cap.
func WithBatchBufferSize(n int) Option {
	return func(c *Config) { c.BatchBufferSize = n }
}

// WithMaxDownloadAttempts overrides the per-batch download retry cap.
func WithMaxDownloadAttempts(n int) Option {
	return func(c *Config) { c.MaxDownloadAttempts = n }
}

// WithMaxProcessingAttempts overrides the per-batch processing retry cap.
func WithMaxProcessingAttempts(n int) Option {
	return func(c *Config) { c.MaxProcessingAttempts = n }
}

// WithParallelHeadChains overrides the head-chain concurrency budget.
func WithParallelHeadChains(n int) Option {
	return func(c *Config) { c.ParallelHeadChains = n }
}

// WithMinFinalizedChainValidatedEpochs overrides the thrash guard.
func WithMinFinalizedChainValidatedEpochs(e Epoch) Option {
	return func(c *Config) { c.MinFinalizedChainValidatedEpochs = e }
}

// ApplyOptions builds a Config from DefaultConfig plus the given overrides.
func ApplyOptions(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// computeStartSlot returns the first requested slot of the batch anchored at
// startEpoch (§3: "startSlot = startEpoch*SLOTS_PER_EPOCH + 1").
func (c *Config) computeStartSlot(startEpoch Epoch) Slot {
	return Slot(uint64(startEpoch)*uint64(c.SlotsPerEpoch)) + BatchSlotOffset
}

// batchSlotCount is the number of slots a single batch's request spans.
func (c *Config) batchSlotCount() uint64 {
	return uint64(c.EpochsPerBatch) * uint64(c.SlotsPerEpoch)
}
