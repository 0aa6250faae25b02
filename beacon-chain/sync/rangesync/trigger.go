package rangesync

// trigger is a coalescing wake-up signal: any number of concurrent fire
// calls collapse into at most one pending wake-up, so the receiving loop
// never builds a backlog of redundant "go check your state again" messages.
// This is the Go-native shape of §9's redesign note ("a bounded channel of
// unit trigger messages; the processor task receives, drains, and processes
// until idle"), replacing a single-flight async-iterator pattern that has
// no direct Go analogue.
type trigger struct {
	ch chan struct{}
}

func newTrigger() *trigger {
	return &trigger{ch: make(chan struct{}, 1)}
}

// fire schedules a wake-up if one isn't already pending.
func (t *trigger) fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// c exposes the channel for use in a select statement.
func (t *trigger) c() <-chan struct{} {
	return t.ch
}

// drain removes any pending wake-up without blocking, used after waking so
// a fire that raced in during processing isn't lost but also doesn't cause
// an extra empty iteration.
func (t *trigger) drain() {
	select {
	case <-t.ch:
	default:
	}
}
