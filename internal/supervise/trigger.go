package supervise

import "sync"

// Trigger is a one-shot broadcast signal. Any number of goroutines may
// call Fire any number of times; the channel returned by Fired is
// closed exactly once, on the first call.
type Trigger struct {
	once sync.Once
	ch   chan struct{}
}

// NewTrigger returns an unfired trigger.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{})}
}

// Fire signals the trigger. Safe for concurrent use; calls after the
// first are no-ops.
func (t *Trigger) Fire() {
	t.once.Do(func() { close(t.ch) })
}

// Fired returns a channel that is closed once the trigger has fired.
func (t *Trigger) Fired() <-chan struct{} {
	return t.ch
}

// DidFire reports whether the trigger has fired.
func (t *Trigger) DidFire() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}
