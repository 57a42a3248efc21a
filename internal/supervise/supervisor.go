// Package supervise coordinates the run-scoped lifecycle of all
// account watchers and the external control endpoint: start everything,
// block until exactly one shutdown decision is made, tear down in
// order.
package supervise

import "log"

// Watcher is one long-running account watch task.
type Watcher interface {
	ID() string
	// OnError registers the fatal-error callback. Must be called
	// before Start so no error can escape unobserved.
	OnError(func(id, msg string))
	Start()
	// Disconnect requests an orderly stop. It must not block.
	Disconnect()
	// Join blocks until the watch task has fully stopped.
	Join()
}

// Control is the external stop-request endpoint.
type Control interface {
	// OnDisconnect registers the callback raised when a separate
	// process asks this instance to shut down. Must be called before
	// Start.
	OnDisconnect(func())
	Start() error
	// Join stops the endpoint and blocks until it has fully stopped.
	Join()
}

// Supervisor owns the watchers and the control endpoint for one run
// and arbitrates the single shutdown decision.
type Supervisor struct {
	trigger *Trigger
}

// New returns a supervisor with an unfired shutdown trigger.
func New() *Supervisor {
	return &Supervisor{trigger: NewTrigger()}
}

// Shutdown fires the shutdown trigger. Safe to call from any goroutine
// at any time; only the first firing has effect. Used by the process
// signal handler and the service Stop hook.
func (s *Supervisor) Shutdown() {
	s.trigger.Fire()
}

// Run starts the control endpoint and every watcher, blocks until the
// shutdown trigger fires, then tears everything down: disconnect all
// watchers, join all watchers, join control. The caller guarantees
// watchers is non-empty; an empty set is a configuration error caught
// before the supervisor exists.
//
// Callback registration strictly precedes every start, so a watcher
// failing immediately or a stop request racing startup cannot be
// missed. Watcher errors arriving after the first firing are still
// logged but never drive a second teardown.
func (s *Supervisor) Run(watchers []Watcher, ctl Control) error {
	ctl.OnDisconnect(func() {
		log.Println("shutdown requested externally")
		s.trigger.Fire()
	})
	for _, w := range watchers {
		w.OnError(func(id, msg string) {
			log.Printf("[%s] %s", id, msg)
			s.trigger.Fire()
		})
	}

	if err := ctl.Start(); err != nil {
		return err
	}
	for _, w := range watchers {
		w.Start()
	}

	<-s.trigger.Fired()

	for _, w := range watchers {
		w.Disconnect()
	}
	// Watchers first: their error callbacks must be quiescent before
	// the control endpoint goes away.
	for _, w := range watchers {
		w.Join()
	}
	ctl.Join()
	return nil
}
