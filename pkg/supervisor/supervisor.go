package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"vortexl2/pkg/model"
)

const (
	// RestartBackoff between crash and restart, matching the reference
	// RestartSec=5 behavior.
	RestartBackoff = 5 * time.Second

	// MaxConsecutiveFailures before the supervisor gives up and surfaces a
	// fatal status instead of retrying forever.
	MaxConsecutiveFailures = 5

	// stableWindow is how long a process must survive before its failure
	// counter resets. An exit inside the window on the very first attempt is
	// treated as a configuration error and not retried.
	stableWindow = 10 * time.Second
)

// StateSink receives service state transitions for persistence. Implemented
// by the state package; a nil sink is allowed.
type StateSink interface {
	SaveServiceState(model.ServiceState) error
}

// Controller brings managed services to their desired states and keeps them
// there, one supervisory goroutine per service.
type Controller struct {
	mu       sync.Mutex
	services map[string]*service
	sink     StateSink

	backoff      time.Duration
	maxFailures  int
	stableWindow time.Duration
}

type service struct {
	name    string
	runner  Runner
	cancel  context.CancelFunc
	done    chan struct{}
	state   model.ServiceState
}

// Option tweaks controller timing, used by tests.
type Option func(*Controller)

func WithBackoff(d time.Duration) Option      { return func(c *Controller) { c.backoff = d } }
func WithMaxFailures(n int) Option            { return func(c *Controller) { c.maxFailures = n } }
func WithStableWindow(d time.Duration) Option { return func(c *Controller) { c.stableWindow = d } }

// New returns a Controller reporting transitions to sink.
func New(sink StateSink, opts ...Option) *Controller {
	c := &Controller{
		services:     make(map[string]*service),
		sink:         sink,
		backoff:      RestartBackoff,
		maxFailures:  MaxConsecutiveFailures,
		stableWindow: stableWindow,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register makes a service known without starting it. Re-registering an
// existing name replaces its runner (used after a re-render).
func (c *Controller) Register(name string, r Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if svc, ok := c.services[name]; ok {
		svc.runner = r
		return
	}
	c.services[name] = &service{
		name:   name,
		runner: r,
		state: model.ServiceState{
			Name:     name,
			Desired:  model.StateDown,
			Observed: model.ObservedStopped,
		},
	}
}

// Start brings one service up. Idempotent: starting a running service is a
// no-op.
func (c *Controller) Start(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	svc, ok := c.services[name]
	if !ok {
		return fmt.Errorf("%w: unknown service %q", model.ErrServiceProcess, name)
	}
	if svc.done != nil {
		return nil
	}
	c.startLocked(svc)
	return nil
}

// StartOrder starts services strictly in the given order, waiting for each
// supervisory loop to launch before the next. The obfuscation layer always
// precedes the encryption layer on first bring-up.
func (c *Controller) StartOrder(names ...string) error {
	for _, name := range names {
		if err := c.Start(name); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels a service's supervisory loop and waits for it to exit.
func (c *Controller) Stop(name string) error {
	c.mu.Lock()
	svc, ok := c.services[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: unknown service %q", model.ErrServiceProcess, name)
	}
	done := svc.done
	if done == nil {
		c.mu.Unlock()
		return nil
	}
	svc.state.Desired = model.StateDown
	svc.cancel()
	c.mu.Unlock()
	<-done
	return nil
}

// Restart bounces a single service without touching the others. Used on peer
// updates, where only the encryption layer must pick up the new config.
func (c *Controller) Restart(name string) error {
	if err := c.Stop(name); err != nil {
		return err
	}
	return c.Start(name)
}

// StopAll stops every running service, encryption layer first so its traffic
// is not cut mid-handshake by the obfuscation layer disappearing underneath.
func (c *Controller) StopAll() {
	c.mu.Lock()
	names := make([]string, 0, len(c.services))
	if _, ok := c.services[model.ServiceEncryption]; ok {
		names = append(names, model.ServiceEncryption)
	}
	for name := range c.services {
		if name != model.ServiceEncryption {
			names = append(names, name)
		}
	}
	c.mu.Unlock()
	for _, name := range names {
		_ = c.Stop(name)
	}
}

// States returns a snapshot of all service states.
func (c *Controller) States() []model.ServiceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ServiceState, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc.state)
	}
	return out
}

// State returns one service's snapshot.
func (c *Controller) State(name string) (model.ServiceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	svc, ok := c.services[name]
	if !ok {
		return model.ServiceState{}, false
	}
	return svc.state, true
}

func (c *Controller) startLocked(svc *service) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	svc.cancel = cancel
	svc.done = done
	svc.state.Desired = model.StateUp
	c.setObservedLocked(svc, model.ObservedStarting, "")
	go c.supervise(ctx, svc, done)
}

// supervise is the per-service loop: run, classify the exit, back off, retry.
func (c *Controller) supervise(ctx context.Context, svc *service, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		svc.done = nil
		svc.cancel = nil
		c.mu.Unlock()
	}()

	failures := 0
	firstAttempt := true
	for {
		c.mu.Lock()
		runner := svc.runner
		c.setObservedLocked(svc, model.ObservedRunning, "")
		c.mu.Unlock()
		started := time.Now()
		err := runner.Run(ctx)
		lifetime := time.Since(started)

		if ctx.Err() != nil {
			c.setObserved(svc, model.ObservedStopped, "")
			return
		}
		if err == nil {
			// Clean exit without a stop request still counts as a crash for
			// a service that is supposed to stay up.
			err = fmt.Errorf("exited without error while desired up")
		}

		if firstAttempt && c.stableWindow > 0 && lifetime < c.stableWindow {
			// Died immediately on the very first start: almost certainly a
			// rejected configuration, not a transient crash. Fatal.
			log.Printf("service %s rejected its configuration: %v", svc.name, err)
			c.setObserved(svc, model.ObservedFailed, fmt.Sprintf("configuration rejected: %v", err))
			return
		}
		firstAttempt = false

		if c.stableWindow > 0 && lifetime >= c.stableWindow {
			failures = 0
		}
		failures++
		c.bumpRestart(svc, err)
		if failures >= c.maxFailures {
			log.Printf("service %s failed %d consecutive times, giving up: %v", svc.name, failures, err)
			c.setObserved(svc, model.ObservedFailed, err.Error())
			return
		}

		log.Printf("service %s crashed (attempt %d/%d), restarting in %s: %v", svc.name, failures, c.maxFailures, c.backoff, err)
		c.setObserved(svc, model.ObservedCrashed, err.Error())
		select {
		case <-ctx.Done():
			c.setObserved(svc, model.ObservedStopped, "")
			return
		case <-time.After(c.backoff):
		}
	}
}

func (c *Controller) setObserved(svc *service, obs model.ObservedState, lastErr string) {
	c.mu.Lock()
	c.setObservedLocked(svc, obs, lastErr)
	c.mu.Unlock()
}

func (c *Controller) setObservedLocked(svc *service, obs model.ObservedState, lastErr string) {
	svc.state.Observed = obs
	svc.state.LastError = lastErr
	svc.state.UpdatedAt = time.Now()
	c.persistLocked(svc.state)
}

func (c *Controller) bumpRestart(svc *service, err error) {
	c.mu.Lock()
	svc.state.RestartCount++
	svc.state.LastError = err.Error()
	svc.state.UpdatedAt = time.Now()
	c.persistLocked(svc.state)
	c.mu.Unlock()
}

func (c *Controller) persistLocked(st model.ServiceState) {
	if c.sink == nil {
		return
	}
	if err := c.sink.SaveServiceState(st); err != nil {
		log.Printf("persist service state %s failed: %v", st.Name, err)
	}
}
