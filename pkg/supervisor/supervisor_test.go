package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vortexl2/pkg/model"
)

type recordingSink struct {
	mu     sync.Mutex
	states []model.ServiceState
}

func (r *recordingSink) SaveServiceState(st model.ServiceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCrashTriggersBackoffRestart(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context) error {
		n := runs.Add(1)
		if n == 1 {
			return errors.New("boom")
		}
		<-release
		<-ctx.Done()
		return nil
	})

	c := New(nil, WithBackoff(20*time.Millisecond), WithStableWindow(0))
	c.Register("svc", runner)
	if err := c.Start("svc"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return runs.Load() == 2 })
	st, _ := c.State("svc")
	if st.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", st.RestartCount)
	}
	close(release)
	waitFor(t, time.Second, func() bool {
		st, _ := c.State("svc")
		return st.Observed == model.ObservedRunning
	})
	_ = c.Stop("svc")
}

func TestConsecutiveFailuresSurfaceFatal(t *testing.T) {
	var runs atomic.Int32
	runner := RunnerFunc(func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("crash")
	})

	c := New(nil, WithBackoff(time.Millisecond), WithMaxFailures(3), WithStableWindow(0))
	c.Register("svc", runner)
	if err := c.Start("svc"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		st, _ := c.State("svc")
		return st.Observed == model.ObservedFailed
	})
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	st, _ := c.State("svc")
	if st.RestartCount != 3 {
		t.Fatalf("restart count = %d, want 3", st.RestartCount)
	}
}

func TestImmediateFirstExitIsConfigurationError(t *testing.T) {
	var runs atomic.Int32
	runner := RunnerFunc(func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("bad flag")
	})

	c := New(nil, WithBackoff(time.Millisecond), WithStableWindow(time.Hour))
	c.Register("svc", runner)
	if err := c.Start("svc"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		st, _ := c.State("svc")
		return st.Observed == model.ObservedFailed
	})
	if got := runs.Load(); got != 1 {
		t.Fatalf("configuration errors must not be retried, runs = %d", got)
	}
}

func TestStopIsCleanAndIdempotent(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	c := New(nil, WithStableWindow(0))
	c.Register("svc", runner)
	if err := c.Start("svc"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		st, _ := c.State("svc")
		return st.Observed == model.ObservedRunning
	})
	if err := c.Stop("svc"); err != nil {
		t.Fatal(err)
	}
	st, _ := c.State("svc")
	if st.Observed != model.ObservedStopped {
		t.Fatalf("observed = %s after stop", st.Observed)
	}
	if err := c.Stop("svc"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRestartOnlyBouncesNamedService(t *testing.T) {
	var obfsRuns, wgRuns atomic.Int32
	mk := func(counter *atomic.Int32) Runner {
		return RunnerFunc(func(ctx context.Context) error {
			counter.Add(1)
			<-ctx.Done()
			return nil
		})
	}
	c := New(nil, WithStableWindow(0))
	c.Register(model.ServiceObfuscation, mk(&obfsRuns))
	c.Register(model.ServiceEncryption, mk(&wgRuns))
	if err := c.StartOrder(model.ServiceObfuscation, model.ServiceEncryption); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return obfsRuns.Load() == 1 && wgRuns.Load() == 1 })

	if err := c.Restart(model.ServiceEncryption); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return wgRuns.Load() == 2 })
	if obfsRuns.Load() != 1 {
		t.Fatalf("obfuscation layer restarted on peer update: runs = %d", obfsRuns.Load())
	}
	c.StopAll()
}

func TestStatePersistedThroughSink(t *testing.T) {
	sink := &recordingSink{}
	runner := RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	c := New(sink, WithStableWindow(0))
	c.Register("svc", runner)
	if err := c.Start("svc"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		for _, st := range sink.states {
			if st.Observed == model.ObservedRunning {
				return true
			}
		}
		return false
	})
	_ = c.Stop("svc")
}
