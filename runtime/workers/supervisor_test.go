package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type blockingWorker struct {
	started atomic.Int32
}

func (w *blockingWorker) Run(ctx context.Context) error {
	w.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

type panickyWorker struct {
	runs atomic.Int32
}

func (w *panickyWorker) Run(ctx context.Context) error {
	if w.runs.Add(1) == 1 {
		panic("first run blows up")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisor_Stop_From_Another_Goroutine(t *testing.T) {
	req := require.New(t)
	supervisor := NewSupervisor(slog.Default())
	worker := &blockingWorker{}
	supervisor.Add(worker)

	// Given Run is spawned the way the server wires it
	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	// When another goroutine stops it
	supervisor.Stop()

	// Then Run unwinds and the worker observed exactly one start
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("supervisor did not stop in time")
	}
	req.Equal(int32(1), worker.started.Load())
}

func TestSupervisor_Stop_Before_Run(t *testing.T) {
	req := require.New(t)
	supervisor := NewSupervisor(slog.Default())
	supervisor.Add(&blockingWorker{})

	// Stopping first must not deadlock a later Run
	supervisor.Stop()
	supervisor.Stop()

	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("supervisor ignored a Stop issued before Run")
	}
}

func TestSupervisor_Restarts_Panicked_Worker(t *testing.T) {
	req := require.New(t)
	supervisor := NewSupervisor(slog.Default())
	worker := &panickyWorker{}
	supervisor.Add(worker)

	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	// The first run panics, the supervisor waits out the restart delay,
	// and the second run blocks until Stop.
	req.Eventually(func() bool {
		return worker.runs.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	supervisor.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("supervisor did not stop after restart")
	}
}
