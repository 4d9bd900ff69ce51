package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-gateway/contract"
	"chat-gateway/errors"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

// Supervisor runs each worker in a goroutine, recovers panics, and
// restarts crashed workers so one failure never takes down the others.
// Run is typically spawned on its own goroutine; Stop may be called
// from any other, so they coordinate through a channel rather than
// shared cancel state.
type Supervisor struct {
	log      *slog.Logger
	workers  []contract.Worker
	wg       sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{log: log, stopped: make(chan struct{})}
}

func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	// Safety: ensure resources are cleaned up when Run exits
	defer cancel()

	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-supervisedCtx.Done():
		}
	}()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision.
// If the worker's Run method panics, the supervisor recovers and
// restarts it after a short delay. A worker returning nil terminated
// on purpose and is never restarted.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				// Context canceled: exit without waiting for the restart delay.
				return
			case <-time.After(waitTimeBeforeRestart):
			}
		}
	}()
}

// Stop cancels all supervised goroutines. Safe to call from any
// goroutine, any number of times, even before Run started.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}
