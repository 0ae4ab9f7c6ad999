package logic

import (
	"context"
	"errors"
	"fmt"
	"herald_bot/coord"
	"herald_bot/platform"
	"herald_bot/shared"
	"sort"
	"strings"
	"sync"
	"time"
)

const stragglerGraceSec = 2

// IWorker is a long-running background loop.
// Run returns once stop is closed (after finishing its current cycle) or ctx is cancelled.
type IWorker interface {
	Name() string
	NeedsLock() bool
	Run(ctx context.Context, stop <-chan struct{})
}

type ISupervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() []string
}

type supervisor struct {
	cfg      *shared.Config
	logger   shared.ILogger
	lock     coord.ILock
	workers  []IWorker
	mu       sync.Mutex
	running  map[string]bool
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func NewSupervisor(
	cfg *shared.Config,
	logger shared.ILogger,
	lock coord.ILock,
	workers []IWorker,
) ISupervisor {
	return &supervisor{
		cfg:     cfg,
		logger:  logger,
		lock:    lock,
		workers: workers,
		running: make(map[string]bool),
		stop:    make(chan struct{}),
	}
}

func (s *supervisor) Start(ctx context.Context) error {

	// Singleton duties never run uncoordinated
	var needLock []string
	for _, w := range s.workers {
		if w.NeedsLock() {
			needLock = append(needLock, w.Name())
		}
	}
	if len(needLock) > 0 && !s.lock.Available(ctx) {
		return fmt.Errorf("coordination store unavailable; refusing to start %s", strings.Join(needLock, ", "))
	}

	hardCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, w := range s.workers {
		s.launch(hardCtx, w)
	}
	return nil
}

func (s *supervisor) launch(ctx context.Context, w IWorker) {
	s.mu.Lock()
	s.running[w.Name()] = true
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, w.Name())
			s.mu.Unlock()
			s.wg.Done()
		}()
		s.logger.Infof("Worker %s started", w.Name())
		w.Run(ctx, s.stop)
		s.logger.Infof("Worker %s exited", w.Name())
	}()
}

func (s *supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]string, 0, len(s.running))
	for name := range s.running {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

func (s *supervisor) waitFor(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func (s *supervisor) Stop(ctx context.Context) error {

	s.stopOnce.Do(func() { close(s.stop) })

	wait := s.cfg.ShutdownWait()
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline) - stragglerGraceSec*time.Second; left < wait {
			wait = left
		}
	}
	if s.waitFor(wait) {
		s.logger.Info("All workers stopped")
		return nil
	}

	stragglers := s.Running()
	s.logger.Warnf("Workers still running after %v; cancelling: %s", wait, strings.Join(stragglers, ", "))
	if s.cancel != nil {
		s.cancel()
	}
	if s.waitFor(stragglerGraceSec * time.Second) {
		return nil
	}
	return fmt.Errorf("workers did not exit: %s", strings.Join(s.Running(), ", "))
}

// sleepOrStop waits d. False means the caller should exit.
func sleepOrStop(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoffFor decides how long a loop waits after a failed cycle, and how to label the failure.
func backoffFor(cfg *shared.Config, err error) (time.Duration, string) {
	if rle, ok := platform.AsRateLimit(err); ok {
		if rle.RetryAfter > 0 {
			return rle.RetryAfter, "rate_limit"
		}
		return cfg.RateLimitWait(), "rate_limit"
	}
	if platform.IsAuth(err) {
		return cfg.ErrorBackoff(), "auth"
	}
	if errors.Is(err, context.Canceled) {
		return 0, "cancelled"
	}
	return cfg.ErrorBackoff(), "provider"
}

// periodic runs cycle under the lock every interval until stopped.
// Failed cycles back off and retry instead of waiting the full interval.
type periodic struct {
	name     string
	lockKey  string
	interval time.Duration
	cfg      *shared.Config
	logger   shared.ILogger
	lock     coord.ILock
	metrics  IMetrics
	cycle    func(ctx context.Context) error
}

func (p *periodic) Name() string    { return p.name }
func (p *periodic) NeedsLock() bool { return true }

func (p *periodic) Run(ctx context.Context, stop <-chan struct{}) {
	for {
		wait := p.runOnce(ctx)
		if !sleepOrStop(ctx, stop, wait) {
			return
		}
	}
}

// runOnce returns how long to wait before the next cycle.
func (p *periodic) runOnce(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("%s cycle panicked: %v", p.name, r)
			p.metrics.LoopError(p.name, "panic")
			wait = p.cfg.ErrorBackoff()
		}
	}()

	ran, err := coord.RunExclusive(ctx, p.lock, p.logger, p.lockKey, p.cfg.LockTtl(), p.cycle)
	if !ran {
		p.logger.Debugf("%s: lock %s not acquired; skipping cycle", p.name, p.lockKey)
		p.metrics.LockSkipped(p.lockKey)
		return p.interval
	}
	if err != nil {
		backoff, kind := backoffFor(p.cfg, err)
		p.logger.Errorf("%s cycle failed (%s); retrying in %v: %v", p.name, kind, backoff, err)
		p.metrics.LoopError(p.name, kind)
		return backoff
	}
	return p.interval
}
