package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"georeg/internal/canv"
	"georeg/internal/config"
	"georeg/internal/logging"
	"georeg/internal/p3dr"
	"georeg/internal/reorder"
)

// FrameSource serves frames by index. canv.Playback satisfies it.
type FrameSource interface {
	FrameCount() int
	Frame(index int) (canv.Frame, error)
}

// Outcome is the settled result for one frame. Err carries the reason
// when no verdict was obtained within the attempt budget; otherwise
// Result holds the server's verdict, which may itself be a rejection.
type Outcome struct {
	Frame    canv.Frame
	Attempts int
	Result   p3dr.Result
	Err      error

	// fatal marks a session-level failure. It never reaches the sink.
	fatal bool
}

// SchedulerConfig tunes the in-flight window and the retry policy.
type SchedulerConfig struct {
	InFlight       int
	MaxAttempts    int
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

// Scheduler pushes frames through a session, at most InFlight of them
// unanswered at a time, and hands settled outcomes to a sink in strict
// frame order regardless of the order verdicts arrive in.
type Scheduler struct {
	session *p3dr.Session
	cfg     SchedulerConfig
	logger  *slog.Logger
}

// NewScheduler validates the configuration against the hard window
// ceiling and binds the scheduler to a session.
func NewScheduler(session *p3dr.Session, cfg SchedulerConfig) (*Scheduler, error) {
	if session == nil {
		return nil, errors.New("scheduler requires a session")
	}
	if cfg.InFlight < 1 || cfg.InFlight > config.MaxInFlight {
		return nil, fmt.Errorf("in-flight window %d out of range [1,%d]", cfg.InFlight, config.MaxInFlight)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("attempt budget %d out of range", cfg.MaxAttempts)
	}
	if cfg.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("attempt timeout %v out of range", cfg.AttemptTimeout)
	}
	return &Scheduler{
		session: session,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(cfg.Logger, logging.ComponentScheduler),
	}, nil
}

// Run processes every frame of the source and calls sink once per
// frame, in frame order. Frame-level failures (a server rejection or
// an exhausted attempt budget) are delivered as outcomes and do not
// stop the run; a dead session or a sink error does, after the
// contiguous prefix of settled frames has been flushed.
func (s *Scheduler) Run(ctx context.Context, src FrameSource, sink func(Outcome) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tokens := make(chan struct{}, s.cfg.InFlight)
	for i := 0; i < s.cfg.InFlight; i++ {
		tokens <- struct{}{}
	}
	outcomes := make(chan Outcome)

	admitted := make(chan error, 1)
	go func() {
		var wg sync.WaitGroup
		err := s.admit(runCtx, src, tokens, outcomes, &wg)
		wg.Wait()
		close(outcomes)
		admitted <- err
	}()

	// A dead session stops admission but not the flush: frames whose
	// verdicts already landed still commit, so the output keeps the
	// contiguous prefix. A sink failure stops everything.
	buf := reorder.New[Outcome](0)
	var fatalErr, sinkErr error
	for out := range outcomes {
		if sinkErr != nil {
			continue // draining
		}
		if out.fatal {
			if fatalErr == nil {
				fatalErr = out.Err
				cancel()
			}
			continue
		}
		if err := buf.Put(int64(out.Frame.Index), out); err != nil {
			sinkErr = err
			cancel()
			continue
		}
		for _, ready := range buf.Release() {
			if err := sink(ready); err != nil {
				sinkErr = fmt.Errorf("frame %d sink: %w", ready.Frame.Index, err)
				cancel()
				break
			}
		}
	}

	admitErr := <-admitted
	switch {
	case sinkErr != nil:
		return sinkErr
	case fatalErr != nil:
		return fatalErr
	case admitErr != nil:
		return admitErr
	}
	if n := buf.Pending(); n != 0 {
		return fmt.Errorf("%d frame(s) settled out of reach of the output prefix", n)
	}
	return nil
}

// admit feeds frames into attempt goroutines as window tokens free up.
func (s *Scheduler) admit(ctx context.Context, src FrameSource, tokens chan struct{}, outcomes chan<- Outcome, wg *sync.WaitGroup) error {
	for i := 0; i < src.FrameCount(); i++ {
		select {
		case <-tokens:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.session.Done():
			return s.session.Err()
		}

		frame, err := src.Frame(i)
		if err != nil {
			return fmt.Errorf("load frame %d: %w", i, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { tokens <- struct{}{} }()
			outcomes <- s.attempt(ctx, frame)
		}()
	}
	return nil
}

// attempt walks one frame's task through its state machine, retrying
// transient failures up to the attempt budget.
func (s *Scheduler) attempt(ctx context.Context, frame canv.Frame) Outcome {
	frameID := int64(frame.Index)
	task := newTask(frame)
	var lastErr error

	for task.Attempts() < s.cfg.MaxAttempts {
		if err := task.advance(TaskSent); err != nil {
			return Outcome{Frame: frame, Attempts: task.Attempts(), Err: err, fatal: true}
		}
		pending, err := s.session.Register(frameID, frame.Meta.Cam, frame.JPEG)
		if err != nil {
			_ = task.advance(TaskFailed)
			if s.session.Err() != nil {
				return Outcome{Frame: frame, Attempts: task.Attempts(), Err: s.session.Err(), fatal: true}
			}
			// The frame itself is unusable, typically undecodable imagery.
			return Outcome{Frame: frame, Attempts: task.Attempts(), Err: err}
		}

		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		res, err := pending.Wait(waitCtx)
		cancel()
		if err == nil {
			_ = task.advance(TaskSucceeded)
			return Outcome{Frame: frame, Attempts: task.Attempts(), Result: res}
		}

		s.session.Abandon(frameID)
		if !p3dr.Transient(err) {
			_ = task.advance(TaskFailed)
			return Outcome{Frame: frame, Attempts: task.Attempts(), Err: err, fatal: true}
		}
		lastErr = err
		if err := task.advance(TaskRetryPending); err != nil {
			return Outcome{Frame: frame, Attempts: task.Attempts(), Err: err, fatal: true}
		}
		s.logger.Warn("retrying frame",
			logging.Int64(logging.FieldFrame, frameID),
			logging.Int(logging.FieldAttempt, task.Attempts()),
			logging.Error(err))
	}

	_ = task.advance(TaskFailed)
	return Outcome{
		Frame:    frame,
		Attempts: task.Attempts(),
		Err:      fmt.Errorf("no verdict after %d attempts: %w", s.cfg.MaxAttempts, lastErr),
	}
}
