package register_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"georeg/internal/canv"
	"georeg/internal/config"
	"georeg/internal/p3dr"
	"georeg/internal/register"
	"georeg/internal/testsupport"
)

type memSource struct {
	frames []canv.Frame
}

func (m *memSource) FrameCount() int { return len(m.frames) }

func (m *memSource) Frame(i int) (canv.Frame, error) { return m.frames[i], nil }

func buildSource(t *testing.T, n int) *memSource {
	t.Helper()
	frames := make([]canv.Frame, n)
	for i := range frames {
		frames[i] = canv.Frame{
			Index: i,
			Meta:  canv.FrameMeta{Cam: testsupport.FramePose(i)},
			JPEG:  testsupport.EncodeJPEG(t, 16, 12, byte(i)),
		}
	}
	return &memSource{frames: frames}
}

type sinkRecorder struct {
	mu   sync.Mutex
	outs []register.Outcome
}

func (r *sinkRecorder) add(out register.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs = append(r.outs, out)
	return nil
}

func (r *sinkRecorder) indexes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.outs))
	for i, o := range r.outs {
		out[i] = o.Frame.Index
	}
	return out
}

func (r *sinkRecorder) outcome(index int) (register.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outs {
		if o.Frame.Index == index {
			return o, true
		}
	}
	return register.Outcome{}, false
}

func (r *sinkRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outs)
}

func newSession(t *testing.T, server *testsupport.FakeServer) *p3dr.Session {
	t.Helper()
	client, err := p3dr.Connect(context.Background(), server.Addr(), p3dr.Options{ConnectTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	streamID, err := client.OpenStream([]string{"area.r3db"})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	return client.StartSession(streamID)
}

func newScheduler(t *testing.T, session *p3dr.Session, mut func(*register.SchedulerConfig)) *register.Scheduler {
	t.Helper()
	cfg := register.SchedulerConfig{
		InFlight:       4,
		MaxAttempts:    3,
		AttemptTimeout: 5 * time.Second,
	}
	if mut != nil {
		mut(&cfg)
	}
	s, err := register.NewScheduler(session, cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunCommitsInOrder(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{})
	scheduler := newScheduler(t, newSession(t, server), nil)
	rec := &sinkRecorder{}

	if err := scheduler.Run(context.Background(), buildSource(t, 20), rec.add); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := rec.indexes()
	if len(got) != 20 {
		t.Fatalf("committed %d frames", len(got))
	}
	for i, idx := range got {
		if idx != i {
			t.Fatalf("frame order %v", got)
		}
	}
	for _, out := range rec.outs {
		if out.Err != nil || out.Result.Failed() || out.Attempts != 1 {
			t.Fatalf("outcome = %+v", out)
		}
	}
}

func TestWindowCeiling(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{
		Script: func(int64, int) (testsupport.Verdict, string) { return testsupport.VerdictHold, "" },
	})
	scheduler := newScheduler(t, newSession(t, server), func(c *register.SchedulerConfig) {
		c.InFlight = 3
		c.AttemptTimeout = 10 * time.Second
	})
	rec := &sinkRecorder{}

	done := make(chan error, 1)
	go func() { done <- scheduler.Run(context.Background(), buildSource(t, 8), rec.add) }()

	waitFor(t, func() bool { return server.HeldCount() == 3 }, "first window never filled")
	time.Sleep(50 * time.Millisecond)
	if n := server.HeldCount(); n != 3 {
		t.Fatalf("held = %d with window 3", n)
	}
	server.Release(0, 1, 2)
	waitFor(t, func() bool { return server.HeldCount() == 3 }, "second window never filled")
	server.Release(3, 4, 5)
	waitFor(t, func() bool { return server.HeldCount() == 2 }, "last frames never arrived")
	server.Release(6, 7)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak := server.MaxOutstanding(); peak > 3 {
		t.Fatalf("peak outstanding = %d, window is 3", peak)
	}
	if rec.len() != 8 {
		t.Fatalf("committed %d frames", rec.len())
	}
}

func TestOutOfOrderVerdictsCommitInOrder(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{
		Script: func(frameID int64, _ int) (testsupport.Verdict, string) {
			if frameID == 0 {
				return testsupport.VerdictHold, ""
			}
			return testsupport.VerdictSuccess, ""
		},
	})
	scheduler := newScheduler(t, newSession(t, server), nil)
	rec := &sinkRecorder{}

	done := make(chan error, 1)
	go func() { done <- scheduler.Run(context.Background(), buildSource(t, 4), rec.add) }()

	waitFor(t, func() bool { return server.Attempts(3) == 1 }, "later frames never registered")
	if rec.len() != 0 {
		t.Fatalf("committed %d frames before frame 0 settled", rec.len())
	}
	server.Release(0)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := rec.indexes()
	for i, idx := range got {
		if idx != i {
			t.Fatalf("frame order %v", got)
		}
	}
}

func TestScrambledCompletionOrder(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{
		Script: func(int64, int) (testsupport.Verdict, string) { return testsupport.VerdictHold, "" },
	})
	scheduler := newScheduler(t, newSession(t, server), func(c *register.SchedulerConfig) {
		c.InFlight = 3
		c.AttemptTimeout = 10 * time.Second
	})
	rec := &sinkRecorder{}

	done := make(chan error, 1)
	go func() { done <- scheduler.Run(context.Background(), buildSource(t, 10), rec.add) }()

	for _, id := range []int64{2, 0, 1, 4, 3, 6, 5, 7, 9, 8} {
		waitFor(t, func() bool { return server.HeldFrame(id) }, "frame never registered")
		server.Release(id)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := rec.indexes()
	if len(got) != 10 {
		t.Fatalf("committed %d frames", len(got))
	}
	for i, idx := range got {
		if idx != i {
			t.Fatalf("frame order %v", got)
		}
	}
	for _, out := range rec.outs {
		if out.Err != nil || out.Result.Failed() {
			t.Fatalf("outcome = %+v", out)
		}
	}
	if peak := server.MaxOutstanding(); peak > 3 {
		t.Fatalf("peak outstanding = %d, window is 3", peak)
	}
}

func TestTransientTimeoutRetries(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{
		Script: func(frameID int64, attempt int) (testsupport.Verdict, string) {
			if frameID == 1 && attempt == 1 {
				return testsupport.VerdictSilent, ""
			}
			return testsupport.VerdictSuccess, ""
		},
	})
	scheduler := newScheduler(t, newSession(t, server), func(c *register.SchedulerConfig) {
		c.AttemptTimeout = 200 * time.Millisecond
	})
	rec := &sinkRecorder{}

	if err := scheduler.Run(context.Background(), buildSource(t, 3), rec.add); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, ok := rec.outcome(1)
	if !ok || out.Err != nil || out.Result.Failed() {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Attempts != 2 || server.Attempts(1) != 2 {
		t.Fatalf("attempts = %d (server saw %d)", out.Attempts, server.Attempts(1))
	}
}

func TestAttemptBudgetExhausted(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{
		Script: func(frameID int64, _ int) (testsupport.Verdict, string) {
			if frameID == 4 {
				return testsupport.VerdictSilent, ""
			}
			return testsupport.VerdictSuccess, ""
		},
	})
	scheduler := newScheduler(t, newSession(t, server), func(c *register.SchedulerConfig) {
		c.InFlight = 2
		c.MaxAttempts = 3
		c.AttemptTimeout = 150 * time.Millisecond
	})
	rec := &sinkRecorder{}

	if err := scheduler.Run(context.Background(), buildSource(t, 10), rec.add); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, ok := rec.outcome(4)
	if !ok || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Attempts != 3 || server.Attempts(4) != 3 {
		t.Fatalf("attempts = %d (server saw %d)", out.Attempts, server.Attempts(4))
	}
	if rec.len() != 10 {
		t.Fatalf("committed %d frames", rec.len())
	}
	for _, o := range rec.outs {
		if o.Frame.Index != 4 && (o.Err != nil || o.Result.Failed()) {
			t.Fatalf("outcome = %+v", o)
		}
	}
}

func TestServerRejectionNotRetried(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{
		Script: func(frameID int64, _ int) (testsupport.Verdict, string) {
			if frameID == 2 {
				return testsupport.VerdictError, "no coverage"
			}
			return testsupport.VerdictSuccess, ""
		},
	})
	scheduler := newScheduler(t, newSession(t, server), nil)
	rec := &sinkRecorder{}

	if err := scheduler.Run(context.Background(), buildSource(t, 4), rec.add); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, ok := rec.outcome(2)
	if !ok || out.Err != nil || !out.Result.Failed() {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Result.ServerError != "no coverage" || out.Attempts != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if server.Attempts(2) != 1 {
		t.Fatalf("server saw %d attempts", server.Attempts(2))
	}
}

func TestSessionDeathKeepsPrefix(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{
		Script: func(frameID int64, _ int) (testsupport.Verdict, string) {
			if frameID == 2 {
				return testsupport.VerdictDrop, ""
			}
			return testsupport.VerdictSuccess, ""
		},
	})
	scheduler := newScheduler(t, newSession(t, server), func(c *register.SchedulerConfig) {
		c.InFlight = 2
	})
	rec := &sinkRecorder{}

	err := scheduler.Run(context.Background(), buildSource(t, 6), rec.add)
	if err == nil {
		t.Fatal("expected a run error after session death")
	}
	got := rec.indexes()
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("committed prefix = %v", got)
	}
}

func TestUndecodableFrameFails(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{})
	scheduler := newScheduler(t, newSession(t, server), nil)

	src := buildSource(t, 3)
	src.frames[1].JPEG = []byte("not a jpeg")
	rec := &sinkRecorder{}

	if err := scheduler.Run(context.Background(), src, rec.add); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, ok := rec.outcome(1)
	if !ok || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if rec.len() != 3 {
		t.Fatalf("committed %d frames", rec.len())
	}
}

func TestSinkErrorStopsRun(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{})
	scheduler := newScheduler(t, newSession(t, server), nil)

	boom := errors.New("disk full")
	err := scheduler.Run(context.Background(), buildSource(t, 5), func(out register.Outcome) error {
		if out.Frame.Index == 1 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	server := testsupport.NewFakeServer(t, testsupport.FakeServerOptions{})
	session := newSession(t, server)

	cases := []register.SchedulerConfig{
		{InFlight: 0, MaxAttempts: 3, AttemptTimeout: time.Second},
		{InFlight: config.MaxInFlight + 1, MaxAttempts: 3, AttemptTimeout: time.Second},
		{InFlight: 4, MaxAttempts: 0, AttemptTimeout: time.Second},
		{InFlight: 4, MaxAttempts: 3},
	}
	for _, cfg := range cases {
		if _, err := register.NewScheduler(session, cfg); err == nil {
			t.Fatalf("config %+v accepted", cfg)
		}
	}
	if _, err := register.NewScheduler(nil, register.SchedulerConfig{InFlight: 4, MaxAttempts: 3, AttemptTimeout: time.Second}); err == nil {
		t.Fatal("nil session accepted")
	}
}
