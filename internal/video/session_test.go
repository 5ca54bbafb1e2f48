package video

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/p-n-ai/pai-catalog/internal/curriculum"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

// tick blocks until the sampler receives.
func (t *fakeTicker) tick() { t.ch <- time.Now() }

type tickers struct {
	mu   sync.Mutex
	list []*fakeTicker
}

func (ts *tickers) New(time.Duration) Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	ts.list = append(ts.list, t)
	return t
}

func (ts *tickers) get(i int) *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.list[i]
}

func (ts *tickers) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.list)
}

func (ts *tickers) active() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, t := range ts.list {
		if !t.stopped.Load() {
			n++
		}
	}
	return n
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []Report
	tokens  []string
	ch      chan Report
	err     error
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{ch: make(chan Report, 64)}
}

func (r *fakeReporter) Report(ctx context.Context, token string, rep Report) error {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.tokens = append(r.tokens, token)
	r.mu.Unlock()
	r.ch <- rep
	return r.err
}

func (r *fakeReporter) all() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

func (r *fakeReporter) wait(t *testing.T) Report {
	t.Helper()
	select {
	case rep := <-r.ch:
		return rep
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report")
		return Report{}
	}
}

type fakePlayer struct {
	mu    sync.Mutex
	pos   float64
	state PlayerState
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) PlayerState() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) seek(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
}

func signedIn(context.Context) (Credentials, bool) {
	return Credentials{UserID: "u1", Token: "tok"}, true
}

func signedOut(context.Context) (Credentials, bool) {
	return Credentials{}, false
}

func videoResource(id string) curriculum.Resource {
	return curriculum.Resource{ID: id, Title: id, Metadata: map[string]string{"video_id": "yt-" + id}}
}

func newTestSession(rep Reporter, creds CredentialsFunc) (*Session, *tickers) {
	ts := &tickers{}
	s := NewSession(Options{
		Reporter:    rep,
		Credentials: creds,
		Interval:    time.Second,
		NewTicker:   ts.New,
	})
	return s, ts
}

func TestSession_OpenWithoutVideo(t *testing.T) {
	s, _ := newTestSession(newFakeReporter(), signedIn)
	if _, err := s.Open(curriculum.Resource{ID: "doc"}); !errors.Is(err, ErrNoVideo) {
		t.Errorf("Open() error = %v, want ErrNoVideo", err)
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}
}

func TestSession_EndedFlow(t *testing.T) {
	rep := newFakeReporter()
	s, ts := newTestSession(rep, signedIn)
	defer s.Shutdown(context.Background())
	ctx := context.Background()

	div, err := s.Open(videoResource("r1"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !strings.HasPrefix(div, "player-") {
		t.Errorf("div id = %q", div)
	}
	if s.State() != Loading {
		t.Errorf("State() = %s, want loading", s.State())
	}

	player := &fakePlayer{state: PlayerPlaying}
	if err := s.Ready(ctx, div, player); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	if s.State() != Playing {
		t.Errorf("State() = %s, want playing", s.State())
	}

	open := rep.wait(t)
	if !open.IFrame || open.FullyWatched || open.ResourceID != "r1" || open.UserID != "u1" {
		t.Errorf("open report = %+v", open)
	}

	player.seek(42.5)
	ts.get(0).tick()
	sample := rep.wait(t)
	if sample.IFrame || sample.Duration != 42.5 || sample.State != PlayerPlaying {
		t.Errorf("sample report = %+v", sample)
	}

	player.seek(60)
	if err := s.StateChange(ctx, div, PlayerEnded); err != nil {
		t.Fatalf("StateChange() error = %v", err)
	}
	final := rep.wait(t)
	if !final.FullyWatched || final.IFrame || final.State != PlayerEnded || final.Duration != 60 {
		t.Errorf("final report = %+v", final)
	}
	if s.State() != Ended {
		t.Errorf("State() = %s, want ended", s.State())
	}
	if s.Sampling() || ts.active() != 0 {
		t.Error("sampler should be stopped after the video ends")
	}

	// A repeated end event is not reported again.
	s.StateChange(ctx, div, PlayerEnded)
	if n := len(rep.all()); n != 3 {
		t.Errorf("reports = %d, want 3", n)
	}
	for _, tok := range rep.tokens {
		if tok != "tok" {
			t.Errorf("token = %q, want tok", tok)
		}
	}
}

func TestSession_TimerUniqueness(t *testing.T) {
	rep := newFakeReporter()
	s, ts := newTestSession(rep, signedIn)
	defer s.Shutdown(context.Background())
	ctx := context.Background()

	div1, _ := s.Open(videoResource("v1"))
	s.Ready(ctx, div1, &fakePlayer{state: PlayerPlaying})
	rep.wait(t)

	div2, err := s.Open(videoResource("v2"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	switched := len(rep.all())

	if !ts.get(0).stopped.Load() {
		t.Error("v1 sampler should be stopped when v2 opens")
	}
	select {
	case ts.get(0).ch <- time.Now():
		t.Error("v1 sampler still receiving ticks")
	default:
	}

	if err := s.Ready(ctx, div1, &fakePlayer{}); !errors.Is(err, ErrStale) {
		t.Errorf("Ready(v1) error = %v, want ErrStale", err)
	}
	if err := s.StateChange(ctx, div1, PlayerEnded); !errors.Is(err, ErrStale) {
		t.Errorf("StateChange(v1) error = %v, want ErrStale", err)
	}

	if err := s.Ready(ctx, div2, &fakePlayer{state: PlayerPlaying}); err != nil {
		t.Fatalf("Ready(v2) error = %v", err)
	}
	rep.wait(t)
	ts.get(1).tick()
	rep.wait(t)

	if n := ts.count(); n != 2 {
		t.Errorf("samplers started = %d, want 2", n)
	}
	if n := ts.active(); n != 1 {
		t.Errorf("active samplers = %d, want 1", n)
	}
	for _, r := range rep.all()[switched:] {
		if r.ResourceID != "v2" {
			t.Errorf("report after switch for %s, want v2 only", r.ResourceID)
		}
	}
	if s.ActiveDivID() != div2 || s.Resource().ID != "v2" {
		t.Errorf("active player = %s (%s)", s.ActiveDivID(), s.Resource().ID)
	}
}

func TestSession_RapidReopen(t *testing.T) {
	rep := newFakeReporter()
	s, ts := newTestSession(rep, signedIn)
	defer s.Shutdown(context.Background())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		div, _ := s.Open(videoResource(id))
		s.Ready(ctx, div, &fakePlayer{})
	}
	if n := ts.active(); n != 1 {
		t.Errorf("active samplers = %d, want 1", n)
	}
}

func TestSession_Unauthenticated(t *testing.T) {
	tests := []struct {
		name  string
		rep   *fakeReporter
		creds CredentialsFunc
	}{
		{"no credentials", newFakeReporter(), signedOut},
		{"no credential source", newFakeReporter(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ts := newTestSession(tt.rep, tt.creds)
			if tt.creds == nil {
				s.creds = nil
			}
			ctx := context.Background()

			div, _ := s.Open(videoResource("r1"))
			if err := s.Ready(ctx, div, &fakePlayer{}); err != nil {
				t.Fatalf("Ready() error = %v", err)
			}
			if err := s.StateChange(ctx, div, PlayerEnded); err != nil {
				t.Fatalf("StateChange() error = %v", err)
			}

			if s.State() != Ended {
				t.Errorf("State() = %s, want ended", s.State())
			}
			if n := len(tt.rep.all()); n != 0 {
				t.Errorf("reports = %d, want 0", n)
			}
			if n := ts.count(); n != 0 {
				t.Errorf("samplers started = %d, want 0", n)
			}
		})
	}
}

func TestSession_ReportFailureDoesNotInterrupt(t *testing.T) {
	rep := newFakeReporter()
	rep.err = errors.New("connection refused")
	s, ts := newTestSession(rep, signedIn)
	ctx := context.Background()

	div, _ := s.Open(videoResource("r1"))
	s.Ready(ctx, div, &fakePlayer{})
	rep.wait(t)
	ts.get(0).tick()
	rep.wait(t)

	if err := s.StateChange(ctx, div, PlayerEnded); err != nil {
		t.Fatalf("StateChange() error = %v", err)
	}
	if s.State() != Ended {
		t.Errorf("State() = %s, want ended", s.State())
	}
}

func TestSession_NonTerminalStates(t *testing.T) {
	rep := newFakeReporter()
	s, _ := newTestSession(rep, signedIn)
	defer s.Shutdown(context.Background())
	ctx := context.Background()

	div, _ := s.Open(videoResource("r1"))
	s.Ready(ctx, div, &fakePlayer{})
	rep.wait(t)

	for _, st := range []PlayerState{PlayerPaused, PlayerBuffering, PlayerPlaying} {
		if err := s.StateChange(ctx, div, st); err != nil {
			t.Fatalf("StateChange(%d) error = %v", st, err)
		}
	}
	if s.State() != Playing || !s.Sampling() {
		t.Errorf("State() = %s, sampling = %v; want playing and sampling", s.State(), s.Sampling())
	}
}

func TestSession_EndBeforeReady(t *testing.T) {
	rep := newFakeReporter()
	s, _ := newTestSession(rep, signedIn)

	div, _ := s.Open(videoResource("r1"))
	if err := s.StateChange(context.Background(), div, PlayerEnded); err != nil {
		t.Fatalf("StateChange() error = %v", err)
	}
	if s.State() != Loading {
		t.Errorf("State() = %s, want loading", s.State())
	}
	if n := len(rep.all()); n != 0 {
		t.Errorf("reports = %d, want 0", n)
	}
}

func TestSession_Shutdown(t *testing.T) {
	rep := newFakeReporter()
	s, ts := newTestSession(rep, signedIn)

	div, _ := s.Open(videoResource("r1"))
	player := &fakePlayer{state: PlayerPlaying}
	s.Ready(context.Background(), div, player)
	rep.wait(t)
	player.seek(33)

	s.Shutdown(context.Background())
	if s.Sampling() || ts.active() != 0 {
		t.Error("Shutdown() should stop the sampler")
	}

	reports := rep.all()
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want open report and teardown report", len(reports))
	}
	last := reports[1]
	if last.Duration != 33 || last.ResourceID != "r1" {
		t.Errorf("teardown report = %+v, want r1 at 33", last)
	}
	if last.IFrame || last.FullyWatched {
		t.Errorf("teardown report = %+v, want a plain progress report", last)
	}
	if err := s.StateChange(context.Background(), div, PlayerEnded); !errors.Is(err, ErrStale) {
		t.Errorf("StateChange() after Shutdown error = %v, want ErrStale", err)
	}

	s.Shutdown(context.Background())
	if n := len(rep.all()); n != 2 {
		t.Errorf("reports after second Shutdown = %d, want 2", n)
	}
}

func TestSession_ShutdownWithoutTeardownReport(t *testing.T) {
	tests := []struct {
		name  string
		creds CredentialsFunc
		setup func(t *testing.T, s *Session, rep *fakeReporter)
	}{
		{
			name:  "never ready",
			creds: signedIn,
			setup: func(t *testing.T, s *Session, rep *fakeReporter) {
				s.Open(videoResource("r1"))
			},
		},
		{
			name:  "already ended",
			creds: signedIn,
			setup: func(t *testing.T, s *Session, rep *fakeReporter) {
				div, _ := s.Open(videoResource("r1"))
				s.Ready(context.Background(), div, &fakePlayer{})
				rep.wait(t)
				s.StateChange(context.Background(), div, PlayerEnded)
				rep.wait(t)
			},
		},
		{
			name:  "signed out",
			creds: signedOut,
			setup: func(t *testing.T, s *Session, rep *fakeReporter) {
				div, _ := s.Open(videoResource("r1"))
				s.Ready(context.Background(), div, &fakePlayer{pos: 12})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := newFakeReporter()
			s, _ := newTestSession(rep, tt.creds)
			tt.setup(t, s, rep)
			before := len(rep.all())

			s.Shutdown(context.Background())
			if n := len(rep.all()); n != before {
				t.Errorf("reports = %d, want %d", n, before)
			}
		})
	}
}
