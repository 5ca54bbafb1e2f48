// Package video tracks the single embedded player of a view and reports
// watch progress while it plays.
package video

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-catalog/internal/curriculum"
)

var (
	ErrNoVideo = errors.New("resource has no video")
	ErrStale   = errors.New("event for a superseded player")
)

// State is the playback state of a session.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// PlayerState is the state code reported by the embedded player.
type PlayerState int

const (
	PlayerUnstarted PlayerState = -1
	PlayerEnded     PlayerState = 0
	PlayerPlaying   PlayerState = 1
	PlayerPaused    PlayerState = 2
	PlayerBuffering PlayerState = 3
	PlayerCued      PlayerState = 5
)

// Player is the handle of a ready embedded player.
type Player interface {
	CurrentTime() float64
	PlayerState() PlayerState
}

// Options configures a Session.
type Options struct {
	Reporter    Reporter
	Credentials CredentialSource
	// Interval between progress samples. Defaults to 10s.
	Interval time.Duration
	// NewTicker defaults to NewTimeTicker.
	NewTicker func(time.Duration) Ticker
}

// Session owns the active player of a view. Opening a resource supersedes the
// previous player: its sampler is stopped before the new player id exists, so
// at most one sampler runs at any time and no report for the old resource is
// sent once Open returns.
type Session struct {
	reporter  Reporter
	creds     CredentialSource
	interval  time.Duration
	newTicker func(time.Duration) Ticker

	mu           sync.Mutex
	state        State
	divID        string
	resource     curriculum.Resource
	player       Player
	isInNewVideo bool
	doneTracking bool
	sampler      *sampler
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	s := &Session{
		reporter:  opts.Reporter,
		creds:     opts.Credentials,
		interval:  opts.Interval,
		newTicker: opts.NewTicker,
	}
	if s.interval <= 0 {
		s.interval = 10 * time.Second
	}
	if s.newTicker == nil {
		s.newTicker = NewTimeTicker
	}
	return s
}

// Open starts loading res and returns the id of the element the player must
// be embedded in. Any running sampler is stopped first.
func (s *Session) Open(res curriculum.Resource) (string, error) {
	if res.VideoID() == "" {
		return "", ErrNoVideo
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopSampler()
	s.doneTracking = false
	s.isInNewVideo = true
	s.player = nil
	s.resource = res
	s.divID = "player-" + uuid.NewString()
	s.state = Loading

	slog.Debug("video opened", "resource", res.ID, "div_id", s.divID)
	return s.divID, nil
}

// Ready records that the player in divID is ready. If someone is signed in it
// sends the open report and starts the sampler.
func (s *Session) Ready(ctx context.Context, divID string, p Player) error {
	creds, signedIn := s.credentials(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if divID != s.divID {
		return ErrStale
	}
	if s.state != Loading || !s.isInNewVideo {
		return nil
	}

	s.player = p
	s.isInNewVideo = false
	s.state = Playing

	if !signedIn {
		return nil
	}

	resourceID := s.resource.ID
	sample := func(iframe bool) func(context.Context) {
		return func(ctx context.Context) {
			s.send(ctx, creds, Report{
				UserID:     creds.UserID,
				ResourceID: resourceID,
				Duration:   p.CurrentTime(),
				State:      p.PlayerState(),
				IFrame:     iframe,
			})
		}
	}
	s.sampler = startSampler(s.newTicker(s.interval), sample(true), sample(false))
	return nil
}

// StateChange handles a player state change. On PlayerEnded it stops the
// sampler and sends the final report once.
func (s *Session) StateChange(ctx context.Context, divID string, st PlayerState) error {
	s.mu.Lock()
	if divID != s.divID {
		s.mu.Unlock()
		return ErrStale
	}
	if st != PlayerEnded || s.state != Playing || s.doneTracking {
		s.mu.Unlock()
		return nil
	}

	s.doneTracking = true
	s.stopSampler()
	s.state = Ended
	player := s.player
	resourceID := s.resource.ID
	s.mu.Unlock()

	creds, ok := s.credentials(ctx)
	if !ok {
		return nil
	}
	s.send(ctx, creds, Report{
		UserID:       creds.UserID,
		ResourceID:   resourceID,
		Duration:     player.CurrentTime(),
		State:        PlayerEnded,
		FullyWatched: true,
	})
	return nil
}

// Shutdown tears the session down when its view goes away. A player that is
// still playing gets one last progress report with its current position; it is
// not marked fully watched. Events arriving afterwards are stale.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.stopSampler()
	playing := s.state == Playing && !s.doneTracking
	s.doneTracking = true
	s.divID = ""
	player := s.player
	resourceID := s.resource.ID
	s.mu.Unlock()

	if !playing || player == nil {
		return
	}
	creds, ok := s.credentials(ctx)
	if !ok {
		return
	}
	s.send(ctx, creds, Report{
		UserID:     creds.UserID,
		ResourceID: resourceID,
		Duration:   player.CurrentTime(),
		State:      player.PlayerState(),
	})
}

// State returns the current playback state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveDivID returns the id of the current player element.
func (s *Session) ActiveDivID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divID
}

// Resource returns the resource of the current player.
func (s *Session) Resource() curriculum.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource
}

// Sampling reports whether a sampler is running.
func (s *Session) Sampling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampler != nil
}

// stopSampler must be called with s.mu held. The sampler goroutine never
// takes s.mu, so waiting for it here cannot deadlock.
func (s *Session) stopSampler() {
	if s.sampler == nil {
		return
	}
	s.sampler.stop()
	s.sampler = nil
}

func (s *Session) credentials(ctx context.Context) (Credentials, bool) {
	if s.creds == nil || s.reporter == nil {
		return Credentials{}, false
	}
	return s.creds.Credentials(ctx)
}

func (s *Session) send(ctx context.Context, creds Credentials, r Report) {
	if err := s.reporter.Report(ctx, creds.Token, r); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("progress report failed",
			"resource", r.ResourceID,
			"iframe", r.IFrame,
			"fully_watched", r.FullyWatched,
			"error", err,
		)
	}
}
