package live

import (
	"sync"

	"github.com/p-n-ai/pai-catalog/internal/tree"
	"github.com/p-n-ai/pai-catalog/internal/video"
)

// Client operations.
const (
	OpExpand         = "expand"
	OpReveal         = "reveal"
	OpSubject        = "subject"
	OpOpen           = "open"
	OpPlayerReady    = "player_ready"
	OpPlayerState    = "player_state"
	OpPlayerProgress = "player_progress"
)

// Server message types.
const (
	TypeMutation = "mutation"
	TypeViewer   = "viewer"
	TypeError    = "error"
)

// Request is a client → server message.
type Request struct {
	Op         string             `json:"op"`
	Topic      string             `json:"topic,omitempty"`
	Subtopic   string             `json:"subtopic,omitempty"`
	ResourceID string             `json:"resource_id,omitempty"`
	DivID      string             `json:"div_id,omitempty"`
	Position   float64            `json:"position,omitempty"`
	State      *video.PlayerState `json:"state,omitempty"`
}

// playerState returns the reported state, or fallback when the request
// carries none. The ended code is zero, so absence must not read as ended.
func (r Request) playerState(fallback video.PlayerState) video.PlayerState {
	if r.State == nil {
		return fallback
	}
	return *r.State
}

// Message is a server → client message.
type Message struct {
	Type    string  `json:"type"`
	Op      tree.Op `json:"op,omitempty"`
	Target  string  `json:"target,omitempty"`
	ID      string  `json:"id,omitempty"`
	HTML    string  `json:"html,omitempty"`
	DivID   string  `json:"div_id,omitempty"`
	VideoID string  `json:"video_id,omitempty"`
	Message string  `json:"message,omitempty"`
}

func mutationMessage(m tree.Mutation) Message {
	return Message{Type: TypeMutation, Op: m.Op, Target: m.Target, ID: m.ID, HTML: m.HTML}
}

func errorMessage(err error) Message {
	return Message{Type: TypeError, Message: err.Error()}
}

// remotePlayer mirrors the state of a player running in the client. The
// sampler reads it while the read loop updates it.
type remotePlayer struct {
	divID string

	mu       sync.Mutex
	position float64
	state    video.PlayerState
}

func newRemotePlayer(divID string) *remotePlayer {
	return &remotePlayer{divID: divID, state: video.PlayerUnstarted}
}

func (p *remotePlayer) update(position float64, state video.PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	p.state = state
}

func (p *remotePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *remotePlayer) PlayerState() video.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
