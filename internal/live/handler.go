// Package live binds a chapter view to a WebSocket connection. Each connection
// owns one tree session and one video session; document mutations and viewer
// markup are pushed to the client as they happen.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-catalog/internal/auth"
	"github.com/p-n-ai/pai-catalog/internal/content"
	"github.com/p-n-ai/pai-catalog/internal/curriculum"
	"github.com/p-n-ai/pai-catalog/internal/render"
	"github.com/p-n-ai/pai-catalog/internal/tree"
	"github.com/p-n-ai/pai-catalog/internal/video"
)

const (
	outboundBuffer = 64
	writeTimeout   = 10 * time.Second
)

var errUnknownResource = errors.New("unknown resource")

// Options configures a Handler.
type Options struct {
	Fetcher  content.Fetcher
	Reporter video.Reporter
	Sessions auth.Store
	// Debug is used when the debug query parameter is absent.
	Debug     bool
	Interval  time.Duration
	NewTicker func(time.Duration) video.Ticker
	// OriginPatterns lists the cross-origin hosts allowed to connect.
	OriginPatterns []string
	// OnSignIn, if set, is called with the session of every signed-in
	// connection before it is accepted.
	OnSignIn func(context.Context, auth.Session)
}

// Handler serves GET /ws.
type Handler struct {
	opts Options
	hub  *Hub
}

// NewHandler creates a live handler.
func NewHandler(opts Options) *Handler {
	return &Handler{opts: opts, hub: NewHub()}
}

// Hub returns the handler's connection registry.
func (h *Handler) Hub() *Hub {
	return h.hub
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := curriculum.Path{
		Grade:   q.Get("grade"),
		Board:   q.Get("board"),
		Subject: q.Get("subject"),
		Chapter: q.Get("chapter"),
	}
	debug := parseDebug(q.Get("debug"), h.opts.Debug)

	sess, signedIn, err := auth.Lookup(r.Context(), h.opts.Sessions, q.Get("session"))
	if err != nil {
		slog.Warn("session lookup failed, continuing signed out", "error", err)
	}
	if signedIn {
		p = withPreferences(p, sess.Preferences)
		if h.opts.OnSignIn != nil {
			h.opts.OnSignIn(r.Context(), sess)
		}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = ws.CloseNow() }()

	c := &conn{
		id:  uuid.NewString(),
		ws:  ws,
		out: make(chan Message, outboundBuffer),
	}
	var creds video.CredentialSource
	if signedIn {
		creds = video.CredentialsFunc(func(context.Context) (video.Credentials, bool) {
			return video.Credentials{UserID: sess.UserID, Token: sess.Token}, true
		})
	}

	h.hub.register(c.id, ws)
	defer h.hub.unregister(c.id)

	slog.Info("live connection opened",
		"conn", c.id,
		"path", p.Title(),
		"signed_in", signedIn,
		"debug", debug,
	)
	err = c.run(r.Context(), p, tree.Options{Fetcher: h.opts.Fetcher, Debug: debug}, video.Options{
		Reporter:    h.opts.Reporter,
		Credentials: creds,
		Interval:    h.opts.Interval,
		NewTicker:   h.opts.NewTicker,
	})
	if err != nil {
		slog.Warn("live connection failed", "conn", c.id, "error", err)
		return
	}
	_ = ws.Close(websocket.StatusNormalClosure, "")
	slog.Info("live connection closed", "conn", c.id)
}

// parseDebug reads the debug query parameter. Anything other than an explicit
// boolean leaves the default in place.
func parseDebug(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// withPreferences fills an absent grade or board from the user's preferences.
func withPreferences(p curriculum.Path, prefs auth.Preferences) curriculum.Path {
	if p.Grade == "" && prefs.Grade != 0 {
		p.Grade = strconv.Itoa(prefs.Grade)
	}
	if p.Board == "" {
		p.Board = prefs.Board
	}
	return p
}

type conn struct {
	id    string
	ws    *websocket.Conn
	out   chan Message
	tree  *tree.Session
	video *video.Session

	// player is only touched by the read loop.
	player *remotePlayer
}

func (c *conn) run(ctx context.Context, p curriculum.Path, topts tree.Options, vopts video.Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	topts.Sink = func(m tree.Mutation) {
		c.send(ctx, mutationMessage(m))
	}
	c.tree = tree.NewSession(ctx, p, topts)
	c.video = video.NewSession(vopts)
	defer func() {
		c.tree.Close()
		// The connection context is gone by now; the teardown report gets its own.
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer scancel()
		c.video.Shutdown(sctx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		return c.writeLoop(gctx)
	})
	return g.Wait()
}

func (c *conn) readLoop(ctx context.Context) error {
	for {
		var req Request
		if err := wsjson.Read(ctx, c.ws, &req); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.handle(ctx, req)
	}
}

func (c *conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, m)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// send queues m for the write loop. It drops m once the connection is done.
func (c *conn) send(ctx context.Context, m Message) {
	select {
	case c.out <- m:
	case <-ctx.Done():
	}
}

func (c *conn) fail(ctx context.Context, op string, err error) {
	if errors.Is(err, tree.ErrClosed) {
		return
	}
	slog.Debug("live op failed", "conn", c.id, "op", op, "error", err)
	c.send(ctx, errorMessage(err))
}

func (c *conn) handle(ctx context.Context, req Request) {
	switch req.Op {
	case OpExpand:
		c.async(ctx, req.Op, c.tree.Expand)
	case OpSubject:
		c.async(ctx, req.Op, c.tree.ExpandSubject)
	case OpReveal:
		topic, subtopic := req.Topic, req.Subtopic
		c.async(ctx, req.Op, func(ctx context.Context) error {
			return c.tree.Reveal(ctx, topic, subtopic)
		})
	case OpOpen:
		if err := c.open(ctx, req.ResourceID); err != nil {
			c.fail(ctx, req.Op, err)
		}
	case OpPlayerReady, OpPlayerState, OpPlayerProgress:
		if err := c.playerEvent(ctx, req); err != nil {
			c.fail(ctx, req.Op, err)
		}
	default:
		c.fail(ctx, req.Op, fmt.Errorf("unknown op %q", req.Op))
	}
}

// async runs a tree operation off the read loop so a slow fetch does not hold
// up later messages.
func (c *conn) async(ctx context.Context, op string, fn func(context.Context) error) {
	started := c.tree.Go(func(sctx context.Context) {
		if err := fn(sctx); err != nil {
			c.fail(ctx, op, err)
		}
	})
	if !started {
		c.fail(ctx, op, tree.ErrClosed)
	}
}

// open embeds a resource. Videos get a tracked player; anything else is shown
// through its link.
func (c *conn) open(ctx context.Context, resourceID string) error {
	res, ok := c.tree.Resource(resourceID)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownResource, resourceID)
	}

	var divID string
	if res.VideoID() != "" {
		id, err := c.video.Open(res)
		if err != nil {
			return err
		}
		divID = id
		c.player = newRemotePlayer(divID)
	}

	html, err := render.Viewer(res, divID)
	if err != nil {
		return err
	}
	c.send(ctx, Message{Type: TypeViewer, DivID: divID, VideoID: res.VideoID(), HTML: html})
	return nil
}

func (c *conn) playerEvent(ctx context.Context, req Request) error {
	p := c.player
	if p == nil || p.divID != req.DivID {
		slog.Debug("ignoring event for stale player", "conn", c.id, "div_id", req.DivID)
		return nil
	}
	st := req.playerState(p.PlayerState())
	p.update(req.Position, st)

	var err error
	switch req.Op {
	case OpPlayerReady:
		err = c.video.Ready(ctx, req.DivID, p)
	case OpPlayerState:
		err = c.video.StateChange(ctx, req.DivID, st)
	}
	if errors.Is(err, video.ErrStale) {
		slog.Debug("ignoring event for stale player", "conn", c.id, "div_id", req.DivID)
		return nil
	}
	return err
}
