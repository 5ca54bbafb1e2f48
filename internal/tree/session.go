// Package tree lazily expands a chapter's topic tree into a document. Each
// node moves Collapsed → Expanding → Rendered at most once; its resources are
// fetched only when the node is revealed.
package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-catalog/internal/content"
	"github.com/p-n-ai/pai-catalog/internal/curriculum"
	"github.com/p-n-ai/pai-catalog/internal/render"
)

// Top-level document containers.
const (
	RootTOC      = "toc"
	RootChapters = "chapters"
)

const debugAttr = "debug-panel"

// Guard keys for the once-per-session chapter and subject listings. Topic keys
// never start with '$'.
var (
	chapterNode = NodeKey{Topic: "$chapter"}
	subjectNode = NodeKey{Topic: "$subject"}
)

// State is the expansion state of a node.
type State int

const (
	Collapsed State = iota
	Expanding
	Rendered
)

func (s State) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Expanding:
		return "expanding"
	case Rendered:
		return "rendered"
	default:
		return "unknown"
	}
}

// Options configures a Session.
type Options struct {
	Fetcher content.Fetcher
	// Debug adds a panel with the raw fetched payload under every revealed node.
	Debug bool
	Sink  Sink
}

// Session owns everything one chapter view needs: the render guard, the
// reference data, the fetched chapter and the document. It is created when a
// chapter view opens and closed when it goes away; closing cancels in-flight
// fetches.
type Session struct {
	id      string
	path    curriculum.Path
	fetcher content.Fetcher
	debug   bool
	doc     *Document
	guard   *RenderGuard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	renderer  *render.Renderer
	chapter   *curriculum.Chapter
	states    map[NodeKey]State
	resources map[string]curriculum.Resource
}

// NewSession creates a session for the chapter at p. It fetches nothing until
// Expand is called.
func NewSession(ctx context.Context, p curriculum.Path, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:        uuid.NewString(),
		path:      p.Normalize(),
		fetcher:   opts.Fetcher,
		debug:     opts.Debug,
		doc:       NewDocument(opts.Sink, RootTOC, RootChapters),
		guard:     NewRenderGuard(),
		ctx:       ctx,
		cancel:    cancel,
		states:    make(map[NodeKey]State),
		resources: make(map[string]curriculum.Resource),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Path returns the normalized chapter path.
func (s *Session) Path() curriculum.Path { return s.path }

// Title returns the heading of the chapter view.
func (s *Session) Title() string { return s.path.Title() }

// Document returns the session's document.
func (s *Session) Document() *Document { return s.doc }

// Debug reports whether the debug panel is enabled.
func (s *Session) Debug() bool { return s.debug }

// Expand loads the reference data and the chapter info and creates one
// container per topic. Missing path parameters are reported inline and
// returned as MissingParamErrors without fetching. Fetch failures are written
// as fallback text and leave the chapter unexpanded so a later call retries.
func (s *Session) Expand(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.reportMissing(RootTOC, "grade", "board", "subject", "chapter"); err != nil {
		return err
	}
	if s.guard.AlreadyRendered(chapterNode) {
		return nil
	}

	fctx, done := s.fetchContext(ctx)
	defer done()

	types, err := s.fetcher.FetchResourceTypes(fctx)
	if err != nil {
		return s.failRoot(chapterNode, RootTOC, MsgCheckConnection, err)
	}
	renderer := render.New(types)

	chapter, err := s.fetcher.FetchChapter(fctx, s.path)
	if err != nil {
		return s.failRoot(chapterNode, RootTOC, MsgCheckURL, err)
	}

	s.mu.Lock()
	s.renderer = renderer
	s.chapter = &chapter
	s.mu.Unlock()

	if s.doc.Body(RootTOC) != "" {
		if err := s.doc.SetBody(RootTOC, ""); err != nil {
			return err
		}
	}
	for _, topic := range chapter.TopicNodes() {
		key := NodeKey{Topic: topic.Key}
		if _, err := s.doc.Create(RootTOC, key.ElementID(), topic.Name); err != nil {
			return err
		}
		s.setState(key, Collapsed)
	}

	slog.Info("chapter expanded",
		"session", s.id,
		"path", s.Title(),
		"topics", chapter.Topics.Len(),
	)
	return nil
}

// ExpandSubject lists the chapters of the session's subject once.
func (s *Session) ExpandSubject(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.reportMissing(RootChapters, "grade", "board", "subject"); err != nil {
		return err
	}
	if s.guard.AlreadyRendered(subjectNode) {
		return nil
	}

	fctx, done := s.fetchContext(ctx)
	defer done()

	chapters, err := s.fetcher.FetchChapterList(fctx, s.path)
	if err != nil {
		return s.failRoot(subjectNode, RootChapters, MsgCheckConnection, err)
	}
	if chapters.Len() == 0 {
		return s.doc.SetBody(RootChapters, MsgNoTopics)
	}

	html, err := render.ChapterLinks(s.path, chapters)
	if err != nil {
		return err
	}
	return s.doc.SetBody(RootChapters, html)
}

// Reveal expands a topic, or a subtopic when subtopic is non-empty. The first
// reveal of a node fetches and renders its resources and, for a topic, creates
// its subtopic containers. Later reveals render nothing; in debug mode they
// refetch the payload and replace the debug panel contents.
//
// Fetch failures are contained in the node as fallback text and return nil.
func (s *Session) Reveal(ctx context.Context, topic, subtopic string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := NodeKey{Topic: topic, Subtopic: subtopic}

	node, err := s.lookup(key)
	if err != nil {
		return err
	}

	if s.guard.AlreadyRendered(key) {
		// While the first reveal is still expanding it writes the panel itself.
		if s.debug && s.State(topic, subtopic) == Rendered {
			s.refreshDebug(ctx, key)
		}
		return nil
	}
	s.setState(key, Expanding)

	fctx, done := s.fetchContext(ctx)
	defer done()

	id := key.ElementID()
	set, err := s.fetcher.FetchResources(fctx, s.resourcePath(key))
	if err != nil {
		return s.failNode(key, err)
	}

	s.mu.Lock()
	renderer := s.renderer
	s.mu.Unlock()

	frag, err := renderer.Render(node, set)
	if err != nil {
		return s.failNode(key, err)
	}
	if err := s.doc.SetBody(id, frag.HTML); err != nil {
		return s.failNode(key, err)
	}
	s.indexResources(frag.Resources)

	if subtopic == "" {
		for _, child := range node.SubtopicNodes() {
			childKey := NodeKey{Topic: topic, Subtopic: child.Key}
			if _, err := s.doc.Create(id, childKey.ElementID(), child.Name); err != nil {
				return s.failNode(key, err)
			}
			s.setState(childKey, Collapsed)
		}
	}

	if s.debug {
		s.writeDebug(key, set)
	}

	s.setState(key, Rendered)
	slog.Debug("node rendered", "session", s.id, "node", key.String(), "kinds", frag.Kinds)
	return nil
}

// State returns the expansion state of a node. Unknown nodes are Collapsed.
func (s *Session) State(topic, subtopic string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[NodeKey{Topic: topic, Subtopic: subtopic}]
}

// Resource returns a rendered resource by id.
func (s *Session) Resource(id string) (curriculum.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	return r, ok
}

// Go runs fn on its own goroutine under the session's context. It reports
// false, and does not run fn, once the session is closed.
func (s *Session) Go(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

// Close cancels in-flight fetches and waits for work started with Go.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Session) checkOpen() error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	return nil
}

// fetchContext derives a context that ends when either the caller's context
// or the session ends.
func (s *Session) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	fctx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return fctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) reportMissing(target string, params ...string) error {
	missing := checkPath(s.path.Missing(), params...)
	if len(missing) == 0 {
		return nil
	}
	errs := make([]error, 0, len(missing))
	for _, m := range missing {
		if err := s.doc.Append(target, "<p>"+m.Message()+"</p>"); err != nil {
			return err
		}
		errs = append(errs, m)
	}
	return errors.Join(errs...)
}

func (s *Session) lookup(key NodeKey) (curriculum.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chapter == nil {
		return curriculum.Node{}, ErrNotExpanded
	}
	topic, ok := s.chapter.Topic(key.Topic)
	if !ok {
		return curriculum.Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, key)
	}
	if key.Subtopic == "" {
		return topic, nil
	}
	if s.states[NodeKey{Topic: key.Topic}] != Rendered {
		return curriculum.Node{}, fmt.Errorf("%w: %s", ErrParentNotRendered, key)
	}
	sub, ok := topic.Subtopic(key.Subtopic)
	if !ok {
		return curriculum.Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, key)
	}
	return sub, nil
}

// resourcePath addresses a topic's own resources under the "main" subtopic.
func (s *Session) resourcePath(key NodeKey) curriculum.Path {
	if key.Subtopic == "" {
		return s.path.WithNode(key.Topic, curriculum.TopicMain)
	}
	return s.path.WithNode(key.Topic, key.Subtopic)
}

func (s *Session) failRoot(key NodeKey, root, msg string, err error) error {
	s.guard.Release(key)
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	slog.Warn("catalog fetch failed", "session", s.id, "path", s.Title(), "error", err)
	return s.doc.SetBody(root, msg)
}

func (s *Session) failNode(key NodeKey, err error) error {
	s.guard.Release(key)
	s.setState(key, Collapsed)
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	slog.Warn("node fetch failed", "session", s.id, "node", key.String(), "error", err)
	return s.doc.SetBody(key.ElementID(), MsgCheckConnection)
}

func (s *Session) refreshDebug(ctx context.Context, key NodeKey) {
	fctx, done := s.fetchContext(ctx)
	defer done()

	set, err := s.fetcher.FetchResources(content.Fresh(fctx), s.resourcePath(key))
	if err != nil {
		slog.Warn("debug refetch failed", "session", s.id, "node", key.String(), "error", err)
		return
	}
	s.writeDebug(key, set)
}

// writeDebug creates the node's debug panel on first use and replaces its
// contents with payload. Concurrent refetches each write when they resolve,
// so the panel shows whichever resolved last.
func (s *Session) writeDebug(key NodeKey, payload curriculum.ResourceSet) {
	id := key.ElementID()
	panel := key.DebugPanelID()

	created, err := s.doc.SetAttrIfAbsent(id, debugAttr, panel)
	if err != nil {
		slog.Warn("debug panel unavailable", "node", key.String(), "error", err)
		return
	}
	if created {
		ok, err := s.doc.Create(id, panel, "Debug")
		if err == nil && !ok {
			err = fmt.Errorf("element %s already exists", panel)
		}
		if err != nil {
			slog.Warn("debug panel unavailable", "node", key.String(), "error", err)
			return
		}
	}

	html, err := render.Debug(payload)
	if err != nil {
		slog.Warn("debug payload not rendered", "node", key.String(), "error", err)
		return
	}
	if err := s.doc.SetBody(panel, html); err != nil {
		slog.Warn("debug panel unavailable", "node", key.String(), "error", err)
	}
}

func (s *Session) setState(key NodeKey, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = st
}

func (s *Session) indexResources(resources []curriculum.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range resources {
		if r.ID != "" {
			s.resources[r.ID] = r
		}
	}
}
