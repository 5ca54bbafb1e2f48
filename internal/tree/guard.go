package tree

import "sync"

// NodeKey identifies a topic or, with Subtopic set, one of its subtopics.
type NodeKey struct {
	Topic    string
	Subtopic string
}

// ElementID is the document id of the node's container.
func (k NodeKey) ElementID() string {
	if k.Subtopic == "" {
		return k.Topic
	}
	return k.Topic + "--" + k.Subtopic
}

// DebugPanelID is the document id of the node's debug panel. Topic keys
// contain no '-', so a node id never starts with "debug-" followed by a
// topic key and the two id spaces cannot meet.
func (k NodeKey) DebugPanelID() string {
	return "debug-" + k.ElementID()
}

func (k NodeKey) String() string {
	if k.Subtopic == "" {
		return k.Topic
	}
	return k.Topic + "/" + k.Subtopic
}

// RenderGuard records which nodes have been rendered. The check and the set
// happen under one lock, so concurrent reveals of the same node cannot both
// proceed to render.
type RenderGuard struct {
	mu       sync.Mutex
	rendered map[NodeKey]bool
}

// NewRenderGuard creates an empty guard.
func NewRenderGuard() *RenderGuard {
	return &RenderGuard{rendered: make(map[NodeKey]bool)}
}

// AlreadyRendered reports whether key was rendered before this call, and marks
// it rendered. Only the first call for a key returns false.
func (g *RenderGuard) AlreadyRendered(key NodeKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rendered[key] {
		return true
	}
	g.rendered[key] = true
	return false
}

// Release clears key after a failed render so the next reveal retries.
func (g *RenderGuard) Release(key NodeKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rendered, key)
}

// Rendered reports whether key is marked, without marking it.
func (g *RenderGuard) Rendered(key NodeKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rendered[key]
}
