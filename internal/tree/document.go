package tree

import (
	"fmt"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-catalog/internal/render"
)

// Op is a document mutation kind.
type Op string

const (
	OpCreate Op = "create"
	OpSet    Op = "set"
	OpAppend Op = "append"
)

// Mutation is one change to the document. For OpCreate, Target is the parent
// and ID the new container; otherwise Target is the element whose body changed.
type Mutation struct {
	Op     Op     `json:"op"`
	Target string `json:"target"`
	ID     string `json:"id,omitempty"`
	HTML   string `json:"html"`
}

// Sink receives every mutation in the order it was applied. It is called with
// the document locked and must not call back into the document.
type Sink func(Mutation)

type element struct {
	id       string
	parent   string
	title    string
	body     string
	children []string
	attrs    map[string]string
}

// Document is the server-side model of the rendered page: a tree of
// containers, each with a title, an HTML body and child containers.
type Document struct {
	mu    sync.Mutex
	elems map[string]*element
	log   []Mutation
	sink  Sink
}

// NewDocument creates a document with the given top-level containers.
func NewDocument(sink Sink, roots ...string) *Document {
	d := &Document{elems: make(map[string]*element), sink: sink}
	for _, id := range roots {
		d.elems[id] = &element{id: id, attrs: make(map[string]string)}
	}
	return d
}

// Create adds an empty container under parent. It reports false if id already
// exists, in which case nothing changes.
func (d *Document) Create(parent, id, title string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.elems[parent]
	if !ok {
		return false, fmt.Errorf("create %s: parent %s not found", id, parent)
	}
	if _, exists := d.elems[id]; exists {
		return false, nil
	}

	html, err := render.Card(id, title)
	if err != nil {
		return false, err
	}
	d.elems[id] = &element{id: id, parent: parent, title: title, attrs: make(map[string]string)}
	p.children = append(p.children, id)
	d.emit(Mutation{Op: OpCreate, Target: parent, ID: id, HTML: html})
	return true, nil
}

// SetBody replaces the body of id. Child containers are removed along with the
// old body.
func (d *Document) SetBody(id, html string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.elems[id]
	if !ok {
		return fmt.Errorf("set %s: element not found", id)
	}
	for _, child := range e.children {
		d.remove(child)
	}
	e.children = nil
	e.body = html
	d.emit(Mutation{Op: OpSet, Target: id, HTML: html})
	return nil
}

// Append adds html to the end of id's body.
func (d *Document) Append(id, html string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.elems[id]
	if !ok {
		return fmt.Errorf("append %s: element not found", id)
	}
	e.body += html
	d.emit(Mutation{Op: OpAppend, Target: id, HTML: html})
	return nil
}

// SetAttrIfAbsent sets a presence attribute on id and reports whether it was
// newly set.
func (d *Document) SetAttrIfAbsent(id, key, value string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.elems[id]
	if !ok {
		return false, fmt.Errorf("attr %s: element not found", id)
	}
	if _, set := e.attrs[key]; set {
		return false, nil
	}
	e.attrs[key] = value
	return true, nil
}

// Attr returns an attribute of id.
func (d *Document) Attr(id, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.elems[id]
	if !ok {
		return "", false
	}
	v, ok := e.attrs[key]
	return v, ok
}

// Exists reports whether id is in the document.
func (d *Document) Exists(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.elems[id]
	return ok
}

// Title returns the title id was created with.
func (d *Document) Title(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.elems[id]; ok {
		return e.title
	}
	return ""
}

// Children returns the child container ids of id in creation order.
func (d *Document) Children(id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.elems[id]; ok {
		return slices.Clone(e.children)
	}
	return nil
}

// Body returns the current body of id.
func (d *Document) Body(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.elems[id]; ok {
		return e.body
	}
	return ""
}

// Mutations returns every mutation applied so far.
func (d *Document) Mutations() []Mutation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.log)
}

func (d *Document) remove(id string) {
	e, ok := d.elems[id]
	if !ok {
		return
	}
	for _, child := range e.children {
		d.remove(child)
	}
	delete(d.elems, id)
}

func (d *Document) emit(m Mutation) {
	d.log = append(d.log, m)
	if d.sink != nil {
		d.sink(m)
	}
}
