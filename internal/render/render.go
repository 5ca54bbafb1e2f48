// Package render turns catalog nodes and their resources into HTML fragments.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/p-n-ai/pai-catalog/internal/curriculum"
)

// Fragment is the output of rendering one node's resources.
type Fragment struct {
	HTML string
	// Kinds lists the resource-kind codes that got a header, in render order.
	Kinds []string
	// Resources lists every resource that was drawn, in render order.
	Resources []curriculum.Resource
}

// Renderer draws resource sets using the resource-kind reference data. The
// reference data is read-only after construction, so a Renderer is safe for
// concurrent use.
type Renderer struct {
	types curriculum.ResourceTypes
}

// New creates a renderer for the given reference data.
func New(types curriculum.ResourceTypes) *Renderer {
	return &Renderer{types: types}
}

// Types returns the reference data the renderer was built with.
func (r *Renderer) Types() curriculum.ResourceTypes {
	return r.types
}

type section struct {
	Code      string
	Label     string
	Kind      Kind
	Resources []curriculum.Resource
}

// Render draws set in reference-data order. Kinds missing from set, or
// present with no resources, are skipped. Kinds absent from the reference
// data are not drawn.
func (r *Renderer) Render(node curriculum.Node, set curriculum.ResourceSet) (Fragment, error) {
	var (
		buf     bytes.Buffer
		frag    Fragment
		handled = make(map[string]bool)
	)

	for _, code := range r.types.Keys() {
		if handled[code] {
			continue
		}
		resources, ok := set.Get(code)
		if !ok || len(resources) == 0 {
			continue
		}
		handled[code] = true

		rt, _ := r.types.Get(code)
		label := rt.Label
		if label == "" {
			label = code
		}
		s := section{Code: code, Label: label, Kind: ParseKind(rt.Kind), Resources: resources}

		if err := templates.ExecuteTemplate(&buf, "header", s); err != nil {
			return Fragment{}, fmt.Errorf("render %s header for %s: %w", code, node.Key, err)
		}
		if err := templates.ExecuteTemplate(&buf, s.Kind.template(), s); err != nil {
			return Fragment{}, fmt.Errorf("render %s resources for %s: %w", code, node.Key, err)
		}
		frag.Kinds = append(frag.Kinds, code)
		frag.Resources = append(frag.Resources, resources...)
	}

	frag.HTML = buf.String()
	return frag, nil
}

// Card renders an empty collapsible container for a node.
func Card(id, title string) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "card", struct{ ID, Title string }{id, title}); err != nil {
		return "", fmt.Errorf("render card %s: %w", id, err)
	}
	return buf.String(), nil
}

// Viewer renders the modal body for an opened resource. Video resources get
// a player placeholder with the given div id.
func Viewer(res curriculum.Resource, divID string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Resource curriculum.Resource
		DivID    string
	}{res, divID}
	if err := templates.ExecuteTemplate(&buf, "viewer", data); err != nil {
		return "", fmt.Errorf("render viewer %s: %w", res.ID, err)
	}
	return buf.String(), nil
}

// ChapterLinks renders the chapter listing of a subject.
func ChapterLinks(p curriculum.Path, chapters curriculum.OrderedMap[curriculum.Entry]) (string, error) {
	type link struct{ URL, Name string }
	links := make([]link, 0, chapters.Len())
	chapters.Each(func(id string, e curriculum.Entry) {
		q := url.Values{}
		q.Set("grade", p.Grade)
		q.Set("board", p.Board)
		q.Set("subject", p.Subject)
		q.Set("chapter", id)
		name := e.Name
		if name == "" {
			name = "Chapter " + id
		}
		links = append(links, link{URL: "/chapter?" + q.Encode(), Name: name})
	})

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "chapters", links); err != nil {
		return "", fmt.Errorf("render chapter list: %w", err)
	}
	return buf.String(), nil
}

// Debug renders a raw payload as an indented JSON dump.
func Debug(payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode debug payload: %w", err)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "debug", string(data)); err != nil {
		return "", fmt.Errorf("render debug payload: %w", err)
	}
	return buf.String(), nil
}
