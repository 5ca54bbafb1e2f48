// Package dataserver serves the on-disk catalog under /data/ in the encodings
// the content client understands.
package dataserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/p-n-ai/pai-catalog/internal/content"
	"github.com/p-n-ai/pai-catalog/internal/curriculum"
)

// Prefix is the URL prefix every catalog route lives under.
const Prefix = "/data/"

const resourcesPrefix = "resources-"

// Server maps catalog URLs onto a Loader.
type Server struct {
	loader *curriculum.Loader
}

// New creates a catalog server backed by loader.
func New(loader *curriculum.Loader) *Server {
	return &Server{loader: loader}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel, ok := strings.CutPrefix(r.URL.Path, Prefix)
	if !ok {
		http.NotFound(w, r)
		return
	}
	dir, file := path.Split(rel)
	name, ext, ok := splitExt(file)
	if !ok {
		http.NotFound(w, r)
		return
	}

	v, found := s.lookup(strings.Split(strings.TrimSuffix(dir, "/"), "/"), name)
	if !found {
		http.NotFound(w, r)
		return
	}
	s.write(w, r, content.ContentTypeFor(ext), v)
}

// lookup resolves the directory segments and file name of a route to the
// value it serves.
func (s *Server) lookup(dir []string, name string) (any, bool) {
	switch {
	case len(dir) == 1 && dir[0] == "keystone":
		return s.keystone(name)
	case len(dir) == 4 && dir[0] == "grades" && name == "chapter_list":
		return s.loader.ChapterList(curriculum.Path{Grade: dir[1], Board: dir[2], Subject: dir[3]})
	case len(dir) == 5 && dir[0] == "grades":
		p := curriculum.Path{Grade: dir[1], Board: dir[2], Subject: dir[3], Chapter: dir[4]}
		return s.chapterFile(p, name)
	}
	return nil, false
}

func (s *Server) keystone(name string) (any, bool) {
	switch name {
	case "resource_types":
		return s.loader.ResourceTypes(), true
	case "subjects":
		return s.loader.Subjects(), true
	case "boards":
		return s.loader.Boards(), true
	case "html-grades_list":
		return s.loader.Grades(), true
	}
	return nil, false
}

func (s *Server) chapterFile(p curriculum.Path, name string) (any, bool) {
	chapter, ok := s.loader.Chapter(p)
	if !ok {
		return nil, false
	}
	if name == "info" {
		return chapter, true
	}

	node, ok := strings.CutPrefix(name, resourcesPrefix)
	if !ok {
		return nil, false
	}
	topic, subtopic, ok := strings.Cut(node, "-")
	if !ok || topic == "" || subtopic == "" {
		return nil, false
	}
	set, ok := s.loader.Resources(p.WithNode(topic, subtopic))
	if !ok {
		// A node of a known chapter without resources renders empty.
		return curriculum.ResourceSet{}, true
	}
	return set, true
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, contentType string, v any) {
	var buf bytes.Buffer
	if err := content.Encode(contentType, &buf, v); err != nil {
		slog.Error("failed to encode catalog response", "path", r.URL.Path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("failed to write catalog response", "path", r.URL.Path, "error", err)
	}
}

// splitExt splits a file name into base name and a supported extension.
func splitExt(file string) (string, string, bool) {
	i := strings.LastIndexByte(file, '.')
	if i <= 0 {
		return "", "", false
	}
	name, ext := file[:i], file[i+1:]
	switch ext {
	case "lynx", "json":
		return name, ext, true
	}
	return "", "", false
}
