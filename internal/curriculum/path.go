package curriculum

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	lowerCaser = cases.Lower(language.Und)
	upperCaser = cases.Upper(language.Und)
)

// Path identifies a location in the catalog. Topic and Subtopic are optional.
type Path struct {
	Grade    string
	Board    string
	Subject  string
	Chapter  string
	Topic    string
	Subtopic string
}

// Normalize trims every segment and lowercases the board and subject.
func (p Path) Normalize() Path {
	return Path{
		Grade:    strings.TrimSpace(p.Grade),
		Board:    NormalizeBoard(p.Board),
		Subject:  NormalizeSubject(p.Subject),
		Chapter:  strings.TrimSpace(p.Chapter),
		Topic:    strings.TrimSpace(p.Topic),
		Subtopic: strings.TrimSpace(p.Subtopic),
	}
}

// WithNode returns a copy of p scoped to the given topic and subtopic.
func (p Path) WithNode(topic, subtopic string) Path {
	p.Topic = topic
	p.Subtopic = subtopic
	return p
}

// Missing returns the names of the chapter-level segments that are empty,
// in grade, board, subject, chapter order.
func (p Path) Missing() []string {
	var missing []string
	for _, seg := range []struct{ name, value string }{
		{"grade", p.Grade},
		{"board", p.Board},
		{"subject", p.Subject},
		{"chapter", p.Chapter},
	} {
		if strings.TrimSpace(seg.value) == "" {
			missing = append(missing, seg.name)
		}
	}
	return missing
}

// Title is the human-readable heading of a chapter view.
func (p Path) Title() string {
	return "Grade " + p.Grade + " " + upperCaser.String(p.Board) + " - " + p.Subject + " - Chapter " + p.Chapter
}

// NormalizeBoard lowercases a board identifier for use as a path segment.
func NormalizeBoard(board string) string {
	return lowerCaser.String(strings.TrimSpace(board))
}

// NormalizeSubject lowercases a subject identifier for use as a path segment.
func NormalizeSubject(subject string) string {
	return lowerCaser.String(strings.TrimSpace(subject))
}
