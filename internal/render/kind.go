package render

import "strings"

// Kind is the closed set of resource kinds the renderer knows how to draw.
type Kind int

const (
	KindDefault Kind = iota
	KindVideo
	KindAnimation
	KindLab
	KindDocument
	KindLink
)

var kindNames = map[Kind]string{
	KindDefault:   "default",
	KindVideo:     "video",
	KindAnimation: "animation",
	KindLab:       "lab",
	KindDocument:  "document",
	KindLink:      "link",
}

var kindAliases = map[string]Kind{
	"video":      KindVideo,
	"animation":  KindAnimation,
	"animated":   KindAnimation,
	"lab":        KindLab,
	"simulation": KindLab,
	"document":   KindDocument,
	"doc":        KindDocument,
	"pdf":        KindDocument,
	"link":       KindLink,
	"url":        KindLink,
}

// ParseKind maps a reference-data kind name to a Kind. Unknown names map to
// KindDefault.
func ParseKind(s string) Kind {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k
	}
	return KindDefault
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindDefault]
}

// Interactive reports whether resources of this kind are drawn as a gallery
// of clickable items that open the viewer.
func (k Kind) Interactive() bool {
	switch k {
	case KindVideo, KindAnimation, KindLab:
		return true
	}
	return false
}

// template returns the name of the sub-renderer for k.
func (k Kind) template() string {
	if k.Interactive() {
		return "gallery"
	}
	return "summary"
}
