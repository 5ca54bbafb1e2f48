package render

import (
	"bytes"
	"html/template"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// Markdown converts a resource description to sanitized HTML.
func Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		slog.Warn("markdown conversion failed", "error", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes()))
}

var templates = template.Must(template.New("render").Funcs(template.FuncMap{
	"markdown": Markdown,
}).Parse(`
{{define "card"}}<div class="card" id="{{.ID}}-card"><div class="card-header" id="{{.ID}}-header"><button class="btn btn-link" data-toggle="collapse" data-target="#{{.ID}}-collapse-card">{{.Title}}</button></div><div id="{{.ID}}-collapse-card" class="collapse"><div class="card-body" id="{{.ID}}-body"></div></div></div>{{end}}

{{define "header"}}<h5 class="resource-header" data-kind="{{.Code}}">{{.Label}}</h5>{{end}}

{{define "gallery"}}<div class="resource-gallery" data-kind="{{.Code}}">{{range .Resources}}<a href="#" class="resource-item" data-resource-id="{{.ID}}"{{with .VideoID}} data-video-id="{{.}}"{{end}}>{{with .Icon}}<img src="{{.}}" alt="">{{end}}<span>{{.Title}}</span></a>{{end}}</div>{{end}}

{{define "summary"}}<ul class="resource-summary" data-kind="{{.Code}}">{{range .Resources}}<li data-resource-id="{{.ID}}">{{if .Link}}<a href="{{.Link}}" target="_blank" rel="noopener">{{.Title}}</a>{{else}}<span>{{.Title}}</span>{{end}}{{with .Description}}<div class="description">{{markdown .}}</div>{{end}}</li>{{end}}</ul>{{end}}

{{define "viewer"}}<div class="modal-content" data-resource-id="{{.Resource.ID}}"><div class="modal-header"><h5 class="modal-title">{{.Resource.Title}}</h5></div><div class="modal-body">{{if .Resource.VideoID}}<div id="{{.DivID}}" class="player" data-video-id="{{.Resource.VideoID}}"></div>{{else if .Resource.Link}}<iframe src="{{.Resource.Link}}" class="resource-frame"></iframe>{{end}}{{with .Resource.Description}}<div class="description">{{markdown .}}</div>{{end}}</div></div>{{end}}

{{define "chapters"}}<ul class="chapter-list">{{range .}}<li><a href="{{.URL}}">{{.Name}}</a></li>{{end}}</ul>{{end}}

{{define "debug"}}<pre class="debug">{{.}}</pre>{{end}}
`))
