// Package site renders a project snapshot into a static site and publishes
// the artifact.
package site

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/store"
)

// Page is one file of the static site artifact.
type Page struct {
	Path        string
	ContentType string
	Body        []byte
}

// Builder renders projects. The markup is intentionally minimal; theming is
// a front-end concern.
type Builder struct {
	store *store.Store
}

// NewBuilder wires a builder against the durable store.
func NewBuilder(st *store.Store) *Builder {
	return &Builder{store: st}
}

type chapterView struct {
	Title    string
	Intro    string
	Passages []passageView
}

type passageView struct {
	Text     string
	ItemType models.ContentType
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<ol>
{{range $i, $ch := .Chapters}}<li><a href="chapter-{{$i}}.html">{{$ch.Title}}</a></li>
{{end}}</ol>
</body>
</html>
`))

var chapterTemplate = template.Must(template.New("chapter").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Intro}}<p><em>{{.Intro}}</em></p>{{end}}
{{range .Passages}}<p>{{.Text}}</p>
{{end}}<p><a href="index.html">Back</a></p>
</body>
</html>
`))

// Build assembles the full page set for a project from durable state.
func (b *Builder) Build(ctx context.Context, projectID string) ([]Page, error) {
	project, err := b.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	chapters, err := b.store.ListChapters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items, err := b.store.ListSelectedItems(ctx, projectID)
	if err != nil {
		return nil, err
	}
	narratives, err := b.store.ListNarratives(ctx, projectID)
	if err != nil {
		return nil, err
	}

	texts := make(map[string]string, len(narratives))
	for _, n := range narratives {
		texts[n.ContentID] = n.Text
	}

	views := make([]chapterView, 0, len(chapters))
	for _, ch := range chapters {
		view := chapterView{Title: ch.Title, Intro: ch.Intro}
		for _, item := range items {
			if item.ChapterID != ch.ID {
				continue
			}
			text, ok := texts[item.ID]
			if !ok {
				continue
			}
			view.Passages = append(view.Passages, passageView{
				Text:     text,
				ItemType: item.Type,
			})
		}
		views = append(views, view)
	}

	title := project.Name
	if strings.TrimSpace(title) == "" {
		title = "A Story"
	}

	var pages []Page

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, map[string]any{
		"Title":    title,
		"Chapters": views,
	}); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	pages = append(pages, Page{
		Path:        "index.html",
		ContentType: "text/html",
		Body:        append([]byte(nil), buf.Bytes()...),
	})

	for i, view := range views {
		buf.Reset()
		if err := chapterTemplate.Execute(&buf, view); err != nil {
			return nil, fmt.Errorf("render chapter %d: %w", i, err)
		}
		pages = append(pages, Page{
			Path:        fmt.Sprintf("chapter-%d.html", i),
			ContentType: "text/html",
			Body:        append([]byte(nil), buf.Bytes()...),
		})
	}
	return pages, nil
}
