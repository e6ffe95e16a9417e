package handlers

import (
	"bytes"

	"github.com/iyunix/go-chatkeep/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in replies is dropped by goldmark's default (unsafe off) renderer.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// messageView is a stored message plus its rendered HTML for assistant turns.
type messageView struct {
	domain.Message
	ContentHTML string `json:"content_html,omitempty"`
}

func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func viewOf(m *domain.Message) *messageView {
	if m == nil {
		return nil
	}
	v := &messageView{Message: *m}
	if m.Role == domain.RoleAssistant {
		v.ContentHTML = renderMarkdown(m.Content)
	}
	return v
}

func viewsOf(messages []domain.Message) []*messageView {
	views := make([]*messageView, 0, len(messages))
	for i := range messages {
		views = append(views, viewOf(&messages[i]))
	}
	return views
}
