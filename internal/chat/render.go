// ABOUTME: Transcript export to a standalone HTML page
// ABOUTME: Assistant markdown is converted with goldmark; user text is escaped

package chat

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/lamp/internal/account"
)

//go:embed templates/transcript.html
var templateFS embed.FS

var transcriptTmpl = template.Must(template.ParseFS(templateFS, "templates/transcript.html"))

type renderedMessage struct {
	Role      account.Role
	Timestamp time.Time
	Body      template.HTML
}

// RenderHTML renders transcript as an HTML page titled title.
func RenderHTML(title string, transcript []account.Message) ([]byte, error) {
	if title == "" {
		title = "Conversation"
	}
	msgs := make([]renderedMessage, 0, len(transcript))
	for _, m := range transcript {
		body, err := renderBody(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, renderedMessage{Role: m.Role, Timestamp: m.Timestamp, Body: body})
	}

	var buf bytes.Buffer
	if err := transcriptTmpl.Execute(&buf, struct {
		Title    string
		Messages []renderedMessage
	}{title, msgs}); err != nil {
		return nil, fmt.Errorf("rendering transcript: %w", err)
	}
	return buf.Bytes(), nil
}

// renderBody converts assistant markdown. goldmark drops raw HTML unless
// told otherwise, so the output is safe to embed.
func renderBody(m account.Message) (template.HTML, error) {
	if m.Role != account.RoleAssistant {
		return template.HTML("<p>" + template.HTMLEscapeString(m.Content) + "</p>"), nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(m.Content), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
