// ABOUTME: HTML transcript export for conversation message lists
// ABOUTME: Renders message content as markdown via goldmark

package render

import (
	"bytes"
	"fmt"
	"html"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/fold-client/internal/conversation"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

const transcriptHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; }
.message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; }
.user { background: #eef2ff; }
.assistant { background: #f4f4f5; }
.system { background: #fef9c3; font-style: italic; }
.meta { font-size: 0.8rem; color: #71717a; margin-bottom: 0.25rem; }
pre { overflow-x: auto; background: #18181b; color: #e4e4e7; padding: 0.75rem; border-radius: 6px; }
</style>
</head>
<body>
<h1>%s</h1>
`

// Transcript renders a flattened message list as a standalone HTML page.
// Only the active version of each response appears; that is what Messages()
// returns from the store.
func Transcript(title string, messages []conversation.Message) ([]byte, error) {
	var buf bytes.Buffer
	escaped := html.EscapeString(title)
	fmt.Fprintf(&buf, transcriptHeader, escaped, escaped)

	for _, msg := range messages {
		if err := writeMessage(&buf, msg); err != nil {
			return nil, fmt.Errorf("rendering message %s: %w", msg.ID, err)
		}
	}

	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

func writeMessage(buf *bytes.Buffer, msg conversation.Message) error {
	role := msg.Role
	switch role {
	case "user", "assistant", "system":
	default:
		role = "assistant"
	}

	fmt.Fprintf(buf, "<div class=\"message %s\">\n", role)
	fmt.Fprintf(buf, "<div class=\"meta\">%s · %s", roleLabel(role), msg.CreatedAt.Format(time.DateTime))
	if msg.IsEdited {
		buf.WriteString(" · edited")
	}
	buf.WriteString("</div>\n")

	if err := markdown.Convert([]byte(msg.Content), buf); err != nil {
		return err
	}
	buf.WriteString("</div>\n")
	return nil
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return "User"
	case "system":
		return "System"
	default:
		return "Assistant"
	}
}
