package telegram

import (
	"fmt"
	"html"
	"strings"

	"duebot/internal/transport"
)

const textLimit = 4000

func escape(s string) string { return html.EscapeString(s) }

// RenderCard formats a card as Telegram HTML.
func RenderCard(c transport.Card) string {
	var b strings.Builder

	if m := c.Mention; !m.Empty() {
		var tags []string
		if m.RoleID != "" {
			tags = append(tags, escape(m.RoleID))
		}
		for _, id := range m.UserIDs {
			tags = append(tags, fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, escape(id), "@"+escape(id)))
		}
		b.WriteString(strings.Join(tags, " "))
		b.WriteString("\n")
	}
	if c.Content != "" {
		b.WriteString(escape(c.Content))
		b.WriteString("\n\n")
	}
	if c.Title != "" {
		b.WriteString("<b>")
		b.WriteString(escape(c.Title))
		b.WriteString("</b>\n")
	}
	if c.Description != "" {
		b.WriteString(escape(c.Description))
		b.WriteString("\n")
	}
	if len(c.Fields) > 0 {
		b.WriteString("\n")
	}
	for _, f := range c.Fields {
		b.WriteString("<b>")
		b.WriteString(escape(f.Name))
		b.WriteString(":</b> ")
		if f.URL != "" {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, escape(f.URL), escape(f.Value))
		} else {
			b.WriteString(escape(f.Value))
		}
		b.WriteString("\n")
	}
	if c.Footer != "" {
		b.WriteString("\n<i>")
		b.WriteString(escape(c.Footer))
		b.WriteString("</i>")
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitText splits long HTML messages into chunks Telegram accepts. It
// prefers newline boundaries and avoids cutting inside a tag.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
