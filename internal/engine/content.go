package engine

import (
	"fmt"
	"html"
	"strings"
)

// bodyRow is one label/value line in a ticket body header. The value is
// HTML; callers escape anything user-controlled before building a row.
type bodyRow struct {
	label string
	value string
}

// renderTicketBody renders the target ticket description: a header table of
// source metadata, a rule, then the record's own text. Rows with an empty
// value are dropped. The record text is escaped, not parsed; whatever
// markup the source allowed arrives as visible text with its line breaks
// intact.
func renderTicketBody(rows []bodyRow, description string) string {
	var b strings.Builder
	b.WriteString("<table>")
	for _, r := range rows {
		if r.value == "" {
			continue
		}
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>",
			html.EscapeString(r.label), r.value)
	}
	b.WriteString("</table><hr />")
	b.WriteString(escapeText(description))
	return b.String()
}

// renderFollowup renders one source comment for the target. The attribution
// header is only added when the author could not be resolved to a target
// account, since the target shows the real author otherwise.
func renderFollowup(author, date, body string, attribute bool) string {
	text := escapeText(body)
	if !attribute {
		return text
	}
	return fmt.Sprintf("<p><strong>%s added a comment - %s</strong></p>%s",
		html.EscapeString(author), html.EscapeString(date), text)
}

// escapeText renders free text as HTML: entities escaped and line breaks
// preserved.
func escapeText(s string) string {
	s = html.EscapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br />")
}

// sourceLink renders a record key as a link back to the record on the
// source system.
func sourceLink(baseURL, key string) string {
	if baseURL == "" {
		return html.EscapeString(key)
	}
	u := strings.TrimRight(baseURL, "/") + "/browse/" + key
	return fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(u), html.EscapeString(key))
}
