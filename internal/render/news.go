package render

import (
	"fmt"
	"strings"

	"pulsebot/internal/chat"
	"pulsebot/internal/pulse"
)

// childDigestLimit bounds the follow-up section of a news message,
// independently of the body limit.
const childDigestLimit = 250

// News renders one alert item as a standalone message. Children (follow-up
// updates) are folded into a digest section so one logical item stays one
// message.
func News(alert pulse.Alert, prefs Prefs) chat.Message {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", severityEmoji(alert.Severity), bold(alert.Title))
	if !alert.ScheduledFor.IsZero() {
		fmt.Fprintf(&b, "<i>Scheduled for %s</i>\n", alert.ScheduledFor.UTC().Format("2006-01-02 15:04 UTC"))
	}

	body := truncRunes(stripHTML(alert.BodyHTML), prefs.maxText())
	if body != "" {
		b.WriteString("\n")
		b.WriteString(esc(body))
		b.WriteString("\n")
	}

	if len(alert.Children) > 0 {
		b.WriteString("\n")
		b.WriteString(bold("Updates"))
		b.WriteString("\n")
		// Truncate the digest as plain text, then escape, so the cut can
		// never land inside an HTML tag.
		var parts []string
		for _, child := range alert.Children {
			part := child.Title
			if text := stripHTML(child.BodyHTML); text != "" {
				part += ": " + text
			}
			parts = append(parts, part)
		}
		b.WriteString(esc(truncRunes(strings.Join(parts, "\n"), childDigestLimit)))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n<i>%s · %s</i>", esc(prefs.title()), alert.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))

	msg := chat.Message{Text: b.String(), DisablePreview: true}
	if alert.Link != "" {
		msg.Buttons = []chat.Button{{Label: "Read more", URL: alert.Link}}
	}
	return msg
}

func severityEmoji(s pulse.Severity) string {
	switch s {
	case pulse.SeverityIncident:
		return "🚨"
	case pulse.SeverityMaintenance:
		return "🛠"
	default:
		return "📰"
	}
}
