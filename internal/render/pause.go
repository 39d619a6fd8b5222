package render

import (
	"fmt"
	"strings"

	"pulsebot/internal/chat"
	"pulsebot/internal/model"
)

// PauseNotice is the one-time message sent to every subscriber when a
// source trips the failure threshold.
func PauseNotice(prefs Prefs, reason model.PauseReason, threshold int) chat.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "⏸ %s\n\n", bold("Status updates paused"))
	fmt.Fprintf(&b, "Updates for %s were paused automatically after %d failed checks.\n\n",
		bold(prefs.title()), threshold)
	fmt.Fprintf(&b, "Reason: %s\n\n", esc(pauseReasonText(reason)))
	fmt.Fprintf(&b, "Use /resume %s once the page is reachable again.", esc(prefs.SourceURL))
	return chat.Message{Text: b.String(), DisablePreview: true}
}

func pauseReasonText(reason model.PauseReason) string {
	switch reason {
	case model.PauseTimeout:
		return "connection timeouts"
	case model.PauseNotCompatible:
		return "the page no longer identifies as a Pulse status page"
	case model.PauseManual:
		return "paused by an operator"
	default:
		return string(reason)
	}
}
