package render

import "pulsebot/internal/pulse"

// Status is the three-way health classification used for colors, emoji and
// ordering. It is computed the same way at every level: operational iff
// every monitor is up, outage iff every monitor is down, degraded otherwise.
type Status string

const (
	StatusOperational Status = "OPERATIONAL"
	StatusDegraded    Status = "DEGRADED"
	StatusOutage      Status = "OUTAGE"
)

// Classify reduces a set of monitor states to one Status. No monitors means
// operational: an empty category has nothing wrong with it.
func Classify(monitors []pulse.Monitor) Status {
	if len(monitors) == 0 {
		return StatusOperational
	}
	up := 0
	for _, m := range monitors {
		if m.State == pulse.StateUp {
			up++
		}
	}
	switch up {
	case len(monitors):
		return StatusOperational
	case 0:
		return StatusOutage
	default:
		return StatusDegraded
	}
}

// Overall flattens all categories and classifies the combined monitor set.
func Overall(categories []pulse.Category) Status {
	var all []pulse.Monitor
	for _, c := range categories {
		all = append(all, c.Monitors...)
	}
	return Classify(all)
}

func statusEmoji(s Status) string {
	switch s {
	case StatusOperational:
		return "✅"
	case StatusOutage:
		return "❌"
	default:
		return "⚠️"
	}
}

func monitorEmoji(state pulse.MonitorState) string {
	if state == pulse.StateUp {
		return "🟢"
	}
	return "🔴"
}
