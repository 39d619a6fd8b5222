package render

import (
	"fmt"
	"strings"
	"time"

	"pulsebot/internal/chat"
	"pulsebot/internal/pulse"
)

// Detailed lists every monitor grouped by category. This is the default
// layout.
func Detailed(snap *pulse.Snapshot, prefs Prefs) chat.Message {
	cats := categories(snap)
	if len(cats) == 0 {
		return noData(prefs)
	}

	var b strings.Builder
	overall := Overall(cats)
	fmt.Fprintf(&b, "%s %s\n", statusEmoji(overall), bold("Services of "+prefs.title()))

	for _, cat := range capped(cats, prefs.maxUnits()) {
		b.WriteString("\n")
		b.WriteString(bold(truncRunes(cat.Name, 64)))
		b.WriteString("\n")
		if len(cat.Monitors) == 0 {
			b.WriteString("  – no services –\n")
			continue
		}
		for _, m := range cat.Monitors {
			fmt.Fprintf(&b, "%s %s\n", monitorEmoji(m.State), esc(truncRunes(m.Name, 64)))
		}
	}
	appendOmitted(&b, len(cats), prefs.maxUnits())
	b.WriteString("\n")
	b.WriteString(footer(time.Now()))

	return chat.Message{Text: b.String(), Buttons: buttons(prefs), DisablePreview: true}
}

// Compact shows one line per category: a percentage, a block bar and
// up/down counts.
func Compact(snap *pulse.Snapshot, prefs Prefs) chat.Message {
	cats := categories(snap)
	if len(cats) == 0 {
		return noData(prefs)
	}

	var b strings.Builder
	overall := Overall(cats)
	fmt.Fprintf(&b, "%s %s\n\n", statusEmoji(overall), bold(prefs.title()))

	for _, cat := range capped(cats, prefs.maxUnits()) {
		up, total := countUp(cat.Monitors)
		pct := 100
		if total > 0 {
			pct = up * 100 / total
		}
		bar := strings.Repeat("█", up) + strings.Repeat("▓", total-up)
		fmt.Fprintf(&b, "%s\n<code>%3d%%</code> %s %d/%d operational\n",
			bold(truncRunes(cat.Name, 64)), pct, bar, up, total)
	}
	appendOmitted(&b, len(cats), prefs.maxUnits())
	b.WriteString("\n")
	b.WriteString(footer(time.Now()))

	return chat.Message{Text: b.String(), Buttons: buttons(prefs), DisablePreview: true}
}

// Overview hides individual monitors entirely: one status emoji and a
// ten-block bar per category.
func Overview(snap *pulse.Snapshot, prefs Prefs) chat.Message {
	cats := categories(snap)
	if len(cats) == 0 {
		return noData(prefs)
	}

	var b strings.Builder
	overall := Overall(cats)
	fmt.Fprintf(&b, "%s %s — overview\n\n", statusEmoji(overall), bold(prefs.title()))

	for _, cat := range capped(cats, prefs.maxUnits()) {
		st := Classify(cat.Monitors)
		up, total := countUp(cat.Monitors)
		fmt.Fprintf(&b, "%s %s\n%s %d/%d services up\n",
			statusEmoji(st), bold(truncRunes(cat.Name, 64)), blockBar(up, total), up, total)
	}
	appendOmitted(&b, len(cats), prefs.maxUnits())
	b.WriteString("\n")
	b.WriteString(footer(time.Now()))

	return chat.Message{Text: b.String(), Buttons: buttons(prefs), DisablePreview: true}
}

// List renders each category as its own titled section with per-monitor
// state words, the closest fit to a multi-embed page.
func List(snap *pulse.Snapshot, prefs Prefs) chat.Message {
	cats := categories(snap)
	if len(cats) == 0 {
		return noData(prefs)
	}

	var b strings.Builder
	for i, cat := range capped(cats, prefs.maxUnits()) {
		if i > 0 {
			b.WriteString("\n")
		}
		st := Classify(cat.Monitors)
		up, total := countUp(cat.Monitors)
		fmt.Fprintf(&b, "%s %s — %d/%d operational\n", statusEmoji(st), bold(truncRunes(cat.Name, 64)), up, total)
		for _, m := range cat.Monitors {
			word := "operational"
			if m.State == pulse.StateDown {
				word = "down"
			}
			fmt.Fprintf(&b, "%s %s — %s\n", monitorEmoji(m.State), esc(truncRunes(m.Name, 64)), word)
		}
	}
	appendOmitted(&b, len(cats), prefs.maxUnits())
	b.WriteString("\n")
	b.WriteString(footer(time.Now()))

	return chat.Message{Text: b.String(), Buttons: buttons(prefs), DisablePreview: true}
}

func categories(snap *pulse.Snapshot) []pulse.Category {
	if snap == nil {
		return nil
	}
	return snap.Categories
}

func capped(cats []pulse.Category, n int) []pulse.Category {
	if len(cats) > n {
		return cats[:n]
	}
	return cats
}

func appendOmitted(b *strings.Builder, total, max int) {
	if total > max {
		fmt.Fprintf(b, "\n<i>… and %d more categories</i>\n", total-max)
	}
}

func countUp(monitors []pulse.Monitor) (up, total int) {
	for _, m := range monitors {
		if m.State == pulse.StateUp {
			up++
		}
	}
	return up, len(monitors)
}

func blockBar(up, total int) string {
	const width = 10
	if total == 0 {
		return strings.Repeat("🟩", width)
	}
	filled := up * width / total
	switch {
	case up == total:
		return strings.Repeat("🟩", width)
	case up == 0:
		return strings.Repeat("🟥", width)
	default:
		return strings.Repeat("🟩", filled) + strings.Repeat("🟨", width-filled)
	}
}
