// Package render turns a fetched snapshot into message payloads. Every
// render function is pure and total: bad or empty input produces an explicit
// "no data" payload, never an error and never an empty message.
package render

import (
	"fmt"
	"time"

	"pulsebot/internal/chat"
	"pulsebot/internal/model"
	"pulsebot/internal/pulse"
)

// MaxUnits is the hard cap of content sections per status message,
// mirroring the platform's per-message embed limit.
const MaxUnits = 10

// Prefs carries everything subscription-specific a layout may use. Locale
// is threaded explicitly; there is no process-wide locale state.
type Prefs struct {
	SourceName string
	SourceURL  string
	Locale     string
	MaxUnits   int
	MaxText    int
	Links      []model.CustomLink
}

func (p Prefs) maxUnits() int {
	if p.MaxUnits <= 0 || p.MaxUnits > MaxUnits {
		return MaxUnits
	}
	return p.MaxUnits
}

func (p Prefs) maxText() int {
	if p.MaxText <= 0 {
		return 500
	}
	return p.MaxText
}

func (p Prefs) title() string {
	if p.SourceName != "" {
		return p.SourceName
	}
	return p.SourceURL
}

// Fn renders the status overview for one subscription.
type Fn func(snap *pulse.Snapshot, prefs Prefs) chat.Message

// Layout returns the render function for a layout key. Unknown keys fall
// back to the detailed layout.
func Layout(key model.LayoutKey) Fn {
	switch key {
	case model.LayoutCompact:
		return Compact
	case model.LayoutOverview:
		return Overview
	case model.LayoutList:
		return List
	default:
		return Detailed
	}
}

// buttons builds the status message keyboard: the status page itself first,
// then the subscription's custom links in their configured order. Custom
// emoji references cannot appear in button labels and are omitted there.
func buttons(prefs Prefs) []chat.Button {
	out := []chat.Button{{Label: "🌐 " + truncRunes(prefs.title(), 40), URL: prefs.SourceURL}}
	for _, l := range prefs.Links {
		label := l.Label
		if model.ClassifyEmoji(l.Emoji) == model.EmojiUnicode {
			label = l.Emoji + " " + label
		}
		out = append(out, chat.Button{Label: truncRunes(label, 40), URL: l.URL})
	}
	return out
}

func noData(prefs Prefs) chat.Message {
	return chat.Message{
		Text: fmt.Sprintf("%s\n\nNo services are listed on this status page yet.",
			bold("Services of "+prefs.title())),
		Buttons:        buttons(prefs),
		DisablePreview: true,
	}
}

func footer(now time.Time) string {
	return "<i>Updated " + now.UTC().Format("2006-01-02 15:04 UTC") + "</i>"
}
