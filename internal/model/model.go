// Package model holds the persistent domain entities shared by storage,
// rendering and delivery. All mutation goes through the storage API; these
// types carry no behavior beyond small pure helpers.
package model

import "time"

// PauseReason explains why a source was taken out of the poll rotation.
type PauseReason string

const (
	PauseNone          PauseReason = ""
	PauseTimeout       PauseReason = "TIMEOUT"
	PauseNotCompatible PauseReason = "NOT_COMPATIBLE"
	PauseManual        PauseReason = "MANUAL"
)

// Source is one external status-page instance, identified by normalized URL.
// The failure-tracking fields belong to the pause manager; nothing else
// writes them.
type Source struct {
	ID                  int64
	URL                 string
	Name                string
	Paused              bool
	PauseReason         PauseReason
	ConsecutiveFailures int
	LastFailureAt       time.Time // zero when the streak is clean
}

// EventFilter selects which update categories a subscription receives.
type EventFilter struct {
	Status bool
	News   bool
}

// LayoutKey names a rendering strategy for status messages.
type LayoutKey string

const (
	LayoutDetailed LayoutKey = "DETAILED"
	LayoutCompact  LayoutKey = "COMPACT"
	LayoutOverview LayoutKey = "OVERVIEW"
	LayoutList     LayoutKey = "LIST"
)

// ValidLayout reports whether key names a known layout.
func ValidLayout(key LayoutKey) bool {
	switch key {
	case LayoutDetailed, LayoutCompact, LayoutOverview, LayoutList:
		return true
	}
	return false
}

// Subscription is one chat's opt-in to receive updates from one source.
// Unique on (chat, source, locale): the same chat may subscribe to the same
// source in different locales, but not twice in the same one.
type Subscription struct {
	ID        int64
	ChatID    int64
	SourceID  int64
	Locale    string
	Layout    LayoutKey
	Events    EventFilter
	CreatedAt time.Time
}

// Category tags the logical content unit a delivered message represents.
type Category string

const (
	CategoryStatus Category = "STATUS"
	CategoryNews   Category = "NEWS"
	CategoryAlert  Category = "ALERT"
)

// MessageRef binds a logical content unit to the live chat message that
// renders it. ItemID is empty for STATUS, which has exactly one live message
// per subscription. Unique on (subscription, category, item).
type MessageRef struct {
	ID             int64
	SubscriptionID int64
	Category       Category
	ItemID         string
	MessageID      int
}

// CustomLink is an operator-defined extra button attached to a
// subscription's status message. Ordered by Position.
type CustomLink struct {
	ID             int64
	SubscriptionID int64
	Label          string
	URL            string
	Emoji          string
	Position       int
}
