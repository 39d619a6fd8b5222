package pulse

import "time"

// MonitorState is the normalized two-state health of a single monitor.
// Upstream wire values ("AVAILABLE"/"UNAVAILABLE") are mapped at the client
// boundary and never leak past it.
type MonitorState string

const (
	StateUp   MonitorState = "UP"
	StateDown MonitorState = "DOWN"
)

type Monitor struct {
	ID    int64
	Name  string
	State MonitorState
}

type Category struct {
	ID       int64
	Name     string
	Monitors []Monitor
}

// Severity classifies an alert item.
type Severity string

const (
	SeverityIncident    Severity = "INCIDENT"
	SeverityMaintenance Severity = "MAINTENANCE"
	SeverityInfo        Severity = "INFO"
)

// Alert is one news/incident item, possibly with follow-up children.
type Alert struct {
	ID           int64
	Title        string
	BodyHTML     string
	Link         string
	Severity     Severity
	CreatedAt    time.Time
	ScheduledFor time.Time // zero unless a maintenance window is announced
	Children     []Alert
}

// Snapshot is one fetch cycle's normalized view of a source. A snapshot with
// zero categories is valid: it means the page exists but lists nothing.
type Snapshot struct {
	Categories []Category
	Alerts     []Alert
}

// ErrorKind partitions fetch failures by how callers should react.
type ErrorKind string

const (
	ErrTimeout       ErrorKind = "TIMEOUT"
	ErrUnreachable   ErrorKind = "UNREACHABLE"
	ErrBadResponse   ErrorKind = "BAD_RESPONSE"
	ErrNotCompatible ErrorKind = "NOT_COMPATIBLE"
)

// FetchError is the typed outcome for every expected failure mode. The
// client never returns raw transport errors.
type FetchError struct {
	Kind    ErrorKind
	Message string
}

func (e *FetchError) Error() string {
	return string(e.Kind) + ": " + e.Message
}
