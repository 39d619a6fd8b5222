// Package pulse is the client for Pulse status-page instances. It issues the
// category/monitor and alert fetches, normalizes the wire shapes and maps
// every transport failure to a typed FetchError.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// VersionHeader is the response header every Pulse instance sets on its
// root. Its absence means the endpoint is no longer (or never was) a Pulse
// page, which the breaker treats distinctly from transient failure.
const VersionHeader = "Pulse-Version"

const perPage = 100

type Client struct {
	http *http.Client
	log  zerolog.Logger
}

func NewClient(timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Snapshot fetches categories (with nested monitors) and alerts from one
// source. The error result is nil on success; a source listing zero
// categories is a successful empty snapshot, not a failure.
func (c *Client) Snapshot(ctx context.Context, baseURL string) (*Snapshot, *FetchError) {
	cats, ferr := c.fetchCategories(ctx, baseURL)
	if ferr != nil {
		return nil, ferr
	}
	alerts, ferr := c.fetchAlerts(ctx, baseURL)
	if ferr != nil {
		return nil, ferr
	}
	c.log.Debug().Str("url", baseURL).Int("categories", len(cats)).Int("alerts", len(alerts)).Msg("snapshot fetched")
	return &Snapshot{Categories: cats, Alerts: alerts}, nil
}

// VerifyCompatible probes the instance root and checks for the protocol
// marker header. It deliberately ignores the body: the sole question is
// "is this still a Pulse page".
func (c *Client) VerifyCompatible(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()
	return resp.Header.Get(VersionHeader) != ""
}

func (c *Client) fetchCategories(ctx context.Context, baseURL string) ([]Category, *FetchError) {
	var raw []wireCategory
	if ferr := c.getList(ctx, baseURL, "v3", "categories", &raw); ferr != nil {
		return nil, ferr
	}
	cats := make([]Category, 0, len(raw))
	for _, wc := range raw {
		monitors, ferr := c.fetchMonitors(ctx, baseURL, wc.ID)
		if ferr != nil {
			return nil, ferr
		}
		cats = append(cats, Category{ID: wc.ID, Name: wc.Name, Monitors: monitors})
	}
	return cats, nil
}

func (c *Client) fetchMonitors(ctx context.Context, baseURL string, categoryID int64) ([]Monitor, *FetchError) {
	var raw []wireMonitor
	path := "category/" + strconv.FormatInt(categoryID, 10) + "/monitors"
	if ferr := c.getList(ctx, baseURL, "v3", path, &raw); ferr != nil {
		return nil, ferr
	}
	monitors := make([]Monitor, 0, len(raw))
	for _, wm := range raw {
		monitors = append(monitors, Monitor{ID: wm.ID, Name: wm.Name, State: normalizeState(wm.State)})
	}
	return monitors, nil
}

func (c *Client) fetchAlerts(ctx context.Context, baseURL string) ([]Alert, *FetchError) {
	var raw []wireAlert
	if ferr := c.getList(ctx, baseURL, "v1", "alerts?all=false", &raw); ferr != nil {
		return nil, ferr
	}
	alerts := make([]Alert, 0, len(raw))
	for _, wa := range raw {
		alerts = append(alerts, wa.normalize())
	}
	return alerts, nil
}

// getList fetches {base}/api/{version}/{path} and decodes a list that the
// upstream serves either bare ([...]) or wrapped ({"data": [...]}). The
// ambiguity is resolved here and nowhere else.
func (c *Client) getList(ctx context.Context, baseURL, version, path string, out any) *FetchError {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	url := baseURL + "/api/" + version + "/" + path + sep + "perPage=" + strconv.Itoa(perPage)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{Kind: ErrBadResponse, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{Kind: ErrBadResponse, Message: fmt.Sprintf("GET %s: status %d", url, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return classifyTransport(err)
	}
	if err := decodeList(body, out); err != nil {
		return &FetchError{Kind: ErrBadResponse, Message: fmt.Sprintf("GET %s: %v", url, err)}
	}
	return nil
}

// decodeList accepts either a bare JSON array or an envelope with a "data"
// array (including an error envelope carrying an empty list).
func decodeList(body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(body, out)
}

func classifyTransport(err error) *FetchError {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchError{Kind: ErrTimeout, Message: err.Error()}
	case errors.As(err, &nerr) && nerr.Timeout():
		return &FetchError{Kind: ErrTimeout, Message: err.Error()}
	default:
		return &FetchError{Kind: ErrUnreachable, Message: err.Error()}
	}
}

func normalizeState(s string) MonitorState {
	if s == "AVAILABLE" {
		return StateUp
	}
	return StateDown
}

type wireCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type wireMonitor struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type wireAlert struct {
	ID           int64       `json:"id"`
	Title        string      `json:"title"`
	Message      string      `json:"message"`
	Link         string      `json:"link"`
	Type         string      `json:"type"`
	CreatedAt    time.Time   `json:"created_at"`
	ScheduledFor *time.Time  `json:"scheduled_for"`
	Alerts       []wireAlert `json:"alerts"`
}

func (wa wireAlert) normalize() Alert {
	a := Alert{
		ID:        wa.ID,
		Title:     wa.Title,
		BodyHTML:  wa.Message,
		Link:      wa.Link,
		Severity:  normalizeSeverity(wa.Type),
		CreatedAt: wa.CreatedAt,
	}
	if wa.ScheduledFor != nil {
		a.ScheduledFor = *wa.ScheduledFor
	}
	for _, child := range wa.Alerts {
		a.Children = append(a.Children, child.normalize())
	}
	return a
}

func normalizeSeverity(s string) Severity {
	switch s {
	case "INCIDENT":
		return SeverityIncident
	case "MAINTENANCE":
		return SeverityMaintenance
	default:
		return SeverityInfo
	}
}
