package reviewdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Reviewdesk HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// FileRef points at an externally hosted file.
type FileRef struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Name         string `json:"name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
}

// Deliverable represents the API deliverable model.
type Deliverable struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
	Files       []FileRef `json:"files"`
	SubmittedAt *string   `json:"submitted_at,omitempty"`
	ApprovedAt  *string   `json:"approved_at,omitempty"`
	DeliveredAt *string   `json:"delivered_at,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// ReviewNote is one entry in a deliverable's review history.
type ReviewNote struct {
	ID            string `json:"id"`
	DeliverableID string `json:"deliverable_id"`
	Version       int    `json:"version"`
	Action        string `json:"action"`
	ActorID       string `json:"actor_id"`
	ActorRole     string `json:"actor_role"`
	Note          string `json:"note"`
	CreatedAt     string `json:"created_at"`
}

// InboxItem is a deliverable waiting on the caller.
type InboxItem struct {
	Deliverable Deliverable `json:"deliverable"`
	Reason      string      `json:"reason"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedDeliverables wraps list responses with cursors.
type PaginatedDeliverables struct {
	Items      []Deliverable `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateDeliverable creates a deliverable in draft.
func (c *Client) CreateDeliverable(ctx context.Context, title, deliverableType string, files []FileRef) (Deliverable, error) {
	body := map[string]any{
		"title": title,
		"type":  deliverableType,
	}
	if len(files) > 0 {
		body["files"] = files
	}
	var resp Deliverable
	err := c.do(ctx, http.MethodPost, c.projectPath("deliverables"), body, &resp)
	return resp, err
}

// GetDeliverable fetches a deliverable by id.
func (c *Client) GetDeliverable(ctx context.Context, id string) (Deliverable, error) {
	var resp Deliverable
	err := c.do(ctx, http.MethodGet, "v0/deliverables/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListDeliverables returns deliverables for the client's project.
func (c *Client) ListDeliverables(ctx context.Context, status string, limit int) ([]Deliverable, error) {
	page, err := c.ListDeliverablesPage(ctx, status, limit, "")
	return page.Items, err
}

// ListDeliverablesPage returns a paginated deliverable listing.
func (c *Client) ListDeliverablesPage(ctx context.Context, status string, limit int, cursor string) (PaginatedDeliverables, error) {
	q := url.Values{}
	if c.ProjectID != "" {
		q.Set("project_id", c.ProjectID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/deliverables"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedDeliverables
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Submit sends a deliverable out for client review.
func (c *Client) Submit(ctx context.Context, id string) (Deliverable, error) {
	return c.transition(ctx, id, "submit", nil)
}

// Approve approves a deliverable under review. message is optional.
func (c *Client) Approve(ctx context.Context, id, message string) (Deliverable, error) {
	var body map[string]any
	if message != "" {
		body = map[string]any{"message": message}
	}
	return c.transition(ctx, id, "approve", body)
}

// RequestChanges sends a deliverable back for revisions. Feedback is required.
func (c *Client) RequestChanges(ctx context.Context, id, feedback string) (Deliverable, error) {
	return c.transition(ctx, id, "request-changes", map[string]any{"feedback": feedback})
}

// Deliver marks an approved deliverable as delivered, appending any final files.
func (c *Client) Deliver(ctx context.Context, id, deliveryNotes string, finalFiles []FileRef) (Deliverable, error) {
	body := map[string]any{}
	if deliveryNotes != "" {
		body["delivery_notes"] = deliveryNotes
	}
	if len(finalFiles) > 0 {
		body["final_files"] = finalFiles
	}
	return c.transition(ctx, id, "deliver", body)
}

func (c *Client) transition(ctx context.Context, id, action string, body map[string]any) (Deliverable, error) {
	if body == nil {
		body = map[string]any{}
	}
	var resp Deliverable
	endpoint := fmt.Sprintf("v0/deliverables/%s/%s", url.PathEscape(id), action)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Notes returns the review history for a deliverable, newest first.
func (c *Client) Notes(ctx context.Context, id string) ([]ReviewNote, error) {
	var resp []ReviewNote
	endpoint := fmt.Sprintf("v0/deliverables/%s/notes", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Inbox returns deliverables waiting on the caller's role.
func (c *Client) Inbox(ctx context.Context) ([]InboxItem, error) {
	var resp []InboxItem
	endpoint := "v0/inbox"
	if c.ProjectID != "" {
		endpoint += "?project_id=" + url.QueryEscape(c.ProjectID)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent project events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
