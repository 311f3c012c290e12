package storylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Storyline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		// Refinement may wait on the AI provider.
		Timeout: 30 * time.Second,
	}
}

// Story represents the API story model.
type Story struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Status            string  `json:"status"`
	StatusLabel       string  `json:"status_label"`
	SpecificationText *string `json:"specification_text"`
	DesignReference   *string `json:"design_reference"`
	CreatorID         string  `json:"creator_id"`
	AssigneeID        string  `json:"assignee_id"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type Task struct {
	ID          string  `json:"id"`
	StoryID     string  `json:"story_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	AssigneeID  *string `json:"assignee_id"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// DesignAnalysis is the result of describing a story's design.
type DesignAnalysis struct {
	Story                Story  `json:"story"`
	GeneratedDescription string `json:"generated_description"`
	Source               string `json:"source"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type Dashboard struct {
	Buckets      map[string]int `json:"buckets"`
	StatusCounts map[string]int `json:"status_counts"`
	Coverage     struct {
		WithSpecification    int     `json:"with_specification"`
		WithoutSpecification int     `json:"without_specification"`
		TotalStories         int     `json:"total_stories"`
		CoveragePercentage   float64 `json:"coverage_percentage"`
	} `json:"specification_coverage"`
	RecentActivity []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Status    string `json:"status"`
		UpdatedAt string `json:"updated_at"`
	} `json:"recent_activity"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type PaginatedStories struct {
	Items      []Story `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// StoryQuery filters ListStories. Zero values are ignored.
type StoryQuery struct {
	Status     string
	Keyword    string
	AssigneeID string
	Limit      int
	Cursor     string
}

// CreateStory creates a story in DRAFT.
func (c *Client) CreateStory(ctx context.Context, title, description string) (Story, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	var resp Story
	err := c.do(ctx, http.MethodPost, "stories", body, &resp)
	return resp, err
}

func (c *Client) GetStory(ctx context.Context, id string) (Story, error) {
	var resp Story
	err := c.do(ctx, http.MethodGet, "stories/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListStories returns one page of stories, newest first.
func (c *Client) ListStories(ctx context.Context, q StoryQuery) (PaginatedStories, error) {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Keyword != "" {
		v.Set("keyword", q.Keyword)
	}
	if q.AssigneeID != "" {
		v.Set("assignee_id", q.AssigneeID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		v.Set("cursor", q.Cursor)
	}
	var resp PaginatedStories
	err := c.do(ctx, http.MethodGet, withQuery("stories", v), nil, &resp)
	return resp, err
}

// TransitionStory moves a story to status. The returned story carries the specification when one was generated.
func (c *Client) TransitionStory(ctx context.Context, id, status string) (Story, error) {
	var resp Story
	err := c.do(ctx, http.MethodPut, "stories/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// SetDesign points the story at a design URL. An empty ref clears it.
func (c *Client) SetDesign(ctx context.Context, id, ref string) (Story, error) {
	var resp Story
	err := c.do(ctx, http.MethodPut, "stories/"+url.PathEscape(id)+"/design", map[string]any{"design_reference": ref}, &resp)
	return resp, err
}

// UploadDesign sends an image as the story's design.
func (c *Client) UploadDesign(ctx context.Context, id, contentType string, data []byte) (Story, error) {
	var resp Story
	err := c.send(ctx, http.MethodPut, "stories/"+url.PathEscape(id)+"/design/upload", contentType, bytes.NewReader(data), &resp)
	return resp, err
}

func (c *Client) AnalyzeDesign(ctx context.Context, id string) (DesignAnalysis, error) {
	var resp DesignAnalysis
	err := c.do(ctx, http.MethodPost, "stories/"+url.PathEscape(id)+"/analyze-design", nil, &resp)
	return resp, err
}

// CreateTask adds a task to a story.
func (c *Client) CreateTask(ctx context.Context, storyID, title string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "stories/"+url.PathEscape(storyID)+"/tasks", map[string]any{"title": title}, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, storyID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "stories/"+url.PathEscape(storyID)+"/tasks", nil, &resp)
	return resp, err
}

func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard/summary", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", v), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
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
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}
