package domain

type Story struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Status            Status `json:"status"`
	SpecificationText string `json:"specification_text,omitempty"`
	DesignReference   string `json:"design_reference,omitempty"`
	CreatorID         string `json:"creator_id"`
	AssigneeID        string `json:"assignee_id"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

// HasSpecification reports whether the story already carries a generated specification.
func (s Story) HasSpecification() bool {
	return s.SpecificationText != ""
}

type Task struct {
	ID          string     `json:"id"`
	StoryID     string     `json:"story_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

type Actor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// StoryActivity is a recently touched story as shown on the dashboard.
type StoryActivity struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    Status `json:"status"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type SpecificationCoverage struct {
	WithSpecification    int     `json:"with_specification"`
	WithoutSpecification int     `json:"without_specification"`
	TotalStories         int     `json:"total_stories"`
	CoveragePercentage   float64 `json:"coverage_percentage"`
}

type DashboardSummary struct {
	Buckets        map[string]int        `json:"buckets"`
	StatusCounts   map[Status]int        `json:"status_counts"`
	Coverage       SpecificationCoverage `json:"specification_coverage"`
	RecentActivity []StoryActivity       `json:"recent_activity"`
}
