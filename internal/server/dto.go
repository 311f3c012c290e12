package server

import (
	"encoding/json"

	"storyline/internal/domain"
	"storyline/internal/engine"
)

// Request payloads

type CreateStoryRequest struct {
	Title           string  `json:"title" minLength:"1"`
	Description     string  `json:"description" minLength:"1"`
	AssigneeID      *string `json:"assignee_id,omitempty"`
	DesignReference *string `json:"design_reference,omitempty"`
}

type UpdateStoryRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type StatusChangeRequest struct {
	Status string `json:"status" enum:"DRAFT,READY_FOR_REFINEMENT,REFINED,DEVELOPMENT,READY_FOR_TESTING,READY_FOR_PRODUCTION"`
}

type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type DesignReferenceRequest struct {
	DesignReference string `json:"design_reference" doc:"http(s) URL of the design artifact; empty clears it"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" minLength:"1"`
	Description *string `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type TaskStatusRequest struct {
	Status string `json:"status" enum:"TODO,DEVELOPMENT,COMPLETE"`
}

type TaskAssignRequest struct {
	AssigneeID *string `json:"assignee_id,omitempty" doc:"absent or empty unassigns the task"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Responses

type StoryResponse struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Status            domain.Status `json:"status"`
	StatusLabel       string        `json:"status_label"`
	SpecificationText *string       `json:"specification_text"`
	DesignReference   *string       `json:"design_reference"`
	CreatorID         string        `json:"creator_id"`
	AssigneeID        string        `json:"assignee_id"`
	CreatedAt         string        `json:"created_at" format:"date-time"`
	UpdatedAt         string        `json:"updated_at" format:"date-time"`
}

type paginatedStories struct {
	Items      []StoryResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type DesignAnalysisResponse struct {
	Story                StoryResponse `json:"story"`
	GeneratedDescription string        `json:"generated_description"`
	Source               engine.Source `json:"source" enum:"external,fallback"`
}

type TaskResponse struct {
	ID          string            `json:"id"`
	StoryID     string            `json:"story_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.TaskStatus `json:"status"`
	AssigneeID  *string           `json:"assignee_id"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
	UpdatedAt   string            `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func storyResponse(s domain.Story) StoryResponse {
	return StoryResponse{
		ID:                s.ID,
		Title:             s.Title,
		Description:       s.Description,
		Status:            s.Status,
		StatusLabel:       s.Status.Label(),
		SpecificationText: optional(s.SpecificationText),
		DesignReference:   optional(s.DesignReference),
		CreatorID:         s.CreatorID,
		AssigneeID:        s.AssigneeID,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		StoryID:     t.StoryID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		AssigneeID:  t.AssigneeID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}
