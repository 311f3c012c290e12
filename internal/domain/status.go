package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle stage of a story. The string values are the wire and database form.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusReadyForRefinement Status = "READY_FOR_REFINEMENT"
	StatusRefined            Status = "REFINED"
	StatusDevelopment        Status = "DEVELOPMENT"
	StatusReadyForTesting    Status = "READY_FOR_TESTING"
	StatusReadyForProduction Status = "READY_FOR_PRODUCTION"
)

var statusOrder = []Status{
	StatusDraft,
	StatusReadyForRefinement,
	StatusRefined,
	StatusDevelopment,
	StatusReadyForTesting,
	StatusReadyForProduction,
}

var statusLabels = map[Status]string{
	StatusDraft:              "Draft",
	StatusReadyForRefinement: "Ready for Refinement",
	StatusRefined:            "Refined",
	StatusDevelopment:        "Development",
	StatusReadyForTesting:    "Ready for Testing",
	StatusReadyForProduction: "Ready for Production",
}

// Statuses returns every story status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label is the human readable name shown in tables and the dashboard.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Index is the position of s in the lifecycle, or -1 when s is unknown.
func (s Status) Index() int {
	for i, v := range statusOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// TriggersGeneration reports whether moving from s to next is the refinement hand-off
// that materializes a specification.
func (s Status) TriggersGeneration(next Status) bool {
	return s == StatusDraft && next == StatusReadyForRefinement
}

// ParseStatus accepts the canonical value case-insensitively.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid status %q", v)
	}
	return s, nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// TaskStatus is the progress state of a task inside a story.
type TaskStatus string

const (
	TaskTodo        TaskStatus = "TODO"
	TaskDevelopment TaskStatus = "DEVELOPMENT"
	TaskComplete    TaskStatus = "COMPLETE"
)

func (s TaskStatus) String() string {
	return string(s)
}

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskTodo, TaskDevelopment, TaskComplete:
		return true
	}
	return false
}

func ParseTaskStatus(v string) (TaskStatus, error) {
	s := TaskStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid task status %q", v)
	}
	return s, nil
}
