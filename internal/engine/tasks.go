package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"storyline/internal/domain"
	"storyline/internal/events"
)

// TaskCreateOptions are parameters for creating a task under a story.
type TaskCreateOptions struct {
	StoryID     string
	Title       string
	Description string
	AssigneeID  string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalid("title", "is required")
	}
	actorID := actorOrDefault(opts.ActorID)
	now := e.timestamp()
	t := domain.Task{
		ID:          uuid.NewString(),
		StoryID:     opts.StoryID,
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Status:      domain.TaskTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if a := strings.TrimSpace(opts.AssigneeID); a != "" {
		t.AssigneeID = &a
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetStoryTx(ctx, tx, opts.StoryID); err != nil {
			return err
		}
		if err := e.ensureActors(ctx, tx, now, actorID, t.AssigneeID); err != nil {
			return err
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return e.eventWriter().Append(ctx, tx, events.TaskCreated, "task", t.ID, actorID, events.EventPayload{
			"story_id": t.StoryID,
			"title":    t.Title,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, actorID string) (domain.Task, error) {
	if !status.IsValid() {
		return domain.Task{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return e.mutateTask(ctx, taskID, actorOrDefault(actorID), events.TaskStatusChanged, func(t *domain.Task) events.EventPayload {
		from := t.Status
		t.Status = status
		return events.EventPayload{"from": string(from), "to": string(status)}
	})
}

// AssignTask sets the task assignee. An empty assigneeID unassigns the task.
func (e Engine) AssignTask(ctx context.Context, taskID, assigneeID, actorID string) (domain.Task, error) {
	assignee := strings.TrimSpace(assigneeID)
	return e.mutateTask(ctx, taskID, actorOrDefault(actorID), events.TaskAssigned, func(t *domain.Task) events.EventPayload {
		if assignee == "" {
			t.AssigneeID = nil
		} else {
			t.AssigneeID = &assignee
		}
		return events.EventPayload{"assignee_id": assignee}
	})
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	actorID = actorOrDefault(actorID)
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.EnsureActor(ctx, tx, actorID, e.timestamp()); err != nil {
			return fmt.Errorf("ensure actor: %w", err)
		}
		if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, events.TaskDeleted, "task", taskID, actorID, nil)
	})
}

func (e Engine) mutateTask(ctx context.Context, taskID, actorID, evtType string, fn func(t *domain.Task) events.EventPayload) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	payload := fn(&t)
	t.UpdatedAt = e.timestamp()
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.ensureActors(ctx, tx, t.UpdatedAt, actorID, t.AssigneeID); err != nil {
			return err
		}
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		payload["story_id"] = t.StoryID
		return e.eventWriter().Append(ctx, tx, evtType, "task", t.ID, actorID, payload)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) ensureActors(ctx context.Context, tx *sql.Tx, now, actorID string, assignee *string) error {
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	if assignee != nil && *assignee != "" {
		if err := e.Repo.EnsureActor(ctx, tx, *assignee, now); err != nil {
			return fmt.Errorf("ensure assignee: %w", err)
		}
	}
	return nil
}
