package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"storyline/internal/blob"
	"storyline/internal/domain"
	"storyline/internal/events"
	"storyline/internal/repo"
)

// StoryCreateOptions are parameters for creating a story.
type StoryCreateOptions struct {
	Title           string
	Description     string
	AssigneeID      string
	DesignReference string
	ActorID         string
}

func (e Engine) CreateStory(ctx context.Context, opts StoryCreateOptions) (domain.Story, error) {
	title := strings.TrimSpace(opts.Title)
	description := strings.TrimSpace(opts.Description)
	if title == "" {
		return domain.Story{}, invalid("title", "is required")
	}
	if description == "" {
		return domain.Story{}, invalid("description", "is required")
	}
	ref, err := normalizeDesignReference(opts.DesignReference)
	if err != nil {
		return domain.Story{}, err
	}
	actorID := actorOrDefault(opts.ActorID)
	assignee := strings.TrimSpace(opts.AssigneeID)
	if assignee == "" {
		assignee = actorID
	}
	now := e.timestamp()
	s := domain.Story{
		ID:              uuid.NewString(),
		Title:           title,
		Description:     description,
		Status:          domain.StatusDraft,
		DesignReference: ref,
		CreatorID:       actorID,
		AssigneeID:      assignee,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{actorID, assignee} {
			if err := e.Repo.EnsureActor(ctx, tx, id, now); err != nil {
				return fmt.Errorf("ensure actor: %w", err)
			}
		}
		if err := e.Repo.InsertStory(ctx, tx, s); err != nil {
			return fmt.Errorf("insert story: %w", err)
		}
		return e.eventWriter().Append(ctx, tx, events.StoryCreated, "story", s.ID, actorID, events.EventPayload{
			"title":       s.Title,
			"assignee_id": s.AssigneeID,
		})
	})
	if err != nil {
		return domain.Story{}, err
	}
	return s, nil
}

// StoryUpdateOptions changes the editable text of a story. Nil fields are left alone.
type StoryUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	ActorID     string
}

func (e Engine) UpdateStory(ctx context.Context, opts StoryUpdateOptions) (domain.Story, error) {
	actorID := actorOrDefault(opts.ActorID)
	changed := map[string]any{}
	return e.mutateStory(ctx, opts.ID, actorID, events.StoryUpdated, func(s *domain.Story) (events.EventPayload, error) {
		if opts.Title != nil {
			t := strings.TrimSpace(*opts.Title)
			if t == "" {
				return nil, invalid("title", "must not be empty")
			}
			s.Title = t
			changed["title"] = t
		}
		if opts.Description != nil {
			d := strings.TrimSpace(*opts.Description)
			if d == "" {
				return nil, invalid("description", "must not be empty")
			}
			s.Description = d
			changed["description"] = true
		}
		return changed, nil
	})
}

func (e Engine) AssignStory(ctx context.Context, storyID, assigneeID, actorID string) (domain.Story, error) {
	assignee := strings.TrimSpace(assigneeID)
	if assignee == "" {
		return domain.Story{}, invalid("assignee_id", "is required")
	}
	actorID = actorOrDefault(actorID)
	return e.mutateStory(ctx, storyID, actorID, events.StoryAssigned, func(s *domain.Story) (events.EventPayload, error) {
		from := s.AssigneeID
		s.AssigneeID = assignee
		return events.EventPayload{"from": from, "to": assignee}, nil
	})
}

// SetDesignReference points a story at a design artifact. An empty ref clears it.
func (e Engine) SetDesignReference(ctx context.Context, storyID, ref, actorID string) (domain.Story, error) {
	ref, err := normalizeDesignReference(ref)
	if err != nil {
		return domain.Story{}, err
	}
	actorID = actorOrDefault(actorID)
	return e.mutateStory(ctx, storyID, actorID, events.StoryDesignSet, func(s *domain.Story) (events.EventPayload, error) {
		s.DesignReference = ref
		return events.EventPayload{"design_reference": ref}, nil
	})
}

// AttachDesign stores an uploaded artifact and references it from the story.
func (e Engine) AttachDesign(ctx context.Context, storyID, contentType string, data []byte, actorID string) (domain.Story, error) {
	if e.Designs == nil {
		return domain.Story{}, fmt.Errorf("design storage not configured")
	}
	exists, err := e.Repo.StoryExists(ctx, storyID)
	if err != nil {
		return domain.Story{}, err
	}
	if !exists {
		return domain.Story{}, fmt.Errorf("story %s: %w", storyID, repo.ErrNotFound)
	}
	ref, err := e.Designs.Put(contentType, data)
	if err != nil {
		return domain.Story{}, fmt.Errorf("store design: %w", err)
	}
	return e.SetDesignReference(ctx, storyID, ref, actorID)
}

func (e Engine) DeleteStory(ctx context.Context, storyID, actorID string) error {
	actorID = actorOrDefault(actorID)
	return e.withTx(ctx, func(tx *sql.Tx) error {
		s, err := e.Repo.GetStoryTx(ctx, tx, storyID)
		if err != nil {
			return err
		}
		if err := e.Repo.EnsureActor(ctx, tx, actorID, e.timestamp()); err != nil {
			return fmt.Errorf("ensure actor: %w", err)
		}
		if err := e.Repo.DeleteStory(ctx, tx, storyID); err != nil {
			return err
		}
		return e.eventWriter().Append(ctx, tx, events.StoryDeleted, "story", storyID, actorID, events.EventPayload{"title": s.Title})
	})
}

// mutateStory loads a story inside a transaction, applies fn, saves it and records evtType.
func (e Engine) mutateStory(ctx context.Context, storyID, actorID, evtType string, fn func(s *domain.Story) (events.EventPayload, error)) (domain.Story, error) {
	var out domain.Story
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		s, err := e.Repo.GetStoryTx(ctx, tx, storyID)
		if err != nil {
			return err
		}
		payload, err := fn(&s)
		if err != nil {
			return err
		}
		s.UpdatedAt = e.timestamp()
		for _, id := range []string{actorID, s.AssigneeID} {
			if err := e.Repo.EnsureActor(ctx, tx, id, s.UpdatedAt); err != nil {
				return fmt.Errorf("ensure actor: %w", err)
			}
		}
		if err := e.Repo.UpdateStory(ctx, tx, s); err != nil {
			return fmt.Errorf("update story: %w", err)
		}
		if err := e.eventWriter().Append(ctx, tx, evtType, "story", s.ID, actorID, payload); err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

// normalizeDesignReference accepts http(s) URLs and blob: references.
func normalizeDesignReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || blob.IsRef(ref) {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", invalid("design_reference", "must be an http(s) URL or an uploaded design")
	}
	return ref, nil
}
