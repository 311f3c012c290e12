package engine

import (
	"context"
	"database/sql"
	"fmt"

	"storyline/internal/domain"
	"storyline/internal/events"
	"storyline/internal/metrics"
	"storyline/internal/synth"
)

// Source records where a generated artifact came from.
type Source string

const (
	SourceExternal Source = "external"
	SourceFallback Source = "fallback"
)

// Outcome is a generated artifact together with its provenance. Text is never empty.
type Outcome struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
}

// TransitionStatus moves a story to newStatus. Leaving DRAFT for READY_FOR_REFINEMENT without a
// specification materializes one first, remotely when possible and locally otherwise; the status
// and the specification are then committed together. Every other move is a plain status write.
func (e Engine) TransitionStatus(ctx context.Context, storyID string, newStatus domain.Status, actorID string) (domain.Story, error) {
	if !newStatus.IsValid() {
		return domain.Story{}, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	actorID = actorOrDefault(actorID)
	story, err := e.Repo.GetStory(ctx, storyID)
	if err != nil {
		return domain.Story{}, err
	}

	// Generation runs outside the transaction.
	var outcome *Outcome
	if story.Status.TriggersGeneration(newStatus) && !story.HasSpecification() {
		o := e.materializeSpecification(ctx, story)
		outcome = &o
	}

	var updated domain.Story
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetStoryTx(ctx, tx, storyID)
		if err != nil {
			return err
		}
		from := current.Status
		current.Status = newStatus
		current.UpdatedAt = e.timestamp()
		if outcome != nil && current.HasSpecification() {
			// A concurrent transition got there first; its specification wins.
			outcome = nil
		}
		if outcome != nil {
			current.SpecificationText = outcome.Text
		}
		if err := e.Repo.EnsureActor(ctx, tx, actorID, current.UpdatedAt); err != nil {
			return fmt.Errorf("ensure actor: %w", err)
		}
		if err := e.Repo.UpdateStory(ctx, tx, current); err != nil {
			return fmt.Errorf("update story: %w", err)
		}
		w := e.eventWriter()
		if err := w.Append(ctx, tx, events.StoryStatusChanged, "story", current.ID, actorID, events.EventPayload{
			"from": string(from),
			"to":   string(newStatus),
		}); err != nil {
			return err
		}
		if outcome != nil {
			if err := w.Append(ctx, tx, events.StorySpecificationGenerated, "story", current.ID, actorID, events.EventPayload{
				"source": string(outcome.Source),
				"chars":  len(outcome.Text),
			}); err != nil {
				return err
			}
		}
		updated = current
		return nil
	})
	if err != nil {
		return domain.Story{}, err
	}
	e.Metrics.ObserveTransition(string(story.Status), string(newStatus))
	if outcome != nil {
		e.Metrics.ObserveArtifact(metrics.KindSpecification, string(outcome.Source))
		e.logger().Info("specification materialized",
			"story_id", updated.ID,
			"source", outcome.Source)
	}
	return updated, nil
}

func (e Engine) materializeSpecification(ctx context.Context, story domain.Story) Outcome {
	if e.Generator != nil {
		if res := e.Generator.GenerateSpecification(ctx, story.Title, story.Description); res.OK() {
			return Outcome{Source: SourceExternal, Text: res.Text}
		}
	}
	return Outcome{Source: SourceFallback, Text: synth.SynthesizeSpecification(story.Title, story.Description)}
}

// ElaborateFromDesign drafts a requirements paragraph from the story's design artifact. The story
// itself is not modified; only the provenance is recorded in the event log.
func (e Engine) ElaborateFromDesign(ctx context.Context, storyID, actorID string) (domain.Story, Outcome, error) {
	actorID = actorOrDefault(actorID)
	story, err := e.Repo.GetStory(ctx, storyID)
	if err != nil {
		return domain.Story{}, Outcome{}, err
	}
	if story.DesignReference == "" {
		return domain.Story{}, Outcome{}, fmt.Errorf("%w: story %s has no design reference", ErrPreconditionFailed, storyID)
	}

	outcome := Outcome{Source: SourceFallback, Text: synth.FallbackDesignAnalysis()}
	if e.Generator != nil {
		if res := e.Generator.DescribeDesign(ctx, story.DesignReference); res.OK() {
			outcome = Outcome{Source: SourceExternal, Text: res.Text}
		}
	}

	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.EnsureActor(ctx, tx, actorID, e.timestamp()); err != nil {
			return fmt.Errorf("ensure actor: %w", err)
		}
		return e.eventWriter().Append(ctx, tx, events.StoryDesignElaborated, "story", story.ID, actorID, events.EventPayload{
			"source":           string(outcome.Source),
			"design_reference": story.DesignReference,
			"chars":            len(outcome.Text),
		})
	})
	if err != nil {
		return domain.Story{}, Outcome{}, err
	}
	e.Metrics.ObserveArtifact(metrics.KindDesign, string(outcome.Source))
	return story, outcome, nil
}
