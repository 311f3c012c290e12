package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"storyline/internal/blob"
	"storyline/internal/domain"
	"storyline/internal/engine"
	"storyline/internal/repo"
)

type storyOutput struct {
	Body StoryResponse `json:"body"`
}

type storyIDInput struct {
	ID string `path:"id"`
}

func registerStories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "createStory",
		Method:        http.MethodPost,
		Path:          "/stories",
		Summary:       "Create a story in DRAFT",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateStoryRequest `json:"body"`
	}) (*storyOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		opts := engine.StoryCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ActorID:     actorID,
		}
		if input.Body.AssigneeID != nil {
			opts.AssigneeID = *input.Body.AssigneeID
		}
		if input.Body.DesignReference != nil {
			opts.DesignReference = *input.Body.DesignReference
		}
		s, err := e.CreateStory(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &storyOutput{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "listStories",
		Method:      http.MethodGet,
		Path:        "/stories",
		Summary:     "List stories, newest first",
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		Keyword    string `query:"keyword"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedStories `json:"body"`
	}, error) {
		var status domain.Status
		if input.Status != "" {
			parsed, err := domain.ParseStatus(input.Status)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			status = parsed
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.ListStories(ctx, repo.StoryFilters{
			Status:          status,
			Keyword:         input.Keyword,
			AssigneeID:      strings.TrimSpace(input.AssigneeID),
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) > limit {
			last := items[limit-1]
			next = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		res := make([]StoryResponse, 0, len(items))
		for _, s := range items {
			res = append(res, storyResponse(s))
		}
		return &struct {
			Body paginatedStories `json:"body"`
		}{Body: paginatedStories{Items: res, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getStory",
		Method:      http.MethodGet,
		Path:        "/stories/{id}",
		Summary:     "Get a story",
	}, func(ctx context.Context, input *storyIDInput) (*storyOutput, error) {
		s, err := e.Repo.GetStory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &storyOutput{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "updateStory",
		Method:      http.MethodPatch,
		Path:        "/stories/{id}",
		Summary:     "Edit story title or description",
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateStoryRequest `json:"body"`
	}) (*storyOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		s, err := e.UpdateStory(ctx, engine.StoryUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &storyOutput{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "deleteStory",
		Method:        http.MethodDelete,
		Path:          "/stories/{id}",
		Summary:       "Delete a story and its tasks",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *storyIDInput) (*struct{}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		if err := e.DeleteStory(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transitionStory",
		Method:      http.MethodPut,
		Path:        "/stories/{id}/status",
		Summary:     "Move a story to another status",
		Description: "Moving a story without a specification from DRAFT to READY_FOR_REFINEMENT generates one.",
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body StatusChangeRequest `json:"body"`
	}) (*storyOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		status, err := domain.ParseStatus(input.Body.Status)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		s, err := e.TransitionStatus(ctx, input.ID, status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &storyOutput{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assignStory",
		Method:      http.MethodPut,
		Path:        "/stories/{id}/assign",
		Summary:     "Reassign a story",
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*storyOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		s, err := e.AssignStory(ctx, input.ID, input.Body.AssigneeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &storyOutput{Body: storyResponse(s)}, nil
	})
}

func registerDesign(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "setStoryDesign",
		Method:      http.MethodPut,
		Path:        "/stories/{id}/design",
		Summary:     "Set or clear the design reference",
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body DesignReferenceRequest `json:"body"`
	}) (*storyOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		s, err := e.SetDesignReference(ctx, input.ID, input.Body.DesignReference, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &storyOutput{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "uploadStoryDesign",
		Method:       http.MethodPut,
		Path:         "/stories/{id}/design/upload",
		Summary:      "Upload a design image and reference it from the story",
		MaxBodyBytes: blob.MaxSize + 1,
	}, func(ctx context.Context, input *struct {
		ID          string `path:"id"`
		ContentType string `header:"Content-Type"`
		RawBody     []byte `contentType:"image/png"`
	}) (*storyOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		data := input.RawBody
		if len(data) == 0 {
			data = bodyBytes(ctx)
		}
		if len(data) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "empty upload", nil)
		}
		mediaType := strings.TrimSpace(strings.SplitN(input.ContentType, ";", 2)[0])
		s, err := e.AttachDesign(ctx, input.ID, mediaType, data, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &storyOutput{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analyzeStoryDesign",
		Method:      http.MethodPost,
		Path:        "/stories/{id}/analyze-design",
		Summary:     "Describe the referenced design",
		Description: "Returns a generated description of the design. The story itself is not modified.",
	}, func(ctx context.Context, input *storyIDInput) (*struct {
		Body DesignAnalysisResponse `json:"body"`
	}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		s, outcome, err := e.ElaborateFromDesign(ctx, input.ID, actorID)
		if err != nil {
			if errors.Is(err, engine.ErrPreconditionFailed) {
				return nil, newAPIError(http.StatusPreconditionFailed, "precondition_failed", "story has no design reference", nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body DesignAnalysisResponse `json:"body"`
		}{Body: DesignAnalysisResponse{
			Story:                storyResponse(s),
			GeneratedDescription: outcome.Text,
			Source:               outcome.Source,
		}}, nil
	})
}
