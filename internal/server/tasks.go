package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"storyline/internal/domain"
	"storyline/internal/engine"
	"storyline/internal/repo"
)

type taskOutput struct {
	Body TaskResponse `json:"body"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "createTask",
		Method:        http.MethodPost,
		Path:          "/stories/{id}/tasks",
		Summary:       "Add a task to a story",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CreateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		opts := engine.TaskCreateOptions{
			StoryID: input.ID,
			Title:   input.Body.Title,
			ActorID: actorID,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.AssigneeID != nil {
			opts.AssigneeID = *input.Body.AssigneeID
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "listTasks",
		Method:      http.MethodGet,
		Path:        "/stories/{id}/tasks",
		Summary:     "List the tasks of a story",
	}, func(ctx context.Context, input *storyIDInput) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		exists, err := e.Repo.StoryExists(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !exists {
			return nil, handleError(repo.ErrNotFound)
		}
		items, err := e.Repo.ListTasksByStory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getTask",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskOutput, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "setTaskStatus",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/status",
		Summary:     "Change task status",
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TaskStatusRequest `json:"body"`
	}) (*taskOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		status, err := domain.ParseTaskStatus(input.Body.Status)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		t, err := e.UpdateTaskStatus(ctx, input.ID, status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assignTask",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/assign",
		Summary:     "Assign or unassign a task",
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TaskAssignRequest `json:"body"`
	}) (*taskOutput, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		assignee := ""
		if input.Body.AssigneeID != nil {
			assignee = *input.Body.AssigneeID
		}
		t, err := e.AssignTask(ctx, input.ID, assignee, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "deleteTask",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete a task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		if err := e.DeleteTask(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
