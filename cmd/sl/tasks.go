package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyline/internal/app"
	"storyline/internal/domain"
	"storyline/internal/engine"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks of a story"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func printTaskResult(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	printTasks([]domain.Task{t})
	return nil
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.StoryID == "" || opts.Title == "" {
				return fmt.Errorf("--story and --title required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.ActorID = actorID()
				t, err := a.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printTaskResult(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.StoryID, "story", "", "story id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "task description")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <story-id>",
		Short: "List tasks of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Engine.Repo.GetStory(ctx, args[0]); err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListTasksByStory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if items == nil {
						items = []domain.Task{}
					}
					return printJSON(items)
				}
				printTasks(items)
				return nil
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <TODO|DEVELOPMENT|COMPLETE>",
		Short: "Change task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseTaskStatus(args[1])
			if err != nil {
				return fmt.Errorf("%w: %v", engine.ErrInvalidStatus, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateTaskStatus(ctx, args[0], status, actorID())
				if err != nil {
					return err
				}
				return printTaskResult(t)
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> [assignee]",
		Short: "Assign a task; omit the assignee to unassign",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignee := ""
			if len(args) == 2 {
				assignee = args[1]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.AssignTask(ctx, args[0], assignee, actorID())
				if err != nil {
					return err
				}
				return printTaskResult(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteTask(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}
