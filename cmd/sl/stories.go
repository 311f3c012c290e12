package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyline/internal/app"
	"storyline/internal/domain"
	"storyline/internal/engine"
	"storyline/internal/repo"
)

func storyCmd() *cobra.Command {
	story := &cobra.Command{
		Use:   "story",
		Short: "Manage stories",
		Long:  "Stories are the unit of work: a title, a description, a status and, once refined, a Gherkin specification.",
	}
	story.AddCommand(storyCreateCmd())
	story.AddCommand(storyListCmd())
	story.AddCommand(storyShowCmd())
	story.AddCommand(storyStatusCmd())
	story.AddCommand(storyUpdateCmd())
	story.AddCommand(storyAssignCmd())
	story.AddCommand(storyDesignCmd())
	story.AddCommand(storyElaborateCmd())
	story.AddCommand(storyDeleteCmd())
	return story
}

func printStoryResult(s domain.Story) error {
	if viper.GetBool("json") {
		return printJSON(s)
	}
	printStory(s)
	return nil
}

func storyCreateCmd() *cobra.Command {
	var opts engine.StoryCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a story in DRAFT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Title == "" || opts.Description == "" {
				return fmt.Errorf("--title and --description required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.ActorID = actorID()
				s, err := a.Engine.CreateStory(ctx, opts)
				if err != nil {
					return err
				}
				return printStoryResult(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "story title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "story description")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee (defaults to the actor)")
	cmd.Flags().StringVar(&opts.DesignReference, "design", "", "design URL")
	return cmd
}

func storyListCmd() *cobra.Command {
	var status, keyword, assignee string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.StoryFilters{Keyword: keyword, AssigneeID: assignee, Limit: limit}
			if status != "" {
				parsed, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = parsed
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListStories(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if items == nil {
						items = []domain.Story{}
					}
					return printJSON(items)
				}
				printStories(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&keyword, "keyword", "", "match title or description")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func storyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a story with its specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.Repo.GetStory(ctx, args[0])
				if err != nil {
					return err
				}
				return printStoryResult(s)
			})
		},
	}
}

func storyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a story to another status",
		Long:  "Moving a story without a specification from DRAFT to READY_FOR_REFINEMENT generates one.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseStatus(args[1])
			if err != nil {
				return fmt.Errorf("%w: %v", engine.ErrInvalidStatus, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.TransitionStatus(ctx, args[0], status, actorID())
				if err != nil {
					return err
				}
				return printStoryResult(s)
			})
		},
	}
}

func storyUpdateCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit story title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.StoryUpdateOptions{ID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if opts.Title == nil && opts.Description == nil {
				return fmt.Errorf("nothing to update")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.UpdateStory(ctx, opts)
				if err != nil {
					return err
				}
				return printStoryResult(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func storyAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <assignee>",
		Short: "Reassign a story",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.AssignStory(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printStoryResult(s)
			})
		},
	}
}

func storyDesignCmd() *cobra.Command {
	var ref, file string
	var clearRef bool
	cmd := &cobra.Command{
		Use:   "design <id>",
		Short: "Set the design reference from a URL or an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			for _, v := range []bool{ref != "", file != "", clearRef} {
				if v {
					set++
				}
			}
			if set != 1 {
				return fmt.Errorf("exactly one of --url, --file or --clear required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					s   domain.Story
					err error
				)
				if file != "" {
					data, rerr := os.ReadFile(file)
					if rerr != nil {
						return rerr
					}
					s, err = a.Engine.AttachDesign(ctx, args[0], http.DetectContentType(data), data, actorID())
				} else {
					s, err = a.Engine.SetDesignReference(ctx, args[0], ref, actorID())
				}
				if err != nil {
					return err
				}
				return printStoryResult(s)
			})
		},
	}
	cmd.Flags().StringVar(&ref, "url", "", "http(s) URL of the design")
	cmd.Flags().StringVar(&file, "file", "", "png, jpeg, gif or webp file to upload")
	cmd.Flags().BoolVar(&clearRef, "clear", false, "remove the design reference")
	return cmd
}

func storyElaborateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "elaborate <id>",
		Short: "Describe the story's design",
		Long:  "Produces a description of the referenced design. The story itself is not changed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, outcome, err := a.Engine.ElaborateFromDesign(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"story":                 s,
						"generated_description": outcome.Text,
						"source":                outcome.Source,
					})
				}
				fmt.Println(headingStyle.Render(s.Title) + "  " + mutedStyle.Render("("+string(outcome.Source)+")"))
				fmt.Println(specStyle.Render(outcome.Text))
				return nil
			})
		},
	}
}

func storyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a story and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteStory(ctx, args[0], actorID()); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"deleted": args[0]})
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}
