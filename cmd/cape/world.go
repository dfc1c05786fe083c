package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/ui"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage the task pool",
		Long:  "The pool holds every task the game knows. Each day a board of tasks is dealt from it, mandatory ones first.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var t domain.Task
	var file, taskType, identity, mode string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task to the pool",
		Long:  "Build a task from flags, or pass --file with a JSON task (scenario, conditions and scaling included).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				t = domain.Task{}
				if err := readJSONArg(file, &t); err != nil {
					return err
				}
			} else {
				t.Type = domain.TaskType(strings.ToUpper(taskType))
				t.RequiredIdentity = domain.Identity(strings.ToUpper(identity))
				t.Mode = domain.ScenarioMode(strings.ToUpper(mode))
			}
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				created, err := e.AddTask(ctx, slot, t)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON task file (- for stdin)")
	cmd.Flags().StringVar(&t.Title, "title", "", "title")
	cmd.Flags().StringVar(&t.Description, "description", "", "description")
	cmd.Flags().StringVar(&taskType, "type", "mission", "mission, work, event or social")
	cmd.Flags().StringVar(&identity, "identity", "super", "civilian or super")
	cmd.Flags().StringVar(&mode, "mode", "freeform", "freeform or structured")
	cmd.Flags().IntVar(&t.Difficulty, "difficulty", 1, "difficulty")
	cmd.Flags().IntVar(&t.Rewards.Money, "money", 0, "money reward")
	cmd.Flags().IntVar(&t.Rewards.Fame, "fame", 0, "fame reward")
	cmd.Flags().BoolVar(&t.IsMandatory, "mandatory", false, "always dealt to the board")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the task pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s.GameState.TaskPool)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Identity", "Diff", "Mandatory", "Done"})
				for _, t := range s.GameState.TaskPool {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.RequiredIdentity, t.Difficulty, t.IsMandatory, t.CompletionCount})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Remove a task from the pool and board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				if err := e.DeleteTask(ctx, slot, args[0]); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}
}

func automatorCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "automator",
		Short: "Manage content automators",
		Long:  "Automators ask the generator for new tasks, items, upgrades or events every N days while active and inside their day window.",
	}
	a.AddCommand(automatorAddCmd())
	a.AddCommand(automatorListCmd())
	a.AddCommand(automatorToggleCmd("pause", false))
	a.AddCommand(automatorToggleCmd("resume", true))
	a.AddCommand(automatorDeleteCmd())
	return a
}

func automatorAddCmd() *cobra.Command {
	var a domain.Automator
	var file, kind, identity string
	var start, end int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an automator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				a = domain.Automator{Active: true}
				if err := readJSONArg(file, &a); err != nil {
					return err
				}
			} else {
				a.Type = domain.AutomatorType(strings.ToUpper(kind))
				a.Config.RequiredIdentity = domain.Identity(strings.ToUpper(identity))
				if cmd.Flags().Changed("start-day") {
					a.StartDay = &start
				}
				if cmd.Flags().Changed("end-day") {
					a.EndDay = &end
				}
			}
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				created, err := e.AddAutomator(ctx, slot, a)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON automator file (- for stdin)")
	cmd.Flags().StringVar(&a.Name, "name", "", "name")
	cmd.Flags().StringVar(&kind, "type", "task", "task, item, upgrade or event")
	cmd.Flags().IntVar(&a.IntervalDays, "every", 1, "interval in days")
	cmd.Flags().BoolVar(&a.Active, "active", true, "start active")
	cmd.Flags().IntVar(&start, "start-day", 0, "first day it may run")
	cmd.Flags().IntVar(&end, "end-day", domain.EndDayUnbounded, "last day it may run")
	cmd.Flags().IntVar(&a.Config.Amount, "amount", 1, "items per run")
	cmd.Flags().IntVar(&a.Config.AmountMax, "amount-max", 0, "upper bound for a random amount")
	cmd.Flags().StringVar(&a.Config.Context, "context", "", "prompt context")
	cmd.Flags().IntVar(&a.Config.DifficultyMin, "difficulty-min", 0, "minimum task difficulty")
	cmd.Flags().IntVar(&a.Config.DifficultyMax, "difficulty-max", 0, "maximum task difficulty")
	cmd.Flags().StringVar(&identity, "identity", "", "identity generated tasks require")
	cmd.Flags().IntVar(&a.Config.DaysAhead, "days-ahead", 0, "schedule generated events this many days out")
	return cmd
}

func automatorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List automators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s.GameState.Automators)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Every", "Next run", "Active"})
				for _, a := range s.GameState.Automators {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Type, a.IntervalDays, a.NextRunDay, a.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func automatorToggleCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <automator-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an automator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				return e.SetAutomatorActive(ctx, slot, args[0], active)
			})
		},
	}
}

func automatorDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <automator-id>",
		Short: "Delete an automator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				return e.DeleteAutomator(ctx, slot, args[0])
			})
		},
	}
}

func eventCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "event",
		Short: "Manage calendar events",
		Long:  "Dated events fire on their day. Condition-triggered events fire when their trigger holds and re-arm when their reset holds. A fired event puts a task on the board.",
	}
	var file, taskType string
	var e domain.CalendarEvent
	var day int
	add := &cobra.Command{
		Use:   "add",
		Short: "Schedule a calendar event",
		Long:  "Flags build a dated event. Use --file for condition-triggered events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				e = domain.CalendarEvent{Active: true}
				if err := readJSONArg(file, &e); err != nil {
					return err
				}
			} else {
				e.Type = domain.TaskType(strings.ToUpper(taskType))
				e.Active = true
				if cmd.Flags().Changed("day") {
					e.Day = &day
				}
			}
			return withSave(cmd.Context(), func(ctx context.Context, eng engine.Engine, slot string) error {
				created, err := eng.AddCalendarEvent(ctx, slot, e)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	add.Flags().StringVar(&file, "file", "", "JSON event file (- for stdin)")
	add.Flags().StringVar(&e.Title, "title", "", "title")
	add.Flags().StringVar(&e.Description, "description", "", "description")
	add.Flags().StringVar(&taskType, "type", "event", "task type of the linked task")
	add.Flags().IntVar(&day, "day", 0, "day it fires")

	list := &cobra.Command{
		Use:   "list",
		Short: "List calendar events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, eng engine.Engine, slot string) error {
				s, err := eng.Load(ctx, slot)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s.GameState.CalendarEvents)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Day", "Trigger", "Active"})
				for _, ce := range s.GameState.CalendarEvents {
					when := "-"
					if ce.Day != nil {
						when = fmt.Sprint(*ce.Day)
					}
					trigger := ""
					if ce.ConditionTriggered {
						parts := make([]string, len(ce.Trigger))
						for i, c := range ce.Trigger {
							parts[i] = c.String()
						}
						trigger = strings.Join(parts, " and ")
					}
					tw.AppendRow(table.Row{ce.ID, ce.Title, when, trigger, ce.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	del := &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete a calendar event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, eng engine.Engine, slot string) error {
				return eng.DeleteCalendarEvent(ctx, slot, args[0])
			})
		},
	}
	ev.AddCommand(add, list, del)
	return ev
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <prompt>",
		Short: "Queue a prompt for the next task automator run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				sg, err := e.Suggest(ctx, slot, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printJSONOrTable(sg)
			})
		},
	}
}

func settingsCmd() *cobra.Command {
	var tasksPerDay, effort, newsMin, newsMax, retention int
	var news, related bool
	var newsContext, model string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change pacing, news and model settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				var set engine.Settings
				f := cmd.Flags()
				if f.Changed("tasks-per-day") || f.Changed("effort") {
					daily := s.GameState.DailyConfig
					if f.Changed("tasks-per-day") {
						daily.TasksAvailablePerDay = tasksPerDay
					}
					if f.Changed("effort") {
						daily.EffortLimit = effort
					}
					set.Daily = &daily
				}
				if f.Changed("news") || f.Changed("news-min") || f.Changed("news-max") || f.Changed("news-retention") || f.Changed("news-context") || f.Changed("news-tasks") {
					ns := s.GameState.NewsSettings
					if f.Changed("news") {
						ns.Enabled = news
					}
					if f.Changed("news-min") {
						ns.MinFrequencyDays = newsMin
					}
					if f.Changed("news-max") {
						ns.MaxFrequencyDays = newsMax
					}
					if f.Changed("news-retention") {
						ns.RetentionLength = retention
					}
					if f.Changed("news-context") {
						ns.Context = newsContext
					}
					if f.Changed("news-tasks") {
						ns.GenerateRelatedTasks = related
					}
					set.News = &ns
				}
				if f.Changed("model") {
					set.Model = &model
				}
				updated, err := e.UpdateSettings(ctx, slot, set)
				if err != nil {
					return err
				}
				out := map[string]any{
					"dailyConfig":  updated.GameState.DailyConfig,
					"newsSettings": updated.GameState.NewsSettings,
					"model":        updated.GameState.Model,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Println(ui.LabelValue("Tasks per day", updated.GameState.DailyConfig.TasksAvailablePerDay))
				fmt.Println(ui.LabelValue("Effort limit", updated.GameState.DailyConfig.EffortLimit))
				ns := updated.GameState.NewsSettings
				fmt.Println(ui.LabelValue("News", fmt.Sprintf("enabled=%t every %d-%d days, keep %d, related tasks=%t", ns.Enabled, ns.MinFrequencyDays, ns.MaxFrequencyDays, ns.RetentionLength, ns.GenerateRelatedTasks)))
				fmt.Println(ui.LabelValue("Model", updated.GameState.Model))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&tasksPerDay, "tasks-per-day", 0, "tasks dealt each day")
	cmd.Flags().IntVar(&effort, "effort", 0, "attempts allowed each day")
	cmd.Flags().BoolVar(&news, "news", true, "publish the newspaper")
	cmd.Flags().IntVar(&newsMin, "news-min", 0, "minimum days between issues")
	cmd.Flags().IntVar(&newsMax, "news-max", 0, "days after which an issue is certain")
	cmd.Flags().IntVar(&retention, "news-retention", 0, "issues kept in history")
	cmd.Flags().StringVar(&newsContext, "news-context", "", "prompt context for the newspaper")
	cmd.Flags().BoolVar(&related, "news-tasks", false, "generate tasks linked to each issue")
	cmd.Flags().StringVar(&model, "model", "", "generation model for this save")
	return cmd
}
