package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capeline/internal/config"
	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/ui"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default capeline.yml and start a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				fmt.Println(ui.PlayerCard(s))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func newGameCmd() *cobra.Command {
	var opts domain.NewGameOptions
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new game in the slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.NewGame(ctx, viper.GetString("slot"), opts, overwrite)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Println(ui.PlayerCard(s))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.CivilianName, "civilian-name", "", "civilian name (config default if omitted)")
	cmd.Flags().StringVar(&opts.SuperName, "super-name", "", "super name (config default if omitted)")
	cmd.Flags().IntVar(&opts.StartingMoney, "money", 0, "starting money")
	cmd.Flags().StringVar(&opts.Model, "model", "", "generation model for this save")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing save")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the player and today's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Println(ui.PlayerCard(s))
				if p := e.Progress(slot); p.Phase != engine.PhaseIdle {
					fmt.Println(ui.LabelValue("Transition", ui.Phase(string(p.Phase))))
				}
				return nil
			})
		},
	}
}

func dayCmd() *cobra.Command {
	day := &cobra.Command{
		Use:   "day",
		Short: "Advance the calendar",
		Long:  "Advancing a day charges rent on day seven, runs due automators, fires events, maybe prints the newspaper and deals a new board. Nothing is saved unless the whole transition succeeds.",
	}
	day.AddCommand(dayAdvanceCmd())
	return day
}

func dayAdvanceCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Run the day transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				updates, stop := e.SubscribeProgress(slot)
				printed := make(chan struct{})
				go func() {
					defer close(printed)
					seen := 0
					<-updates // snapshot from before this transition
					for p := range updates {
						if quiet || viper.GetBool("json") {
							continue
						}
						if len(p.Lines) < seen {
							seen = 0
						}
						for ; seen < len(p.Lines); seen++ {
							fmt.Println(ui.Muted.Render(fmt.Sprintf("[%d/%d] %s", p.Step, p.Steps, p.Lines[seen])))
						}
					}
				}()
				res, err := e.AdvanceDay(ctx, slot)
				stop()
				<-printed
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printReport(res.Report)
				if res.PendingNews != nil {
					fmt.Println(ui.Warn.Render("Extra! " + res.PendingNews.Headline))
					fmt.Println(ui.Muted.Render("Review it with 'cape news show' and apply it with 'cape news ack'."))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "hide step progress")
	return cmd
}

func printReport(r domain.DailyReport) {
	fmt.Println(ui.Heading(fmt.Sprintf("Day %d", r.Day)))
	if r.Financials.Rent > 0 {
		fmt.Println(ui.LabelValue("Rent paid", ui.Money(r.Financials.Rent)))
	}
	ar := r.AutomatorResults
	fmt.Println(ui.LabelValue("Generated", fmt.Sprintf("%d tasks, %d items, %d upgrades, %d events",
		ar.TasksGenerated, ar.ItemsGenerated, ar.UpgradesGenerated, ar.EventsGenerated)))
	for _, t := range ar.NewTasks {
		fmt.Printf("  + %s (%s, difficulty %d)\n", t.Title, t.Type, t.Difficulty)
	}
	for _, f := range ar.Failed {
		fmt.Println(ui.Bad.Render("  automator failed: " + f))
	}
	if r.EventsTriggered > 0 {
		fmt.Println(ui.LabelValue("Events", r.EventsTriggered))
	}
	if r.NewsPublished {
		fmt.Println(ui.Good.Render("The paper is out."))
	}
	if r.WeeklySummary != nil {
		fmt.Println(ui.Panel.Render(ui.H2.Render(r.WeeklySummary.Title) + "\n" + r.WeeklySummary.Content))
	}
}

func boardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "List today's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				tasks := s.GameState.ActiveTasks
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Identity", "Diff", "Mode", "Reward", "State"})
				for _, t := range tasks {
					state := ""
					switch {
					case t.CompletedDay != nil && *t.CompletedDay >= s.GameState.Day:
						state = ui.Good.Render("done")
					case t.Locked:
						state = ui.Bad.Render("locked")
					case t.RequiredIdentity != s.Player.Identity:
						state = ui.Warn.Render("switch identity")
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.RequiredIdentity, t.Difficulty, t.Mode, ui.Money(t.Rewards.Money), state})
				}
				tw.Render()
				left := s.GameState.DailyConfig.EffortLimit - s.GameState.EffortUsed
				fmt.Println(ui.LabelValue("Effort left", left))
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Daily reports"}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Recent daily reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Reports(ctx, viper.GetString("slot"), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Rent", "New tasks", "Events", "News", "When"})
				for _, r := range items {
					when := r.CreatedAt
					if ts, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
						when = humanize.Time(ts)
					}
					tw.AppendRow(table.Row{r.Day, r.Report.Financials.Rent, r.Report.AutomatorResults.TasksGenerated, r.Report.EventsTriggered, r.Report.NewsPublished, when})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 10, "number of reports")
	show := &cobra.Command{
		Use:   "show <day>",
		Short: "Show the report of one day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var day int
			if _, err := fmt.Sscanf(args[0], "%d", &day); err != nil {
				return fmt.Errorf("day must be a number: %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.Report(ctx, viper.GetString("slot"), day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				printReport(r.Report)
				return nil
			})
		},
	}
	rep.AddCommand(list, show)
	return rep
}

func newsCmd() *cobra.Command {
	news := &cobra.Command{Use: "news", Short: "Review the newspaper"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the issue waiting for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				issue := s.GameState.PendingNews
				if issue == nil {
					return engine.ErrNoPendingNews
				}
				if viper.GetBool("json") {
					return printJSON(issue)
				}
				printIssue(*issue)
				return nil
			})
		},
	}
	var editPath string
	ack := &cobra.Command{
		Use:   "ack",
		Short: "Apply the pending issue",
		Long:  "Applies the pending issue's impacts and codex entries. Pass --edit with a JSON file of {impacts, codexEntries} to change them first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit engine.NewsEdit
			if editPath != "" {
				if err := readJSONArg(editPath, &edit); err != nil {
					return err
				}
			}
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.AcknowledgeNews(ctx, slot, edit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Println(ui.Good.Render("News applied."))
				fmt.Println(ui.PlayerCard(s))
				return nil
			})
		},
	}
	ack.Flags().StringVar(&editPath, "edit", "", "JSON file with edited impacts and codex entries (- for stdin)")
	news.AddCommand(show, ack)
	return news
}

func printIssue(n domain.NewsIssue) {
	fmt.Println(ui.Heading(strings.ToUpper(n.Headline)))
	for _, a := range n.Articles {
		fmt.Println(ui.H2.Render(a.Title))
		fmt.Println(a.Body)
	}
	im := n.Impacts
	fmt.Println(ui.LabelValue("Impacts", fmt.Sprintf("money %s fame %s opinion %s mask %s",
		ui.Signed(im.Money), ui.Signed(im.Fame), ui.Signed(im.PublicOpinion), ui.Signed(im.Mask))))
	for _, c := range n.CodexEntries {
		fmt.Printf("  codex: %s (%s)\n", c.Title, c.Category)
	}
	if n.WorldModifier != "" {
		fmt.Println(ui.LabelValue("World", n.WorldModifier))
	}
}
