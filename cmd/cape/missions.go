package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/ui"
)

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Resolve tasks on today's board",
		Long:  "Each attempt uses one effort. A task must be on today's board, unlocked, done by the right identity and not already completed today.",
	}
	m.AddCommand(missionCheckCmd())
	m.AddCommand(missionPlayCmd())
	m.AddCommand(missionSceneCmd())
	return m
}

func missionCheckCmd() *cobra.Command {
	var stat string
	cmd := &cobra.Command{
		Use:   "check <task-id>",
		Short: "Resolve a task with a skill check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				res, err := e.ResolveCheck(ctx, slot, args[0], stat)
				if err != nil {
					return err
				}
				return printResolution(res)
			})
		},
	}
	cmd.Flags().StringVar(&stat, "stat", "", "stat to roll (default depends on task type)")
	return cmd
}

func missionPlayCmd() *cobra.Command {
	var choices []int
	cmd := &cobra.Command{
		Use:   "play <task-id>",
		Short: "Walk a structured scenario",
		Long:  "Without --choice the scenario is played interactively. With --choice (repeatable) the given option indexes are walked from the start node.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				interactive := !cmd.Flags().Changed("choice")
				in := bufio.NewReader(os.Stdin)
				for {
					res, err := e.PlayStructured(ctx, slot, args[0], choices)
					if err != nil {
						return err
					}
					if res.Outcome != nil || !interactive {
						return printResolution(res)
					}
					pick, err := promptOption(in, res)
					if err != nil {
						return err
					}
					choices = append(choices, pick)
				}
			})
		},
	}
	cmd.Flags().IntSliceVar(&choices, "choice", nil, "option index to pick (repeatable)")
	return cmd
}

func promptOption(in *bufio.Reader, res engine.Resolution) (int, error) {
	if res.Node != nil {
		fmt.Println(ui.Panel.Render(res.Node.Text))
	}
	for _, o := range res.Options {
		label := fmt.Sprintf("  %d) %s", o.Index, o.Label)
		if !o.Available {
			label = ui.Muted.Render(label + " (requirement not met)")
		}
		fmt.Println(label)
	}
	for {
		fmt.Print(ui.Key.Render("> "))
		line, err := in.ReadString('\n')
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr == nil {
			for _, o := range res.Options {
				if o.Index == n && o.Available {
					return n, nil
				}
			}
		}
		fmt.Println(ui.Warn.Render("Pick one of the available options."))
	}
}

func missionSceneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene <task-id>",
		Short: "Play a freeform scene with the narrator",
		Long:  "Type what your hero does. Enter /done to end the scene and have it judged, or /quit to walk away without spending effort.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				in := bufio.NewReader(os.Stdin)
				var transcript []domain.TranscriptTurn
				opening, err := e.NarrateTurn(ctx, slot, args[0], transcript)
				if err != nil {
					return err
				}
				transcript = append(transcript, domain.TranscriptTurn{Role: "narrator", Text: opening})
				fmt.Println(ui.Panel.Render(opening))
				for {
					fmt.Print(ui.Key.Render("> "))
					line, err := in.ReadString('\n')
					if err != nil {
						return err
					}
					line = strings.TrimSpace(line)
					switch line {
					case "":
						continue
					case "/quit":
						fmt.Println(ui.Muted.Render("You walk away."))
						return nil
					case "/done":
						res, err := e.CompleteFreeform(ctx, slot, args[0], transcript)
						if err != nil {
							return err
						}
						return printResolution(res)
					}
					transcript = append(transcript, domain.TranscriptTurn{Role: "player", Text: line})
					beat, err := e.NarrateTurn(ctx, slot, args[0], transcript)
					if err != nil {
						return err
					}
					transcript = append(transcript, domain.TranscriptTurn{Role: "narrator", Text: beat})
					fmt.Println(ui.Panel.Render(beat))
				}
			})
		},
	}
	return cmd
}

func printResolution(res engine.Resolution) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	if c := res.Check; c != nil {
		fmt.Println(ui.LabelValue("Roll", fmt.Sprintf("%d + %d vs %d (margin %d)", c.Roll, c.Bonus, c.Target, c.Margin)))
	}
	o := res.Outcome
	if o == nil {
		if res.Node != nil {
			fmt.Println(ui.Panel.Render(res.Node.Text))
			for _, opt := range res.Options {
				fmt.Printf("  %d) %s\n", opt.Index, opt.Label)
			}
		}
		return nil
	}
	if o.Summary != "" {
		fmt.Println(o.Summary)
	}
	verdict := ui.Bad.Render("Failure")
	if o.Success {
		verdict = ui.Good.Render("Success")
	}
	fmt.Println(ui.LabelValue("Outcome", verdict+" "+ui.Level(o.Level)))
	if o.Success && !o.Rewards.IsZero() {
		r := o.Rewards
		fmt.Println(ui.LabelValue("Rewards", fmt.Sprintf("money %s fame %s opinion %s skill points %s",
			ui.Signed(r.Money), ui.Signed(r.Fame), ui.Signed(r.PublicOpinion), ui.Signed(r.SkillPoints))))
	}
	for who, delta := range o.Reputation {
		fmt.Printf("  %s %s\n", who, ui.Signed(delta))
	}
	if res.Save != nil {
		fmt.Println(ui.PlayerCard(*res.Save))
	}
	return nil
}
