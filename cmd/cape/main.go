package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capeline/internal/app"
	"capeline/internal/db"
	"capeline/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "cape",
	Short: "Capeline CLI",
	Long: `Capeline is a day-by-day superhero life sim.
Core concepts:
- Save slot: one game. Every command works on --slot (default "default").
- Day: advance the calendar to pay rent, run automators, fire events, maybe print the news and deal a new task board.
- Board: the tasks available today. Resolve them with a skill check, a structured scenario or a freeform scene.
- Identity: civilian or super. Tasks need one or the other.
- Downtime: tokens for training and shifts at work, refilled every day.
- Automators: generators that add tasks, items, upgrades or events on an interval.
- Event log: every change is recorded, view with 'cape log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CAPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("slot", "s", "default", "save slot")
	rootCmd.PersistentFlags().Int64("seed", 0, "dice and shuffle seed (0 picks one)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("slot", rootCmd.PersistentFlags().Lookup("slot"))
	_ = viper.BindPFlag("seed", rootCmd.PersistentFlags().Lookup("seed"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(newGameCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(newsCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(equipCmd())
	rootCmd.AddCommand(unequipCmd())
	rootCmd.AddCommand(upgradeCmd())
	rootCmd.AddCommand(powerCmd())
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(automatorCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(saveCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

// withEngine opens the workspace and hands fn an engine whose events are attributed to
// --actor-id.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	s, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer s.Close()
	if seed := viper.GetInt64("seed"); seed != 0 {
		s.Engine.Dice = engine.NewDice(seed)
	}
	return fn(engine.WithActor(ctx, viper.GetString("actor-id")), s.Engine)
}

// withSave is withEngine for commands that need a game in --slot, starting one when the
// slot is empty.
func withSave(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		slot := viper.GetString("slot")
		if _, created, err := app.ResolveSave(ctx, e, slot, ""); err != nil {
			return err
		} else if created && !viper.GetBool("json") {
			fmt.Printf("Started a new game in slot %s\n", slot)
		}
		return fn(ctx, e, slot)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSONArg decodes a JSON document from a file path, or stdin for "-".
func readJSONArg(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
