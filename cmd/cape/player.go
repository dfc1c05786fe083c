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

// saveAction runs an action that returns the updated save and prints the player card.
func saveAction(cmd *cobra.Command, msg string, fn func(context.Context, engine.Engine, string) (domain.SaveFile, error)) error {
	return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
		s, err := fn(ctx, e, slot)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(s)
		}
		fmt.Println(ui.Good.Render(msg))
		fmt.Println(ui.PlayerCard(s))
		return nil
	})
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [activity]",
		Short: "Spend one downtime token on training",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					acts := e.Config.Training.Activities
					if viper.GetBool("json") {
						return printJSON(acts)
					}
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Activity", "Trains", "Power", "Base XP"})
					for _, a := range acts {
						tw.AppendRow(table.Row{a.ID, a.Target, a.Power, a.BaseXP})
					}
					tw.Render()
					return nil
				})
			}
			return saveAction(cmd, "Training done.", func(ctx context.Context, e engine.Engine, slot string) (domain.SaveFile, error) {
				return e.Train(ctx, slot, args[0])
			})
		},
	}
	return cmd
}

func workCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work [activity]",
		Short: "Spend one downtime token on a paid shift",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					if viper.GetBool("json") {
						return printJSON(e.Config.Work)
					}
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Activity", "Name", "Pay"})
					for _, w := range e.Config.Work {
						tw.AppendRow(table.Row{w.ID, w.Name, ui.Money(w.BaseMoney)})
					}
					tw.Render()
					return nil
				})
			}
			return saveAction(cmd, "Shift done.", func(ctx context.Context, e engine.Engine, slot string) (domain.SaveFile, error) {
				return e.Work(ctx, slot, args[0])
			})
		},
	}
}

func equipCmd() *cobra.Command {
	var into string
	cmd := &cobra.Command{
		Use:   "equip <item-id>",
		Short: "Equip an owned item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return saveAction(cmd, "Equipped.", func(ctx context.Context, e engine.Engine, slot string) (domain.SaveFile, error) {
				return e.Equip(ctx, slot, args[0], domain.Slot(strings.ToUpper(into)))
			})
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "equipment slot (defaults to the item's slot)")
	return cmd
}

func unequipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unequip <slot>",
		Short: "Move an equipped item back to the inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return saveAction(cmd, "Unequipped.", func(ctx context.Context, e engine.Engine, slot string) (domain.SaveFile, error) {
				return e.Unequip(ctx, slot, domain.Slot(strings.ToUpper(args[0])))
			})
		},
	}
}

func upgradeCmd() *cobra.Command {
	up := &cobra.Command{Use: "upgrade", Short: "Base upgrades"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List base upgrades",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSave(cmd.Context(), func(ctx context.Context, e engine.Engine, slot string) error {
				s, err := e.Load(ctx, slot)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s.Player.BaseUpgrades)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Cost", "Owned"})
				for _, u := range s.Player.BaseUpgrades {
					tw.AppendRow(table.Row{u.ID, u.Name, ui.Money(u.Cost), u.Owned})
				}
				tw.Render()
				return nil
			})
		},
	}
	buy := &cobra.Command{
		Use:   "buy <upgrade-id>",
		Short: "Buy a base upgrade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return saveAction(cmd, "Upgrade installed.", func(ctx context.Context, e engine.Engine, slot string) (domain.SaveFile, error) {
				return e.BuyUpgrade(ctx, slot, args[0])
			})
		},
	}
	up.AddCommand(list, buy)
	return up
}

func powerCmd() *cobra.Command {
	pw := &cobra.Command{Use: "power", Short: "Powers"}
	up := &cobra.Command{
		Use:   "upgrade <power-id>",
		Short: "Spend skill points on a power level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return saveAction(cmd, "Power upgraded.", func(ctx context.Context, e engine.Engine, slot string) (domain.SaveFile, error) {
				return e.UpgradePower(ctx, slot, args[0])
			})
		},
	}
	pw.AddCommand(up)
	return pw
}

func identityCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "identity <civilian|super>",
		Short:     "Switch identity",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"civilian", "super"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.Identity(strings.ToUpper(args[0]))
			return saveAction(cmd, "Now "+strings.ToLower(string(id))+".", func(ctx context.Context, e engine.Engine, slot string) (domain.SaveFile, error) {
				return e.SwitchIdentity(ctx, slot, id)
			})
		},
	}
}
