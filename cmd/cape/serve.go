package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"capeline/internal/app"
	"capeline/internal/engine"
	"capeline/internal/server"
	"capeline/internal/ui"
)

func saveCmd() *cobra.Command {
	sv := &cobra.Command{Use: "save", Short: "Manage save slots"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List save slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSaves(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Slot", "Hero", "Day", "Money", "Updated"})
				for _, s := range items {
					updated := s.UpdatedAt
					if ts, err := time.Parse(time.RFC3339, s.UpdatedAt); err == nil {
						updated = humanize.Time(ts)
					}
					tw.AppendRow(table.Row{s.Slot, s.Name, s.Day, ui.Money(s.Money), updated})
				}
				tw.Render()
				return nil
			})
		},
	}
	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export the slot as {player, gameState} JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.Export(ctx, viper.GetString("slot"))
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = os.Stdout.Write(data)
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Exported %s to %s (%s)\n", viper.GetString("slot"), out, humanize.Bytes(uint64(len(data))))
				return nil
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (stdout if omitted)")
	var overwrite bool
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an exported save into the slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Import(ctx, viper.GetString("slot"), data, overwrite)
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
	imp.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing save")
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete the slot with its reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteSave(ctx, viper.GetString("slot")); err != nil {
					return err
				}
				fmt.Println("Deleted", viper.GetString("slot"))
				return nil
			})
		},
	}
	sv.AddCommand(list, export, imp, del)
	return sv
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	var all bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slot := viper.GetString("slot")
				if all {
					slot = ""
				}
				events, err := e.Repo.LatestEvents(ctx, n, slot, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "When", "Slot", "Type", "Entity", "Actor"})
				for _, evt := range events {
					when := evt.TS
					if ts, err := time.Parse(time.RFC3339, evt.TS); err == nil {
						when = humanize.Time(ts)
					}
					tw.AppendRow(table.Row{evt.ID, when, evt.Slot, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().BoolVar(&all, "all", false, "events of every slot")
	return cmd
}

func jwtSecret(envName string) (string, error) {
	if envName == "" {
		envName = "CAPELINE_JWT_SECRET"
	}
	secret := os.Getenv(envName)
	if secret == "" {
		return "", fmt.Errorf("%s is required for bearer auth", envName)
	}
	return secret, nil
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer s.Close()
			secret, err := jwtSecret(s.Config.Server.JWTSecretEnv)
			if err != nil {
				return err
			}
			token, err := server.SignToken(secret, viper.GetString("actor-id"), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 never expires)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin, actorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer s.Close()
			secret, err := jwtSecret(s.Config.Server.JWTSecretEnv)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: secret, DevLogin: devLogin, AllowActorHeader: actorHeader}
			handler, err := server.New(server.Config{Engine: s.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhooks(cmd.Context(), s.Engine)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Capeline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (local testing only)")
	cmd.Flags().BoolVar(&actorHeader, "allow-actor-header", false, "accept X-Actor-Id without a token (local testing only)")
	return cmd
}
