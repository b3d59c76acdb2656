package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tickler/internal/app"
	"tickler/internal/config"
	"tickler/internal/db"
	"tickler/internal/domain"
	"tickler/internal/logger"
	"tickler/internal/metrics"
	"tickler/internal/notify"
	"tickler/internal/server"
)

func addCmd() *cobra.Command {
	var date, clock string
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				t, err := b.Add(ctx, args[0], date, clock)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clock, "time", "", "due time (HH:MM)")
	return cmd
}

func listCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseFilter(filter)
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				items, counts, err := b.List(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"filter": f,
						"items":  items,
						"counts": map[string]int{"active": counts.Active, "completed": counts.Completed, "total": counts.Total()},
					})
				}
				if err := printTasks(items); err != nil {
					return err
				}
				fmt.Println(countsLine(counts))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all, active or completed")
	return cmd
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a task between active and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				t, err := b.Toggle(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func editCmd() *cobra.Command {
	var text, date, clock string
	var clearDue, completed, notified bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task",
		Long:  "Only the given flags change. Changing the due date or time re-arms the alert unless --notified is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u domain.TaskUpdate
			flags := cmd.Flags()
			if flags.Changed("text") {
				u.Text = &text
			}
			if clearDue {
				if flags.Changed("date") || flags.Changed("time") {
					return fmt.Errorf("--clear-due cannot be combined with --date or --time")
				}
				empty := ""
				u.DueDate, u.DueTime = &empty, &empty
			}
			if flags.Changed("date") {
				u.DueDate = &date
			}
			if flags.Changed("time") {
				u.DueTime = &clock
			}
			if flags.Changed("completed") {
				u.Completed = &completed
			}
			if flags.Changed("notified") {
				u.Notified = &notified
			}
			if u.Empty() {
				return fmt.Errorf("nothing to change")
			}
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				t, err := b.Edit(ctx, args[0], u)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "new text")
	cmd.Flags().StringVar(&date, "date", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clock, "time", "", "due time (HH:MM)")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date and time")
	cmd.Flags().BoolVar(&completed, "completed", false, "set completion")
	cmd.Flags().BoolVar(&notified, "notified", false, "set whether the alert already fired")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				if err := b.Delete(ctx, args[0]); err != nil {
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

func clearCompletedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove all completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				n, err := b.ClearCompleted(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"removed": n})
				}
				fmt.Printf("removed %d completed task(s)\n", n)
				return nil
			})
		},
	}
}

func countsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show active and completed counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				_, c, err := b.List(ctx, domain.FilterAll)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"active": c.Active, "completed": c.Completed, "total": c.Total()})
				}
				fmt.Println(countsLine(c))
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Scan for due tasks and send alerts until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts := app.Options{Watch: true, Prompt: notify.StdinPrompter(os.Stdin, os.Stderr)}
			return withApp(ctx, opts, func(ctx context.Context, a *app.App) error {
				go reportPermission(ctx, a)
				logger.Info("watching for due tasks", "interval", a.Config.ScanInterval().String(), "platform", a.Auth.PlatformName())
				<-ctx.Done()
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the due-task scanner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts := app.Options{
				Watch:   true,
				Prompt:  notify.StdinPrompter(os.Stdin, os.Stderr),
				Metrics: metrics.New(),
			}
			return withApp(ctx, opts, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("TICKLER_JWT_SECRET")}
				handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				go reportPermission(ctx, a)
				fmt.Printf("Serving Tickler API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from tickler.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from tickler.yml)")
	return cmd
}

func reportPermission(ctx context.Context, a *app.App) {
	select {
	case <-ctx.Done():
	case <-a.Auth.Resolved():
		state := a.Auth.State()
		if state == domain.PermissionGranted {
			logger.Info("notifications enabled", "platform", a.Auth.PlatformName())
			return
		}
		logger.Warn("notifications disabled; due tasks will not alert", "platform", a.Auth.PlatformName(), "permission", string(state))
	}
}

func logCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recently fired alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b backend) error {
				items, err := b.Alerts(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Fired", "Task", "Title", "Body", "Platform"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.TS, a.TaskID, a.Title, a.Body, a.Platform})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of alerts")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create tickler.yml",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tickler.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	return printTasks([]domain.Task{t})
}

func printTasks(items []domain.Task) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Text", "Done", "Due", "Notified"})
	for _, t := range items {
		done := ""
		if t.Completed {
			done = "x"
		}
		due := ""
		if t.HasDue() {
			due = t.DueDate + " " + t.DueTime
		}
		notified := ""
		if t.Notified {
			notified = "yes"
		}
		tw.AppendRow(table.Row{t.ID, t.Text, done, due, notified})
	}
	tw.Render()
	return nil
}

func countsLine(c domain.Counts) string {
	return fmt.Sprintf("%d active, %d completed", c.Active, c.Completed)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
