package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tickler/internal/config"
	"tickler/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tk",
	Short: "Tickler task list",
	Long: `Tickler keeps a local task list and alerts you when a task falls due.
- Tasks: short texts with an optional due date (YYYY-MM-DD) and time (HH:MM), newest first.
- Store: the list lives in .tickler/tickler.db inside the workspace and survives restarts.
- Alerts: 'tk watch' or 'tk serve' scan the list and send one notification per due task.
- Permission: asked at most once per session; 'notifications.permission' in tickler.yml can preset it.
- Server: with --server (or TICKLER_SERVER) commands talk to a running 'tk serve' instead of the store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		logger.Init(viper.GetString("log-level"), viper.GetBool("log-json"))
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TICKLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "", "base URL of a running 'tk serve' (e.g. http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	for _, name := range []string{"workspace", "json", "server", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(toggleCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(clearCompletedCmd())
	rootCmd.AddCommand(countsCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads tickler.yml from the workspace and applies TICKLER_*
// environment overrides such as TICKLER_NOTIFICATIONS_PLATFORM.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)
	return cfg, cfg.Validate()
}

func applyOverrides(cfg *config.Config) {
	keys := map[string]*string{
		"storage.key":               &cfg.Storage.Key,
		"scanner.interval":          &cfg.Scanner.Interval,
		"notifications.platform":    &cfg.Notifications.Platform,
		"notifications.permission":  &cfg.Notifications.Permission,
		"notifications.title":       &cfg.Notifications.Title,
		"notifications.icon":        &cfg.Notifications.Icon,
		"notifications.webhook_url": &cfg.Notifications.WebhookURL,
		"server.addr":               &cfg.Server.Addr,
		"server.base_path":          &cfg.Server.BasePath,
	}
	for key, dst := range keys {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
}
