package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guilherme-santos/eventsync/internal/config"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "eventsync",
	Short: "Keep a local event store in sync with Google Calendar",
	Long: `eventsync mirrors the calendars of linked accounts into a local event store
and pushes local changes back to them. Accounts that are not linked keep
local-only events.

Settings come from flags, EVENTSYNC_* environment variables and an optional
config file, e.g. EVENTSYNC_DB_DSN or EVENTSYNC_HTTP_CALLBACK_BASE_URL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("db-driver", "", "database driver: sqlite3 or postgres")
	flags.String("db-dsn", "", "database file or connection string")
	flags.String("google-credentials", "", "OAuth client credentials file for Google")
	flags.String("google-calendar", "", "Google calendar to sync")
	flags.String("caldav-url", "", "CalDAV server, enables the caldav provider")
	flags.String("caldav-calendar", "", "CalDAV calendar collection path")
	flags.String("timezone", "", "zone for events that do not name one")
	flags.BoolP("verbose", "v", false, "debug logging")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
