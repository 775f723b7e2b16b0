package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [owner...]",
	Short: "Pull remote changes for linked accounts",
	Long: `Pull remote changes into the local store. Without owners every linked
account is synced. --full discards the stored cursor and fetches the whole
calendar again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if len(args) == 0 && !full {
			return a.syncer.SyncAll(ctx)
		}
		if len(args) == 0 {
			linkages, err := a.store.Linkages(ctx)
			if err != nil {
				return err
			}
			for _, l := range linkages {
				args = append(args, l.OwnerKey)
			}
		}

		w := cmd.OutOrStdout()
		for _, owner := range args {
			run := a.syncer.Sync
			if full {
				run = a.syncer.FullResync
			}
			res, err := run(ctx, owner)
			if err != nil {
				return fmt.Errorf("syncing %s: %w", owner, err)
			}
			fmt.Fprintf(w, "%s: %s\n", owner, res)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status owner...",
	Short: "Show the sync state of accounts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		w := cmd.OutOrStdout()
		for _, owner := range args {
			state, err := a.syncer.State(cmd.Context(), owner)
			if err != nil {
				return fmt.Errorf("%s: %w", owner, err)
			}
			l, err := a.store.Linkage(cmd.Context(), owner)
			if err != nil {
				return fmt.Errorf("%s: %w", owner, err)
			}
			fmt.Fprintf(w, "%s: %s (provider %s", owner, state, l.Provider)
			if l.WatchChannelID != "" {
				fmt.Fprintf(w, ", channel expires %s", l.WatchExpiry.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(w, ")")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("full", false, "discard the cursor and fetch everything again")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
