package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/eventsync/calendar/google"
	"github.com/guilherme-santos/eventsync/file"
	"github.com/guilherme-santos/eventsync/internal"
)

var linkCmd = &cobra.Command{
	Use:   "link owner",
	Short: "Link an account to its remote calendar",
	Long: `Store the credentials of an account and fetch its calendar.

For Google the token file is the JSON form of an OAuth2 token (access_token,
refresh_token, expiry) obtained by whatever performed the consent flow. For
CalDAV --account is the user name and the token's access_token the
(app-specific) password.

Linking again replaces the credentials and starts over with a full sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := args[0]
		tokenFile, _ := cmd.Flags().GetString("token")
		account, _ := cmd.Flags().GetString("account")
		noSync, _ := cmd.Flags().GetBool("no-sync")
		provider, _ := cmd.Flags().GetString("provider")

		creds, err := file.ReadToken(tokenFile)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		w := cmd.OutOrStdout()
		l := &internal.Linkage{
			OwnerKey:      owner,
			Provider:      provider,
			RemoteAccount: account,
			Credentials:   creds,
		}
		fmt.Fprintf(w, "Linking %q to %s...\n", owner, l.Provider)
		if err := a.store.SaveLinkage(ctx, l); err != nil {
			return fmt.Errorf("saving linkage: %w", err)
		}
		if noSync {
			return nil
		}

		res, err := a.syncer.Sync(ctx, owner)
		if err != nil {
			return fmt.Errorf("first sync: %w", err)
		}
		fmt.Fprintf(w, "%s: %s\n", owner, res)

		if a.watcher.CallbackBaseURL == "" {
			return nil
		}
		_, err = a.watcher.EnsureChannel(ctx, l)
		if errors.Is(err, internal.ErrPushUnsupported) {
			fmt.Fprintf(w, "%s has no push notifications, relying on periodic syncs\n", provider)
			return nil
		}
		if err != nil {
			return fmt.Errorf("registering watch channel: %w", err)
		}
		fmt.Fprintf(w, "Watching %s until %s\n", l.WatchChannelID, l.WatchExpiry.Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	flags := linkCmd.Flags()
	flags.String("token", "token.json", "OAuth2 token file")
	flags.String("provider", google.Platform, "remote provider: google or caldav")
	flags.String("account", "", "remote account name, e.g. the Google e-mail")
	flags.Bool("no-sync", false, "only store the linkage")
	flags.String("http-callback-base-url", "", "public base URL Google sends webhook pings to")

	rootCmd.AddCommand(linkCmd)
}
