package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/guilherme-santos/eventsync/internal"
	"github.com/guilherme-santos/eventsync/internal/service"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List and edit the events of an account",
}

var eventsListCmd = &cobra.Command{
	Use:   "list owner",
	Short: "List events, refreshing linked accounts first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.events.List(cmd.Context(), args[0], rangeFromFlags(cmd.Flags(), a))
		if err != nil {
			return err
		}
		if list.Stale {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: remote refresh failed, showing stored events")
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		return printEvents(cmd, list)
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create owner",
	Short: "Create an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.events.Create(cmd.Context(), args[0], requestFromFlags(cmd.Flags()))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", e.ID)
		return nil
	},
}

var eventsUpdateCmd = &cobra.Command{
	Use:   "update owner id",
	Short: "Change the given fields of an event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.events.Update(cmd.Context(), args[0], args[1], requestFromFlags(cmd.Flags()))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s .. %s\n", e.ID, e.Start, e.End)
		return nil
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete owner id",
	Short: "Delete an event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.events.Delete(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[1])
		return nil
	},
}

func printEvents(cmd *cobra.Command, list *service.EventList) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tTITLE\tCOLOR")
	for _, e := range list.Events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Start, e.End, e.Title, e.Color)
	}
	return tw.Flush()
}

func addRangeFlags(flags *pflag.FlagSet) {
	flags.Var(&internal.Date{}, "from", "only events ending after this date (e.g. 2024-05-01)")
	flags.Var(&internal.Date{}, "to", "only events starting before this date")
}

func rangeFromFlags(flags *pflag.FlagSet, a *app) internal.Range {
	var r internal.Range
	if f := flags.Lookup("from"); f != nil && f.Changed {
		r.From = f.Value.(*internal.Date).At(a.location).UnixMilli()
	}
	if f := flags.Lookup("to"); f != nil && f.Changed {
		r.To = f.Value.(*internal.Date).At(a.location).UnixMilli()
	}
	return r
}

func addEventFlags(flags *pflag.FlagSet) {
	flags.String("title", "", "title")
	flags.String("description", "", "description")
	flags.String("start", "", "start: a date for all-day events or an RFC 3339 time")
	flags.String("end", "", "end, exclusive")
	flags.Bool("all-day", false, "all-day event")
	flags.String("zone", "", "IANA time zone of the event")
	flags.String("color", "", "local color, never sent to the provider")
}

// requestFromFlags sets only the fields whose flags were given.
func requestFromFlags(flags *pflag.FlagSet) *internal.EventRequest {
	req := &internal.EventRequest{}
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	req.Title = str("title")
	req.Description = str("description")
	req.Start = str("start")
	req.End = str("end")
	req.TimeZone = str("zone")
	req.Color = str("color")
	if flags.Changed("all-day") {
		v, _ := flags.GetBool("all-day")
		req.AllDay = &v
	}
	return req
}

func init() {
	addRangeFlags(eventsListCmd.Flags())
	eventsListCmd.Flags().Bool("json", false, "print JSON")
	addEventFlags(eventsCreateCmd.Flags())
	addEventFlags(eventsUpdateCmd.Flags())

	eventsCmd.AddCommand(eventsListCmd, eventsCreateCmd, eventsUpdateCmd, eventsDeleteCmd)
	rootCmd.AddCommand(eventsCmd)
}
