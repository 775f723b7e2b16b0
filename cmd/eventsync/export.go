package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/eventsync/internal/ics"
)

var exportCmd = &cobra.Command{
	Use:   "export owner",
	Short: "Write the events of an account as an iCalendar file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

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
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: remote refresh failed, exporting stored events")
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := ics.Encode(w, list.Events, time.Now()); err != nil {
			return err
		}
		if output != "" && output != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d events to %s\n", len(list.Events), output)
		}
		return nil
	},
}

func init() {
	addRangeFlags(exportCmd.Flags())
	exportCmd.Flags().StringP("output", "o", "-", "file to write, - for stdout")

	rootCmd.AddCommand(exportCmd)
}
