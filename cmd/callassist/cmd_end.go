package main

import (
	"fmt"

	"github.com/danmuck/callassist/internal/projection"
	"github.com/danmuck/callassist/internal/render"
	"github.com/spf13/cobra"
)

func newEndCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var f render.Format
			if format != "" {
				var err error
				if f, err = render.ParseFormat(format); err != nil {
					return err
				}
			}
			if err := a.load(); err != nil {
				return err
			}
			client, err := a.apiClient()
			if err != nil {
				return err
			}
			summary, err := client.EndSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("end session %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if f == "" {
				_, err = fmt.Fprint(out, render.New(out).Summary(summary))
				return err
			}
			state := projection.NewSessionState(summary.SessionID)
			state.Status = projection.StatusCompleted
			return render.Export(out, f, render.Report{Session: state, Summary: &summary})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: json, yaml or markdown (default: panel)")
	return cmd
}
