package main

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/callassist/internal/api"
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		req    api.CreateSessionRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			client, err := a.apiClient()
			if err != nil {
				return err
			}
			sess, err := client.CreateSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sess)
			}
			_, err = fmt.Fprintln(out, sess.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.OrgID, "org", "", "organization id")
	cmd.Flags().StringVar(&req.LocationID, "location", "", "location id")
	cmd.Flags().StringVar(&req.CampaignID, "campaign", "", "campaign id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full session descriptor as json")
	return cmd
}
