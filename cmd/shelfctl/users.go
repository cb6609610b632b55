package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"playlog/services/users"
)

func newUsersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List profiles stored in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := users.NewService(c.storage.Directory)
			if err != nil {
				return err
			}
			if pin := svc.InitialPin(); pin != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "created default profile, initial PIN %s\n", pin)
			}

			list := svc.List()
			if c.jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, u := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Name, u.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}
}
