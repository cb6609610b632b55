package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"playlog/services/ordering"
)

func newListCmd(c *cli) *cobra.Command {
	var wishlist bool

	cmd := &cobra.Command{
		Use:   "list <user-id> <games|animes>",
		Short: "List a collection grouped by year played",
		Example: `  shelfctl list default games
  shelfctl list default animes --wishlist --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, snapshot, err := c.collection(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer adapter.Close()

			out := cmd.OutOrStdout()
			if wishlist {
				items := ordering.Wishlist(snapshot.Items)
				if c.jsonOut {
					return json.NewEncoder(out).Encode(items)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, item := range items {
					fmt.Fprintf(tw, "%s\t%s\n", item.ID, item.Name)
				}
				return tw.Flush()
			}

			buckets := ordering.Library(snapshot.Items)
			if c.jsonOut {
				return json.NewEncoder(out).Encode(buckets)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, bucket := range buckets {
				label := fmt.Sprint(bucket.Year)
				if bucket.Unknown() {
					label = "unknown"
				}
				fmt.Fprintf(tw, "== %s ==\n", label)
				for _, item := range bucket.Items {
					fmt.Fprintf(tw, "%s\t%s\t%.1f\n", item.ID, item.Name, item.PersonalRating)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&wishlist, "wishlist", false, "list wishlist entries instead of the library")
	return cmd
}
