package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/r2labs/uplink/internal/broker"
)

// newPendingCmd creates the 'pending' command.
func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List multipart uploads that were started but never completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings()
			if err != nil {
				return err
			}

			ops := broker.NewClient(s.BrokerURL, s.AdminToken, logger)
			uploads, err := ops.ListPendingUploads(cmd.Context())
			if err != nil {
				return err
			}

			if len(uploads) == 0 {
				cmd.Println("no pending multipart uploads")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tUPLOAD ID\tINITIATED")
			for _, u := range uploads {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.Key, u.UploadID, u.Initiated.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
