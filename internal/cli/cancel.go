package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r2labs/uplink/internal/broker"
)

// newCancelAllCmd creates the 'cancel-all' command.
func newCancelAllCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cancel-all",
		Short: "Abort every outstanding multipart upload in the bucket",
		Long: `Abort every outstanding multipart upload in the bucket.

This is bucket-wide: it aborts uploads started by other sessions too,
which frees the storage their parts hold.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings()
			if err != nil {
				return err
			}

			if !yes && !confirm(cmd, "abort ALL pending multipart uploads in the bucket? [y/N] ") {
				cmd.Println("aborted nothing")
				return nil
			}

			ops := broker.NewClient(s.BrokerURL, s.AdminToken, logger)
			sum, err := ops.CancelAllUploads(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("aborted %d of %d pending uploads\n", sum.Aborted, sum.Total)
			if sum.Aborted < sum.Total {
				return fmt.Errorf("%d uploads could not be aborted", sum.Total-sum.Aborted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	cmd.Print(prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
