package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"payengine/internal/domain"
)

func receiptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "List receipts saved by tokenize",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appCtx.Receipts == nil {
				return errors.New("passphrase required (-p)")
			}
			list, err := appCtx.Receipts.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECORDED\tRECEIPT\tKIND\tLAST4\tAMOUNT\tFEE\tSTATE")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RecordedAt.Format("2006-01-02 15:04:05"), r.ReceiptNumber, r.Kind,
					orDash(r.LastFour), domain.FormatMinor(r.Amount), domain.FormatMinor(r.ServiceFee), orDash(r.State))
			}
			return tw.Flush()
		},
	}
	return cmd
}
