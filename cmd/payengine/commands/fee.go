package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"payengine/internal/domain"
	"payengine/internal/engine"
	"payengine/internal/validate"
)

// fee --amount N (--card <pan> | --ach): print the fee quote.
func feeCmd() *cobra.Command {
	var (
		pan    string
		ach    bool
		amount int64
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Request a fee quote for a card or ACH payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pan == "") == !ach {
				return errors.New("exactly one of --card or --ach is required")
			}
			if amount <= 0 {
				return errors.New("--amount must be positive")
			}
			if !ach && validate.BIN(pan) == "" {
				return errors.New("--card needs at least six digits")
			}
			if err := connect(cmd.Context()); err != nil {
				return err
			}

			quoted := make(chan int64, 1)
			unsubscribe := appCtx.Engine.Subscribe(func(s engine.State) {
				fee := s.CardFee
				if ach {
					fee = s.BankFee
				}
				if fee >= 0 {
					select {
					case quoted <- fee:
					default:
					}
				}
			})
			defer unsubscribe()

			appCtx.Engine.SetAmount(amount)
			if ach {
				appCtx.Engine.SelectBank()
			} else {
				appCtx.Engine.SelectCard(pan)
			}

			select {
			case fee := <-quoted:
				fmt.Fprintf(cmd.OutOrStdout(), "Amount: %s\nFee:    %s\n", domain.FormatMinor(amount), domain.FormatMinor(fee))
				return nil
			case <-time.After(wait):
				return fmt.Errorf("no fee quote within %s", wait)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
	cmd.Flags().StringVar(&pan, "card", "", "card number or BIN")
	cmd.Flags().BoolVar(&ach, "ach", false, "quote an ACH payment")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units (cents)")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the quote")
	return cmd
}
