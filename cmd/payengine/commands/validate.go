package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"payengine/internal/domain"
	"payengine/internal/validate"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check payment details locally",
	}
	cmd.AddCommand(validateCardCmd(), validateBankCmd())
	return cmd
}

// validate card <number> [--exp MM/YY] [--cvv N]
func validateCardCmd() *cobra.Command {
	var exp, cvv string
	cmd := &cobra.Command{
		Use:   "card <number>",
		Short: "Validate a card number, expiry and security code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pan := args[0]
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Number:  %s\n", validate.MaskPAN(pan))
			fmt.Fprintf(out, "Brand:   %s\n", orDash(validate.Brand(pan)))
			fmt.Fprintf(out, "Display: %s\n", validate.FormatCardNumber(pan))
			if exp == "" {
				if !validate.CardNumberValid(pan) {
					return errors.New("invalid card number")
				}
				fmt.Fprintln(out, "valid")
				return nil
			}

			month, year := validate.ParseExpiry(validate.FormatExpiry(exp))
			card := domain.Card{
				Number:          pan,
				ExpirationMonth: month,
				ExpirationYear:  year,
				SecurityCode:    cvv,
			}
			return report(cmd, appCtx.Validator.Instrument(card))
		},
	}
	cmd.Flags().StringVar(&exp, "exp", "", "expiry as MM/YY")
	cmd.Flags().StringVar(&cvv, "cvv", "", "security code")
	return cmd
}

// validate bank <routing> <account>
func validateBankCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "bank <routing> <account>",
		Short: "Validate an ACH routing and account number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(cmd, appCtx.Validator.Instrument(domain.BankAccount{
				RoutingNumber: args[0],
				AccountNumber: args[1],
				Name:          name,
			}))
		},
	}
	cmd.Flags().StringVar(&name, "name", "account holder", "account holder name")
	return cmd
}

func report(cmd *cobra.Command, err error) error {
	var de *domain.Error
	if errors.As(err, &de) && len(de.Fields) > 0 {
		return fmt.Errorf("invalid: %s", strings.Join(de.Fields, ", "))
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "valid")
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
