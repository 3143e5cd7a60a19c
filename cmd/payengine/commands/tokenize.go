package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"payengine/internal/domain"
	"payengine/internal/engine"
	"payengine/internal/store"
	"payengine/internal/validate"
)

type tokenizeFlags struct {
	card, exp, cvv, name string
	routing, account     string
	savings              bool
	cash                 bool
	contact, email       string
	amount               int64
	feeMode              string
	capture              bool
	description          string
	tags                 []string
	timeout              time.Duration
}

// tokenize --amount N (--card ... | --routing ... --account ... | --cash)
func tokenizeCmd() *cobra.Command {
	var f tokenizeFlags
	cmd := &cobra.Command{
		Use:   "tokenize",
		Short: "Run a card, ACH or cash payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := f.instrument()
			if err != nil {
				return err
			}
			tags, err := parseTags(f.tags)
			if err != nil {
				return err
			}
			if err := connect(cmd.Context()); err != nil {
				return err
			}
			eng := appCtx.Engine
			eng.SetAmount(f.amount)
			switch inst.Kind() {
			case domain.KindCard:
				eng.SelectCard(f.card)
			case domain.KindBankAccount:
				eng.SelectBank()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
			defer cancel()
			out, err := eng.Tokenize(ctx, engine.TokenizeRequest{
				Instrument:         inst,
				Amount:             f.amount,
				FeeMode:            domain.FeeMode(f.feeMode),
				Buyer:              domain.BuyerOptions{Email: f.email},
				Tags:               tags,
				ReceiptDescription: f.description,
			}).Wait(ctx)
			if err != nil {
				return err
			}
			if err := emit(cmd, out); err != nil {
				return err
			}
			if out.Kind == domain.OutcomeToken && f.capture {
				out, err = eng.Capture(ctx).Wait(ctx)
				if err != nil {
					return err
				}
				return emit(cmd, out)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.card, "card", "", "card number")
	fl.StringVar(&f.exp, "exp", "", "card expiry as MM/YY")
	fl.StringVar(&f.cvv, "cvv", "", "card security code")
	fl.StringVar(&f.name, "name", "", "card or account holder name")
	fl.StringVar(&f.routing, "routing", "", "ACH routing number")
	fl.StringVar(&f.account, "account", "", "ACH account number")
	fl.BoolVar(&f.savings, "savings", false, "ACH savings account")
	fl.BoolVar(&f.cash, "cash", false, "pay in cash with a barcode")
	fl.StringVar(&f.contact, "contact", "", "cash payer phone or email")
	fl.StringVar(&f.email, "email", "", "buyer email")
	fl.Int64Var(&f.amount, "amount", 0, "amount in minor units (cents)")
	fl.StringVar(&f.feeMode, "fee-mode", string(domain.Surcharge), "surcharge or service_fee")
	fl.BoolVar(&f.capture, "capture", false, "capture a service_fee payment right away")
	fl.StringVar(&f.description, "description", "", "receipt description")
	fl.StringSliceVar(&f.tags, "tag", nil, "tag as key=value (repeatable)")
	fl.DurationVar(&f.timeout, "timeout", time.Minute, "how long to wait for the host")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (f tokenizeFlags) instrument() (domain.Instrument, error) {
	switch {
	case f.card != "" && f.routing == "" && !f.cash:
		month, year := validate.ParseExpiry(validate.FormatExpiry(f.exp))
		return domain.Card{
			Number:          f.card,
			ExpirationMonth: month,
			ExpirationYear:  year,
			SecurityCode:    f.cvv,
			Name:            f.name,
		}, nil
	case f.routing != "" && f.card == "" && !f.cash:
		acct := domain.BankAccount{
			RoutingNumber: f.routing,
			AccountNumber: f.account,
			Name:          f.name,
		}
		if f.savings {
			acct.AccountType = domain.Savings
		}
		return acct, nil
	case f.cash && f.card == "" && f.routing == "":
		return domain.Cash{Name: f.name, Contact: f.contact}, nil
	}
	return nil, errors.New("exactly one of --card, --routing or --cash is required")
}

func parseTags(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad tag %q, want key=value", kv)
		}
		tags[k] = v
	}
	return tags, nil
}

// emit prints out as JSON and journals it when a passphrase is set.
func emit(cmd *cobra.Command, out domain.Outcome) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if appCtx.Receipts == nil {
		return nil
	}
	r, ok := store.ReceiptFromOutcome(out, time.Now())
	if !ok {
		return nil
	}
	if err := appCtx.Receipts.Append(r); err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}
