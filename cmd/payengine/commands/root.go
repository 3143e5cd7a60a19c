package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"payengine/internal/app"
)

var (
	cfg    app.Config
	appCtx *app.Wire
)

// Execute runs the CLI with os.Args.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRoot().ExecuteContext(ctx)
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "payengine",
		Short:         "Tokenize and capture payments against a payment host",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = app.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			appCtx, err = app.NewWire(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx == nil {
				return nil
			}
			if appCtx.Registry != nil {
				if err := printMetrics(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			return appCtx.Close()
		},
	}
	app.RegisterFlags(root.PersistentFlags())

	root.AddCommand(validateCmd(), feeCmd(), tokenizeCmd(), receiptsCmd())
	return root
}

// connect runs the handshake, honouring the configured timeout.
func connect(ctx context.Context) error {
	if err := cfg.RequireEndpoints(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := appCtx.Engine.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// printMetrics writes every gathered sample as name{labels} value.
func printMetrics(w io.Writer) error {
	families, err := appCtx.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			}
			fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), v)
		}
	}
	return nil
}
