package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payengine/internal/crypto"
	"payengine/internal/hosttest"
	"payengine/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr          string
		cardFee       int64
		bankFee       int64
		transferState string
		logLevel      string
	)
	cmd := &cobra.Command{
		Use:          "payhost",
		Short:        "Run an in-memory payment host for local development",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(logLevel, true)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			host, err := hosttest.New()
			if err != nil {
				return err
			}
			host.CardFee = cardFee
			host.BankFee = bankFee
			host.TransferState = transferState
			host.VerifyAttestation = true

			r := chi.NewRouter()
			r.Use(middleware.RequestID, accessLog(log))
			r.Mount("/", host.Handler())

			log.Info("payhost listening",
				zap.String("addr", addr),
				zap.String("host_key", crypto.Fingerprint(host.PublicKey().Slice())))
			srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().Int64Var(&cardFee, "card-fee", 35, "card fee quote in minor units")
	cmd.Flags().Int64Var(&bankFee, "bank-fee", 150, "ACH fee quote in minor units")
	cmd.Flags().StringVar(&transferState, "transfer-state", "SUCCESS", "state reported for transfers (SUCCESS or FAILURE)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

// accessLog records method, path, remote, status, bytes and duration.
func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
