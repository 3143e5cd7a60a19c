package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"payengine/internal/attest"
	"payengine/internal/backend"
	"payengine/internal/engine"
	"payengine/internal/logging"
	"payengine/internal/metrics"
	"payengine/internal/store"
	"payengine/internal/transport"
	"payengine/internal/validate"
)

// Wire bundles the logger, metrics, engine and stores for the CLI.
type Wire struct {
	Log       *zap.Logger
	Registry  *prometheus.Registry // nil unless Config.Metrics
	Metrics   metrics.Recorder
	Validator *validate.Validator
	Engine    *engine.Engine
	Receipts  *store.Receipts // nil without a passphrase
}

// NewWire constructs the dependency graph from cfg. The engine is built but
// not connected.
func NewWire(cfg Config) (*Wire, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogConsole)
	if err != nil {
		return nil, err
	}

	w := &Wire{Log: log, Metrics: metrics.NoopRecorder{}, Validator: validate.New()}
	if cfg.Metrics {
		w.Registry = prometheus.NewRegistry()
		rec, err := metrics.NewPrometheusRecorder(w.Registry)
		if err != nil {
			return nil, err
		}
		w.Metrics = rec
	}
	if cfg.Passphrase != "" {
		w.Receipts = store.NewReceipts(cfg.Home, cfg.Passphrase)
	}

	tokens := backend.NewHTTP(cfg.APIURL, cfg.APIKey)
	w.Engine = engine.New(engine.Config{
		SocketURL:        cfg.SocketURL,
		Origin:           cfg.Origin,
		HandshakeTimeout: cfg.HandshakeTimeout,
		HostTokenTTL:     cfg.HostTokenTTL,
		StrictFrames:     cfg.StrictFrames,
	}, tokens, attest.NewSoftware(), transport.NewWebSocket(log.Named("transport")),
		engine.WithLogger(log.Named("engine")),
		engine.WithMetrics(w.Metrics),
		engine.WithValidator(w.Validator),
		engine.WithErrorObserver(func(err error) {
			log.Warn("engine error", zap.Error(err))
		}))
	return w, nil
}

// Close shuts the engine down and flushes the logger.
func (w *Wire) Close() error {
	_ = w.Engine.Close()
	_ = w.Log.Sync()
	return nil
}
