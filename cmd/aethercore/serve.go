package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/bridge/chainclient"
	"github.com/aethercore-labs/aethercore/config"
	"github.com/aethercore-labs/aethercore/consensus/certification"
	"github.com/aethercore-labs/aethercore/consensus/detection"
	"github.com/aethercore-labs/aethercore/consensus/safety"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/crypto/address"
	"github.com/aethercore-labs/aethercore/events"
	"github.com/aethercore-labs/aethercore/logger"
	"github.com/aethercore-labs/aethercore/metrics"
	"github.com/aethercore-labs/aethercore/network"
	"github.com/aethercore-labs/aethercore/store"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 30 * time.Second
	// devConfirmations is reported by in-memory ledgers for every source
	// transaction when no gateway is configured.
	devConfirmations = 64
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge API, websocket stream and safety evaluator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.App.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			app := fx.New(
				fx.Supply(cfg, log),
				fx.Provide(
					provideStore,
					provideLedgers,
					provideOperator,
					provideHub,
					providePublisher,
					provideManager,
					provideEvaluator,
					provideAuthenticator,
					provideRouter,
				),
				fx.Invoke(startHTTPServer),
				fx.WithLogger(func() fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log.Named("fx")}
				}),
			)

			startCtx, cancel := context.WithTimeout(cmd.Context(), fx.DefaultTimeout)
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return fmt.Errorf("start node: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			log.Info("shutting down")

			stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}
}

func provideStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (bridge.Store, error) {
	if cfg.Storage.InMemory {
		log.Warn("using in-memory bridge store; transactions are lost on restart")
		return store.NewMemoryStore(), nil
	}
	db, err := store.NewDatabase(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st, err := store.NewBadgerStore(db, cfg.Storage.CacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return db.Close() }})
	return st, nil
}

func provideLedgers(cfg *config.Config, log *zap.Logger) (map[bridge.NetworkType]bridge.Ledger, error) {
	chains := make(map[bridge.NetworkType]config.ChainConfig, len(cfg.Chains))
	for name, c := range cfg.Chains {
		n, err := bridge.ParseNetwork(name)
		if err != nil {
			return nil, err
		}
		chains[n] = c
	}

	ledgers := make(map[bridge.NetworkType]bridge.Ledger)
	for _, d := range bridge.Directions {
		src, dst, _ := d.Networks()
		for _, n := range []bridge.NetworkType{src, dst} {
			if _, ok := ledgers[n]; ok {
				continue
			}
			c, ok := chains[n]
			if !ok || c.URL == "" {
				log.Warn("no ledger gateway configured, using in-memory ledger", zap.String("network", string(n)))
				ledgers[n] = chainclient.NewMemoryLedger(n, chainclient.WithAutoConfirm(devConfirmations))
				continue
			}
			l, err := chainclient.NewHTTPLedger(chainclient.HTTPConfig{BaseURL: c.URL, Timeout: c.Timeout, RPS: c.RPS}, log)
			if err != nil {
				return nil, fmt.Errorf("ledger %s: %w", n, err)
			}
			ledgers[n] = l
		}
	}
	return ledgers, nil
}

func provideOperator(cfg *config.Config, log *zap.Logger) (*crypto.PrivateKey, error) {
	level := crypto.SecurityLevel(cfg.Bridge.OperatorSecurityLevel)
	var (
		key *crypto.PrivateKey
		err error
	)
	if cfg.Bridge.OperatorMnemonic != "" {
		key, err = crypto.PrivateKeyFromMnemonic(cfg.Bridge.OperatorMnemonic, cfg.Bridge.OperatorPassphrase, level)
	} else {
		log.Warn("no operator mnemonic configured, generating an ephemeral operator key")
		key, err = crypto.NewPrivateKey(level)
	}
	if err != nil {
		return nil, fmt.Errorf("operator key: %w", err)
	}
	if addr, err := address.New(key.PublicKey()); err == nil {
		log.Info("bridge operator",
			zap.String("address", addr.String()),
			zap.String("scheme", level.SignatureScheme()))
	}
	return key, nil
}

func provideHub(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *network.Hub {
	hub := network.NewHub(cfg.App.AllowedOrigins, log)
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		hub.Close()
		return nil
	}})
	return hub
}

func providePublisher(lc fx.Lifecycle, cfg *config.Config, hub *network.Hub, log *zap.Logger) (bridge.Publisher, error) {
	fanout := events.NewFanout(log, hub)
	if !cfg.NATS.Enabled {
		return fanout, nil
	}
	pub, err := events.NewNATSPublisher(events.NATSConfig{
		URL:               cfg.NATS.URL,
		Subject:           cfg.NATS.Subject,
		ConnectTimeout:    cfg.NATS.ConnectTimeout,
		ReconnectAttempts: cfg.NATS.ReconnectAttempts,
		ReconnectDelay:    cfg.NATS.ReconnectDelay,
	}, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return pub.Close() }})
	fanout.Add(pub)
	return fanout, nil
}

func provideManager(
	cfg *config.Config,
	st bridge.Store,
	ledgers map[bridge.NetworkType]bridge.Ledger,
	operator *crypto.PrivateKey,
	pub bridge.Publisher,
	log *zap.Logger,
) (*bridge.Manager, error) {
	bc, err := cfg.BridgeManagerConfig()
	if err != nil {
		return nil, err
	}
	opts := []bridge.Option{
		bridge.WithPublisher(pub),
		bridge.WithScreener(detection.NewAnalyzer()),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, bridge.WithMetrics(metrics.NewBridge()))
	}
	return bridge.NewManager(bc, st, ledgers, operator, log, opts...)
}

func provideEvaluator(cfg *config.Config) (*safety.Evaluator, error) {
	cc, err := cfg.CertifierConfig()
	if err != nil {
		return nil, err
	}
	certifier, err := certification.New(cc)
	if err != nil {
		return nil, err
	}
	return safety.NewEvaluator(certifier, detection.NewAnalyzer()), nil
}

func provideAuthenticator(cfg *config.Config, log *zap.Logger) (*network.Authenticator, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
		log.Warn("no jwt secret configured, tokens will not survive a restart")
	}
	return network.NewAuthenticator(secret)
}

func provideRouter(
	cfg *config.Config,
	manager *bridge.Manager,
	evaluator *safety.Evaluator,
	auth *network.Authenticator,
	hub *network.Hub,
	log *zap.Logger,
) (*network.Router, error) {
	opts := network.Options{
		Bridge:         manager,
		Safety:         evaluator,
		Auth:           auth,
		Hub:            hub,
		AllowedOrigins: cfg.App.AllowedOrigins,
		Metrics:        cfg.Metrics.Enabled,
		Logger:         log,
	}
	if cfg.Metrics.Enabled {
		opts.OnEvaluation = metrics.ObserveSafety
	}
	return network.NewRouter(opts)
}

func startHTTPServer(lc fx.Lifecycle, cfg *config.Config, router *network.Router, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			log.Info("http server listening",
				zap.String("addr", ln.Addr().String()),
				zap.Bool("tls", cfg.App.TLSEnabled()))
			go func() {
				var err error
				if cfg.App.TLSEnabled() {
					err = srv.ServeTLS(ln, cfg.App.CertPath, cfg.App.KeyPath)
				} else {
					err = srv.Serve(ln)
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
