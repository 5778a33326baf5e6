// Package main initializes and starts the GophFill autofill daemon, setting up
// configuration, logging, the password store, the match repository, services,
// handlers, and optional mutual TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/GophFill/internal/config"
	"github.com/atinyakov/GophFill/internal/corpus"
	"github.com/atinyakov/GophFill/internal/db"
	"github.com/atinyakov/GophFill/internal/decrypt"
	"github.com/atinyakov/GophFill/internal/flow"
	"github.com/atinyakov/GophFill/internal/logger"
	"github.com/atinyakov/GophFill/internal/repository"
	"github.com/atinyakov/GophFill/internal/search"
	"github.com/atinyakov/GophFill/internal/server/handler/http"
	"github.com/atinyakov/GophFill/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}

	err := run(options, log.Log)
	_ = log.Log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM. Every resource opened here is closed before it
// returns, also on startup failures.
func run(options *config.Options, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the match repository.
	repo, err := repository.Open(options.Backend(), options.DatabaseDSN)
	if err != nil {
		zapLogger.Error("cannot open match store", zap.String("backend", options.MatchBackend), zap.Error(err))
		return err
	}
	defer repo.Close()

	// Open the password store and keep its listing cached until it changes.
	store, err := corpus.NewStore(options.StoreDir)
	if err != nil {
		zapLogger.Error("cannot open password store", zap.Error(err))
		return err
	}
	entries, err := corpus.NewWatched(store, zapLogger)
	if err != nil {
		zapLogger.Error("cannot watch password store", zap.Error(err))
		return err
	}
	defer entries.Close()

	// Remove matches to deleted entries.
	if interval := time.Duration(options.PruneInterval); interval > 0 {
		db.StartStaleMatchPruner(ctx, repo, store.Root(), interval, zapLogger)
	}

	engine := search.NewEngine(options.Structure(), options.ResultLimit, zapLogger)
	matchService := service.NewMatchService(repo)
	decrypter := decrypt.Checked{Store: entries, Log: zapLogger}

	flows := flow.NewRegistry(zapLogger)
	defer flows.CancelAll()
	if idle := time.Duration(options.FlowIdleTimeout); idle > 0 {
		flows.StartSweeper(ctx, idle/2, idle)
	}

	// Create HTTP handlers for fill flows and matches.
	fillHandler := &http.FillHandler{
		NewFlow: func(req flow.Request) (*flow.Flow, error) {
			return flow.New(req, flow.Deps{
				Engine:          engine,
				Corpus:          entries,
				Matches:         matchService,
				Decrypter:       decrypter,
				StrictByDefault: options.StrictWebDefault,
				Log:             zapLogger,
			})
		},
		Flows: flows,
		Log:   zapLogger,
	}
	matchHandler := &http.MatchHandler{MatchService: matchService}

	tlsConfig, err := loadTLS(options)
	if err != nil {
		zapLogger.Error("failed to configure TLS", zap.Error(err))
		return err
	}
	requireCert := tlsConfig != nil && tlsConfig.ClientCAs != nil

	// Build the router with middleware and routes.
	router := http.NewRouter(fillHandler, matchHandler, zapLogger, requireCert, options.AllowedBridges...)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting autofill daemon",
		zap.String("addr", options.Addr),
		zap.String("store", store.Root()),
		zap.String("structure", options.Structure().String()),
		zap.String("backend", options.MatchBackend),
		zap.Bool("tls", tlsConfig != nil),
		zap.Bool("client_certs", requireCert),
		zap.Strings("bridges", options.AllowedBridges),
	)
	if tlsConfig != nil {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Error("failed to start server", zap.Error(err))
		return err
	}
	return nil
}

// loadTLS returns nil when no certificate is configured.
func loadTLS(options *config.Options) (*tls.Config, error) {
	if options.CertFile == "" {
		return nil, nil
	}
	// Load server TLS certificate and key.
	cert, err := tls.LoadX509KeyPair(options.CertFile, options.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server cert/key: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if options.CAFile == "" {
		return tlsConfig, nil
	}

	// Load and append CA certificate for client cert verification.
	caCert, err := os.ReadFile(options.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
		return nil, errors.New("failed to append CA cert to pool")
	}
	// Verify client certificates if given; CertAuth rejects requests without one.
	tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	tlsConfig.ClientCAs = caCertPool
	return tlsConfig, nil
}
