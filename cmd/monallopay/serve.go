package main

import (
	"context"
	"fmt"
	"monallopay/internal/api"
	"monallopay/internal/database"
	"monallopay/internal/emitters"
	"monallopay/internal/events"
	"monallopay/internal/health"
	"monallopay/internal/interfaces"
	"monallopay/internal/rates"
	"monallopay/internal/validation"
	"monallopay/internal/wallet"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the history, contacts and exchange rate API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	if err := store.Migrate(cfg.Database.DBName); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var emitter interfaces.EventEmitter = &events.LogEmitter{
		ExplorerBaseURL: cfg.Chain.ExplorerBaseURL,
		Logger:          a.logger,
	}
	if cfg.Kafka.Enabled {
		emitter = &events.LogEmitter{
			WrappedEmitter:  emitters.NewKafkaEmitter(cfg.Kafka, a.logger),
			ExplorerBaseURL: cfg.Chain.ExplorerBaseURL,
			Logger:          a.logger,
		}
	}
	defer func() {
		if err := emitter.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close event emitter")
		}
	}()

	// Read-only: the server never signs.
	chain, err := wallet.Dial(ctx, cfg.Chain.RpcEndpoint, cfg.Chain.ChainID, a.logger)
	if err != nil {
		return err
	}
	defer chain.Close()

	checker := health.NewChecker(store, 3*cfg.Chain.PollInterval, a.logger)
	handler := &api.Handler{
		Transfers:  store,
		Contacts:   store,
		Emitter:    emitter,
		Health:     checker,
		Translator: a.translator,
		Limiter:    rate.NewLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.Burst),
		Logger:     a.logger,
	}

	router, err := handler.Router()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Rates.Enabled {
		if err := validation.ValidateURL(cfg.Rates.BaseURL); err != nil {
			return fmt.Errorf("rates base url: %w", err)
		}
		client := rates.NewClient(cfg.Rates.BaseURL, cfg.Rates.APIKey, cfg.Rates.SecretKey,
			cfg.Rates.Passphrase, cfg.HTTP.Timeout, a.logger)
		poller := rates.NewPoller(client, cfg.Rates.Pair, cfg.Rates.Interval, a.logger)
		handler.Rates = poller
		g.Go(func() error { return poller.Run(ctx) })
	}

	g.Go(func() error {
		checker.WatchChain(ctx, cfg.Chain.Name, chain, cfg.Chain.PollInterval)
		return nil
	})
	g.Go(func() error {
		return api.Serve(ctx, cfg.API.ListenAddr, router, a.logger)
	})
	checker.SetReady(true)

	a.logger.Info().
		Str("chain", cfg.Chain.Name).
		Str("chainId", chain.ChainID().String()).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("rates", cfg.Rates.Enabled).
		Msg("MonalloPay API started")

	return g.Wait()
}
