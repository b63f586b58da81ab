package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-ledger/src/api"
	"expense-ledger/src/config"
	"expense-ledger/src/db"
	"expense-ledger/src/handlers"
	"expense-ledger/src/logger"
	"expense-ledger/src/plaid"
	"expense-ledger/src/retry"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("DB connection failed")
		}
		defer pool.Close()
	}

	cache, err := db.NewCache(pool, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cache init failed")
	}
	defer cache.Close()
	if err := cache.Warm(ctx); err != nil {
		log.Fatal().Err(err).Msg("cache warm-up failed")
	}

	var upstream plaid.Upstream
	if cfg.FakePlaid {
		log.Warn().Msg("FAKE_PLAID enabled: serving synthetic tokens and transactions")
		upstream = plaid.NewFake(nil)
	} else {
		plaidClient, err := plaid.NewPlaidClient(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv)
		if err != nil {
			log.Fatal().Err(err).Msg("plaid client init failed")
		}
		upstream = plaid.NewClient(plaidClient)
	}

	deps := &handlers.Deps{
		Upstream: upstream,
		Cache:    cache,
		Sandbox:  cfg.Sandbox(),
		Fake:     cfg.FakePlaid,
		Policy:   retry.DefaultPolicy(),
	}

	// Router
	router := api.NewRouter(deps, api.RouterConfig{
		DemoAPIKey:     cfg.DemoAPIKey,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}

	log.Info().Str("port", cfg.Port).Str("plaid_env", cfg.PlaidEnv).Bool("fake_plaid", cfg.FakePlaid).Msg("API server running")
	if err := serve(ctx, srv, ln, deps, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}
