package api

import (
	"expense-ledger/src/handlers"
	"expense-ledger/src/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	DemoAPIKey     string
	AllowedOrigins []string
}

func NewRouter(d *handlers.Deps, cfg RouterConfig, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/", handlers.Info())
	r.Get("/health", handlers.Health())

	// Provider push notifications carry no demo key.
	r.Post("/webhook", handlers.Webhook(d))
	r.Post("/plaid_webhook", handlers.Webhook(d))

	// Protected routes
	r.With(middleware.DemoKeyMiddleware(cfg.DemoAPIKey)).Group(func(r chi.Router) {
		r.Get("/create_link_token", handlers.CreateLinkToken(d))
		r.Post("/exchange_public_token", handlers.ExchangePublicToken(d))
		r.Post("/transactions_for_access_token", handlers.TransactionsForAccessToken(d))
		r.Post("/transactions_sync_for_access_token", handlers.TransactionsSyncForAccessToken(d))

		// Sandbox helpers answer 400 outside sandbox mode.
		r.Post("/create_sandbox_public_token", handlers.CreateSandboxPublicToken(d))
		r.Post("/sandbox/fire_webhook", handlers.FireSandboxWebhook(d))
	})

	return r
}
