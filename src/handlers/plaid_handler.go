package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"expense-ledger/src/db"
	"expense-ledger/src/logger"
	"expense-ledger/src/middleware"
	"expense-ledger/src/plaid"
	"expense-ledger/src/retry"
	"expense-ledger/src/util"

	"github.com/rs/zerolog"
)

const (
	DefaultInstitutionID = "ins_109508"
	DefaultWebhookCode   = "INITIAL_UPDATE"

	defaultWindowDays = 30
	detachedTimeout   = 45 * time.Second
)

// Deps is what the proxy handlers share. Cache is the only mutable state.
type Deps struct {
	Upstream plaid.Upstream
	Cache    *db.Cache
	Sandbox  bool
	Fake     bool
	Policy   retry.Policy
	Now      func() time.Time

	tasks sync.WaitGroup
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Wait blocks until detached refresh tasks have finished.
func (d *Deps) Wait() {
	d.tasks.Wait()
}

// decodeBody reads an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeRawJSON(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func errorDetails(err error) any {
	var upErr *plaid.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Details()
	}
	return err.Error()
}

func Info() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Plaid demo proxy. Use /create_link_token and /exchange_public_token",
			"note":    "Set x-demo-key header to the DEMO_API_KEY value.",
		})
	}
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}
}

func CreateLinkToken(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		userID := r.URL.Query().Get("client_user_id")
		if userID == "" {
			userID = fmt.Sprintf("student-%d", d.now().UnixMilli())
		}

		body, err := d.Upstream.CreateLinkToken(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("client_user_id", userID).Msg("link token create failed")
			middleware.WriteError(w, http.StatusBadGateway, "link token creation failed", errorDetails(err))
			return
		}

		writeRawJSON(w, http.StatusOK, body)
	}
}

func CreateSandboxPublicToken(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req struct {
			InitialProducts []string `json:"initial_products"`
			InstitutionID   string   `json:"institution_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if len(req.InitialProducts) == 0 {
			req.InitialProducts = []string{"transactions"}
		}
		if req.InstitutionID == "" {
			req.InstitutionID = DefaultInstitutionID
		}

		if !d.Fake && !d.Sandbox {
			middleware.WriteError(w, http.StatusBadRequest, "create_sandbox_public_token is only available in sandbox mode", nil)
			return
		}

		body, err := d.Upstream.CreateSandboxPublicToken(r.Context(), req.InstitutionID, req.InitialProducts)
		if err != nil {
			log.Error().Err(err).Str("institution_id", req.InstitutionID).Msg("sandbox public token create failed")
			status := http.StatusBadGateway
			var upErr *plaid.UpstreamError
			if errors.As(err, &upErr) && upErr.Status > 0 {
				status = upErr.Status
			}
			middleware.WriteError(w, status, "create_sandbox_public_token failed", errorDetails(err))
			return
		}

		writeRawJSON(w, http.StatusOK, body)
	}
}

func ExchangePublicToken(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req struct {
			PublicToken string `json:"public_token"`
		}
		if err := decodeBody(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if req.PublicToken == "" {
			middleware.WriteError(w, http.StatusBadRequest, "missing public_token in body", nil)
			return
		}

		body, err := d.Upstream.ExchangePublicToken(r.Context(), req.PublicToken)
		if err != nil {
			log.Error().Err(err).Msg("public token exchange failed")
			middleware.WriteError(w, http.StatusBadGateway, "public_token exchange failed", errorDetails(err))
			return
		}

		out := map[string]any{}
		if err := json.Unmarshal(body, &out); err != nil {
			log.Error().Err(err).Msg("unreadable exchange response")
			middleware.WriteError(w, http.StatusBadGateway, "public_token exchange failed", err.Error())
			return
		}
		accessToken, _ := out["access_token"].(string)
		itemID, _ := out["item_id"].(string)

		if itemID != "" && accessToken != "" {
			if err := d.Cache.SetAccessToken(r.Context(), itemID, accessToken); err != nil {
				log.Warn().Err(err).Str("item_id", itemID).Msg("failed to persist access token")
			}
			log.Info().Str("item_id", itemID).Msg("stored access token for item")
		}

		switch {
		case accessToken == "":
		case d.Fake:
			// Synthetic data is available at once, so hand it back with the token.
			d.refreshTransactions(r.Context(), accessToken)
		case d.Sandbox:
			d.detach(r.Context(), "sandbox auto-refresh", func(ctx context.Context, log zerolog.Logger) {
				if _, err := d.Upstream.FireWebhook(ctx, accessToken, DefaultWebhookCode); err != nil {
					log.Warn().Err(err).Msg("auto-fire sandbox webhook failed")
					return
				}
				d.refreshTransactions(ctx, accessToken)
			})
		}

		if cached, ok := d.Cache.Transactions(accessToken); ok && accessToken != "" {
			out["cached_transactions"] = cached
			out["cached_transactions_present"] = true
		} else {
			out["cached_transactions_present"] = false
		}

		middleware.WriteJSON(w, http.StatusOK, out)
	}
}

// syncReady reports whether a /transactions/sync body shows the Item has
// data: something was added, or the update status is past NOT_READY.
func syncReady(body json.RawMessage) bool {
	var resp struct {
		Added  []json.RawMessage `json:"added"`
		Status string            `json:"transactions_update_status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	if len(resp.Added) > 0 {
		return true
	}
	return resp.Status != "" && resp.Status != "NOT_READY"
}

type pollOutcome struct {
	sync         json.RawMessage
	transactions json.RawMessage
}

func TransactionsForAccessToken(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req struct {
			AccessToken string `json:"access_token"`
			StartDate   string `json:"start_date"`
			EndDate     string `json:"end_date"`
		}
		if err := decodeBody(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if req.AccessToken == "" {
			middleware.WriteError(w, http.StatusBadRequest, "missing access_token in body", nil)
			return
		}
		if req.StartDate != "" && !util.ValidateISODate(req.StartDate) {
			middleware.WriteError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD", nil)
			return
		}
		if req.EndDate != "" && !util.ValidateISODate(req.EndDate) {
			middleware.WriteError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD", nil)
			return
		}

		if cached, ok := d.Cache.Transactions(req.AccessToken); ok {
			log.Info().Msg("returning cached transactions")
			writeRawJSON(w, http.StatusOK, cached)
			return
		}

		start, end := util.DateRangeEndingAt(d.now(), defaultWindowDays)
		if req.StartDate != "" {
			start = req.StartDate
		}
		if req.EndDate != "" {
			end = req.EndDate
		}

		policy := d.Policy
		policy.Logger = &log
		outcome, attempts, err := retry.Until(r.Context(), policy,
			func(ctx context.Context, attempt int) (pollOutcome, error) {
				log.Debug().Int("attempt", attempt).Msg("polling transactions/sync")
				syncBody, err := d.Upstream.TransactionsSync(ctx, req.AccessToken, "")
				if err != nil {
					log.Warn().Err(err).Int("attempt", attempt).Msg("transactions sync call failed")
					return pollOutcome{}, err
				}
				out := pollOutcome{sync: syncBody}
				if !syncReady(syncBody) {
					return out, nil
				}
				txns, err := d.Upstream.TransactionsGet(ctx, req.AccessToken, start, end)
				if err != nil {
					log.Warn().Err(err).Int("attempt", attempt).Msg("transactions get failed after sync indicated readiness")
					return out, nil
				}
				out.transactions = txns
				return out, nil
			},
			func(o pollOutcome) bool { return o.transactions != nil },
			func(error) bool { return true },
		)

		if err != nil {
			if errors.Is(err, retry.ErrMaxRetries) {
				log.Warn().Int("attempts", attempts).Msg("no transactions after polling sync")
				var details any = map[string]any{}
				if outcome.sync != nil {
					details = outcome.sync
				}
				middleware.WriteError(w, http.StatusBadGateway, "transactions fetch failed - not ready", details)
				return
			}
			log.Error().Err(err).Int("attempts", attempts).Msg("transactions fetch failed")
			middleware.WriteError(w, http.StatusBadGateway, "transactions fetch failed", errorDetails(err))
			return
		}

		d.Cache.SetTransactions(req.AccessToken, outcome.transactions)
		log.Info().Int("attempts", attempts).Msg("fetched and cached transactions after sync")
		writeRawJSON(w, http.StatusOK, outcome.transactions)
	}
}

func TransactionsSyncForAccessToken(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req struct {
			AccessToken string `json:"access_token"`
			Cursor      string `json:"cursor"`
		}
		if err := decodeBody(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if req.AccessToken == "" {
			middleware.WriteError(w, http.StatusBadRequest, "missing access_token in body", nil)
			return
		}

		body, err := d.Upstream.TransactionsSync(r.Context(), req.AccessToken, req.Cursor)
		if err != nil {
			log.Error().Err(err).Msg("transactions sync failed")
			middleware.WriteError(w, http.StatusBadGateway, "transactions sync failed", errorDetails(err))
			return
		}

		writeRawJSON(w, http.StatusOK, body)
	}
}

var transactionsReadyCodes = map[string]bool{
	"INITIAL_UPDATE":         true,
	"HISTORICAL_UPDATE":      true,
	"DEFAULT_UPDATE":         true,
	"SYNC_UPDATES_AVAILABLE": true,
}

// Webhook acknowledges every delivery. A transactions-ready notification for
// a known item refreshes its cached transactions in the background.
func Webhook(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var payload struct {
			WebhookType string `json:"webhook_type"`
			WebhookCode string `json:"webhook_code"`
			ItemID      string `json:"item_id"`
		}
		if err := decodeBody(r, &payload); err != nil {
			log.Warn().Err(err).Msg("unreadable webhook payload")
		}
		log.Info().
			Str("webhook_type", payload.WebhookType).
			Str("webhook_code", payload.WebhookCode).
			Str("item_id", payload.ItemID).
			Msg("webhook received")

		if payload.WebhookType == "TRANSACTIONS" && transactionsReadyCodes[payload.WebhookCode] {
			if accessToken, ok := d.Cache.AccessToken(r.Context(), payload.ItemID); ok {
				d.detach(r.Context(), "webhook refresh", func(ctx context.Context, _ zerolog.Logger) {
					d.refreshTransactions(ctx, accessToken)
				})
			} else {
				log.Info().Str("item_id", payload.ItemID).Msg("no access token for webhook item")
			}
		}

		middleware.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func FireSandboxWebhook(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req struct {
			AccessToken string `json:"access_token"`
			WebhookCode string `json:"webhook_code"`
		}
		if err := decodeBody(r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if req.AccessToken == "" {
			middleware.WriteError(w, http.StatusBadRequest, "missing access_token in body", nil)
			return
		}
		if req.WebhookCode == "" {
			req.WebhookCode = DefaultWebhookCode
		}
		if !d.Fake && !d.Sandbox {
			middleware.WriteError(w, http.StatusBadRequest, "fire_webhook is only available in sandbox mode", nil)
			return
		}

		body, err := d.Upstream.FireWebhook(r.Context(), req.AccessToken, req.WebhookCode)
		if err != nil {
			log.Error().Err(err).Str("webhook_code", req.WebhookCode).Msg("fire sandbox webhook failed")
			middleware.WriteError(w, http.StatusBadGateway, "fire_webhook failed", errorDetails(err))
			return
		}

		middleware.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "resp": body})
	}
}

// refreshTransactions makes one /transactions/get call over the default
// window and caches the result. Failures are only logged.
func (d *Deps) refreshTransactions(ctx context.Context, accessToken string) {
	log := logger.FromContext(ctx)

	start, end := util.DateRangeEndingAt(d.now(), defaultWindowDays)
	body, err := d.Upstream.TransactionsGet(ctx, accessToken, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("transactions refresh failed")
		return
	}
	d.Cache.SetTransactions(accessToken, body)

	var resp struct {
		TotalTransactions int `json:"total_transactions"`
	}
	_ = json.Unmarshal(body, &resp)
	log.Info().Int("total_transactions", resp.TotalTransactions).Msg("cached transactions")
}

// detach runs fn after the response, outside the request's cancellation. It
// has its own timeout; errors and panics end up in the log only.
func (d *Deps) detach(parent context.Context, name string, fn func(ctx context.Context, log zerolog.Logger)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), detachedTimeout)
	log := logger.FromContext(ctx).With().Str("task", name).Logger()
	ctx = logger.WithContext(ctx, log)

	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Msg("detached task panicked")
			}
		}()
		fn(ctx, log)
	}()
}
