// Package ingest turns a linked Item into ledger rows: it exchanges the
// public token, polls for transactions, normalizes them and stores them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"expense-ledger/src/gateway"
	"expense-ledger/src/ledger"
	"expense-ledger/src/models"
	"expense-ledger/src/retry"

	"github.com/rs/zerolog"
)

// Gateway is the part of the proxy client the orchestrator drives.
type Gateway interface {
	CreateSandboxPublicToken(ctx context.Context, products []string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*gateway.Exchange, error)
	gateway.Fetcher
}

// Preferences persists the session so the next launch can refresh on its own.
type Preferences interface {
	AccessToken() string
	SaveSession(accessToken string) error
}

type Trigger int

const (
	TriggerLink Trigger = iota
	TriggerSimulate
	TriggerResume
)

func (t Trigger) String() string {
	switch t {
	case TriggerLink:
		return "link"
	case TriggerSimulate:
		return "simulate"
	case TriggerResume:
		return "resume"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one run.
type Result struct {
	State    State
	Fetched  int
	Inserted int
	Attempts int
	Reason   string
}

func (r Result) String() string {
	if r.State == Failed {
		return "Failed(" + r.Reason + ")"
	}
	return fmt.Sprintf("%s(%d)", r.State, r.Inserted)
}

type Orchestrator struct {
	gw         Gateway
	store      ledger.Store
	policy     retry.Policy
	prefs      Preferences
	status     *StatusSlot
	logger     zerolog.Logger
	dateRange  *gateway.DateRange
	onComplete func(Result)

	mu         sync.Mutex
	state      State
	launchOnce sync.Once
	launchRes  Result
}

type Option func(*Orchestrator)

func WithPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithPreferences(p Preferences) Option {
	return func(o *Orchestrator) { o.prefs = p }
}

func WithStatus(s *StatusSlot) Option {
	return func(o *Orchestrator) { o.status = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithDateRange(dr *gateway.DateRange) Option {
	return func(o *Orchestrator) { o.dateRange = dr }
}

// WithOnComplete registers the shell's "close and return" callback.
func WithOnComplete(fn func(Result)) Option {
	return func(o *Orchestrator) { o.onComplete = fn }
}

func New(gw Gateway, store ledger.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:     gw,
		store:  store,
		policy: retry.DefaultPolicy(),
		status: NewStatusSlot(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.policy.Logger == nil {
		l := o.logger
		o.policy.Logger = &l
	}
	return o
}

func (o *Orchestrator) Status() *StatusSlot { return o.status }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(s State, msg string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()

	o.status.Publish(msg)
	o.logger.Info().Str("state", s.String()).Msg(msg)
}

func (o *Orchestrator) fail(res Result, reason string) Result {
	res.State = Failed
	res.Reason = reason
	o.transition(Failed, reason)
	return res
}

// Run drives a full ingestion from a public token. It never returns an
// error: every failure ends in a Failed result with a readable reason.
func (o *Orchestrator) Run(ctx context.Context, publicToken string, trigger Trigger) (res Result) {
	defer o.recoverInto(&res)

	o.transition(ExchangingToken, "Exchanging public token...")
	ex, err := o.gw.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return o.finish(trigger, "", o.fail(Result{}, fmt.Sprintf("exchange_public_token failed: %v", err)))
	}
	if strings.TrimSpace(ex.AccessToken) == "" {
		return o.finish(trigger, "", o.fail(Result{}, "exchange_public_token returned no access_token"))
	}
	o.logger.Debug().
		Str("item_id", ex.ItemID).
		Str("access_token", models.RedactToken(ex.AccessToken)).
		Msg("exchanged public token")

	if ex.CachedLoaded {
		o.transition(FetchingTransactions, "Got access_token, using transactions cached by the proxy")
		return o.finish(trigger, ex.AccessToken, o.persist(ctx, ex.Cached, Result{}))
	}
	return o.finish(trigger, ex.AccessToken, o.fetchAndPersist(ctx, ex.AccessToken, "Got access_token, fetching transactions..."))
}

// Resume ingests with an access token kept from an earlier session.
func (o *Orchestrator) Resume(ctx context.Context, accessToken string) (res Result) {
	defer o.recoverInto(&res)

	if strings.TrimSpace(accessToken) == "" {
		return o.finish(TriggerResume, "", o.fail(Result{}, "no stored access_token"))
	}
	return o.finish(TriggerResume, accessToken, o.fetchAndPersist(ctx, accessToken, "Refreshing transactions on launch..."))
}

// RefreshOnLaunch runs Resume with the stored access token, at most once per
// Orchestrator. Without a stored token it is a no-op that ends in Done(0).
func (o *Orchestrator) RefreshOnLaunch(ctx context.Context) Result {
	o.launchOnce.Do(func() {
		token := ""
		if o.prefs != nil {
			token = o.prefs.AccessToken()
		}
		if token == "" {
			o.transition(Done, "Nothing to refresh: not signed in")
			o.launchRes = Result{State: Done}
			return
		}
		o.launchRes = o.Resume(ctx, token)
	})
	return o.launchRes
}

// Simulate runs the sandbox flow without the Link UI: mint a sandbox public
// token through the proxy, then ingest it.
func (o *Orchestrator) Simulate(ctx context.Context) (res Result) {
	defer o.recoverInto(&res)

	o.transition(ExchangingToken, "Simulating sandbox flow...")
	publicToken, err := o.gw.CreateSandboxPublicToken(ctx, []string{"transactions"})
	if err != nil {
		return o.fail(Result{}, fmt.Sprintf("Failed to create sandbox public_token: %v", err))
	}
	return o.Run(ctx, publicToken, TriggerSimulate)
}

// HandleLinkResult reacts to the Link flow's outcome.
func (o *Orchestrator) HandleLinkResult(ctx context.Context, lr models.LinkResult) Result {
	switch lr.Kind {
	case models.LinkSuccess:
		return o.Run(ctx, lr.PublicToken, TriggerLink)
	case models.LinkExit:
		reason := "Plaid Link exited"
		if lr.Error != nil {
			reason += ": " + lr.Error.String()
		}
		o.transition(Failed, reason)
		return Result{State: Failed, Reason: reason}
	default:
		o.transition(Failed, "Unhandled Plaid Link result")
		return Result{State: Failed, Reason: "Unhandled Plaid Link result"}
	}
}

func (o *Orchestrator) fetchAndPersist(ctx context.Context, accessToken, msg string) Result {
	o.transition(FetchingTransactions, msg)

	txns, attempts, err := gateway.FetchWithRetry(ctx, o.gw, accessToken, o.dateRange, o.policy)
	res := Result{Attempts: attempts}
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return o.fail(res, fmt.Sprintf("No transactions after %d attempts: %v", attempts, exhausted.Last))
		}
		return o.fail(res, fmt.Sprintf("Error fetching transactions after %d attempts: %v", attempts, err))
	}
	return o.persist(ctx, txns, res)
}

// persist inserts records one at a time in the order received. A failed
// insert is logged and skipped; Inserted counts only successful rows.
func (o *Orchestrator) persist(ctx context.Context, txns []models.RemoteTransaction, res Result) Result {
	o.transition(Persisting, fmt.Sprintf("Persisting %d transactions...", len(txns)))
	res.Fetched = len(txns)

	before := o.count(ctx)
	for i, t := range txns {
		entry := Normalize(t)
		if err := o.store.Insert(ctx, &entry); err != nil {
			o.logger.Error().Err(err).Int("index", i).Str("title", entry.Title).Msg("failed to insert ledger entry")
			continue
		}
		res.Inserted++
	}
	after := o.count(ctx)

	res.State = Done
	o.transition(Done, fmt.Sprintf("Fetched %d txns, inserted %d (db before=%d after=%d)", res.Fetched, res.Inserted, before, after))
	return res
}

func (o *Orchestrator) count(ctx context.Context) int {
	n, err := o.store.Count(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("count ledger entries failed")
		return -1
	}
	return n
}

// finish saves the session and signals the shell after link and resume runs.
func (o *Orchestrator) finish(trigger Trigger, accessToken string, res Result) Result {
	if res.State == Done && accessToken != "" && trigger != TriggerSimulate && o.prefs != nil {
		if err := o.prefs.SaveSession(accessToken); err != nil {
			o.logger.Warn().Err(err).Msg("failed to save session preferences")
		}
	}

	if o.onComplete != nil && ((trigger == TriggerLink && res.State == Done) || trigger == TriggerResume) {
		o.onComplete(res)
	}
	return res
}

func (o *Orchestrator) recoverInto(res *Result) {
	if r := recover(); r != nil {
		o.logger.Error().Interface("panic", r).Msg("ingestion panicked")
		*res = o.fail(*res, fmt.Sprintf("internal error: %v", r))
	}
}
