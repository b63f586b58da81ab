package main

import (
	"context"
	"fmt"
	"io"

	"expense-ledger/src/gateway"
	"expense-ledger/src/ingest"
	"expense-ledger/src/ledger"
	"expense-ledger/src/prefs"
	"expense-ledger/src/retry"
)

func (a *app) openStore(ctx context.Context) (*ledger.SQLiteStore, error) {
	store, err := ledger.OpenSQLite(ctx, a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return store, nil
}

func (a *app) openPrefs() (*prefs.Store, error) {
	return prefs.Open(a.cfg.PrefsPath)
}

func (a *app) gateway() *gateway.Client {
	return gateway.New(a.cfg.ProxyURL, a.cfg.DemoKey, gateway.WithLogger(a.log))
}

func (a *app) policy() retry.Policy {
	p := retry.DefaultPolicy()
	if a.cfg.MaxAttempts > 0 {
		p.MaxAttempts = a.cfg.MaxAttempts
	}
	if a.cfg.BaseDelay > 0 {
		p.BaseDelay = a.cfg.BaseDelay
	}
	return p
}

// session is one orchestrator wired to the local ledger, the preferences file
// and a printer for status updates.
type session struct {
	orch  *ingest.Orchestrator
	store *ledger.SQLiteStore
	prefs *prefs.Store
	stop  func()
}

func (a *app) newSession(ctx context.Context, out io.Writer) (*session, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	p, err := a.openPrefs()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	status := ingest.NewStatusSlot()
	stopStatus := printStatus(status.Subscribe(64), out)

	orch := ingest.New(a.gateway(), store,
		ingest.WithPolicy(a.policy()),
		ingest.WithPreferences(p),
		ingest.WithStatus(status),
		ingest.WithLogger(a.log),
		ingest.WithOnComplete(func(ingest.Result) {
			if n, err := store.Count(ctx); err == nil {
				status.Publish(fmt.Sprintf("Ledger now holds %d entries", n))
			}
		}),
	)

	return &session{
		orch:  orch,
		store: store,
		prefs: p,
		stop: func() {
			stopStatus()
			_ = store.Close()
		},
	}, nil
}

// printStatus copies status updates to out until the returned func is called;
// that func prints whatever is still buffered before returning.
func printStatus(updates <-chan string, out io.Writer) func() {
	quit := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case msg := <-updates:
				fmt.Fprintln(out, msg)
			case <-quit:
				for {
					select {
					case msg := <-updates:
						fmt.Fprintln(out, msg)
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		close(quit)
		<-done
	}
}

func resultError(res ingest.Result) error {
	if res.State == ingest.Failed {
		return fmt.Errorf("ingestion failed: %s", res.Reason)
	}
	return nil
}
