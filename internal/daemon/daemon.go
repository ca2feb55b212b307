package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chorequest/chorequest/internal/api"
	"github.com/chorequest/chorequest/internal/app/badges"
	"github.com/chorequest/chorequest/internal/app/ledger"
	"github.com/chorequest/chorequest/internal/app/trust"
	"github.com/chorequest/chorequest/internal/app/userlock"
	"github.com/chorequest/chorequest/internal/app/workflow"
	"github.com/chorequest/chorequest/internal/infra/catalog"
	"github.com/chorequest/chorequest/internal/infra/evidence"
	"github.com/chorequest/chorequest/internal/infra/sqlite"
)

// Daemon owns every service and the HTTP listener. Construct with New,
// then Run until the context is cancelled.
type Daemon struct {
	cfg Config

	db       *sqlite.DB
	catalog  *catalog.Catalog
	hub      *api.EventHub
	ledger   *ledger.Service
	trust    *trust.Engine
	workflow *workflow.Service
	badges   *badges.Tracker
	server   *http.Server
}

// New opens the database and wires the services. The returned daemon is
// not yet listening.
func New(cfg Config) (*Daemon, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cat := catalog.New()
	if cfg.Catalog.Path != "" {
		if err := cat.LoadFile(cfg.Catalog.Path); err != nil {
			db.Close()
			return nil, fmt.Errorf("load template catalog: %w", err)
		}
	}

	hub := api.NewEventHub()
	locks := userlock.NewRegistry()

	led := ledger.New(db, locks)
	tr := trust.New(db, locks, hub)
	wf := workflow.New(db, locks, tr, led, cat, hub)
	bt := badges.New(db, locks, led, tr, hub)

	srv := api.NewServer(led, tr, wf, bt, cat)
	srv.SetEventHub(hub)
	if cfg.Evidence.Dir != "" {
		srv.SetEvidenceStore(evidence.NewStore(cfg.Evidence.Dir))
	}
	if cfg.Metrics.Enabled {
		srv.EnableMetrics()
	}

	d := &Daemon{
		cfg:      cfg,
		db:       db,
		catalog:  cat,
		hub:      hub,
		ledger:   led,
		trust:    tr,
		workflow: wf,
		badges:   bt,
		server: &http.Server{
			Addr:              cfg.API.Addr(),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return d, nil
}

// DB exposes the store for CLI subcommands that run one-shot operations
// against the same database.
func (d *Daemon) DB() *sqlite.DB { return d.db }

// Ledger returns the XP ledger service.
func (d *Daemon) Ledger() *ledger.Service { return d.ledger }

// Trust returns the credibility engine.
func (d *Daemon) Trust() *trust.Engine { return d.trust }

// Workflow returns the task verification service.
func (d *Daemon) Workflow() *workflow.Service { return d.workflow }

// Badges returns the achievement tracker.
func (d *Daemon) Badges() *badges.Tracker { return d.badges }

// Run serves HTTP and drives the periodic sweeps until ctx is cancelled,
// then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	go d.sweepLoop(ctx, "decay", d.cfg.Sweeps.DecayInterval.Duration(), func() (int, error) {
		return d.trust.ApplyDecay()
	})
	go d.sweepLoop(ctx, "expiry", d.cfg.Sweeps.ExpiryInterval.Duration(), func() (int, error) {
		return d.workflow.ExpireSweep()
	})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("daemon: listening on http://%s", d.server.Addr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		d.db.Close()
		return err
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutCtx); err != nil {
		log.Printf("daemon: shutdown: %v", err)
	}
	<-errCh
	return d.db.Close()
}

// Close releases resources for daemons that never Run (one-shot CLI use).
func (d *Daemon) Close() error { return d.db.Close() }

// sweepLoop runs fn immediately and then on every tick. Sweep errors are
// logged, never fatal — the next tick retries.
func (d *Daemon) sweepLoop(ctx context.Context, name string, interval time.Duration, fn func() (int, error)) {
	if interval <= 0 {
		return
	}
	run := func() {
		n, err := fn()
		if err != nil {
			log.Printf("daemon: %s sweep: %v", name, err)
			return
		}
		if n > 0 {
			log.Printf("daemon: %s sweep processed %d", name, n)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
