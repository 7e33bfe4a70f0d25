package service

import (
	"context"
	"log/slog"

	postgres "github.com/hdtickets/scout/internal/repository/postgres"
	redis "github.com/hdtickets/scout/internal/repository/redis"
	"github.com/hdtickets/scout/internal/scrape"
	"github.com/hdtickets/scout/internal/service/alerts"
	"github.com/hdtickets/scout/internal/service/ingest"
	"github.com/hdtickets/scout/internal/service/orchestrator"
	"github.com/hdtickets/scout/internal/service/purchase"
	"github.com/hdtickets/scout/internal/service/query"
	"github.com/hdtickets/scout/internal/service/rotation"
	"github.com/hdtickets/scout/internal/service/scoring"
	"github.com/hdtickets/scout/internal/uow"
)

type Services struct {
	Rotation     *rotation.Service
	Orchestrator *orchestrator.Service
	Ingest       *ingest.Service
	Scoring      *scoring.Service
	Alerts       *alerts.Service
	Purchase     *purchase.Service
	Query        *query.Service
}

type Config struct {
	Rotation     rotation.Config
	Orchestrator orchestrator.Config
	Ingest       ingest.Config
	Scoring      scoring.Config
	Purchase     purchase.Config
	Query        query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	health *redis.PlatformHealthStore,
	adapters []scrape.Adapter,
	notifier alerts.Notifier,
	cfg Config,
	log *slog.Logger,
) *Services {
	scorer := scoring.New(cfg.Scoring)
	rot := rotation.New(store.Identities(), cfg.Rotation)
	purch := purchase.New(store.Queue(), cfg.Purchase, log)
	alrt := alerts.New(store.Alerts(), &alertTx{u: uow.NewUoW(store), store: store}, notifier, purch, log)
	ing := ingest.New(store.Listings(), scorer, health, cache, alrt, cfg.Ingest, log)
	orch := orchestrator.New(adapters, rot, ing, health, cfg.Orchestrator, log)

	return &Services{
		Rotation:     rot,
		Orchestrator: orch,
		Ingest:       ing,
		Scoring:      scorer,
		Alerts:       alrt,
		Purchase:     purch,
		Query:        query.New(store, cache, cfg.Query),
	}
}

// alertTx adapts the unit of work to the alert engine's transactional
// contract: trigger writes commit together and side effects run only after
// the commit.
type alertTx struct {
	u     *uow.UoW
	store *postgres.Store
}

func (t *alertTx) Fire(
	ctx context.Context,
	fn func(ctx context.Context, repo alerts.Repo, after func(func(context.Context))) error,
) error {
	return t.u.Do(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		return fn(ctx, t.store.Alerts().With(tx), func(h func(context.Context)) {
			after(uow.AfterCommit(h))
		})
	})
}
