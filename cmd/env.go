package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/config"
	"github.com/sells-group/leadgen/internal/leadgen"
	"github.com/sells-group/leadgen/internal/search"
	"github.com/sells-group/leadgen/internal/store"
	"github.com/sells-group/leadgen/pkg/anymailfinder"
	"github.com/sells-group/leadgen/pkg/apify"
)

// leadEnv holds the store and service used by every command.
type leadEnv struct {
	Store   store.Store
	Service *leadgen.Service
}

// Close releases the store.
func (e *leadEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath())
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates config for mode, opens and migrates the store, and builds
// the service. Search clients are only built for modes that run searches.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*leadEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var exec leadgen.SearchExecutor
	if mode != config.ModeStore {
		exec = newFacade(cfg)
	}

	return &leadEnv{
		Store:   st,
		Service: leadgen.NewService(exec, st, limitsFrom(cfg)),
	}, nil
}

func newFacade(c *config.Config) *leadgen.Facade {
	apifyClient := apify.NewClient(c.Apify.Token, apify.WithBaseURL(c.Apify.BaseURL))
	gateway := search.NewGateway(apifyClient, c.Apify.ActorID, pollOptions(c.Apify)...)

	finder := anymailfinder.NewClient(c.Anymailfinder.Key,
		anymailfinder.WithBaseURL(c.Anymailfinder.BaseURL),
		anymailfinder.WithRateLimit(c.Anymailfinder.RatePerSec, c.Anymailfinder.Burst),
		anymailfinder.WithTimeout(time.Duration(c.Anymailfinder.TimeoutSecs)*time.Second),
	)

	zap.L().Debug("search clients ready",
		zap.String("actor_id", c.Apify.ActorID),
		zap.Int("enrich_concurrency", c.Enrich.Concurrency),
	)
	return leadgen.NewFacade(gateway, finder, c.Enrich.Concurrency)
}

func pollOptions(c config.ApifyConfig) []apify.PollOption {
	var opts []apify.PollOption
	if c.PollIntervalSecs > 0 {
		opts = append(opts, apify.WithPollInterval(time.Duration(c.PollIntervalSecs)*time.Second))
	}
	if c.PollTimeoutMins > 0 {
		opts = append(opts, apify.WithPollTimeout(time.Duration(c.PollTimeoutMins)*time.Minute))
	}
	if c.WaitForFinishSecs >= 0 {
		opts = append(opts, apify.WithWaitForFinish(c.WaitForFinishSecs))
	}
	return opts
}

func limitsFrom(c *config.Config) leadgen.Limits {
	return leadgen.Limits{
		SearchConcurrency:  c.Search.Concurrency,
		PersistConcurrency: c.Persist.Concurrency,
		DefaultLimit:       c.Query.DefaultLimit,
		MaxLimit:           c.Query.MaxLimit,
	}
}
