package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/cache"
	"github.com/sells-group/buyer-universe/internal/llm"
	"github.com/sells-group/buyer-universe/internal/resilience"
	"github.com/sells-group/buyer-universe/internal/scorer"
	"github.com/sells-group/buyer-universe/internal/store"
	"github.com/sells-group/buyer-universe/internal/universe"
	"github.com/sells-group/buyer-universe/internal/website"
	anthropicpkg "github.com/sells-group/buyer-universe/pkg/anthropic"
	"github.com/sells-group/buyer-universe/pkg/jina"
)

// rulesPath overrides the scorer section of the config with a standalone
// rules file when set.
var rulesPath string

// serviceEnv holds the store and service used by every data command.
type serviceEnv struct {
	Store   store.Store
	Service *universe.Service
}

// Close releases the store and cache.
func (e *serviceEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store, migrates it and wraps it with the
// read-through cache.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	c, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		zap.L().Warn("cache init failed, continuing without cache", zap.Error(err))
		return st, nil
	}
	return store.NewCached(st, c, cfg.Cache.KeyPrefix, time.Duration(cfg.Cache.TTLSecs)*time.Second), nil
}

// initService builds the service. needLLM makes a missing Anthropic key an
// error; otherwise LLM features are disabled when no key is set.
func initService(ctx context.Context, needLLM bool) (*serviceEnv, error) {
	if needLLM {
		if err := cfg.Validate("ai"); err != nil {
			return nil, err
		}
	}

	fit := cfg.Scorer
	if rulesPath != "" {
		loaded, err := scorer.LoadConfig(rulesPath)
		if err != nil {
			return nil, err
		}
		fit = loaded
	}
	engine, err := scorer.NewEngine(fit)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("scorer rules loaded", zap.String("hash", scorer.ConfigHash(fit)))

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := universe.Options{
		Pages:          initWebsite(),
		InterItemDelay: time.Duration(cfg.Batch.InterItemDelayMs) * time.Millisecond,
	}
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		opts.Caller = llm.NewCaller(client, cfg.Anthropic, cfg.Retry)
	} else {
		zap.L().Debug("UNIVERSE_ANTHROPIC_KEY not set, LLM features disabled")
	}

	return &serviceEnv{
		Store:   st,
		Service: universe.New(st, engine, opts),
	}, nil
}

// initWebsite builds the page fetcher: a direct fetch, then the Jina Reader
// unless disabled.
func initWebsite() *website.Chain {
	wc := cfg.Website
	scrapers := []website.Scraper{
		website.NewLocalScraper(time.Duration(wc.TimeoutSecs) * time.Second),
	}
	if !wc.DisableJina {
		rc, _ := resilience.FromConfig(cfg.Retry)
		rc.OnRetry = resilience.LogRetries("jina", "read")
		client := jina.NewClient(wc.JinaKey, jina.WithBaseURL(wc.JinaBaseURL))
		scrapers = append(scrapers, website.NewReaderScraper(client, rc))
	}
	return website.NewChain(wc.MaxChars, scrapers...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "path to a fit rules YAML file (overrides config scorer section)")
}
