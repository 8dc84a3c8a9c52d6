package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rs/zerolog"

	"github.com/de-tools/recon-atlas/pkg/config"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/documents"
	"github.com/de-tools/recon-atlas/pkg/services/history"
	"github.com/de-tools/recon-atlas/pkg/services/resolver"
	"github.com/de-tools/recon-atlas/pkg/services/rules"
	"github.com/de-tools/recon-atlas/pkg/services/scoring"
	"github.com/de-tools/recon-atlas/pkg/services/session"
	"github.com/de-tools/recon-atlas/pkg/store"
	"github.com/de-tools/recon-atlas/pkg/store/kv"
	"github.com/de-tools/recon-atlas/pkg/store/memory"
	sqlstore "github.com/de-tools/recon-atlas/pkg/store/sql"
)

// App holds the services a CLI invocation works with.
type App struct {
	Config   *config.Config
	Registry rules.Registry
	Sessions session.Controller
	Resolver resolver.Resolver

	closers []io.Closer
}

// New wires storage, rules, documents and history from the configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	st, err := a.openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistry(cfg.Rules)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Registry = registry

	var source documents.Source = documents.NewStaticSource()
	if cfg.Documents.File != "" {
		source = documents.NewJSONFileSource(cfg.Documents.File)
	}

	var provider history.Provider
	if cfg.History.File != "" {
		provider, err = history.NewINIProvider(cfg.History.File)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	engines, err := cfg.Matching.Engine()
	if err != nil {
		a.Close()
		return nil, err
	}
	scorer := scoring.NewScorer(cfg.Scoring)

	a.Sessions, err = session.NewController(st, registry, source, provider, scorer, engines, cfg.Session.Workers)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Resolver, err = resolver.NewResolver(st, scorer)
	if err != nil {
		a.Close()
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("storage", string(cfg.Storage.Backend)).
		Int("rules", len(registry.Enabled())).
		Msg("application initialized")
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StorageSQL:
		db, err := sqlstore.NewDB(ctx, sqlstore.Settings{Driver: cfg.Driver, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		return sqlstore.NewStore(db)
	case config.StorageBadger:
		db, err := kv.Open(kv.Options{Dir: cfg.Dir})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		return kv.NewStore(db)
	default:
		return memory.NewStore(), nil
	}
}

// NewRegistry loads the built-in rules, applies the disabled list and adds
// rules from the configured YAML file.
func NewRegistry(cfg config.RulesConfig) (rules.Registry, error) {
	all := rules.DefaultRules()
	if cfg.File != "" {
		extra, err := rules.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		all = append(all, extra...)
	}

	known := make(map[string]bool, len(all))
	for i := range all {
		known[all[i].Code] = true
		if slices.Contains(cfg.Disabled, all[i].Code) {
			all[i].Enabled = false
		}
	}
	for _, code := range cfg.Disabled {
		if !known[code] {
			return nil, fmt.Errorf("%w: cannot disable unknown rule %q", domain.ErrInvalidInput, code)
		}
	}
	return rules.NewRegistryFromRules(all)
}

func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
