// Package wiring assembles the process from configuration.
package wiring

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wagroups/wagroups/internal/agent"
	"github.com/wagroups/wagroups/internal/api"
	"github.com/wagroups/wagroups/internal/automation"
	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/health"
	"github.com/wagroups/wagroups/internal/middleware"
	"github.com/wagroups/wagroups/internal/registry"
	"github.com/wagroups/wagroups/internal/scheduler"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/tools"
	"github.com/wagroups/wagroups/internal/tools/builtin"
	"github.com/wagroups/wagroups/internal/uazapi"
	"github.com/wagroups/wagroups/internal/whatsapp"

	_ "github.com/wagroups/wagroups/internal/langchain"
	_ "github.com/wagroups/wagroups/internal/openrouter"
)

// App is a fully wired process.
type App struct {
	Config    *config.Config
	DB        *store.DB
	Server    *api.Server
	Scheduler *scheduler.Runner // nil when disabled
	Log       *zap.Logger
}

// Build opens the store and connects every service. If client is nil it is
// loaded from cfg.LLM.
func Build(ctx context.Context, cfg *config.Config, client core.LLMClient, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		c, err := LoadClient(cfg.LLM)
		if err != nil {
			return nil, err
		}
		client = c
	}

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, DB: db, Log: log}

	gw := uazapi.New(cfg.UAZAPI, log)
	wa := whatsapp.NewService(db, gw, cfg.UAZAPI.WebhookBaseURL, log)
	engine, err := automation.NewEngine(db, wa, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	handlers := builtin.New(builtin.Deps{DB: db, WhatsApp: wa, Automation: engine})

	// Tool calls loop back into this server with the trusted headers.
	exec := tools.NewExecutor(cfg.Server.InternalURL, cfg.Auth.InternalSecret, cfg.Tools.Timeout, log)
	prompt, err := agent.NewPromptBuilder(db, cfg.Agent.SystemPromptPath, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	loop := agent.NewLoop(db, client,
		middleware.NewTruncatingExecutor(exec, cfg.Tools.MaxResultRunes),
		tools.Definitions(), prompt, cfg.Agent, log)

	checks := health.NewRegistry()
	checks.Register("database", health.Ping("database", db))
	checks.Register("llm", health.CheckerFunc(func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Name: "llm", Status: "ok", Message: cfg.LLM.Provider + "/" + cfg.LLM.Model}
	}))

	app.Server = api.New(api.Deps{
		DB:               db,
		Agent:            loop,
		Tools:            handlers,
		Executor:         exec,
		WhatsApp:         wa,
		Automation:       engine,
		Health:           checks,
		Auth:             api.NewAuthenticator(db, cfg.Auth.InternalSecret, cfg.Auth.JWTSecret),
		PublicURL:        cfg.Server.PublicURL,
		SessionListLimit: cfg.Agent.SessionListLimit,
		Log:              log,
	})

	if cfg.Scheduler.Enabled {
		app.Scheduler, err = scheduler.NewRunner(db, wa, cfg.Scheduler, log)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return app, nil
}

// Run serves HTTP and, when enabled, the scheduler until ctx is done or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Run(ctx, a.Config.Server.Addr, a.Config.Server.ShutdownTimeout)
	})
	if a.Scheduler != nil {
		g.Go(func() error {
			return a.Scheduler.Run(ctx)
		})
	}
	return g.Wait()
}

// Close releases the store.
func (a *App) Close() error {
	return a.DB.Close()
}

// LoadClient builds the configured model client. A provider that panics while
// initializing is reported as an error.
func LoadClient(cfg config.LLMConfig) (client core.LLMClient, err error) {
	f, ok := registry.GetClientFactory(cfg.Provider)
	if !ok {
		return nil, errors.Errorf("unknown llm provider %q (available: %v)", cfg.Provider, registry.Providers())
	}
	defer func() {
		if r := recover(); r != nil {
			client, err = nil, initPanic{provider: cfg.Provider, reason: r}
		}
	}()
	client, err = f(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "llm provider %s", cfg.Provider)
	}
	return client, nil
}

type initPanic struct {
	provider string
	reason   interface{}
}

func (e initPanic) Error() string {
	return fmt.Sprintf("llm provider %s panicked during initialization: %v", e.provider, e.reason)
}
