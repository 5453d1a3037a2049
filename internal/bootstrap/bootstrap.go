// Package bootstrap assembles a ready-to-serve App from a loaded Config. It
// is shared by the server command and the examples.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/messplanner"
	"github.com/hupe1980/messplanner/config"
	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/memory"
	"github.com/hupe1980/messplanner/memory/sqlstore"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/model/anthropic"
	"github.com/hupe1980/messplanner/model/openai"
	"github.com/hupe1980/messplanner/planner"
	"github.com/hupe1980/messplanner/session"
	"github.com/hupe1980/messplanner/session/redisstore"
	"github.com/hupe1980/messplanner/tool/preload"
	"github.com/hupe1980/messplanner/tool/search"
)

// MockPlan is the canned answer of the mock provider.
const MockPlan = `**Weekly mess plan (4 log, ₹400/day)**

| Din | Breakfast | Lunch | Dinner |
|-----|-----------|-------|--------|
| Mon | Poha | Dal chawal, bhindi | Roti, aloo gobi |
| Tue | Upma | Rajma chawal | Roti, egg curry |
| Wed | - | Chole, jeera rice | Roti, lauki chana |
| Thu | Besan chilla | Kadhi chawal | Roti, chicken curry |
| Fri | Poha | Dal tadka, rice | Roti, mix veg |
| Sat | - | Veg pulao, raita | Roti, egg bhurji |
| Sun | Aloo paratha | Khichdi | Roti, paneer-free sabzi |

Grocery estimate: ~₹2,650 for the week.`

// Stack is the assembled application plus the resources it owns.
type Stack struct {
	App   *messplanner.App
	Model model.Model
	Mode  planner.Mode

	closers []io.Closer
}

// Close releases store connections.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// NewLogger builds the structured logger described by cfg.
func NewLogger(cfg config.LogConfig) (*logging.PlannerLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(level, cfg.Format, false), nil
}

// NewModel selects the model provider named by cfg.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	case "mock":
		name := cfg.Name
		if name == "" {
			name = "mock"
		}
		m := model.NewMockModel(name, "mock")
		m.SetDefault(MockPlan)
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// Build wires stores, tools, the planner graph and the App. The caller owns
// the returned Stack and must Close it.
func Build(ctx context.Context, cfg config.Config, logger logging.Logger) (*Stack, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	mode, err := planner.ParseMode(cfg.Planner.Mode)
	if err != nil {
		return nil, err
	}

	llm, err := NewModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	stack := &Stack{Model: llm, Mode: mode}

	sessions, err := stack.sessionStore(ctx, cfg.Session, logger)
	if err != nil {
		return nil, errors.Join(err, stack.Close())
	}

	memories, err := stack.memoryStore(cfg.Memory, logger)
	if err != nil {
		return nil, errors.Join(err, stack.Close())
	}

	var webSearch *search.Tool
	if cfg.Search.Enabled {
		webSearch, err = search.New(func(o *search.Options) {
			if cfg.Search.Endpoint != "" {
				o.Endpoint = cfg.Search.Endpoint
			}
			if cfg.Search.CacheSize > 0 {
				o.CacheSize = cfg.Search.CacheSize
			}
			if cfg.Search.Timeout > 0 {
				o.Timeout = cfg.Search.Timeout
			}
			o.Logger = logger
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("web search: %w", err), stack.Close())
		}
	}

	recall := preload.New(func(o *preload.Options) {
		if cfg.Memory.PreloadLimit > 0 {
			o.Limit = cfg.Memory.PreloadLimit
		}
	})

	root, err := planner.New(llm, func(o *planner.Options) {
		o.Mode = mode
		o.Memory = recall
		o.EnableStreaming = cfg.Model.Streaming
		if webSearch != nil {
			o.Search = webSearch
		}
	})
	if err != nil {
		return nil, errors.Join(err, stack.Close())
	}

	selection := messplanner.SelectFirstFinal
	if mode == planner.ModeSequential {
		selection = messplanner.SelectLastFinal
	}

	stack.App = messplanner.New(root, func(o *messplanner.Options) {
		o.AppName = cfg.App.Name
		o.DefaultUserID = cfg.App.DefaultUser
		o.DefaultSessionID = cfg.App.DefaultSession
		o.DefaultMessage = cfg.App.DefaultMessage
		o.Selection = selection
		o.PlanTimeout = cfg.Server.PlanTimeout
		o.MaxConcurrentRuns = cfg.Runner.MaxConcurrentRuns
		if cfg.Runner.MaxModelCalls > 0 {
			o.MaxModelCalls = cfg.Runner.MaxModelCalls
		}
		o.SessionStore = sessions
		o.MemoryStore = memories
		o.Logger = logger
	})

	logger.Info("planner assembled",
		"mode", mode,
		"model", llm.Info().Name,
		"provider", llm.Info().Provider,
		"session_backend", cfg.Session.Backend,
		"memory_backend", cfg.Memory.Backend,
		"web_search", webSearch != nil,
	)

	return stack, nil
}

func (s *Stack) sessionStore(ctx context.Context, cfg config.SessionConfig, logger logging.Logger) (core.SessionStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return session.NewInMemoryStore(), nil
	case "redis":
		store, err := redisstore.NewFromURL(ctx, cfg.RedisURL, func(o *redisstore.Options) {
			o.TTL = cfg.TTL
			o.Logger = logger
		})
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		s.closers = append(s.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func (s *Stack) memoryStore(cfg config.MemoryConfig, logger logging.Logger) (core.MemoryStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewInMemoryStore(), nil
	case "mysql":
		store, err := sqlstore.Open(cfg.MySQLDSN, func(o *sqlstore.Options) {
			o.Logger = logger
		})
		if err != nil {
			return nil, fmt.Errorf("mysql memory store: %w", err)
		}
		s.closers = append(s.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}
