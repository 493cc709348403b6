package kokoro

import (
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kokoro-ai/kokoro/config"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/logging"
	"github.com/kokoro-ai/kokoro/memory"
	"github.com/kokoro-ai/kokoro/model"
	anthropicmodel "github.com/kokoro-ai/kokoro/model/anthropic"
	openaimodel "github.com/kokoro-ai/kokoro/model/openai"
	"github.com/kokoro-ai/kokoro/notify"
	"github.com/kokoro-ai/kokoro/state"
	"github.com/kokoro-ai/kokoro/store/sqlite"
)

// NewFromConfig builds a fully wired Platform from a configuration document.
// Close releases any resources (such as the SQLite handle) it opened.
func NewFromConfig(cfg *config.Config) (*Platform, error) {
	logger := buildLogger(cfg.Log)

	m, err := buildModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	var mem core.MemoryService
	if cfg.Memory.BaseURL != "" {
		mem = memory.NewHTTPService(cfg.Memory.BaseURL)
	}
	var physical core.PhysicalStateService
	if cfg.State.PhysicalURL != "" {
		physical = state.NewPhysicalClient(cfg.State.PhysicalURL)
	}
	var mind core.MindBehaviorService
	if cfg.State.MindURL != "" {
		mind = state.NewMindBehaviorClient(cfg.State.MindURL)
	}
	var scheduler core.Scheduler
	if cfg.Dispatch.SchedulerURL != "" {
		scheduler = notify.NewHTTPScheduler(cfg.Dispatch.SchedulerURL)
	}
	var notifier core.Notifier
	if cfg.Dispatch.NotifierURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.Dispatch.NotifierURL)
	}

	var (
		turns     core.TurnStore
		playbooks core.PlaybookStore
		closer    func() error
	)
	if cfg.Store.SQLitePath != "" {
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		turns = db
		playbooks = db
		closer = db.Close
	}

	p := New(func(o *Options) {
		o.Model = m
		o.Memory = mem
		o.Physical = physical
		o.Mind = mind
		o.Turns = turns
		o.Playbooks = playbooks
		o.Scheduler = scheduler
		o.Notifier = notifier
		o.Logger = logger
		o.QueueCapacity = cfg.Safety.QueueCapacity
		o.BusRingSize = cfg.Bus.RingSize
		o.SubscriberBuffer = cfg.Bus.SubscriberBuffer
		o.EvolutionWindow = time.Duration(cfg.Evolution.WindowHours) * time.Hour
		o.EvolutionMinInterval = time.Duration(cfg.Evolution.MinIntervalHours) * time.Hour
		o.SweepInterval = time.Duration(cfg.Evolution.SweepIntervalMins) * time.Minute
	})
	if closer != nil {
		p.closers = append(p.closers, closer)
	}
	return p, nil
}

func buildLogger(cfg config.LogConfig) logging.Logger {
	level := logging.LogLevelInfo
	switch cfg.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewSlogLogger(level, cfg.Format, false)
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "", "mock":
		return model.NewMockModel(), nil
	case "openai":
		var clientOpts []option.RequestOption
		if cfg.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
		}
		client := openaisdk.NewClient(clientOpts...)
		return openaimodel.NewModelFromClient(&client, func(o *openaimodel.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
		}), nil
	default:
		return nil, fmt.Errorf("kokoro: unknown model provider %q", cfg.Provider)
	}
}
