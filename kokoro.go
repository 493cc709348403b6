// Package kokoro provides a high-level façade over the dialogue orchestrator,
// the event broker and the background agents (safety, coach, playbook
// evolution). Most applications interact with this package by:
//  1. Creating a Platform via New() (optionally overriding the in-memory services)
//  2. Calling Start() to launch the background agents
//  3. Driving turns through RunTurn() or the HTTP handler
//
// All defaults are safe for local development and testing; production
// deployments supply durable stores, real model providers and a structured
// logger, typically via NewFromConfig.
package kokoro

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kokoro-ai/kokoro/ace"
	"github.com/kokoro-ai/kokoro/bus"
	"github.com/kokoro-ai/kokoro/coach"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/dialogue"
	"github.com/kokoro-ai/kokoro/httpapi"
	"github.com/kokoro-ai/kokoro/logging"
	"github.com/kokoro-ai/kokoro/memory"
	"github.com/kokoro-ai/kokoro/model"
	"github.com/kokoro-ai/kokoro/safety"
	"github.com/kokoro-ai/kokoro/session"
	"github.com/kokoro-ai/kokoro/store"
)

// Options configure a Platform. Any unset service falls back to an in-memory
// implementation; an unset model falls back to the mock.
type Options struct {
	Model     model.Model
	Memory    core.MemoryService
	Physical  core.PhysicalStateService
	Mind      core.MindBehaviorService
	Turns     core.TurnStore
	Playbooks core.PlaybookStore
	Scheduler core.Scheduler
	Notifier  core.Notifier
	Logger    logging.Logger

	QueueCapacity    int
	BusRingSize      int
	SubscriberBuffer int

	EvolutionWindow      time.Duration
	EvolutionMinInterval time.Duration
	SweepInterval        time.Duration
}

// Platform aggregates the turn pipeline, the broker and the background agents
// behind one surface.
type Platform struct {
	logger    logging.Logger
	broker    *bus.Broker
	queue     *safety.CommandQueue
	memory    core.MemoryService
	turns     core.TurnStore
	playbooks core.PlaybookStore
	logs      *store.LogStore
	sessions  *session.Manager

	orchestrator *dialogue.Orchestrator
	intake       *safety.Intake
	safetyAgent  *safety.Agent
	coachAgent   *coach.Agent
	evolver      *ace.Evolver
	nightly      *ace.Nightly
	api          *httpapi.Server

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closers []func() error
}

// New creates a Platform with optional overrides.
func New(optFns ...func(o *Options)) *Platform {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	m := opts.Model
	if m == nil {
		m = model.NewMockModel()
	}
	mem := opts.Memory
	if mem == nil {
		mem = memory.NewInMemoryService()
	}
	turns := opts.Turns
	if turns == nil {
		turns = store.NewInMemoryTurnStore()
	}
	playbooks := opts.Playbooks
	if playbooks == nil {
		playbooks = store.NewInMemoryPlaybookStore()
	}

	broker := bus.New(func(o *bus.Options) {
		if opts.BusRingSize > 0 {
			o.RingSize = opts.BusRingSize
		}
		if opts.SubscriberBuffer > 0 {
			o.SubscriberBuffer = opts.SubscriberBuffer
		}
		o.Logger = logger
	})
	queue := safety.NewCommandQueue(opts.QueueCapacity)
	logs := store.NewLogStore()

	p := &Platform{
		logger:    logger,
		broker:    broker,
		queue:     queue,
		memory:    mem,
		turns:     turns,
		playbooks: playbooks,
		logs:      logs,
		sessions:  session.NewManager(),
	}

	p.orchestrator = dialogue.NewOrchestrator(m, mem, broker, func(o *dialogue.Options) {
		o.Physical = opts.Physical
		o.Mind = opts.Mind
		o.Turns = turns
		o.Queue = queue
		o.Logger = logger
	})
	p.intake = safety.NewIntake(broker, queue, logger)
	p.safetyAgent = safety.NewAgent(broker, m, func(o *safety.AgentOptions) {
		o.Physical = opts.Physical
		o.Mind = opts.Mind
		o.Logger = logger
	})
	p.coachAgent = coach.NewAgent(broker, m, mem, func(o *coach.AgentOptions) {
		o.Scheduler = opts.Scheduler
		o.Notifier = opts.Notifier
		o.Logger = logger
	})
	p.evolver = ace.NewEvolver(playbooks, logs, func(o *ace.Options) {
		if opts.EvolutionWindow > 0 {
			o.Window = opts.EvolutionWindow
		}
		if opts.EvolutionMinInterval > 0 {
			o.MinInterval = opts.EvolutionMinInterval
		}
		o.Logger = logger
	})
	if users, ok := turns.(ace.UserSource); ok {
		p.nightly = ace.NewNightly(p.evolver, users, func(o *ace.NightlyOptions) {
			if opts.SweepInterval > 0 {
				o.Interval = opts.SweepInterval
			}
			o.Logger = logger
		})
	}
	p.api = httpapi.NewServer(p.orchestrator, broker, func(o *httpapi.Options) {
		o.Logger = logger
	})
	return p
}

// Start launches the background agents. It returns immediately; the agents
// run until Stop or Close.
func (p *Platform) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("kokoro: platform already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	run := func(name string, fn func(context.Context) error) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("background worker exited", "worker", name, "error", err)
			}
		}()
	}
	run("safety-intake", p.intake.Run)
	run("safety-agent", p.safetyAgent.Run)
	run("coach-agent", p.coachAgent.Run)
	if p.nightly != nil {
		run("playbook-nightly", p.nightly.Run)
	}
	p.logger.Info("platform started")
	return nil
}

// Stop cancels the background agents and waits for them to exit.
func (p *Platform) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("platform stopped")
}

// Close stops the agents, closes the broker and releases owned resources.
func (p *Platform) Close() error {
	p.Stop()
	err := p.broker.Close()
	for _, c := range p.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// RunTurn executes one dialogue turn and records its session and outcome log.
// Engagement and abrupt-ending annotations arrive through request metadata
// ("engagement" as a 0..1 float, "ended_abruptly" as a bool) since the caller
// owns the audio channel and sees how the exchange actually landed.
func (p *Platform) RunTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error) {
	if req.SessionID == "" {
		req.SessionID = core.NewID()
	}
	res, err := p.orchestrator.RunTurn(ctx, req)
	if err != nil {
		return nil, err
	}
	p.sessions.Touch(req.UserID, req.SessionID, res.TurnID)
	p.logs.AddTurnLog(req.UserID, core.TurnLog{
		TurnID:         res.TurnID,
		Emotion:        res.Emotion.Primary,
		Mode:           res.Plan.Mode,
		UserEngagement: metadataFloat(req.Metadata, "engagement", 0.5),
		EndedAbruptly:  req.Metadata["ended_abruptly"] == "true",
		ActiveBullets:  p.activeBullets(ctx, req.UserID, res.Emotion.Primary),
	})
	return res, nil
}

// activeBullets reports which playbook bullets applied to this turn so the
// evolution cycle can grade them against the outcome. Emotion-conditioned
// bullets count only when the emotion matched; all other bullets are standing
// rules and count on every turn.
func (p *Platform) activeBullets(ctx context.Context, userID, emotion string) []string {
	pb, err := p.playbooks.Playbook(ctx, userID)
	if err != nil {
		return nil
	}
	var ids []string
	for _, bullets := range pb.Sections {
		for _, b := range bullets {
			if cond, ok := strings.CutPrefix(b.Condition, "emotion="); ok && cond != emotion {
				continue
			}
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// EndSession closes a live session.
func (p *Platform) EndSession(sessionID string) (session.Session, bool) {
	return p.sessions.End(sessionID)
}

// Sessions returns the user's live sessions.
func (p *Platform) Sessions(userID string) []session.Session {
	return p.sessions.Active(userID)
}

// RecordRetrievalUsage feeds one retrieval batch outcome into the evolution
// logs.
func (p *Platform) RecordRetrievalUsage(userID string, l core.RetrievalLog) {
	p.logs.AddRetrievalLog(userID, l)
}

// EvolvePlaybook runs one evolution cycle for the user.
func (p *Platform) EvolvePlaybook(ctx context.Context, userID string, force bool) (*core.Playbook, bool, error) {
	return p.evolver.Evolve(ctx, userID, force)
}

// Playbook returns the user's current playbook.
func (p *Platform) Playbook(ctx context.Context, userID string) (*core.Playbook, error) {
	return p.playbooks.Playbook(ctx, userID)
}

// Publish forwards to the event broker.
func (p *Platform) Publish(topic string, payload map[string]any) (core.Event, int, error) {
	return p.broker.Publish(topic, payload)
}

// Subscribe forwards to the event broker.
func (p *Platform) Subscribe(topic string) (*bus.Subscription, error) {
	return p.broker.Subscribe(topic)
}

// Handler returns the HTTP API handler.
func (p *Platform) Handler() http.Handler { return p.api }

func metadataFloat(md map[string]string, key string, def float64) float64 {
	if md == nil {
		return def
	}
	raw, ok := md[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}
