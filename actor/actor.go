// Package actor provides the uniform runtime every stateful actor embeds:
// lifecycle (load/save state, initialize), command/query dispatch, and
// monitoring hooks (spec §4.3).
package actor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actorsys/runtime/catalog"
	"github.com/actorsys/runtime/eventbus"
	"github.com/actorsys/runtime/internal/errs"
	"github.com/actorsys/runtime/internal/log"
	"github.com/actorsys/runtime/resilience"
)

// State represents the current lifecycle state of an actor instance.
// Named and ordered after framework.ServiceState, generalized from a
// ready/not-ready HTTP health toggle to the full actor lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateNotReady
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateNotReady:
		return "not-ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CommandResult is what onCommand returns: the command's own reply plus any
// events to emit (spec §4.3 "Command dispatch" step 7).
type CommandResult struct {
	Reply  any
	Events []OutgoingEvent
}

// OutgoingEvent is one event an actor wants delivered after a command or
// query (spec §4.3 "emit").
type OutgoingEvent struct {
	Type    string
	Payload any
	Pattern catalog.Pattern // not consulted by emit: each matching consumer's registered pattern decides delivery
}

// Hooks are the optional lifecycle/dispatch hooks every actor may implement
// (spec §4.3). All are optional; a nil hook is simply skipped.
type Hooks[S any] struct {
	CreateDefaultState func() S
	OnInitialize       func(ctx context.Context, state *S) error

	OnCommand func(ctx context.Context, cmdType string, payload any, state *S) (CommandResult, error)
	OnQuery   func(ctx context.Context, queryType string, payload any, state *S) (any, error)

	BeforeStateLoad func(ctx context.Context) error
	AfterStateLoad  func(ctx context.Context, state *S) error
	BeforeCommand   func(ctx context.Context, cmdType string, payload any) error
	AfterCommand    func(ctx context.Context, cmdType string, result CommandResult) error
	BeforeQuery     func(ctx context.Context, queryType string, payload any) error
	AfterQuery      func(ctx context.Context, queryType string, result any) error
	OnError         func(ctx context.Context, err error)
	OnHealthCheck   func(ctx context.Context) error
	OnShutdown      func(ctx context.Context) error

	// KeyGenerator derives a rate-limit key from a command's payload
	// (spec §4.3 "Command dispatch" step 4). Commands with no entry in
	// RateLimits are never throttled.
	KeyGenerator func(cmdType string, payload any) string
}

// StateStore persists an actor's serialized state (spec §4.3 step 3/8).
// Reconstruction heuristics from the original spec ("property names like
// `users`/`byId` are keyed mappings") are dropped per §9's redesign note —
// S is a concrete Go type, so json.Unmarshal already reconstructs maps,
// slices, and nested structs with their real static types. No name-based
// guessing or serialization discriminator is needed in a statically typed
// runtime; that whole problem is an artifact of the dynamically typed
// original.
type StateStore interface {
	Load(ctx context.Context, actorName string) ([]byte, error)
	Save(ctx context.Context, actorName string, data []byte) error
}

// Dependencies are the shared runtime services every actor is wired against.
type Dependencies struct {
	Bus       *eventbus.Bus
	Catalog   *catalog.Catalog
	Store     StateStore
	Logger    *log.Logger
	Metrics   MetricsRecorder
	StateSave *resilience.CircuitBreaker // keyed "state_save" per actor, spec §4.3 step 8
}

// MetricsRecorder is the narrow slice of internal/metrics.Metrics an actor
// needs; kept as an interface so tests can supply a no-op. Production
// callers wire internal/metrics.NewActorRecorder, which adapts a shared
// *metrics.Metrics into this interface.
type MetricsRecorder interface {
	RecordCommand(actor, cmdType string, duration time.Duration, success bool)
	RecordQuery(actor, queryType string, duration time.Duration, success bool)
}

// Config declares one actor's static shape: its manifest, config/state
// schemas, command schemas, rate limits, and health-check interval.
type Config struct {
	Name             string
	Manifest         catalog.ActorManifest
	// Definitions are the event definitions this actor owns; registered
	// with the catalog alongside the manifest at Initialize step 6 (spec
	// §4.3 "register the manifest and event definitions with the catalog").
	Definitions      []catalog.EventDefinition
	ConfigSchema     []byte // optional, validated at Initialize step 1
	StateSchema      []byte // optional, validated at Initialize step 3
	// CommandSchemas validates command/query payloads locally, keyed by
	// command/query type, when no catalog is attached (spec §4.3 "Command
	// dispatch" step 3's "prefer catalog, fall back to local schema"). Unused
	// once a catalog is wired, since the catalog's own schema always wins.
	CommandSchemas   map[string][]byte
	RateLimits       map[string]resilience.TokenBucketConfig // keyed by command type
	HealthInterval   time.Duration                           // default 1 minute, spec §4.3 step 8
	StrictSingleLock bool                                    // not consulted: HandleCommand and HandleQuery always hold the state lock for the whole dispatch
}

// Actor is the uniform runtime wrapper around state type S (spec §4.3).
// Commands and queries against a single instance run serially by default —
// the instance is its own unit of mutual exclusion over state (spec §5).
type Actor[S any] struct {
	cfg  Config
	deps Dependencies
	hook Hooks[S]

	mu    sync.Mutex // serializes command/query dispatch over state
	state S

	lifecycleState atomic.Int32
	lastError      atomic.Value // error

	limiters map[string]*resilience.TokenBucket

	localValidator *catalog.Validator // compiles cfg.CommandSchemas when no catalog is attached

	stopHealth context.CancelFunc
}

// New creates an Actor for state type S, wired to deps and configured by
// cfg and hooks. Call Initialize before dispatching any command or query.
func New[S any](cfg Config, deps Dependencies, hooks Hooks[S]) *Actor[S] {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = time.Minute
	}
	if deps.StateSave == nil {
		deps.StateSave = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: cfg.Name + ":state_save"})
	}
	if deps.Logger == nil {
		deps.Logger = log.NewDefault("actor:" + cfg.Name)
	}

	limiters := make(map[string]*resilience.TokenBucket, len(cfg.RateLimits))
	for cmdType, rlCfg := range cfg.RateLimits {
		limiters[cmdType] = resilience.NewTokenBucket(rlCfg)
	}

	a := &Actor[S]{cfg: cfg, deps: deps, hook: hooks, limiters: limiters}
	if len(cfg.CommandSchemas) > 0 {
		a.localValidator = catalog.NewValidator(catalog.ModeLoose)
	}
	return a
}

// Name returns the actor's declared name.
func (a *Actor[S]) Name() string { return a.cfg.Name }

// State returns the current lifecycle state.
func (a *Actor[S]) State() State { return State(a.lifecycleState.Load()) }

func (a *Actor[S]) setState(s State) { a.lifecycleState.Store(int32(s)) }

// LastError returns the last error recorded via markFailed, if any.
func (a *Actor[S]) LastError() error {
	if v := a.lastError.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (a *Actor[S]) markFailed(err error) {
	a.lastError.Store(err)
	a.setState(StateFailed)
}

// IsReady reports whether the actor has completed initialization.
func (a *Actor[S]) IsReady() bool { return a.State() == StateReady }

// transform applies the runtime's error taxonomy to err, tagging it with
// this actor's name (spec §4.3 "Error transformation").
func (a *Actor[S]) transform(err error) *errs.Error {
	return errs.Transform(err, a.cfg.Name)
}
