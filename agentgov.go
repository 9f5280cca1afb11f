// Package agentgov provides a top-level convenience entry point for embedding
// the governance core without assembling its collaborators by hand.
//
// Usage:
//
//	import "github.com/BaSui01/agentgov"
//
//	gov := agentgov.New(myMonitor)
//	gov := agentgov.New(myMonitor, agentgov.WithExchange(redisExchange))
//	gov := agentgov.New(myMonitor, agentgov.WithConfig(cfg.Governance))
//
// The returned Governor embeds the penalty manager, so the full governance
// API (Evaluate, FileAppeal, Dashboard, Admit, ...) is available directly.
// For the standalone service, use cmd/agentgov instead.
package agentgov

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentgov/config"
	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/events"
	"github.com/BaSui01/agentgov/internal/scheduler"
	"github.com/BaSui01/agentgov/notify"
	"github.com/BaSui01/agentgov/penalty"
	"github.com/BaSui01/agentgov/retraining"
)

// Governor is the assembled governance core. It embeds the penalty manager;
// the retraining manager is reachable for direct curriculum interaction
// (knowledge tests, supervised task submission).
type Governor struct {
	*penalty.Manager

	// Retraining exposes the curriculum manager for session-level calls.
	Retraining *retraining.Manager

	dispatcher  *events.Dispatcher
	exchange    events.Exchange
	ownExchange bool
	sched       *scheduler.Scheduler
}

type options struct {
	cfg        config.GovernanceConfig
	logger     *zap.Logger
	exchange   events.Exchange
	notifier   notify.Notifier
	archiver   penalty.Archiver
	executor   retraining.TaskExecutor
	supervisor retraining.SupervisorFunc
}

// Option configures the Governor created by [New].
type Option func(*options)

// WithConfig replaces the default governance policy configuration.
func WithConfig(cfg config.GovernanceConfig) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithExchange sets the message-bus transport. Defaults to an in-process
// exchange; pass an [events.RedisExchange] to publish onto the platform bus.
func WithExchange(exchange events.Exchange) Option {
	return func(o *options) { o.exchange = exchange }
}

// WithNotifier sets the agent notification channel. Defaults to discarding
// notices; pass a [notify.Hub] to push over WebSocket.
func WithNotifier(notifier notify.Notifier) Option {
	return func(o *options) { o.notifier = notifier }
}

// WithArchiver persists lifted penalties, appeals, and finished sessions.
func WithArchiver(archiver penalty.Archiver) Option {
	return func(o *options) { o.archiver = archiver }
}

// WithExecutor sets the training-task executor used by supervised
// retraining stages.
func WithExecutor(executor retraining.TaskExecutor) Option {
	return func(o *options) { o.executor = executor }
}

// WithSupervisor sets the checkpoint reviewer for supervised tasks.
func WithSupervisor(supervisor retraining.SupervisorFunc) Option {
	return func(o *options) { o.supervisor = supervisor }
}

// New assembles a Governor around the given monitor source. The monitor
// supplies raw per-agent metrics; everything else has a working default.
// The expiry sweep starts immediately; call Close when done.
func New(monitor penalty.MonitorSource, opts ...Option) *Governor {
	o := options{cfg: config.DefaultGovernanceConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	exchange := o.exchange
	ownExchange := false
	if exchange == nil {
		exchange = events.NewInProcExchange()
		ownExchange = true
	}

	dispatcher := events.NewDispatcher(o.cfg.Dispatcher, exchange, o.logger)
	sched := scheduler.New(o.logger)
	eval := evaluator.New(o.cfg.Evaluator, o.logger)

	retrainer := retraining.NewManager(o.cfg.Retraining, retraining.Deps{
		Executor:   o.executor,
		Supervisor: o.supervisor,
		Dispatcher: dispatcher,
		Notifier:   o.notifier,
		Scheduler:  sched,
		Logger:     o.logger,
	})

	manager := penalty.NewManager(o.cfg.Penalty, penalty.Deps{
		Monitor:    monitor,
		Evaluator:  eval,
		Dispatcher: dispatcher,
		Notifier:   o.notifier,
		Scheduler:  sched,
		Archiver:   o.archiver,
		Logger:     o.logger,
	})
	manager.AttachRetraining(retrainer)
	manager.Start()

	return &Governor{
		Manager:     manager,
		Retraining:  retrainer,
		dispatcher:  dispatcher,
		exchange:    exchange,
		ownExchange: ownExchange,
		sched:       sched,
	}
}

// Close stops the governance loop, drains the event queue, and releases the
// scheduler. An exchange passed in via [WithExchange] stays open; the caller
// owns its lifecycle.
func (g *Governor) Close() error {
	g.Manager.Stop()
	g.Retraining.Stop()
	g.sched.Stop()
	g.dispatcher.Stop()
	if g.ownExchange {
		return g.exchange.Close()
	}
	return nil
}
