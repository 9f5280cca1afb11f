package penalty

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/events"
	"github.com/BaSui01/agentgov/internal/metrics"
	"github.com/BaSui01/agentgov/internal/scheduler"
	"github.com/BaSui01/agentgov/notify"
	"github.com/BaSui01/agentgov/retraining"
	"github.com/BaSui01/agentgov/throttle"
	"github.com/BaSui01/agentgov/types"
)

// MonitorSource is the read-only monitoring collaborator. Fetches are
// idempotent and safe to repeat across evaluation cycles.
type MonitorSource interface {
	ListAgents(ctx context.Context) ([]string, error)
	AgentMetrics(ctx context.Context, agentID string) (types.AgentMetrics, error)
	SystemStatus(ctx context.Context) (types.SystemStatus, error)
	AgentState(ctx context.Context, agentID string) (types.AgentState, error)
}

// Archiver persists lifted penalties, appeals, and finished retraining
// sessions to durable history. Archiving is best-effort; failures are
// logged, never block the governance loop.
type Archiver interface {
	ArchivePenalty(ctx context.Context, p Penalty) error
	ArchiveAppeal(ctx context.Context, a Appeal) error
	ArchiveSession(ctx context.Context, s retraining.Session) error
}

// Action is the outcome of one evaluation cycle.
type Action string

const (
	// ActionNone: no triggers, no active penalty.
	ActionNone Action = "none"
	// ActionRecoveryPending: active penalty, improvement targets not yet met.
	ActionRecoveryPending Action = "recovery_pending"
	// ActionRecovered: all improvement targets met; penalty lifted.
	ActionRecovered Action = "recovered"
	// ActionPenaltyApplied: triggers fired and a penalty was applied.
	ActionPenaltyApplied Action = "penalty_applied"
	// ActionAlreadyPenalized: triggers fired but a penalty is already
	// active; the apply was refused.
	ActionAlreadyPenalized Action = "already_penalized"
	// ActionEscalationObserved: triggers fired during retraining; policy
	// is observe.
	ActionEscalationObserved Action = "escalation_observed"
	// ActionSessionFailed: triggers fired during retraining; policy
	// fail_session terminated the session.
	ActionSessionFailed Action = "session_failed"
)

// Evaluation is the result of one evaluation cycle for one agent.
type Evaluation struct {
	AgentID  string                   `json:"agentId"`
	Action   Action                   `json:"action"`
	Level    int                      `json:"level,omitempty"`
	Triggers []evaluator.Trigger      `json:"triggers,omitempty"`
	Context  evaluator.Context        `json:"context"`
	Penalty  *Penalty                 `json:"penalty,omitempty"`
	Anomaly  *evaluator.AnomalyReport `json:"anomaly,omitempty"`
}

// Deps are the manager's collaborators. Monitor is required for evaluation;
// everything else degrades gracefully when nil.
type Deps struct {
	Monitor    MonitorSource
	Evaluator  *evaluator.Evaluator
	Dispatcher *events.Dispatcher
	Notifier   notify.Notifier
	Scheduler  *scheduler.Scheduler
	Archiver   Archiver
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Manager is the penalty system. One instance governs the whole fleet.
type Manager struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	monitor    MonitorSource
	eval       *evaluator.Evaluator
	dispatcher *events.Dispatcher
	notifier   notify.Notifier
	sched      *scheduler.Scheduler
	ownSched   bool
	archiver   Archiver
	metrics    *metrics.Collector
	retraining *retraining.Manager

	reg *registry
	// coalesces concurrent evaluations per agent so applyPenalty never
	// races its one-active-penalty precondition
	group singleflight.Group

	mu          sync.Mutex
	appealIndex map[string]string // appeal ID -> agent ID
	fairness    evaluator.FairnessStats
	sweep       *scheduler.Handle

	stopOnce sync.Once
}

// NewManager creates the penalty system. Zero config fields fall back to
// DefaultConfig values.
func NewManager(cfg Config, deps Deps) *Manager {
	def := DefaultConfig()
	if cfg.AppealWindow <= 0 {
		cfg.AppealWindow = def.AppealWindow
	}
	if cfg.LevelDurations == ([7]time.Duration{}) {
		cfg.LevelDurations = def.LevelDurations
	}
	if cfg.PlanWindow <= 0 {
		cfg.PlanWindow = def.PlanWindow
	}
	if cfg.RequiredImprovement <= 0 {
		cfg.RequiredImprovement = def.RequiredImprovement
	}
	if cfg.RestoreSteps <= 0 {
		cfg.RestoreSteps = def.RestoreSteps
	}
	if cfg.RestoreInterval <= 0 {
		cfg.RestoreInterval = def.RestoreInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = def.SweepConcurrency
	}
	if cfg.EscalationMode == "" {
		cfg.EscalationMode = EscalationObserve
	}
	if cfg.CompensationBoost == 0 {
		cfg.CompensationBoost = def.CompensationBoost
	}
	if cfg.CompensationWindow <= 0 {
		cfg.CompensationWindow = def.CompensationWindow
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Probation.Duration <= 0 {
		cfg.Probation = def.Probation
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	eval := deps.Evaluator
	if eval == nil {
		eval = evaluator.New(evaluator.DefaultConfig(), logger)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	sched := deps.Scheduler
	ownSched := false
	if sched == nil {
		sched = scheduler.New(logger)
		ownSched = true
	}

	return &Manager{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "penalty_manager")),
		now:         cfg.Clock,
		monitor:     deps.Monitor,
		eval:        eval,
		dispatcher:  deps.Dispatcher,
		notifier:    notifier,
		sched:       sched,
		ownSched:    ownSched,
		archiver:    deps.Archiver,
		metrics:     deps.Metrics,
		reg:         newRegistry(),
		appealIndex: make(map[string]string),
	}
}

// AttachRetraining wires the retraining manager: level >= 5 penalties start
// sessions, graduation starts probation and lifts the penalty, session
// failure hands the agent back for manual coordination.
func (m *Manager) AttachRetraining(rm *retraining.Manager) {
	m.retraining = rm
	rm.OnCompleted(m.handleGraduation)
	rm.OnFailed(m.handleRetrainingFailure)
}

// Start begins the periodic expiry sweep. Evaluation scheduling stays with
// the caller.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweep != nil {
		return
	}
	m.sweep = m.sched.Every(m.cfg.SweepInterval, func(ctx context.Context) {
		m.Sweep(ctx)
	})
	m.logger.Info("expiry sweep started", zap.Duration("interval", m.cfg.SweepInterval))
}

// Stop cancels the sweep and, when the manager owns its scheduler, all
// outstanding restoration timers.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		if m.sweep != nil {
			m.sweep.Cancel()
			m.sweep = nil
		}
		m.mu.Unlock()
		if m.ownSched {
			m.sched.Stop()
		}
	})
}

// Enroll creates the governance record and token bucket for an agent.
// Enrollment is idempotent; Evaluate and Admit enroll on demand.
func (m *Manager) Enroll(agentID string) {
	m.record(agentID)
}

// Admit is the task-admission check: it consumes from the agent's token
// bucket and reports whether the task may run. Denial is an ordinary
// negative result.
func (m *Manager) Admit(agentID string, tokens float64) bool {
	rec := m.record(agentID)
	ok := rec.throttle.Consume(tokens)
	if !ok && m.metrics != nil {
		m.metrics.RecordThrottleDenial(agentID)
	}
	return ok
}

// ThrottleStatus reports the agent's current token-bucket state.
func (m *Manager) ThrottleStatus(agentID string) (throttle.Status, error) {
	rec, ok := m.reg.get(agentID)
	if !ok {
		return throttle.Status{}, types.Errorf(types.ErrAgentUnknown, "agent %s is not enrolled", agentID)
	}
	return rec.throttle.Status(), nil
}

// EffectivePriority applies the active penalty's priority delta, or the
// reversal compensation boost, to a base task priority.
func (m *Manager) EffectivePriority(agentID string, base types.TaskPriority) types.TaskPriority {
	rec, ok := m.reg.get(agentID)
	if !ok {
		return base
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	p := base
	if rec.active != nil {
		p = p.Apply(rec.active.Restrictions.PriorityDelta)
	}
	if rec.compensation != nil && m.now().Before(rec.compensation.ExpiresAt) {
		p = p.Apply(rec.compensation.PriorityBoost)
	}
	return p
}

// Evaluate runs one governance cycle for an agent: metrics, context,
// triggers, then penalty application or recovery. Concurrent calls for the
// same agent are coalesced, never raced.
func (m *Manager) Evaluate(ctx context.Context, agentID string) (*Evaluation, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agent id is required")
	}
	v, err, _ := m.group.Do(agentID, func() (any, error) {
		return m.evaluate(ctx, agentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Evaluation), nil
}

// EvaluateAll evaluates the given agents with bounded parallelism.
// Per-agent failures are logged and do not stop the rest of the fleet.
func (m *Manager) EvaluateAll(ctx context.Context, agentIDs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.SweepConcurrency)
	for _, id := range agentIDs {
		id := id
		g.Go(func() error {
			if _, err := m.Evaluate(ctx, id); err != nil {
				m.logger.Warn("evaluation failed",
					zap.String("agent_id", id),
					zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// EvaluateFleet lists agents from the monitor and evaluates them all.
func (m *Manager) EvaluateFleet(ctx context.Context) error {
	if m.monitor == nil {
		return types.NewError(types.ErrServiceUnavailable, "no monitor source configured")
	}
	ids, err := m.monitor.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	return m.EvaluateAll(ctx, ids)
}

func (m *Manager) evaluate(ctx context.Context, agentID string) (*Evaluation, error) {
	if m.monitor == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "no monitor source configured")
	}
	started := time.Now()

	agentMetrics, err := m.monitor.AgentMetrics(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("fetch metrics for %s: %w", agentID, err)
	}
	sys, err := m.monitor.SystemStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch system status: %w", err)
	}
	state, err := m.monitor.AgentState(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("fetch agent state for %s: %w", agentID, err)
	}

	evalCtx := m.eval.AnalyzeContext(agentMetrics, sys, state)
	triggers := m.eval.EvaluateTriggers(agentMetrics, evalCtx)

	// bias feedback reads every record, so snapshot it before taking this
	// agent's lock
	var bias evaluator.BiasReport
	if len(triggers) > 0 && m.eval.Config().BiasFeedbackEnabled {
		bias = m.eval.DetectBias(m.biasSamples())
	}

	rec := m.record(agentID)
	rec.mu.Lock()
	var em emission
	ev := &Evaluation{AgentID: agentID, Triggers: triggers, Context: evalCtx}

	m.tickProbationLocked(rec, agentMetrics)

	switch {
	case len(triggers) == 0:
		if rec.active != nil {
			if m.targetsMet(rec.active, agentMetrics) {
				m.liftLocked(rec, ReasonPerformanceImproved, true, &em)
				ev.Action = ActionRecovered
			} else {
				ev.Action = ActionRecoveryPending
			}
		} else {
			ev.Action = ActionNone
		}

	case rec.active != nil:
		if rec.state == StateRetraining {
			rec.escalations++
			if m.metrics != nil {
				m.metrics.RecordEscalation(string(m.cfg.EscalationMode))
			}
			if m.cfg.EscalationMode == EscalationFailSession && rec.sessionID != "" {
				em.failSessionID = rec.sessionID
				em.failSessionReason = "penalty escalated during retraining"
				ev.Action = ActionSessionFailed
			} else {
				ev.Action = ActionEscalationObserved
			}
			m.logger.Warn("triggers fired during retraining",
				zap.String("agent_id", agentID),
				zap.String("mode", string(m.cfg.EscalationMode)),
				zap.Int("escalations", rec.escalations))
		} else {
			// one active penalty per agent
			ev.Action = ActionAlreadyPenalized
			m.logger.Debug("penalty already active, apply refused",
				zap.String("agent_id", agentID),
				zap.String("penalty_id", rec.active.ID))
		}

	default:
		level := m.eval.DeterminePenaltyLevel(triggers, evalCtx)
		level = m.eval.BiasAdjustedLevel(level, state.Type, bias)
		if rec.probation != nil && rec.probation.Monitoring.AutoEscalate && level < 6 {
			// a violation during probation escalates one level
			level++
			m.logger.Warn("probation violated, penalty escalated",
				zap.String("agent_id", agentID),
				zap.Int("level", level))
		}
		p := m.applyPenaltyLocked(rec, level, triggers, evalCtx, agentMetrics, state.Type, &em)
		ev.Action = ActionPenaltyApplied
		ev.Level = level
		ev.Penalty = p.clone()

		report := m.eval.DetectAnomalies(level, triggers, evalCtx)
		ev.Anomaly = &report
		if report.ShouldAppeal {
			grounds := "auto-filed by anomaly detection: " + strings.Join(report.Reasons, "; ")
			if _, ferr := m.fileAppealLocked(rec, p.ID, grounds, true, &em); ferr != nil {
				m.logger.Warn("auto-appeal failed", zap.String("agent_id", agentID), zap.Error(ferr))
			}
		}
	}
	rec.mu.Unlock()

	m.flush(ctx, em)

	if m.metrics != nil {
		m.metrics.RecordEvaluation(string(ev.Action), time.Since(started))
		for _, t := range triggers {
			m.metrics.RecordTrigger(string(t.Kind))
		}
	}
	return ev, nil
}

// CheckForRecovery re-fetches metrics and lifts the agent's penalty when
// every improvement-plan target is met. Returns whether a lift happened.
func (m *Manager) CheckForRecovery(ctx context.Context, agentID string) (bool, error) {
	if m.monitor == nil {
		return false, types.NewError(types.ErrServiceUnavailable, "no monitor source configured")
	}
	rec, ok := m.reg.get(agentID)
	if !ok {
		return false, types.Errorf(types.ErrAgentUnknown, "agent %s is not enrolled", agentID)
	}
	agentMetrics, err := m.monitor.AgentMetrics(ctx, agentID)
	if err != nil {
		return false, fmt.Errorf("fetch metrics for %s: %w", agentID, err)
	}

	rec.mu.Lock()
	if rec.active == nil {
		rec.mu.Unlock()
		return false, nil
	}
	var em emission
	lifted := false
	if m.targetsMet(rec.active, agentMetrics) {
		m.liftLocked(rec, ReasonPerformanceImproved, true, &em)
		lifted = true
	}
	rec.mu.Unlock()

	m.flush(ctx, em)
	return lifted, nil
}

// RemovePenalty lifts the agent's active penalty with the given reason,
// restoring privileges gradually. A running retraining session is failed,
// since its penalty no longer exists.
func (m *Manager) RemovePenalty(ctx context.Context, agentID, reason string) error {
	rec, ok := m.reg.get(agentID)
	if !ok {
		return types.Errorf(types.ErrAgentUnknown, "agent %s is not enrolled", agentID)
	}

	rec.mu.Lock()
	if rec.active == nil {
		rec.mu.Unlock()
		return types.Errorf(types.ErrPenaltyNotFound, "agent %s has no active penalty", agentID)
	}
	var em emission
	if rec.state == StateRetraining && rec.sessionID != "" {
		em.failSessionID = rec.sessionID
		em.failSessionReason = "penalty removed: " + reason
	}
	m.liftLocked(rec, reason, true, &em)
	rec.mu.Unlock()

	m.flush(ctx, em)
	return nil
}

// Sweep runs one cleanup pass over every record: expired penalties are
// lifted with reason "expired" (deferred while an appeal is pending),
// finished probations and compensations are closed.
func (m *Manager) Sweep(ctx context.Context) {
	recs := m.reg.all()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.SweepConcurrency)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			m.sweepRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) sweepRecord(ctx context.Context, rec *record) {
	now := m.now()
	rec.mu.Lock()
	var em emission

	if rec.compensation != nil && now.After(rec.compensation.ExpiresAt) {
		m.logger.Debug("compensation expired", zap.String("agent_id", rec.agentID))
		rec.compensation = nil
	}

	if rec.probation != nil && now.After(rec.probation.EndDate) {
		m.logger.Info("probation completed", zap.String("agent_id", rec.agentID))
		rec.probation = nil
		if rec.state == StateProbation {
			rec.state = StateClear
		}
	}

	if rec.active != nil && rec.active.Expired(now) {
		// an appeal filed before the deadline outranks natural expiry: an
		// approved appeal carries compensation an expiry does not
		if rec.appeal != nil {
			m.logger.Debug("expiry deferred, appeal pending",
				zap.String("agent_id", rec.agentID),
				zap.String("appeal_id", rec.appeal.ID))
		} else {
			m.liftLocked(rec, ReasonExpired, true, &em)
		}
	}
	rec.mu.Unlock()

	m.flush(ctx, em)
}

// ---- internal state transitions (rec.mu held) ----

func (m *Manager) applyPenaltyLocked(rec *record, level int, triggers []evaluator.Trigger, evalCtx evaluator.Context, agentMetrics types.AgentMetrics, category types.AgentType, em *emission) *Penalty {
	now := m.now()

	// a new penalty preempts any in-flight restoration
	m.cancelRestoreLocked(rec)

	var expires *time.Time
	if d := m.cfg.LevelDurations[level]; d > 0 {
		t := now.Add(d)
		expires = &t
	}

	p := &Penalty{
		ID:              uuid.New().String(),
		AgentID:         rec.agentID,
		Level:           level,
		Reason:          evaluator.Describe(triggers),
		TriggeredBy:     evaluator.Kinds(triggers),
		Category:        category,
		AppliedAt:       now,
		ExpiresAt:       expires,
		Restrictions:    RestrictionsForLevel(level),
		ImprovementPlan: buildImprovementPlan(triggers, now, expires, level, m.cfg),
		Appealable:      true,
		AppealDeadline:  now.Add(m.cfg.AppealWindow),
		MetricsAtStart:  agentMetrics,
		Context:         evalCtx,
	}

	rec.active = p
	rec.state = StatePenalized
	rec.probation = nil
	rec.throttle.ApplyPenalty(level)

	m.mu.Lock()
	m.fairness.TotalPenalties++
	m.mu.Unlock()

	if level >= retrainingLevel {
		rec.state = StateRetraining
		kinds := make([]string, 0, len(p.TriggeredBy))
		for _, k := range p.TriggeredBy {
			kinds = append(kinds, string(k))
		}
		em.startRetraining = &retrainingRequest{
			rec:          rec,
			agentID:      rec.agentID,
			triggeredBy:  kinds,
			deficiencies: evaluator.SkillGaps(triggers),
		}
	}

	em.events = append(em.events, penaltyEvent{
		Penalty: *p.clone(),
		At:      now,
		topic:   events.TopicPenaltyApplied(level, rec.agentID),
	})
	em.notices = append(em.notices, notify.Notice{
		AgentID: rec.agentID,
		Kind:    notify.KindPenaltyApplied,
		Detail: map[string]any{
			"penaltyId":      p.ID,
			"level":          level,
			"reason":         p.Reason,
			"appealDeadline": p.AppealDeadline,
		},
	})

	if m.metrics != nil {
		m.metrics.RecordPenaltyApplied(level)
	}
	m.logger.Info("penalty applied",
		zap.String("agent_id", rec.agentID),
		zap.String("penalty_id", p.ID),
		zap.Int("level", level),
		zap.String("reason", p.Reason))
	return p
}

// targetsMet reports whether the metrics snapshot satisfies every
// improvement-plan target.
func (m *Manager) targetsMet(p *Penalty, agentMetrics types.AgentMetrics) bool {
	targets := p.ImprovementPlan.Targets
	if len(targets) == 0 {
		return false
	}
	for _, t := range targets {
		if !t.Met(agentMetrics) {
			return false
		}
	}
	return true
}

// liftLocked removes the active penalty: outcome and reason are recorded,
// the penalty is archived to history, and the throttle is either restored
// gradually or reset at once.
func (m *Manager) liftLocked(rec *record, reason string, gradual bool, em *emission) {
	now := m.now()
	p := rec.active
	p.LiftedAt = &now
	p.LiftReason = reason
	p.Outcome = outcomeForReason(reason)

	rec.active = nil
	rec.appeal = nil
	rec.probation = nil
	rec.sessionID = ""
	rec.state = StateClear

	rec.history = append(rec.history, p)
	if len(rec.history) > m.cfg.HistoryLimit {
		rec.history = rec.history[len(rec.history)-m.cfg.HistoryLimit:]
	}

	if gradual {
		m.beginRestoreLocked(rec)
	} else {
		m.cancelRestoreLocked(rec)
		rec.throttle.Reset()
	}

	// the reversal path publishes its own richer event
	if reason != ReasonAppealApproved {
		em.events = append(em.events, penaltyEvent{
			Penalty: *p.clone(),
			At:      now,
			topic:   events.TopicPenaltyRemoved(rec.agentID),
		})
	}
	em.archPenalties = append(em.archPenalties, *p.clone())

	if m.metrics != nil {
		m.metrics.RecordPenaltyLifted(p.Level, reason)
	}
	m.logger.Info("penalty lifted",
		zap.String("agent_id", rec.agentID),
		zap.String("penalty_id", p.ID),
		zap.Int("level", p.Level),
		zap.String("reason", reason))
}

func (m *Manager) tickProbationLocked(rec *record, agentMetrics types.AgentMetrics) {
	if rec.probation == nil {
		return
	}
	now := m.now()
	if now.After(rec.probation.EndDate) {
		m.logger.Info("probation completed", zap.String("agent_id", rec.agentID))
		rec.probation = nil
		if rec.state == StateProbation {
			rec.state = StateClear
		}
		return
	}

	req := rec.probation.Requirements
	violated := (req.MinSuccessRate > 0 && agentMetrics.TaskCount > 0 && agentMetrics.SuccessRate < req.MinSuccessRate) ||
		(req.MaxErrorRate > 0 && agentMetrics.ErrorRate > req.MaxErrorRate) ||
		(req.QualityThreshold > 0 && agentMetrics.QualityScore > 0 && agentMetrics.QualityScore < req.QualityThreshold)
	if violated && rec.probation.Monitoring.AutoEscalate {
		// the trigger path in the same cycle applies the new penalty
		m.logger.Warn("probation requirements violated",
			zap.String("agent_id", rec.agentID),
			zap.Float64("success_rate", agentMetrics.SuccessRate),
			zap.Float64("error_rate", agentMetrics.ErrorRate))
	}
}

// ---- gradual restoration ----

// restoreSchedule returns the multiplier steps from start (exclusive) to
// 1.0 (inclusive), evenly spaced.
func restoreSchedule(start float64, steps int) []float64 {
	if steps <= 0 {
		return []float64{1.0}
	}
	out := make([]float64, steps)
	span := 1.0 - start
	for i := 1; i <= steps; i++ {
		out[i-1] = start + span*float64(i)/float64(steps)
	}
	out[steps-1] = 1.0
	return out
}

func (m *Manager) beginRestoreLocked(rec *record) {
	m.cancelRestoreLocked(rec)
	start := rec.throttle.Multiplier()
	if start >= 1.0 {
		rec.throttle.Reset()
		return
	}
	steps := restoreSchedule(start, m.cfg.RestoreSteps)
	gen := rec.restoreGen
	rec.restore = m.scheduleRestoreStep(rec, steps, 0, gen)
	m.logger.Info("gradual restoration started",
		zap.String("agent_id", rec.agentID),
		zap.Float64("from", start),
		zap.Int("steps", len(steps)),
		zap.Duration("interval", m.cfg.RestoreInterval))
}

func (m *Manager) scheduleRestoreStep(rec *record, steps []float64, idx int, gen uint64) *scheduler.Handle {
	return m.sched.After(m.cfg.RestoreInterval, func(ctx context.Context) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if rec.restoreGen != gen {
			// preempted by a new penalty or another lift
			return
		}
		if idx == len(steps)-1 {
			rec.restore = nil
			rec.throttle.Reset()
			m.logger.Info("restoration complete", zap.String("agent_id", rec.agentID))
			return
		}
		rec.throttle.SetMultiplier(steps[idx])
		rec.restore = m.scheduleRestoreStep(rec, steps, idx+1, gen)
		m.logger.Debug("restoration step",
			zap.String("agent_id", rec.agentID),
			zap.Float64("multiplier", steps[idx]))
	})
}

func (m *Manager) cancelRestoreLocked(rec *record) {
	if rec.restore != nil {
		rec.restore.Cancel()
		rec.restore = nil
	}
	rec.restoreGen++
}

// ---- retraining hand-off ----

func (m *Manager) handleGraduation(ctx context.Context, s *retraining.Session) {
	rec, ok := m.reg.get(s.AgentID)
	if !ok {
		return
	}

	rec.mu.Lock()
	var em emission
	rec.sessionID = ""
	if rec.active != nil {
		m.liftLocked(rec, ReasonRetrainingCompleted, true, &em)
	}
	now := m.now()
	rec.probation = &Probation{
		AgentID:   s.AgentID,
		StartDate: now,
		EndDate:   now.Add(m.cfg.Probation.Duration),
		Monitoring: Monitoring{
			CheckFrequency: m.cfg.Probation.CheckFrequency,
			RealTime:       m.cfg.Probation.RealTime,
			AutoEscalate:   m.cfg.Probation.AutoEscalate,
		},
		Requirements: ProbationRequirements{
			MinSuccessRate:   m.cfg.Probation.MinSuccessRate,
			MaxErrorRate:     m.cfg.Probation.MaxErrorRate,
			QualityThreshold: m.cfg.Probation.QualityThreshold,
		},
	}
	rec.state = StateProbation
	probationUntil := rec.probation.EndDate
	em.archSessions = append(em.archSessions, *s)
	rec.mu.Unlock()

	m.flush(ctx, em)
	if m.metrics != nil {
		m.metrics.RecordRetraining("completed")
	}
	m.logger.Info("agent graduated retraining, probation started",
		zap.String("agent_id", s.AgentID),
		zap.Float64("final_success_rate", s.FinalSuccessRate),
		zap.Time("probation_until", probationUntil))
}

func (m *Manager) handleRetrainingFailure(ctx context.Context, s *retraining.Session) {
	rec, ok := m.reg.get(s.AgentID)
	if !ok {
		return
	}

	rec.mu.Lock()
	var em emission
	rec.sessionID = ""
	if rec.state == StateRetraining {
		// the penalty stays; releasing the agent needs a coordinator
		rec.state = StatePenalized
	}
	em.archSessions = append(em.archSessions, *s)
	rec.mu.Unlock()

	m.flush(ctx, em)
	if m.metrics != nil {
		m.metrics.RecordRetraining("failed")
	}
	m.logger.Warn("retraining failed, penalty held for manual action",
		zap.String("agent_id", s.AgentID),
		zap.String("reason", s.FailureReason))
}

// ---- shared plumbing ----

func (m *Manager) record(agentID string) *record {
	return m.reg.getOrCreate(agentID, func(id string) *record {
		return &record{
			agentID:  id,
			state:    StateClear,
			throttle: throttle.New(id, m.cfg.Throttle, m.logger),
		}
	})
}

func (m *Manager) biasSamples() []evaluator.PenaltySample {
	var samples []evaluator.PenaltySample
	for _, rec := range m.reg.all() {
		rec.mu.Lock()
		if rec.active != nil {
			samples = append(samples, evaluator.PenaltySample{
				Category:     rec.active.Category,
				MarkedUnfair: rec.active.MarkedUnfair,
			})
		}
		for _, p := range rec.history {
			samples = append(samples, evaluator.PenaltySample{
				Category:     p.Category,
				MarkedUnfair: p.MarkedUnfair,
			})
		}
		rec.mu.Unlock()
	}
	return samples
}

// retrainingRequest defers StartSession until after the record unlock, so
// the retraining manager never runs under a record mutex.
type retrainingRequest struct {
	rec          *record
	agentID      string
	triggeredBy  []string
	deficiencies []string
}

// emission collects side effects produced under a record lock; flush runs
// them after the unlock. Local state commits first; publishing, notifying,
// and archiving are side effects, never commit gates.
type emission struct {
	events        []events.Event
	notices       []notify.Notice
	archPenalties []Penalty
	archAppeals   []Appeal
	archSessions  []retraining.Session

	startRetraining   *retrainingRequest
	failSessionID     string
	failSessionReason string
}

func (m *Manager) flush(ctx context.Context, em emission) {
	if m.dispatcher != nil {
		for _, e := range em.events {
			m.dispatcher.Publish(e)
		}
	}
	for _, n := range em.notices {
		m.notifier.Notify(ctx, n)
	}

	if m.archiver != nil {
		for _, p := range em.archPenalties {
			status := "ok"
			if err := m.archiver.ArchivePenalty(ctx, p); err != nil {
				status = "error"
				m.logger.Warn("archive penalty failed", zap.String("penalty_id", p.ID), zap.Error(err))
			}
			if m.metrics != nil {
				m.metrics.RecordArchive("penalty", status)
			}
		}
		for _, a := range em.archAppeals {
			status := "ok"
			if err := m.archiver.ArchiveAppeal(ctx, a); err != nil {
				status = "error"
				m.logger.Warn("archive appeal failed", zap.String("appeal_id", a.ID), zap.Error(err))
			}
			if m.metrics != nil {
				m.metrics.RecordArchive("appeal", status)
			}
		}
		for _, s := range em.archSessions {
			status := "ok"
			if err := m.archiver.ArchiveSession(ctx, s); err != nil {
				status = "error"
				m.logger.Warn("archive session failed", zap.String("session_id", s.ID), zap.Error(err))
			}
			if m.metrics != nil {
				m.metrics.RecordArchive("session", status)
			}
		}
	}

	if req := em.startRetraining; req != nil {
		if m.retraining == nil {
			m.logger.Warn("retraining required but no retraining manager attached",
				zap.String("agent_id", req.agentID))
		} else if s, err := m.retraining.StartSession(ctx, req.agentID, req.triggeredBy, req.deficiencies); err != nil {
			m.logger.Warn("start retraining failed",
				zap.String("agent_id", req.agentID),
				zap.Error(err))
		} else {
			req.rec.mu.Lock()
			req.rec.sessionID = s.ID
			req.rec.mu.Unlock()
			if m.metrics != nil {
				m.metrics.RecordRetraining("started")
			}
		}
	}

	if em.failSessionID != "" && m.retraining != nil {
		if err := m.retraining.FailSession(ctx, em.failSessionID, em.failSessionReason); err != nil {
			m.logger.Warn("fail session failed",
				zap.String("session_id", em.failSessionID),
				zap.Error(err))
		}
	}
}

// ---- event payloads ----

type penaltyEvent struct {
	Penalty Penalty   `json:"penalty"`
	At      time.Time `json:"occurredAt"`
	topic   string
}

func (e penaltyEvent) Topic() string         { return e.topic }
func (e penaltyEvent) OccurredAt() time.Time { return e.At }

type appealEvent struct {
	Appeal Appeal    `json:"appeal"`
	At     time.Time `json:"occurredAt"`
	topic  string
}

func (e appealEvent) Topic() string         { return e.topic }
func (e appealEvent) OccurredAt() time.Time { return e.At }

// reversalEvent carries the reversed penalty, the approving appeal, and the
// reviewer's reasoning for the audit trail.
type reversalEvent struct {
	Penalty        Penalty   `json:"penalty"`
	Appeal         Appeal    `json:"appeal"`
	OriginalReason string    `json:"originalReason"`
	Reasoning      string    `json:"reasoning"`
	At             time.Time `json:"occurredAt"`
}

func (e reversalEvent) Topic() string         { return events.TopicPenaltyReversed(e.Penalty.AgentID) }
func (e reversalEvent) OccurredAt() time.Time { return e.At }
