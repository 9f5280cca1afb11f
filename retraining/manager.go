package retraining

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgov/events"
	"github.com/BaSui01/agentgov/internal/scheduler"
	"github.com/BaSui01/agentgov/notify"
	"github.com/BaSui01/agentgov/types"
)

// maxInterventionsPerTask: a supervised task keeps its passed-supervision
// flag with at most this many interventions.
const maxInterventionsPerTask = 2

// sessionEvent is a bus payload carrying a session snapshot.
type sessionEvent struct {
	Session *Session  `json:"session"`
	At      time.Time `json:"at"`

	topic string
}

func (e sessionEvent) Topic() string         { return e.topic }
func (e sessionEvent) OccurredAt() time.Time { return e.At }

// emission collects the side effects of a locked mutation; they are flushed
// after the lock is released so a websocket push never runs under the
// manager mutex.
type emission struct {
	events    []events.Event
	notices   []notify.Notice
	completed *Session
	failed    *Session
}

func (e *emission) merge(other emission) {
	e.events = append(e.events, other.events...)
	e.notices = append(e.notices, other.notices...)
	if other.completed != nil {
		e.completed = other.completed
	}
	if other.failed != nil {
		e.failed = other.failed
	}
}

// Deps are the manager's collaborators.
type Deps struct {
	// Executor runs training tasks; required for supervised stages.
	Executor TaskExecutor
	// Supervisor reviews supervised tasks; nil never intervenes.
	Supervisor SupervisorFunc
	// Dispatcher publishes lifecycle events; nil publishes nothing.
	Dispatcher *events.Dispatcher
	// Notifier pushes in-band notices; nil discards them.
	Notifier notify.Notifier
	// Scheduler drives stage auto-completion; the manager creates its own
	// when nil.
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
}

// Manager owns retraining sessions: the curriculum state machine, stage
// timers, supervised task execution, and the graduation/failure hand-off.
type Manager struct {
	cfg        Config
	logger     *zap.Logger
	executor   TaskExecutor
	supervisor SupervisorFunc
	dispatcher *events.Dispatcher
	notifier   notify.Notifier
	sched      *scheduler.Scheduler
	ownSched   bool
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	byAgent  map[string]string
	timers   map[string]*scheduler.Handle

	onCompleted func(ctx context.Context, s *Session)
	onFailed    func(ctx context.Context, s *Session)
}

// NewManager creates a retraining manager.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Stages == ([4]StageConfig{}) {
		cfg.Stages = DefaultConfig().Stages
	}
	if cfg.ConsistencyTolerance <= 0 {
		cfg.ConsistencyTolerance = DefaultConfig().ConsistencyTolerance
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
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
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "retraining")),
		executor:   deps.Executor,
		supervisor: deps.Supervisor,
		dispatcher: deps.Dispatcher,
		notifier:   notifier,
		sched:      sched,
		ownSched:   ownSched,
		now:        now,
		sessions:   make(map[string]*Session),
		byAgent:    make(map[string]string),
		timers:     make(map[string]*scheduler.Handle),
	}
}

// OnCompleted registers the graduation hand-off, invoked with a session
// snapshot after a successful stage 4. Set it before starting sessions.
func (m *Manager) OnCompleted(fn func(ctx context.Context, s *Session)) {
	m.onCompleted = fn
}

// OnFailed registers the terminal-failure hand-off.
func (m *Manager) OnFailed(fn func(ctx context.Context, s *Session)) {
	m.onFailed = fn
}

// StartSession opens a session for the agent and starts stage 1. An agent
// has at most one session in progress.
func (m *Manager) StartSession(ctx context.Context, agentID string, triggeredBy, deficiencies []string) (*Session, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agent id is required")
	}

	m.mu.Lock()
	if sid, ok := m.byAgent[agentID]; ok {
		m.mu.Unlock()
		return nil, types.Errorf(types.ErrSessionActive, "agent %s already has retraining session %s", agentID, sid)
	}

	s := &Session{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		TriggeredBy:  append([]string(nil), triggeredBy...),
		Deficiencies: append([]string(nil), deficiencies...),
		Status:       SessionInProgress,
		StartedAt:    m.now(),
	}
	m.sessions[s.ID] = s
	m.byAgent[agentID] = s.ID

	em := m.startStageLocked(s, StageDiagnosis, 1)
	em.events = append(em.events, sessionEvent{
		Session: s.snapshot(),
		At:      s.StartedAt,
		topic:   events.TopicRetrainingStarted(agentID),
	})
	snap := s.snapshot()
	m.mu.Unlock()

	m.logger.Info("retraining session started",
		zap.String("session_id", s.ID),
		zap.String("agent_id", agentID),
		zap.Strings("deficiencies", deficiencies))

	m.flush(ctx, em)
	return snap, nil
}

// Session returns a snapshot of the session, terminal ones included.
func (m *Manager) Session(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, types.Errorf(types.ErrSessionNotFound, "retraining session %s not found", sessionID)
	}
	return s.snapshot(), nil
}

// SessionForAgent returns the agent's in-progress session, if any.
func (m *Manager) SessionForAgent(agentID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, ok := m.byAgent[agentID]
	if !ok {
		return nil, false
	}
	return m.sessions[sid].snapshot(), true
}

// ActiveCount returns how many sessions are in progress.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byAgent)
}

// SubmitKnowledgeTest records the skill-review test score. Valid only while
// stage 2 is in progress.
func (m *Manager) SubmitKnowledgeTest(ctx context.Context, sessionID string, score float64) error {
	if score < 0 || score > 1 {
		return types.Errorf(types.ErrInvalidRequest, "knowledge test score %.2f outside [0,1]", score)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return types.Errorf(types.ErrSessionNotFound, "retraining session %s not found", sessionID)
	}
	if s.Status != SessionInProgress {
		return types.Errorf(types.ErrSessionTerminal, "retraining session %s is %s", sessionID, s.Status)
	}
	st := s.currentStage()
	if st == nil || st.Status != StageInProgress || st.ID != StageSkillReview {
		return types.Errorf(types.ErrStageOrder, "session %s is not in the skill-review stage", sessionID)
	}

	st.Progress.KnowledgeScore = score
	m.logger.Debug("knowledge test recorded",
		zap.String("session_id", sessionID),
		zap.Float64("score", score))
	return nil
}

// ExecuteSupervisedTask runs one training task under supervision. Valid only
// during stages 3 and 4. The supervisor is polled at the start, middle, and
// end checkpoints; more than two interventions clear the task's
// passed-supervision flag even when the task itself succeeded, and only
// tasks that succeed AND pass supervision count toward stage requirements.
func (m *Manager) ExecuteSupervisedTask(ctx context.Context, sessionID string, task TrainingTask) (*TaskRecord, error) {
	if m.executor == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "no task executor configured")
	}

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, types.Errorf(types.ErrSessionNotFound, "retraining session %s not found", sessionID)
	}
	if s.Status != SessionInProgress {
		m.mu.Unlock()
		return nil, types.Errorf(types.ErrSessionTerminal, "retraining session %s is %s", sessionID, s.Status)
	}
	st := s.currentStage()
	if st == nil || st.Status != StageInProgress ||
		(st.ID != StageSupervisedPractice && st.ID != StageGraduatedTasks) {
		m.mu.Unlock()
		return nil, types.Errorf(types.ErrStageOrder, "session %s is not in a supervised stage", sessionID)
	}
	agentID := s.AgentID
	stageID, attempt := st.ID, st.Attempt
	m.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	var notes []string
	interventions := 0
	supervise := func(cp Checkpoint) {
		if m.supervisor == nil {
			return
		}
		v := m.supervisor(ctx, agentID, task, cp)
		if v.Intervened {
			interventions++
			note := v.Note
			if note == "" {
				note = "intervention at " + string(cp)
			}
			notes = append(notes, note)
		}
	}

	// The supervisor watches the task out of band; the checkpoints after
	// the first poll its verdict once the executor has returned.
	supervise(checkpoints[0])
	outcome, err := m.executor.ExecuteTask(ctx, agentID, task)
	if err != nil {
		return nil, fmt.Errorf("execute training task %s: %w", task.ID, err)
	}
	for _, cp := range checkpoints[1:] {
		supervise(cp)
	}

	rec := TaskRecord{
		TaskID:            task.ID,
		StageID:           stageID,
		Attempt:           attempt,
		Success:           outcome.Success,
		PassedSupervision: interventions <= maxInterventionsPerTask,
		Interventions:     interventions,
		Quality:           outcome.Quality,
		CompletedAt:       m.now(),
	}

	m.mu.Lock()
	// The stage may have been evaluated while the task ran; count the task
	// only toward the same attempt still in progress, but always keep it in
	// the session history while the session lives.
	if s2, ok := m.sessions[sessionID]; ok && s2.Status == SessionInProgress {
		s2.PerformanceHistory = append(s2.PerformanceHistory, rec)
		if cur := s2.currentStage(); cur != nil && cur.Status == StageInProgress &&
			cur.ID == stageID && cur.Attempt == attempt {
			cur.Progress.TasksCompleted++
			if rec.Counted() {
				cur.Progress.Successes++
			}
			if !rec.Success {
				cur.Progress.Failures++
			}
			cur.Progress.Outcomes = append(cur.Progress.Outcomes, rec.Counted())
			cur.Progress.Feedback = append(cur.Progress.Feedback, notes...)
		}
	}
	m.mu.Unlock()

	for _, note := range notes {
		m.notifier.Notify(ctx, notify.Notice{
			AgentID: agentID,
			Kind:    notify.KindSupervisorCorrection,
			Detail: map[string]any{
				"sessionId": sessionID,
				"taskId":    rec.TaskID,
				"stageId":   stageID,
				"note":      note,
			},
		})
	}

	m.logger.Debug("supervised task executed",
		zap.String("session_id", sessionID),
		zap.String("task_id", rec.TaskID),
		zap.Bool("success", rec.Success),
		zap.Int("interventions", interventions))
	return &rec, nil
}

// EvaluateStage checks every requirement of the current stage: ALL must
// hold. Pass advances to the next stage (or graduates after stage 4); fail
// retries the stage once from fresh state, and a second failure ends the
// session. The pending auto-completion timer is preempted.
func (m *Manager) EvaluateStage(ctx context.Context, sessionID string) (*StageResults, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, types.Errorf(types.ErrSessionNotFound, "retraining session %s not found", sessionID)
	}
	if s.Status != SessionInProgress {
		m.mu.Unlock()
		return nil, types.Errorf(types.ErrSessionTerminal, "retraining session %s is %s", sessionID, s.Status)
	}
	st := s.currentStage()
	if st == nil || st.Status != StageInProgress {
		m.mu.Unlock()
		return nil, types.Errorf(types.ErrInvalidTransition, "session %s has no stage in progress", sessionID)
	}

	m.cancelTimerLocked(sessionID)

	res := m.evaluateStageLocked(st)
	st.Results = &res
	done := m.now()
	st.CompletedAt = &done

	var em emission
	if res.Passed {
		st.Status = StageCompleted
		em.notices = append(em.notices, notify.Notice{
			AgentID: s.AgentID,
			Kind:    notify.KindStageCompleted,
			Detail: map[string]any{
				"sessionId":   s.ID,
				"stageId":     st.ID,
				"stage":       st.Name,
				"successRate": res.SuccessRate,
			},
		})
		if st.ID == StageGraduatedTasks {
			m.completeLocked(s, &em)
		} else {
			em.merge(m.startStageLocked(s, st.ID+1, 1))
		}
	} else {
		st.Status = StageFailed
		if st.Attempt < maxStageAttempts {
			m.logger.Warn("stage failed, retrying",
				zap.String("session_id", s.ID),
				zap.Int("stage_id", st.ID),
				zap.Strings("unmet", res.Unmet))
			em.merge(m.startStageLocked(s, st.ID, st.Attempt+1))
		} else {
			m.failLocked(s, fmt.Sprintf("stage %d (%s) failed twice", st.ID, st.Name), &em)
		}
	}
	m.mu.Unlock()

	m.flush(ctx, em)
	return &res, nil
}

// FailSession terminates a session from outside: coordinator action, agent
// removal, or an escalation policy that fails the session.
func (m *Manager) FailSession(ctx context.Context, sessionID, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return types.Errorf(types.ErrSessionNotFound, "retraining session %s not found", sessionID)
	}
	if s.Status != SessionInProgress {
		m.mu.Unlock()
		return types.Errorf(types.ErrSessionTerminal, "retraining session %s is %s", sessionID, s.Status)
	}

	m.cancelTimerLocked(sessionID)
	if st := s.currentStage(); st != nil && st.Status == StageInProgress {
		st.Status = StageFailed
		done := m.now()
		st.CompletedAt = &done
	}

	var em emission
	m.failLocked(s, reason, &em)
	m.mu.Unlock()

	m.flush(ctx, em)
	return nil
}

// Stop cancels all stage timers. Sessions stay queryable.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id, h := range m.timers {
		h.Cancel()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if m.ownSched {
		m.sched.Stop()
	}
}

// ---- internals ----

func (m *Manager) startStageLocked(s *Session, id, attempt int) emission {
	cfg := m.cfg.Stages[id-1]
	st := &Stage{
		ID:           id,
		Name:         cfg.Name,
		Attempt:      attempt,
		Status:       StageInProgress,
		StartedAt:    m.now(),
		Requirements: cfg.Requirements,
	}
	s.Stages = append(s.Stages, st)

	sessionID := s.ID
	m.cancelTimerLocked(sessionID)
	m.timers[sessionID] = m.sched.After(cfg.Duration, func(ctx context.Context) {
		if _, err := m.EvaluateStage(ctx, sessionID); err != nil {
			m.logger.Debug("stage auto-completion skipped",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	})

	m.logger.Info("retraining stage started",
		zap.String("session_id", s.ID),
		zap.String("agent_id", s.AgentID),
		zap.Int("stage_id", id),
		zap.String("stage", cfg.Name),
		zap.Int("attempt", attempt))

	return emission{notices: []notify.Notice{{
		AgentID: s.AgentID,
		Kind:    notify.KindStageStarted,
		Detail: map[string]any{
			"sessionId": s.ID,
			"stageId":   id,
			"stage":     cfg.Name,
			"attempt":   attempt,
			"duration":  cfg.Duration.String(),
		},
	}}}
}

func (m *Manager) evaluateStageLocked(st *Stage) StageResults {
	elapsed := m.now().Sub(st.StartedAt)
	p := st.Progress
	res := StageResults{
		SuccessRate: p.SuccessRate(),
		ErrorRate:   p.ErrorRate(),
		TimeSpent:   elapsed,
	}

	req := st.Requirements
	var unmet []string
	if req.MinTimeSpent > 0 && elapsed < req.MinTimeSpent {
		unmet = append(unmet, fmt.Sprintf("time spent %s below minimum %s",
			elapsed.Round(time.Second), req.MinTimeSpent))
	}
	if req.MinTasks > 0 && p.TasksCompleted < req.MinTasks {
		unmet = append(unmet, fmt.Sprintf("completed %d tasks, need %d",
			p.TasksCompleted, req.MinTasks))
	}
	if req.MinSuccessRate > 0 && res.SuccessRate < req.MinSuccessRate {
		unmet = append(unmet, fmt.Sprintf("success rate %.2f below %.2f",
			res.SuccessRate, req.MinSuccessRate))
	}
	if req.MaxErrorRate > 0 && res.ErrorRate > req.MaxErrorRate {
		unmet = append(unmet, fmt.Sprintf("error rate %.2f above %.2f",
			res.ErrorRate, req.MaxErrorRate))
	}
	if req.MinTestScore > 0 && p.KnowledgeScore < req.MinTestScore {
		unmet = append(unmet, fmt.Sprintf("knowledge test %.2f below %.2f",
			p.KnowledgeScore, req.MinTestScore))
	}
	if req.CheckConsistency && !consistent(p.Outcomes, m.cfg.ConsistencyTolerance) {
		unmet = append(unmet, "success rate not consistent across the stage")
	}

	res.Unmet = unmet
	res.Passed = len(unmet) == 0
	return res
}

func (m *Manager) completeLocked(s *Session, em *emission) {
	done := m.now()
	s.Status = SessionCompleted
	s.CompletedAt = &done

	total, counted := 0, 0
	for _, r := range s.PerformanceHistory {
		total++
		if r.Counted() {
			counted++
		}
	}
	if total > 0 {
		s.FinalSuccessRate = float64(counted) / float64(total)
	}

	delete(m.byAgent, s.AgentID)
	m.cancelTimerLocked(s.ID)

	snap := s.snapshot()
	em.events = append(em.events, sessionEvent{
		Session: snap,
		At:      done,
		topic:   events.TopicRetrainingCompleted(s.AgentID),
	})
	em.notices = append(em.notices, notify.Notice{
		AgentID: s.AgentID,
		Kind:    notify.KindRetrainingCompleted,
		Detail: map[string]any{
			"sessionId":        s.ID,
			"finalSuccessRate": s.FinalSuccessRate,
		},
	})
	em.completed = snap

	m.logger.Info("retraining completed",
		zap.String("session_id", s.ID),
		zap.String("agent_id", s.AgentID),
		zap.Float64("final_success_rate", s.FinalSuccessRate))
}

func (m *Manager) failLocked(s *Session, reason string, em *emission) {
	done := m.now()
	s.Status = SessionFailed
	s.CompletedAt = &done
	s.FailureReason = reason

	delete(m.byAgent, s.AgentID)
	m.cancelTimerLocked(s.ID)

	snap := s.snapshot()
	em.events = append(em.events, sessionEvent{
		Session: snap,
		At:      done,
		topic:   events.TopicRetrainingFailed(s.AgentID),
	})
	em.notices = append(em.notices, notify.Notice{
		AgentID: s.AgentID,
		Kind:    notify.KindRetrainingFailed,
		Detail: map[string]any{
			"sessionId": s.ID,
			"reason":    reason,
		},
	})
	em.failed = snap

	m.logger.Warn("retraining failed",
		zap.String("session_id", s.ID),
		zap.String("agent_id", s.AgentID),
		zap.String("reason", reason))
}

func (m *Manager) cancelTimerLocked(sessionID string) {
	if h, ok := m.timers[sessionID]; ok {
		h.Cancel()
		delete(m.timers, sessionID)
	}
}

func (m *Manager) flush(ctx context.Context, em emission) {
	if m.dispatcher != nil {
		for _, ev := range em.events {
			m.dispatcher.Publish(ev)
		}
	}
	for _, n := range em.notices {
		m.notifier.Notify(ctx, n)
	}
	if em.completed != nil && m.onCompleted != nil {
		m.onCompleted(ctx, em.completed)
	}
	if em.failed != nil && m.onFailed != nil {
		m.onFailed(ctx, em.failed)
	}
}

// consistent compares the success rates of the two halves of the outcome
// sequence. Short sequences pass; the minimum-task requirement screens
// them out before this matters.
func consistent(outcomes []bool, tolerance float64) bool {
	if len(outcomes) < 4 {
		return true
	}
	half := len(outcomes) / 2
	return math.Abs(successRate(outcomes[:half])-successRate(outcomes[half:])) <= tolerance
}

func successRate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	n := 0
	for _, ok := range outcomes {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(outcomes))
}
