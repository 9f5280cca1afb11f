package penalty

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgov/events"
	"github.com/BaSui01/agentgov/notify"
	"github.com/BaSui01/agentgov/types"
)

// FileAppeal contests the agent's active penalty on the agent's behalf.
// Filing succeeds up to and including the deadline instant; one appeal may
// be pending per penalty at a time.
func (m *Manager) FileAppeal(ctx context.Context, agentID, penaltyID, grounds string) (*Appeal, error) {
	if agentID == "" || penaltyID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agent id and penalty id are required")
	}
	rec, ok := m.reg.get(agentID)
	if !ok {
		return nil, types.Errorf(types.ErrAgentUnknown, "agent %s is not enrolled", agentID)
	}

	rec.mu.Lock()
	var em emission
	a, err := m.fileAppealLocked(rec, penaltyID, grounds, false, &em)
	if a != nil {
		a = a.clone()
	}
	rec.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.flush(ctx, em)
	return a, nil
}

// fileAppealLocked validates the appeal guards and records the appeal.
// Caller holds rec.mu.
func (m *Manager) fileAppealLocked(rec *record, penaltyID, grounds string, auto bool, em *emission) (*Appeal, error) {
	p := rec.active
	if p == nil {
		return nil, types.Errorf(types.ErrPenaltyNotFound, "agent %s has no active penalty", rec.agentID)
	}
	if p.ID != penaltyID {
		return nil, types.Errorf(types.ErrAppealMismatch, "penalty %s is not the active penalty of agent %s", penaltyID, rec.agentID)
	}
	if !p.Appealable {
		return nil, types.Errorf(types.ErrAppealClosed, "penalty %s does not accept appeals", penaltyID)
	}
	now := m.now()
	if now.After(p.AppealDeadline) {
		return nil, types.Errorf(types.ErrAppealDeadline, "appeal deadline for penalty %s passed at %s", penaltyID, p.AppealDeadline.Format(time.RFC3339))
	}
	if rec.appeal != nil {
		return nil, types.Errorf(types.ErrAppealPending, "appeal %s is already pending against penalty %s", rec.appeal.ID, penaltyID)
	}

	a := &Appeal{
		ID:          uuid.New().String(),
		PenaltyID:   penaltyID,
		AgentID:     rec.agentID,
		SubmittedAt: now,
		Grounds:     grounds,
		Auto:        auto,
	}
	p.AppealStatus = AppealPending
	rec.appeal = a
	rec.appeals = append(rec.appeals, a)
	if len(rec.appeals) > m.cfg.HistoryLimit {
		rec.appeals = rec.appeals[len(rec.appeals)-m.cfg.HistoryLimit:]
	}

	m.mu.Lock()
	m.appealIndex[a.ID] = rec.agentID
	m.fairness.TotalAppeals++
	m.mu.Unlock()

	em.events = append(em.events, appealEvent{
		Appeal: *a.clone(),
		At:     now,
		topic:  events.TopicAppealFiled(rec.agentID),
	})
	em.archAppeals = append(em.archAppeals, *a.clone())

	if m.metrics != nil {
		source := "manual"
		if auto {
			source = "anomaly"
		}
		m.metrics.RecordAppealFiled(source)
	}
	m.logger.Info("appeal filed",
		zap.String("agent_id", rec.agentID),
		zap.String("appeal_id", a.ID),
		zap.String("penalty_id", penaltyID),
		zap.Bool("auto", auto))
	return a, nil
}

// ReviewAppeal resolves a pending appeal. Approval reverses the penalty:
// privileges come back immediately rather than gradually, the penalty is
// marked unfair for the fairness accounting, and the agent receives a
// time-boxed priority boost as compensation. Denial leaves the penalty
// exactly as it was.
func (m *Manager) ReviewAppeal(ctx context.Context, appealID, reviewer string, approve bool, reasoning string) (*Appeal, error) {
	if appealID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "appeal id is required")
	}
	m.mu.Lock()
	agentID, ok := m.appealIndex[appealID]
	m.mu.Unlock()
	if !ok {
		return nil, types.Errorf(types.ErrAppealNotFound, "appeal %s not found", appealID)
	}
	rec, ok := m.reg.get(agentID)
	if !ok {
		return nil, types.Errorf(types.ErrAgentUnknown, "agent %s is not enrolled", agentID)
	}

	rec.mu.Lock()
	if rec.appeal == nil || rec.appeal.ID != appealID {
		rec.mu.Unlock()
		return nil, types.Errorf(types.ErrAppealClosed, "appeal %s is already resolved", appealID)
	}
	a := rec.appeal
	now := m.now()
	status := AppealDenied
	decision := "penalty_upheld"
	if approve {
		status = AppealApproved
		decision = "penalty_reversed"
	}
	a.Review = &AppealReview{
		Reviewer:   reviewer,
		Status:     status,
		ReviewedAt: now,
		Decision:   decision,
		Reasoning:  reasoning,
	}

	var em emission
	if approve {
		m.reversePenaltyLocked(rec, a, reasoning, &em)
	} else {
		rec.appeal = nil
		if rec.active != nil && rec.active.ID == a.PenaltyID {
			rec.active.AppealStatus = AppealDenied
		}
	}
	em.archAppeals = append(em.archAppeals, *a.clone())
	result := a.clone()
	rec.mu.Unlock()

	m.flush(ctx, em)

	m.mu.Lock()
	delete(m.appealIndex, appealID)
	if approve {
		m.fairness.ApprovedAppeals++
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordAppealReview(string(status))
	}
	m.logger.Info("appeal reviewed",
		zap.String("agent_id", agentID),
		zap.String("appeal_id", appealID),
		zap.String("reviewer", reviewer),
		zap.String("status", string(status)))
	return result, nil
}

// reversePenaltyLocked undoes the active penalty after an approved appeal.
// Restoration is instant, not stepped: the agent should never have been
// throttled. Caller holds rec.mu.
func (m *Manager) reversePenaltyLocked(rec *record, a *Appeal, reasoning string, em *emission) {
	p := rec.active
	now := m.now()
	originalReason := p.Reason
	p.MarkedUnfair = true
	p.AppealStatus = AppealApproved

	if rec.state == StateRetraining && rec.sessionID != "" {
		em.failSessionID = rec.sessionID
		em.failSessionReason = "penalty reversed on appeal"
	}

	m.liftLocked(rec, ReasonAppealApproved, false, em)

	rec.compensation = &Compensation{
		AgentID:       rec.agentID,
		PriorityBoost: m.cfg.CompensationBoost,
		GrantedAt:     now,
		ExpiresAt:     now.Add(m.cfg.CompensationWindow),
		AppealID:      a.ID,
	}

	em.events = append(em.events, reversalEvent{
		Penalty:        *p.clone(),
		Appeal:         *a.clone(),
		OriginalReason: originalReason,
		Reasoning:      reasoning,
		At:             now,
	})
	em.notices = append(em.notices, notify.Notice{
		AgentID: rec.agentID,
		Kind:    notify.KindPenaltyReversed,
		Detail: map[string]any{
			"penaltyId":     p.ID,
			"appealId":      a.ID,
			"reasoning":     reasoning,
			"priorityBoost": m.cfg.CompensationBoost,
		},
	})
	m.logger.Info("penalty reversed on appeal",
		zap.String("agent_id", rec.agentID),
		zap.String("penalty_id", p.ID),
		zap.String("appeal_id", a.ID),
		zap.Int("level", p.Level))
}
