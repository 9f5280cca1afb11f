package evaluator

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentgov/types"
)

// PenaltySample is the slice of a penalty record the bias check needs.
// Records marked unfair on reversal carry no weight.
type PenaltySample struct {
	Category     types.AgentType `json:"category"`
	MarkedUnfair bool            `json:"markedUnfair"`
}

// BiasReport is the disparate-impact picture across agent categories.
type BiasReport struct {
	Rates         map[types.AgentType]float64 `json:"rates"`
	Ratio         float64                     `json:"ratio"`
	HasBias       bool                        `json:"hasBias"`
	MostPenalized types.AgentType             `json:"mostPenalized,omitempty"`
}

// DetectBias groups penalty records by agent category and applies the
// four-fifths rule: a min/max rate ratio below the floor flags potential
// systemic bias. The finding is surfaced on the fairness dashboard, never
// auto-corrected (BiasAdjustedLevel is the explicit opt-in).
func (e *Evaluator) DetectBias(samples []PenaltySample) BiasReport {
	rates := make(map[types.AgentType]float64)
	for _, s := range samples {
		if s.MarkedUnfair {
			continue
		}
		rates[s.Category]++
	}

	report := BiasReport{Rates: rates, Ratio: 1.0}
	if len(rates) < 2 {
		return report
	}

	min, max := -1.0, -1.0
	for cat, r := range rates {
		if min < 0 || r < min {
			min = r
		}
		if r > max {
			max = r
			report.MostPenalized = cat
		}
	}
	if max > 0 {
		report.Ratio = min / max
	}
	report.HasBias = report.Ratio < e.cfg.BiasRatioFloor

	if report.HasBias {
		e.logger.Warn("disparate impact detected",
			zap.Float64("ratio", report.Ratio),
			zap.String("most_penalized", string(report.MostPenalized)))
	}
	return report
}

// FairnessStats are the running totals the penalty system accumulates.
type FairnessStats struct {
	TotalPenalties  int `json:"totalPenalties"`
	TotalAppeals    int `json:"totalAppeals"`
	ApprovedAppeals int `json:"approvedAppeals"`
}

// FairnessReport scores how aggressively the governance loop is penalizing.
type FairnessReport struct {
	FalsePositiveRate float64 `json:"falsePositiveRate"`
	AppealSuccessRate float64 `json:"appealSuccessRate"`
	Score             float64 `json:"score"`
}

// FairnessMetrics derives the false-positive and appeal-success rates and an
// overall 0-100 score. The score starts at 100 and is docked proportionally
// once either rate passes its limit; both signal over-aggressive
// penalization.
func (e *Evaluator) FairnessMetrics(stats FairnessStats) FairnessReport {
	var report FairnessReport
	if stats.TotalPenalties > 0 {
		report.FalsePositiveRate = float64(stats.ApprovedAppeals) / float64(stats.TotalPenalties)
	}
	if stats.TotalAppeals > 0 {
		report.AppealSuccessRate = float64(stats.ApprovedAppeals) / float64(stats.TotalAppeals)
	}

	score := 100.0
	if over := report.FalsePositiveRate - e.cfg.FalsePositiveLimit; over > 0 {
		score -= over * 200
	}
	if over := report.AppealSuccessRate - e.cfg.AppealSuccessLimit; over > 0 {
		score -= over * 100
	}
	if score < 0 {
		score = 0
	}
	report.Score = score
	return report
}
