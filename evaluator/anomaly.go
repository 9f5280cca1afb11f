package evaluator

import "go.uber.org/zap"

// AnomalyReport flags penalty decisions that look wrong enough to contest on
// the agent's behalf.
type AnomalyReport struct {
	Disproportionate bool     `json:"disproportionate"`
	Environmental    bool     `json:"environmental"`
	SystemStress     bool     `json:"systemStress"`
	SuddenDrop       bool     `json:"suddenDrop"`
	Score            float64  `json:"score"`
	ShouldAppeal     bool     `json:"shouldAppeal"`
	Reasons          []string `json:"reasons,omitempty"`
}

// DetectAnomalies scores four independent signals against the decision that
// was just made. A score above the configured threshold auto-files an appeal:
// the system contests its own penalty rather than waiting for the agent to.
func (e *Evaluator) DetectAnomalies(level int, triggers []Trigger, ctx Context) AnomalyReport {
	var report AnomalyReport

	// a level far harsher than any single trigger justifies
	if maxSev := MaxSeverity(triggers); level >= 5 && maxSev+2 < level {
		report.Disproportionate = true
		report.Reasons = append(report.Reasons, "penalty level disproportionate to trigger severity")
	}

	environmental := 0
	if ctx.SystemLoad > e.cfg.OffsetSystemLoad {
		environmental++
	}
	if ctx.NetworkIssues {
		environmental++
	}
	if ctx.BrokerIssues {
		environmental++
	}
	if ctx.DependencyFailures {
		environmental++
	}
	if environmental >= 2 {
		report.Environmental = true
		report.Reasons = append(report.Reasons, "multiple environmental factors present")
	}

	if ctx.SystemLoad > e.cfg.OffsetSystemLoad {
		report.SystemStress = true
		report.Reasons = append(report.Reasons, "system under high load")
	}

	if ctx.QualityDrop > e.cfg.SuddenDropThreshold {
		report.SuddenDrop = true
		report.Reasons = append(report.Reasons, "quality dropped sharply within one window")
	}

	if report.Disproportionate {
		report.Score += e.cfg.AnomalyWeightDisproportionate
	}
	if report.Environmental {
		report.Score += e.cfg.AnomalyWeightEnvironmental
	}
	if report.SystemStress {
		report.Score += e.cfg.AnomalyWeightSystemStress
	}
	if report.SuddenDrop {
		report.Score += e.cfg.AnomalyWeightSuddenDrop
	}

	report.ShouldAppeal = report.Score > e.cfg.AnomalyAppealThreshold
	if report.ShouldAppeal {
		e.logger.Info("anomalous penalty detected",
			zap.Float64("score", report.Score),
			zap.Strings("reasons", report.Reasons))
	}
	return report
}
