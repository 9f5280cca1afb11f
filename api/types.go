package api

// FileAppealRequest asks to contest an active penalty.
type FileAppealRequest struct {
	// PenaltyID is the penalty being contested. Must match the agent's
	// active penalty.
	PenaltyID string `json:"penaltyId"`
	// Grounds is the free-form justification.
	Grounds string `json:"grounds"`
}

// ReviewAppealRequest resolves a pending appeal.
type ReviewAppealRequest struct {
	// Approve reverses the penalty; false upholds it.
	Approve bool `json:"approve"`
	// Reasoning is the reviewer's written rationale.
	Reasoning string `json:"reasoning"`
	// Reviewer identifies the reviewer when the request is not
	// authenticated; the authenticated user ID wins when present.
	Reviewer string `json:"reviewer,omitempty"`
}
