package types

type DecisionType string

const (
	DecisionApproved  DecisionType = "approved"
	DecisionRejected  DecisionType = "rejected"
	DecisionDelegated DecisionType = "delegated"
)

type DecisionStatus string

const (
	StatusPending        DecisionStatus = "pending"
	StatusApproved       DecisionStatus = "approved"
	StatusRejected       DecisionStatus = "rejected"
	StatusAppealed       DecisionStatus = "appealed"
	StatusAppealReviewed DecisionStatus = "appeal_reviewed"
	StatusDelegated      DecisionStatus = "delegated"
)

type HiringDecision struct {
	DecisionID         string         `json:"decision_id"`
	ApplicationID      string         `json:"application_id"`
	DecisionType       DecisionType   `json:"decision_type"`
	DecisionReason     string         `json:"decision_reason"`
	DecisionRationale  string         `json:"decision_rationale,omitempty"`
	DecisionConfidence int            `json:"decision_confidence"`
	ApproverID         string         `json:"approver_id"`
	AuthorityLevel     string         `json:"authority_level"`
	Status             DecisionStatus `json:"status"`
	CreatedAt          string         `json:"created_at"`
	EffectiveDate      string         `json:"effective_date"`
	IsFinal            bool           `json:"is_final"`
	AppealsDeadline    *string        `json:"appeals_deadline,omitempty"`
	SupersededBy       *string        `json:"superseded_by,omitempty"`
}

func ValidDecisionType(t DecisionType) bool {
	switch t {
	case DecisionApproved, DecisionRejected, DecisionDelegated:
		return true
	default:
		return false
	}
}
