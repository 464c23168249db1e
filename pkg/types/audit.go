package types

import "encoding/json"

type AuditEventType string

const (
	EventDecisionCreated   AuditEventType = "decision_created"
	EventDecisionModified  AuditEventType = "decision_modified"
	EventDecisionDelegated AuditEventType = "decision_delegated"
	EventDecisionAppealed  AuditEventType = "decision_appealed"
	EventAppealReviewed    AuditEventType = "appeal_reviewed"
	EventProfileCreated    AuditEventType = "profile_created"
	EventComplianceReview  AuditEventType = "compliance_review"
	EventAuditExport       AuditEventType = "audit_export"
)

// AuditRecord is one immutable entry in a decision's audit trail. Seq is
// assigned at append time and is strictly increasing per decision.
type AuditRecord struct {
	RecordID        string          `json:"record_id"`
	DecisionID      string          `json:"decision_id"`
	Seq             int64           `json:"seq"`
	EventType       AuditEventType  `json:"event_type"`
	Actor           Actor           `json:"actor"`
	ChangeReason    string          `json:"change_reason,omitempty"`
	PrevState       json.RawMessage `json:"prev_state,omitempty"`
	NewState        json.RawMessage `json:"new_state,omitempty"`
	Signature       string          `json:"signature"`
	KeyID           string          `json:"key_id"`
	CreatedAt       string          `json:"created_at"`
	SystemGenerated bool            `json:"system_generated"`
	ComplianceFlag  bool            `json:"compliance_flag"`
	ClientIP        *string         `json:"client_ip,omitempty"`
}

func ValidAuditEventType(t AuditEventType) bool {
	switch t {
	case EventDecisionCreated, EventDecisionModified, EventDecisionDelegated,
		EventDecisionAppealed, EventAppealReviewed, EventProfileCreated,
		EventComplianceReview, EventAuditExport:
		return true
	default:
		return false
	}
}
