package types

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type SuspiciousActivity struct {
	RecordID string   `json:"record_id"`
	Issue    string   `json:"issue"`
	Severity Severity `json:"severity"`
}

// IntegrityReport is derived on demand; it is never persisted as a mutable
// entity. A score of 100 means every record verified and nothing was flagged.
type IntegrityReport struct {
	DecisionID           string               `json:"decision_id"`
	TotalRecords         int                  `json:"total_records"`
	VerifiedRecords      int                  `json:"verified_records"`
	IntegrityScore       int                  `json:"integrity_score"`
	SuspiciousActivities []SuspiciousActivity `json:"suspicious_activities"`
	LastVerified         string               `json:"last_verified"`
}

type ReportType string

const (
	ReportApprovalSummary   ReportType = "approval_summary"
	ReportAuditTrail        ReportType = "audit_trail"
	ReportDelegation        ReportType = "delegation_report"
	ReportDecisionIntegrity ReportType = "decision_integrity"
)

type ComplianceReport struct {
	ReportType  ReportType        `json:"report_type"`
	GeneratedAt string            `json:"generated_at"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Summary     *ApprovalSummary  `json:"summary,omitempty"`
	Trails      []DecisionTrail   `json:"trails,omitempty"`
	Delegations []DelegationChain `json:"delegations,omitempty"`
	Integrity   []IntegrityReport `json:"integrity,omitempty"`
}

type ApprovalSummary struct {
	TotalDecisions int            `json:"total_decisions"`
	ByType         map[string]int `json:"by_type"`
	ByApprover     map[string]int `json:"by_approver"`
	FinalCount     int            `json:"final_count"`
	AvgConfidence  int            `json:"avg_confidence"`
}

type DecisionTrail struct {
	Decision HiringDecision `json:"decision"`
	Records  []AuditRecord  `json:"records"`
}

type DelegationChain struct {
	OriginalDecisionID  string `json:"original_decision_id"`
	SuccessorDecisionID string `json:"successor_decision_id"`
	FromApproverID      string `json:"from_approver_id"`
	ToApproverID        string `json:"to_approver_id"`
	DelegatedAt         string `json:"delegated_at"`
	Reason              string `json:"reason,omitempty"`
}

func ValidReportType(t ReportType) bool {
	switch t {
	case ReportApprovalSummary, ReportAuditTrail, ReportDelegation, ReportDecisionIntegrity:
		return true
	default:
		return false
	}
}
