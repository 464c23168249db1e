package ledger

import "github.com/hirewire/decree/pkg/types"

// Store persists decisions and their audit trails. Audit records are
// append-only: nothing in this interface updates or removes one after
// AppendAudit returns. Decisions may be rewritten until they are final;
// enforcing that boundary is the decision store's job.
type Store interface {
	WithTx(fn func(Tx) error) error

	PutDecision(d types.HiringDecision) error
	GetDecision(decisionID string) (types.HiringDecision, bool)
	ListDecisionsByApplication(applicationID string) ([]types.HiringDecision, error)
	ListDecisions(f DecisionFilter) ([]types.HiringDecision, error)

	AppendAudit(rec types.AuditRecord) (types.AuditRecord, error)
	ListAudit(decisionID string, f AuditFilter) ([]types.AuditRecord, error)
	ListAuditAll(f AuditFilter) ([]types.AuditRecord, error)
}

type Tx interface {
	PutDecision(d types.HiringDecision) error
	GetDecision(decisionID string) (types.HiringDecision, bool)
	ListDecisionsByApplication(applicationID string) ([]types.HiringDecision, error)
	ListDecisions(f DecisionFilter) ([]types.HiringDecision, error)

	AppendAudit(rec types.AuditRecord) (types.AuditRecord, error)
	ListAudit(decisionID string, f AuditFilter) ([]types.AuditRecord, error)
	ListAuditAll(f AuditFilter) ([]types.AuditRecord, error)
}

// AuditFilter narrows a trail query. Zero value matches everything.
// Results come back ascending by created_at (sequence breaking ties) unless
// Descending is set.
type AuditFilter struct {
	EventTypes     []types.AuditEventType
	ComplianceFlag *bool
	From           string
	To             string
	Descending     bool
}

type DecisionFilter struct {
	DecisionType types.DecisionType
	From         string
	To           string
	FinalOnly    bool
}

func (f AuditFilter) Matches(rec types.AuditRecord) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, et := range f.EventTypes {
			if rec.EventType == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ComplianceFlag != nil && rec.ComplianceFlag != *f.ComplianceFlag {
		return false
	}
	if f.From != "" && rec.CreatedAt < f.From {
		return false
	}
	if f.To != "" && rec.CreatedAt > f.To {
		return false
	}
	return true
}

func (f DecisionFilter) Matches(d types.HiringDecision) bool {
	if f.DecisionType != "" && d.DecisionType != f.DecisionType {
		return false
	}
	if f.From != "" && d.CreatedAt < f.From {
		return false
	}
	if f.To != "" && d.CreatedAt > f.To {
		return false
	}
	if f.FinalOnly && !d.IsFinal {
		return false
	}
	return true
}
