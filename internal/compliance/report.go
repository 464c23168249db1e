package compliance

import (
	"fmt"

	"github.com/hirewire/decree/internal/integrity"
	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/pkg/types"
)

// Generator produces periodic rollups over decisions and audit records. It
// aggregates reads only; the ledger's export self-audit is the sole write
// that can happen downstream of a report.
type Generator struct {
	Store     ledger.Store
	Integrity *integrity.Verifier
}

type Filters struct {
	From         string
	To           string
	DecisionType types.DecisionType
}

func (g *Generator) Generate(reportType types.ReportType, f Filters, now string) (types.ComplianceReport, error) {
	if !types.ValidReportType(reportType) {
		return types.ComplianceReport{}, fmt.Errorf("%w: invalid report type: %s", types.ErrValidation, reportType)
	}

	report := types.ComplianceReport{
		ReportType:  reportType,
		GeneratedAt: now,
		From:        f.From,
		To:          f.To,
	}

	decisions, err := g.Store.ListDecisions(ledger.DecisionFilter{
		DecisionType: f.DecisionType,
		From:         f.From,
		To:           f.To,
	})
	if err != nil {
		return types.ComplianceReport{}, err
	}

	switch reportType {
	case types.ReportApprovalSummary:
		report.Summary = summarize(decisions)
	case types.ReportAuditTrail:
		trails, err := g.trails(decisions)
		if err != nil {
			return types.ComplianceReport{}, err
		}
		report.Trails = trails
	case types.ReportDelegation:
		report.Delegations = g.delegations(decisions)
	case types.ReportDecisionIntegrity:
		reports, err := g.integrityRollup(decisions, now)
		if err != nil {
			return types.ComplianceReport{}, err
		}
		report.Integrity = reports
	}

	return report, nil
}

func summarize(decisions []types.HiringDecision) *types.ApprovalSummary {
	summary := &types.ApprovalSummary{
		TotalDecisions: len(decisions),
		ByType:         map[string]int{},
		ByApprover:     map[string]int{},
	}

	confidenceTotal := 0
	for _, d := range decisions {
		summary.ByType[string(d.DecisionType)]++
		summary.ByApprover[d.ApproverID]++
		if d.IsFinal {
			summary.FinalCount++
		}
		confidenceTotal += d.DecisionConfidence
	}
	if len(decisions) > 0 {
		summary.AvgConfidence = confidenceTotal / len(decisions)
	}
	return summary
}

func (g *Generator) trails(decisions []types.HiringDecision) ([]types.DecisionTrail, error) {
	trails := make([]types.DecisionTrail, 0, len(decisions))
	for _, d := range decisions {
		records, err := g.Store.ListAudit(d.DecisionID, ledger.AuditFilter{})
		if err != nil {
			return nil, err
		}
		trails = append(trails, types.DecisionTrail{Decision: d, Records: records})
	}
	return trails, nil
}

func (g *Generator) delegations(decisions []types.HiringDecision) []types.DelegationChain {
	chains := []types.DelegationChain{}
	for _, d := range decisions {
		if d.SupersededBy == nil {
			continue
		}
		chain := types.DelegationChain{
			OriginalDecisionID:  d.DecisionID,
			SuccessorDecisionID: *d.SupersededBy,
			FromApproverID:      d.ApproverID,
			Reason:              d.DecisionReason,
		}
		if succ, ok := g.Store.GetDecision(*d.SupersededBy); ok {
			chain.ToApproverID = succ.ApproverID
			chain.DelegatedAt = succ.CreatedAt
		}
		chains = append(chains, chain)
	}
	return chains
}

func (g *Generator) integrityRollup(decisions []types.HiringDecision, now string) ([]types.IntegrityReport, error) {
	reports := make([]types.IntegrityReport, 0, len(decisions))
	for _, d := range decisions {
		rep, err := g.Integrity.Verify(d.DecisionID, now)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
