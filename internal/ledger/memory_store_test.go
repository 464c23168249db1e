package ledger

import (
	"errors"
	"testing"

	"github.com/hirewire/decree/pkg/types"
)

func testDecision(id, app, createdAt string) types.HiringDecision {
	return types.HiringDecision{
		DecisionID:         id,
		ApplicationID:      app,
		DecisionType:       types.DecisionApproved,
		DecisionReason:     "qualified",
		DecisionConfidence: 8,
		ApproverID:         "mgr-1",
		AuthorityLevel:     "manager",
		Status:             types.StatusApproved,
		CreatedAt:          createdAt,
		IsFinal:            true,
	}
}

func testAudit(decisionID, createdAt string, eventType types.AuditEventType) types.AuditRecord {
	return types.AuditRecord{
		RecordID:   "rec-" + decisionID + "-" + createdAt,
		DecisionID: decisionID,
		EventType:  eventType,
		Actor:      types.HumanActor("mgr-1", "Morgan"),
		Signature:  "v1:00",
		KeyID:      "k1",
		CreatedAt:  createdAt,
	}
}

func TestInMemoryStoreDecisions(t *testing.T) {
	s := NewInMemoryStore()

	if err := s.PutDecision(testDecision("d1", "app-1", "2026-01-01T00:00:00Z")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutDecision(testDecision("d2", "app-1", "2026-01-02T00:00:00Z")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if got, ok := s.GetDecision("d1"); !ok || got.ApplicationID != "app-1" {
		t.Fatalf("get mismatch: ok=%v got=%+v", ok, got)
	}
	if _, ok := s.GetDecision("missing"); ok {
		t.Fatalf("expected miss for unknown decision")
	}

	byApp, err := s.ListDecisionsByApplication("app-1")
	if err != nil {
		t.Fatalf("list by app: %v", err)
	}
	if len(byApp) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(byApp))
	}
	// Newest first.
	if byApp[0].DecisionID != "d2" || byApp[1].DecisionID != "d1" {
		t.Fatalf("unexpected order: %s, %s", byApp[0].DecisionID, byApp[1].DecisionID)
	}
}

func TestInMemoryStoreDecisionFilter(t *testing.T) {
	s := NewInMemoryStore()

	d1 := testDecision("d1", "app-1", "2026-01-01T00:00:00Z")
	d2 := testDecision("d2", "app-2", "2026-02-01T00:00:00Z")
	d2.DecisionType = types.DecisionRejected
	d2.Status = types.StatusRejected
	d2.IsFinal = false
	for _, d := range []types.HiringDecision{d1, d2} {
		if err := s.PutDecision(d); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	rejected, err := s.ListDecisions(DecisionFilter{DecisionType: types.DecisionRejected})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rejected) != 1 || rejected[0].DecisionID != "d2" {
		t.Fatalf("type filter mismatch: %+v", rejected)
	}

	finals, err := s.ListDecisions(DecisionFilter{FinalOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(finals) != 1 || finals[0].DecisionID != "d1" {
		t.Fatalf("final filter mismatch: %+v", finals)
	}

	ranged, err := s.ListDecisions(DecisionFilter{From: "2026-01-15T00:00:00Z"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ranged) != 1 || ranged[0].DecisionID != "d2" {
		t.Fatalf("range filter mismatch: %+v", ranged)
	}
}

func TestAppendAuditAssignsSequence(t *testing.T) {
	s := NewInMemoryStore()

	for i, at := range []string{"2026-01-01T00:00:00Z", "2026-01-01T00:00:01Z", "2026-01-01T00:00:02Z"} {
		stored, err := s.AppendAudit(testAudit("d1", at, types.EventDecisionCreated))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if stored.Seq != int64(i)+1 {
			t.Fatalf("append %d: seq=%d", i, stored.Seq)
		}
	}

	// Sequences are per decision.
	other, err := s.AppendAudit(testAudit("d2", "2026-01-01T00:00:03Z", types.EventDecisionCreated))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if other.Seq != 1 {
		t.Fatalf("expected seq 1 for new decision, got %d", other.Seq)
	}
}

func TestListAuditOrderingAndFilters(t *testing.T) {
	s := NewInMemoryStore()

	records := []types.AuditRecord{
		testAudit("d1", "2026-01-01T00:00:00Z", types.EventDecisionCreated),
		testAudit("d1", "2026-01-01T00:00:05Z", types.EventDecisionModified),
		testAudit("d1", "2026-01-01T00:00:05Z", types.EventDecisionModified),
		testAudit("d1", "2026-01-01T00:00:09Z", types.EventAuditExport),
	}
	records[3].ComplianceFlag = true
	for i, rec := range records {
		rec.RecordID = rec.RecordID + "-" + string(rune('a'+i))
		if _, err := s.AppendAudit(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := s.ListAudit("d1", AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 records, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].CreatedAt > all[i].CreatedAt {
			t.Fatalf("records out of order at %d", i)
		}
		if all[i-1].CreatedAt == all[i].CreatedAt && all[i-1].Seq > all[i].Seq {
			t.Fatalf("ties not broken by seq at %d", i)
		}
	}

	desc, err := s.ListAudit("d1", AuditFilter{Descending: true})
	if err != nil {
		t.Fatalf("list desc: %v", err)
	}
	if desc[0].Seq != all[len(all)-1].Seq {
		t.Fatalf("descending did not reverse order")
	}

	mods, err := s.ListAudit("d1", AuditFilter{EventTypes: []types.AuditEventType{types.EventDecisionModified}})
	if err != nil {
		t.Fatalf("list mods: %v", err)
	}
	if len(mods) != 2 {
		t.Fatalf("event filter mismatch: %d", len(mods))
	}

	flagged := true
	compliance, err := s.ListAudit("d1", AuditFilter{ComplianceFlag: &flagged})
	if err != nil {
		t.Fatalf("list compliance: %v", err)
	}
	if len(compliance) != 1 || compliance[0].EventType != types.EventAuditExport {
		t.Fatalf("compliance filter mismatch: %+v", compliance)
	}

	ranged, err := s.ListAudit("d1", AuditFilter{From: "2026-01-01T00:00:01Z", To: "2026-01-01T00:00:08Z"})
	if err != nil {
		t.Fatalf("list ranged: %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("range filter mismatch: %d", len(ranged))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := NewInMemoryStore()
	boom := errors.New("boom")

	err := s.WithTx(func(tx Tx) error {
		if err := tx.PutDecision(testDecision("d1", "app-1", "2026-01-01T00:00:00Z")); err != nil {
			return err
		}
		if _, err := tx.AppendAudit(testAudit("d1", "2026-01-01T00:00:00Z", types.EventDecisionCreated)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, ok := s.GetDecision("d1"); ok {
		t.Fatalf("decision survived rollback")
	}
	records, err := s.ListAudit("d1", AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("audit records survived rollback: %d", len(records))
	}
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s := NewInMemoryStore()

	err := s.WithTx(func(tx Tx) error {
		if err := tx.PutDecision(testDecision("d1", "app-1", "2026-01-01T00:00:00Z")); err != nil {
			return err
		}
		_, err := tx.AppendAudit(testAudit("d1", "2026-01-01T00:00:00Z", types.EventDecisionCreated))
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	if _, ok := s.GetDecision("d1"); !ok {
		t.Fatalf("decision missing after commit")
	}
	records, err := s.ListAudit("d1", AuditFilter{})
	if err != nil || len(records) != 1 {
		t.Fatalf("audit missing after commit: err=%v len=%d", err, len(records))
	}
}
