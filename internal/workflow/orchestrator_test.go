package workflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hirewire/decree/internal/authority"
	"github.com/hirewire/decree/internal/crypto"
	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/pkg/types"
)

func testTable() authority.Table {
	return authority.Table{
		TableID: "test",
		Levels: []authority.LevelEntry{
			{Level: "manager", Rank: 1, Permits: []string{"approved", "rejected"}},
			{Level: "senior_manager", Rank: 2, Permits: []string{"approved", "rejected", "delegated"}},
			{Level: "admin", Rank: 4, Permits: []string{"approved", "rejected", "delegated"}},
		},
		Actors: []authority.ActorEntry{
			{ID: "mgr-1", Level: "manager"},
			{ID: "mgr-2", Level: "manager"},
			{ID: "sr-1", Level: "senior_manager"},
			{ID: "intern-1", Level: "intern"},
		},
	}
}

type fakeNotifier struct {
	calls []string
}

func (n *fakeNotifier) ProfileApproved(applicationID, decisionID string) error {
	n.calls = append(n.calls, applicationID+"/"+decisionID)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *ledger.InMemoryStore, crypto.MACKey, *fakeNotifier) {
	t.Helper()
	key, err := crypto.NewMACKey("k1", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	table := testTable()
	store := ledger.NewInMemoryStore()
	notifier := &fakeNotifier{}
	return &Orchestrator{
		Store:     store,
		Authority: authority.NewValidator(authority.NewTableLookup(table), table),
		Signer:    key,
		Profiles:  notifier,
	}, store, key, notifier
}

func mgr() types.Actor {
	return types.HumanActor("mgr-1", "Morgan")
}

func request() DecisionRequest {
	return DecisionRequest{
		DecisionReason:     "strong technical interview",
		DecisionConfidence: 8,
	}
}

const t0 = "2026-01-01T00:00:00Z"

func TestSubmitApproval(t *testing.T) {
	o, store, key, notifier := newTestOrchestrator(t)

	d, err := o.SubmitApproval(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.DecisionType != types.DecisionApproved || d.Status != types.StatusApproved {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if !d.IsFinal {
		t.Fatalf("approval must be final")
	}
	if d.AuthorityLevel != "manager" {
		t.Fatalf("authority level not stamped: %s", d.AuthorityLevel)
	}

	records, err := store.ListAudit(d.DecisionID, ledger.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected decision_created and profile_created, got %d records", len(records))
	}
	if records[0].EventType != types.EventDecisionCreated {
		t.Fatalf("first record is %s", records[0].EventType)
	}
	if records[1].EventType != types.EventProfileCreated || !records[1].SystemGenerated {
		t.Fatalf("second record mismatch: %+v", records[1])
	}
	if records[1].Actor.Kind != types.ActorSystem {
		t.Fatalf("profile record should carry a system actor")
	}

	for i, rec := range records {
		ok, err := ledger.VerifyRecord(rec, key)
		if err != nil || !ok {
			t.Fatalf("record %d signature invalid: ok=%v err=%v", i, ok, err)
		}
	}

	if len(notifier.calls) != 1 || notifier.calls[0] != "app-1/"+d.DecisionID {
		t.Fatalf("notifier calls: %v", notifier.calls)
	}
}

func TestSubmitRejectionSetsDeadline(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)
	o.AppealsWindow = 14 * 24 * time.Hour

	d, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.IsFinal {
		t.Fatalf("rejection must stay open for appeal")
	}
	if d.AppealsDeadline == nil || *d.AppealsDeadline != "2026-01-15T00:00:00Z" {
		t.Fatalf("deadline: %v", d.AppealsDeadline)
	}

	records, err := store.ListAudit(d.DecisionID, ledger.AuditFilter{})
	if err != nil || len(records) != 1 {
		t.Fatalf("expected single decision_created record: err=%v len=%d", err, len(records))
	}
}

func TestSubmitUnauthenticatedActor(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)

	_, err := o.SubmitApproval(types.Actor{}, "app-1", request(), t0)
	if !errors.Is(err, types.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	assertNoWrites(t, store)
}

func TestSubmitInsufficientAuthorityWritesNothing(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)

	// Recognized actor whose level is not in the table.
	_, err := o.SubmitApproval(types.HumanActor("intern-1", "Iris"), "app-1", request(), t0)
	if !errors.Is(err, types.ErrInsufficientAuthority) {
		t.Fatalf("expected ErrInsufficientAuthority, got %v", err)
	}
	assertNoWrites(t, store)
}

func TestSubmitUnresolvableActor(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)

	_, err := o.SubmitApproval(types.HumanActor("ghost", "Ghost"), "app-1", request(), t0)
	if !errors.Is(err, types.ErrAuthorityLookup) {
		t.Fatalf("expected ErrAuthorityLookup, got %v", err)
	}
	assertNoWrites(t, store)
}

func assertNoWrites(t *testing.T, store *ledger.InMemoryStore) {
	t.Helper()
	decisions, err := store.ListDecisions(ledger.DecisionFilter{})
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(decisions) != 0 {
		t.Fatalf("decisions written on failed gate: %d", len(decisions))
	}
	records, err := store.ListAuditAll(ledger.AuditFilter{})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("audit records written on failed gate: %d", len(records))
	}
}

// failingAppendStore forces AppendAudit to fail inside a transaction so the
// paired decision write must roll back with it.
type failingAppendStore struct {
	*ledger.InMemoryStore
}

type failingAppendTx struct {
	ledger.Tx
}

func (s *failingAppendStore) WithTx(fn func(ledger.Tx) error) error {
	return s.InMemoryStore.WithTx(func(tx ledger.Tx) error {
		return fn(&failingAppendTx{Tx: tx})
	})
}

func (t *failingAppendTx) AppendAudit(rec types.AuditRecord) (types.AuditRecord, error) {
	return types.AuditRecord{}, fmt.Errorf("disk full")
}

func TestSubmitApprovalRollsBackWhenAuditFails(t *testing.T) {
	o, store, _, notifier := newTestOrchestrator(t)
	o.Store = &failingAppendStore{InMemoryStore: store}

	_, err := o.SubmitApproval(mgr(), "app-1", request(), t0)
	if !errors.Is(err, types.ErrLedgerWrite) {
		t.Fatalf("expected ErrLedgerWrite, got %v", err)
	}
	assertNoWrites(t, store)
	if len(notifier.calls) != 0 {
		t.Fatalf("notifier fired on failed transaction")
	}
}

func TestModifyAppendsSnapshots(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	updated, err := o.Modify(mgr(), d.DecisionID, DecisionRequest{
		DecisionReason:     "reconsidered after reference check",
		DecisionConfidence: 5,
	}, "2026-01-02T00:00:00Z")
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if updated.DecisionReason != "reconsidered after reference check" || updated.DecisionConfidence != 5 {
		t.Fatalf("fields not updated: %+v", updated)
	}

	records, err := store.ListAudit(d.DecisionID, ledger.AuditFilter{
		EventTypes: []types.AuditEventType{types.EventDecisionModified},
	})
	if err != nil || len(records) != 1 {
		t.Fatalf("expected 1 modified record: err=%v len=%d", err, len(records))
	}
	if len(records[0].PrevState) == 0 || len(records[0].NewState) == 0 {
		t.Fatalf("snapshots missing: %+v", records[0])
	}
}

func TestModifyRefusesFinalDecision(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitApproval(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = o.Modify(mgr(), d.DecisionID, DecisionRequest{DecisionReason: "late edit"}, "2026-01-02T00:00:00Z")
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDelegateSpawnsSuccessor(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	successor, err := o.Delegate(mgr(), d.DecisionID, "sr-1", "needs senior review", "2026-01-02T00:00:00Z")
	if err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if successor.ApproverID != "sr-1" || successor.AuthorityLevel != "senior_manager" {
		t.Fatalf("successor assignment: %+v", successor)
	}
	if successor.Status != types.StatusPending || successor.DecisionType != types.DecisionDelegated {
		t.Fatalf("successor state: %+v", successor)
	}

	original, ok := store.GetDecision(d.DecisionID)
	if !ok {
		t.Fatalf("original missing")
	}
	if original.Status != types.StatusDelegated || original.IsFinal {
		t.Fatalf("original state: %+v", original)
	}
	if original.SupersededBy == nil || *original.SupersededBy != successor.DecisionID {
		t.Fatalf("superseded_by not linked: %v", original.SupersededBy)
	}

	records, err := store.ListAudit(d.DecisionID, ledger.AuditFilter{
		EventTypes: []types.AuditEventType{types.EventDecisionDelegated},
	})
	if err != nil || len(records) != 1 {
		t.Fatalf("expected delegation record: err=%v len=%d", err, len(records))
	}
}

func TestDelegateOnlyAssignedApprover(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err = o.Delegate(types.HumanActor("mgr-2", "Marta"), d.DecisionID, "sr-1", "grabbing it", "2026-01-02T00:00:00Z")
	if !errors.Is(err, types.ErrInsufficientAuthority) {
		t.Fatalf("expected ErrInsufficientAuthority, got %v", err)
	}
}

func TestDelegateUnresolvableTarget(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err = o.Delegate(mgr(), d.DecisionID, "ghost", "handing off", "2026-01-02T00:00:00Z")
	if !errors.Is(err, types.ErrAuthorityLookup) {
		t.Fatalf("expected ErrAuthorityLookup, got %v", err)
	}
}

func TestAppealFlow(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	candidate := types.HumanActor("cand-1", "Casey")
	appealed, err := o.Appeal(candidate, d.DecisionID, "new references available", "2026-01-05T00:00:00Z")
	if err != nil {
		t.Fatalf("appeal: %v", err)
	}
	if appealed.Status != types.StatusAppealed {
		t.Fatalf("status after appeal: %s", appealed.Status)
	}

	reviewed, err := o.ReviewAppeal(mgr(), d.DecisionID, AppealUpheld, "references did not change the picture", "2026-01-06T00:00:00Z")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Status != types.StatusAppealReviewed || !reviewed.IsFinal {
		t.Fatalf("state after review: %+v", reviewed)
	}

	records, err := store.ListAudit(d.DecisionID, ledger.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []types.AuditEventType
	for _, rec := range records {
		got = append(got, rec.EventType)
	}
	want := []types.AuditEventType{types.EventDecisionCreated, types.EventDecisionAppealed, types.EventAppealReviewed}
	if len(got) != len(want) {
		t.Fatalf("event types: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAppealAfterDeadline(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	o.AppealsWindow = 24 * time.Hour

	d, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err = o.Appeal(types.HumanActor("cand-1", "Casey"), d.DecisionID, "too late", "2026-02-01T00:00:00Z")
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAppealNonRejection(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitApproval(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = o.Appeal(types.HumanActor("cand-1", "Casey"), d.DecisionID, "appealing an approval", "2026-01-02T00:00:00Z")
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestReviewAppealInvalidOutcome(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	_, err := o.ReviewAppeal(mgr(), "whatever", AppealOutcome("shrug"), "", t0)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSweepExpiredRejections(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)
	o.AppealsWindow = 24 * time.Hour

	lapsed, err := o.SubmitRejection(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	open, err := o.SubmitRejection(mgr(), "app-2", request(), "2026-01-20T00:00:00Z")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	swept, err := o.SweepExpiredRejections("2026-01-10T00:00:00Z")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}

	d, _ := store.GetDecision(lapsed.DecisionID)
	if !d.IsFinal || d.Status != types.StatusRejected {
		t.Fatalf("lapsed rejection not finalized: %+v", d)
	}
	still, _ := store.GetDecision(open.DecisionID)
	if still.IsFinal {
		t.Fatalf("open rejection finalized early")
	}

	records, err := store.ListAudit(lapsed.DecisionID, ledger.AuditFilter{
		EventTypes: []types.AuditEventType{types.EventDecisionModified},
	})
	if err != nil || len(records) != 1 {
		t.Fatalf("expected sweep audit record: err=%v len=%d", err, len(records))
	}
	if !records[0].SystemGenerated || records[0].Actor.ID != SweeperProcess {
		t.Fatalf("sweep record actor: %+v", records[0])
	}

	// Second sweep is a no-op.
	again, err := o.SweepExpiredRejections("2026-01-11T00:00:00Z")
	if err != nil || again != 0 {
		t.Fatalf("resweep: swept=%d err=%v", again, err)
	}
}

func TestValidateAuthority(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	ok, err := o.ValidateAuthority("mgr-1", types.DecisionApproved)
	if err != nil || !ok {
		t.Fatalf("manager approve: ok=%v err=%v", ok, err)
	}
	ok, err = o.ValidateAuthority("mgr-1", types.DecisionDelegated)
	if err != nil || ok {
		t.Fatalf("manager delegate: ok=%v err=%v", ok, err)
	}
	if _, err := o.ValidateAuthority("mgr-1", "maybe"); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRecordAuditEvent(t *testing.T) {
	o, store, key, _ := newTestOrchestrator(t)

	d, err := o.SubmitApproval(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	rec, err := o.RecordAuditEvent(types.HumanActor("sr-1", "Sam"), AuditEventInput{
		DecisionID:   d.DecisionID,
		EventType:    types.EventComplianceReview,
		ChangeReason: "quarterly review of approval rationale",
	}, "2026-01-02T00:00:00Z")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Seq != 3 {
		t.Fatalf("expected seq 3 after creation records, got %d", rec.Seq)
	}
	// compliance_review records are flagged even without an explicit flag.
	if !rec.ComplianceFlag {
		t.Fatalf("expected compliance flag")
	}
	if rec.SystemGenerated {
		t.Fatalf("human actor must not be system generated")
	}
	ok, err := ledger.VerifyRecord(rec, key)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}

	batch, err := o.RecordAuditEvent(types.SystemActor("compliance-batch"), AuditEventInput{
		DecisionID: d.DecisionID,
		EventType:  types.EventComplianceReview,
	}, "2026-01-02T01:00:00Z")
	if err != nil {
		t.Fatalf("system record: %v", err)
	}
	if !batch.SystemGenerated {
		t.Fatalf("system actor must be system generated")
	}

	reviews, err := store.ListAudit(d.DecisionID, ledger.AuditFilter{
		EventTypes: []types.AuditEventType{types.EventComplianceReview},
	})
	if err != nil || len(reviews) != 2 {
		t.Fatalf("stored reviews: err=%v len=%d", err, len(reviews))
	}
}

func TestRecordAuditEventFailures(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t)

	d, err := o.SubmitApproval(mgr(), "app-1", request(), t0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	cases := []struct {
		name  string
		actor types.Actor
		in    AuditEventInput
		want  error
	}{
		{"empty actor", types.Actor{}, AuditEventInput{DecisionID: d.DecisionID, EventType: types.EventComplianceReview}, types.ErrUnauthenticated},
		{"invalid event type", mgr(), AuditEventInput{DecisionID: d.DecisionID, EventType: "vibe_check"}, types.ErrValidation},
		{"unknown decision", mgr(), AuditEventInput{DecisionID: "dec-404", EventType: types.EventComplianceReview}, types.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := o.RecordAuditEvent(tc.actor, tc.in, t0); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	records, err := store.ListAudit(d.DecisionID, ledger.AuditFilter{})
	if err != nil || len(records) != 2 {
		t.Fatalf("failed events must append nothing: err=%v len=%d", err, len(records))
	}
}
