package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hirewire/decree/internal/authority"
	"github.com/hirewire/decree/internal/decision"
	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/pkg/types"
)

// SweeperProcess names the system principal for records the orchestrator
// generates on its own behalf.
const SweeperProcess = "decree-sweeper"

// ProfileNotifier is the external profile-creation collaborator, fired once
// per approved decision. Retry semantics belong to the external system.
type ProfileNotifier interface {
	ProfileApproved(applicationID, decisionID string) error
}

// Orchestrator is the façade for all state-changing decision operations. It
// validates authority, mutates the decision store, and appends the matching
// audit records inside one transaction: a reader never observes a decision
// change without its audit record, or the reverse.
type Orchestrator struct {
	Store         ledger.Store
	Authority     *authority.Validator
	Signer        ledger.Signer
	Profiles      ProfileNotifier
	AppealsWindow time.Duration
}

type DecisionRequest struct {
	DecisionReason     string  `json:"decision_reason"`
	DecisionRationale  string  `json:"decision_rationale,omitempty"`
	DecisionConfidence int     `json:"decision_confidence"`
	ClientIP           *string `json:"-"`
}

// SubmitApproval creates an approved decision. Approval has no appeal path,
// so the decision is final immediately.
func (o *Orchestrator) SubmitApproval(actor types.Actor, applicationID string, req DecisionRequest, now string) (types.HiringDecision, error) {
	level, err := o.gate(actor, types.DecisionApproved)
	if err != nil {
		return types.HiringDecision{}, err
	}

	var created types.HiringDecision
	err = o.Store.WithTx(func(tx ledger.Tx) error {
		d, err := decision.Create(tx, decision.CreateInput{
			ApplicationID:      applicationID,
			DecisionType:       types.DecisionApproved,
			DecisionReason:     req.DecisionReason,
			DecisionRationale:  req.DecisionRationale,
			DecisionConfidence: req.DecisionConfidence,
			ApproverID:         actor.ID,
			AuthorityLevel:     level,
			CreatedAt:          now,
		})
		if err != nil {
			return err
		}
		if err := o.appendAudit(tx, auditInput{
			decision:     d,
			eventType:    types.EventDecisionCreated,
			actor:        actor,
			changeReason: req.DecisionReason,
			newState:     &d,
			clientIP:     req.ClientIP,
			createdAt:    now,
		}); err != nil {
			return err
		}
		if err := o.appendAudit(tx, auditInput{
			decision:     d,
			eventType:    types.EventProfileCreated,
			actor:        types.SystemActor(SweeperProcess),
			changeReason: "profile creation signaled for approved application",
			system:       true,
			createdAt:    now,
		}); err != nil {
			return err
		}
		created = d
		return nil
	})
	if err != nil {
		return types.HiringDecision{}, err
	}

	if o.Profiles != nil {
		// Delivery retries are the collaborator's responsibility.
		_ = o.Profiles.ProfileApproved(applicationID, created.DecisionID)
	}
	return created, nil
}

// SubmitRejection creates a rejected decision that stays open for appeal
// until the deadline.
func (o *Orchestrator) SubmitRejection(actor types.Actor, applicationID string, req DecisionRequest, now string) (types.HiringDecision, error) {
	level, err := o.gate(actor, types.DecisionRejected)
	if err != nil {
		return types.HiringDecision{}, err
	}

	var created types.HiringDecision
	err = o.Store.WithTx(func(tx ledger.Tx) error {
		d, err := decision.Create(tx, decision.CreateInput{
			ApplicationID:      applicationID,
			DecisionType:       types.DecisionRejected,
			DecisionReason:     req.DecisionReason,
			DecisionRationale:  req.DecisionRationale,
			DecisionConfidence: req.DecisionConfidence,
			ApproverID:         actor.ID,
			AuthorityLevel:     level,
			CreatedAt:          now,
			AppealsWindow:      o.AppealsWindow,
		})
		if err != nil {
			return err
		}
		if err := o.appendAudit(tx, auditInput{
			decision:     d,
			eventType:    types.EventDecisionCreated,
			actor:        actor,
			changeReason: req.DecisionReason,
			newState:     &d,
			clientIP:     req.ClientIP,
			createdAt:    now,
		}); err != nil {
			return err
		}
		created = d
		return nil
	})
	if err != nil {
		return types.HiringDecision{}, err
	}
	return created, nil
}

// Modify rewrites the mutable fields of a non-final decision and appends a
// decision_modified record with before/after snapshots. History is never
// rewritten: corrections are new records.
func (o *Orchestrator) Modify(actor types.Actor, decisionID string, req DecisionRequest, now string) (types.HiringDecision, error) {
	stored, ok := o.Store.GetDecision(decisionID)
	if !ok {
		return types.HiringDecision{}, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
	}
	if _, err := o.gate(actor, stored.DecisionType); err != nil {
		return types.HiringDecision{}, err
	}

	var updated types.HiringDecision
	err := o.Store.WithTx(func(tx ledger.Tx) error {
		prev, ok := tx.GetDecision(decisionID)
		if !ok {
			return fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
		}

		next := prev
		if req.DecisionReason != "" {
			next.DecisionReason = req.DecisionReason
		}
		if req.DecisionRationale != "" {
			next.DecisionRationale = req.DecisionRationale
		}
		if req.DecisionConfidence != 0 {
			if req.DecisionConfidence < 1 || req.DecisionConfidence > 10 {
				return fmt.Errorf("%w: decision confidence must be 1-10", types.ErrValidation)
			}
			next.DecisionConfidence = req.DecisionConfidence
		}

		if err := decision.Update(tx, next); err != nil {
			return err
		}
		if err := o.appendAudit(tx, auditInput{
			decision:     next,
			eventType:    types.EventDecisionModified,
			actor:        actor,
			changeReason: req.DecisionReason,
			prevState:    &prev,
			newState:     &next,
			clientIP:     req.ClientIP,
			createdAt:    now,
		}); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return types.HiringDecision{}, err
	}
	return updated, nil
}

// Delegate hands a decision to another approver: the original is marked
// delegated and non-final with a reference to the successor, and a new
// pending decision is created under the target approver.
func (o *Orchestrator) Delegate(actor types.Actor, decisionID, toActorID, reason, now string) (types.HiringDecision, error) {
	stored, ok := o.Store.GetDecision(decisionID)
	if !ok {
		return types.HiringDecision{}, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
	}
	if actor.ID != stored.ApproverID {
		return types.HiringDecision{}, fmt.Errorf("%w: only the assigned approver may delegate", types.ErrInsufficientAuthority)
	}
	// The original approver's authority must still cover the decision type.
	if _, err := o.gate(actor, stored.DecisionType); err != nil {
		return types.HiringDecision{}, err
	}
	toLevel, err := o.Authority.Lookup.Level(toActorID)
	if err != nil {
		return types.HiringDecision{}, fmt.Errorf("%w: %v", types.ErrAuthorityLookup, err)
	}

	var successor types.HiringDecision
	err = o.Store.WithTx(func(tx ledger.Tx) error {
		prev, ok := tx.GetDecision(decisionID)
		if !ok {
			return fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
		}
		if !CanDelegate(prev) {
			return fmt.Errorf("%w: decision %s cannot be delegated from %s", types.ErrConflict, decisionID, prev.Status)
		}

		succ, err := decision.Create(tx, decision.CreateInput{
			ApplicationID:      prev.ApplicationID,
			DecisionType:       types.DecisionDelegated,
			DecisionReason:     reason,
			DecisionConfidence: prev.DecisionConfidence,
			ApproverID:         toActorID,
			AuthorityLevel:     toLevel,
			CreatedAt:          now,
		})
		if err != nil {
			return err
		}
		if err := o.appendAudit(tx, auditInput{
			decision:     succ,
			eventType:    types.EventDecisionCreated,
			actor:        actor,
			changeReason: reason,
			newState:     &succ,
			createdAt:    now,
		}); err != nil {
			return err
		}

		next := prev
		next.Status = types.StatusDelegated
		next.DecisionType = types.DecisionDelegated
		next.IsFinal = false
		next.SupersededBy = &succ.DecisionID
		if err := tx.PutDecision(next); err != nil {
			return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
		}

		if err := o.appendAudit(tx, auditInput{
			decision:     next,
			eventType:    types.EventDecisionDelegated,
			actor:        actor,
			changeReason: reason,
			prevState:    &prev,
			newState:     &next,
			createdAt:    now,
		}); err != nil {
			return err
		}
		successor = succ
		return nil
	})
	if err != nil {
		return types.HiringDecision{}, err
	}
	return successor, nil
}

// Appeal records a candidate appeal against a non-final rejection before the
// deadline lapses.
func (o *Orchestrator) Appeal(actor types.Actor, decisionID, reason, now string) (types.HiringDecision, error) {
	if actor.ID == "" {
		return types.HiringDecision{}, types.ErrUnauthenticated
	}

	var updated types.HiringDecision
	err := o.Store.WithTx(func(tx ledger.Tx) error {
		prev, ok := tx.GetDecision(decisionID)
		if !ok {
			return fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
		}
		if !CanAppeal(prev) {
			return fmt.Errorf("%w: decision %s is not open for appeal", types.ErrConflict, decisionID)
		}
		if prev.AppealsDeadline != nil && now > *prev.AppealsDeadline {
			return fmt.Errorf("%w: appeals deadline lapsed at %s", types.ErrConflict, *prev.AppealsDeadline)
		}

		next := prev
		next.Status = types.StatusAppealed
		if err := tx.PutDecision(next); err != nil {
			return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
		}
		if err := o.appendAudit(tx, auditInput{
			decision:     next,
			eventType:    types.EventDecisionAppealed,
			actor:        actor,
			changeReason: reason,
			prevState:    &prev,
			newState:     &next,
			createdAt:    now,
		}); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return types.HiringDecision{}, err
	}
	return updated, nil
}

// ReviewAppeal lands the terminal disposition of an appealed rejection.
func (o *Orchestrator) ReviewAppeal(actor types.Actor, decisionID string, outcome AppealOutcome, reason, now string) (types.HiringDecision, error) {
	if !ValidAppealOutcome(outcome) {
		return types.HiringDecision{}, fmt.Errorf("%w: invalid appeal outcome: %s", types.ErrValidation, outcome)
	}
	stored, ok := o.Store.GetDecision(decisionID)
	if !ok {
		return types.HiringDecision{}, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
	}
	if _, err := o.gate(actor, stored.DecisionType); err != nil {
		return types.HiringDecision{}, err
	}

	var reviewed types.HiringDecision
	err := o.Store.WithTx(func(tx ledger.Tx) error {
		prev, ok := tx.GetDecision(decisionID)
		if !ok {
			return fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
		}
		if !CanReviewAppeal(prev) {
			return fmt.Errorf("%w: decision %s has no open appeal", types.ErrConflict, decisionID)
		}

		next, err := decision.Finalize(tx, decisionID, types.StatusAppealReviewed)
		if err != nil {
			return err
		}
		if err := o.appendAudit(tx, auditInput{
			decision:     next,
			eventType:    types.EventAppealReviewed,
			actor:        actor,
			changeReason: fmt.Sprintf("appeal %s: %s", outcome, reason),
			prevState:    &prev,
			newState:     &next,
			createdAt:    now,
		}); err != nil {
			return err
		}
		reviewed = next
		return nil
	})
	if err != nil {
		return types.HiringDecision{}, err
	}
	return reviewed, nil
}

// SweepExpiredRejections finalizes rejections whose appeals window lapsed
// without action. Idempotent: already-final decisions are skipped.
func (o *Orchestrator) SweepExpiredRejections(now string) (int, error) {
	candidates, err := o.Store.ListDecisions(ledger.DecisionFilter{DecisionType: types.DecisionRejected})
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, d := range candidates {
		if d.IsFinal || d.Status != types.StatusRejected {
			continue
		}
		if d.AppealsDeadline == nil || now <= *d.AppealsDeadline {
			continue
		}

		err := o.Store.WithTx(func(tx ledger.Tx) error {
			prev, ok := tx.GetDecision(d.DecisionID)
			if !ok || prev.IsFinal || prev.Status != types.StatusRejected {
				return nil
			}
			next, err := decision.Finalize(tx, d.DecisionID, types.StatusRejected)
			if err != nil {
				return err
			}
			if err := o.appendAudit(tx, auditInput{
				decision:     next,
				eventType:    types.EventDecisionModified,
				actor:        types.SystemActor(SweeperProcess),
				changeReason: "appeals window lapsed without appeal",
				prevState:    &prev,
				newState:     &next,
				system:       true,
				createdAt:    now,
			}); err != nil {
				return err
			}
			swept++
			return nil
		})
		if err != nil {
			return swept, err
		}
	}
	return swept, nil
}

// AuditEventInput is a caller-supplied audit event originating outside the
// decision state machine, a compliance review for example.
type AuditEventInput struct {
	DecisionID     string
	EventType      types.AuditEventType
	ChangeReason   string
	ComplianceFlag bool
	ClientIP       *string
}

// RecordAuditEvent appends one caller-supplied record to a decision's trail.
// The decision itself is untouched.
func (o *Orchestrator) RecordAuditEvent(actor types.Actor, in AuditEventInput, now string) (types.AuditRecord, error) {
	if actor.ID == "" {
		return types.AuditRecord{}, types.ErrUnauthenticated
	}
	if !types.ValidAuditEventType(in.EventType) {
		return types.AuditRecord{}, fmt.Errorf("%w: invalid event type: %s", types.ErrValidation, in.EventType)
	}

	var stored types.AuditRecord
	err := o.Store.WithTx(func(tx ledger.Tx) error {
		if _, ok := tx.GetDecision(in.DecisionID); !ok {
			return fmt.Errorf("%w: decision %s", types.ErrNotFound, in.DecisionID)
		}

		rec := types.AuditRecord{
			DecisionID:      in.DecisionID,
			EventType:       in.EventType,
			Actor:           actor,
			ChangeReason:    in.ChangeReason,
			CreatedAt:       now,
			SystemGenerated: actor.Kind == types.ActorSystem,
			ComplianceFlag:  in.ComplianceFlag || in.EventType == types.EventComplianceReview,
			ClientIP:        in.ClientIP,
		}
		sealed, err := ledger.Seal(rec, o.Signer)
		if err != nil {
			return err
		}
		appended, err := tx.AppendAudit(sealed)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
		}
		stored = appended
		return nil
	})
	if err != nil {
		return types.AuditRecord{}, err
	}
	return stored, nil
}

// ValidateAuthority is the pass-through predicate exposed to callers.
func (o *Orchestrator) ValidateAuthority(actorID string, decisionType types.DecisionType) (bool, error) {
	if !types.ValidDecisionType(decisionType) {
		return false, fmt.Errorf("%w: invalid decision type: %s", types.ErrValidation, decisionType)
	}
	return o.Authority.Validate(actorID, decisionType)
}

// gate runs the authority check and resolves the actor's level. Authority
// and authentication failures happen before any write, so a failed gate
// appends nothing.
func (o *Orchestrator) gate(actor types.Actor, decisionType types.DecisionType) (string, error) {
	if actor.ID == "" {
		return "", types.ErrUnauthenticated
	}
	ok, err := o.Authority.Validate(actor.ID, decisionType)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: actor %s may not submit %s decisions", types.ErrInsufficientAuthority, actor.ID, decisionType)
	}
	level, err := o.Authority.Lookup.Level(actor.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrAuthorityLookup, err)
	}
	return level, nil
}

type auditInput struct {
	decision     types.HiringDecision
	eventType    types.AuditEventType
	actor        types.Actor
	changeReason string
	prevState    *types.HiringDecision
	newState     *types.HiringDecision
	clientIP     *string
	system       bool
	createdAt    string
}

func (o *Orchestrator) appendAudit(tx ledger.Tx, in auditInput) error {
	rec := types.AuditRecord{
		DecisionID:      in.decision.DecisionID,
		EventType:       in.eventType,
		Actor:           in.actor,
		ChangeReason:    in.changeReason,
		CreatedAt:       in.createdAt,
		SystemGenerated: in.system,
		ClientIP:        in.clientIP,
	}
	if in.prevState != nil {
		snap, err := json.Marshal(in.prevState)
		if err != nil {
			return err
		}
		rec.PrevState = snap
	}
	if in.newState != nil {
		snap, err := json.Marshal(in.newState)
		if err != nil {
			return err
		}
		rec.NewState = snap
	}

	sealed, err := ledger.Seal(rec, o.Signer)
	if err != nil {
		return err
	}
	if _, err := tx.AppendAudit(sealed); err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	return nil
}
