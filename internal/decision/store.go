package decision

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/pkg/types"
)

// DefaultAppealsWindow is how long a rejected candidate has to appeal before
// the rejection becomes final.
const DefaultAppealsWindow = 30 * 24 * time.Hour

type CreateInput struct {
	ApplicationID      string
	DecisionType       types.DecisionType
	DecisionReason     string
	DecisionRationale  string
	DecisionConfidence int
	ApproverID         string
	AuthorityLevel     string
	CreatedAt          string
	AppealsWindow      time.Duration
}

// Create assigns an ID, stamps created_at/effective_date, and persists the
// decision. It rejects when the application already has a blocking final
// decision. Rejections get an appeals deadline; approvals never do, and an
// approval is final the moment it exists.
func Create(tx ledger.Tx, in CreateInput) (types.HiringDecision, error) {
	if err := validateCreate(in); err != nil {
		return types.HiringDecision{}, err
	}

	existing, err := tx.ListDecisionsByApplication(in.ApplicationID)
	if err != nil {
		return types.HiringDecision{}, err
	}
	for _, d := range existing {
		if blocksNewDecision(d) {
			return types.HiringDecision{}, fmt.Errorf("%w: application %s decided by %s", types.ErrDuplicateDecision, in.ApplicationID, d.DecisionID)
		}
	}

	d := types.HiringDecision{
		DecisionID:         "dec-" + uuid.NewString(),
		ApplicationID:      in.ApplicationID,
		DecisionType:       in.DecisionType,
		DecisionReason:     in.DecisionReason,
		DecisionRationale:  in.DecisionRationale,
		DecisionConfidence: in.DecisionConfidence,
		ApproverID:         in.ApproverID,
		AuthorityLevel:     in.AuthorityLevel,
		CreatedAt:          in.CreatedAt,
		EffectiveDate:      in.CreatedAt,
	}

	switch in.DecisionType {
	case types.DecisionApproved:
		d.Status = types.StatusApproved
		d.IsFinal = true
	case types.DecisionRejected:
		d.Status = types.StatusRejected
		deadline, err := appealsDeadline(in.CreatedAt, in.AppealsWindow)
		if err != nil {
			return types.HiringDecision{}, err
		}
		d.AppealsDeadline = &deadline
	case types.DecisionDelegated:
		d.Status = types.StatusPending
	}

	if err := tx.PutDecision(d); err != nil {
		return types.HiringDecision{}, fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	return d, nil
}

// Finalize sets is_final. Already-final decisions are a no-op success when
// the requested terminal status matches what is stored, and a conflict when
// it does not: concurrent finalizers serialize on the transaction, the
// second one lands here.
func Finalize(tx ledger.Tx, decisionID string, want types.DecisionStatus) (types.HiringDecision, error) {
	d, ok := tx.GetDecision(decisionID)
	if !ok {
		return types.HiringDecision{}, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
	}

	if d.IsFinal {
		if want == "" || d.Status == want {
			return d, nil
		}
		return types.HiringDecision{}, fmt.Errorf("%w: decision %s already final as %s, requested %s", types.ErrConflict, decisionID, d.Status, want)
	}

	d.IsFinal = true
	if want != "" {
		d.Status = want
	}
	if err := tx.PutDecision(d); err != nil {
		return types.HiringDecision{}, fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	return d, nil
}

// Update rewrites a non-final decision. Final decisions are immutable: the
// only way forward is a new decision or an appeal record.
func Update(tx ledger.Tx, d types.HiringDecision) error {
	stored, ok := tx.GetDecision(d.DecisionID)
	if !ok {
		return fmt.Errorf("%w: decision %s", types.ErrNotFound, d.DecisionID)
	}
	if stored.IsFinal {
		return fmt.Errorf("%w: decision %s is final", types.ErrConflict, d.DecisionID)
	}
	if err := tx.PutDecision(d); err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	return nil
}

// Store exposes the read path over a ledger backend.
type Store struct {
	L ledger.Store
}

func NewStore(l ledger.Store) *Store {
	return &Store{L: l}
}

func (s *Store) Get(decisionID string) (types.HiringDecision, error) {
	d, ok := s.L.GetDecision(decisionID)
	if !ok {
		return types.HiringDecision{}, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
	}
	return d, nil
}

// ListByApplication returns the application's decision history, newest first.
func (s *Store) ListByApplication(applicationID string) ([]types.HiringDecision, error) {
	return s.L.ListDecisionsByApplication(applicationID)
}

func validateCreate(in CreateInput) error {
	if in.ApplicationID == "" {
		return fmt.Errorf("%w: missing application id", types.ErrValidation)
	}
	if !types.ValidDecisionType(in.DecisionType) {
		return fmt.Errorf("%w: invalid decision type: %s", types.ErrValidation, in.DecisionType)
	}
	if in.DecisionReason == "" {
		return fmt.Errorf("%w: missing decision reason", types.ErrValidation)
	}
	if in.DecisionConfidence < 1 || in.DecisionConfidence > 10 {
		return fmt.Errorf("%w: decision confidence must be 1-10, got %d", types.ErrValidation, in.DecisionConfidence)
	}
	if in.ApproverID == "" {
		return fmt.Errorf("%w: missing approver id", types.ErrValidation)
	}
	if in.CreatedAt == "" {
		return fmt.Errorf("%w: missing created_at", types.ErrValidation)
	}
	return nil
}

func blocksNewDecision(d types.HiringDecision) bool {
	if !d.IsFinal {
		return false
	}
	if d.DecisionType == types.DecisionDelegated {
		return false
	}
	if d.Status == types.StatusAppealed {
		return false
	}
	return true
}

func appealsDeadline(createdAt string, window time.Duration) (string, error) {
	if window <= 0 {
		window = DefaultAppealsWindow
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return "", fmt.Errorf("%w: bad created_at: %v", types.ErrValidation, err)
	}
	return t.Add(window).UTC().Format(time.RFC3339), nil
}
