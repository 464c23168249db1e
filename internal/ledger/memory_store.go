package ledger

import (
	"sort"
	"sync"

	"github.com/hirewire/decree/pkg/types"
)

type InMemoryStore struct {
	mu sync.Mutex

	decisions map[string]types.HiringDecision
	byApp     map[string][]string
	audits    map[string][]types.AuditRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		decisions: make(map[string]types.HiringDecision),
		byApp:     make(map[string][]string),
		audits:    make(map[string][]types.AuditRecord),
	}
}

// WithTx serializes the whole unit of work under the store mutex, which is
// what makes decision-write + audit-append atomic for readers: a failing fn
// must undo nothing because snapshots below restore state on error.
func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapDecisions := make(map[string]types.HiringDecision, len(s.decisions))
	for k, v := range s.decisions {
		snapDecisions[k] = v
	}
	snapByApp := make(map[string][]string, len(s.byApp))
	for k, v := range s.byApp {
		snapByApp[k] = append([]string(nil), v...)
	}
	snapAudits := make(map[string][]types.AuditRecord, len(s.audits))
	for k, v := range s.audits {
		snapAudits[k] = append([]types.AuditRecord(nil), v...)
	}

	if err := fn((*memTx)(s)); err != nil {
		s.decisions = snapDecisions
		s.byApp = snapByApp
		s.audits = snapAudits
		return err
	}
	return nil
}

func (s *InMemoryStore) PutDecision(d types.HiringDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutDecision(d)
}

func (s *InMemoryStore) GetDecision(decisionID string) (types.HiringDecision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetDecision(decisionID)
}

func (s *InMemoryStore) ListDecisionsByApplication(applicationID string) ([]types.HiringDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).ListDecisionsByApplication(applicationID)
}

func (s *InMemoryStore) ListDecisions(f DecisionFilter) ([]types.HiringDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).ListDecisions(f)
}

func (s *InMemoryStore) AppendAudit(rec types.AuditRecord) (types.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).AppendAudit(rec)
}

func (s *InMemoryStore) ListAudit(decisionID string, f AuditFilter) ([]types.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).ListAudit(decisionID, f)
}

func (s *InMemoryStore) ListAuditAll(f AuditFilter) ([]types.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).ListAuditAll(f)
}

type memTx InMemoryStore

func (t *memTx) PutDecision(d types.HiringDecision) error {
	s := (*InMemoryStore)(t)
	if _, exists := s.decisions[d.DecisionID]; !exists {
		s.byApp[d.ApplicationID] = append(s.byApp[d.ApplicationID], d.DecisionID)
	}
	s.decisions[d.DecisionID] = d
	return nil
}

func (t *memTx) GetDecision(decisionID string) (types.HiringDecision, bool) {
	d, ok := (*InMemoryStore)(t).decisions[decisionID]
	return d, ok
}

func (t *memTx) ListDecisionsByApplication(applicationID string) ([]types.HiringDecision, error) {
	s := (*InMemoryStore)(t)
	out := []types.HiringDecision{}
	for _, id := range s.byApp[applicationID] {
		out = append(out, s.decisions[id])
	}
	// History views read newest first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

func (t *memTx) ListDecisions(f DecisionFilter) ([]types.HiringDecision, error) {
	s := (*InMemoryStore)(t)
	out := []types.HiringDecision{}
	for _, d := range s.decisions {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].DecisionID < out[j].DecisionID
	})
	return out, nil
}

func (t *memTx) AppendAudit(rec types.AuditRecord) (types.AuditRecord, error) {
	s := (*InMemoryStore)(t)
	rec.Seq = int64(len(s.audits[rec.DecisionID])) + 1
	s.audits[rec.DecisionID] = append(s.audits[rec.DecisionID], rec)
	return rec, nil
}

func (t *memTx) ListAudit(decisionID string, f AuditFilter) ([]types.AuditRecord, error) {
	s := (*InMemoryStore)(t)
	out := []types.AuditRecord{}
	for _, rec := range s.audits[decisionID] {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	sortAudit(out, f.Descending)
	return out, nil
}

func (t *memTx) ListAuditAll(f AuditFilter) ([]types.AuditRecord, error) {
	s := (*InMemoryStore)(t)
	out := []types.AuditRecord{}
	for _, recs := range s.audits {
		for _, rec := range recs {
			if f.Matches(rec) {
				out = append(out, rec)
			}
		}
	}
	sortAudit(out, f.Descending)
	return out, nil
}

// sortAudit orders by created_at with the per-decision sequence breaking
// ties, so insertion order survives identical timestamps.
func sortAudit(records []types.AuditRecord, descending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if descending {
			a, b = b, a
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.DecisionID != b.DecisionID {
			return a.DecisionID < b.DecisionID
		}
		return a.Seq < b.Seq
	})
}
