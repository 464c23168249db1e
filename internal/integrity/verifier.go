package integrity

import (
	"fmt"
	"sort"
	"time"

	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/pkg/types"
)

// Config holds the anomaly heuristic thresholds. The defaults mirror the
// original illustrative constants; they carry no documented product intent,
// so operators can tune them.
type Config struct {
	RapidWindow time.Duration
	RapidMedium int
	RapidHigh   int
}

func DefaultConfig() Config {
	return Config{
		RapidWindow: 60 * time.Second,
		RapidMedium: 2,
		RapidHigh:   3,
	}
}

// Verifier recomputes signatures over a decision's audit trail and applies
// the anomaly heuristics. It only reads.
type Verifier struct {
	Store  ledger.Store
	Keys   map[string]ledger.Verifier
	Config Config
}

func NewVerifier(store ledger.Store, key ledger.Verifier, cfg Config) *Verifier {
	if cfg.RapidWindow <= 0 {
		cfg = DefaultConfig()
	}
	return &Verifier{
		Store:  store,
		Keys:   map[string]ledger.Verifier{key.KeyID(): key},
		Config: cfg,
	}
}

// AddKey registers an additional (e.g. rotated-out) verification key.
func (v *Verifier) AddKey(key ledger.Verifier) {
	v.Keys[key.KeyID()] = key
}

// Verify walks the decision's records in insertion order, recomputes each
// signature, and flags anomalies. A record implicated in any suspicious
// activity does not count as verified, which keeps the score and the
// suspicious list consistent: score is 100 exactly when the list is empty.
func (v *Verifier) Verify(decisionID string, now string) (types.IntegrityReport, error) {
	if _, ok := v.Store.GetDecision(decisionID); !ok {
		return types.IntegrityReport{}, fmt.Errorf("%w: decision %s", types.ErrNotFound, decisionID)
	}

	records, err := v.Store.ListAudit(decisionID, ledger.AuditFilter{})
	if err != nil {
		return types.IntegrityReport{}, err
	}

	suspicious := []types.SuspiciousActivity{}
	flagged := map[string]bool{}

	flag := func(recordID, issue string, severity types.Severity) {
		suspicious = append(suspicious, types.SuspiciousActivity{
			RecordID: recordID,
			Issue:    issue,
			Severity: severity,
		})
		flagged[recordID] = true
	}

	for _, rec := range records {
		key, ok := v.Keys[rec.KeyID]
		if !ok {
			flag(rec.RecordID, fmt.Sprintf("unknown signing key %q", rec.KeyID), types.SeverityHigh)
			continue
		}
		valid, err := ledger.VerifyRecord(rec, key)
		if err != nil || !valid {
			flag(rec.RecordID, "stored signature does not match recomputed signature", types.SeverityHigh)
		}
	}

	for _, rec := range records {
		if rec.SystemGenerated && rec.Actor.Kind != types.ActorSystem {
			flag(rec.RecordID, fmt.Sprintf("record marked system-generated but actor %q is a human account", rec.Actor.ID), types.SeverityMedium)
		}
	}

	for _, sa := range v.rapidChanges(records) {
		suspicious = append(suspicious, sa)
		flagged[sa.RecordID] = true
	}

	verified := 0
	for _, rec := range records {
		if !flagged[rec.RecordID] {
			verified++
		}
	}

	score := 100
	if len(records) > 0 {
		score = verified * 100 / len(records)
	}

	return types.IntegrityReport{
		DecisionID:           decisionID,
		TotalRecords:         len(records),
		VerifiedRecords:      verified,
		IntegrityScore:       score,
		SuspiciousActivities: suspicious,
		LastVerified:         now,
	}, nil
}

// rapidChanges flags bursts of decision_modified records by one actor inside
// the configured window: medium at the lower threshold, high at the upper.
func (v *Verifier) rapidChanges(records []types.AuditRecord) []types.SuspiciousActivity {
	type stamped struct {
		rec types.AuditRecord
		at  time.Time
	}

	byActor := map[string][]stamped{}
	for _, rec := range records {
		if rec.EventType != types.EventDecisionModified {
			continue
		}
		at, err := time.Parse(time.RFC3339, rec.CreatedAt)
		if err != nil {
			continue
		}
		byActor[rec.Actor.ID] = append(byActor[rec.Actor.ID], stamped{rec: rec, at: at})
	}

	out := []types.SuspiciousActivity{}
	for actorID, changes := range byActor {
		sort.Slice(changes, func(i, j int) bool { return changes[i].at.Before(changes[j].at) })

		best := 0
		var last stamped
		for i := range changes {
			count := 1
			for j := i + 1; j < len(changes); j++ {
				if changes[j].at.Sub(changes[i].at) > v.Config.RapidWindow {
					break
				}
				count++
			}
			if count > best {
				best = count
				last = changes[i+count-1]
			}
		}

		switch {
		case best >= v.Config.RapidHigh:
			out = append(out, types.SuspiciousActivity{
				RecordID: last.rec.RecordID,
				Issue:    fmt.Sprintf("%d modifications by actor %q within %s", best, actorID, v.Config.RapidWindow),
				Severity: types.SeverityHigh,
			})
		case best >= v.Config.RapidMedium:
			out = append(out, types.SuspiciousActivity{
				RecordID: last.rec.RecordID,
				Issue:    fmt.Sprintf("%d modifications by actor %q within %s", best, actorID, v.Config.RapidWindow),
				Severity: types.SeverityMedium,
			})
		}
	}

	// Deterministic report order regardless of map iteration.
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}
