package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/hirewire/decree/internal/ledger"
	"github.com/hirewire/decree/pkg/types"
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutDecision(d types.HiringDecision) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutDecision(d) })
}

func (s *Store) GetDecision(decisionID string) (types.HiringDecision, bool) {
	return getDecision(s.db, decisionID)
}

func (s *Store) ListDecisionsByApplication(applicationID string) ([]types.HiringDecision, error) {
	return listDecisionsByApplication(s.db, applicationID)
}

func (s *Store) ListDecisions(f ledger.DecisionFilter) ([]types.HiringDecision, error) {
	return listDecisions(s.db, f)
}

func (s *Store) AppendAudit(rec types.AuditRecord) (types.AuditRecord, error) {
	var stored types.AuditRecord
	err := s.WithTx(func(tx ledger.Tx) error {
		var err error
		stored, err = tx.AppendAudit(rec)
		return err
	})
	return stored, err
}

func (s *Store) ListAudit(decisionID string, f ledger.AuditFilter) ([]types.AuditRecord, error) {
	return listAudit(s.db, &decisionID, f)
}

func (s *Store) ListAuditAll(f ledger.AuditFilter) ([]types.AuditRecord, error) {
	return listAudit(s.db, nil, f)
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutDecision(d types.HiringDecision) error {
	_, err := t.tx.Exec(`INSERT INTO decree_decisions(decision_id, application_id, decision_type, decision_reason, decision_rationale, decision_confidence, approver_id, authority_level, status, created_at, effective_date, is_final, appeals_deadline, superseded_by)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT(decision_id) DO UPDATE SET
  decision_type=excluded.decision_type,
  decision_reason=excluded.decision_reason,
  decision_rationale=excluded.decision_rationale,
  decision_confidence=excluded.decision_confidence,
  approver_id=excluded.approver_id,
  authority_level=excluded.authority_level,
  status=excluded.status,
  effective_date=excluded.effective_date,
  is_final=excluded.is_final,
  appeals_deadline=excluded.appeals_deadline,
  superseded_by=excluded.superseded_by`,
		d.DecisionID,
		d.ApplicationID,
		string(d.DecisionType),
		d.DecisionReason,
		d.DecisionRationale,
		d.DecisionConfidence,
		d.ApproverID,
		d.AuthorityLevel,
		string(d.Status),
		d.CreatedAt,
		d.EffectiveDate,
		d.IsFinal,
		d.AppealsDeadline,
		d.SupersededBy,
	)
	return err
}

func (t *Tx) GetDecision(decisionID string) (types.HiringDecision, bool) {
	return getDecision(t.tx, decisionID)
}

func (t *Tx) ListDecisionsByApplication(applicationID string) ([]types.HiringDecision, error) {
	return listDecisionsByApplication(t.tx, applicationID)
}

func (t *Tx) ListDecisions(f ledger.DecisionFilter) ([]types.HiringDecision, error) {
	return listDecisions(t.tx, f)
}

func (t *Tx) AppendAudit(rec types.AuditRecord) (types.AuditRecord, error) {
	if rec.RecordID == "" {
		return types.AuditRecord{}, fmt.Errorf("missing record_id")
	}

	row := t.tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM decree_audit_records WHERE decision_id = $1`, rec.DecisionID)
	if err := row.Scan(&rec.Seq); err != nil {
		return types.AuditRecord{}, err
	}

	_, err := t.tx.Exec(`INSERT INTO decree_audit_records(record_id, decision_id, seq, event_type, actor_kind, actor_id, actor_name, change_reason, prev_state, new_state, signature, key_id, created_at, system_generated, compliance_flag, client_ip)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		rec.RecordID,
		rec.DecisionID,
		rec.Seq,
		string(rec.EventType),
		string(rec.Actor.Kind),
		rec.Actor.ID,
		rec.Actor.Name,
		rec.ChangeReason,
		nullableString(rec.PrevState),
		nullableString(rec.NewState),
		rec.Signature,
		rec.KeyID,
		rec.CreatedAt,
		rec.SystemGenerated,
		rec.ComplianceFlag,
		rec.ClientIP,
	)
	if err != nil {
		return types.AuditRecord{}, err
	}
	return rec, nil
}

func (t *Tx) ListAudit(decisionID string, f ledger.AuditFilter) ([]types.AuditRecord, error) {
	return listAudit(t.tx, &decisionID, f)
}

func (t *Tx) ListAuditAll(f ledger.AuditFilter) ([]types.AuditRecord, error) {
	return listAudit(t.tx, nil, f)
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

const decisionColumns = `decision_id, application_id, decision_type, decision_reason, decision_rationale, decision_confidence, approver_id, authority_level, status, created_at, effective_date, is_final, appeals_deadline, superseded_by`

func getDecision(q querier, decisionID string) (types.HiringDecision, bool) {
	row := q.QueryRow(`SELECT `+decisionColumns+` FROM decree_decisions WHERE decision_id = $1`, decisionID)
	d, err := scanDecision(row.Scan)
	if err != nil {
		return types.HiringDecision{}, false
	}
	return d, true
}

func listDecisionsByApplication(q querier, applicationID string) ([]types.HiringDecision, error) {
	rows, err := q.Query(`SELECT `+decisionColumns+` FROM decree_decisions WHERE application_id = $1 ORDER BY created_at DESC, decision_id DESC`, applicationID)
	if err != nil {
		return nil, err
	}
	return collectDecisions(rows)
}

func listDecisions(q querier, f ledger.DecisionFilter) ([]types.HiringDecision, error) {
	where := []string{"TRUE"}
	args := []any{}
	if f.DecisionType != "" {
		args = append(args, string(f.DecisionType))
		where = append(where, fmt.Sprintf("decision_type = $%d", len(args)))
	}
	if f.From != "" {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if f.FinalOnly {
		where = append(where, "is_final")
	}

	rows, err := q.Query(`SELECT `+decisionColumns+` FROM decree_decisions WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at ASC, decision_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collectDecisions(rows)
}

func collectDecisions(rows *sql.Rows) ([]types.HiringDecision, error) {
	defer rows.Close()
	out := []types.HiringDecision{}
	for rows.Next() {
		d, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDecision(scan func(...any) error) (types.HiringDecision, error) {
	var d types.HiringDecision
	var decisionType, status string
	if err := scan(
		&d.DecisionID,
		&d.ApplicationID,
		&decisionType,
		&d.DecisionReason,
		&d.DecisionRationale,
		&d.DecisionConfidence,
		&d.ApproverID,
		&d.AuthorityLevel,
		&status,
		&d.CreatedAt,
		&d.EffectiveDate,
		&d.IsFinal,
		&d.AppealsDeadline,
		&d.SupersededBy,
	); err != nil {
		return types.HiringDecision{}, err
	}
	d.DecisionType = types.DecisionType(decisionType)
	d.Status = types.DecisionStatus(status)
	return d, nil
}

const auditColumns = `record_id, decision_id, seq, event_type, actor_kind, actor_id, actor_name, change_reason, prev_state, new_state, signature, key_id, created_at, system_generated, compliance_flag, client_ip`

func listAudit(q querier, decisionID *string, f ledger.AuditFilter) ([]types.AuditRecord, error) {
	where := []string{"TRUE"}
	args := []any{}
	if decisionID != nil {
		args = append(args, *decisionID)
		where = append(where, fmt.Sprintf("decision_id = $%d", len(args)))
	}
	if len(f.EventTypes) > 0 {
		placeholders := make([]string, len(f.EventTypes))
		for i, et := range f.EventTypes {
			args = append(args, string(et))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.ComplianceFlag != nil {
		args = append(args, *f.ComplianceFlag)
		where = append(where, fmt.Sprintf("compliance_flag = $%d", len(args)))
	}
	if f.From != "" {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	order := "ORDER BY created_at ASC, decision_id ASC, seq ASC"
	if f.Descending {
		order = "ORDER BY created_at DESC, decision_id DESC, seq DESC"
	}

	rows, err := q.Query(`SELECT `+auditColumns+` FROM decree_audit_records WHERE `+strings.Join(where, " AND ")+` `+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.AuditRecord{}
	for rows.Next() {
		var rec types.AuditRecord
		var actorKind, eventType string
		var prev, next sql.NullString
		if err := rows.Scan(
			&rec.RecordID,
			&rec.DecisionID,
			&rec.Seq,
			&eventType,
			&actorKind,
			&rec.Actor.ID,
			&rec.Actor.Name,
			&rec.ChangeReason,
			&prev,
			&next,
			&rec.Signature,
			&rec.KeyID,
			&rec.CreatedAt,
			&rec.SystemGenerated,
			&rec.ComplianceFlag,
			&rec.ClientIP,
		); err != nil {
			return nil, err
		}
		rec.EventType = types.AuditEventType(eventType)
		rec.Actor.Kind = types.ActorKind(actorKind)
		if prev.Valid {
			rec.PrevState = []byte(prev.String)
		}
		if next.Valid {
			rec.NewState = []byte(next.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
