package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hirewire/decree/internal/crypto"
	"github.com/hirewire/decree/pkg/types"
)

// Signer produces the integrity tag for a canonicalized record body.
// crypto.MACKey satisfies both Signer and Verifier.
type Signer interface {
	KeyID() string
	Sign(message []byte) string
}

type Verifier interface {
	KeyID() string
	Verify(message []byte, tag string) (bool, error)
}

// Seal validates a record, assigns its ID, and computes the signature over
// the canonical body. Seq is storage-assigned and deliberately outside the
// signed view, as are Signature and KeyID themselves.
func Seal(rec types.AuditRecord, signer Signer) (types.AuditRecord, error) {
	if rec.DecisionID == "" && rec.EventType != types.EventAuditExport {
		return types.AuditRecord{}, fmt.Errorf("%w: missing decision id", types.ErrValidation)
	}
	if !types.ValidAuditEventType(rec.EventType) {
		return types.AuditRecord{}, fmt.Errorf("%w: invalid audit event type: %s", types.ErrValidation, rec.EventType)
	}
	if rec.Actor.ID == "" {
		return types.AuditRecord{}, fmt.Errorf("%w: missing actor", types.ErrValidation)
	}
	if rec.CreatedAt == "" {
		return types.AuditRecord{}, fmt.Errorf("%w: missing created_at", types.ErrValidation)
	}

	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}

	canonical, err := canonicalBody(rec)
	if err != nil {
		return types.AuditRecord{}, err
	}

	rec.Signature = signer.Sign(canonical)
	rec.KeyID = signer.KeyID()
	return rec, nil
}

// VerifyRecord recomputes the signature from the stored fields and compares
// it to the stored tag.
func VerifyRecord(rec types.AuditRecord, verifier Verifier) (bool, error) {
	canonical, err := canonicalBody(rec)
	if err != nil {
		return false, err
	}
	return verifier.Verify(canonical, rec.Signature)
}

// canonicalBody is the signing view: every field except Signature, KeyID and
// the storage-assigned Seq.
func canonicalBody(rec types.AuditRecord) ([]byte, error) {
	var clientIP any
	if rec.ClientIP != nil {
		clientIP = *rec.ClientIP
	}

	return crypto.Canonicalize(map[string]any{
		"record_id":   rec.RecordID,
		"decision_id": rec.DecisionID,
		"event_type":  string(rec.EventType),
		"actor": map[string]any{
			"kind": string(rec.Actor.Kind),
			"id":   rec.Actor.ID,
			"name": rec.Actor.Name,
		},
		"change_reason":    rec.ChangeReason,
		"prev_state":       rawOrNil(rec.PrevState),
		"new_state":        rawOrNil(rec.NewState),
		"created_at":       rec.CreatedAt,
		"system_generated": rec.SystemGenerated,
		"compliance_flag":  rec.ComplianceFlag,
		"client_ip":        clientIP,
	})
}

// rawOrNil decodes a stored JSON snapshot so it canonicalizes structurally
// rather than as an opaque string.
func rawOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	return v
}
