package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hirewire/decree/pkg/types"
)

const ExportFormatJSON = "json"

type ExportInput struct {
	DecisionID string // empty exports across all decisions
	Filter     AuditFilter
	Actor      types.Actor
	ClientIP   *string
	CreatedAt  string
}

type ExportResult struct {
	ExportID    string          `json:"export_id"`
	Format      string          `json:"format"`
	RecordCount int             `json:"record_count"`
	Payload     json.RawMessage `json:"payload"`
}

// Export is a read-only bulk projection of audit records that audits itself:
// the one write it performs is a new audit_export record describing who
// exported what, appended in the same transaction as the read.
func Export(store Store, signer Signer, in ExportInput) (ExportResult, error) {
	if in.Actor.ID == "" {
		return ExportResult{}, fmt.Errorf("%w: missing export actor", types.ErrValidation)
	}
	if in.CreatedAt == "" {
		return ExportResult{}, fmt.Errorf("%w: missing created_at", types.ErrValidation)
	}

	exportID := "export-" + uuid.NewString()
	var result ExportResult

	err := store.WithTx(func(tx Tx) error {
		var records []types.AuditRecord
		var err error
		if in.DecisionID != "" {
			records, err = tx.ListAudit(in.DecisionID, in.Filter)
		} else {
			records, err = tx.ListAuditAll(in.Filter)
		}
		if err != nil {
			return err
		}

		payload, err := json.Marshal(records)
		if err != nil {
			return err
		}

		meta, err := json.Marshal(map[string]any{
			"export_id":    exportID,
			"format":       ExportFormatJSON,
			"record_count": len(records),
			"decision_id":  in.DecisionID,
		})
		if err != nil {
			return err
		}

		rec, err := Seal(types.AuditRecord{
			DecisionID:      in.DecisionID,
			EventType:       types.EventAuditExport,
			Actor:           in.Actor,
			ChangeReason:    "audit data export",
			NewState:        meta,
			CreatedAt:       in.CreatedAt,
			SystemGenerated: in.Actor.Kind == types.ActorSystem,
			ComplianceFlag:  true,
			ClientIP:        in.ClientIP,
		}, signer)
		if err != nil {
			return err
		}
		if _, err := tx.AppendAudit(rec); err != nil {
			return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
		}

		result = ExportResult{
			ExportID:    exportID,
			Format:      ExportFormatJSON,
			RecordCount: len(records),
			Payload:     payload,
		}
		return nil
	})
	if err != nil {
		return ExportResult{}, err
	}
	return result, nil
}
