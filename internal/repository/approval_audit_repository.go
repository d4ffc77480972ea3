package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/database"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// ApprovalAuditRepository appends and reads immutable approval audit entries.
type ApprovalAuditRepository struct {
	db database.Querier
}

// NewApprovalAuditRepository creates a new ApprovalAuditRepository.
func NewApprovalAuditRepository(db database.Querier) *ApprovalAuditRepository {
	return &ApprovalAuditRepository{db: db}
}

// Append inserts one entry. The table has no foreign key to applications so
// entries outlive a hard delete; append is the only mutation exposed.
func (r *ApprovalAuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO application_audit_log
		    (application_id, step_id, step_order,
		     action, performed_by,
		     status_before, status_after,
		     metadata)
		VALUES ($1, $2, $3,
		        $4, $5,
		        NULLIF($6, ''), NULLIF($7, ''),
		        $8)
		RETURNING id, performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ApplicationID,
		entry.StepID,
		entry.StepOrder,
		entry.Action,
		entry.PerformedBy,
		string(entry.StatusBefore),
		string(entry.StatusAfter),
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListByApplication returns the audit trail oldest-first.
func (r *ApprovalAuditRepository) ListByApplication(ctx context.Context, applicationID int64) ([]*AuditEntry, error) {
	query := `
		SELECT id, application_id, step_id, step_order,
		       action, performed_by, performed_at,
		       COALESCE(status_before, ''), COALESCE(status_after, ''),
		       metadata
		FROM application_audit_log
		WHERE application_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalAuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	return entries, nil
}

func (r *ApprovalAuditRepository) scanEntry(sc rowScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var (
		before, after string
		metadataJSON  []byte
	)

	err := sc.Scan(
		&entry.ID,
		&entry.ApplicationID,
		&entry.StepID,
		&entry.StepOrder,
		&entry.Action,
		&entry.PerformedBy,
		&entry.PerformedAt,
		&before,
		&after,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}
	entry.StatusBefore = ApplicationStatus(before)
	entry.StatusAfter = ApplicationStatus(after)

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}
