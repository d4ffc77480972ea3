package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/database"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// ApprovalStepsRepository handles the per-application approval chain.
type ApprovalStepsRepository struct {
	db database.Querier
}

// NewApprovalStepsRepository creates a new ApprovalStepsRepository.
func NewApprovalStepsRepository(db database.Querier) *ApprovalStepsRepository {
	return &ApprovalStepsRepository{db: db}
}

const stepColumns = `
	s.id, s.application_id, s.step_order, s.approver_id,
	s.status, s.comment, s.acted_at, s.created_at`

// CreateFromRoute materializes the route as PENDING steps, in route order.
func (r *ApprovalStepsRepository) CreateFromRoute(ctx context.Context, applicationID int64, route []RouteStep) ([]*ApprovalStep, error) {
	query := `
		INSERT INTO approval_steps AS s
		    (application_id, step_order, approver_id, status)
		VALUES ($1, $2, $3, 'PENDING')
		RETURNING ` + stepColumns

	steps := make([]*ApprovalStep, 0, len(route))
	for _, rs := range route {
		step, err := r.scanStep(r.db.QueryRow(ctx, query, applicationID, rs.StepOrder, rs.ApproverID))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval step")
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// DeleteByApplication drops the whole chain of an application.
func (r *ApprovalStepsRepository) DeleteByApplication(ctx context.Context, applicationID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM approval_steps WHERE application_id = $1`, applicationID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval steps")
	}
	return nil
}

// GetByID returns a step without locking it.
func (r *ApprovalStepsRepository) GetByID(ctx context.Context, id int64) (*ApprovalStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps s
		WHERE s.id = $1
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_step", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval step")
	}
	return step, nil
}

// GetForUpdate reads and locks a step. Callers lock the application row first.
func (r *ApprovalStepsRepository) GetForUpdate(ctx context.Context, id int64) (*ApprovalStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps s
		WHERE s.id = $1
		FOR UPDATE
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_step", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock approval step")
	}
	return step, nil
}

// GetByOrder returns the step at stepOrder, or nil when the chain has none.
func (r *ApprovalStepsRepository) GetByOrder(ctx context.Context, applicationID int64, stepOrder int) (*ApprovalStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps s
		WHERE s.application_id = $1 AND s.step_order = $2
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, applicationID, stepOrder))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval step")
	}
	return step, nil
}

// ListByApplication returns the chain ordered by step_order.
func (r *ApprovalStepsRepository) ListByApplication(ctx context.Context, applicationID int64) ([]*ApprovalStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM approval_steps s
		WHERE s.application_id = $1
		ORDER BY s.step_order ASC
	`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	var steps []*ApprovalStep
	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	return steps, nil
}

// RecordAction resolves a PENDING step. A step that is no longer PENDING
// yields Conflict, so a lost race never overwrites a decision.
func (r *ApprovalStepsRepository) RecordAction(ctx context.Context, id int64, status StepStatus, comment *string) (*ApprovalStep, error) {
	query := `
		UPDATE approval_steps AS s
		SET status   = $2,
		    comment  = $3,
		    acted_at = NOW()
		WHERE s.id = $1
		  AND s.status = 'PENDING'
		RETURNING ` + stepColumns

	step, err := r.scanStep(r.db.QueryRow(ctx, query, id, string(status), comment))
	if err == pgx.ErrNoRows {
		return nil, errors.Conflict("approval step has already been processed")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to record approval action")
	}
	return step, nil
}

// ListPendingForApprover returns the approver's worklist: PENDING steps whose
// application is live, pending and currently pointing at that step.
func (r *ApprovalStepsRepository) ListPendingForApprover(ctx context.Context, approverID int64) ([]*PendingApproval, error) {
	query := `SELECT ` + stepColumns + `,
		       a.applicant_id, a.template_id, t.name, a.submitted_at
		FROM approval_steps s
		JOIN applications a ON a.id = s.application_id
		JOIN application_templates t ON t.id = a.template_id
		WHERE s.approver_id = $1
		  AND s.status = 'PENDING'
		  AND a.status = 'pending'
		  AND a.deleted_at IS NULL
		  AND a.current_step = s.step_order
		ORDER BY a.submitted_at ASC NULLS LAST, s.id ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	var items []*PendingApproval
	for rows.Next() {
		p := &PendingApproval{}
		var status string
		if err := rows.Scan(
			&p.Step.ID,
			&p.Step.ApplicationID,
			&p.Step.StepOrder,
			&p.Step.ApproverID,
			&status,
			&p.Step.Comment,
			&p.Step.ActedAt,
			&p.Step.CreatedAt,
			&p.ApplicantID,
			&p.TemplateID,
			&p.TemplateName,
			&p.SubmittedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending approval")
		}
		p.Step.Status = StepStatus(status)
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	return items, nil
}

// IsApprover reports whether userID holds any step of the application.
func (r *ApprovalStepsRepository) IsApprover(ctx context.Context, applicationID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM approval_steps
			WHERE application_id = $1 AND approver_id = $2
		)
	`

	var ok bool
	if err := r.db.QueryRow(ctx, query, applicationID, userID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check approver")
	}
	return ok, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalStepsRepository) scanStep(row rowScanner) (*ApprovalStep, error) {
	s := &ApprovalStep{}
	var status string
	err := row.Scan(
		&s.ID,
		&s.ApplicationID,
		&s.StepOrder,
		&s.ApproverID,
		&status,
		&s.Comment,
		&s.ActedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = StepStatus(status)
	return s, nil
}
