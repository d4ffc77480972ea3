package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/database"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// ApplicationRepository reads and writes application rows. It runs against
// whatever Querier it is given: the pool for reads, a tx inside a unit of work.
type ApplicationRepository struct {
	db database.Querier
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(db database.Querier) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `
	a.id, a.applicant_id, a.template_id, a.status, a.current_step,
	a.created_at, a.updated_at, a.submitted_at, a.completed_at, a.deleted_at,
	(a.status = 'draft' AND EXISTS (
		SELECT 1 FROM approval_steps s
		WHERE s.application_id = a.id AND s.status = 'REMANDED'
	)) AS remanded`

// Create inserts the application and fills in its id and timestamps.
func (r *ApplicationRepository) Create(ctx context.Context, app *Application) error {
	query := `
		INSERT INTO applications
		    (applicant_id, template_id, status, current_step, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		app.ApplicantID,
		app.TemplateID,
		string(app.Status),
		app.CurrentStep,
		app.SubmittedAt,
	).Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create application")
	}
	return nil
}

// GetByID returns the application, soft-deleted or not.
func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications a
		WHERE a.id = $1
	`

	app, err := r.scanApplication(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get application")
	}
	return app, nil
}

// GetForUpdate reads the application and locks its row until the enclosing
// transaction ends. Every status check that precedes a write goes through here.
func (r *ApplicationRepository) GetForUpdate(ctx context.Context, id int64) (*Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications a
		WHERE a.id = $1
		FOR UPDATE OF a
	`

	app, err := r.scanApplication(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock application")
	}
	return app, nil
}

// ListByApplicant returns the applicant's live applications, newest first.
// filter is "", a persisted status, or "remanded".
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID int64, filter string) ([]*Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications a
		WHERE a.applicant_id = $1
		  AND a.deleted_at IS NULL
	`
	args := []any{applicantID}

	switch filter {
	case "":
	case "remanded":
		query += ` AND a.status = 'draft' AND EXISTS (
			SELECT 1 FROM approval_steps s
			WHERE s.application_id = a.id AND s.status = 'REMANDED')`
	default:
		query += ` AND a.status = $2`
		args = append(args, filter)
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list applications")
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app, err := r.scanApplication(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan application")
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list applications")
	}
	return apps, nil
}

// UpdateState writes template, status, step pointer and lifecycle timestamps.
func (r *ApplicationRepository) UpdateState(ctx context.Context, app *Application) error {
	query := `
		UPDATE applications
		SET template_id  = $2,
		    status       = $3,
		    current_step = $4,
		    submitted_at = $5,
		    completed_at = $6,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		app.ID,
		app.TemplateID,
		string(app.Status),
		app.CurrentStep,
		app.SubmittedAt,
		app.CompletedAt,
	).Scan(&app.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("application", app.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update application")
	}
	return nil
}

// SoftDelete marks the application withdrawn. The row and its children stay.
func (r *ApplicationRepository) SoftDelete(ctx context.Context, id int64) (time.Time, error) {
	query := `
		UPDATE applications
		SET deleted_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND deleted_at IS NULL
		RETURNING deleted_at
	`

	var deletedAt time.Time
	err := r.db.QueryRow(ctx, query, id).Scan(&deletedAt)
	if err == pgx.ErrNoRows {
		return time.Time{}, errors.NotFound("application", id)
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to withdraw application")
	}
	return deletedAt, nil
}

// HardDelete removes the application with its values, attachments and steps.
func (r *ApplicationRepository) HardDelete(ctx context.Context, id int64) error {
	children := []struct {
		query string
		what  string
	}{
		{`DELETE FROM application_values WHERE application_id = $1`, "values"},
		{`DELETE FROM application_attachments WHERE application_id = $1`, "attachments"},
		{`DELETE FROM approval_steps WHERE application_id = $1`, "approval steps"},
	}
	for _, c := range children {
		if _, err := r.db.Exec(ctx, c.query, id); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete application "+c.what)
		}
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete application")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("application", id)
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ApplicationRepository) scanApplication(row rowScanner) (*Application, error) {
	app := &Application{}
	var status string
	err := row.Scan(
		&app.ID,
		&app.ApplicantID,
		&app.TemplateID,
		&status,
		&app.CurrentStep,
		&app.CreatedAt,
		&app.UpdatedAt,
		&app.SubmittedAt,
		&app.CompletedAt,
		&app.DeletedAt,
		&app.Remanded,
	)
	if err != nil {
		return nil, err
	}
	app.Status = ApplicationStatus(status)
	return app, nil
}
