package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/database"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// TemplateRepository reads templates and approval routes. Templates are
// maintained elsewhere; this service never writes them.
type TemplateRepository struct {
	db database.Querier
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db database.Querier) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetTemplate returns the template with its fields ordered by sort_order.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	t := &Template{}
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description
		FROM application_templates
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Description)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("template", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get template")
	}

	rows, err := r.db.Query(ctx, `
		SELECT sort_order, component_name, props
		FROM template_elements
		WHERE template_id = $1
		ORDER BY sort_order ASC
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get template fields")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sortOrder int
			kind      string
			props     []byte
		)
		if err := rows.Scan(&sortOrder, &kind, &props); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan template field")
		}
		fp, err := DecodeFieldProps(FieldKind(kind), props)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "invalid template field")
		}
		t.Fields = append(t.Fields, TemplateField{SortOrder: sortOrder, Kind: FieldKind(kind), Props: fp})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get template fields")
	}
	return t, nil
}

// GetApprovalRoute returns the template's approver chain ordered by step.
// An existing template without a route yields an empty slice.
func (r *TemplateRepository) GetApprovalRoute(ctx context.Context, templateID int64) ([]RouteStep, error) {
	rows, err := r.db.Query(ctx, `
		SELECT step_order, approver_id
		FROM template_approval_routes
		WHERE template_id = $1
		ORDER BY step_order ASC
	`, templateID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval route")
	}
	defer rows.Close()

	route := []RouteStep{}
	for rows.Next() {
		var rs RouteStep
		if err := rows.Scan(&rs.StepOrder, &rs.ApproverID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval route")
		}
		route = append(route, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval route")
	}
	return route, nil
}
