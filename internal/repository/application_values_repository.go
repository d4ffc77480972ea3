package repository

import (
	"context"
	"time"

	"github.com/pesio-ai/be-hr-leave-applications/internal/formvalue"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/database"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// ApplicationValuesRepository stores answers in the four typed value columns.
// The column layout never leaves this file; callers see formvalue.Value.
type ApplicationValuesRepository struct {
	db database.Querier
}

// NewApplicationValuesRepository creates a new ApplicationValuesRepository.
func NewApplicationValuesRepository(db database.Querier) *ApplicationValuesRepository {
	return &ApplicationValuesRepository{db: db}
}

// Insert writes the answers of one application.
func (r *ApplicationValuesRepository) Insert(ctx context.Context, applicationID int64, values []ApplicationValue) error {
	query := `
		INSERT INTO application_values
		    (application_id, sort_order,
		     value_text, value_number, value_datetime, value_boolean)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, v := range values {
		cols := formvalue.ToColumns(v.Value)
		if _, err := r.db.Exec(ctx, query,
			applicationID,
			v.SortOrder,
			cols.Text,
			cols.Number,
			cols.DateTime,
			cols.Boolean,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert application value")
		}
	}
	return nil
}

// ReplaceAll deletes every answer of the application and writes values.
func (r *ApplicationValuesRepository) ReplaceAll(ctx context.Context, applicationID int64, values []ApplicationValue) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM application_values WHERE application_id = $1`, applicationID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear application values")
	}
	return r.Insert(ctx, applicationID, values)
}

// ListByApplication returns the answers ordered by sort_order.
func (r *ApplicationValuesRepository) ListByApplication(ctx context.Context, applicationID int64) ([]ApplicationValue, error) {
	query := `
		SELECT sort_order, value_text, value_number, value_datetime, value_boolean
		FROM application_values
		WHERE application_id = $1
		ORDER BY sort_order ASC
	`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get application values")
	}
	defer rows.Close()

	var values []ApplicationValue
	for rows.Next() {
		var (
			sortOrder int
			text      *string
			number    *float64
			datetime  *time.Time
			boolean   *bool
		)
		if err := rows.Scan(&sortOrder, &text, &number, &datetime, &boolean); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan application value")
		}
		v, err := formvalue.FromColumns(formvalue.Columns{
			Text:     text,
			Number:   number,
			DateTime: datetime,
			Boolean:  boolean,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "corrupt application value")
		}
		values = append(values, ApplicationValue{
			ApplicationID: applicationID,
			SortOrder:     sortOrder,
			Value:         v,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get application values")
	}
	return values, nil
}
