package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/database"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// UserRepository touches only the leave balance of the users table.
type UserRepository struct {
	db database.Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

// DecrementLeaveHours subtracts hours in a single UPDATE so concurrent
// deductions for the same user serialize on the row instead of overwriting
// each other.
func (r *UserRepository) DecrementLeaveHours(ctx context.Context, userID int64, hours decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE users
		SET remaining_leave_hours = COALESCE(remaining_leave_hours, 0) - $2::numeric
		WHERE id = $1
		RETURNING remaining_leave_hours::text
	`

	var remaining string
	err := r.db.QueryRow(ctx, query, userID, hours.String()).Scan(&remaining)
	if err == pgx.ErrNoRows {
		return decimal.Zero, errors.NotFound("user", userID)
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, errors.ErrCodeInternal, "failed to decrement leave hours")
	}
	return parseHours(remaining)
}

// GetRemainingLeave returns the user's balance; an unset balance reads as zero.
func (r *UserRepository) GetRemainingLeave(ctx context.Context, userID int64) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(remaining_leave_hours, 0)::text
		FROM users
		WHERE id = $1
	`

	var remaining string
	err := r.db.QueryRow(ctx, query, userID).Scan(&remaining)
	if err == pgx.ErrNoRows {
		return decimal.Zero, errors.NotFound("user", userID)
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, errors.ErrCodeInternal, "failed to get remaining leave")
	}
	return parseHours(remaining)
}

func parseHours(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, errors.ErrCodeInternal, "invalid leave balance")
	}
	return d, nil
}
