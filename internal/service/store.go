package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
)

// ApplicationRepository is the application row store used by the engine.
type ApplicationRepository interface {
	Create(ctx context.Context, app *repository.Application) error
	GetByID(ctx context.Context, id int64) (*repository.Application, error)
	GetForUpdate(ctx context.Context, id int64) (*repository.Application, error)
	ListByApplicant(ctx context.Context, applicantID int64, filter string) ([]*repository.Application, error)
	UpdateState(ctx context.Context, app *repository.Application) error
	SoftDelete(ctx context.Context, id int64) (time.Time, error)
	HardDelete(ctx context.Context, id int64) error
}

// ValueRepository stores answers.
type ValueRepository interface {
	Insert(ctx context.Context, applicationID int64, values []repository.ApplicationValue) error
	ReplaceAll(ctx context.Context, applicationID int64, values []repository.ApplicationValue) error
	ListByApplication(ctx context.Context, applicationID int64) ([]repository.ApplicationValue, error)
}

// StepRepository stores the materialized approval chain.
type StepRepository interface {
	CreateFromRoute(ctx context.Context, applicationID int64, route []repository.RouteStep) ([]*repository.ApprovalStep, error)
	DeleteByApplication(ctx context.Context, applicationID int64) error
	GetByID(ctx context.Context, id int64) (*repository.ApprovalStep, error)
	GetForUpdate(ctx context.Context, id int64) (*repository.ApprovalStep, error)
	GetByOrder(ctx context.Context, applicationID int64, stepOrder int) (*repository.ApprovalStep, error)
	ListByApplication(ctx context.Context, applicationID int64) ([]*repository.ApprovalStep, error)
	RecordAction(ctx context.Context, id int64, status repository.StepStatus, comment *string) (*repository.ApprovalStep, error)
	ListPendingForApprover(ctx context.Context, approverID int64) ([]*repository.PendingApproval, error)
	IsApprover(ctx context.Context, applicationID, userID int64) (bool, error)
}

// UserRepository owns the leave balance.
type UserRepository interface {
	DecrementLeaveHours(ctx context.Context, userID int64, hours decimal.Decimal) (decimal.Decimal, error)
	GetRemainingLeave(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// AuditRepository is the append-only approval history.
type AuditRepository interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	ListByApplication(ctx context.Context, applicationID int64) ([]*repository.AuditEntry, error)
}

// Repositories is one consistent view of storage. Inside InTx every member
// shares the same transaction.
type Repositories struct {
	Applications ApplicationRepository
	Values       ValueRepository
	Steps        StepRepository
	Users        UserRepository
	Audit        AuditRepository
}

// Store opens units of work. An error returned from fn rolls back every write
// fn made.
type Store interface {
	InTx(ctx context.Context, fn func(r Repositories) error) error
	Read() Repositories
}

// TemplateStore is the read-only template collaborator.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id int64) (*repository.Template, error)
	GetApprovalRoute(ctx context.Context, templateID int64) ([]repository.RouteStep, error)
}

// EventPublisher receives lifecycle events after commit. Implementations must
// not fail the caller.
type EventPublisher interface {
	PublishApplicationEvent(ctx context.Context, event string, app *repository.Application, actorID int64, payload map[string]any)
}

type nopPublisher struct{}

func (nopPublisher) PublishApplicationEvent(context.Context, string, *repository.Application, int64, map[string]any) {
}

type postgresStore struct {
	store *repository.Store
}

// NewPostgresStore adapts the pgx-backed repository store.
func NewPostgresStore(store *repository.Store) Store {
	return &postgresStore{store: store}
}

func (s *postgresStore) InTx(ctx context.Context, fn func(r Repositories) error) error {
	return s.store.InTx(ctx, func(r *repository.Repositories) error {
		return fn(bind(r))
	})
}

func (s *postgresStore) Read() Repositories {
	return bind(s.store.Read())
}

func bind(r *repository.Repositories) Repositories {
	return Repositories{
		Applications: r.Applications,
		Values:       r.Values,
		Steps:        r.Steps,
		Users:        r.Users,
		Audit:        r.Audit,
	}
}
