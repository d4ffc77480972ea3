package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/logger"
)

// Lifecycle events published after commit.
const (
	EventSubmitted    = "submitted"
	EventStepApproved = "step_approved"
	EventApproved     = "approved"
	EventRemanded     = "remanded"
	EventWithdrawn    = "withdrawn"
	EventDeleted      = "deleted"
)

// ApplicationService owns the applicant side of the lifecycle: create, edit,
// resubmit, delete and the read views.
type ApplicationService struct {
	store     Store
	templates TemplateStore
	events    EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewApplicationService creates a new ApplicationService. events may be nil.
func NewApplicationService(
	store Store,
	templates TemplateStore,
	events EventPublisher,
	log *logger.Logger,
) *ApplicationService {
	if events == nil {
		events = nopPublisher{}
	}
	return &ApplicationService{
		store:     store,
		templates: templates,
		events:    events,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateApplicationRequest creates a draft or submits straight away.
// Approvers overrides the template route and is only read when submitting.
type CreateApplicationRequest struct {
	ApplicantID int64
	TemplateID  int64
	Status      repository.ApplicationStatus
	Values      []ValueInput
	Approvers   []ApproverInput
}

// EditApplicationRequest replaces the answers of a draft and optionally
// submits it.
type EditApplicationRequest struct {
	ApplicationID int64
	ActorID       int64
	TemplateID    int64
	Status        repository.ApplicationStatus
	Values        []ValueInput
}

// ApplicationDetail is the full read view of one application.
type ApplicationDetail struct {
	Application *repository.Application       `json:"application"`
	Template    *repository.Template          `json:"template"`
	Values      []repository.ApplicationValue `json:"values"`
	Steps       []*repository.ApprovalStep    `json:"steps"`
}

// ── Create ────────────────────────────────────────────────────────────────────

// CreateApplication persists the application and its answers, and seeds the
// approval chain when the status is pending. All rows commit together.
func (s *ApplicationService) CreateApplication(ctx context.Context, req *CreateApplicationRequest) (app *repository.Application, err error) {
	ctx, finish := startOperation(ctx, "create",
		attribute.Int64("leave.applicant_id", req.ApplicantID),
		attribute.Int64("leave.template_id", req.TemplateID),
		attribute.String("leave.status", string(req.Status)),
	)
	defer func() { finish(err) }()

	if err := validateShape(req.TemplateID, req.Status, req.Values, req.Approvers); err != nil {
		return nil, err
	}

	submitting := req.Status == repository.StatusPending
	tpl, err := s.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := checkAgainstTemplate(tpl, req.Values, submitting); err != nil {
		return nil, err
	}

	var route []repository.RouteStep
	if submitting {
		if len(req.Approvers) > 0 {
			route, err = routeFromApprovers(req.Approvers)
		} else {
			route, err = s.approvalRoute(ctx, req.TemplateID)
		}
		if err != nil {
			return nil, err
		}
	}

	values := classifyValues(req.Values)
	app = &repository.Application{
		ApplicantID: req.ApplicantID,
		TemplateID:  req.TemplateID,
		Status:      repository.StatusDraft,
	}
	if submitting {
		now := s.now()
		first := 1
		app.Status = repository.StatusPending
		app.CurrentStep = &first
		app.SubmittedAt = &now
	}

	err = s.store.InTx(ctx, func(r Repositories) error {
		if err := r.Applications.Create(ctx, app); err != nil {
			return err
		}
		if err := r.Values.Insert(ctx, app.ID, values); err != nil {
			return err
		}
		action := repository.AuditCreated
		if submitting {
			if _, err := r.Steps.CreateFromRoute(ctx, app.ID, route); err != nil {
				return err
			}
			action = repository.AuditSubmitted
		}
		return r.Audit.Append(ctx, &repository.AuditEntry{
			ApplicationID: app.ID,
			Action:        action,
			PerformedBy:   req.ApplicantID,
			StatusAfter:   app.Status,
			Metadata:      map[string]any{"template_id": req.TemplateID, "steps": len(route)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("application_id", app.ID).
		Int64("applicant_id", app.ApplicantID).
		Str("status", string(app.Status)).
		Int("steps", len(route)).
		Msg("Application created")

	if submitting {
		s.events.PublishApplicationEvent(ctx, EventSubmitted, app, req.ApplicantID, map[string]any{"steps": len(route)})
	}
	return app, nil
}

// ── Edit / resubmit ───────────────────────────────────────────────────────────

// EditApplication replaces the answers of a draft (remanded or not). With
// status pending it also rebuilds the approval chain from step 1.
func (s *ApplicationService) EditApplication(ctx context.Context, req *EditApplicationRequest) (err error) {
	ctx, finish := startOperation(ctx, "edit",
		attribute.Int64("leave.application_id", req.ApplicationID),
		attribute.String("leave.status", string(req.Status)),
	)
	defer func() { finish(err) }()

	if err := validateShape(req.TemplateID, req.Status, req.Values, nil); err != nil {
		return err
	}

	action := editAction(req.Status)
	submitting := action == ActionSubmit
	tpl, err := s.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return err
	}
	if err := checkAgainstTemplate(tpl, req.Values, submitting); err != nil {
		return err
	}
	var route []repository.RouteStep
	if submitting {
		if route, err = s.approvalRoute(ctx, req.TemplateID); err != nil {
			return err
		}
	}
	values := classifyValues(req.Values)

	var (
		app          *repository.Application
		statusBefore repository.ApplicationStatus
		wasRemanded  bool
	)
	err = s.store.InTx(ctx, func(r Repositories) error {
		var err error
		app, err = r.Applications.GetForUpdate(ctx, req.ApplicationID)
		if err != nil {
			return err
		}
		if app.ApplicantID != req.ActorID {
			return errors.Forbidden("only the applicant can edit this application")
		}
		if err := checkTransition(app, action); err != nil {
			return err
		}
		statusBefore, wasRemanded = app.Status, app.Remanded

		if err := r.Values.ReplaceAll(ctx, app.ID, values); err != nil {
			return err
		}

		app.TemplateID = req.TemplateID
		auditAction := repository.AuditSaved
		if submitting {
			if err := r.Steps.DeleteByApplication(ctx, app.ID); err != nil {
				return err
			}
			if _, err := r.Steps.CreateFromRoute(ctx, app.ID, route); err != nil {
				return err
			}
			now := s.now()
			first := 1
			app.Status = repository.StatusPending
			app.CurrentStep = &first
			app.SubmittedAt = &now
			app.Remanded = false
			auditAction = repository.AuditSubmitted
		}
		if err := r.Applications.UpdateState(ctx, app); err != nil {
			return err
		}

		return r.Audit.Append(ctx, &repository.AuditEntry{
			ApplicationID: app.ID,
			Action:        auditAction,
			PerformedBy:   req.ActorID,
			StatusBefore:  statusBefore,
			StatusAfter:   app.Status,
			Metadata:      map[string]any{"resubmission": wasRemanded, "steps": len(route)},
		})
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Int64("application_id", app.ID).
		Int64("actor_id", req.ActorID).
		Str("from", string(statusBefore)).
		Str("to", string(app.Status)).
		Bool("remanded", wasRemanded).
		Msg("Application edited")

	if submitting {
		s.events.PublishApplicationEvent(ctx, EventSubmitted, app, req.ActorID, map[string]any{
			"steps":        len(route),
			"resubmission": wasRemanded,
		})
	}
	return nil
}

// ── Delete ────────────────────────────────────────────────────────────────────

// DeleteApplication hard-deletes a draft and withdraws (soft-deletes) a
// pending application. Anything else is InvalidState.
func (s *ApplicationService) DeleteApplication(ctx context.Context, applicationID, actorID int64) (err error) {
	ctx, finish := startOperation(ctx, "delete", attribute.Int64("leave.application_id", applicationID))
	defer func() { finish(err) }()

	var (
		app   *repository.Application
		event string
	)
	err = s.store.InTx(ctx, func(r Repositories) error {
		var err error
		app, err = r.Applications.GetForUpdate(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.ApplicantID != actorID {
			return errors.Forbidden("only the applicant can delete this application")
		}
		if err := checkTransition(app, ActionDelete); err != nil {
			return err
		}

		entry := &repository.AuditEntry{
			ApplicationID: app.ID,
			PerformedBy:   actorID,
			StatusBefore:  app.Status,
		}
		switch app.Status {
		case repository.StatusDraft:
			if err := r.Applications.HardDelete(ctx, app.ID); err != nil {
				return err
			}
			entry.Action = repository.AuditDeleted
			event = EventDeleted
		case repository.StatusPending:
			deletedAt, err := r.Applications.SoftDelete(ctx, app.ID)
			if err != nil {
				return err
			}
			app.DeletedAt = &deletedAt
			entry.Action = repository.AuditWithdrawn
			entry.StatusAfter = app.Status
			event = EventWithdrawn
		}
		return r.Audit.Append(ctx, entry)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Int64("application_id", applicationID).
		Int64("actor_id", actorID).
		Str("event", event).
		Msg("Application deleted")

	s.events.PublishApplicationEvent(ctx, event, app, actorID, nil)
	return nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// GetApplicationDetail returns the application with template, answers and
// chain. Callers that are neither the applicant nor one of its approvers get
// NotFound, as do approvers of a withdrawn application.
func (s *ApplicationService) GetApplicationDetail(ctx context.Context, applicationID, actorID int64) (*ApplicationDetail, error) {
	read := s.store.Read()
	app, err := s.visibleApplication(ctx, read, applicationID, actorID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, read, app)
}

func (s *ApplicationService) detail(ctx context.Context, read Repositories, app *repository.Application) (*ApplicationDetail, error) {
	tpl, err := s.templates.GetTemplate(ctx, app.TemplateID)
	if err != nil {
		return nil, err
	}
	values, err := read.Values.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	steps, err := read.Steps.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	return &ApplicationDetail{Application: app, Template: tpl, Values: values, Steps: steps}, nil
}

func (s *ApplicationService) visibleApplication(ctx context.Context, read Repositories, applicationID, actorID int64) (*repository.Application, error) {
	app, err := read.Applications.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID == actorID {
		return app, nil
	}
	if !app.Withdrawn() {
		ok, err := read.Steps.IsApprover(ctx, app.ID, actorID)
		if err != nil {
			return nil, err
		}
		if ok {
			return app, nil
		}
	}
	return nil, errors.NotFound("application", applicationID)
}

// ListFilters are the accepted ListApplications filters besides "".
var ListFilters = []string{
	string(repository.StatusDraft),
	string(repository.StatusPending),
	string(repository.StatusApproved),
	"remanded",
}

// ListApplications returns the actor's own live applications.
func (s *ApplicationService) ListApplications(ctx context.Context, actorID int64, filter string) ([]*repository.Application, error) {
	if filter != "" && !contains(ListFilters, filter) {
		return nil, errors.InvalidInput("status", fmt.Sprintf("unknown status filter %q", filter))
	}
	return s.store.Read().Applications.ListByApplicant(ctx, actorID, filter)
}

// GetApprovalHistory returns the audit trail, which keeps every round of
// approvals and remands across resubmissions.
func (s *ApplicationService) GetApprovalHistory(ctx context.Context, applicationID, actorID int64) ([]*repository.AuditEntry, error) {
	read := s.store.Read()
	if _, err := s.visibleApplication(ctx, read, applicationID, actorID); err != nil {
		return nil, err
	}
	return read.Audit.ListByApplication(ctx, applicationID)
}

// GetRemainingLeave returns the user's leave balance in hours.
func (s *ApplicationService) GetRemainingLeave(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.store.Read().Users.GetRemainingLeave(ctx, userID)
}

// approvalRoute loads the template route and refuses to submit into an empty
// chain.
func (s *ApplicationService) approvalRoute(ctx context.Context, templateID int64) ([]repository.RouteStep, error) {
	route, err := s.templates.GetApprovalRoute(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(route) == 0 {
		return nil, errors.InvalidInput("template_id", fmt.Sprintf("template %d has no approval route", templateID))
	}
	for i, rs := range route {
		if rs.StepOrder != i+1 {
			return nil, errors.New(errors.ErrCodeInternal, fmt.Sprintf("approval route of template %d is not contiguous", templateID))
		}
	}
	return route, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
