package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-hr-leave-applications/internal/formvalue"
	"github.com/pesio-ai/be-hr-leave-applications/internal/leave"
	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/logger"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/metrics"
)

// Step actions accepted by ActOnStep.
const (
	StepActionApprove = "approve"
	StepActionRemand  = "remand"
)

// ApprovalService is the approver side of the lifecycle: it resolves the
// current step, applies approve or remand, and deducts leave on the final
// approval of a leave template.
type ApprovalService struct {
	store         Store
	templates     TemplateStore
	events        EventPublisher
	leaveKeywords []string
	log           *logger.Logger
	now           func() time.Time
}

// NewApprovalService creates a new ApprovalService. events may be nil.
func NewApprovalService(
	store Store,
	templates TemplateStore,
	events EventPublisher,
	leaveKeywords []string,
	log *logger.Logger,
) *ApprovalService {
	if events == nil {
		events = nopPublisher{}
	}
	return &ApprovalService{
		store:         store,
		templates:     templates,
		events:        events,
		leaveKeywords: leaveKeywords,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ActOnStepRequest approves or remands one step.
type ActOnStepRequest struct {
	StepID  int64
	ActorID int64
	Action  string
	Comment *string
}

// ApprovalDetail is the approver's view of a step and its application.
type ApprovalDetail struct {
	Step *repository.ApprovalStep `json:"step"`
	*ApplicationDetail
}

type stepOutcome struct {
	app           *repository.Application
	step          *repository.ApprovalStep
	event         string
	statusBefore  repository.ApplicationStatus
	deducted      decimal.Decimal
	deductionDone bool
	remaining     decimal.Decimal
}

// ── Act ───────────────────────────────────────────────────────────────────────

// ActOnStep applies approve or remand to a step. Every check runs against
// rows locked inside the transaction: the application (status and current
// step pointer) and then the step (approver and status). Nothing the client
// sends besides the step id and action is trusted.
func (s *ApprovalService) ActOnStep(ctx context.Context, req *ActOnStepRequest) (step *repository.ApprovalStep, err error) {
	ctx, finish := startOperation(ctx, "act_"+req.Action,
		attribute.Int64("leave.step_id", req.StepID),
		attribute.Int64("leave.actor_id", req.ActorID),
	)
	defer func() { finish(err) }()

	if req.Action != StepActionApprove && req.Action != StepActionRemand {
		return nil, errors.InvalidInput("action", fmt.Sprintf("action must be %q or %q", StepActionApprove, StepActionRemand))
	}

	// Unlocked reads to find the application and prefetch its template
	// outside the transaction. Both are re-checked under lock.
	read := s.store.Read()
	peek, err := read.Steps.GetByID(ctx, req.StepID)
	if err != nil {
		return nil, err
	}
	current, err := read.Applications.GetByID(ctx, peek.ApplicationID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.templates.GetTemplate(ctx, current.TemplateID)
	if err != nil {
		return nil, err
	}

	var out stepOutcome
	err = s.store.InTx(ctx, func(r Repositories) error {
		app, err := r.Applications.GetForUpdate(ctx, peek.ApplicationID)
		if err != nil {
			return err
		}
		step, err := s.findCurrentStep(ctx, r, req.StepID, req.ActorID)
		if err != nil {
			return err
		}
		if step.ApplicationID != app.ID {
			return errors.Conflict("approval step moved to another application")
		}

		action := ActionApprove
		if req.Action == StepActionRemand {
			action = ActionRemand
		}
		if err := checkTransition(app, action); err != nil {
			return err
		}
		if app.CurrentStep == nil || *app.CurrentStep != step.StepOrder {
			return errors.Conflict(fmt.Sprintf("step %d is not the current step of application %d", step.StepOrder, app.ID))
		}

		out = stepOutcome{app: app, statusBefore: app.Status}
		if action == ActionRemand {
			return s.remand(ctx, r, &out, step, req)
		}
		if tpl.ID != app.TemplateID {
			if tpl, err = s.templates.GetTemplate(ctx, app.TemplateID); err != nil {
				return err
			}
		}
		return s.approve(ctx, r, &out, step, tpl, req)
	})
	if err != nil {
		return nil, err
	}

	if out.deductionDone {
		hours, _ := out.deducted.Float64()
		metrics.LeaveHoursDeducted.Add(hours)
	}

	ev := s.log.Info().
		Int64("application_id", out.app.ID).
		Int64("step_id", out.step.ID).
		Int("step_order", out.step.StepOrder).
		Int64("actor_id", req.ActorID).
		Str("from", string(out.statusBefore)).
		Str("to", string(out.app.Status))
	if out.deductionDone {
		ev = ev.Str("hours_deducted", out.deducted.String()).Str("remaining_hours", out.remaining.String())
	}
	ev.Msg("Approval step " + out.event)

	payload := map[string]any{"step_order": out.step.StepOrder}
	if out.deductionDone {
		payload["hours_deducted"] = out.deducted.String()
	}
	s.events.PublishApplicationEvent(ctx, out.event, out.app, req.ActorID, payload)
	return out.step, nil
}

// findCurrentStep locks the step and checks it belongs to the actor and is
// still awaiting action.
func (s *ApprovalService) findCurrentStep(ctx context.Context, r Repositories, stepID, actorID int64) (*repository.ApprovalStep, error) {
	step, err := r.Steps.GetForUpdate(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.ApproverID != actorID {
		return nil, errors.Forbidden("only the assigned approver can act on this step")
	}
	if step.Status != repository.StepPending {
		return nil, errors.Conflict(fmt.Sprintf("approval step %d has already been %s", step.ID, step.Status))
	}
	return step, nil
}

// resolveNext returns the step after currentOrder, or nil when currentOrder
// is the last one.
func (s *ApprovalService) resolveNext(ctx context.Context, r Repositories, applicationID int64, currentOrder int) (*repository.ApprovalStep, error) {
	return r.Steps.GetByOrder(ctx, applicationID, currentOrder+1)
}

func (s *ApprovalService) approve(
	ctx context.Context,
	r Repositories,
	out *stepOutcome,
	step *repository.ApprovalStep,
	tpl *repository.Template,
	req *ActOnStepRequest,
) error {
	app := out.app
	acted, err := r.Steps.RecordAction(ctx, step.ID, repository.StepApproved, req.Comment)
	if err != nil {
		return err
	}
	out.step = acted

	next, err := s.resolveNext(ctx, r, app.ID, step.StepOrder)
	if err != nil {
		return err
	}

	metadata := map[string]any{}
	if next != nil {
		app.CurrentStep = &next.StepOrder
		out.event = EventStepApproved
		metadata["next_step"] = next.StepOrder
	} else {
		now := s.now()
		app.Status = repository.StatusApproved
		app.CompletedAt = &now
		out.event = EventApproved
	}
	if err := r.Applications.UpdateState(ctx, app); err != nil {
		return err
	}

	if next == nil && leave.IsLeaveTemplate(tpl.Name, s.leaveKeywords) {
		values, err := r.Values.ListByApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		answers := make([]formvalue.Value, 0, len(values))
		for _, v := range values {
			answers = append(answers, v.Value)
		}
		if hours, ok := leave.Deduction(answers); ok {
			remaining, err := r.Users.DecrementLeaveHours(ctx, app.ApplicantID, hours)
			if err != nil {
				return err
			}
			out.deducted, out.remaining, out.deductionDone = hours, remaining, true
			metadata["hours_deducted"] = hours.String()
		}
	}

	stepOrder := step.StepOrder
	return r.Audit.Append(ctx, &repository.AuditEntry{
		ApplicationID: app.ID,
		StepID:        &acted.ID,
		StepOrder:     &stepOrder,
		Action:        repository.AuditApproved,
		PerformedBy:   req.ActorID,
		StatusBefore:  out.statusBefore,
		StatusAfter:   app.Status,
		Metadata:      withComment(metadata, req.Comment),
	})
}

func (s *ApprovalService) remand(
	ctx context.Context,
	r Repositories,
	out *stepOutcome,
	step *repository.ApprovalStep,
	req *ActOnStepRequest,
) error {
	app := out.app
	acted, err := r.Steps.RecordAction(ctx, step.ID, repository.StepRemanded, req.Comment)
	if err != nil {
		return err
	}
	out.step = acted
	out.event = EventRemanded

	first := 1
	app.Status = repository.StatusDraft
	app.CurrentStep = &first
	app.Remanded = true
	if err := r.Applications.UpdateState(ctx, app); err != nil {
		return err
	}

	stepOrder := step.StepOrder
	return r.Audit.Append(ctx, &repository.AuditEntry{
		ApplicationID: app.ID,
		StepID:        &acted.ID,
		StepOrder:     &stepOrder,
		Action:        repository.AuditRemanded,
		PerformedBy:   req.ActorID,
		StatusBefore:  out.statusBefore,
		StatusAfter:   app.Status,
		Metadata:      withComment(map[string]any{}, req.Comment),
	})
}

func withComment(m map[string]any, comment *string) map[string]any {
	if comment != nil && *comment != "" {
		m["comment"] = *comment
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// ListPendingApprovals returns the steps currently waiting on the actor.
func (s *ApprovalService) ListPendingApprovals(ctx context.Context, actorID int64) ([]*repository.PendingApproval, error) {
	return s.store.Read().Steps.ListPendingForApprover(ctx, actorID)
}

// GetApprovalDetail returns a step with its application. Only the step's
// approver may see it; anyone else gets NotFound.
func (s *ApprovalService) GetApprovalDetail(ctx context.Context, stepID, actorID int64) (*ApprovalDetail, error) {
	read := s.store.Read()
	step, err := read.Steps.GetByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.ApproverID != actorID {
		return nil, errors.NotFound("approval_step", stepID)
	}
	app, err := read.Applications.GetByID(ctx, step.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Withdrawn() {
		return nil, errors.NotFound("approval_step", stepID)
	}

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
	return &ApprovalDetail{
		Step:              step,
		ApplicationDetail: &ApplicationDetail{Application: app, Template: tpl, Values: values, Steps: steps},
	}, nil
}
