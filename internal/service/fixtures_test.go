package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/logger"
)

const (
	applicantID  int64 = 10
	outsiderID   int64 = 11
	firstBoss    int64 = 100
	secondBoss   int64 = 101
	thirdBoss    int64 = 102
	leaveTplID   int64 = 1
	expenseTplID int64 = 2
	noRouteTplID int64 = 3
	threeStepTpl int64 = 4
)

type memTemplates struct {
	templates map[int64]*repository.Template
	routes    map[int64][]repository.RouteStep
}

func (m *memTemplates) GetTemplate(_ context.Context, id int64) (*repository.Template, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, errors.NotFound("template", id)
	}
	return t, nil
}

func (m *memTemplates) GetApprovalRoute(_ context.Context, templateID int64) ([]repository.RouteStep, error) {
	if _, ok := m.templates[templateID]; !ok {
		return nil, errors.NotFound("template", templateID)
	}
	return m.routes[templateID], nil
}

func newTemplates() *memTemplates {
	leaveTpl := &repository.Template{
		ID:   leaveTplID,
		Name: "Annual leave request",
		Fields: []repository.TemplateField{
			{SortOrder: 1, Kind: repository.FieldDateRange, Props: repository.NewDateRangeProps("Period", true)},
			{SortOrder: 2, Kind: repository.FieldTextArea, Props: repository.TextAreaProps{}},
		},
	}
	expenseTpl := &repository.Template{
		ID:   expenseTplID,
		Name: "Expense claim",
		Fields: []repository.TemplateField{
			{SortOrder: 1, Kind: repository.FieldText, Props: repository.NewTextProps("Purpose", true)},
			{SortOrder: 2, Kind: repository.FieldSelect, Props: repository.NewChoiceProps("Category", false,
				repository.Option{Label: "Travel", Value: "travel"},
				repository.Option{Label: "Meals", Value: "meals"},
			)},
			{SortOrder: 3, Kind: repository.FieldText, Props: repository.NewTextProps("Dates", false)},
		},
	}
	noRoute := &repository.Template{
		ID:     noRouteTplID,
		Name:   "Unrouted leave",
		Fields: []repository.TemplateField{{SortOrder: 1, Kind: repository.FieldText, Props: repository.NewTextProps("Note", false)}},
	}
	sabbatical := &repository.Template{ID: threeStepTpl, Name: "Sabbatical leave", Fields: leaveTpl.Fields}
	twoSteps := []repository.RouteStep{{StepOrder: 1, ApproverID: firstBoss}, {StepOrder: 2, ApproverID: secondBoss}}
	threeSteps := append(append([]repository.RouteStep{}, twoSteps...), repository.RouteStep{StepOrder: 3, ApproverID: thirdBoss})
	return &memTemplates{
		templates: map[int64]*repository.Template{
			leaveTplID: leaveTpl, expenseTplID: expenseTpl, noRouteTplID: noRoute, threeStepTpl: sabbatical,
		},
		routes: map[int64][]repository.RouteStep{leaveTplID: twoSteps, expenseTplID: twoSteps, threeStepTpl: threeSteps},
	}
}

type publishedEvent struct {
	event         string
	applicationID int64
	actorID       int64
	payload       map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishApplicationEvent(_ context.Context, event string, app *repository.Application, actorID int64, payload map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{event: event, applicationID: app.ID, actorID: actorID, payload: payload})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event)
	}
	return out
}

type fixture struct {
	store     *memStore
	templates *memTemplates
	events    *recordingPublisher
	apps      *ApplicationService
	approvals *ApprovalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	store.setBalance(applicantID, "80")
	templates := newTemplates()
	events := &recordingPublisher{}
	log := logger.Nop()
	return &fixture{
		store:     store,
		templates: templates,
		events:    events,
		apps:      NewApplicationService(store, templates, events, log),
		approvals: NewApprovalService(store, templates, events, []string{"休暇", "leave"}, log),
	}
}

func leaveValues(period string) []ValueInput {
	return []ValueInput{{SortOrder: 1, Value: period}, {SortOrder: 2, Value: "family trip"}}
}

// submitLeave creates a pending leave application over the two-step route.
func (f *fixture) submitLeave(t *testing.T, period string) *repository.Application {
	t.Helper()
	app, err := f.apps.CreateApplication(context.Background(), &CreateApplicationRequest{
		ApplicantID: applicantID,
		TemplateID:  leaveTplID,
		Status:      repository.StatusPending,
		Values:      leaveValues(period),
	})
	require.NoError(t, err)
	return app
}

func (f *fixture) createDraft(t *testing.T) *repository.Application {
	t.Helper()
	app, err := f.apps.CreateApplication(context.Background(), &CreateApplicationRequest{
		ApplicantID: applicantID,
		TemplateID:  leaveTplID,
		Status:      repository.StatusDraft,
		Values:      leaveValues("2025-01-10~2025-01-12"),
	})
	require.NoError(t, err)
	return app
}

// stepAt returns the step with the given order.
func (f *fixture) stepAt(t *testing.T, applicationID int64, order int) *repository.ApprovalStep {
	t.Helper()
	steps, err := f.store.Read().Steps.ListByApplication(context.Background(), applicationID)
	require.NoError(t, err)
	for _, s := range steps {
		if s.StepOrder == order {
			return s
		}
	}
	t.Fatalf("application %d has no step %d", applicationID, order)
	return nil
}

func (f *fixture) act(stepID, actorID int64, action string) (*repository.ApprovalStep, error) {
	return f.approvals.ActOnStep(context.Background(), &ActOnStepRequest{StepID: stepID, ActorID: actorID, Action: action})
}

func (f *fixture) application(t *testing.T, id int64) *repository.Application {
	t.Helper()
	app, err := f.store.Read().Applications.GetByID(context.Background(), id)
	require.NoError(t, err)
	return app
}

func (f *fixture) balance(t *testing.T) string {
	t.Helper()
	bal, err := f.apps.GetRemainingLeave(context.Background(), applicantID)
	require.NoError(t, err)
	return bal.String()
}

func assertCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errors.CodeOf(err), err.Error())
}
