package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// memStore is an in-memory Store. InTx serializes units of work on one mutex
// and restores a snapshot when fn fails, which gives the same all-or-nothing
// and lost-race behaviour the row locks give in Postgres.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	nextID   int64
	apps     map[int64]repository.Application
	values   map[int64][]repository.ApplicationValue
	steps    map[int64]repository.ApprovalStep
	balances map[int64]decimal.Decimal
	audit    []repository.AuditEntry
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		apps:     map[int64]repository.Application{},
		values:   map[int64][]repository.ApplicationValue{},
		steps:    map[int64]repository.ApprovalStep{},
		balances: map[int64]decimal.Decimal{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:   s.nextID,
		apps:     make(map[int64]repository.Application, len(s.apps)),
		values:   make(map[int64][]repository.ApplicationValue, len(s.values)),
		steps:    make(map[int64]repository.ApprovalStep, len(s.steps)),
		balances: make(map[int64]decimal.Decimal, len(s.balances)),
		audit:    append([]repository.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.apps {
		c.apps[k] = v
	}
	for k, v := range s.values {
		c.values[k] = append([]repository.ApplicationValue(nil), v...)
	}
	for k, v := range s.steps {
		c.steps[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

func (s *memStore) InTx(_ context.Context, fn func(r Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(s.repos(false)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *memStore) Read() Repositories { return s.repos(true) }

func (s *memStore) repos(lock bool) Repositories {
	r := &memRepos{store: s, lock: lock}
	return Repositories{
		Applications: memApps{r},
		Values:       memValues{r},
		Steps:        memSteps{r},
		Users:        memUsers{r},
		Audit:        memAudit{r},
	}
}

// snapshot returns a copy of the state for before/after comparisons.
func (s *memStore) snapshot() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memStore) setBalance(userID int64, hours string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.balances[userID] = decimal.RequireFromString(hours)
}

type memRepos struct {
	store *memStore
	lock  bool
}

type (
	memApps   struct{ *memRepos }
	memValues struct{ *memRepos }
	memSteps  struct{ *memRepos }
	memUsers  struct{ *memRepos }
	memAudit  struct{ *memRepos }
)

func (r *memRepos) st() (*memState, func()) {
	if r.lock {
		r.store.mu.Lock()
		return r.store.state, r.store.mu.Unlock
	}
	return r.store.state, func() {}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memState) withRemanded(a repository.Application) *repository.Application {
	a.Remanded = false
	if a.Status == repository.StatusDraft {
		for _, st := range s.steps {
			if st.ApplicationID == a.ID && st.Status == repository.StepRemanded {
				a.Remanded = true
				break
			}
		}
	}
	return &a
}

// ── applications ──────────────────────────────────────────────────────────────

func (r memApps) Create(_ context.Context, app *repository.Application) error {
	s, done := r.st()
	defer done()
	now := time.Now().UTC()
	app.ID = s.id()
	app.CreatedAt, app.UpdatedAt = now, now
	s.apps[app.ID] = *app
	return nil
}

func (r memApps) GetByID(_ context.Context, id int64) (*repository.Application, error) {
	s, done := r.st()
	defer done()
	a, ok := s.apps[id]
	if !ok {
		return nil, errors.NotFound("application", id)
	}
	return s.withRemanded(a), nil
}

func (r memApps) GetForUpdate(ctx context.Context, id int64) (*repository.Application, error) {
	return r.GetByID(ctx, id)
}

func (r memApps) ListByApplicant(_ context.Context, applicantID int64, filter string) ([]*repository.Application, error) {
	s, done := r.st()
	defer done()
	var out []*repository.Application
	for _, a := range s.apps {
		if a.ApplicantID != applicantID || a.DeletedAt != nil {
			continue
		}
		app := s.withRemanded(a)
		switch {
		case filter == "":
		case filter == "remanded":
			if !app.Remanded {
				continue
			}
		case string(app.Status) != filter:
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memApps) UpdateState(_ context.Context, app *repository.Application) error {
	s, done := r.st()
	defer done()
	cur, ok := s.apps[app.ID]
	if !ok {
		return errors.NotFound("application", app.ID)
	}
	cur.TemplateID = app.TemplateID
	cur.Status = app.Status
	cur.CurrentStep = app.CurrentStep
	cur.SubmittedAt = app.SubmittedAt
	cur.CompletedAt = app.CompletedAt
	cur.UpdatedAt = time.Now().UTC()
	s.apps[app.ID] = cur
	app.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r memApps) SoftDelete(_ context.Context, id int64) (time.Time, error) {
	s, done := r.st()
	defer done()
	cur, ok := s.apps[id]
	if !ok || cur.DeletedAt != nil {
		return time.Time{}, errors.NotFound("application", id)
	}
	now := time.Now().UTC()
	cur.DeletedAt = &now
	s.apps[id] = cur
	return now, nil
}

func (r memApps) HardDelete(_ context.Context, id int64) error {
	s, done := r.st()
	defer done()
	if _, ok := s.apps[id]; !ok {
		return errors.NotFound("application", id)
	}
	delete(s.apps, id)
	delete(s.values, id)
	for sid, st := range s.steps {
		if st.ApplicationID == id {
			delete(s.steps, sid)
		}
	}
	return nil
}

// ── values ────────────────────────────────────────────────────────────────────

func (r memValues) Insert(_ context.Context, applicationID int64, values []repository.ApplicationValue) error {
	s, done := r.st()
	defer done()
	for _, v := range values {
		v.ApplicationID = applicationID
		s.values[applicationID] = append(s.values[applicationID], v)
	}
	return nil
}

func (r memValues) ReplaceAll(ctx context.Context, applicationID int64, values []repository.ApplicationValue) error {
	s, done := r.st()
	delete(s.values, applicationID)
	done()
	return r.Insert(ctx, applicationID, values)
}

func (r memValues) ListByApplication(_ context.Context, applicationID int64) ([]repository.ApplicationValue, error) {
	return r.listValues(applicationID), nil
}

func (r *memRepos) listValues(applicationID int64) []repository.ApplicationValue {
	s, done := r.st()
	defer done()
	out := append([]repository.ApplicationValue(nil), s.values[applicationID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// ── steps ─────────────────────────────────────────────────────────────────────

func (r memSteps) CreateFromRoute(_ context.Context, applicationID int64, route []repository.RouteStep) ([]*repository.ApprovalStep, error) {
	s, done := r.st()
	defer done()
	var out []*repository.ApprovalStep
	for _, rs := range route {
		st := repository.ApprovalStep{
			ID:            s.id(),
			ApplicationID: applicationID,
			StepOrder:     rs.StepOrder,
			ApproverID:    rs.ApproverID,
			Status:        repository.StepPending,
			CreatedAt:     time.Now().UTC(),
		}
		s.steps[st.ID] = st
		cp := st
		out = append(out, &cp)
	}
	return out, nil
}

func (r memSteps) DeleteByApplication(_ context.Context, applicationID int64) error {
	s, done := r.st()
	defer done()
	for id, st := range s.steps {
		if st.ApplicationID == applicationID {
			delete(s.steps, id)
		}
	}
	return nil
}

func (r memSteps) GetByID(_ context.Context, id int64) (*repository.ApprovalStep, error) {
	return r.getStep(id)
}

func (r memSteps) GetForUpdate(_ context.Context, id int64) (*repository.ApprovalStep, error) {
	return r.getStep(id)
}

func (r memSteps) ListByApplication(_ context.Context, applicationID int64) ([]*repository.ApprovalStep, error) {
	return r.listSteps(applicationID), nil
}

func (r *memRepos) getStep(id int64) (*repository.ApprovalStep, error) {
	s, done := r.st()
	defer done()
	st, ok := s.steps[id]
	if !ok {
		return nil, errors.NotFound("approval_step", id)
	}
	return &st, nil
}

func (r memSteps) GetByOrder(_ context.Context, applicationID int64, stepOrder int) (*repository.ApprovalStep, error) {
	s, done := r.st()
	defer done()
	for _, st := range s.steps {
		if st.ApplicationID == applicationID && st.StepOrder == stepOrder {
			cp := st
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepos) listSteps(applicationID int64) []*repository.ApprovalStep {
	s, done := r.st()
	defer done()
	var out []*repository.ApprovalStep
	for _, st := range s.steps {
		if st.ApplicationID == applicationID {
			cp := st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

func (r memSteps) RecordAction(_ context.Context, id int64, status repository.StepStatus, comment *string) (*repository.ApprovalStep, error) {
	s, done := r.st()
	defer done()
	st, ok := s.steps[id]
	if !ok || st.Status != repository.StepPending {
		return nil, errors.Conflict("approval step has already been processed")
	}
	now := time.Now().UTC()
	st.Status, st.Comment, st.ActedAt = status, comment, &now
	s.steps[id] = st
	cp := st
	return &cp, nil
}

func (r memSteps) ListPendingForApprover(_ context.Context, approverID int64) ([]*repository.PendingApproval, error) {
	s, done := r.st()
	defer done()
	var out []*repository.PendingApproval
	for _, st := range s.steps {
		a := s.apps[st.ApplicationID]
		if st.ApproverID != approverID || st.Status != repository.StepPending ||
			a.Status != repository.StatusPending || a.DeletedAt != nil ||
			a.CurrentStep == nil || *a.CurrentStep != st.StepOrder {
			continue
		}
		out = append(out, &repository.PendingApproval{
			Step:        st,
			ApplicantID: a.ApplicantID,
			TemplateID:  a.TemplateID,
			SubmittedAt: a.SubmittedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step.ID < out[j].Step.ID })
	return out, nil
}

func (r memSteps) IsApprover(_ context.Context, applicationID, userID int64) (bool, error) {
	s, done := r.st()
	defer done()
	for _, st := range s.steps {
		if st.ApplicationID == applicationID && st.ApproverID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ── users ─────────────────────────────────────────────────────────────────────

func (r memUsers) DecrementLeaveHours(_ context.Context, userID int64, hours decimal.Decimal) (decimal.Decimal, error) {
	s, done := r.st()
	defer done()
	bal, ok := s.balances[userID]
	if !ok {
		return decimal.Zero, errors.NotFound("user", userID)
	}
	bal = bal.Sub(hours)
	s.balances[userID] = bal
	return bal, nil
}

func (r memUsers) GetRemainingLeave(_ context.Context, userID int64) (decimal.Decimal, error) {
	s, done := r.st()
	defer done()
	bal, ok := s.balances[userID]
	if !ok {
		return decimal.Zero, errors.NotFound("user", userID)
	}
	return bal, nil
}

// ── audit ─────────────────────────────────────────────────────────────────────

func (r memAudit) Append(_ context.Context, entry *repository.AuditEntry) error {
	s, done := r.st()
	defer done()
	entry.ID = s.id()
	entry.PerformedAt = time.Now().UTC()
	s.audit = append(s.audit, *entry)
	return nil
}

func (r memAudit) ListByApplication(_ context.Context, applicationID int64) ([]*repository.AuditEntry, error) {
	return r.listAudit(applicationID), nil
}

func (r *memRepos) listAudit(applicationID int64) []*repository.AuditEntry {
	s, done := r.st()
	defer done()
	var out []*repository.AuditEntry
	for _, e := range s.audit {
		if e.ApplicationID == applicationID {
			cp := e
			out = append(out, &cp)
		}
	}
	return out
}
