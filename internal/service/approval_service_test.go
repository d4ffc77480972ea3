package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

func TestApproveChainDeductsLeave(t *testing.T) {
	f := newFixture(t)
	app := f.submitLeave(t, "2025-01-10~2025-01-12")

	step, err := f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	require.NoError(t, err)
	assert.Equal(t, repository.StepApproved, step.Status)
	assert.NotNil(t, step.ActedAt)

	mid := f.application(t, app.ID)
	assert.Equal(t, repository.StatusPending, mid.Status)
	require.NotNil(t, mid.CurrentStep)
	assert.Equal(t, 2, *mid.CurrentStep)
	assert.Equal(t, "80", f.balance(t), "intermediate approvals never deduct")

	_, err = f.act(f.stepAt(t, app.ID, 2).ID, secondBoss, StepActionApprove)
	require.NoError(t, err)

	done := f.application(t, app.ID)
	assert.Equal(t, repository.StatusApproved, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "56.75", f.balance(t))

	assert.Equal(t, []string{EventSubmitted, EventStepApproved, EventApproved}, f.events.names())
	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, "23.25", last.payload["hours_deducted"])
	assert.Equal(t, secondBoss, last.actorID)
}

func TestApproveReversedRange(t *testing.T) {
	f := newFixture(t)
	app := f.submitLeave(t, "2025-01-12~2025-01-10")
	_, err := f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	require.NoError(t, err)
	_, err = f.act(f.stepAt(t, app.ID, 2).ID, secondBoss, StepActionApprove)
	require.NoError(t, err)
	assert.Equal(t, "56.75", f.balance(t))
}

func TestApproveNonLeaveTemplateKeepsBalance(t *testing.T) {
	f := newFixture(t)
	app, err := f.apps.CreateApplication(context.Background(), &CreateApplicationRequest{
		ApplicantID: applicantID,
		TemplateID:  expenseTplID,
		Status:      repository.StatusPending,
		Values: []ValueInput{
			{SortOrder: 1, Value: "conference"},
			{SortOrder: 3, Value: "2025-01-10~2025-01-12"},
		},
	})
	require.NoError(t, err)

	_, err = f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	require.NoError(t, err)
	_, err = f.act(f.stepAt(t, app.ID, 2).ID, secondBoss, StepActionApprove)
	require.NoError(t, err)

	assert.Equal(t, repository.StatusApproved, f.application(t, app.ID).Status)
	assert.Equal(t, "80", f.balance(t))
}

func TestApproveLeaveWithoutRangeKeepsBalance(t *testing.T) {
	f := newFixture(t)
	app, err := f.apps.CreateApplication(context.Background(), &CreateApplicationRequest{
		ApplicantID: applicantID,
		TemplateID:  leaveTplID,
		Status:      repository.StatusPending,
		Values:      []ValueInput{{SortOrder: 1, Value: "next week sometime"}},
	})
	require.NoError(t, err)

	_, err = f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	require.NoError(t, err)
	_, err = f.act(f.stepAt(t, app.ID, 2).ID, secondBoss, StepActionApprove)
	require.NoError(t, err)
	assert.Equal(t, "80", f.balance(t))
}

func TestFinalApprovalRollsBackWhenApplicantMissing(t *testing.T) {
	f := newFixture(t)
	app, err := f.apps.CreateApplication(context.Background(), &CreateApplicationRequest{
		ApplicantID: outsiderID, // no balance row
		TemplateID:  leaveTplID,
		Status:      repository.StatusPending,
		Values:      leaveValues("2025-01-10~2025-01-12"),
		Approvers:   []ApproverInput{{StepOrder: 1, ApproverID: firstBoss}},
	})
	require.NoError(t, err)
	before := f.store.snapshot()

	_, err = f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	assertCode(t, err, errors.ErrCodeNotFound)

	assert.Equal(t, before, f.store.snapshot(), "step, status and audit roll back together")
	assert.Equal(t, repository.StepPending, f.stepAt(t, app.ID, 1).Status)
	assert.Equal(t, []string{EventSubmitted}, f.events.names())
}

func TestSecondActionOnStepConflicts(t *testing.T) {
	for _, second := range []string{StepActionApprove, StepActionRemand} {
		t.Run(second, func(t *testing.T) {
			f := newFixture(t)
			app := f.submitLeave(t, "2025-01-10~2025-01-12")
			stepID := f.stepAt(t, app.ID, 1).ID

			_, err := f.act(stepID, firstBoss, StepActionApprove)
			require.NoError(t, err)
			before := f.store.snapshot()

			_, err = f.act(stepID, firstBoss, second)
			assertCode(t, err, errors.ErrCodeConflict)
			assert.Equal(t, before, f.store.snapshot())
		})
	}
}

func TestConcurrentApprovalsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	app, err := f.apps.CreateApplication(context.Background(), &CreateApplicationRequest{
		ApplicantID: applicantID,
		TemplateID:  leaveTplID,
		Status:      repository.StatusPending,
		Values:      leaveValues("2025-01-10~2025-01-12"),
		Approvers:   []ApproverInput{{StepOrder: 1, ApproverID: firstBoss}},
	})
	require.NoError(t, err)
	stepID := f.stepAt(t, app.ID, 1).ID

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.act(stepID, firstBoss, StepActionApprove)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errors.ErrCodeConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, conflicts)
	assert.Equal(t, "56.75", f.balance(t), "leave is deducted exactly once")
}

func TestRemandMidChainReplacesLaterPendingSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app, err := f.apps.CreateApplication(ctx, &CreateApplicationRequest{
		ApplicantID: applicantID,
		TemplateID:  threeStepTpl,
		Status:      repository.StatusPending,
		Values:      leaveValues("2025-01-10~2025-01-12"),
	})
	require.NoError(t, err)

	_, err = f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	require.NoError(t, err)
	_, err = f.act(f.stepAt(t, app.ID, 2).ID, secondBoss, StepActionRemand)
	require.NoError(t, err)

	third := f.stepAt(t, app.ID, 3)
	assert.Equal(t, repository.StepPending, third.Status, "steps after the remanded one are untouched")
	assert.Nil(t, third.ActedAt)

	remanded := f.application(t, app.ID)
	assert.Equal(t, repository.StatusDraft, remanded.Status)
	assert.True(t, remanded.Remanded)
	require.NotNil(t, remanded.CurrentStep)
	assert.Equal(t, 1, *remanded.CurrentStep)

	_, err = f.act(third.ID, thirdBoss, StepActionApprove)
	assertCode(t, err, errors.ErrCodeInvalidState)

	err = f.apps.EditApplication(ctx, &EditApplicationRequest{
		ApplicationID: app.ID,
		ActorID:       applicantID,
		TemplateID:    threeStepTpl,
		Status:        repository.StatusPending,
		Values:        leaveValues("2025-01-13~2025-01-15"),
	})
	require.NoError(t, err)

	steps := f.store.snapshot().steps
	require.Len(t, steps, 3)
	orders := map[int]int64{}
	for _, s := range steps {
		assert.Equal(t, repository.StepPending, s.Status)
		assert.NotEqual(t, third.ID, s.ID, "the earlier round's pending step 3 is replaced")
		orders[s.StepOrder] = s.ApproverID
	}
	assert.Equal(t, map[int]int64{1: firstBoss, 2: secondBoss, 3: thirdBoss}, orders)
	assert.Equal(t, "80", f.balance(t))
}

func TestRemandResetsChainAndResubmitRegenerates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submitLeave(t, "2025-01-10~2025-01-12")

	_, err := f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	require.NoError(t, err)

	comment := "dates clash with the release"
	step, err := f.approvals.ActOnStep(ctx, &ActOnStepRequest{
		StepID:  f.stepAt(t, app.ID, 2).ID,
		ActorID: secondBoss,
		Action:  StepActionRemand,
		Comment: &comment,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StepRemanded, step.Status)
	require.NotNil(t, step.Comment)
	assert.Equal(t, comment, *step.Comment)

	remanded := f.application(t, app.ID)
	assert.Equal(t, repository.StatusDraft, remanded.Status)
	assert.True(t, remanded.Remanded)
	require.NotNil(t, remanded.CurrentStep)
	assert.Equal(t, 1, *remanded.CurrentStep)
	assert.Equal(t, "80", f.balance(t))

	oldIDs := map[int64]bool{}
	for _, s := range f.store.snapshot().steps {
		oldIDs[s.ID] = true
	}

	err = f.apps.EditApplication(ctx, &EditApplicationRequest{
		ApplicationID: app.ID,
		ActorID:       applicantID,
		TemplateID:    leaveTplID,
		Status:        repository.StatusPending,
		Values:        leaveValues("2025-01-13~2025-01-15"),
	})
	require.NoError(t, err)

	resubmitted := f.application(t, app.ID)
	assert.Equal(t, repository.StatusPending, resubmitted.Status)
	assert.False(t, resubmitted.Remanded)
	require.NotNil(t, resubmitted.CurrentStep)
	assert.Equal(t, 1, *resubmitted.CurrentStep)

	steps := f.store.snapshot().steps
	require.Len(t, steps, 2)
	for _, s := range steps {
		assert.Equal(t, repository.StepPending, s.Status)
		assert.False(t, oldIDs[s.ID], "steps of the earlier round are replaced")
	}

	// The audit trail keeps both rounds.
	history, err := f.apps.GetApprovalHistory(ctx, app.ID, applicantID)
	require.NoError(t, err)
	var actions []string
	for _, e := range history {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		repository.AuditSubmitted,
		repository.AuditApproved,
		repository.AuditRemanded,
		repository.AuditSubmitted,
	}, actions)
	assert.Equal(t, comment, history[2].Metadata["comment"])

	_, err = f.act(f.stepAt(t, app.ID, 1).ID, firstBoss, StepActionApprove)
	require.NoError(t, err)
	_, err = f.act(f.stepAt(t, app.ID, 2).ID, secondBoss, StepActionApprove)
	require.NoError(t, err)
	assert.Equal(t, "56.75", f.balance(t))
}

func TestActAuthorization(t *testing.T) {
	f := newFixture(t)
	app := f.submitLeave(t, "2025-01-10~2025-01-12")
	first := f.stepAt(t, app.ID, 1)
	second := f.stepAt(t, app.ID, 2)

	t.Run("wrong approver", func(t *testing.T) {
		_, err := f.act(first.ID, secondBoss, StepActionApprove)
		assertCode(t, err, errors.ErrCodeForbidden)
	})
	t.Run("applicant cannot approve", func(t *testing.T) {
		_, err := f.act(first.ID, applicantID, StepActionApprove)
		assertCode(t, err, errors.ErrCodeForbidden)
	})
	t.Run("step that is not current", func(t *testing.T) {
		_, err := f.act(second.ID, secondBoss, StepActionApprove)
		assertCode(t, err, errors.ErrCodeConflict)
	})
	t.Run("unknown step", func(t *testing.T) {
		_, err := f.act(9999, firstBoss, StepActionApprove)
		assertCode(t, err, errors.ErrCodeNotFound)
	})
	t.Run("bad action", func(t *testing.T) {
		_, err := f.act(first.ID, firstBoss, "reject")
		assertCode(t, err, errors.ErrCodeInvalidInput)
	})

	assert.Equal(t, repository.StepPending, f.stepAt(t, app.ID, 1).Status)
	assert.Equal(t, repository.StepPending, f.stepAt(t, app.ID, 2).Status)
}

func TestListPendingApprovals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submitLeave(t, "2025-01-10~2025-01-12")

	pending, err := f.approvals.ListPendingApprovals(ctx, firstBoss)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, app.ID, pending[0].Step.ApplicationID)
	assert.Equal(t, applicantID, pending[0].ApplicantID)

	later, err := f.approvals.ListPendingApprovals(ctx, secondBoss)
	require.NoError(t, err)
	assert.Empty(t, later, "step 2 is not actionable yet")

	_, err = f.act(pending[0].Step.ID, firstBoss, StepActionApprove)
	require.NoError(t, err)

	later, err = f.approvals.ListPendingApprovals(ctx, secondBoss)
	require.NoError(t, err)
	assert.Len(t, later, 1)
	mine, err := f.approvals.ListPendingApprovals(ctx, firstBoss)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestGetApprovalDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submitLeave(t, "2025-01-10~2025-01-12")
	step := f.stepAt(t, app.ID, 1)

	detail, err := f.approvals.GetApprovalDetail(ctx, step.ID, firstBoss)
	require.NoError(t, err)
	assert.Equal(t, step.ID, detail.Step.ID)
	assert.Equal(t, app.ID, detail.Application.ID)
	assert.Len(t, detail.Values, 2)

	_, err = f.approvals.GetApprovalDetail(ctx, step.ID, applicantID)
	assertCode(t, err, errors.ErrCodeNotFound)

	require.NoError(t, f.apps.DeleteApplication(ctx, app.ID, applicantID))
	_, err = f.approvals.GetApprovalDetail(ctx, step.ID, firstBoss)
	assertCode(t, err, errors.ErrCodeNotFound)
}
