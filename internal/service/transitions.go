package service

import (
	"fmt"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// Action is an engine operation on an existing application.
//
//	draft ──submit──► pending ──approve (last)──► approved
//	  ▲  ╰save─╯         │ ╰approve (next)─╯
//	  └─────remand───────┘
//
// draft is hard-deleted, pending is withdrawn (soft-deleted). approved is
// terminal.
type Action string

const (
	ActionSaveDraft Action = "save_draft"
	ActionSubmit    Action = "submit"
	ActionApprove   Action = "approve"
	ActionRemand    Action = "remand"
	ActionDelete    Action = "delete"
)

// allowedFrom lists the statuses each action may start from. A remanded
// application is stored as draft, so it needs no entry of its own.
var allowedFrom = map[Action][]repository.ApplicationStatus{
	ActionSaveDraft: {repository.StatusDraft},
	ActionSubmit:    {repository.StatusDraft},
	ActionApprove:   {repository.StatusPending},
	ActionRemand:    {repository.StatusPending},
	ActionDelete:    {repository.StatusDraft, repository.StatusPending},
}

// IsActionAllowed reports whether action may run from status.
func IsActionAllowed(status repository.ApplicationStatus, action Action) bool {
	for _, s := range allowedFrom[action] {
		if s == status {
			return true
		}
	}
	return false
}

// checkTransition rejects any action on a withdrawn application and any
// (status, action) pair outside the table with InvalidState.
func checkTransition(app *repository.Application, action Action) error {
	if app.Withdrawn() {
		return errors.InvalidState(fmt.Sprintf("application %d has been withdrawn", app.ID))
	}
	if !IsActionAllowed(app.Status, action) {
		return errors.InvalidState(fmt.Sprintf("cannot %s an application in status %s", actionVerb(action), app.Status))
	}
	return nil
}

func actionVerb(a Action) string {
	switch a {
	case ActionSaveDraft:
		return "edit"
	case ActionSubmit:
		return "submit"
	default:
		return string(a)
	}
}

// editAction maps the target status of an edit onto its action.
func editAction(target repository.ApplicationStatus) Action {
	if target == repository.StatusPending {
		return ActionSubmit
	}
	return ActionSaveDraft
}
