package repository

import (
	"time"

	"github.com/pesio-ai/be-hr-leave-applications/internal/formvalue"
)

// ── Domain types for applications and approval steps ─────────────────────────

// ApplicationStatus is the persisted status of an application. A remanded
// application is stored as draft; see Application.Remanded.
type ApplicationStatus string

const (
	StatusDraft    ApplicationStatus = "draft"
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
)

// Valid reports whether s is a persisted status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved:
		return true
	}
	return false
}

// StepStatus is the status of one approval step.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRemanded StepStatus = "REMANDED"
)

// Application is one drafted or submitted request.
type Application struct {
	ID          int64             `json:"id"`
	ApplicantID int64             `json:"applicant_id"`
	TemplateID  int64             `json:"template_id"`
	Status      ApplicationStatus `json:"status"`
	CurrentStep *int              `json:"current_step,omitempty"` // set only while pending
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`

	// Remanded is derived on read: a draft with at least one REMANDED step.
	Remanded bool `json:"remanded"`
}

// Withdrawn reports whether the application was soft-deleted.
func (a *Application) Withdrawn() bool { return a.DeletedAt != nil }

// ApplicationValue is one answered template field.
type ApplicationValue struct {
	ApplicationID int64           `json:"application_id"`
	SortOrder     int             `json:"sort_order"`
	Value         formvalue.Value `json:"value"`
}

// ApprovalStep is one position in an application's approval chain.
type ApprovalStep struct {
	ID            int64      `json:"id"`
	ApplicationID int64      `json:"application_id"`
	StepOrder     int        `json:"step_order"`
	ApproverID    int64      `json:"approver_id"`
	Status        StepStatus `json:"status"`
	Comment       *string    `json:"comment,omitempty"`
	ActedAt       *time.Time `json:"acted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PendingApproval is a worklist row: a step awaiting the approver together
// with the application summary.
type PendingApproval struct {
	Step         ApprovalStep `json:"step"`
	ApplicantID  int64        `json:"applicant_id"`
	TemplateID   int64        `json:"template_id"`
	TemplateName string       `json:"template_name"`
	SubmittedAt  *time.Time   `json:"submitted_at,omitempty"`
}

// RouteStep is one entry of a template's approval route.
type RouteStep struct {
	StepOrder  int   `json:"step_order"`
	ApproverID int64 `json:"approver_id"`
}

// Audit actions.
const (
	AuditCreated   = "created"
	AuditSubmitted = "submitted"
	AuditSaved     = "saved"
	AuditApproved  = "approved"
	AuditRemanded  = "remanded"
	AuditWithdrawn = "withdrawn"
	AuditDeleted   = "deleted"
)

// AuditEntry is one immutable record in the approval audit log. Unlike the
// approval steps it survives resubmission and hard deletion.
type AuditEntry struct {
	ID            int64             `json:"id"`
	ApplicationID int64             `json:"application_id"`
	StepID        *int64            `json:"step_id,omitempty"`
	StepOrder     *int              `json:"step_order,omitempty"`
	Action        string            `json:"action"`
	PerformedBy   int64             `json:"performed_by"`
	PerformedAt   time.Time         `json:"performed_at"`
	StatusBefore  ApplicationStatus `json:"status_before,omitempty"`
	StatusAfter   ApplicationStatus `json:"status_after,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}
