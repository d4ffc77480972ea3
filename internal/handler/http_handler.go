package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/internal/service"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/auth"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/logger"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	applications *service.ApplicationService
	approvals    *service.ApprovalService
	log          *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(applications *service.ApplicationService, approvals *service.ApprovalService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		applications: applications,
		approvals:    approvals,
		log:          log.Component("http"),
	}
}

// RegisterRoutes mounts the API on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/applications", h.Applications)
	mux.HandleFunc("/api/v1/applications/get", h.GetApplication)
	mux.HandleFunc("/api/v1/applications/update", h.UpdateApplication)
	mux.HandleFunc("/api/v1/applications/delete", h.DeleteApplication)
	mux.HandleFunc("/api/v1/applications/history", h.ApplicationHistory)
	mux.HandleFunc("/api/v1/approvals", h.ListApprovals)
	mux.HandleFunc("/api/v1/approvals/get", h.GetApproval)
	mux.HandleFunc("/api/v1/approvals/act", h.ActOnStep)
	mux.HandleFunc("/api/v1/me/remaining-leave", h.RemainingLeave)
}

type applicationBody struct {
	TemplateID int64                   `json:"template_id"`
	Status     string                  `json:"status"`
	Values     []service.ValueInput    `json:"values"`
	Approvers  []service.ApproverInput `json:"approvers,omitempty"`
}

type actBody struct {
	StepID  int64   `json:"step_id"`
	Action  string  `json:"action"`
	Comment *string `json:"comment,omitempty"`
}

// Applications lists the caller's applications (GET) or creates one (POST).
func (h *HTTPHandler) Applications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listApplications(w, r)
	case http.MethodPost:
		h.createApplication(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *HTTPHandler) listApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	apps, err := h.applications.ListApplications(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if apps == nil {
		apps = []*repository.Application{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *HTTPHandler) createApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body applicationBody
	if !h.decode(w, r, &body) {
		return
	}

	app, err := h.applications.CreateApplication(r.Context(), &service.CreateApplicationRequest{
		ApplicantID: actor,
		TemplateID:  body.TemplateID,
		Status:      repository.ApplicationStatus(body.Status),
		Values:      body.Values,
		Approvers:   body.Approvers,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// GetApplication returns one application with its template, answers and chain.
func (h *HTTPHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.queryID(w, r)
	if !ok {
		return
	}

	detail, err := h.applications.GetApplicationDetail(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateApplication edits a draft and optionally resubmits it.
func (h *HTTPHandler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.queryID(w, r)
	if !ok {
		return
	}
	var body applicationBody
	if !h.decode(w, r, &body) {
		return
	}

	err := h.applications.EditApplication(r.Context(), &service.EditApplicationRequest{
		ApplicationID: id,
		ActorID:       actor,
		TemplateID:    body.TemplateID,
		Status:        repository.ApplicationStatus(body.Status),
		Values:        body.Values,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": body.Status})
}

// DeleteApplication deletes a draft or withdraws a pending application.
func (h *HTTPHandler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.queryID(w, r)
	if !ok {
		return
	}

	if err := h.applications.DeleteApplication(r.Context(), id, actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplicationHistory returns the audit trail of one application.
func (h *HTTPHandler) ApplicationHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.queryID(w, r)
	if !ok {
		return
	}

	entries, err := h.applications.GetApprovalHistory(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*repository.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// ListApprovals returns the steps waiting on the caller.
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	pending, err := h.approvals.ListPendingApprovals(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pending == nil {
		pending = []*repository.PendingApproval{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": pending})
}

// GetApproval returns a step with its application for its approver.
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.queryID(w, r)
	if !ok {
		return
	}

	detail, err := h.approvals.GetApprovalDetail(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ActOnStep approves or remands a step.
func (h *HTTPHandler) ActOnStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body actBody
	if !h.decode(w, r, &body) {
		return
	}

	step, err := h.approvals.ActOnStep(r.Context(), &service.ActOnStepRequest{
		StepID:  body.StepID,
		ActorID: actor,
		Action:  body.Action,
		Comment: body.Comment,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// RemainingLeave returns the caller's leave balance in hours.
func (h *HTTPHandler) RemainingLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	hours, err := h.applications.GetRemainingLeave(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": actor, "remaining_leave_hours": hours.String()})
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	return uc.UserID, true
}

func (h *HTTPHandler) queryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, errors.InvalidInput("id", "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "Invalid request body"))
		return false
	}
	return true
}

type errorBody struct {
	Code    errors.ErrorCode    `json:"code"`
	Message string              `json:"message"`
	Fields  []errors.FieldError `json:"fields,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := errorBody{Code: errors.CodeOf(err), Message: err.Error()}

	var e *errors.Error
	if errors.As(err, &e) {
		body.Message = e.Message
		body.Fields = e.Fields
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
