package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-hr-leave-applications/internal/repository"
	"github.com/pesio-ai/be-hr-leave-applications/internal/service"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/auth"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "leave.v1.ApplicationService"

// CodecName is the content subtype clients select with
// grpc.CallContentSubtype.
const CodecName = "json"

// jsonCodec carries the plain Go request and reply structs below as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ── Messages ──────────────────────────────────────────────────────────────────

type CreateApplicationRequest struct {
	TemplateID int64                   `json:"template_id"`
	Status     string                  `json:"status"`
	Values     []service.ValueInput    `json:"values"`
	Approvers  []service.ApproverInput `json:"approvers,omitempty"`
}

type EditApplicationRequest struct {
	ID         int64                `json:"id"`
	TemplateID int64                `json:"template_id"`
	Status     string               `json:"status"`
	Values     []service.ValueInput `json:"values"`
}

type IDRequest struct {
	ID int64 `json:"id"`
}

type ListApplicationsRequest struct {
	Status string `json:"status,omitempty"`
}

type ListApplicationsResponse struct {
	Applications []*repository.Application `json:"applications"`
}

type HistoryResponse struct {
	History []*repository.AuditEntry `json:"history"`
}

type ActOnStepRequest struct {
	StepID  int64   `json:"step_id"`
	Action  string  `json:"action"`
	Comment *string `json:"comment,omitempty"`
}

type ListApprovalsResponse struct {
	Approvals []*repository.PendingApproval `json:"approvals"`
}

type RemainingLeaveResponse struct {
	UserID              int64  `json:"user_id"`
	RemainingLeaveHours string `json:"remaining_leave_hours"`
}

type Empty struct{}

// ApplicationServiceServer is the server side of leave.v1.ApplicationService.
type ApplicationServiceServer interface {
	CreateApplication(context.Context, *CreateApplicationRequest) (*repository.Application, error)
	GetApplication(context.Context, *IDRequest) (*service.ApplicationDetail, error)
	EditApplication(context.Context, *EditApplicationRequest) (*Empty, error)
	DeleteApplication(context.Context, *IDRequest) (*Empty, error)
	ListApplications(context.Context, *ListApplicationsRequest) (*ListApplicationsResponse, error)
	GetApprovalHistory(context.Context, *IDRequest) (*HistoryResponse, error)
	ListPendingApprovals(context.Context, *Empty) (*ListApprovalsResponse, error)
	GetApprovalDetail(context.Context, *IDRequest) (*service.ApprovalDetail, error)
	ActOnStep(context.Context, *ActOnStepRequest) (*repository.ApprovalStep, error)
	GetRemainingLeave(context.Context, *Empty) (*RemainingLeaveResponse, error)
}

// ServiceDesc describes leave.v1.ApplicationService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApplicationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateApplication", ApplicationServiceServer.CreateApplication),
		unary("GetApplication", ApplicationServiceServer.GetApplication),
		unary("EditApplication", ApplicationServiceServer.EditApplication),
		unary("DeleteApplication", ApplicationServiceServer.DeleteApplication),
		unary("ListApplications", ApplicationServiceServer.ListApplications),
		unary("GetApprovalHistory", ApplicationServiceServer.GetApprovalHistory),
		unary("ListPendingApprovals", ApplicationServiceServer.ListPendingApprovals),
		unary("GetApprovalDetail", ApplicationServiceServer.GetApprovalDetail),
		unary("ActOnStep", ApplicationServiceServer.ActOnStep),
		unary("GetRemainingLeave", ApplicationServiceServer.GetRemainingLeave),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "leave/v1/application_service.proto",
}

func unary[Req, Resp any](name string, call func(ApplicationServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ApplicationServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// RegisterApplicationServiceServer registers srv on s.
func RegisterApplicationServiceServer(s grpc.ServiceRegistrar, srv ApplicationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ── Handler ───────────────────────────────────────────────────────────────────

// GRPCHandler implements ApplicationServiceServer
type GRPCHandler struct {
	applications *service.ApplicationService
	approvals    *service.ApprovalService
	logger       zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(applications *service.ApplicationService, approvals *service.ApprovalService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		applications: applications,
		approvals:    approvals,
		logger:       logger.With().Str("handler", "grpc").Logger(),
	}
}

// userID extracts the authenticated user ID from context.
func userID(ctx context.Context) (int64, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return 0, mapErrorToGRPC(err)
	}
	return uc.UserID, nil
}

func (h *GRPCHandler) CreateApplication(ctx context.Context, req *CreateApplicationRequest) (*repository.Application, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	app, err := h.applications.CreateApplication(ctx, &service.CreateApplicationRequest{
		ApplicantID: actor,
		TemplateID:  req.TemplateID,
		Status:      repository.ApplicationStatus(req.Status),
		Values:      req.Values,
		Approvers:   req.Approvers,
	})
	if err != nil {
		return nil, h.fail("CreateApplication", err)
	}
	return app, nil
}

func (h *GRPCHandler) GetApplication(ctx context.Context, req *IDRequest) (*service.ApplicationDetail, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	detail, err := h.applications.GetApplicationDetail(ctx, req.ID, actor)
	if err != nil {
		return nil, h.fail("GetApplication", err)
	}
	return detail, nil
}

func (h *GRPCHandler) EditApplication(ctx context.Context, req *EditApplicationRequest) (*Empty, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	err = h.applications.EditApplication(ctx, &service.EditApplicationRequest{
		ApplicationID: req.ID,
		ActorID:       actor,
		TemplateID:    req.TemplateID,
		Status:        repository.ApplicationStatus(req.Status),
		Values:        req.Values,
	})
	if err != nil {
		return nil, h.fail("EditApplication", err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) DeleteApplication(ctx context.Context, req *IDRequest) (*Empty, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.applications.DeleteApplication(ctx, req.ID, actor); err != nil {
		return nil, h.fail("DeleteApplication", err)
	}
	return &Empty{}, nil
}

func (h *GRPCHandler) ListApplications(ctx context.Context, req *ListApplicationsRequest) (*ListApplicationsResponse, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := h.applications.ListApplications(ctx, actor, req.Status)
	if err != nil {
		return nil, h.fail("ListApplications", err)
	}
	return &ListApplicationsResponse{Applications: apps}, nil
}

func (h *GRPCHandler) GetApprovalHistory(ctx context.Context, req *IDRequest) (*HistoryResponse, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := h.applications.GetApprovalHistory(ctx, req.ID, actor)
	if err != nil {
		return nil, h.fail("GetApprovalHistory", err)
	}
	return &HistoryResponse{History: entries}, nil
}

func (h *GRPCHandler) ListPendingApprovals(ctx context.Context, _ *Empty) (*ListApprovalsResponse, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := h.approvals.ListPendingApprovals(ctx, actor)
	if err != nil {
		return nil, h.fail("ListPendingApprovals", err)
	}
	return &ListApprovalsResponse{Approvals: pending}, nil
}

func (h *GRPCHandler) GetApprovalDetail(ctx context.Context, req *IDRequest) (*service.ApprovalDetail, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	detail, err := h.approvals.GetApprovalDetail(ctx, req.ID, actor)
	if err != nil {
		return nil, h.fail("GetApprovalDetail", err)
	}
	return detail, nil
}

func (h *GRPCHandler) ActOnStep(ctx context.Context, req *ActOnStepRequest) (*repository.ApprovalStep, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	step, err := h.approvals.ActOnStep(ctx, &service.ActOnStepRequest{
		StepID:  req.StepID,
		ActorID: actor,
		Action:  req.Action,
		Comment: req.Comment,
	})
	if err != nil {
		return nil, h.fail("ActOnStep", err)
	}
	return step, nil
}

func (h *GRPCHandler) GetRemainingLeave(ctx context.Context, _ *Empty) (*RemainingLeaveResponse, error) {
	actor, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	hours, err := h.applications.GetRemainingLeave(ctx, actor)
	if err != nil {
		return nil, h.fail("GetRemainingLeave", err)
	}
	return &RemainingLeaveResponse{UserID: actor, RemainingLeaveHours: hours.String()}, nil
}

func (h *GRPCHandler) fail(method string, err error) error {
	if errors.CodeOf(err) == errors.ErrCodeInternal {
		h.logger.Error().Err(err).Str("method", method).Msg("gRPC call failed")
	}
	return mapErrorToGRPC(err)
}

// ── Interceptors and error mapping ───────────────────────────────────────────

// AuthInterceptor verifies the bearer token in the "authorization" metadata
// and stores the caller on the context. Health checks are exempt.
func AuthInterceptor(v *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}
		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				header = vals[0]
			}
		}
		uc, err := v.VerifyHeader(header)
		if err != nil {
			return nil, mapErrorToGRPC(err)
		}
		return handler(auth.WithUserContext(ctx, uc), req)
	}
}

// mapErrorToGRPC converts a service error into a gRPC status error.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	var e *errors.Error
	if errors.As(err, &e) {
		msg = e.Message
		if len(e.Fields) > 0 {
			parts := make([]string, 0, len(e.Fields))
			for _, f := range e.Fields {
				parts = append(parts, f.Field+": "+f.Message)
			}
			msg += " (" + strings.Join(parts, "; ") + ")"
		}
	}

	if errors.IsRetryable(err) {
		return status.Error(codes.Unavailable, "temporarily unavailable, retry")
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, msg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.Aborted, msg)
	case errors.ErrCodeInvalidState:
		return status.Error(codes.FailedPrecondition, msg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
