package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/peertrade/escrow-core/internal/application"
	"github.com/peertrade/escrow-core/internal/domain"
)

type EscrowInternalService interface {
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPoints(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReconcilePoints(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QuoteFee(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignDispute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveDispute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type EscrowInternalServer struct {
	service *application.Service
}

func NewEscrowInternalServer(service *application.Service) *EscrowInternalServer {
	return &EscrowInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc EscrowInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "peertrade.escrow.v1.EscrowInternalService",
		HandlerType: (*EscrowInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetBalance",
				Handler:    unaryStructHandler(svc, "GetBalance", EscrowInternalService.GetBalance),
			},
			{
				MethodName: "GetPoints",
				Handler:    unaryStructHandler(svc, "GetPoints", EscrowInternalService.GetPoints),
			},
			{
				MethodName: "ReconcilePoints",
				Handler:    unaryStructHandler(svc, "ReconcilePoints", EscrowInternalService.ReconcilePoints),
			},
			{
				MethodName: "QuoteFee",
				Handler:    unaryStructHandler(svc, "QuoteFee", EscrowInternalService.QuoteFee),
			},
			{
				MethodName: "AssignDispute",
				Handler:    unaryStructHandler(svc, "AssignDispute", EscrowInternalService.AssignDispute),
			},
			{
				MethodName: "ResolveDispute",
				Handler:    unaryStructHandler(svc, "ResolveDispute", EscrowInternalService.ResolveDispute),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "peertrade/contracts/proto/escrow/v1/escrow_internal.proto",
	}, svc)
}

func (s *EscrowInternalServer) GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	customerID, err := customerIDField(req)
	if err != nil {
		return nil, err
	}
	res, err := s.service.GetBalance(ctx, customerID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return newStruct(map[string]any{
		"customer_id": res.CustomerID.String(),
		"total":       res.Total.String(),
		"locked":      res.Locked.String(),
		"available":   res.Available.String(),
	})
}

func (s *EscrowInternalServer) GetPoints(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	customerID, err := customerIDField(req)
	if err != nil {
		return nil, err
	}
	res, err := s.service.GetPoints(ctx, customerID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return newStruct(map[string]any{
		"customer_id":  res.CustomerID.String(),
		"available":    res.Available,
		"total_earned": res.TotalEarned,
		"total_spent":  res.TotalSpent,
	})
}

func (s *EscrowInternalServer) ReconcilePoints(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	customerID, err := customerIDField(req)
	if err != nil {
		return nil, err
	}
	res, err := s.service.ReconcilePoints(ctx, customerID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return newStruct(map[string]any{
		"customer_id": res.CustomerID.String(),
		"available":   res.Available,
		"ledger_sum":  res.LedgerSum,
		"consistent":  res.Consistent,
	})
}

func (s *EscrowInternalServer) QuoteFee(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	amountVal := req.GetFields()["amount"]
	if amountVal == nil {
		return nil, status.Error(codes.InvalidArgument, "missing amount")
	}
	amount, err := decimal.NewFromString(amountVal.GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed amount")
	}
	durationHours := int(req.GetFields()["duration_hours"].GetNumberValue())

	res, err := s.service.QuoteFee(ctx, amount, durationHours)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return newStruct(map[string]any{
		"amount":         res.Amount.String(),
		"duration_hours": res.DurationHours,
		"fee":            res.Fee.String(),
		"points_reward":  res.PointsReward,
	})
}

// AssignDispute takes a pending dispute into processing on behalf of the
// moderation collaborator's adjudicator.
func (s *EscrowInternalServer) AssignDispute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	disputeID, err := uuidField(req, "dispute_id")
	if err != nil {
		return nil, err
	}
	adjudicatorID, err := uuidField(req, "adjudicator_id")
	if err != nil {
		return nil, err
	}
	actor := application.Actor{SubjectID: adjudicatorID, Role: application.RoleService}
	res, err := s.service.AssignDispute(ctx, actor, disputeID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return disputeStruct(res)
}

func (s *EscrowInternalServer) ResolveDispute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	disputeID, err := uuidField(req, "dispute_id")
	if err != nil {
		return nil, err
	}
	adjudicatorID, err := uuidField(req, "adjudicator_id")
	if err != nil {
		return nil, err
	}
	resolveReq := application.ResolveDisputeRequest{
		Outcome: req.GetFields()["outcome"].GetStringValue(),
		Notes:   req.GetFields()["notes"].GetStringValue(),
	}
	if raw := req.GetFields()["refund_amount"].GetStringValue(); raw != "" {
		refund, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			return nil, status.Error(codes.InvalidArgument, "malformed refund_amount")
		}
		resolveReq.RefundAmount = &refund
	}
	actor := application.Actor{SubjectID: adjudicatorID, Role: application.RoleService}
	res, err := s.service.ResolveDispute(ctx, actor, disputeID, resolveReq)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return disputeStruct(res)
}

func disputeStruct(res application.DisputeResponse) (*structpb.Struct, error) {
	fields := map[string]any{
		"dispute_id":       res.DisputeID.String(),
		"transaction_type": res.TransactionType,
		"transaction_id":   res.TransactionID.String(),
		"status":           res.Status,
		"outcome":          res.Outcome,
	}
	if res.AssignedTo != nil {
		fields["assigned_to"] = res.AssignedTo.String()
	}
	if res.RefundAmount != nil {
		fields["refund_amount"] = res.RefundAmount.String()
	}
	return newStruct(fields)
}

func customerIDField(req *structpb.Struct) (uuid.UUID, error) {
	return uuidField(req, "customer_id")
}

func uuidField(req *structpb.Struct, name string) (uuid.UUID, error) {
	val := req.GetFields()[name]
	if val == nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "missing %s", name)
	}
	id, err := uuid.Parse(val.GetStringValue())
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "malformed %s", name)
	}
	return id, nil
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Errorf(codes.Internal, "internal error")
	}
}

func unaryStructHandler(
	svc EscrowInternalService,
	method string,
	call func(EscrowInternalService, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(svc, ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/peertrade.escrow.v1.EscrowInternalService/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(svc, ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
