package errutil

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcCodes = map[CoreStatus]codes.Code{
	StatusBadRequest:           codes.InvalidArgument,
	StatusValidationFailed:     codes.InvalidArgument,
	StatusUnsupportedMediaType: codes.InvalidArgument,
	StatusUnauthorized:         codes.Unauthenticated,
	StatusForbidden:            codes.PermissionDenied,
	StatusNotFound:             codes.NotFound,
	StatusConflict:             codes.AlreadyExists,
	StatusUnprocessableEntity:  codes.FailedPrecondition,
	StatusTooManyRequests:      codes.ResourceExhausted,
	StatusClientClosedRequest:  codes.Canceled,
	StatusNotImplemented:       codes.Unimplemented,
	StatusBadGateway:           codes.Unavailable,
	StatusServiceUnavailable:   codes.Unavailable,
	StatusTimeout:              codes.DeadlineExceeded,
	StatusGatewayTimeout:       codes.DeadlineExceeded,
	StatusInternal:             codes.Internal,
}

// GRPCCode returns codes.Unknown for statuses without a gRPC counterpart.
func (s CoreStatus) GRPCCode() codes.Code {
	if c, ok := grpcCodes[s]; ok {
		return c
	}
	return codes.Unknown
}

// ToGRPCError turns a domain error into a status error. Only the public
// message of a BaseError crosses the wire; the wrapped cause stays server side.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if errors.As(err, &base) {
		return status.Error(base.Code.GRPCCode(), base.Message)
	}

	return status.Error(codes.Internal, "internal error")
}

// UnaryServerInterceptor maps handler errors through ToGRPCError.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, convert(info.FullMethod, err)
		}
		return resp, nil
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := handler(srv, ss); err != nil {
			return convert(info.FullMethod, err)
		}
		return nil
	}
}

func convert(method string, err error) error {
	out := ToGRPCError(err)
	if status.Code(out) == codes.Internal || status.Code(out) == codes.Unknown {
		zap.L().Error("grpc handler failed", zap.String("method", method), zap.Error(err))
	}
	return out
}
