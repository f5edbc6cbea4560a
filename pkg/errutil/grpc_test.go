package errutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestToGRPCErrorHidesCause(t *testing.T) {
	err := ToGRPCError(UnprocessableEntity("Stripe Connect account not ready", errors.New("dial tcp: refused")))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Equal(t, "Stripe Connect account not ready", st.Message())

	st, _ = status.FromError(ToGRPCError(errors.New("pq: relation missing")))
	require.Equal(t, codes.Internal, st.Code())
	require.NotContains(t, st.Message(), "pq")

	require.Equal(t, codes.Canceled, status.Code(ToGRPCError(context.Canceled)))
	require.Equal(t, codes.Unknown, CoreStatus("made_up").GRPCCode())
}

func TestUnaryServerInterceptor(t *testing.T) {
	intercept := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, Conflict("User already has an open payout", nil)
	})
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	resp, err := intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
}

func TestStreamServerInterceptor(t *testing.T) {
	intercept := StreamServerInterceptor()
	err := intercept(nil, nil, &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}, func(srv any, ss grpc.ServerStream) error {
		return New(StatusNotImplemented, "watch is not supported")
	})
	require.Equal(t, codes.Unimplemented, status.Code(err))
}
