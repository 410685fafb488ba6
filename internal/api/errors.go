package api

import (
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/huddle/internal/invite"
	"github.com/matheus3301/huddle/internal/replica"
	"github.com/matheus3301/huddle/internal/wire"
)

// toStatus maps engine errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case wire.IsValidation(err), invite.IsCapability(err):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, replica.ErrUnknownGroup):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, replica.ErrGroupNotOpen), errors.Is(err, replica.ErrNotFocused), replica.IsConsensusNotReached(err):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}

func requireGroup(group string) error {
	if group == "" {
		return grpcstatus.Error(codes.InvalidArgument, "group is required")
	}
	return nil
}
