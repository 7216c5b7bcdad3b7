package grpcrt

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
)

// remoteError keeps the message reported by the remote executor and unwraps
// to the matching local sentinel.
type remoteError struct {
	msg   string
	cause error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.cause }

// toStatus maps executor errors to gRPC status errors. Validation errors
// carry their violations as a Struct detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var verr *criteria.ValidationError
	switch {
	case errors.Is(err, dal.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, dal.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &verr):
		st := status.New(codes.InvalidArgument, err.Error())
		if details, derr := structpb.NewStruct(verr.Extensions()); derr == nil {
			if withDetails, werr := st.WithDetails(details); werr == nil {
				st = withDetails
			}
		}
		return st.Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus reverses toStatus.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return &remoteError{msg: st.Message(), cause: dal.ErrNotFound}
	case codes.AlreadyExists:
		return &remoteError{msg: st.Message(), cause: dal.ErrConflict}
	case codes.InvalidArgument:
		for _, d := range st.Details() {
			s, ok := d.(*structpb.Struct)
			if !ok {
				continue
			}
			if verr := violations(s); verr != nil {
				return verr
			}
		}
	}
	return &remoteError{msg: st.Message(), cause: err}
}

func violations(s *structpb.Struct) *criteria.ValidationError {
	list := s.GetFields()["violations"].GetListValue()
	if list == nil {
		return nil
	}
	verr := &criteria.ValidationError{}
	for _, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		verr.Violations = append(verr.Violations, criteria.Violation{
			Path:    fields["path"].GetStringValue(),
			Message: fields["message"].GetStringValue(),
		})
	}
	return verr
}
