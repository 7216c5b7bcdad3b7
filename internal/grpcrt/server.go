package grpcrt

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/reqid"
)

// Server exposes a dal.Executor as the EntityExecutor service. Messages are
// dynamic, so one Server serves any entity catalog.
type Server struct {
	reg      Registry
	provider entity.Provider
	exec     dal.Executor
	codec    *recordCodec
	logger   *zap.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger reporting failed calls.
func WithServerLogger(l *zap.Logger) ServerOption { return func(s *Server) { s.logger = l } }

func NewServer(reg Registry, provider entity.Provider, exec dal.Executor, opts ...ServerOption) *Server {
	s := &Server{
		reg:      reg,
		provider: provider,
		exec:     exec,
		codec:    &recordCodec{reg: reg, provider: provider},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the service to gs.
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	gs.RegisterService(s.ServiceDesc(), s)
}

// ServiceDesc describes the service with one unary handler per method.
func (s *Server) ServiceDesc() *grpc.ServiceDesc {
	sd := s.reg.Service()
	desc := &grpc.ServiceDesc{
		ServiceName: string(sd.FullName()),
		HandlerType: (*any)(nil),
		Metadata:    sd.ParentFile().Path(),
	}
	methods := sd.Methods()
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: string(md.Name()),
			Handler:    s.handler(md),
		})
	}
	return desc
}

func (s *Server) handler(md protoreflect.MethodDescriptor) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := fmt.Sprintf("/%s/%s", md.Parent().FullName(), md.Name())
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := dynamicpb.NewMessage(md.Input())
		if err := dec(in); err != nil {
			return nil, err
		}
		handle := func(ctx context.Context, req any) (any, error) {
			return s.Handle(ctx, md, req.(protoreflect.ProtoMessage).ProtoReflect())
		}
		if interceptor == nil {
			return handle(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handle)
	}
}

// Handle runs one call. Errors are gRPC status errors.
func (s *Server) Handle(ctx context.Context, md protoreflect.MethodDescriptor, req protoreflect.Message) (*dynamicpb.Message, error) {
	if incoming, ok := metadata.FromIncomingContext(ctx); ok {
		if v := incoming.Get(MetadataRequestID); len(v) > 0 {
			if id, ok := reqid.Parse(v[0]); ok {
				ctx = reqid.WithID(ctx, id)
			}
		}
	}

	entityName, op, ok := s.reg.Operation(md.FullName())
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown method %s", md.FullName())
	}
	def, err := s.provider.Definition(entityName)
	if err != nil {
		return nil, status.Error(codes.Unimplemented, err.Error())
	}

	res, err := s.handle(ctx, md, op, def, req)
	if err != nil {
		s.logger.Debug("executor call failed",
			zap.String("method", string(md.Name())),
			zap.Error(err))
		return nil, toStatus(err)
	}
	return res, nil
}

func (s *Server) handle(ctx context.Context, md protoreflect.MethodDescriptor, op Operation, def *entity.Definition, req protoreflect.Message) (*dynamicpb.Message, error) {
	in := md.Input().Fields()
	out := dynamicpb.NewMessage(md.Output())
	outFields := md.Output().Fields()

	if op == OpSearch {
		crit, err := DecodeCriteria(req.Get(in.ByName(FieldCriteria)).Bytes())
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		res, err := s.exec.Search(ctx, def, crit)
		if err != nil {
			return nil, err
		}
		out.Set(outFields.ByName(FieldTotal), protoreflect.ValueOfInt64(int64(res.Total)))
		records := out.Mutable(outFields.ByName(FieldRecords)).List()
		for _, rec := range res.Elements {
			el := records.NewElement()
			if err := s.codec.encode(def, rec, el.Message()); err != nil {
				return nil, err
			}
			records.Append(el)
		}
		aggs, err := EncodeAggregations(res.Aggregations)
		if err != nil {
			return nil, err
		}
		if len(aggs) > 0 {
			out.Set(outFields.ByName(FieldAggregations), protoreflect.ValueOfBytes(aggs))
		}
		return out, nil
	}

	list := req.Get(in.ByName(FieldRecords)).List()
	payloads := make([]map[string]any, list.Len())
	for i := range payloads {
		rec, err := s.codec.decode(def, list.Get(i).Message())
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		payloads[i] = rec
	}

	var ids []string
	var err error
	switch op {
	case OpCreate:
		ids, err = s.exec.Create(ctx, def, payloads)
	case OpUpdate:
		ids, err = s.exec.Update(ctx, def, payloads)
	case OpDelete:
		ids, err = s.exec.Delete(ctx, def, payloads)
	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown operation %s", op)
	}
	if err != nil {
		return nil, err
	}
	idList := out.Mutable(outFields.ByName(FieldIDs)).List()
	for _, id := range ids {
		idList.Append(protoreflect.ValueOfString(id))
	}
	return out, nil
}
