package grpcserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/unison-payments/internal/api"
	"github.com/example/unison-payments/internal/auth"
	perr "github.com/example/unison-payments/pkg/errors"
)

const ServiceName = "payments.v1.PaymentsService"

// PaymentsServiceServer mirrors the HTTP surface. Bodies are Structs holding
// the same JSON documents the HTTP handlers accept and return.
type PaymentsServiceServer interface {
	RegisterInstrument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInstrument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessWebhook(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type PaymentsServer struct {
	Payments        api.Coordinator
	RequireApproval bool
	Logger          *slog.Logger
}

var _ PaymentsServiceServer = (*PaymentsServer)(nil)

func (s *PaymentsServer) RegisterInstrument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var p api.InstrumentPayload
	if err := fromStruct(in, &p); err != nil {
		return nil, s.toStatus(err)
	}
	if err := p.Normalize(); err != nil {
		return nil, s.toStatus(err)
	}
	inst, err := s.Payments.RegisterInstrument(ctx, p.Instrument(), p.Token)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]any{"ok": true, "instrument": inst})
}

func (s *PaymentsServer) GetInstrument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := stringArg(in, "instrument_id")
	if id == "" {
		return nil, s.toStatus(perr.Validation("instrument_id is required"))
	}
	inst, err := s.Payments.GetInstrument(ctx, id)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]any{"ok": true, "instrument": inst})
}

func (s *PaymentsServer) CreateTransaction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var p api.TransactionPayload
	if err := fromStruct(in, &p); err != nil {
		return nil, s.toStatus(err)
	}
	if err := p.Normalize(); err != nil {
		return nil, s.toStatus(err)
	}
	if err := api.CheckApproval(s.RequireApproval, p.AuthorizationContext); err != nil {
		return nil, s.toStatus(err)
	}
	txn, err := s.Payments.CreateTransaction(ctx, p.Request())
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]any{"ok": true, "transaction": txn})
}

func (s *PaymentsServer) GetTransaction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := stringArg(in, "txn_id")
	if id == "" {
		return nil, s.toStatus(perr.Validation("txn_id is required"))
	}
	txn, err := s.Payments.GetTransactionStatus(ctx, id)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]any{"ok": true, "transaction": txn})
}

// ProcessWebhook takes {"provider", "payload" | "raw_body", "signature"}.
// raw_body wins when both are present since signatures cover the exact bytes.
func (s *PaymentsServer) ProcessWebhook(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw := stringArg(in, "raw_body")
	if raw == "" {
		if v, ok := in.GetFields()["payload"]; ok {
			b, err := protojson.Marshal(v)
			if err != nil {
				return nil, s.toStatus(perr.Wrap(perr.CodeValidation, "invalid webhook payload", err))
			}
			raw = string(b)
		}
	}
	payload := api.WebhookPayload([]byte(raw), stringArg(in, "signature"))

	txn, err := s.Payments.ProcessWebhook(ctx, stringArg(in, "provider"), payload)
	if err != nil {
		switch perr.CodeOf(err) {
		case perr.CodeUnknownProvider, perr.CodeNotFound:
			return nil, s.toStatus(err)
		default:
			return nil, status.Error(codes.InvalidArgument, "webhook processing failed: "+perr.Message(err))
		}
	}
	return toStruct(map[string]any{"ok": true, "transaction": txn})
}

func (s *PaymentsServer) toStatus(err error) error {
	code := CodeFor(err)
	if code == codes.Internal {
		log := s.Logger
		if log == nil {
			log = slog.Default()
		}
		log.Error("payments rpc failed", "err", err)
		if perr.CodeOf(err) == "" {
			return status.Error(code, "internal error")
		}
	}
	return status.Error(code, perr.Message(err))
}

// CodeFor maps an error code to its gRPC status code.
func CodeFor(err error) codes.Code {
	switch perr.CodeOf(err) {
	case perr.CodeValidation:
		return codes.InvalidArgument
	case perr.CodeUnauthorized:
		return codes.Unauthenticated
	case perr.CodeForbidden:
		return codes.PermissionDenied
	case perr.CodeNotFound, perr.CodeUnknownProvider:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// fromStruct goes through JSON so the payload types and their decimal
// amounts decode exactly as they do over HTTP.
func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return perr.Wrap(perr.CodeValidation, "invalid request body", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return perr.Wrap(perr.CodeValidation, "invalid request body", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func stringArg(in *structpb.Struct, key string) string {
	return strings.TrimSpace(in.GetFields()[key].GetStringValue())
}

// AuthInterceptor verifies the baton from "authorization" or
// "x-context-baton" metadata. ProcessWebhook is exempt like its HTTP twin.
func AuthInterceptor(v *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == "/"+ServiceName+"/ProcessWebhook" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		raw := auth.TokenFrom(first(md, "authorization"), first(md, strings.ToLower(auth.BatonHeader)))
		ctx, err := v.Authenticate(ctx, raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, perr.Message(err))
		}
		return handler(ctx, req)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func RegisterPaymentsServer(s grpc.ServiceRegistrar, srv PaymentsServiceServer) {
	s.RegisterService(&PaymentsServiceDesc, srv)
}

type unaryCall func(PaymentsServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PaymentsServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(PaymentsServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

var PaymentsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PaymentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterInstrument", Handler: unaryHandler("RegisterInstrument", PaymentsServiceServer.RegisterInstrument)},
		{MethodName: "GetInstrument", Handler: unaryHandler("GetInstrument", PaymentsServiceServer.GetInstrument)},
		{MethodName: "CreateTransaction", Handler: unaryHandler("CreateTransaction", PaymentsServiceServer.CreateTransaction)},
		{MethodName: "GetTransaction", Handler: unaryHandler("GetTransaction", PaymentsServiceServer.GetTransaction)},
		{MethodName: "ProcessWebhook", Handler: unaryHandler("ProcessWebhook", PaymentsServiceServer.ProcessWebhook)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payments/v1/payments.proto",
}
