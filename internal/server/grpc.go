package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/pipeline"
)

// gRPC names of the parse service.
const (
	ServiceName = "statement.v1.StatementParser"
	ParseMethod = "/" + ServiceName + "/Parse"
	// FileNameMetadata optionally names the uploaded document.
	FileNameMetadata = "x-file-name"
)

// StatementParserServer is the gRPC parse service.
type StatementParserServer interface {
	Parse(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// StatementParserServiceDesc describes the service for grpc.Server.RegisterService.
var StatementParserServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatementParserServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Parse", Handler: parseHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "statement/v1/statement.proto",
}

func parseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatementParserServer).Parse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ParseMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatementParserServer).Parse(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ParseService implements StatementParserServer on top of a Parser.
type ParseService struct {
	parser  Parser
	history History
	logger  *slog.Logger
}

func NewParseService(parser Parser, history History, logger *slog.Logger) *ParseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseService{parser: parser, history: history, logger: logger}
}

// Parse returns the success envelope as a Struct. Failures never produce an
// error envelope; they come back as gRPC status errors mapped from AppError codes.
func (s *ParseService) Parse(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	data := req.GetValue()
	if len(data) == 0 {
		return nil, common.InvalidArgumentError("document bytes are required")
	}
	name := "upload.pdf"
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(FileNameMetadata); len(v) > 0 && v[0] != "" {
			name = filepath.Base(v[0])
		}
	}
	id := uuid.NewString()
	ctx = common.WithRequestID(ctx, id)
	logger := s.logger.With("request_id", id)
	ctx = common.WithLogger(ctx, logger)

	res, err := s.parser.ProcessBytes(ctx, name, data)
	if err != nil {
		logger.Error("server.grpc.parse_failed", "file_name", name, "error", err)
		return nil, common.GRPCStatus(err)
	}
	resp := pipeline.Success(res)
	if s.history != nil {
		if _, err := s.history.Record(ctx, name, data, *resp.Data); err != nil {
			logger.Error("server.history.save_failed", "file_name", name, "error", err)
		}
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	logger.Info("server.grpc.parse_ok", "file_name", name, "bank", resp.Data.Bank)
	return out, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return structpb.NewStruct(m)
}

// recoverUnary converts handler panics into Internal errors.
func recoverUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("server.grpc.panic", "method", info.FullMethod, "panic", rec)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// NewGRPCServer returns a server with the parse and health services registered.
func NewGRPCServer(svc *ParseService, maxRecvBytes int64, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(recoverUnary(logger))}
	if maxRecvBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(int(maxRecvBytes)+1024))
	}
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&StatementParserServiceDesc, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return gs, hs
}
