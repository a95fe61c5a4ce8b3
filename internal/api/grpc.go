package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"tradewise/internal/engine"
	"tradewise/internal/httpapi"
	"tradewise/internal/store"
	"tradewise/pkg/tradewise"
)

// BacktestServiceName is the fully-qualified gRPC service name. Messages are
// google.protobuf.Struct values carrying the same JSON documents as the HTTP
// API.
const BacktestServiceName = "tradewise.v1.BacktestService"

// BacktestServer is the server API for BacktestService.
type BacktestServer interface {
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBacktests(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// BacktestServiceDesc describes BacktestService for grpc.Server.RegisterService.
var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunBacktest", Handler: unaryHandler("RunBacktest", BacktestServer.RunBacktest)},
		{MethodName: "GetBacktest", Handler: unaryHandler("GetBacktest", BacktestServer.GetBacktest)},
		{MethodName: "ListBacktests", Handler: unaryHandler("ListBacktests", BacktestServer.ListBacktests)},
		{MethodName: "ListStrategies", Handler: unaryHandler("ListStrategies", BacktestServer.ListStrategies)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tradewise/v1/backtest.proto",
}

type unaryMethod func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + BacktestServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BacktestServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BacktestServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Compile-time interface check.
var _ BacktestServer = (*BacktestService)(nil)

// BacktestService implements BacktestServer on top of the engine.
type BacktestService struct {
	engine *engine.Engine
	log    *slog.Logger
}

// NewBacktestService creates a BacktestService.
func NewBacktestService(eng *engine.Engine, log *slog.Logger) *BacktestService {
	if log == nil {
		log = slog.Default()
	}
	return &BacktestService{engine: eng, log: log.With("component", "grpc")}
}

// RunBacktest runs a backtest described by a BacktestRequest document.
func (s *BacktestService) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body tradewise.BacktestRequest
	if err := fromStruct(in, &body); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	req, err := httpapi.RequestFromWire(body)
	if err != nil {
		return nil, s.statusError(err)
	}
	run, err := s.engine.Run(ctx, req)
	if err != nil {
		return nil, s.statusError(err)
	}
	return toStruct(httpapi.RunToWire(run))
}

// GetBacktest returns the stored run named by the "id" field.
func (s *BacktestService) GetBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	run, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, s.statusError(err)
	}
	return toStruct(httpapi.RunToWire(run))
}

// ListBacktests returns stored runs filtered by the optional "strategy",
// "symbol" and "limit" fields.
func (s *BacktestService) ListBacktests(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	limit, err := listLimit(fields["limit"])
	if err != nil {
		return nil, err
	}
	f := store.RunFilter{
		Strategy: fields["strategy"].GetStringValue(),
		Symbol:   fields["symbol"].GetStringValue(),
		Limit:    limit,
	}
	runs, err := s.engine.List(ctx, f)
	if err != nil {
		return nil, s.statusError(err)
	}
	out := tradewise.RunList{Runs: make([]tradewise.RunSummary, len(runs))}
	for i := range runs {
		out.Runs[i] = httpapi.RunSummaryToWire(&runs[i])
	}
	return toStruct(out)
}

// listLimit reads an optional limit. Struct numbers are doubles, so anything
// that is not a whole number in int32 range is rejected.
func listLimit(v *structpb.Value) (int, error) {
	n := v.GetNumberValue()
	if math.IsNaN(n) || n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
		return 0, status.Errorf(codes.InvalidArgument, "limit must be a non-negative integer, got %v", n)
	}
	return int(n), nil
}

// ListStrategies returns every strategy family and preset.
func (s *BacktestService) ListStrategies(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(tradewise.StrategyList{Strategies: httpapi.StrategiesToWire(s.engine.Strategies())})
}

func (s *BacktestService) statusError(err error) error {
	code := CodeFor(err)
	if code == codes.Internal {
		s.log.Error("request failed", "error", err)
	}
	return status.Error(code, err.Error())
}

// CodeFor returns the gRPC status code for an engine error.
func CodeFor(err error) codes.Code {
	switch {
	case engine.IsInvalid(err):
		return codes.InvalidArgument
	case engine.IsNotFound(err):
		return codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, engine.ErrPoolClosed):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// BacktestClient is a typed client for BacktestService.
type BacktestClient struct {
	cc grpc.ClientConnInterface
}

// NewBacktestClient wraps a client connection.
func NewBacktestClient(cc grpc.ClientConnInterface) *BacktestClient {
	return &BacktestClient{cc: cc}
}

// RunBacktest runs a backtest on the server.
func (c *BacktestClient) RunBacktest(ctx context.Context, req tradewise.BacktestRequest, opts ...grpc.CallOption) (*tradewise.BacktestRun, error) {
	var run tradewise.BacktestRun
	if err := c.invoke(ctx, "RunBacktest", req, &run, opts...); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetBacktest fetches a stored run.
func (c *BacktestClient) GetBacktest(ctx context.Context, id string, opts ...grpc.CallOption) (*tradewise.BacktestRun, error) {
	var run tradewise.BacktestRun
	if err := c.invoke(ctx, "GetBacktest", map[string]any{"id": id}, &run, opts...); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListBacktests lists stored runs, newest first.
func (c *BacktestClient) ListBacktests(ctx context.Context, o tradewise.ListOptions, opts ...grpc.CallOption) ([]tradewise.RunSummary, error) {
	in := map[string]any{"strategy": o.Strategy, "symbol": o.Symbol, "limit": o.Limit}
	var list tradewise.RunList
	if err := c.invoke(ctx, "ListBacktests", in, &list, opts...); err != nil {
		return nil, err
	}
	return list.Runs, nil
}

// ListStrategies lists strategy families and presets.
func (c *BacktestClient) ListStrategies(ctx context.Context, opts ...grpc.CallOption) ([]tradewise.StrategyInfo, error) {
	var list tradewise.StrategyList
	if err := c.invoke(ctx, "ListStrategies", map[string]any{}, &list, opts...); err != nil {
		return nil, err
	}
	return list.Strategies, nil
}

func (c *BacktestClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+BacktestServiceName+"/"+method, req, resp, opts...); err != nil {
		return err
	}
	return fromStruct(resp, out)
}

// toStruct converts a JSON-serialisable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("converting %T to struct: %w", v, err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, out any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
