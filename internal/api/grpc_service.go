package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/services"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.hotspot.v1.HotspotEngine"

// HotspotEngineServer is the gRPC contract. Requests and responses are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type HotspotEngineServer interface {
	ProcessBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GenerateFeatures(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GenerateHotspots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetHotspots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPatterns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// HotspotEngineServiceDesc describes HotspotEngine for grpc.Server.RegisterService.
var HotspotEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HotspotEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ProcessBatch", HotspotEngineServer.ProcessBatch),
		unaryMethod("GenerateFeatures", HotspotEngineServer.GenerateFeatures),
		unaryMethod("GenerateHotspots", HotspotEngineServer.GenerateHotspots),
		unaryMethod("GetRun", HotspotEngineServer.GetRun),
		unaryMethod("CancelRun", HotspotEngineServer.CancelRun),
		unaryMethod("GetHotspots", HotspotEngineServer.GetHotspots),
		unaryMethod("GetPatterns", HotspotEngineServer.GetPatterns),
	},
	Metadata: "mirador/hotspot/v1/hotspot.proto",
}

type unaryFunc func(HotspotEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(HotspotEngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(HotspotEngineServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// GRPCService adapts HotspotAPI to HotspotEngineServer.
type GRPCService struct {
	logger *slog.Logger
	svc    HotspotAPI
}

// NewGRPCService constructs the gRPC adapter.
func NewGRPCService(logger *slog.Logger, svc HotspotAPI) *GRPCService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCService{logger: logger, svc: svc}
}

type runIDRequest struct {
	RunID string `json:"runId"`
}

type featuresRequest struct {
	SignalID        string `json:"signalId"`
	ForceRegenerate bool   `json:"forceRegenerate"`
}

// ProcessBatch analyses a batch of signals.
func (g *GRPCService) ProcessBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in processBatchRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	res, err := g.svc.ProcessBatch(ctx, in.Signals, in.Options)
	if err != nil {
		return nil, g.grpcError("ProcessBatch", err)
	}
	return toStruct(map[string]any{"success": true, "results": res.Results, "summary": res.Summary})
}

// GenerateFeatures analyses one stored signal.
func (g *GRPCService) GenerateFeatures(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in featuresRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.SignalID == "" {
		return nil, status.Error(codes.InvalidArgument, "signalId is required")
	}
	res, reused, err := g.svc.GenerateFeatures(ctx, in.SignalID, in.ForceRegenerate)
	if err != nil {
		return nil, g.grpcError("GenerateFeatures", err)
	}
	return toStruct(map[string]any{"success": true, "reused": reused, "result": res})
}

// GenerateHotspots runs clustering, synchronously unless async is set.
func (g *GRPCService) GenerateHotspots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in generateHotspotsRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	opts := models.ClusteringOptions{
		MinClusterSize:     in.MinClusterSize,
		MinSamples:         in.MinSamples,
		ForceReclustering:  in.ForceReclustering,
		GenerateSolutions:  in.GenerateSolutions,
		TargetClusterCount: in.TargetClusterCount,
		Similarity:         in.Similarity,
	}
	if err := validateOptions("grpc.GenerateHotspots", opts); err != nil {
		return nil, g.grpcError("GenerateHotspots", err)
	}
	runReq := services.RunRequest{Options: opts}
	if in.Async {
		run, err := g.svc.StartRun(ctx, runReq)
		if err != nil {
			return nil, g.grpcError("GenerateHotspots", err)
		}
		return toStruct(generateHotspotsResponse{Success: true, RunID: run.ID, Status: run.Status})
	}
	run, snap, err := g.svc.GenerateHotspots(ctx, runReq)
	if err != nil {
		return nil, g.grpcError("GenerateHotspots", err)
	}
	return toStruct(generateHotspotsResponse{
		Success:         true,
		RunID:           run.ID,
		Status:          run.Status,
		HotspotsCreated: hotspotsCreated(snap),
		Results:         &hotspotResults{AllHotspots: nonNilHotspots(snap.Hotspots), Outliers: snap.Outliers},
		Metrics:         &snap.Metrics,
	})
}

// GetRun returns a clustering run.
func (g *GRPCService) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in runIDRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	run, err := g.svc.GetRun(ctx, in.RunID)
	if err != nil {
		return nil, g.grpcError("GetRun", err)
	}
	return toStruct(map[string]any{"success": true, "run": run})
}

// CancelRun cancels the active clustering run.
func (g *GRPCService) CancelRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in runIDRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	run, err := g.svc.CancelRun(ctx, in.RunID)
	if err != nil {
		return nil, g.grpcError("CancelRun", err)
	}
	return toStruct(map[string]any{"success": true, "run": run})
}

// GetHotspots returns the current hotspot view.
func (g *GRPCService) GetHotspots(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(g.svc.Hotspots())
}

// GetPatterns returns mined hotspot patterns.
func (g *GRPCService) GetPatterns(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	patterns, err := g.svc.Patterns(ctx)
	if err != nil {
		return nil, g.grpcError("GetPatterns", err)
	}
	if patterns == nil {
		patterns = []models.HotspotPattern{}
	}
	return toStruct(map[string]any{"success": true, "patterns": patterns})
}

func (g *GRPCService) grpcError(method string, err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		g.logger.Error("grpc request failed", slog.String("method", method), slog.Any("error", err))
	}
	return status.Error(code, err.Error())
}

func grpcCode(err error) codes.Code {
	switch utils.KindOf(err) {
	case utils.KindInvalidInput:
		return codes.InvalidArgument
	case utils.KindNotFound:
		return codes.NotFound
	case utils.KindConflict:
		return codes.Aborted
	case utils.KindUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// fromStruct decodes a Struct into dst through its JSON form. A nil request decodes to the zero value.
func fromStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		return nil
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("encode request: %v", err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("decode request: %v", err))
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
