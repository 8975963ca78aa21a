package curriculum

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc's codec registry so a strategy
// provider can be swapped out-of-process without generated protobuf
// stubs: StrategyRequest/StrategyResponse travel as JSON over the same
// transport and call semantics a protobuf service would use.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

// strategyServiceMethod is the fixed RPC the out-of-process strategy
// provider must implement.
const strategyServiceMethod = "/curriculum.StrategyService/Choose"

// GRPCStrategyProvider dispatches Choose calls to an out-of-process
// strategy implementation over a gRPC connection. The controller never
// distinguishes it from an in-process StrategyProvider.
type GRPCStrategyProvider struct {
	conn *grpc.ClientConn
}

// NewGRPCStrategyProvider wraps an established client connection.
func NewGRPCStrategyProvider(conn *grpc.ClientConn) *GRPCStrategyProvider {
	return &GRPCStrategyProvider{conn: conn}
}

func (p *GRPCStrategyProvider) Choose(ctx context.Context, req StrategyRequest) (ImprovementStrategy, error) {
	var resp StrategyResponse
	err := p.conn.Invoke(ctx, strategyServiceMethod, &req, &resp, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return ImprovementStrategy{}, err
	}
	return ImprovementStrategy{
		FocusArea: resp.FocusArea,
		Rationale: resp.Rationale,
		Apply:     identityApply,
	}, nil
}

// identityApply is the output transform attached to every strategy a
// remote provider returns: it returns outputs unchanged. The remote side
// only selects the focus area and rationale, so applying such a strategy
// leaves every output as it was.
func identityApply(outputs []string, feedback []string) []string {
	return outputs
}
