package tribunal

import "context"

// RoutingJudgeClient dispatches each judge to the HTTP or gRPC client
// matching its declared transport, so a single tribunal can hold a
// slate of judges behind mixed transports.
type RoutingJudgeClient struct {
	http *HTTPJudgeClient
	grpc *GRPCJudgeClient
}

// NewRoutingJudgeClient builds a RoutingJudgeClient with both backing
// clients ready.
func NewRoutingJudgeClient() *RoutingJudgeClient {
	return &RoutingJudgeClient{http: NewHTTPJudgeClient(), grpc: NewGRPCJudgeClient()}
}

func (c *RoutingJudgeClient) Evaluate(ctx context.Context, judge Judge, prompt string, task Task) (Vote, error) {
	if judge.Transport == "grpc" {
		return c.grpc.Evaluate(ctx, judge, prompt, task)
	}
	return c.http.Evaluate(ctx, judge, prompt, task)
}

// Close releases any pooled gRPC connections.
func (c *RoutingJudgeClient) Close() error {
	return c.grpc.Close()
}
