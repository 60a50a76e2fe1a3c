package tribunal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCJudgeClient dispatches judge evaluations over a plain gRPC method
// invocation, carrying a JSON-encoded request/response inside a
// wrapperspb.StringValue so no judge-specific protobuf schema needs to be
// compiled into this module. Grounded on the teacher's
// internal/escrow/jury_client.go dial pattern (grpc.NewClient +
// credentials/insecure), adapted from a hardcoded-response placeholder
// into a real unary call against whatever judge service is listening at
// judge.Address.
type GRPCJudgeClient struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCJudgeClient builds a GRPCJudgeClient. Connections are dialed
// lazily per judge address and kept open for reuse.
func NewGRPCJudgeClient() *GRPCJudgeClient {
	return &GRPCJudgeClient{conns: make(map[string]*grpc.ClientConn)}
}

func (c *GRPCJudgeClient) connFor(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial judge %q: %w", addr, err)
	}
	c.conns[addr] = conn
	return conn, nil
}

func (c *GRPCJudgeClient) Evaluate(ctx context.Context, judge Judge, prompt string, task Task) (Vote, error) {
	conn, err := c.connFor(judge.Address)
	if err != nil {
		return Vote{}, err
	}

	reqPayload, err := json.Marshal(judgeRequest{Prompt: prompt, TaskType: task.Type, Context: task.Context})
	if err != nil {
		return Vote{}, err
	}

	req := wrapperspb.String(string(reqPayload))
	resp := &wrapperspb.StringValue{}
	if err := conn.Invoke(ctx, "/tribunal.Judge/Evaluate", req, resp); err != nil {
		return Vote{}, fmt.Errorf("judge %q rpc failed: %w", judge.Name, err)
	}

	var decoded judgeResponse
	if err := json.Unmarshal([]byte(resp.GetValue()), &decoded); err != nil {
		return Vote{}, fmt.Errorf("malformed response from judge %q: %w", judge.Name, err)
	}

	return Vote{Verdict: decoded.Verdict, Confidence: decoded.Confidence, Reasoning: decoded.Reasoning}, nil
}

// Close closes every dialed judge connection.
func (c *GRPCJudgeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
