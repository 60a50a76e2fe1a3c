package tribunal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPJudgeClient dispatches a judge evaluation as a POST of
// {prompt, task_type, context} and expects {verdict, confidence, reasoning}
// back.
type HTTPJudgeClient struct {
	client *http.Client
}

// NewHTTPJudgeClient builds an HTTPJudgeClient.
func NewHTTPJudgeClient() *HTTPJudgeClient {
	return &HTTPJudgeClient{client: &http.Client{}}
}

type judgeRequest struct {
	Prompt   string                 `json:"prompt"`
	TaskType string                 `json:"task_type"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

type judgeResponse struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (c *HTTPJudgeClient) Evaluate(ctx context.Context, judge Judge, prompt string, task Task) (Vote, error) {
	body, err := json.Marshal(judgeRequest{Prompt: prompt, TaskType: task.Type, Context: task.Context})
	if err != nil {
		return Vote{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, judge.Address, bytes.NewReader(body))
	if err != nil {
		return Vote{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Vote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Vote{}, fmt.Errorf("judge %q returned status %d", judge.Name, resp.StatusCode)
	}

	var decoded judgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Vote{}, fmt.Errorf("malformed response from judge %q: %w", judge.Name, err)
	}

	return Vote{Verdict: decoded.Verdict, Confidence: decoded.Confidence, Reasoning: decoded.Reasoning}, nil
}
