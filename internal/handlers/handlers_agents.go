package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/tribunal"
)

func handleAgentsList(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	judges := make([]interface{}, len(h.Judges))
	for i, j := range h.Judges {
		judges[i] = map[string]interface{}{"name": j.Name, "transport": j.Transport}
	}
	result := map[string]interface{}{"judges": judges}

	if tapeID, ok := input["tape_id"].(string); ok && tapeID != "" {
		entry, hErr := h.Registry.Get(tapeID)
		if hErr != nil {
			return nil, hErr
		}
		agents := make([]interface{}, len(entry.Descriptor.Agents))
		for i, a := range entry.Descriptor.Agents {
			agents[i] = map[string]interface{}{"id": a.ID, "skills": a.Skills}
		}
		result["tape_agents"] = agents
	}
	return result, nil
}

func findJudge(judges []tribunal.Judge, name string) (tribunal.Judge, bool) {
	for _, j := range judges {
		if j.Name == name {
			return j, true
		}
	}
	return tribunal.Judge{}, false
}

// handleAgentsCall asks a single named judge to evaluate a task, without
// running the full multi-judge consensus path.
func handleAgentsCall(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	agentID, _ := input["agent_id"].(string)
	if agentID == "" {
		return nil, core.NewError(core.ErrBadRequest, "agent_id is required", nil)
	}
	judge, ok := findJudge(h.Judges, agentID)
	if !ok {
		return nil, core.NewError(core.ErrBadRequest, "no judge registered under this agent_id", map[string]interface{}{"agent_id": agentID})
	}

	task := taskFromInput(input)
	timeout := judge.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	session, hErr := h.Tribunal.Evaluate(ctx, task, []tribunal.Judge{judge}, timeout)
	if hErr != nil {
		return nil, hErr
	}
	if len(session.Votes) == 0 {
		return nil, core.NewError(core.ErrNoQuorum, "judge did not respond in time", nil)
	}
	vote := session.Votes[0]
	return map[string]interface{}{
		"verdict":    vote.Verdict,
		"confidence": vote.Confidence,
		"reasoning":  vote.Reasoning,
	}, nil
}

// handleAgentsTribunal runs the full multi-judge consensus evaluation
// (spec §4.7, delegated to C7).
func handleAgentsTribunal(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	task := taskFromInput(input)

	judges := h.Judges
	if rawIDs, ok := input["agent_ids"].([]interface{}); ok && len(rawIDs) > 0 {
		judges = make([]tribunal.Judge, 0, len(rawIDs))
		for _, raw := range rawIDs {
			name, ok := raw.(string)
			if !ok {
				continue
			}
			if j, found := findJudge(h.Judges, name); found {
				judges = append(judges, j)
			}
		}
	}

	timeout := 10 * time.Second
	if ms, ok := input["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	session, hErr := h.Tribunal.Evaluate(ctx, task, judges, timeout)
	if hErr != nil {
		return nil, hErr
	}

	result := map[string]interface{}{
		"verdict":        session.Consensus.Verdict,
		"confidence":     session.Consensus.Confidence,
		"agreement_rate": session.Consensus.AgreementRate,
		"votes":          votesToPayload(session.Votes),
	}
	if session.Disagreement != nil {
		result["disagreement"] = map[string]interface{}{
			"severity": session.Disagreement.Severity,
			"advice":   session.Disagreement.Advice,
		}
	}
	return result, nil
}

func votesToPayload(votes []tribunal.Vote) []interface{} {
	out := make([]interface{}, len(votes))
	for i, v := range votes {
		out[i] = map[string]interface{}{
			"judge":      v.Judge,
			"verdict":    v.Verdict,
			"confidence": v.Confidence,
			"reasoning":  v.Reasoning,
		}
	}
	return out
}

func taskFromInput(input map[string]interface{}) tribunal.Task {
	taskType, _ := input["task_type"].(string)
	content, _ := input["content"].(string)
	taskContext, _ := input["context"].(map[string]interface{})
	return tribunal.Task{Type: taskType, Content: content, Context: taskContext}
}

// handleAgentsSwarm routes free-form text to a configured agent by matching
// the first keyword hit in the configured swarm table, falling back to the
// configured default agent (spec §4.9).
func handleAgentsSwarm(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	text, _ := input["text"].(string)
	if text == "" {
		return nil, core.NewError(core.ErrBadRequest, "text is required", nil)
	}
	lower := strings.ToLower(text)
	for _, rule := range h.Swarm.Keywords {
		if strings.Contains(lower, rule.Keyword) {
			return map[string]interface{}{"agent_id": rule.Agent, "matched_keyword": rule.Keyword}, nil
		}
	}
	return map[string]interface{}{"agent_id": h.Swarm.FallbackAgent, "matched_keyword": nil}, nil
}
