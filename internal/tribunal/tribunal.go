// Package tribunal implements C7: parallel multi-judge consensus with
// per-judge and global deadlines, majority-verdict aggregation, and a
// bounded disagreement log. Grounded on the teacher's
// internal/arbitrator/speculative_executor.go audit-channel/select/timeout
// pattern (adapted from "shadow-execute then audit" into "dispatch then
// collect votes") and internal/escrow/jury_client.go's weighted-consensus
// helper shape (adapted here to the spec's unweighted majority formula).
package tribunal

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostkernel/tapehost/internal/core"
)

// Judge names one participant in a tribunal session.
type Judge struct {
	Name      string
	Transport string // http | grpc
	Address   string
	Timeout   time.Duration
}

// Task is the unit of work judges vote on.
type Task struct {
	Type    string
	Content string
	Context map[string]interface{}
}

// Vote is a single judge's response, or its error placeholder.
type Vote struct {
	Judge      string
	Verdict    string
	Confidence float64
	Reasoning  string
	Latency    time.Duration
	Err        string
}

func (v Vote) isError() bool { return v.Verdict == "error" }

// Consensus is the aggregate outcome over all non-error votes.
type Consensus struct {
	Verdict       string
	Confidence    float64
	AgreementRate float64
}

// DisagreementRecord is written to the ring buffer whenever a session isn't
// unanimous.
type DisagreementRecord struct {
	TaskType  string
	Votes     []Vote
	Consensus Consensus
	Severity  string
	Advice    string
}

// Session is the full record of one tribunal evaluation.
type Session struct {
	ID           string
	TaskType     string
	Votes        []Vote
	Consensus    Consensus
	Disagreement *DisagreementRecord
}

// JudgeClient dispatches a single prompt to a single judge.
type JudgeClient interface {
	Evaluate(ctx context.Context, judge Judge, prompt string, task Task) (Vote, error)
}

// Tribunal runs evaluate sessions against a judge client and records
// disagreements.
type Tribunal struct {
	client JudgeClient
	ring   *RingBuffer
}

// New builds a Tribunal with the given disagreement ring buffer capacity.
func New(client JudgeClient, ringCapacity int) *Tribunal {
	return &Tribunal{client: client, ring: NewRingBuffer(ringCapacity)}
}

// Disagreements returns a shallow copy of the recorded disagreement log.
func (t *Tribunal) Disagreements() []DisagreementRecord {
	return t.ring.List()
}

// Evaluate dispatches task to every judge in parallel, each bounded by its
// own deadline within the global timeout, and aggregates the resulting
// votes into a consensus.
func (t *Tribunal) Evaluate(ctx context.Context, task Task, judges []Judge, timeout time.Duration) (Session, *core.HostError) {
	if len(judges) == 0 {
		return Session{}, core.NewError(core.ErrNoJudgesOnline, "no judges configured for this task", nil)
	}

	globalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := BuildPrompt(task)
	results := make(chan Vote, len(judges))

	var wg sync.WaitGroup
	for _, j := range judges {
		wg.Add(1)
		go func(j Judge) {
			defer wg.Done()

			perJudge := timeout
			if j.Timeout > 0 && j.Timeout < timeout {
				perJudge = j.Timeout
			}
			jctx, jcancel := context.WithTimeout(globalCtx, perJudge)
			defer jcancel()

			start := time.Now()
			vote, err := t.client.Evaluate(jctx, j, prompt, task)
			vote.Judge = j.Name
			vote.Latency = time.Since(start)
			if err != nil {
				vote.Verdict = "error"
				vote.Err = err.Error()
			}

			select {
			case results <- vote:
			case <-globalCtx.Done():
			}
		}(j)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var votes []Vote
collect:
	for {
		select {
		case v, ok := <-results:
			if !ok {
				break collect
			}
			votes = append(votes, v)
		case <-globalCtx.Done():
			break collect
		}
	}

	nonError := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if !v.isError() {
			nonError = append(nonError, v)
		}
	}
	if len(nonError) == 0 {
		return Session{}, core.NewError(core.ErrNoQuorum, "every judge errored or timed out", nil)
	}

	verdict, majorityCount := mode(nonError)
	agreementRate := float64(majorityCount) / float64(len(nonError))

	confidences := make([]float64, len(nonError))
	var confidenceSum float64
	for i, v := range nonError {
		confidences[i] = v.Confidence
		confidenceSum += v.Confidence
	}
	avgConfidence := confidenceSum / float64(len(nonError))
	consensus := Consensus{
		Verdict:       verdict,
		Confidence:    avgConfidence*0.6 + agreementRate*0.4,
		AgreementRate: agreementRate,
	}

	session := Session{
		ID:        uuid.NewString(),
		TaskType:  task.Type,
		Votes:     votes,
		Consensus: consensus,
	}

	if agreementRate < 1.0 {
		sev := severity(agreementRate, confidences)
		record := DisagreementRecord{
			TaskType:  task.Type,
			Votes:     votes,
			Consensus: consensus,
			Severity:  sev,
			Advice:    adviseEscalation(task.Type, sev, agreementRate),
		}
		session.Disagreement = &record
		t.ring.Append(record)
	}

	return session, nil
}

func mode(votes []Vote) (string, int) {
	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		counts[v.Verdict]++
	}
	var best string
	var bestCount int
	seen := make(map[string]bool, len(votes))
	for _, v := range votes {
		if seen[v.Verdict] {
			continue
		}
		seen[v.Verdict] = true
		if counts[v.Verdict] > bestCount {
			bestCount = counts[v.Verdict]
			best = v.Verdict
		}
	}
	return best, bestCount
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func severity(agreementRate float64, confidences []float64) string {
	score := (1-agreementRate)*0.6 + stddev(confidences)*0.4
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

// adviseEscalation computes the advisory (not enforced) escalation hint.
func adviseEscalation(taskType, sev string, agreementRate float64) string {
	if sev == "high" {
		return "human-review-required"
	}
	if taskType == "security-audit" && agreementRate < 0.75 {
		return "human-review-recommended"
	}
	return "log-and-proceed"
}
