package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/FlowForge/internal/domain/approval"
	"github.com/Strob0t/FlowForge/internal/domain/durable"
	"github.com/Strob0t/FlowForge/internal/domain/event"
	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/domain/swarm"
	"github.com/Strob0t/FlowForge/internal/port/approvalgate"
)

// runRounds is the core loop: one router decision and one dispatch per
// round, until completion, failure, cancellation, or budget exhaustion.
func (s *SwarmService) runRounds(ctx context.Context, sess *Session, state *swarm.State) (*swarm.RunResult, error) {
	result := &swarm.RunResult{SessionID: state.SessionID}

	for !state.BudgetExhausted() {
		if s.isCancelled(state.SessionID) {
			state.Status = swarm.StatusFailed
			result.Error = "cancelled"
			s.emit(ctx, state, event.TypeSwarmFailed, map[string]any{"error": "cancelled"})
			slog.Info("swarm cancelled", "session_id", state.SessionID, "round", state.CurrentRound)
			break
		}
		// A dead caller context is an interruption, not a task failure:
		// hold the session so Continue can pick it back up.
		if err := ctx.Err(); err != nil {
			state.Status = swarm.StatusWaitingInput
			result.AwaitingContinuation = true
			s.emit(ctx, state, event.TypeSwarmPaused, map[string]any{"reason": "interrupted"})
			slog.Warn("swarm interrupted", "session_id", state.SessionID,
				"round", state.CurrentRound, "error", err)
			break
		}

		state.CurrentRound++
		state.TotalRounds++
		s.metrics.SwarmRounds.Add(ctx, 1)
		s.emit(ctx, state, event.TypeRoundStarted, nil)

		decision, err := s.route.Route(ctx, swarm.RoundInput{
			SessionID: state.SessionID,
			Task:      state.Task,
			Round:     state.CurrentRound,
			Context:   sess.Runtime.Persistent(),
			History:   state.ConversationHistory,
		})
		if err != nil {
			state.Status = swarm.StatusFailed
			result.Error = fmt.Sprintf("route round %d: %v", state.CurrentRound, err)
			s.emit(ctx, state, event.TypeSwarmFailed, map[string]any{"error": result.Error})
			break
		}

		round := s.dispatch(ctx, sess, state, decision)
		result.Rounds = append(result.Rounds, round)
		s.emit(ctx, state, event.TypeRoundCompleted, map[string]any{
			"kind":      string(decision.Kind),
			"completed": round.Completed,
		})
		s.persist(ctx, sess, state)

		if round.Error != "" {
			if ctx.Err() != nil {
				// The round broke because the caller went away, usually a
				// checkpoint wait aborted mid-flight. Pause, don't fail.
				state.Status = swarm.StatusWaitingInput
				result.AwaitingContinuation = true
				s.emit(ctx, state, event.TypeSwarmPaused, map[string]any{"reason": "interrupted"})
				slog.Warn("swarm interrupted mid-round", "session_id", state.SessionID,
					"round", state.CurrentRound, "error", round.Error)
				break
			}
			state.Status = swarm.StatusFailed
			result.Error = round.Error
			s.emit(ctx, state, event.TypeSwarmFailed, map[string]any{"error": round.Error})
			break
		}

		done := round.Completed
		if done || state.Interactive {
			proceed, accepted := s.humanTurn(ctx, state, &round, done)
			if accepted {
				result.FinalOutput = round.Output
				state.Status = swarm.StatusCompleted
				s.emit(ctx, state, event.TypeSwarmCompleted, nil)
				slog.Info("swarm completed", "session_id", state.SessionID,
					"rounds", state.CurrentRound, "continuations", state.ContinuationCount)
				break
			}
			if !proceed {
				// Human stepped away or exited: hold for continuation.
				state.Status = swarm.StatusWaitingInput
				result.AwaitingContinuation = true
				s.emit(ctx, state, event.TypeSwarmPaused, map[string]any{"reason": "awaiting_input"})
				break
			}
		}
	}

	// Round budget exhausted without a terminal outcome: pause rather than
	// burn rounds forever. Continue re-arms the budget.
	if state.Status == swarm.StatusRunning {
		state.Status = swarm.StatusPaused
		result.AwaitingContinuation = true
		s.emit(ctx, state, event.TypeSwarmPaused, map[string]any{"reason": "round_budget"})
		slog.Info("swarm paused on round budget", "session_id", state.SessionID,
			"rounds", state.CurrentRound, "total_rounds", state.TotalRounds)
	}

	result.Status = state.Status
	s.persist(ctx, sess, state)
	return result, nil
}

// dispatch executes one routing decision and returns the round outcome.
func (s *SwarmService) dispatch(ctx context.Context, sess *Session, state *swarm.State, decision swarm.Decision) swarm.RoundResult {
	round := swarm.RoundResult{Round: state.CurrentRound, Decision: decision}

	switch decision.Kind {
	case swarm.DecisionDirect:
		s.dispatchDirect(ctx, sess, state, decision, &round)
	case swarm.DecisionClarify:
		s.dispatchClarify(ctx, state, decision, &round)
	case swarm.DecisionPropose:
		s.dispatchPropose(ctx, state, decision, &round)
	case swarm.DecisionPhase:
		s.dispatchPhase(ctx, sess, state, decision, &round)
	default:
		round.Error = fmt.Sprintf("unknown decision kind %q", decision.Kind)
	}
	return round
}

// dispatchDirect hands the task straight to a named worker.
func (s *SwarmService) dispatchDirect(ctx context.Context, sess *Session, state *swarm.State, decision swarm.Decision, round *swarm.RoundResult) {
	exec, ok := s.executors[decision.Worker]
	if !ok {
		round.Error = fmt.Sprintf("worker %q not configured", decision.Worker)
		return
	}

	res, err := exec.Execute(ctx, phase.ExecRequest{
		PhaseID:   uuid.NewString(),
		PhaseType: "direct",
		Task:      state.Task,
		InputData: sess.Runtime.Persistent(),
	})
	if err != nil {
		round.Error = fmt.Sprintf("worker %s: %v", decision.Worker, err)
		return
	}
	if res.Status == phase.StatusFailed {
		round.Error = res.Error
		return
	}

	state.LastWorker = decision.Worker
	round.Output = res.OutputData
	round.Completed = outputComplete(res.OutputData)
	if len(res.OutputData) > 0 {
		if err := sess.Runtime.MergePhaseResults(res.OutputData, durable.MergeSafe, ""); err != nil {
			slog.Warn("merge worker output", "session_id", state.SessionID, "error", err)
		}
	}
	state.AppendTurn("assistant", turnSummary(res.OutputData))
}

// dispatchClarify suspends the round on clarifying questions. A skip
// resolution proceeds with a best-effort reading of the task.
func (s *SwarmService) dispatchClarify(ctx context.Context, state *swarm.State, decision swarm.Decision, round *swarm.RoundResult) {
	resolution := s.checkpoint(ctx, state, approval.Checkpoint{
		Type:          approval.CheckpointClarification,
		Message:       "clarification needed",
		Options:       decision.Questions,
		AllowFeedback: true,
	})
	if resolution == nil {
		round.Error = "clarification aborted"
		return
	}
	if resolution.Resolution == approval.ResolutionSkip || resolution.UserFeedback == "" {
		state.AppendTurn("system", "clarification skipped, proceeding best-effort")
		return
	}
	state.Task = swarm.FoldFeedback(state.Task, resolution.UserFeedback, s.cfg.FeedbackWindow)
	state.AppendTurn("user", resolution.UserFeedback)
}

// dispatchPropose suspends the round on alternative approaches.
func (s *SwarmService) dispatchPropose(ctx context.Context, state *swarm.State, decision swarm.Decision, round *swarm.RoundResult) {
	options := make([]string, 0, len(decision.Proposals))
	for _, p := range decision.Proposals {
		options = append(options, p.Title)
	}
	resolution := s.checkpoint(ctx, state, approval.Checkpoint{
		Type:          approval.CheckpointProposal,
		Message:       "choose an approach",
		Options:       options,
		AllowFeedback: true,
	})
	if resolution == nil {
		round.Error = "proposal aborted"
		return
	}

	chosen := resolution.UserFeedback
	if chosen == "" && len(decision.Proposals) > 0 {
		chosen = decision.Proposals[0].Title
	}
	state.Task = swarm.FoldFeedback(state.Task, "Approach: "+chosen, s.cfg.FeedbackWindow)
	state.AppendTurn("user", "approach chosen: "+chosen)
}

// dispatchPhase invokes a registered phase as a sub-unit of work. The
// durable context is snapshotted on both sides of the phase: a failed phase
// rolls back to the pre-phase snapshot so a broken sub-run cannot poison
// session state, and the post-phase snapshot marks the merged output as a
// restore point for later rounds.
func (s *SwarmService) dispatchPhase(ctx context.Context, sess *Session, state *swarm.State, decision swarm.Decision, round *swarm.RoundResult) {
	snap := sess.Runtime.CreateSnapshot("pre-phase", map[string]any{
		"round":      state.CurrentRound,
		"phase_type": decision.PhaseType,
	})

	state.ActivePhase = decision.PhaseType
	defer func() { state.ActivePhase = "" }()

	res, err := s.phases.Execute(ctx, sess, phase.ExecRequest{
		PhaseType: decision.PhaseType,
		Task:      state.Task,
		Config:    decision.PhaseConfig,
	})
	if err != nil {
		round.Error = fmt.Sprintf("phase %s: %v", decision.PhaseType, err)
		return
	}

	if res.Status == phase.StatusNeedsApproval {
		res = s.resolvePhaseApproval(ctx, sess, state, res)
	}

	state.AppendPhase(res.PhaseID)
	round.Output = res.OutputData

	if !res.Succeeded() {
		if err := sess.Runtime.RestoreSnapshot(snap.Version); err != nil {
			slog.Warn("restore pre-phase snapshot", "session_id", state.SessionID, "error", err)
		}
		round.Error = res.Error
		return
	}

	sess.Runtime.CreateSnapshot("post-phase", map[string]any{
		"round":      state.CurrentRound,
		"phase_type": decision.PhaseType,
		"phase_id":   res.PhaseID,
	})
	round.Completed = outputComplete(res.OutputData)
	state.AppendTurn("assistant", turnSummary(res.OutputData))
}

// resolvePhaseApproval routes a paused phase through the approval gate.
func (s *SwarmService) resolvePhaseApproval(ctx context.Context, sess *Session, state *swarm.State, res *phase.Result) *phase.Result {
	resolution := s.checkpoint(ctx, state, approval.Checkpoint{
		Type:          approval.CheckpointApproval,
		Message:       approvalMessage(res),
		AllowFeedback: true,
	})
	switch {
	case resolution == nil:
		s.phases.FailRejected(ctx, sess, res, "approval aborted")
	case resolution.Resolution == approval.ResolutionApprove:
		s.phases.ResumeApproved(ctx, sess, res)
	default:
		s.phases.FailRejected(ctx, sess, res, resolution.UserFeedback)
	}
	return res
}

// humanTurn offers the conversational checkpoint after a round. It returns
// (proceed, accepted): accepted ends the run successfully; !proceed holds
// the session for continuation. In non-interactive mode a completed round
// is accepted as-is.
func (s *SwarmService) humanTurn(ctx context.Context, state *swarm.State, round *swarm.RoundResult, done bool) (proceed, accepted bool) {
	if !state.Interactive {
		return false, done
	}

	resolution := s.checkpoint(ctx, state, approval.Checkpoint{
		Type:          approval.CheckpointHumanTurn,
		Message:       turnSummary(round.Output),
		Options:       humanTurnOptions(),
		AllowFeedback: true,
	})
	if resolution == nil {
		return false, false
	}

	reply := swarm.HumanReply{
		Action:   swarm.HumanAction(resolution.Resolution),
		Feedback: resolution.UserFeedback,
	}
	switch reply.Action {
	case swarm.ActionDone:
		return false, true
	case swarm.ActionExit:
		return false, false
	case swarm.ActionNewTask:
		if reply.Feedback != "" {
			state.Task = reply.Feedback
			state.AppendTurn("user", reply.Feedback)
		}
		return true, false
	case swarm.ActionRefine:
		state.Task = swarm.FoldFeedback(state.Task, "Refine the previous result: "+reply.Feedback, s.cfg.FeedbackWindow)
		state.AppendTurn("user", reply.Feedback)
		return true, false
	default: // continue
		if reply.Feedback != "" {
			state.Task = swarm.FoldFeedback(state.Task, reply.Feedback, s.cfg.FeedbackWindow)
			state.AppendTurn("user", reply.Feedback)
		}
		// A completed task plus a plain continue is acceptance.
		return !done, done
	}
}

// checkpoint runs one gate round-trip, recording the resolution in the
// audit trail. A nil return means the wait was aborted; timeouts resolve to
// the configured default.
func (s *SwarmService) checkpoint(ctx context.Context, state *swarm.State, cp approval.Checkpoint) *approval.Resolution {
	s.emit(ctx, state, event.TypeApprovalRequested, map[string]any{"checkpoint": string(cp.Type)})

	reqID, err := s.gate.CreateRequest(ctx, approvalgate.Request{
		RunID:      state.RunID,
		Checkpoint: cp,
	})
	if err != nil {
		slog.Error("create approval request", "session_id", state.SessionID, "error", err)
		return nil
	}

	waitStart := time.Now()
	resolution, err := s.gate.AwaitResolution(ctx, reqID, s.orchCfg.ApprovalTimeout)
	s.metrics.ApprovalWaits.Record(ctx, time.Since(waitStart).Seconds())

	if err != nil {
		if errors.Is(err, approvalgate.ErrTimeout) {
			slog.Warn("checkpoint timed out", "session_id", state.SessionID,
				"checkpoint", cp.Type, "default", s.orchCfg.DefaultOnTimeout)
			resolution = &approval.Resolution{Resolution: s.orchCfg.DefaultOnTimeout}
		} else {
			return nil
		}
	}

	s.audit(ctx, state, cp.Type, resolution)
	return resolution
}

func (s *SwarmService) audit(ctx context.Context, state *swarm.State, typ approval.CheckpointType, resolution *approval.Resolution) {
	if s.store == nil {
		return
	}
	entry := &approval.AuditEntry{
		ID:         uuid.NewString(),
		RunID:      state.RunID,
		Type:       typ,
		Resolution: resolution.Resolution,
		Feedback:   resolution.UserFeedback,
		CreatedAt:  time.Now(),
	}
	if err := s.store.AppendApprovalAudit(ctx, entry); err != nil {
		slog.Warn("append approval audit", "run_id", state.RunID, "error", err)
	}
	s.emit(ctx, state, event.TypeApprovalResolved, map[string]any{
		"checkpoint": string(typ),
		"resolution": resolution.Resolution,
	})
}

func humanTurnOptions() []string {
	return []string{
		string(swarm.ActionContinue),
		string(swarm.ActionRefine),
		string(swarm.ActionNewTask),
		string(swarm.ActionDone),
		string(swarm.ActionExit),
	}
}

// outputComplete reports whether a worker marked the task finished.
func outputComplete(output map[string]any) bool {
	v, ok := output["complete"].(bool)
	return ok && v
}

// turnSummary extracts a printable summary from a worker's output.
func turnSummary(output map[string]any) string {
	for _, key := range []string{"summary", "result", "message"} {
		if v, ok := output[key].(string); ok && v != "" {
			return v
		}
	}
	return "(no summary)"
}
