package swarm

// HumanAction is the choice a human makes at a conversational turn.
type HumanAction string

const (
	ActionContinue HumanAction = "continue" // proceed, folding optional feedback in
	ActionRefine   HumanAction = "refine"   // rework the last result per feedback
	ActionNewTask  HumanAction = "new_task" // replace the task entirely
	ActionDone     HumanAction = "done"     // accept the result and finish
	ActionExit     HumanAction = "exit"     // stop without completing
)

// HumanReply is the resolution of a conversational human turn.
type HumanReply struct {
	Action   HumanAction `json:"action"`
	Feedback string      `json:"feedback,omitempty"`
}

// FoldFeedback appends human feedback to a task and truncates the combined
// text to at most window bytes, keeping the most recent content so context
// cannot grow without bound across rounds.
func FoldFeedback(task, feedback string, window int) string {
	if feedback == "" {
		return task
	}
	combined := task + "\n\nFeedback: " + feedback
	if window <= 0 || len(combined) <= window {
		return combined
	}
	return combined[len(combined)-window:]
}
