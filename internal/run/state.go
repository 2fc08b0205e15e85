package run

import "trendpress/internal/stage"

// State is the run state machine position. A run only moves forward
// through the fixed order; FAILED is reachable from any non-terminal
// state, and AWAITING_APPROVAL is a durable resting state.
type State string

const (
	StateInit             State = "INIT"
	StateDiscovering      State = "DISCOVERING"
	StateDiscovered       State = "DISCOVERED"
	StateVerifying        State = "VERIFYING"
	StateVerified         State = "VERIFIED"
	StateReviewing        State = "REVIEWING"
	StateReviewed         State = "REVIEWED"
	StateAwaitingApproval State = "AWAITING_APPROVAL"
	StateApproved         State = "APPROVED"
	StatePublishing       State = "PUBLISHING"
	StatePublished        State = "PUBLISHED"
	StateFailed           State = "FAILED"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool { return s == StatePublished || s == StateFailed }

// activeState returns the in-flight state for a stage.
func activeState(st stage.Stage) State {
	switch st {
	case stage.Discovery:
		return StateDiscovering
	case stage.Verification:
		return StateVerifying
	case stage.Review:
		return StateReviewing
	case stage.Publish:
		return StatePublishing
	}
	return StateFailed
}

// doneState returns the resting state after a stage completed.
func doneState(st stage.Stage) State {
	switch st {
	case stage.Discovery:
		return StateDiscovered
	case stage.Verification:
		return StateVerified
	case stage.Review:
		return StateReviewed
	case stage.Publish:
		return StatePublished
	}
	return StateFailed
}

// pendingStage returns the stage an in-flight state belongs to, or "".
func pendingStage(s State) stage.Stage {
	switch s {
	case StateDiscovering:
		return stage.Discovery
	case StateVerifying:
		return stage.Verification
	case StateReviewing:
		return stage.Review
	case StatePublishing:
		return stage.Publish
	}
	return ""
}

// nextStage returns the stage to run from a resting state, or "" when the
// next step is not a stage execution (approval wait or terminal).
func nextStage(s State) stage.Stage {
	switch s {
	case StateInit:
		return stage.Discovery
	case StateDiscovered:
		return stage.Verification
	case StateVerified:
		return stage.Review
	case StateApproved:
		return stage.Publish
	}
	return ""
}
