// Package stage defines the fixed pipeline vocabulary: the four stage
// identifiers, the documents each stage consumes and produces, and the
// declared input/output schema for each hand-off.
package stage

// Stage identifies one pipeline phase. The set is closed and the order is
// fixed; no stage is ever skipped or reordered within a run.
type Stage string

const (
	Discovery    Stage = "discovery"
	Verification Stage = "verification"
	Review       Stage = "review"
	Publish      Stage = "publish"
)

// Sequence returns the pipeline stages in execution order.
func Sequence() []Stage {
	return []Stage{Discovery, Verification, Review, Publish}
}

// Index returns the position of s in the fixed sequence, or -1 if s is not
// a known stage.
func Index(s Stage) int {
	for i, st := range Sequence() {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage after s, or "" when s is the last stage or unknown.
func Next(s Stage) Stage {
	seq := Sequence()
	i := Index(s)
	if i < 0 || i+1 >= len(seq) {
		return ""
	}
	return seq[i+1]
}

// Known reports whether s is one of the four pipeline stages.
func Known(s Stage) bool { return Index(s) >= 0 }
