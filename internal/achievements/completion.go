package achievements

// CompletionDecision is the outcome of the platinum gate.
type CompletionDecision struct {
	ShouldCelebrate bool
	Latched         bool
}

// EvaluateCompletion decides whether the "all achievements unlocked"
// celebration fires on this run. It fires once per pair, and only when this
// run announced at least one item. A pair that was already complete when
// tracking started, with nothing new announced, is never celebrated.
func EvaluateCompletion(isComplete, priorLatched bool, announcedThisRun int) CompletionDecision {
	celebrate := isComplete && !priorLatched && announcedThisRun > 0
	return CompletionDecision{
		ShouldCelebrate: celebrate,
		Latched:         priorLatched || celebrate,
	}
}
