package faq

// GateDecision is the outcome of comparing a match against the threshold.
type GateDecision struct {
	// LocalHit means the candidate's stored answer is reused.
	LocalHit bool
	Match    MatchResult
}

// Gate yields a local hit iff a candidate exists and its score is at least the
// threshold. A miss still carries the best score for telemetry.
func Gate(match MatchResult, threshold float64) GateDecision {
	return GateDecision{
		LocalHit: match.HasCandidate() && match.Score >= threshold,
		Match:    match,
	}
}
