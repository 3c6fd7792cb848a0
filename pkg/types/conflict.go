package types

// Strategy selects how conflicting observations are resolved.
type Strategy string

const (
	// StrategyLatestWins supersedes every currently-valid conflicting fact
	// with the new one.
	StrategyLatestWins Strategy = "latest_wins"
	// StrategyHighestConfidence keeps whichever side has the strictly
	// higher confidence; ties keep the existing fact.
	StrategyHighestConfidence Strategy = "highest_confidence"
	// StrategyMerge synthesizes one fact concatenating every conflicting
	// value with its source attribution.
	StrategyMerge Strategy = "merge"
	// StrategyUserConfirm defers to manual review; nothing is written.
	StrategyUserConfirm Strategy = "user_confirm"
)

// IsValid returns true if the strategy is recognized.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyLatestWins, StrategyHighestConfidence, StrategyMerge, StrategyUserConfirm:
		return true
	}
	return false
}

// ConflictState tracks a fact through the resolution state machine.
type ConflictState string

const (
	// StateValid means zero or one current fact exists for the key.
	StateValid ConflictState = "valid"
	// StateConflictDetected means two or more currently-valid facts
	// disagree with the incoming value.
	StateConflictDetected ConflictState = "conflict_detected"
	// StateResolvedAutomatic means a strategy committed a winner.
	StateResolvedAutomatic ConflictState = "resolved_automatic"
	// StatePendingManualReview means resolution is deferred to a caller.
	StatePendingManualReview ConflictState = "pending_manual_review"
)

// Conflict is the payload describing a disagreement between an incoming
// fact and the currently-valid facts for the same key.
type Conflict struct {
	Entity   EntityRef `json:"entity"`
	FactType string    `json:"fact_type"`
	Key      string    `json:"key"`

	// NewFact is the candidate observation; it has not been persisted.
	NewFact *Fact `json:"new_fact"`

	// Existing are the currently-valid facts whose values differ.
	Existing []*Fact `json:"existing"`
}

// ResolutionOutcome names what a resolution pass did.
type ResolutionOutcome string

const (
	// OutcomeInserted means no conflict existed and the fact was written
	// directly as current.
	OutcomeInserted ResolutionOutcome = "inserted"
	// OutcomeSuperseded means latest_wins (or an equivalent) committed the
	// new fact and closed the old ones.
	OutcomeSuperseded ResolutionOutcome = "superseded"
	// OutcomeKeepExisting means the new fact was discarded without a write.
	OutcomeKeepExisting ResolutionOutcome = "keep_existing"
	// OutcomeMerged means a synthesized fact replaced all conflicting ones.
	OutcomeMerged ResolutionOutcome = "merged"
	// OutcomePendingReview means nothing was written; the conflict payload
	// is returned for manual resolution.
	OutcomePendingReview ResolutionOutcome = "pending_review"
)

// FactResolution is the result of a fact write.
type FactResolution struct {
	// Fact is the current fact for the key after resolution. For
	// keep_existing it is the surviving existing fact; for pending_review
	// it is nil.
	Fact *Fact `json:"fact,omitempty"`

	Outcome  ResolutionOutcome `json:"outcome"`
	State    ConflictState     `json:"state"`
	Strategy Strategy          `json:"strategy,omitempty"`

	// Superseded are the facts closed by this resolution.
	Superseded []*Fact `json:"superseded,omitempty"`

	// Conflict is set when the outcome requires manual review.
	Conflict *Conflict `json:"conflict,omitempty"`

	// RequiresReview is true when a caller must re-invoke resolution with
	// an explicit strategy.
	RequiresReview bool `json:"requires_review"`
}
