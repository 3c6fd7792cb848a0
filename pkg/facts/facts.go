// Package facts maintains the append-only temporal fact ledger. Every
// write goes through conflict detection: a candidate observation that
// disagrees with the current value for its key is resolved by the
// strategy configured for its fact type before anything is persisted.
// Superseded facts are never deleted, only closed, so the full history
// of every key stays queryable.
package facts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

// Ledger is the fact write path. Strategies are keyed by fact type; fact
// types without an entry use the default strategy.
type Ledger struct {
	store      store.Store
	logger     *slog.Logger
	strategies map[string]types.Strategy
	defaultStr types.Strategy
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStrategy binds a resolution strategy to a fact type.
func WithStrategy(factType string, s types.Strategy) Option {
	return func(l *Ledger) {
		l.strategies[factType] = s
	}
}

// WithDefaultStrategy replaces the fallback strategy (latest_wins).
func WithDefaultStrategy(s types.Strategy) Option {
	return func(l *Ledger) {
		l.defaultStr = s
	}
}

// NewLedger creates a Ledger. A nil logger falls back to slog.Default.
func NewLedger(s store.Store, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		store:      s,
		logger:     logger,
		strategies: make(map[string]types.Strategy),
		defaultStr: types.StrategyLatestWins,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StrategyFor returns the resolution strategy for a fact type.
func (l *Ledger) StrategyFor(factType string) types.Strategy {
	if s, ok := l.strategies[factType]; ok {
		return s
	}
	return l.defaultStr
}

func (l *Ledger) buildFact(in types.FactInput) (*types.Fact, error) {
	confidence := 1.0
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	now := l.now().UTC()
	f := &types.Fact{
		ID:         uuid.NewString(),
		Entity:     in.Entity,
		FactType:   in.FactType,
		Key:        in.Key,
		Value:      in.Value,
		Source:     in.Source,
		SourceID:   in.SourceID,
		Confidence: confidence,
		ValidFrom:  now,
		CreatedBy:  in.CreatedBy,
		CreatedAt:  now,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// DetectConflict reports whether the candidate disagrees with the
// current value for its key. Facts whose current value equals the
// candidate's are not a conflict.
func (l *Ledger) DetectConflict(ctx context.Context, in types.FactInput) (*types.Conflict, error) {
	current, err := l.store.CurrentFactsForKey(ctx, in.Entity, in.FactType, in.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read current facts: %w", err)
	}

	var conflicting []*types.Fact
	for _, f := range current {
		if f.Value != in.Value {
			conflicting = append(conflicting, f)
		}
	}
	if len(conflicting) == 0 {
		return nil, nil
	}

	candidate, err := l.buildFact(in)
	if err != nil {
		return nil, err
	}
	return &types.Conflict{
		Entity:   in.Entity,
		FactType: in.FactType,
		Key:      in.Key,
		NewFact:  candidate,
		Existing: conflicting,
	}, nil
}

// AddFact writes an observation using the strategy configured for its
// fact type.
func (l *Ledger) AddFact(ctx context.Context, in types.FactInput) (*types.FactResolution, error) {
	return l.AddFactWithStrategy(ctx, in, l.StrategyFor(in.FactType))
}

// AddFactWithStrategy writes an observation under an explicit strategy.
//
// Without a conflict the fact is inserted as current. With a conflict:
//
//   - latest_wins supersedes every conflicting fact with the new one.
//   - highest_confidence keeps whichever side has the higher confidence;
//     a tie keeps the existing value.
//   - merge closes both sides and writes a synthesized fact combining
//     the values, attributed to each side's source, with confidence 1.0.
//   - user_confirm writes nothing and returns the conflict for review.
func (l *Ledger) AddFactWithStrategy(ctx context.Context, in types.FactInput, strategy types.Strategy) (*types.FactResolution, error) {
	if !strategy.IsValid() {
		return nil, types.NewValidationError("strategy", "unknown resolution strategy: "+string(strategy))
	}

	newFact, err := l.buildFact(in)
	if err != nil {
		return nil, err
	}

	current, err := l.store.CurrentFactsForKey(ctx, in.Entity, in.FactType, in.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read current facts: %w", err)
	}

	// Same value as the current fact: nothing to record.
	var conflicting []*types.Fact
	for _, f := range current {
		if f.Value == in.Value {
			return &types.FactResolution{
				Fact:     f,
				Outcome:  types.OutcomeKeepExisting,
				State:    types.StateValid,
				Strategy: strategy,
			}, nil
		}
		conflicting = append(conflicting, f)
	}

	if len(conflicting) == 0 {
		if err := l.store.InsertFact(ctx, newFact); err != nil {
			return nil, fmt.Errorf("failed to insert fact: %w", err)
		}
		return &types.FactResolution{
			Fact:     newFact,
			Outcome:  types.OutcomeInserted,
			State:    types.StateValid,
			Strategy: strategy,
		}, nil
	}

	conflict := &types.Conflict{
		Entity:   in.Entity,
		FactType: in.FactType,
		Key:      in.Key,
		NewFact:  newFact,
		Existing: conflicting,
	}
	l.logger.Debug("fact conflict detected",
		"entity_kind", in.Entity.Kind, "entity_id", in.Entity.ID,
		"fact_type", in.FactType, "key", in.Key, "strategy", strategy)

	switch strategy {
	case types.StrategyLatestWins:
		return l.supersede(ctx, newFact, conflict, strategy)

	case types.StrategyHighestConfidence:
		maxExisting := 0.0
		for _, f := range conflicting {
			if f.Confidence > maxExisting {
				maxExisting = f.Confidence
			}
		}
		if newFact.Confidence > maxExisting {
			return l.supersede(ctx, newFact, conflict, strategy)
		}
		return &types.FactResolution{
			Fact:     conflicting[0],
			Outcome:  types.OutcomeKeepExisting,
			State:    types.StateResolvedAutomatic,
			Strategy: strategy,
			Conflict: conflict,
		}, nil

	case types.StrategyMerge:
		merged := l.mergeFacts(newFact, conflicting)
		if err := l.store.SupersedeFacts(ctx, merged, factIDs(conflicting), merged.ValidFrom); err != nil {
			return nil, fmt.Errorf("failed to write merged fact: %w", err)
		}
		closeFacts(conflicting, merged)
		return &types.FactResolution{
			Fact:       merged,
			Outcome:    types.OutcomeMerged,
			State:      types.StateResolvedAutomatic,
			Strategy:   strategy,
			Superseded: conflicting,
			Conflict:   conflict,
		}, nil

	case types.StrategyUserConfirm:
		return &types.FactResolution{
			Outcome:        types.OutcomePendingReview,
			State:          types.StatePendingManualReview,
			Strategy:       strategy,
			Conflict:       conflict,
			RequiresReview: true,
		}, nil
	}

	return nil, types.NewValidationError("strategy", "unknown resolution strategy: "+string(strategy))
}

func (l *Ledger) supersede(ctx context.Context, newFact *types.Fact, conflict *types.Conflict, strategy types.Strategy) (*types.FactResolution, error) {
	if err := l.store.SupersedeFacts(ctx, newFact, factIDs(conflict.Existing), newFact.ValidFrom); err != nil {
		return nil, fmt.Errorf("failed to supersede facts: %w", err)
	}
	closeFacts(conflict.Existing, newFact)
	return &types.FactResolution{
		Fact:       newFact,
		Outcome:    types.OutcomeSuperseded,
		State:      types.StateResolvedAutomatic,
		Strategy:   strategy,
		Superseded: conflict.Existing,
		Conflict:   conflict,
	}, nil
}

// closeFacts mirrors the store-side closure on the in-memory copies so
// the resolution result reflects the committed state.
func closeFacts(facts []*types.Fact, replacedBy *types.Fact) {
	for _, f := range facts {
		until := replacedBy.ValidFrom
		f.ValidUntil = &until
		f.ReplacedByFact = replacedBy.ID
	}
}

// mergeFacts synthesizes a single fact combining the existing values and
// the new one, each attributed to its source.
func (l *Ledger) mergeFacts(newFact *types.Fact, existing []*types.Fact) *types.Fact {
	parts := make([]string, 0, len(existing)+1)
	for _, f := range existing {
		parts = append(parts, f.Value+" (per "+string(f.Source)+")")
	}
	parts = append(parts, newFact.Value+" (per "+string(newFact.Source)+")")

	merged := *newFact
	merged.ID = uuid.NewString()
	merged.Value = strings.Join(parts, "; ")
	merged.Source = types.SourceMerged
	merged.SourceID = ""
	merged.Confidence = 1.0
	return &merged
}

func factIDs(facts []*types.Fact) []string {
	ids := make([]string, 0, len(facts))
	for _, f := range facts {
		ids = append(ids, f.ID)
	}
	return ids
}

// CurrentFacts returns every current fact for an entity.
func (l *Ledger) CurrentFacts(ctx context.Context, ref types.EntityRef) ([]*types.Fact, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return l.store.CurrentFacts(ctx, ref)
}

// FactHistory returns every version ever recorded for a key, oldest
// first.
func (l *Ledger) FactHistory(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if factType == "" || key == "" {
		return nil, types.ErrEmptyFactKey
	}
	return l.store.FactHistory(ctx, ref, factType, key)
}

// FactsAt answers point-in-time queries: the facts that were valid at
// the given instant.
func (l *Ledger) FactsAt(ctx context.Context, ref types.EntityRef, at time.Time) ([]*types.Fact, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return l.store.FactsAt(ctx, ref, at)
}
