package facts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/relato/pkg/facts"
	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

var testRef = types.EntityRef{Kind: types.EntityPerson, ID: "p1"}

func titleInput(value string, confidence float64, source types.SourceType) types.FactInput {
	return types.FactInput{
		Entity:     testRef,
		FactType:   "profile",
		Key:        "title",
		Value:      value,
		Source:     source,
		Confidence: &confidence,
	}
}

func TestAddFactNoConflictInserts(t *testing.T) {
	ctx := context.Background()
	l := facts.NewLedger(store.NewMemoryStore(), nil)

	res, err := l.AddFact(ctx, titleInput("Engineer", 0.9, types.SourceManual))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeInserted, res.Outcome)
	assert.Equal(t, types.StateValid, res.State)
	assert.True(t, res.Fact.IsCurrent())
	assert.False(t, res.RequiresReview)
}

func TestAddFactSameValueNoWrite(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := facts.NewLedger(s, nil)

	first, err := l.AddFact(ctx, titleInput("Engineer", 0.9, types.SourceManual))
	require.NoError(t, err)

	res, err := l.AddFact(ctx, titleInput("Engineer", 0.5, types.SourceAIExtraction))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeKeepExisting, res.Outcome)
	assert.Equal(t, first.Fact.ID, res.Fact.ID)

	history, err := l.FactHistory(ctx, testRef, "profile", "title")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLatestWins(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := facts.NewLedger(s, nil)

	old, err := l.AddFact(ctx, titleInput("Engineer", 0.9, types.SourceManual))
	require.NoError(t, err)

	res, err := l.AddFactWithStrategy(ctx, titleInput("Manager", 0.5, types.SourceAIExtraction),
		types.StrategyLatestWins)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuperseded, res.Outcome)
	assert.Equal(t, types.StateResolvedAutomatic, res.State)

	current, err := s.CurrentFactsForKey(ctx, testRef, "profile", "title")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "Manager", current[0].Value)

	superseded, err := s.GetFact(ctx, old.Fact.ID)
	require.NoError(t, err)
	require.NotNil(t, superseded.ValidUntil)
	assert.Equal(t, res.Fact.ID, superseded.ReplacedByFact)
}

func TestHighestConfidenceKeepsStronger(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := facts.NewLedger(s, nil)

	old, err := l.AddFact(ctx, titleInput("Engineer", 0.9, types.SourceManual))
	require.NoError(t, err)

	res, err := l.AddFactWithStrategy(ctx, titleInput("Manager", 0.5, types.SourceAIExtraction),
		types.StrategyHighestConfidence)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeKeepExisting, res.Outcome)
	assert.Equal(t, old.Fact.ID, res.Fact.ID)

	// The weaker observation left no trace.
	history, err := l.FactHistory(ctx, testRef, "profile", "title")
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, "Engineer", history[0].Value)
}

func TestHighestConfidenceAcceptsStronger(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := facts.NewLedger(s, nil)

	_, err := l.AddFact(ctx, titleInput("Engineer", 0.5, types.SourceAIExtraction))
	require.NoError(t, err)

	res, err := l.AddFactWithStrategy(ctx, titleInput("Manager", 0.9, types.SourceManual),
		types.StrategyHighestConfidence)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuperseded, res.Outcome)

	current, err := s.CurrentFactsForKey(ctx, testRef, "profile", "title")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "Manager", current[0].Value)
}

func TestHighestConfidenceTieKeepsExisting(t *testing.T) {
	ctx := context.Background()
	l := facts.NewLedger(store.NewMemoryStore(), nil)

	old, err := l.AddFact(ctx, titleInput("Engineer", 0.7, types.SourceManual))
	require.NoError(t, err)

	res, err := l.AddFactWithStrategy(ctx, titleInput("Manager", 0.7, types.SourceAIExtraction),
		types.StrategyHighestConfidence)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeKeepExisting, res.Outcome)
	assert.Equal(t, old.Fact.ID, res.Fact.ID)
}

func TestMergeStrategy(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := facts.NewLedger(s, nil)

	_, err := l.AddFact(ctx, titleInput("A", 0.8, types.SourceManual))
	require.NoError(t, err)

	res, err := l.AddFactWithStrategy(ctx, titleInput("B", 0.6, types.SourceAIExtraction),
		types.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeMerged, res.Outcome)
	assert.Equal(t, 1.0, res.Fact.Confidence)
	assert.Equal(t, types.SourceMerged, res.Fact.Source)
	assert.Contains(t, res.Fact.Value, "A")
	assert.Contains(t, res.Fact.Value, "B")
	assert.Contains(t, res.Fact.Value, string(types.SourceManual))
	assert.Contains(t, res.Fact.Value, string(types.SourceAIExtraction))

	current, err := s.CurrentFactsForKey(ctx, testRef, "profile", "title")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, res.Fact.ID, current[0].ID)
}

func TestUserConfirmWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := facts.NewLedger(s, nil)

	old, err := l.AddFact(ctx, titleInput("Engineer", 0.9, types.SourceManual))
	require.NoError(t, err)

	res, err := l.AddFactWithStrategy(ctx, titleInput("Manager", 0.9, types.SourceMessageIngestion),
		types.StrategyUserConfirm)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePendingReview, res.Outcome)
	assert.Equal(t, types.StatePendingManualReview, res.State)
	assert.True(t, res.RequiresReview)
	assert.Nil(t, res.Fact)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "Manager", res.Conflict.NewFact.Value)
	require.Len(t, res.Conflict.Existing, 1)
	assert.Equal(t, old.Fact.ID, res.Conflict.Existing[0].ID)

	// Re-invoking with an explicit strategy commits.
	resolved, err := l.AddFactWithStrategy(ctx, titleInput("Manager", 0.9, types.SourceMessageIngestion),
		types.StrategyLatestWins)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuperseded, resolved.Outcome)
}

func TestFactCurrencyInvariantAcrossSequences(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := facts.NewLedger(s, nil)

	inputs := []struct {
		value      string
		confidence float64
		strategy   types.Strategy
	}{
		{"A", 0.5, types.StrategyLatestWins},
		{"B", 0.9, types.StrategyHighestConfidence},
		{"C", 0.3, types.StrategyHighestConfidence},
		{"D", 0.7, types.StrategyMerge},
		{"E", 0.8, types.StrategyUserConfirm},
		{"F", 0.8, types.StrategyLatestWins},
	}
	for _, in := range inputs {
		_, err := l.AddFactWithStrategy(ctx, titleInput(in.value, in.confidence, types.SourceManual), in.strategy)
		require.NoError(t, err)
	}

	current, err := s.CurrentFactsForKey(ctx, testRef, "profile", "title")
	require.NoError(t, err)
	assert.Len(t, current, 1)
}

func TestDetectConflict(t *testing.T) {
	ctx := context.Background()
	l := facts.NewLedger(store.NewMemoryStore(), nil)

	conflict, err := l.DetectConflict(ctx, titleInput("Engineer", 1.0, types.SourceManual))
	require.NoError(t, err)
	assert.Nil(t, conflict)

	_, err = l.AddFact(ctx, titleInput("Engineer", 1.0, types.SourceManual))
	require.NoError(t, err)

	// Same value is not a conflict.
	conflict, err = l.DetectConflict(ctx, titleInput("Engineer", 0.4, types.SourceAIExtraction))
	require.NoError(t, err)
	assert.Nil(t, conflict)

	conflict, err = l.DetectConflict(ctx, titleInput("Manager", 1.0, types.SourceManual))
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Len(t, conflict.Existing, 1)
}

func TestDefaultStrategyTable(t *testing.T) {
	l := facts.NewLedger(store.NewMemoryStore(), nil,
		facts.WithStrategy("profile", types.StrategyHighestConfidence),
		facts.WithDefaultStrategy(types.StrategyMerge))

	assert.Equal(t, types.StrategyHighestConfidence, l.StrategyFor("profile"))
	assert.Equal(t, types.StrategyMerge, l.StrategyFor("preference"))
}

func TestAddFactValidation(t *testing.T) {
	ctx := context.Background()
	l := facts.NewLedger(store.NewMemoryStore(), nil)

	_, err := l.AddFact(ctx, types.FactInput{
		Entity: testRef, FactType: "", Key: "title", Value: "x", Source: types.SourceManual,
	})
	assert.ErrorIs(t, err, types.ErrEmptyFactKey)

	bad := 1.5
	_, err = l.AddFact(ctx, types.FactInput{
		Entity: testRef, FactType: "profile", Key: "title", Value: "x",
		Source: types.SourceManual, Confidence: &bad,
	})
	assert.ErrorIs(t, err, types.ErrConfidenceRange)

	_, err = l.AddFactWithStrategy(ctx, titleInput("x", 1.0, types.SourceManual), "bogus")
	assert.ErrorIs(t, err, &types.ValidationError{})
}
