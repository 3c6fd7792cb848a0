// Package strength derives the [0,1] relationship closeness score from
// per-person interaction aggregates. The score is a weighted blend of
// four banded component scores; recomputation is idempotent and
// overwrites the prior row in place.
package strength

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

// Component weights. Recency dominates: a relationship is mostly what
// has happened lately.
const (
	weightRecency     = 0.35
	weightFrequency   = 0.25
	weightEngagement  = 0.20
	weightReciprocity = 0.20
)

// trendDelta is the dead band around the prior score inside which the
// trend reads stable.
const trendDelta = 0.1

// Calculator computes and persists relationship strengths.
type Calculator struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewCalculator creates a Calculator. A nil logger falls back to
// slog.Default.
func NewCalculator(s store.Store, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{store: s, logger: logger, now: time.Now}
}

// RecencyScore bands the age of the last interaction.
func RecencyScore(lastInteractionAt *time.Time, now time.Time) float64 {
	if lastInteractionAt == nil {
		return 0
	}
	days := now.Sub(*lastInteractionAt).Hours() / 24
	switch {
	case days <= 7:
		return 1.0
	case days <= 14:
		return 0.9
	case days <= 30:
		return 0.8
	case days <= 60:
		return 0.6
	case days <= 90:
		return 0.4
	case days <= 180:
		return 0.2
	default:
		return 0.1
	}
}

// FrequencyScore bands the trailing-90-day interaction rate, expressed
// as interactions per month.
func FrequencyScore(count90d int) float64 {
	perMonth := float64(count90d) / 3
	switch {
	case perMonth >= 20:
		return 1.0
	case perMonth >= 10:
		return 0.9
	case perMonth >= 5:
		return 0.8
	case perMonth >= 3:
		return 0.6
	case perMonth >= 1:
		return 0.4
	case perMonth >= 0.5:
		return 0.2
	default:
		return 0.1
	}
}

// EngagementScore bands the average thread depth.
func EngagementScore(avgThreadDepth float64) float64 {
	switch {
	case avgThreadDepth >= 10:
		return 1.0
	case avgThreadDepth >= 6:
		return 0.8
	case avgThreadDepth >= 4:
		return 0.6
	case avgThreadDepth >= 2:
		return 0.4
	default:
		return 0.2
	}
}

// ReciprocityScore bands the balance between sent and received counts.
func ReciprocityScore(sent, received int) float64 {
	if sent == 0 && received == 0 {
		return 0
	}
	lo, hi := float64(sent), float64(received)
	if lo > hi {
		lo, hi = hi, lo
	}
	ratio := lo / hi
	switch {
	case ratio >= 0.8:
		return 1.0
	case ratio >= 0.6:
		return 0.8
	case ratio >= 0.4:
		return 0.6
	case ratio >= 0.2:
		return 0.4
	default:
		return 0.2
	}
}

// Calculate is the pure scoring function: it derives the strength for a
// person from their interaction aggregates and the prior score, without
// touching the store. prior may be nil.
func (c *Calculator) Calculate(personID string, stats *types.InteractionStats, prior *types.RelationshipStrength) *types.RelationshipStrength {
	now := c.now().UTC()

	recency := RecencyScore(stats.LastInteractionAt, now)
	frequency := FrequencyScore(stats.Interactions90d)
	engagement := EngagementScore(stats.AvgThreadDepth)
	reciprocity := ReciprocityScore(stats.SentCount, stats.ReceivedCount)

	combined := weightRecency*recency +
		weightFrequency*frequency +
		weightEngagement*engagement +
		weightReciprocity*reciprocity
	combined = math.Round(combined*100) / 100

	trend := types.TrendStable
	if prior != nil {
		switch delta := combined - prior.Strength; {
		case delta > trendDelta:
			trend = types.TrendStrengthening
		case delta < -trendDelta:
			trend = types.TrendWeakening
		}
	}

	return &types.RelationshipStrength{
		PersonID:     personID,
		Strength:     combined,
		Trend:        trend,
		Recency:      recency,
		Frequency:    frequency,
		Engagement:   engagement,
		Reciprocity:  reciprocity,
		TotalEmails:  stats.TotalInteractions,
		LastEmailAt:  stats.LastInteractionAt,
		CalculatedAt: now,
	}
}

// UpdateRelationshipStrength recomputes one person's strength from the
// stored interaction aggregates and overwrites the stored row.
func (c *Calculator) UpdateRelationshipStrength(ctx context.Context, personID string) (*types.RelationshipStrength, error) {
	stats, err := c.store.InteractionStats(ctx, personID)
	if errors.Is(err, types.ErrNotFound) {
		stats = &types.InteractionStats{PersonID: personID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read interaction stats: %w", err)
	}

	prior, err := c.store.GetRelationshipStrength(ctx, personID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("failed to read prior strength: %w", err)
	}

	result := c.Calculate(personID, stats, prior)
	if err := c.store.UpsertRelationshipStrength(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist strength: %w", err)
	}

	c.logger.Debug("updated relationship strength",
		"person_id", personID, "strength", result.Strength, "trend", result.Trend)
	return result, nil
}

// UpdateAll recomputes the strength for every person with interaction
// aggregates. Errors on individual rows are logged and skipped so one
// bad row does not abort a scheduled refresh.
func (c *Calculator) UpdateAll(ctx context.Context) (int, error) {
	all, err := c.store.ListInteractionStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list interaction stats: %w", err)
	}

	updated := 0
	for _, stats := range all {
		if _, err := c.UpdateRelationshipStrength(ctx, stats.PersonID); err != nil {
			c.logger.Warn("failed to update relationship strength",
				"person_id", stats.PersonID, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}
