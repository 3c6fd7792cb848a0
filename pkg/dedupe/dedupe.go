// Package dedupe finds likely duplicate entities and consolidates them.
// Detection is advisory: it reports scored candidates and never writes.
// Merging is destructive and goes through the store's atomic merge
// operations, guarded against self-merges and cycles in merge history.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/soundprediction/relato/pkg/canonical"
	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

// Default similarity thresholds. Organization names carry more shared
// boilerplate ("inc", "labs") so the bar is slightly lower.
const (
	DefaultPersonThreshold       = 0.85
	DefaultOrganizationThreshold = 0.80
)

// Detector scans the store for fuzzy duplicate candidates.
type Detector struct {
	store     store.Store
	personMin float64
	orgMin    float64
}

// NewDetector creates a Detector with the default thresholds. A
// threshold of 0 keeps the default.
func NewDetector(s store.Store, personThreshold, orgThreshold float64) *Detector {
	if personThreshold == 0 {
		personThreshold = DefaultPersonThreshold
	}
	if orgThreshold == 0 {
		orgThreshold = DefaultOrganizationThreshold
	}
	return &Detector{store: s, personMin: personThreshold, orgMin: orgThreshold}
}

// FindDuplicatePeople returns every other person whose name similarity
// to the given person meets the threshold, ordered by descending score.
// An exact email match scores 1.0 regardless of name spelling.
func (d *Detector) FindDuplicatePeople(ctx context.Context, personID string) ([]types.DuplicateMatch, error) {
	target, err := d.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}

	people, err := d.store.ListPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}

	var matches []types.DuplicateMatch
	for _, p := range people {
		if p.ID == target.ID {
			continue
		}

		score := canonical.Similarity(target.FullName, p.FullName)
		if target.Email != "" && strings.EqualFold(target.Email, p.Email) {
			score = 1.0
		}
		if score >= d.personMin {
			matches = append(matches, types.DuplicateMatch{
				EntityID: p.ID,
				Name:     p.FullName,
				Score:    score,
			})
		}
	}

	sortMatches(matches)
	return matches, nil
}

// FindDuplicateOrganizations is the organization analogue. An exact
// domain match scores 1.0.
func (d *Detector) FindDuplicateOrganizations(ctx context.Context, orgID string) ([]types.DuplicateMatch, error) {
	target, err := d.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	orgs, err := d.store.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	var matches []types.DuplicateMatch
	for _, o := range orgs {
		if o.ID == target.ID {
			continue
		}

		score := canonical.Similarity(target.Name, o.Name)
		if target.Domain != "" && strings.EqualFold(target.Domain, o.Domain) {
			score = 1.0
		}
		if score >= d.orgMin {
			matches = append(matches, types.DuplicateMatch{
				EntityID: o.ID,
				Name:     o.Name,
				Score:    score,
			})
		}
	}

	sortMatches(matches)
	return matches, nil
}

func sortMatches(matches []types.DuplicateMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].EntityID < matches[j].EntityID
		}
		return matches[i].Score > matches[j].Score
	})
}

// Merger consolidates confirmed duplicates into their primary record.
type Merger struct {
	store  store.Store
	logger *slog.Logger
}

// NewMerger creates a Merger. A nil logger falls back to slog.Default.
func NewMerger(s store.Store, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{store: s, logger: logger}
}

// MergePeople folds the duplicate person into the primary: all facts,
// tasks, commitments, investments, and relationship edges are
// reassigned, the consolidation is recorded, and the duplicate row is
// deleted. The whole operation is atomic in the store.
func (m *Merger) MergePeople(ctx context.Context, primaryID, duplicateID string) error {
	if err := m.checkMerge(ctx, types.EntityPerson, primaryID, duplicateID); err != nil {
		return err
	}
	if _, err := m.store.GetPerson(ctx, primaryID); err != nil {
		return err
	}
	if _, err := m.store.GetPerson(ctx, duplicateID); err != nil {
		return err
	}

	if err := m.store.MergePeople(ctx, primaryID, duplicateID); err != nil {
		return fmt.Errorf("failed to merge people: %w", err)
	}
	m.logger.Info("merged people", "primary_id", primaryID, "duplicate_id", duplicateID)
	return nil
}

// MergeOrganizations is the organization analogue.
func (m *Merger) MergeOrganizations(ctx context.Context, primaryID, duplicateID string) error {
	if err := m.checkMerge(ctx, types.EntityOrganization, primaryID, duplicateID); err != nil {
		return err
	}
	if _, err := m.store.GetOrganization(ctx, primaryID); err != nil {
		return err
	}
	if _, err := m.store.GetOrganization(ctx, duplicateID); err != nil {
		return err
	}

	if err := m.store.MergeOrganizations(ctx, primaryID, duplicateID); err != nil {
		return fmt.Errorf("failed to merge organizations: %w", err)
	}
	m.logger.Info("merged organizations", "primary_id", primaryID, "duplicate_id", duplicateID)
	return nil
}

// checkMerge rejects self-merges and merges that would close a cycle in
// merge history. A cycle would exist if the primary has already been
// merged away into (an ancestor of) the duplicate.
func (m *Merger) checkMerge(ctx context.Context, kind types.EntityKind, primaryID, duplicateID string) error {
	if primaryID == duplicateID {
		return types.ErrSelfMerge
	}

	history, err := m.store.MergeHistory(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to read merge history: %w", err)
	}

	survivor := make(map[string]string, len(history))
	for _, rec := range history {
		survivor[rec.DuplicateID] = rec.PrimaryID
	}

	// Walk the survivor chain from the primary; reaching the duplicate
	// means the duplicate already absorbed the primary at some point.
	seen := make(map[string]bool)
	for cur := primaryID; cur != ""; cur = survivor[cur] {
		if cur == duplicateID {
			return types.ErrMergeCycle
		}
		if seen[cur] {
			break
		}
		seen[cur] = true
	}
	return nil
}

// ResolveMergedID follows merge history from a possibly stale id to the
// surviving record's id. Ids that were never merged away resolve to
// themselves.
func (m *Merger) ResolveMergedID(ctx context.Context, kind types.EntityKind, id string) (string, error) {
	history, err := m.store.MergeHistory(ctx, kind)
	if err != nil {
		return "", fmt.Errorf("failed to read merge history: %w", err)
	}

	survivor := make(map[string]string, len(history))
	for _, rec := range history {
		survivor[rec.DuplicateID] = rec.PrimaryID
	}

	seen := make(map[string]bool)
	cur := id
	for {
		next, ok := survivor[cur]
		if !ok {
			return cur, nil
		}
		if seen[next] {
			return "", types.ErrMergeCycle
		}
		seen[next] = true
		cur = next
	}
}
