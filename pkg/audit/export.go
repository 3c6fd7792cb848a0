// Package audit exports the resolution ledger to Parquet files for
// offline inspection, and provides a slog handler that captures error
// records to the same directory. Exports are snapshots, not streams:
// every call writes complete files for the current store contents,
// including superseded facts, so the full audit trail survives outside
// the store.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

// PersonRecord is the flattened Parquet row for a person.
type PersonRecord struct {
	ID              string    `parquet:"id"`
	CanonicalKey    string    `parquet:"canonical_key"`
	FullName        string    `parquet:"full_name"`
	Email           string    `parquet:"email"`
	PrivacyTier     string    `parquet:"privacy_tier"`
	LastContactedAt time.Time `parquet:"last_contacted_at"`
	CreatedAt       time.Time `parquet:"created_at"`
	UpdatedAt       time.Time `parquet:"updated_at"`
}

// OrganizationRecord is the flattened Parquet row for an organization.
type OrganizationRecord struct {
	ID               string    `parquet:"id"`
	CanonicalKey     string    `parquet:"canonical_key"`
	Name             string    `parquet:"name"`
	Domain           string    `parquet:"domain"`
	OrganizationType string    `parquet:"organization_type"`
	CreatedAt        time.Time `parquet:"created_at"`
	UpdatedAt        time.Time `parquet:"updated_at"`
}

// FactRecord is the flattened Parquet row for a fact, historical rows
// included.
type FactRecord struct {
	ID             string    `parquet:"id"`
	EntityKind     string    `parquet:"entity_kind"`
	EntityID       string    `parquet:"entity_id"`
	FactType       string    `parquet:"fact_type"`
	Key            string    `parquet:"key"`
	Value          string    `parquet:"value"`
	SourceType     string    `parquet:"source_type"`
	SourceID       string    `parquet:"source_id"`
	Confidence     float64   `parquet:"confidence"`
	ValidFrom      time.Time `parquet:"valid_from"`
	ValidUntil     time.Time `parquet:"valid_until"`
	Current        bool      `parquet:"current"`
	ReplacedByFact string    `parquet:"replaced_by_fact"`
	CreatedBy      string    `parquet:"created_by"`
	CreatedAt      time.Time `parquet:"created_at"`
}

// MergeRecord is the flattened Parquet row for a consolidation.
type MergeRecord struct {
	ID          string    `parquet:"id"`
	Kind        string    `parquet:"kind"`
	DuplicateID string    `parquet:"duplicate_id"`
	PrimaryID   string    `parquet:"primary_id"`
	MergedAt    time.Time `parquet:"merged_at"`
}

// Exporter writes ledger snapshots to a directory.
type Exporter struct {
	store     store.Store
	outputDir string
}

// NewExporter creates an Exporter rooted at outputDir, creating the
// directory if needed.
func NewExporter(s store.Store, outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Exporter{store: s, outputDir: outputDir}, nil
}

// Export writes one Parquet file per record type and returns the paths
// written.
func (e *Exporter) Export(ctx context.Context) ([]string, error) {
	stamp := time.Now().UTC().Format("20060102_150405")
	var written []string

	people, err := e.store.ListPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	path, err := writeRecords(e.outputDir, "people_"+stamp, peopleRecords(people))
	if err != nil {
		return nil, err
	}
	written = append(written, path)

	orgs, err := e.store.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	path, err = writeRecords(e.outputDir, "organizations_"+stamp, orgRecords(orgs))
	if err != nil {
		return nil, err
	}
	written = append(written, path)

	facts, err := e.store.ListFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	path, err = writeRecords(e.outputDir, "facts_"+stamp, factRecords(facts))
	if err != nil {
		return nil, err
	}
	written = append(written, path)

	var merges []MergeRecord
	for _, kind := range []types.EntityKind{types.EntityPerson, types.EntityOrganization} {
		history, err := e.store.MergeHistory(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to read merge history: %w", err)
		}
		for _, rec := range history {
			merges = append(merges, MergeRecord{
				ID:          rec.ID,
				Kind:        string(rec.Kind),
				DuplicateID: rec.DuplicateID,
				PrimaryID:   rec.PrimaryID,
				MergedAt:    rec.MergedAt,
			})
		}
	}
	path, err = writeRecords(e.outputDir, "merges_"+stamp, merges)
	if err != nil {
		return nil, err
	}
	written = append(written, path)

	return written, nil
}

func writeRecords[T any](dir, name string, records []T) (string, error) {
	path := filepath.Join(dir, name+".parquet")
	if err := parquet.WriteFile(path, records); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func peopleRecords(people []*types.Person) []PersonRecord {
	out := make([]PersonRecord, 0, len(people))
	for _, p := range people {
		out = append(out, PersonRecord{
			ID:              p.ID,
			CanonicalKey:    p.CanonicalKey,
			FullName:        p.FullName,
			Email:           p.Email,
			PrivacyTier:     string(p.PrivacyTier),
			LastContactedAt: p.LastContactedAt,
			CreatedAt:       p.CreatedAt,
			UpdatedAt:       p.UpdatedAt,
		})
	}
	return out
}

func orgRecords(orgs []*types.Organization) []OrganizationRecord {
	out := make([]OrganizationRecord, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, OrganizationRecord{
			ID:               o.ID,
			CanonicalKey:     o.CanonicalKey,
			Name:             o.Name,
			Domain:           o.Domain,
			OrganizationType: string(o.OrganizationType),
			CreatedAt:        o.CreatedAt,
			UpdatedAt:        o.UpdatedAt,
		})
	}
	return out
}

func factRecords(facts []*types.Fact) []FactRecord {
	out := make([]FactRecord, 0, len(facts))
	for _, f := range facts {
		rec := FactRecord{
			ID:             f.ID,
			EntityKind:     string(f.Entity.Kind),
			EntityID:       f.Entity.ID,
			FactType:       f.FactType,
			Key:            f.Key,
			Value:          f.Value,
			SourceType:     string(f.Source),
			SourceID:       f.SourceID,
			Confidence:     f.Confidence,
			ValidFrom:      f.ValidFrom,
			Current:        f.IsCurrent(),
			ReplacedByFact: f.ReplacedByFact,
			CreatedBy:      f.CreatedBy,
			CreatedAt:      f.CreatedAt,
		}
		if f.ValidUntil != nil {
			rec.ValidUntil = *f.ValidUntil
		}
		out = append(out, rec)
	}
	return out
}
