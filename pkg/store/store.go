// Package store defines the durable-store contract the resolution core
// depends on, and provides in-memory, PostgreSQL, and Neo4j
// implementations behind it. The core requires only unique-key
// constraints and atomic multi-statement transactions from a backend;
// everything else is plain reads and writes.
package store

import (
	"context"
	"time"

	"github.com/soundprediction/relato/pkg/types"
)

// Store is the injected storage handle every component receives. All
// compound operations that must be atomic (SupersedeFacts, MergePeople,
// MergeOrganizations) run inside a single backend transaction; partial
// effects are never observable.
type Store interface {
	// Initialize ensures the schema, unique constraints, and indices exist.
	Initialize(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error

	// --- People ---

	// InsertPerson writes a new row. Returns types.ErrDuplicateKey when the
	// canonical key already exists.
	InsertPerson(ctx context.Context, p *types.Person) error
	UpdatePerson(ctx context.Context, p *types.Person) error
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	GetPersonByKey(ctx context.Context, canonicalKey string) (*types.Person, error)
	ListPeople(ctx context.Context) ([]*types.Person, error)

	// --- Organizations ---

	InsertOrganization(ctx context.Context, o *types.Organization) error
	UpdateOrganization(ctx context.Context, o *types.Organization) error
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)
	GetOrganizationByKey(ctx context.Context, canonicalKey string) (*types.Organization, error)
	ListOrganizations(ctx context.Context) ([]*types.Organization, error)

	// --- Facts ---

	// InsertFact writes a fact as-is. The partial-uniqueness guarantee (at
	// most one current fact per (entity, fact_type, key)) is enforced by the
	// backend; a violation returns types.ErrDuplicateKey.
	InsertFact(ctx context.Context, f *types.Fact) error
	GetFact(ctx context.Context, id string) (*types.Fact, error)
	CurrentFacts(ctx context.Context, ref types.EntityRef) ([]*types.Fact, error)
	CurrentFactsForKey(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error)
	FactHistory(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error)
	FactsAt(ctx context.Context, ref types.EntityRef, at time.Time) ([]*types.Fact, error)
	ListFacts(ctx context.Context) ([]*types.Fact, error)

	// SupersedeFacts atomically closes every fact in supersededIDs
	// (valid_until = at, replaced_by_fact = newFact.ID) and inserts newFact
	// as the current value. Either all writes commit or none do.
	SupersedeFacts(ctx context.Context, newFact *types.Fact, supersededIDs []string, at time.Time) error

	// --- Referencing records ---

	InsertTask(ctx context.Context, t *types.Task) error
	InsertCommitment(ctx context.Context, c *types.Commitment) error
	InsertDeal(ctx context.Context, d *types.Deal) error
	InsertInvestment(ctx context.Context, inv *types.Investment) error
	InsertMetric(ctx context.Context, m *types.Metric) error
	InsertRelationshipEdge(ctx context.Context, e *types.RelationshipEdge) error

	TasksForPerson(ctx context.Context, personID string) ([]*types.Task, error)
	CommitmentsForPerson(ctx context.Context, personID string) ([]*types.Commitment, error)
	DealsForOrganization(ctx context.Context, orgID string) ([]*types.Deal, error)
	InvestmentsForOrganization(ctx context.Context, orgID string) ([]*types.Investment, error)
	InvestmentsForPerson(ctx context.Context, personID string) ([]*types.Investment, error)
	MetricsForOrganization(ctx context.Context, orgID string) ([]*types.Metric, error)
	EdgesTouching(ctx context.Context, ref types.EntityRef) ([]*types.RelationshipEdge, error)

	// --- Interactions and relationship strength ---

	UpsertInteractionStats(ctx context.Context, s *types.InteractionStats) error
	InteractionStats(ctx context.Context, personID string) (*types.InteractionStats, error)
	ListInteractionStats(ctx context.Context) ([]*types.InteractionStats, error)

	GetRelationshipStrength(ctx context.Context, personID string) (*types.RelationshipStrength, error)
	UpsertRelationshipStrength(ctx context.Context, s *types.RelationshipStrength) error

	// --- Merge ---

	// MergePeople reassigns, in one transaction, every reference from the
	// duplicate person to the primary (facts, tasks, commitments,
	// investments, relationship edges on both endpoints), records the
	// consolidation in merge history, and deletes the duplicate row.
	MergePeople(ctx context.Context, primaryID, duplicateID string) error

	// MergeOrganizations is the organization analogue (facts, deals,
	// investments, metrics, relationship edges on both endpoints).
	MergeOrganizations(ctx context.Context, primaryID, duplicateID string) error

	// MergeHistory returns every recorded consolidation for a kind.
	MergeHistory(ctx context.Context, kind types.EntityKind) ([]*types.MergeRecord, error)
}
