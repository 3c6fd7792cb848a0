package relato

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundprediction/relato/pkg/dedupe"
	"github.com/soundprediction/relato/pkg/facts"
	"github.com/soundprediction/relato/pkg/resolver"
	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/strength"
	"github.com/soundprediction/relato/pkg/types"
)

// Relato is the main interface for the identity and fact-consistency
// core. It resolves raw observations into deduplicated entities,
// maintains the temporal fact ledger, consolidates duplicates, and
// derives relationship strengths.
type Relato interface {
	// ResolveOrCreatePerson deduplicates a person observation against the
	// canonical-key registry, creating the record on first encounter.
	ResolveOrCreatePerson(ctx context.Context, in types.PersonInput, updateIfExists bool) (*types.PersonResolution, error)

	// ResolveOrCreateOrganization is the organization analogue.
	ResolveOrCreateOrganization(ctx context.Context, in types.OrganizationInput, updateIfExists bool) (*types.OrganizationResolution, error)

	// FindDuplicatePeople scores every other person against the given one
	// and returns candidates at or above the configured threshold.
	FindDuplicatePeople(ctx context.Context, personID string) ([]types.DuplicateMatch, error)

	// FindDuplicateOrganizations is the organization analogue.
	FindDuplicateOrganizations(ctx context.Context, orgID string) ([]types.DuplicateMatch, error)

	// MergePeople consolidates a confirmed duplicate into its primary
	// record atomically.
	MergePeople(ctx context.Context, primaryID, duplicateID string) error

	// MergeOrganizations is the organization analogue.
	MergeOrganizations(ctx context.Context, primaryID, duplicateID string) error

	// AddFactWithConflictDetection writes an observation to the ledger,
	// resolving any disagreement with the current value per the strategy
	// configured for the fact type, or per forceStrategy when non-empty.
	AddFactWithConflictDetection(ctx context.Context, in types.FactInput, forceStrategy types.Strategy) (*types.FactResolution, error)

	// CalculateRelationshipStrength derives a person's strength from
	// interaction aggregates without persisting it.
	CalculateRelationshipStrength(personID string, stats *types.InteractionStats, prior *types.RelationshipStrength) *types.RelationshipStrength

	// UpdateRelationshipStrength recomputes and persists one person's
	// strength from the stored aggregates.
	UpdateRelationshipStrength(ctx context.Context, personID string) (*types.RelationshipStrength, error)
}

// Config tunes the client's components.
type Config struct {
	// PersonThreshold and OrganizationThreshold override the duplicate
	// detection thresholds; zero keeps the defaults (0.85 and 0.80).
	PersonThreshold       float64
	OrganizationThreshold float64

	// DefaultStrategy applies to fact types without an entry in
	// Strategies. Empty defaults to latest_wins.
	DefaultStrategy types.Strategy

	// Strategies maps fact types to conflict resolution strategies.
	Strategies map[string]types.Strategy
}

// Client implements Relato over an injected store.
type Client struct {
	store      store.Store
	resolver   *resolver.Resolver
	detector   *dedupe.Detector
	merger     *dedupe.Merger
	ledger     *facts.Ledger
	calculator *strength.Calculator
	logger     *slog.Logger
}

var _ Relato = (*Client)(nil)

// NewClient creates a client over the given store. A nil config uses
// defaults; a nil logger falls back to slog.Default.
func NewClient(s store.Store, config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []facts.Option
	if config.DefaultStrategy != "" {
		if !config.DefaultStrategy.IsValid() {
			return nil, types.NewValidationError("default_strategy",
				"unknown resolution strategy: "+string(config.DefaultStrategy))
		}
		opts = append(opts, facts.WithDefaultStrategy(config.DefaultStrategy))
	}
	for factType, strategy := range config.Strategies {
		if !strategy.IsValid() {
			return nil, types.NewValidationError("strategies",
				"unknown resolution strategy: "+string(strategy))
		}
		opts = append(opts, facts.WithStrategy(factType, strategy))
	}

	return &Client{
		store:      s,
		resolver:   resolver.New(s, logger),
		detector:   dedupe.NewDetector(s, config.PersonThreshold, config.OrganizationThreshold),
		merger:     dedupe.NewMerger(s, logger),
		ledger:     facts.NewLedger(s, logger, opts...),
		calculator: strength.NewCalculator(s, logger),
		logger:     logger,
	}, nil
}

// Store returns the underlying store handle.
func (c *Client) Store() store.Store {
	return c.store
}

// Initialize prepares the backing store's schema and constraints.
func (c *Client) Initialize(ctx context.Context) error {
	return c.store.Initialize(ctx)
}

// Close releases the backing store.
func (c *Client) Close() error {
	return c.store.Close()
}

func (c *Client) ResolveOrCreatePerson(ctx context.Context, in types.PersonInput, updateIfExists bool) (*types.PersonResolution, error) {
	return c.resolver.ResolveOrCreatePerson(ctx, in, updateIfExists)
}

func (c *Client) ResolveOrCreateOrganization(ctx context.Context, in types.OrganizationInput, updateIfExists bool) (*types.OrganizationResolution, error) {
	return c.resolver.ResolveOrCreateOrganization(ctx, in, updateIfExists)
}

func (c *Client) FindDuplicatePeople(ctx context.Context, personID string) ([]types.DuplicateMatch, error) {
	return c.detector.FindDuplicatePeople(ctx, personID)
}

func (c *Client) FindDuplicateOrganizations(ctx context.Context, orgID string) ([]types.DuplicateMatch, error) {
	return c.detector.FindDuplicateOrganizations(ctx, orgID)
}

func (c *Client) MergePeople(ctx context.Context, primaryID, duplicateID string) error {
	return c.merger.MergePeople(ctx, primaryID, duplicateID)
}

func (c *Client) MergeOrganizations(ctx context.Context, primaryID, duplicateID string) error {
	return c.merger.MergeOrganizations(ctx, primaryID, duplicateID)
}

// ResolveMergedID follows merge history from a possibly stale entity id
// to the surviving record's id.
func (c *Client) ResolveMergedID(ctx context.Context, kind types.EntityKind, id string) (string, error) {
	return c.merger.ResolveMergedID(ctx, kind, id)
}

func (c *Client) AddFactWithConflictDetection(ctx context.Context, in types.FactInput, forceStrategy types.Strategy) (*types.FactResolution, error) {
	if forceStrategy != "" {
		return c.ledger.AddFactWithStrategy(ctx, in, forceStrategy)
	}
	return c.ledger.AddFact(ctx, in)
}

// DetectConflict reports, without writing, whether an observation
// disagrees with the current value for its key.
func (c *Client) DetectConflict(ctx context.Context, in types.FactInput) (*types.Conflict, error) {
	return c.ledger.DetectConflict(ctx, in)
}

// GetCurrentFacts returns every current fact for an entity.
func (c *Client) GetCurrentFacts(ctx context.Context, ref types.EntityRef) ([]*types.Fact, error) {
	return c.ledger.CurrentFacts(ctx, ref)
}

// GetFactHistory returns every version recorded for a key, oldest
// first.
func (c *Client) GetFactHistory(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	return c.ledger.FactHistory(ctx, ref, factType, key)
}

// GetFactsAt returns the facts that were valid at the given instant.
func (c *Client) GetFactsAt(ctx context.Context, ref types.EntityRef, at time.Time) ([]*types.Fact, error) {
	return c.ledger.FactsAt(ctx, ref, at)
}

func (c *Client) CalculateRelationshipStrength(personID string, stats *types.InteractionStats, prior *types.RelationshipStrength) *types.RelationshipStrength {
	return c.calculator.Calculate(personID, stats, prior)
}

func (c *Client) UpdateRelationshipStrength(ctx context.Context, personID string) (*types.RelationshipStrength, error) {
	return c.calculator.UpdateRelationshipStrength(ctx, personID)
}

// UpdateAllRelationshipStrengths recomputes every person with
// interaction aggregates, returning how many rows were refreshed.
func (c *Client) UpdateAllRelationshipStrengths(ctx context.Context) (int, error) {
	return c.calculator.UpdateAll(ctx)
}
