package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jdb "github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/soundprediction/relato/pkg/types"
)

// Neo4jStore backs the Store contract with Neo4j. Every record type is a
// node; relationship edges are stored as nodes too so both endpoints can
// be retargeted during a merge with plain property updates. Canonical-key
// uniqueness uses node key constraints; the fact-currency invariant is
// enforced inside the write transaction because Neo4j has no partial
// unique indexes.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a store against the given bolt URI.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: driver, database: database}, nil
}

// Initialize creates the uniqueness constraints. Safe to call on every
// startup.
func (s *Neo4jStore) Initialize(ctx context.Context) error {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	constraints := []string{
		`CREATE CONSTRAINT person_id IF NOT EXISTS FOR (p:Person) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT person_key IF NOT EXISTS FOR (p:Person) REQUIRE p.canonical_key IS UNIQUE`,
		`CREATE CONSTRAINT org_id IF NOT EXISTS FOR (o:Organization) REQUIRE o.id IS UNIQUE`,
		`CREATE CONSTRAINT org_key IF NOT EXISTS FOR (o:Organization) REQUIRE o.canonical_key IS UNIQUE`,
		`CREATE CONSTRAINT fact_id IF NOT EXISTS FOR (f:Fact) REQUIRE f.id IS UNIQUE`,
	}
	for _, c := range constraints {
		if _, err := session.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close() error {
	return s.client.Close(context.Background())
}

func (s *Neo4jStore) newSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// translateNeo4jError maps constraint violations onto the shared sentinel.
func translateNeo4jError(err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4jdb.Neo4jError
	if errors.As(err, &neoErr) && strings.Contains(neoErr.Code, "ConstraintValidationFailed") {
		return types.ErrDuplicateKey
	}
	return err
}

func (s *Neo4jStore) write(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := s.newSession(ctx)
	defer session.Close(ctx)
	result, err := session.ExecuteWrite(ctx, work)
	return result, translateNeo4jError(err)
}

func (s *Neo4jStore) read(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := s.newSession(ctx)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// --- property conversion helpers ---

func asString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func asFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func asInt(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func asBool(props map[string]any, key string) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return false
}

func asTime(props map[string]any, key string) time.Time {
	if v, ok := props[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func asTimePtr(props map[string]any, key string) *time.Time {
	if v, ok := props[key].(time.Time); ok {
		t := v
		return &t
	}
	return nil
}

func recordProps(record *neo4jdb.Record, alias string) (map[string]any, bool) {
	value, found := record.Get(alias)
	if !found {
		return nil, false
	}
	node, ok := value.(neo4j.Node)
	if !ok {
		return nil, false
	}
	return node.Props, true
}

// collectProps runs a query and returns the property maps of every node
// bound to the alias "n".
func (s *Neo4jStore) collectProps(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		var out []map[string]any
		for _, record := range records {
			if props, ok := recordProps(record, "n"); ok {
				out = append(out, props)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]map[string]any), nil
}

func (s *Neo4jStore) singleProps(ctx context.Context, query string, params map[string]any) (map[string]any, error) {
	all, err := s.collectProps(ctx, query+" LIMIT 1", params)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, types.ErrNotFound
	}
	return all[0], nil
}

// --- People ---

func personProps(p *types.Person) map[string]any {
	return map[string]any{
		"id":                p.ID,
		"canonical_key":     p.CanonicalKey,
		"first_name":        p.FirstName,
		"last_name":         p.LastName,
		"full_name":         p.FullName,
		"email":             p.Email,
		"linkedin_url":      p.LinkedInURL,
		"twitter_handle":    p.TwitterHandle,
		"phone":             p.Phone,
		"privacy_tier":      string(p.PrivacyTier),
		"last_contacted_at": p.LastContactedAt,
		"created_at":        p.CreatedAt,
		"updated_at":        p.UpdatedAt,
	}
}

func personFromProps(props map[string]any) *types.Person {
	return &types.Person{
		ID:              asString(props, "id"),
		CanonicalKey:    asString(props, "canonical_key"),
		FirstName:       asString(props, "first_name"),
		LastName:        asString(props, "last_name"),
		FullName:        asString(props, "full_name"),
		Email:           asString(props, "email"),
		LinkedInURL:     asString(props, "linkedin_url"),
		TwitterHandle:   asString(props, "twitter_handle"),
		Phone:           asString(props, "phone"),
		PrivacyTier:     types.PrivacyTier(asString(props, "privacy_tier")),
		LastContactedAt: asTime(props, "last_contacted_at"),
		CreatedAt:       asTime(props, "created_at"),
		UpdatedAt:       asTime(props, "updated_at"),
	}
}

func (s *Neo4jStore) InsertPerson(ctx context.Context, p *types.Person) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `CREATE (n:Person) SET n = $props`,
			map[string]any{"props": personProps(p)})
	})
	return err
}

func (s *Neo4jStore) UpdatePerson(ctx context.Context, p *types.Person) error {
	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Person {id: $id})
			SET n = $props
			RETURN n.id`,
			map[string]any{"id": p.ID, "props": personProps(p)})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return len(records), nil
	})
	if err != nil {
		return err
	}
	if result.(int) == 0 {
		return types.NewNotFoundError(types.EntityPerson, p.ID)
	}
	return nil
}

func (s *Neo4jStore) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	props, err := s.singleProps(ctx, `MATCH (n:Person {id: $id}) RETURN n`,
		map[string]any{"id": id})
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityPerson, id)
	}
	if err != nil {
		return nil, err
	}
	return personFromProps(props), nil
}

func (s *Neo4jStore) GetPersonByKey(ctx context.Context, canonicalKey string) (*types.Person, error) {
	props, err := s.singleProps(ctx, `MATCH (n:Person {canonical_key: $key}) RETURN n`,
		map[string]any{"key": canonicalKey})
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityPerson, canonicalKey)
	}
	if err != nil {
		return nil, err
	}
	return personFromProps(props), nil
}

func (s *Neo4jStore) ListPeople(ctx context.Context) ([]*types.Person, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Person) RETURN n ORDER BY n.id`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Person, 0, len(all))
	for _, props := range all {
		out = append(out, personFromProps(props))
	}
	return out, nil
}

// --- Organizations ---

func orgProps(o *types.Organization) map[string]any {
	return map[string]any{
		"id":                o.ID,
		"canonical_key":     o.CanonicalKey,
		"name":              o.Name,
		"legal_name":        o.LegalName,
		"domain":            o.Domain,
		"website":           o.Website,
		"organization_type": string(o.OrganizationType),
		"industry":          o.Industry,
		"stage":             o.Stage,
		"privacy_tier":      string(o.PrivacyTier),
		"created_at":        o.CreatedAt,
		"updated_at":        o.UpdatedAt,
	}
}

func orgFromProps(props map[string]any) *types.Organization {
	return &types.Organization{
		ID:               asString(props, "id"),
		CanonicalKey:     asString(props, "canonical_key"),
		Name:             asString(props, "name"),
		LegalName:        asString(props, "legal_name"),
		Domain:           asString(props, "domain"),
		Website:          asString(props, "website"),
		OrganizationType: types.OrganizationType(asString(props, "organization_type")),
		Industry:         asString(props, "industry"),
		Stage:            asString(props, "stage"),
		PrivacyTier:      types.PrivacyTier(asString(props, "privacy_tier")),
		CreatedAt:        asTime(props, "created_at"),
		UpdatedAt:        asTime(props, "updated_at"),
	}
}

func (s *Neo4jStore) InsertOrganization(ctx context.Context, o *types.Organization) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `CREATE (n:Organization) SET n = $props`,
			map[string]any{"props": orgProps(o)})
	})
	return err
}

func (s *Neo4jStore) UpdateOrganization(ctx context.Context, o *types.Organization) error {
	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Organization {id: $id})
			SET n = $props
			RETURN n.id`,
			map[string]any{"id": o.ID, "props": orgProps(o)})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return len(records), nil
	})
	if err != nil {
		return err
	}
	if result.(int) == 0 {
		return types.NewNotFoundError(types.EntityOrganization, o.ID)
	}
	return nil
}

func (s *Neo4jStore) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	props, err := s.singleProps(ctx, `MATCH (n:Organization {id: $id}) RETURN n`,
		map[string]any{"id": id})
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityOrganization, id)
	}
	if err != nil {
		return nil, err
	}
	return orgFromProps(props), nil
}

func (s *Neo4jStore) GetOrganizationByKey(ctx context.Context, canonicalKey string) (*types.Organization, error) {
	props, err := s.singleProps(ctx, `MATCH (n:Organization {canonical_key: $key}) RETURN n`,
		map[string]any{"key": canonicalKey})
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityOrganization, canonicalKey)
	}
	if err != nil {
		return nil, err
	}
	return orgFromProps(props), nil
}

func (s *Neo4jStore) ListOrganizations(ctx context.Context) ([]*types.Organization, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Organization) RETURN n ORDER BY n.id`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Organization, 0, len(all))
	for _, props := range all {
		out = append(out, orgFromProps(props))
	}
	return out, nil
}

// --- Facts ---

func factProps(f *types.Fact) map[string]any {
	props := map[string]any{
		"id":               f.ID,
		"entity_kind":      string(f.Entity.Kind),
		"entity_id":        f.Entity.ID,
		"fact_type":        f.FactType,
		"key":              f.Key,
		"value":            f.Value,
		"source_type":      string(f.Source),
		"source_id":        f.SourceID,
		"confidence":       f.Confidence,
		"valid_from":       f.ValidFrom,
		"replaced_by_fact": f.ReplacedByFact,
		"created_by":       f.CreatedBy,
		"created_at":       f.CreatedAt,
	}
	if f.ValidUntil != nil {
		props["valid_until"] = *f.ValidUntil
	}
	return props
}

func factFromProps(props map[string]any) *types.Fact {
	return &types.Fact{
		ID: asString(props, "id"),
		Entity: types.EntityRef{
			Kind: types.EntityKind(asString(props, "entity_kind")),
			ID:   asString(props, "entity_id"),
		},
		FactType:       asString(props, "fact_type"),
		Key:            asString(props, "key"),
		Value:          asString(props, "value"),
		Source:         types.SourceType(asString(props, "source_type")),
		SourceID:       asString(props, "source_id"),
		Confidence:     asFloat(props, "confidence"),
		ValidFrom:      asTime(props, "valid_from"),
		ValidUntil:     asTimePtr(props, "valid_until"),
		ReplacedByFact: asString(props, "replaced_by_fact"),
		CreatedBy:      asString(props, "created_by"),
		CreatedAt:      asTime(props, "created_at"),
	}
}

// insertFactTx enforces the one-current-fact invariant before creating
// the node, inside the caller's transaction.
func insertFactTx(ctx context.Context, tx neo4j.ManagedTransaction, f *types.Fact) error {
	if f.IsCurrent() {
		res, err := tx.Run(ctx, `
			MATCH (n:Fact {entity_kind: $kind, entity_id: $id, fact_type: $factType, key: $key})
			WHERE n.valid_until IS NULL
			RETURN n.id LIMIT 1`,
			map[string]any{
				"kind":     string(f.Entity.Kind),
				"id":       f.Entity.ID,
				"factType": f.FactType,
				"key":      f.Key,
			})
		if err != nil {
			return err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			return types.ErrDuplicateKey
		}
	}
	_, err := tx.Run(ctx, `CREATE (n:Fact) SET n = $props`,
		map[string]any{"props": factProps(f)})
	return err
}

func (s *Neo4jStore) InsertFact(ctx context.Context, f *types.Fact) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, insertFactTx(ctx, tx, f)
	})
	return err
}

func (s *Neo4jStore) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	props, err := s.singleProps(ctx, `MATCH (n:Fact {id: $id}) RETURN n`,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return factFromProps(props), nil
}

func (s *Neo4jStore) queryFacts(ctx context.Context, query string, params map[string]any) ([]*types.Fact, error) {
	all, err := s.collectProps(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Fact, 0, len(all))
	for _, props := range all {
		out = append(out, factFromProps(props))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ID < out[j].ID
		}
		return out[i].ValidFrom.Before(out[j].ValidFrom)
	})
	return out, nil
}

func (s *Neo4jStore) CurrentFacts(ctx context.Context, ref types.EntityRef) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		MATCH (n:Fact {entity_kind: $kind, entity_id: $id})
		WHERE n.valid_until IS NULL
		RETURN n`,
		map[string]any{"kind": string(ref.Kind), "id": ref.ID})
}

func (s *Neo4jStore) CurrentFactsForKey(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		MATCH (n:Fact {entity_kind: $kind, entity_id: $id, fact_type: $factType, key: $key})
		WHERE n.valid_until IS NULL
		RETURN n`,
		map[string]any{"kind": string(ref.Kind), "id": ref.ID, "factType": factType, "key": key})
}

func (s *Neo4jStore) FactHistory(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		MATCH (n:Fact {entity_kind: $kind, entity_id: $id, fact_type: $factType, key: $key})
		RETURN n`,
		map[string]any{"kind": string(ref.Kind), "id": ref.ID, "factType": factType, "key": key})
}

func (s *Neo4jStore) FactsAt(ctx context.Context, ref types.EntityRef, at time.Time) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		MATCH (n:Fact {entity_kind: $kind, entity_id: $id})
		WHERE n.valid_from <= $at AND (n.valid_until IS NULL OR n.valid_until >= $at)
		RETURN n`,
		map[string]any{"kind": string(ref.Kind), "id": ref.ID, "at": at})
}

func (s *Neo4jStore) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `MATCH (n:Fact) RETURN n`, nil)
}

func (s *Neo4jStore) SupersedeFacts(ctx context.Context, newFact *types.Fact, supersededIDs []string, at time.Time) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(supersededIDs) > 0 {
			_, err := tx.Run(ctx, `
				MATCH (n:Fact)
				WHERE n.id IN $ids AND n.valid_until IS NULL
				SET n.valid_until = $at, n.replaced_by_fact = $newID`,
				map[string]any{"ids": supersededIDs, "at": at, "newID": newFact.ID})
			if err != nil {
				return nil, err
			}
		}
		return nil, insertFactTx(ctx, tx, newFact)
	})
	return err
}

// --- Referencing records ---

func (s *Neo4jStore) createNode(ctx context.Context, label string, props map[string]any) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `CREATE (n:`+label+`) SET n = $props`,
			map[string]any{"props": props})
	})
	return err
}

func (s *Neo4jStore) InsertTask(ctx context.Context, t *types.Task) error {
	props := map[string]any{
		"id": t.ID, "person_id": t.PersonID, "title": t.Title, "done": t.Done,
	}
	if t.DueAt != nil {
		props["due_at"] = *t.DueAt
	}
	return s.createNode(ctx, "Task", props)
}

func (s *Neo4jStore) InsertCommitment(ctx context.Context, c *types.Commitment) error {
	return s.createNode(ctx, "Commitment", map[string]any{
		"id": c.ID, "person_id": c.PersonID, "description": c.Description,
		"status": c.Status, "created_at": c.CreatedAt,
	})
}

func (s *Neo4jStore) InsertDeal(ctx context.Context, d *types.Deal) error {
	return s.createNode(ctx, "Deal", map[string]any{
		"id": d.ID, "organization_id": d.OrganizationID, "name": d.Name,
		"stage": d.Stage, "amount_usd": d.AmountUSD,
	})
}

func (s *Neo4jStore) InsertInvestment(ctx context.Context, inv *types.Investment) error {
	return s.createNode(ctx, "Investment", map[string]any{
		"id": inv.ID, "organization_id": inv.OrganizationID, "person_id": inv.PersonID,
		"round": inv.Round, "amount_usd": inv.AmountUSD, "invested_at": inv.InvestedAt,
	})
}

func (s *Neo4jStore) InsertMetric(ctx context.Context, m *types.Metric) error {
	return s.createNode(ctx, "Metric", map[string]any{
		"id": m.ID, "organization_id": m.OrganizationID, "name": m.Name,
		"value": m.Value, "recorded_at": m.RecordedAt,
	})
}

func (s *Neo4jStore) InsertRelationshipEdge(ctx context.Context, e *types.RelationshipEdge) error {
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return err
	}
	return s.createNode(ctx, "RelationshipEdge", map[string]any{
		"id":          e.ID,
		"source_kind": string(e.Source.Kind), "source_id": e.Source.ID,
		"target_kind": string(e.Target.Kind), "target_id": e.Target.ID,
		"rel_type": string(e.Meta.Type), "meta": string(meta),
		"created_at": e.CreatedAt,
	})
}

func (s *Neo4jStore) TasksForPerson(ctx context.Context, personID string) ([]*types.Task, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Task {person_id: $id}) RETURN n`,
		map[string]any{"id": personID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Task, 0, len(all))
	for _, props := range all {
		out = append(out, &types.Task{
			ID:       asString(props, "id"),
			PersonID: asString(props, "person_id"),
			Title:    asString(props, "title"),
			DueAt:    asTimePtr(props, "due_at"),
			Done:     asBool(props, "done"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) CommitmentsForPerson(ctx context.Context, personID string) ([]*types.Commitment, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Commitment {person_id: $id}) RETURN n`,
		map[string]any{"id": personID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Commitment, 0, len(all))
	for _, props := range all {
		out = append(out, &types.Commitment{
			ID:          asString(props, "id"),
			PersonID:    asString(props, "person_id"),
			Description: asString(props, "description"),
			Status:      asString(props, "status"),
			CreatedAt:   asTime(props, "created_at"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) DealsForOrganization(ctx context.Context, orgID string) ([]*types.Deal, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Deal {organization_id: $id}) RETURN n`,
		map[string]any{"id": orgID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Deal, 0, len(all))
	for _, props := range all {
		out = append(out, &types.Deal{
			ID:             asString(props, "id"),
			OrganizationID: asString(props, "organization_id"),
			Name:           asString(props, "name"),
			Stage:          asString(props, "stage"),
			AmountUSD:      asFloat(props, "amount_usd"),
		})
	}
	return out, nil
}

func investmentsFromProps(all []map[string]any) []*types.Investment {
	out := make([]*types.Investment, 0, len(all))
	for _, props := range all {
		out = append(out, &types.Investment{
			ID:             asString(props, "id"),
			OrganizationID: asString(props, "organization_id"),
			PersonID:       asString(props, "person_id"),
			Round:          asString(props, "round"),
			AmountUSD:      asFloat(props, "amount_usd"),
			InvestedAt:     asTime(props, "invested_at"),
		})
	}
	return out
}

func (s *Neo4jStore) InvestmentsForOrganization(ctx context.Context, orgID string) ([]*types.Investment, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Investment {organization_id: $id}) RETURN n`,
		map[string]any{"id": orgID})
	if err != nil {
		return nil, err
	}
	return investmentsFromProps(all), nil
}

func (s *Neo4jStore) InvestmentsForPerson(ctx context.Context, personID string) ([]*types.Investment, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Investment {person_id: $id}) RETURN n`,
		map[string]any{"id": personID})
	if err != nil {
		return nil, err
	}
	return investmentsFromProps(all), nil
}

func (s *Neo4jStore) MetricsForOrganization(ctx context.Context, orgID string) ([]*types.Metric, error) {
	all, err := s.collectProps(ctx, `MATCH (n:Metric {organization_id: $id}) RETURN n`,
		map[string]any{"id": orgID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Metric, 0, len(all))
	for _, props := range all {
		out = append(out, &types.Metric{
			ID:             asString(props, "id"),
			OrganizationID: asString(props, "organization_id"),
			Name:           asString(props, "name"),
			Value:          asFloat(props, "value"),
			RecordedAt:     asTime(props, "recorded_at"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) EdgesTouching(ctx context.Context, ref types.EntityRef) ([]*types.RelationshipEdge, error) {
	all, err := s.collectProps(ctx, `
		MATCH (n:RelationshipEdge)
		WHERE (n.source_kind = $kind AND n.source_id = $id)
			OR (n.target_kind = $kind AND n.target_id = $id)
		RETURN n`,
		map[string]any{"kind": string(ref.Kind), "id": ref.ID})
	if err != nil {
		return nil, err
	}
	out := make([]*types.RelationshipEdge, 0, len(all))
	for _, props := range all {
		e := &types.RelationshipEdge{
			ID: asString(props, "id"),
			Source: types.EntityRef{
				Kind: types.EntityKind(asString(props, "source_kind")),
				ID:   asString(props, "source_id"),
			},
			Target: types.EntityRef{
				Kind: types.EntityKind(asString(props, "target_kind")),
				ID:   asString(props, "target_id"),
			},
			CreatedAt: asTime(props, "created_at"),
		}
		if err := decodeMeta([]byte(asString(props, "meta")), &e.Meta); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// --- Interactions and relationship strength ---

func (s *Neo4jStore) UpsertInteractionStats(ctx context.Context, st *types.InteractionStats) error {
	props := map[string]any{
		"person_id":          st.PersonID,
		"total_interactions": st.TotalInteractions,
		"interactions_90d":   st.Interactions90d,
		"sent_count":         st.SentCount,
		"received_count":     st.ReceivedCount,
		"avg_thread_depth":   st.AvgThreadDepth,
	}
	if st.LastInteractionAt != nil {
		props["last_interaction_at"] = *st.LastInteractionAt
	}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (n:InteractionStats {person_id: $id})
			SET n = $props`,
			map[string]any{"id": st.PersonID, "props": props})
	})
	return err
}

func interactionStatsFromProps(props map[string]any) *types.InteractionStats {
	return &types.InteractionStats{
		PersonID:          asString(props, "person_id"),
		TotalInteractions: asInt(props, "total_interactions"),
		Interactions90d:   asInt(props, "interactions_90d"),
		LastInteractionAt: asTimePtr(props, "last_interaction_at"),
		SentCount:         asInt(props, "sent_count"),
		ReceivedCount:     asInt(props, "received_count"),
		AvgThreadDepth:    asFloat(props, "avg_thread_depth"),
	}
}

func (s *Neo4jStore) InteractionStats(ctx context.Context, personID string) (*types.InteractionStats, error) {
	props, err := s.singleProps(ctx, `MATCH (n:InteractionStats {person_id: $id}) RETURN n`,
		map[string]any{"id": personID})
	if err != nil {
		return nil, err
	}
	return interactionStatsFromProps(props), nil
}

func (s *Neo4jStore) ListInteractionStats(ctx context.Context) ([]*types.InteractionStats, error) {
	all, err := s.collectProps(ctx,
		`MATCH (n:InteractionStats) RETURN n ORDER BY n.person_id`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*types.InteractionStats, 0, len(all))
	for _, props := range all {
		out = append(out, interactionStatsFromProps(props))
	}
	return out, nil
}

func (s *Neo4jStore) GetRelationshipStrength(ctx context.Context, personID string) (*types.RelationshipStrength, error) {
	props, err := s.singleProps(ctx, `MATCH (n:RelationshipStrength {person_id: $id}) RETURN n`,
		map[string]any{"id": personID})
	if err != nil {
		return nil, err
	}
	return &types.RelationshipStrength{
		PersonID:     asString(props, "person_id"),
		Strength:     asFloat(props, "strength"),
		Trend:        types.Trend(asString(props, "trend")),
		Recency:      asFloat(props, "recency"),
		Frequency:    asFloat(props, "frequency"),
		Engagement:   asFloat(props, "engagement"),
		Reciprocity:  asFloat(props, "reciprocity"),
		TotalEmails:  asInt(props, "total_emails"),
		LastEmailAt:  asTimePtr(props, "last_email_at"),
		CalculatedAt: asTime(props, "calculated_at"),
	}, nil
}

func (s *Neo4jStore) UpsertRelationshipStrength(ctx context.Context, rs *types.RelationshipStrength) error {
	props := map[string]any{
		"person_id":     rs.PersonID,
		"strength":      rs.Strength,
		"trend":         string(rs.Trend),
		"recency":       rs.Recency,
		"frequency":     rs.Frequency,
		"engagement":    rs.Engagement,
		"reciprocity":   rs.Reciprocity,
		"total_emails":  rs.TotalEmails,
		"calculated_at": rs.CalculatedAt,
	}
	if rs.LastEmailAt != nil {
		props["last_email_at"] = *rs.LastEmailAt
	}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (n:RelationshipStrength {person_id: $id})
			SET n = $props`,
			map[string]any{"id": rs.PersonID, "props": props})
	})
	return err
}

// --- Merge ---

func (s *Neo4jStore) MergePeople(ctx context.Context, primaryID, duplicateID string) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := nodeExistsTx(ctx, tx, "Person", primaryID, types.EntityPerson); err != nil {
			return nil, err
		}
		if err := nodeExistsTx(ctx, tx, "Person", duplicateID, types.EntityPerson); err != nil {
			return nil, err
		}

		statements := []string{
			closeCollidingFactsCypher,
			`MATCH (n:Fact {entity_kind: 'person', entity_id: $dup}) SET n.entity_id = $primary`,
			`MATCH (n:Task {person_id: $dup}) SET n.person_id = $primary`,
			`MATCH (n:Commitment {person_id: $dup}) SET n.person_id = $primary`,
			`MATCH (n:Investment {person_id: $dup}) SET n.person_id = $primary`,
			`MATCH (n:RelationshipEdge) WHERE n.source_kind = 'person' AND n.source_id = $dup
				SET n.source_id = $primary`,
			`MATCH (n:RelationshipEdge) WHERE n.target_kind = 'person' AND n.target_id = $dup
				SET n.target_id = $primary`,
			`MATCH (n:InteractionStats {person_id: $dup})
				WHERE NOT EXISTS { MATCH (:InteractionStats {person_id: $primary}) }
				SET n.person_id = $primary`,
			`MATCH (n:InteractionStats {person_id: $dup}) DELETE n`,
			`MATCH (n:RelationshipStrength {person_id: $dup})
				WHERE NOT EXISTS { MATCH (:RelationshipStrength {person_id: $primary}) }
				SET n.person_id = $primary`,
			`MATCH (n:RelationshipStrength {person_id: $dup}) DELETE n`,
		}
		params := map[string]any{
			"dup": duplicateID, "primary": primaryID,
			"kind": string(types.EntityPerson), "at": time.Now().UTC(),
		}
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt, params); err != nil {
				return nil, err
			}
		}

		if err := recordMergeTx(ctx, tx, types.EntityPerson, duplicateID, primaryID); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `MATCH (n:Person {id: $dup}) DELETE n`, params)
		return nil, err
	})
	return err
}

func (s *Neo4jStore) MergeOrganizations(ctx context.Context, primaryID, duplicateID string) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := nodeExistsTx(ctx, tx, "Organization", primaryID, types.EntityOrganization); err != nil {
			return nil, err
		}
		if err := nodeExistsTx(ctx, tx, "Organization", duplicateID, types.EntityOrganization); err != nil {
			return nil, err
		}

		statements := []string{
			closeCollidingFactsCypher,
			`MATCH (n:Fact {entity_kind: 'organization', entity_id: $dup}) SET n.entity_id = $primary`,
			`MATCH (n:Deal {organization_id: $dup}) SET n.organization_id = $primary`,
			`MATCH (n:Investment {organization_id: $dup}) SET n.organization_id = $primary`,
			`MATCH (n:Metric {organization_id: $dup}) SET n.organization_id = $primary`,
			`MATCH (n:RelationshipEdge) WHERE n.source_kind = 'organization' AND n.source_id = $dup
				SET n.source_id = $primary`,
			`MATCH (n:RelationshipEdge) WHERE n.target_kind = 'organization' AND n.target_id = $dup
				SET n.target_id = $primary`,
		}
		params := map[string]any{
			"dup": duplicateID, "primary": primaryID,
			"kind": string(types.EntityOrganization), "at": time.Now().UTC(),
		}
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt, params); err != nil {
				return nil, err
			}
		}

		if err := recordMergeTx(ctx, tx, types.EntityOrganization, duplicateID, primaryID); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `MATCH (n:Organization {id: $dup}) DELETE n`, params)
		return nil, err
	})
	return err
}

// closeCollidingFactsCypher closes every current fact of the duplicate
// whose (fact_type, key) also has a current fact on the primary, marking
// it superseded by the primary's fact. Reassigning such facts as-is would
// leave two current facts for one key.
const closeCollidingFactsCypher = `
	MATCH (d:Fact {entity_kind: $kind, entity_id: $dup})
	WHERE d.valid_until IS NULL
	MATCH (p:Fact {entity_kind: $kind, entity_id: $primary, fact_type: d.fact_type, key: d.key})
	WHERE p.valid_until IS NULL
	SET d.valid_until = $at, d.replaced_by_fact = p.id`

func nodeExistsTx(ctx context.Context, tx neo4j.ManagedTransaction, label, id string, kind types.EntityKind) error {
	res, err := tx.Run(ctx, `MATCH (n:`+label+` {id: $id}) RETURN n.id LIMIT 1`,
		map[string]any{"id": id})
	if err != nil {
		return err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return types.NewNotFoundError(kind, id)
	}
	return nil
}

func recordMergeTx(ctx context.Context, tx neo4j.ManagedTransaction, kind types.EntityKind, duplicateID, primaryID string) error {
	_, err := tx.Run(ctx, `CREATE (n:MergeRecord) SET n = $props`,
		map[string]any{"props": map[string]any{
			"id":           newMergeID(),
			"kind":         string(kind),
			"duplicate_id": duplicateID,
			"primary_id":   primaryID,
			"merged_at":    time.Now().UTC(),
		}})
	return err
}

func (s *Neo4jStore) MergeHistory(ctx context.Context, kind types.EntityKind) ([]*types.MergeRecord, error) {
	all, err := s.collectProps(ctx,
		`MATCH (n:MergeRecord {kind: $kind}) RETURN n ORDER BY n.merged_at`,
		map[string]any{"kind": string(kind)})
	if err != nil {
		return nil, err
	}
	out := make([]*types.MergeRecord, 0, len(all))
	for _, props := range all {
		out = append(out, &types.MergeRecord{
			ID:          asString(props, "id"),
			Kind:        types.EntityKind(asString(props, "kind")),
			DuplicateID: asString(props, "duplicate_id"),
			PrimaryID:   asString(props, "primary_id"),
			MergedAt:    asTime(props, "merged_at"),
		})
	}
	return out, nil
}
