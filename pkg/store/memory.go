package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/relato/pkg/types"
)

// MemoryStore is an in-process Store used for tests and as the default
// backend when no connection is configured. A single mutex stands in for
// backend transactions: compound operations hold it for their whole
// duration, so partial effects are never observable.
type MemoryStore struct {
	mu sync.RWMutex

	people       map[string]*types.Person
	peopleByKey  map[string]string
	orgs         map[string]*types.Organization
	orgsByKey    map[string]string
	facts        map[string]*types.Fact
	tasks        map[string]*types.Task
	commitments  map[string]*types.Commitment
	deals        map[string]*types.Deal
	investments  map[string]*types.Investment
	metrics      map[string]*types.Metric
	edges        map[string]*types.RelationshipEdge
	interactions map[string]*types.InteractionStats
	strengths    map[string]*types.RelationshipStrength
	mergeHistory []*types.MergeRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		people:       make(map[string]*types.Person),
		peopleByKey:  make(map[string]string),
		orgs:         make(map[string]*types.Organization),
		orgsByKey:    make(map[string]string),
		facts:        make(map[string]*types.Fact),
		tasks:        make(map[string]*types.Task),
		commitments:  make(map[string]*types.Commitment),
		deals:        make(map[string]*types.Deal),
		investments:  make(map[string]*types.Investment),
		metrics:      make(map[string]*types.Metric),
		edges:        make(map[string]*types.RelationshipEdge),
		interactions: make(map[string]*types.InteractionStats),
		strengths:    make(map[string]*types.RelationshipStrength),
	}
}

// Initialize is a no-op; the maps are the schema.
func (m *MemoryStore) Initialize(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// --- People ---

func (m *MemoryStore) InsertPerson(ctx context.Context, p *types.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.peopleByKey[p.CanonicalKey]; exists {
		return types.ErrDuplicateKey
	}
	cp := *p
	m.people[cp.ID] = &cp
	m.peopleByKey[cp.CanonicalKey] = cp.ID
	return nil
}

func (m *MemoryStore) UpdatePerson(ctx context.Context, p *types.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.people[p.ID]
	if !ok {
		return types.NewNotFoundError(types.EntityPerson, p.ID)
	}
	if old.CanonicalKey != p.CanonicalKey {
		if _, exists := m.peopleByKey[p.CanonicalKey]; exists {
			return types.ErrDuplicateKey
		}
		delete(m.peopleByKey, old.CanonicalKey)
		m.peopleByKey[p.CanonicalKey] = p.ID
	}
	cp := *p
	m.people[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.people[id]
	if !ok {
		return nil, types.NewNotFoundError(types.EntityPerson, id)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetPersonByKey(ctx context.Context, canonicalKey string) (*types.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.peopleByKey[canonicalKey]
	if !ok {
		return nil, types.NewNotFoundError(types.EntityPerson, canonicalKey)
	}
	cp := *m.people[id]
	return &cp, nil
}

func (m *MemoryStore) ListPeople(ctx context.Context) ([]*types.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Person, 0, len(m.people))
	for _, p := range m.people {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Organizations ---

func (m *MemoryStore) InsertOrganization(ctx context.Context, o *types.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orgsByKey[o.CanonicalKey]; exists {
		return types.ErrDuplicateKey
	}
	cp := *o
	m.orgs[cp.ID] = &cp
	m.orgsByKey[cp.CanonicalKey] = cp.ID
	return nil
}

func (m *MemoryStore) UpdateOrganization(ctx context.Context, o *types.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.orgs[o.ID]
	if !ok {
		return types.NewNotFoundError(types.EntityOrganization, o.ID)
	}
	if old.CanonicalKey != o.CanonicalKey {
		if _, exists := m.orgsByKey[o.CanonicalKey]; exists {
			return types.ErrDuplicateKey
		}
		delete(m.orgsByKey, old.CanonicalKey)
		m.orgsByKey[o.CanonicalKey] = o.ID
	}
	cp := *o
	m.orgs[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orgs[id]
	if !ok {
		return nil, types.NewNotFoundError(types.EntityOrganization, id)
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) GetOrganizationByKey(ctx context.Context, canonicalKey string) (*types.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.orgsByKey[canonicalKey]
	if !ok {
		return nil, types.NewNotFoundError(types.EntityOrganization, canonicalKey)
	}
	cp := *m.orgs[id]
	return &cp, nil
}

func (m *MemoryStore) ListOrganizations(ctx context.Context) ([]*types.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Facts ---

func (m *MemoryStore) InsertFact(ctx context.Context, f *types.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertFactLocked(f)
}

// insertFactLocked enforces the fact-currency partial uniqueness: at most
// one current fact per (entity, fact_type, key).
func (m *MemoryStore) insertFactLocked(f *types.Fact) error {
	if f.IsCurrent() {
		for _, existing := range m.facts {
			if existing.IsCurrent() &&
				existing.Entity == f.Entity &&
				existing.FactType == f.FactType &&
				existing.Key == f.Key {
				return types.ErrDuplicateKey
			}
		}
	}
	cp := *f
	if cp.ValidUntil != nil {
		until := *f.ValidUntil
		cp.ValidUntil = &until
	}
	m.facts[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.facts[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := copyFact(f)
	return cp, nil
}

func copyFact(f *types.Fact) *types.Fact {
	cp := *f
	if f.ValidUntil != nil {
		until := *f.ValidUntil
		cp.ValidUntil = &until
	}
	return &cp
}

func (m *MemoryStore) CurrentFacts(ctx context.Context, ref types.EntityRef) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Fact
	for _, f := range m.facts {
		if f.Entity == ref && f.IsCurrent() {
			out = append(out, copyFact(f))
		}
	}
	sortFacts(out)
	return out, nil
}

func (m *MemoryStore) CurrentFactsForKey(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Fact
	for _, f := range m.facts {
		if f.Entity == ref && f.FactType == factType && f.Key == key && f.IsCurrent() {
			out = append(out, copyFact(f))
		}
	}
	sortFacts(out)
	return out, nil
}

func (m *MemoryStore) FactHistory(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Fact
	for _, f := range m.facts {
		if f.Entity == ref && f.FactType == factType && f.Key == key {
			out = append(out, copyFact(f))
		}
	}
	sortFacts(out)
	return out, nil
}

func (m *MemoryStore) FactsAt(ctx context.Context, ref types.EntityRef, at time.Time) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Fact
	for _, f := range m.facts {
		if f.Entity == ref && f.ActiveAt(at) {
			out = append(out, copyFact(f))
		}
	}
	sortFacts(out)
	return out, nil
}

func (m *MemoryStore) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Fact, 0, len(m.facts))
	for _, f := range m.facts {
		out = append(out, copyFact(f))
	}
	sortFacts(out)
	return out, nil
}

func sortFacts(facts []*types.Fact) {
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].ValidFrom.Equal(facts[j].ValidFrom) {
			return facts[i].ID < facts[j].ID
		}
		return facts[i].ValidFrom.Before(facts[j].ValidFrom)
	})
}

func (m *MemoryStore) SupersedeFacts(ctx context.Context, newFact *types.Fact, supersededIDs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range supersededIDs {
		f, ok := m.facts[id]
		if !ok {
			return types.ErrNotFound
		}
		if !f.IsCurrent() {
			continue
		}
		until := at
		f.ValidUntil = &until
		f.ReplacedByFact = newFact.ID
	}
	return m.insertFactLocked(newFact)
}

// --- Referencing records ---

func (m *MemoryStore) InsertTask(ctx context.Context, t *types.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.tasks[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) InsertCommitment(ctx context.Context, c *types.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.commitments[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) InsertDeal(ctx context.Context, d *types.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.deals[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) InsertInvestment(ctx context.Context, inv *types.Investment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.investments[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) InsertMetric(ctx context.Context, mt *types.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mt
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.metrics[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) InsertRelationshipEdge(ctx context.Context, e *types.RelationshipEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.edges[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) TasksForPerson(ctx context.Context, personID string) ([]*types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Task
	for _, t := range m.tasks {
		if t.PersonID == personID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) CommitmentsForPerson(ctx context.Context, personID string) ([]*types.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Commitment
	for _, c := range m.commitments {
		if c.PersonID == personID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) DealsForOrganization(ctx context.Context, orgID string) ([]*types.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Deal
	for _, d := range m.deals {
		if d.OrganizationID == orgID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) InvestmentsForOrganization(ctx context.Context, orgID string) ([]*types.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Investment
	for _, inv := range m.investments {
		if inv.OrganizationID == orgID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) InvestmentsForPerson(ctx context.Context, personID string) ([]*types.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Investment
	for _, inv := range m.investments {
		if inv.PersonID == personID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) MetricsForOrganization(ctx context.Context, orgID string) ([]*types.Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Metric
	for _, mt := range m.metrics {
		if mt.OrganizationID == orgID {
			cp := *mt
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) EdgesTouching(ctx context.Context, ref types.EntityRef) ([]*types.RelationshipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.RelationshipEdge
	for _, e := range m.edges {
		if e.Source == ref || e.Target == ref {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Interactions and relationship strength ---

func (m *MemoryStore) UpsertInteractionStats(ctx context.Context, s *types.InteractionStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if s.LastInteractionAt != nil {
		at := *s.LastInteractionAt
		cp.LastInteractionAt = &at
	}
	m.interactions[cp.PersonID] = &cp
	return nil
}

func (m *MemoryStore) InteractionStats(ctx context.Context, personID string) (*types.InteractionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.interactions[personID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *s
	if s.LastInteractionAt != nil {
		at := *s.LastInteractionAt
		cp.LastInteractionAt = &at
	}
	return &cp, nil
}

func (m *MemoryStore) ListInteractionStats(ctx context.Context) ([]*types.InteractionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.InteractionStats, 0, len(m.interactions))
	for _, s := range m.interactions {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out, nil
}

func (m *MemoryStore) GetRelationshipStrength(ctx context.Context, personID string) (*types.RelationshipStrength, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strengths[personID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpsertRelationshipStrength(ctx context.Context, s *types.RelationshipStrength) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.strengths[cp.PersonID] = &cp
	return nil
}

// --- Merge ---

func (m *MemoryStore) MergePeople(ctx context.Context, primaryID, duplicateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.people[primaryID]; !ok {
		return types.NewNotFoundError(types.EntityPerson, primaryID)
	}
	dup, ok := m.people[duplicateID]
	if !ok {
		return types.NewNotFoundError(types.EntityPerson, duplicateID)
	}

	dupRef := types.EntityRef{Kind: types.EntityPerson, ID: duplicateID}
	primaryRef := types.EntityRef{Kind: types.EntityPerson, ID: primaryID}
	mergedAt := time.Now().UTC()

	m.closeCollidingFactsLocked(dupRef, primaryRef, mergedAt)
	for _, f := range m.facts {
		if f.Entity == dupRef {
			f.Entity = primaryRef
		}
	}
	for _, t := range m.tasks {
		if t.PersonID == duplicateID {
			t.PersonID = primaryID
		}
	}
	for _, c := range m.commitments {
		if c.PersonID == duplicateID {
			c.PersonID = primaryID
		}
	}
	for _, inv := range m.investments {
		if inv.PersonID == duplicateID {
			inv.PersonID = primaryID
		}
	}
	m.reassignEdgesLocked(dupRef, primaryRef)

	if _, has := m.interactions[primaryID]; !has {
		if s, ok := m.interactions[duplicateID]; ok {
			s.PersonID = primaryID
			m.interactions[primaryID] = s
		}
	}
	delete(m.interactions, duplicateID)
	if _, has := m.strengths[primaryID]; !has {
		if s, ok := m.strengths[duplicateID]; ok {
			s.PersonID = primaryID
			m.strengths[primaryID] = s
		}
	}
	delete(m.strengths, duplicateID)

	m.mergeHistory = append(m.mergeHistory, &types.MergeRecord{
		ID:          uuid.NewString(),
		Kind:        types.EntityPerson,
		DuplicateID: duplicateID,
		PrimaryID:   primaryID,
		MergedAt:    mergedAt,
	})

	delete(m.peopleByKey, dup.CanonicalKey)
	delete(m.people, duplicateID)
	return nil
}

func (m *MemoryStore) MergeOrganizations(ctx context.Context, primaryID, duplicateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[primaryID]; !ok {
		return types.NewNotFoundError(types.EntityOrganization, primaryID)
	}
	dup, ok := m.orgs[duplicateID]
	if !ok {
		return types.NewNotFoundError(types.EntityOrganization, duplicateID)
	}

	dupRef := types.EntityRef{Kind: types.EntityOrganization, ID: duplicateID}
	primaryRef := types.EntityRef{Kind: types.EntityOrganization, ID: primaryID}
	mergedAt := time.Now().UTC()

	m.closeCollidingFactsLocked(dupRef, primaryRef, mergedAt)
	for _, f := range m.facts {
		if f.Entity == dupRef {
			f.Entity = primaryRef
		}
	}
	for _, d := range m.deals {
		if d.OrganizationID == duplicateID {
			d.OrganizationID = primaryID
		}
	}
	for _, inv := range m.investments {
		if inv.OrganizationID == duplicateID {
			inv.OrganizationID = primaryID
		}
	}
	for _, mt := range m.metrics {
		if mt.OrganizationID == duplicateID {
			mt.OrganizationID = primaryID
		}
	}
	m.reassignEdgesLocked(dupRef, primaryRef)

	m.mergeHistory = append(m.mergeHistory, &types.MergeRecord{
		ID:          uuid.NewString(),
		Kind:        types.EntityOrganization,
		DuplicateID: duplicateID,
		PrimaryID:   primaryID,
		MergedAt:    mergedAt,
	})

	delete(m.orgsByKey, dup.CanonicalKey)
	delete(m.orgs, duplicateID)
	return nil
}

// closeCollidingFactsLocked closes every current fact of the duplicate
// whose (fact_type, key) also has a current fact on the primary, marking
// it superseded by the primary's fact. Reassigning such facts as-is would
// leave two current facts for one key.
func (m *MemoryStore) closeCollidingFactsLocked(dupRef, primaryRef types.EntityRef, at time.Time) {
	for _, df := range m.facts {
		if df.Entity != dupRef || !df.IsCurrent() {
			continue
		}
		for _, pf := range m.facts {
			if pf.Entity == primaryRef && pf.IsCurrent() &&
				pf.FactType == df.FactType && pf.Key == df.Key {
				until := at
				df.ValidUntil = &until
				df.ReplacedByFact = pf.ID
				break
			}
		}
	}
}

func (m *MemoryStore) reassignEdgesLocked(from, to types.EntityRef) {
	for _, e := range m.edges {
		if e.Source == from {
			e.Source = to
		}
		if e.Target == from {
			e.Target = to
		}
	}
}

func (m *MemoryStore) MergeHistory(ctx context.Context, kind types.EntityKind) ([]*types.MergeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.MergeRecord
	for _, rec := range m.mergeHistory {
		if rec.Kind == kind {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
