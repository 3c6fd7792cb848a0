package dedupe_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/relato/pkg/dedupe"
	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

func insertPerson(t *testing.T, s store.Store, name, email string) *types.Person {
	t.Helper()
	now := time.Now().UTC()
	key := "name:" + uuid.NewString()
	if email != "" {
		key = "email:" + email
	}
	p := &types.Person{
		ID:              uuid.NewString(),
		CanonicalKey:    key,
		FullName:        name,
		Email:           email,
		PrivacyTier:     types.PrivacyStandard,
		LastContactedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.InsertPerson(context.Background(), p))
	return p
}

// insertOrg keys every row by a fresh uuid so fixtures may share a domain;
// the detector compares the domain field, not the canonical key.
func insertOrg(t *testing.T, s store.Store, name, domain string) *types.Organization {
	t.Helper()
	now := time.Now().UTC()
	o := &types.Organization{
		ID:           uuid.NewString(),
		CanonicalKey: "name:" + uuid.NewString(),
		Name:         name,
		Domain:       domain,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.InsertOrganization(context.Background(), o))
	return o
}

func TestFindDuplicatePeople(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	d := dedupe.NewDetector(s, 0, 0)

	target := insertPerson(t, s, "Jonathan Smith", "")
	near := insertPerson(t, s, "JONATHAN   smith", "")
	insertPerson(t, s, "Grace Hopper", "")

	matches, err := d.FindDuplicatePeople(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, near.ID, matches[0].EntityID)
	assert.GreaterOrEqual(t, matches[0].Score, dedupe.DefaultPersonThreshold)
}

func TestFindDuplicatePeopleEmailExactMatch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	d := dedupe.NewDetector(s, 0, 0)

	target := insertPerson(t, s, "Ada Lovelace", "ada@example.com")
	// Completely different display name, same mailbox.
	same := insertPerson(t, s, "A. King", "Ada@Example.com")

	matches, err := d.FindDuplicatePeople(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, same.ID, matches[0].EntityID)
	assert.Equal(t, 1.0, matches[0].Score)
}

func TestFindDuplicatePeopleSorted(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	// Threshold low enough to catch several candidates.
	d := dedupe.NewDetector(s, 0.3, 0)

	target := insertPerson(t, s, "Jonathan Smith", "")
	insertPerson(t, s, "Jonathan Smyth", "")
	insertPerson(t, s, "Jon Smith", "")

	matches, err := d.FindDuplicatePeople(ctx, target.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(matches), 2)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestFindDuplicatePeopleUnknownID(t *testing.T) {
	d := dedupe.NewDetector(store.NewMemoryStore(), 0, 0)
	_, err := d.FindDuplicatePeople(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFindDuplicateOrganizations(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	d := dedupe.NewDetector(s, 0, 0)

	target := insertOrg(t, s, "Acme Labs", "acme.com")
	domainTwin := insertOrg(t, s, "Completely Different Name", "acme.com")
	nameTwin := insertOrg(t, s, "ACME Labs", "")
	insertOrg(t, s, "Umbrella Corp", "umbrella.example")

	matches, err := d.FindDuplicateOrganizations(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	found := map[string]float64{}
	for _, m := range matches {
		found[m.EntityID] = m.Score
	}
	assert.Equal(t, 1.0, found[domainTwin.ID])
	assert.Equal(t, 1.0, found[nameTwin.ID])
}

func TestMergerSelfMerge(t *testing.T) {
	s := store.NewMemoryStore()
	m := dedupe.NewMerger(s, nil)

	err := m.MergePeople(context.Background(), "same", "same")
	assert.ErrorIs(t, err, types.ErrSelfMerge)
}

func TestMergerUnknownIDs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := dedupe.NewMerger(s, nil)

	p := insertPerson(t, s, "Ada Lovelace", "ada@example.com")

	err := m.MergePeople(ctx, p.ID, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = m.MergePeople(ctx, "missing", p.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMergerCycleRejected(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := dedupe.NewMerger(s, nil)

	a := insertPerson(t, s, "Ada Lovelace", "ada@example.com")
	b := insertPerson(t, s, "Ada L.", "")

	require.NoError(t, m.MergePeople(ctx, b.ID, a.ID))

	// a was merged into b; merging b back into a would make each the
	// other's ancestor.
	err := m.MergePeople(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, types.ErrMergeCycle)
}

func TestResolveMergedID(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := dedupe.NewMerger(s, nil)

	a := insertPerson(t, s, "Ada Lovelace", "ada@example.com")
	b := insertPerson(t, s, "Ada L.", "")
	c := insertPerson(t, s, "A. Lovelace", "")

	// c -> b, then b -> a: both stale ids resolve to a.
	require.NoError(t, m.MergePeople(ctx, b.ID, c.ID))
	require.NoError(t, m.MergePeople(ctx, a.ID, b.ID))

	got, err := m.ResolveMergedID(ctx, types.EntityPerson, c.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got)

	got, err = m.ResolveMergedID(ctx, types.EntityPerson, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got)

	// Never-merged ids resolve to themselves.
	got, err = m.ResolveMergedID(ctx, types.EntityPerson, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got)
}
