package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/relato/pkg/resolver"
	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

func TestResolvePersonIdempotent(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	in := types.PersonInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}

	first, err := r.ResolveOrCreatePerson(ctx, in, true)
	require.NoError(t, err)
	assert.True(t, first.IsNew)
	assert.Equal(t, "email:ada@example.com", first.Person.CanonicalKey)

	second, err := r.ResolveOrCreatePerson(ctx, in, true)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Person.ID, second.Person.ID)

	// The update path ran even though nothing differed.
	assert.True(t, second.WasUpdated)
}

func TestResolveIdenticalReobservationReportsUpdated(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	in := types.OrganizationInput{Name: "Acme", Domain: "acme.com"}
	_, err := r.ResolveOrCreateOrganization(ctx, in, true)
	require.NoError(t, err)

	// With updateIfExists the update path reports WasUpdated regardless
	// of whether any field value differed.
	res, err := r.ResolveOrCreateOrganization(ctx, in, true)
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.True(t, res.WasUpdated)

	// Without it the resolution is a pure read.
	res, err = r.ResolveOrCreateOrganization(ctx, in, false)
	require.NoError(t, err)
	assert.False(t, res.WasUpdated)
}

func TestResolvePersonCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	first, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{
		FirstName: "Ada", LastName: "Lovelace",
	}, true)
	require.NoError(t, err)

	second, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{
		FirstName: "  ADA", LastName: "lovelace  ",
	}, true)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Person.ID, second.Person.ID)
}

func TestResolvePersonFieldMerge(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	_, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
		Phone: "+44 20 0000 0000",
	}, true)
	require.NoError(t, err)

	// New observation adds LinkedIn but omits phone; the populated phone
	// must survive.
	res, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{
		Email:       "ada@example.com",
		LinkedInURL: "https://linkedin.com/in/ada",
	}, true)
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.True(t, res.WasUpdated)
	assert.Equal(t, "+44 20 0000 0000", res.Person.Phone)
	assert.Equal(t, "https://linkedin.com/in/ada", res.Person.LinkedInURL)
	assert.Equal(t, "Ada", res.Person.FirstName)
}

func TestResolvePersonNoUpdateRefreshesContactOnly(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	first, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
	}, true)
	require.NoError(t, err)

	res, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{
		Email: "ada@example.com",
		Phone: "+44 20 0000 0000",
	}, false)
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.False(t, res.WasUpdated)
	assert.Empty(t, res.Person.Phone)
	assert.False(t, res.Person.LastContactedAt.Before(first.Person.LastContactedAt))
}

func TestResolvePersonValidation(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	_, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{FirstName: "Ada"}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, &types.ValidationError{})
}

// racingStore simulates losing the insert race: the first key lookup
// misses, then another writer's row appears before our insert lands.
type racingStore struct {
	store.Store
	raced bool
}

func (s *racingStore) GetPersonByKey(ctx context.Context, key string) (*types.Person, error) {
	if !s.raced {
		return nil, types.ErrNotFound
	}
	return s.Store.GetPersonByKey(ctx, key)
}

func (s *racingStore) InsertPerson(ctx context.Context, p *types.Person) error {
	if !s.raced {
		s.raced = true
		winner := *p
		winner.ID = "winner"
		if err := s.Store.InsertPerson(ctx, &winner); err != nil {
			return err
		}
		return types.ErrDuplicateKey
	}
	return s.Store.InsertPerson(ctx, p)
}

func TestResolvePersonDuplicateKeyRetry(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(&racingStore{Store: store.NewMemoryStore()}, nil)

	res, err := r.ResolveOrCreatePerson(ctx, types.PersonInput{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
	}, true)
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.Equal(t, "winner", res.Person.ID)
}

func TestResolveOrganizationDomainFromWebsite(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	first, err := r.ResolveOrCreateOrganization(ctx, types.OrganizationInput{
		Name:    "Acme",
		Website: "https://www.acme.com/about",
	}, true)
	require.NoError(t, err)
	assert.True(t, first.IsNew)
	assert.Equal(t, "domain:acme.com", first.Organization.CanonicalKey)
	assert.Equal(t, "acme.com", first.Organization.Domain)

	// A later observation with the bare domain lands on the same row.
	second, err := r.ResolveOrCreateOrganization(ctx, types.OrganizationInput{
		Name:   "Acme Incorporated",
		Domain: "acme.com",
	}, true)
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Organization.ID, second.Organization.ID)
}

func TestResolveOrganizationDefaults(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	res, err := r.ResolveOrCreateOrganization(ctx, types.OrganizationInput{Name: "Acme Labs"}, true)
	require.NoError(t, err)
	assert.Equal(t, "name:acme-labs", res.Organization.CanonicalKey)
	assert.Equal(t, types.OrgCompany, res.Organization.OrganizationType)
	assert.Equal(t, types.PrivacyStandard, res.Organization.PrivacyTier)
}

func TestResolveOrganizationValidation(t *testing.T) {
	ctx := context.Background()
	r := resolver.New(store.NewMemoryStore(), nil)

	_, err := r.ResolveOrCreateOrganization(ctx, types.OrganizationInput{}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, &types.ValidationError{})
}
