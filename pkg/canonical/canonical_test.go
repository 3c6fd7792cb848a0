package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/relato/pkg/canonical"
	"github.com/soundprediction/relato/pkg/types"
)

func TestPersonKeyEmailDominates(t *testing.T) {
	key, err := canonical.PersonKey("Ada@Example.COM ", "Ada", "Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "email:ada@example.com", key)

	// Same email, different name spelling still yields the same key.
	other, err := canonical.PersonKey("ada@example.com", "Adaline", "L.")
	require.NoError(t, err)
	assert.Equal(t, key, other)
}

func TestPersonKeyNameFallbackDeterminism(t *testing.T) {
	tests := []struct {
		name      string
		firstName string
		lastName  string
		want      string
	}{
		{"plain", "Ada", "Lovelace", "name:ada-lovelace"},
		{"case and whitespace", "  ADA ", " lovelace  ", "name:ada-lovelace"},
		{"punctuation stripped", "Ada!", "Love-lace", "name:ada-love-lace"},
		{"apostrophes dropped", "Conor", "O'Brien", "name:conor-obrien"},
		{"internal whitespace collapsed", "Mary   Jane", "van  Dyke", "name:mary-jane-van-dyke"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := canonical.PersonKey("", tt.firstName, tt.lastName)
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestPersonKeyRequiresIdentity(t *testing.T) {
	_, err := canonical.PersonKey("", "Ada", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, &types.ValidationError{})

	_, err = canonical.PersonKey("", "", "")
	require.Error(t, err)
}

func TestOrganizationKey(t *testing.T) {
	key, err := canonical.OrganizationKey("Acme.COM", "Acme Incorporated")
	require.NoError(t, err)
	assert.Equal(t, "domain:acme.com", key)

	key, err = canonical.OrganizationKey("", "Acme Labs, Inc.")
	require.NoError(t, err)
	assert.Equal(t, "name:acme-labs-inc", key)

	_, err = canonical.OrganizationKey("", "  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, &types.ValidationError{})
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"email", "ada@example.com", "example.com"},
		{"email uppercase", "Ada@Example.COM", "example.com"},
		{"url with path", "https://www.acme.com/about", "acme.com"},
		{"url no scheme", "acme.com", "acme.com"},
		{"url with www no scheme", "www.acme.com", "acme.com"},
		{"subdomain kept", "https://app.acme.io/login", "app.acme.io"},
		{"unparsable", "not a url at all", ""},
		{"empty", "", ""},
		{"bare host no dot", "localhost", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canonical.ExtractDomain(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	// Identical after normalization.
	assert.Equal(t, 1.0, canonical.Similarity("Acme Labs", "acme  labs"))

	// Near-identical names score high.
	assert.Greater(t, canonical.Similarity("Acme Labs", "Acme Lab"), 0.7)

	// Unrelated names score low.
	assert.Less(t, canonical.Similarity("Acme Labs", "Umbrella Corp"), 0.2)

	// Both empty is no signal, not a match.
	assert.Equal(t, 0.0, canonical.Similarity("", ""))

	// Symmetric.
	assert.Equal(t,
		canonical.Similarity("Jonathan Smith", "Jon Smith"),
		canonical.Similarity("Jon Smith", "Jonathan Smith"))
}

func TestJaccardSimilarity(t *testing.T) {
	a := canonical.Shingles("acme labs")
	assert.Equal(t, 1.0, canonical.JaccardSimilarity(a, a))
	assert.Equal(t, 0.0, canonical.JaccardSimilarity(a, canonical.Shingles("zzz")))
}
