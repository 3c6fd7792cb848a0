package types_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soundprediction/relato/pkg/types"
)

func TestEntityRefValidate(t *testing.T) {
	assert.NoError(t, types.EntityRef{Kind: types.EntityPerson, ID: "p1"}.Validate())
	assert.ErrorIs(t, types.EntityRef{Kind: "robot", ID: "p1"}.Validate(), types.ErrInvalidEntityKind)
	assert.ErrorIs(t, types.EntityRef{Kind: types.EntityDeal}.Validate(), types.ErrEmptyID)
}

func TestFactValidate(t *testing.T) {
	base := types.Fact{
		Entity:     types.EntityRef{Kind: types.EntityPerson, ID: "p1"},
		FactType:   "profile",
		Key:        "title",
		Value:      "Engineer",
		Confidence: 0.9,
	}
	assert.NoError(t, base.Validate())

	missingKey := base
	missingKey.Key = ""
	assert.ErrorIs(t, missingKey.Validate(), types.ErrEmptyFactKey)

	badConfidence := base
	badConfidence.Confidence = -0.1
	assert.ErrorIs(t, badConfidence.Validate(), types.ErrConfidenceRange)

	badEntity := base
	badEntity.Entity.ID = ""
	assert.ErrorIs(t, badEntity.Validate(), types.ErrEmptyID)
}

func TestFactTemporalPredicates(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(48 * time.Hour)

	current := types.Fact{ValidFrom: from}
	assert.True(t, current.IsCurrent())
	assert.False(t, current.ActiveAt(from.Add(-time.Hour)))
	assert.True(t, current.ActiveAt(from.Add(time.Hour)))

	closed := types.Fact{ValidFrom: from, ValidUntil: &until}
	assert.False(t, closed.IsCurrent())
	assert.True(t, closed.ActiveAt(from.Add(time.Hour)))
	assert.False(t, closed.ActiveAt(until.Add(time.Hour)))
}

func TestStrategyIsValid(t *testing.T) {
	for _, s := range []types.Strategy{
		types.StrategyLatestWins,
		types.StrategyHighestConfidence,
		types.StrategyMerge,
		types.StrategyUserConfirm,
	} {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, types.Strategy("").IsValid())
	assert.False(t, types.Strategy("newest").IsValid())
}

func TestRelationshipMetaValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		meta    types.RelationshipMeta
		wantErr bool
	}{
		{"empty generic edge", types.RelationshipMeta{Type: types.RelGeneric}, false},
		{"employment on works_at", types.RelationshipMeta{
			Type:       types.RelWorksAt,
			Employment: &types.EmploymentMeta{Title: "CTO", StartedAt: &now},
		}, false},
		{"employment on wrong type", types.RelationshipMeta{
			Type:       types.RelKnows,
			Employment: &types.EmploymentMeta{Title: "CTO"},
		}, true},
		{"investment on invested_in", types.RelationshipMeta{
			Type:       types.RelInvestedIn,
			Investment: &types.InvestmentMeta{Round: "seed", AmountUSD: 1e6},
		}, false},
		{"social on knows", types.RelationshipMeta{
			Type:   types.RelKnows,
			Social: &types.SocialMeta{MetVia: "conference"},
		}, false},
		{"social on introduced", types.RelationshipMeta{
			Type:   types.RelIntroduced,
			Social: &types.SocialMeta{MetVia: "warm intro"},
		}, false},
		{"social on wrong type", types.RelationshipMeta{
			Type:   types.RelWorksAt,
			Social: &types.SocialMeta{},
		}, true},
		{"two variants set", types.RelationshipMeta{
			Type:       types.RelWorksAt,
			Employment: &types.EmploymentMeta{},
			Generic:    map[string]string{"note": "x"},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, &types.ValidationError{})
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationErrorIs(t *testing.T) {
	err := types.NewValidationError("email", "malformed")
	assert.ErrorIs(t, err, &types.ValidationError{})
	assert.NotErrorIs(t, err, types.ErrNotFound)
	assert.Contains(t, err.Error(), "email")
}

func TestNotFoundErrorIs(t *testing.T) {
	err := types.NewNotFoundError(types.EntityPerson, "p1")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, err, &types.NotFoundError{})

	wrapped := errors.Join(errors.New("merge failed"), err)
	assert.ErrorIs(t, wrapped, types.ErrNotFound)
}

func TestPersonInputDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace",
		types.PersonInput{FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	assert.Equal(t, "Countess of Lovelace",
		types.PersonInput{FirstName: "Ada", FullName: "Countess of Lovelace"}.DisplayName())
	assert.Equal(t, "Ada", types.PersonInput{FirstName: "Ada"}.DisplayName())
	assert.Equal(t, "", types.PersonInput{}.DisplayName())
}

func TestEntityRefHelpers(t *testing.T) {
	p := &types.Person{ID: "p1"}
	assert.Equal(t, types.EntityRef{Kind: types.EntityPerson, ID: "p1"}, p.Ref())

	o := &types.Organization{ID: "o1"}
	assert.Equal(t, types.EntityRef{Kind: types.EntityOrganization, ID: "o1"}, o.Ref())
}
