// Package resolver turns raw identity observations into deduplicated
// entity records. Resolution is resolve-or-create: the canonical key is
// computed from the input, looked up by exact match, and either the
// existing record is enriched or a new one is inserted. Concurrent
// resolutions of the same identity are reconciled through the store's
// unique-key constraint and a single retry.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/relato/pkg/canonical"
	"github.com/soundprediction/relato/pkg/store"
	"github.com/soundprediction/relato/pkg/types"
)

// Resolver resolves person and organization observations against the
// store.
type Resolver struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Resolver. A nil logger falls back to slog.Default.
func New(s store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: s, logger: logger, now: time.Now}
}

// ResolveOrCreatePerson finds the person the input refers to, creating
// the record when no canonical-key match exists. On a match with
// updateIfExists set, populated input fields enrich the record; empty
// input fields never clear existing values. Without updateIfExists only
// LastContactedAt is refreshed, which happens on every resolution.
func (r *Resolver) ResolveOrCreatePerson(ctx context.Context, in types.PersonInput, updateIfExists bool) (*types.PersonResolution, error) {
	key, err := canonical.PersonKey(in.Email, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.GetPersonByKey(ctx, key)
	if err == nil {
		return r.updatePerson(ctx, existing, in, updateIfExists)
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up person by key: %w", err)
	}

	now := r.now().UTC()
	person := &types.Person{
		ID:              uuid.NewString(),
		CanonicalKey:    key,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		FullName:        in.DisplayName(),
		Email:           in.Email,
		LinkedInURL:     in.LinkedInURL,
		TwitterHandle:   in.TwitterHandle,
		Phone:           in.Phone,
		PrivacyTier:     in.PrivacyTier,
		LastContactedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if person.PrivacyTier == "" {
		person.PrivacyTier = types.PrivacyStandard
	}

	err = r.store.InsertPerson(ctx, person)
	if errors.Is(err, types.ErrDuplicateKey) {
		// A concurrent resolution won the insert race. Re-read and enrich
		// the row it created instead.
		r.logger.Debug("person insert lost race, re-resolving", "canonical_key", key)
		winner, readErr := r.store.GetPersonByKey(ctx, key)
		if readErr != nil {
			return nil, fmt.Errorf("failed to re-read person after duplicate key: %w", readErr)
		}
		return r.updatePerson(ctx, winner, in, updateIfExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert person: %w", err)
	}

	r.logger.Info("created person", "id", person.ID, "canonical_key", key)
	return &types.PersonResolution{Person: person, IsNew: true}, nil
}

func (r *Resolver) updatePerson(ctx context.Context, p *types.Person, in types.PersonInput, updateIfExists bool) (*types.PersonResolution, error) {
	changed := false
	if updateIfExists {
		setString(&p.FirstName, in.FirstName, &changed)
		setString(&p.LastName, in.LastName, &changed)
		setString(&p.FullName, in.DisplayName(), &changed)
		setString(&p.Email, in.Email, &changed)
		setString(&p.LinkedInURL, in.LinkedInURL, &changed)
		setString(&p.TwitterHandle, in.TwitterHandle, &changed)
		setString(&p.Phone, in.Phone, &changed)
		if in.PrivacyTier != "" && p.PrivacyTier != in.PrivacyTier {
			p.PrivacyTier = in.PrivacyTier
			changed = true
		}
	}

	now := r.now().UTC()
	p.LastContactedAt = now
	p.UpdatedAt = now
	if err := r.store.UpdatePerson(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update person: %w", err)
	}
	if changed {
		r.logger.Debug("enriched person", "id", p.ID)
	}

	// WasUpdated reports that the update path ran, not that any field
	// value differed.
	return &types.PersonResolution{Person: p, IsNew: false, WasUpdated: updateIfExists}, nil
}

// ResolveOrCreateOrganization is the organization analogue. When the
// input has no domain but has a website, the domain is derived from the
// website before the key is computed, so "https://www.acme.com/about"
// and "acme.com" resolve identically.
func (r *Resolver) ResolveOrCreateOrganization(ctx context.Context, in types.OrganizationInput, updateIfExists bool) (*types.OrganizationResolution, error) {
	if in.Domain == "" && in.Website != "" {
		in.Domain = canonical.ExtractDomain(in.Website)
	}

	key, err := canonical.OrganizationKey(in.Domain, in.Name)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.GetOrganizationByKey(ctx, key)
	if err == nil {
		return r.updateOrganization(ctx, existing, in, updateIfExists)
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up organization by key: %w", err)
	}

	now := r.now().UTC()
	org := &types.Organization{
		ID:               uuid.NewString(),
		CanonicalKey:     key,
		Name:             in.Name,
		LegalName:        in.LegalName,
		Domain:           in.Domain,
		Website:          in.Website,
		OrganizationType: in.OrganizationType,
		Industry:         in.Industry,
		Stage:            in.Stage,
		PrivacyTier:      in.PrivacyTier,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if org.OrganizationType == "" {
		org.OrganizationType = types.OrgCompany
	}
	if org.PrivacyTier == "" {
		org.PrivacyTier = types.PrivacyStandard
	}

	err = r.store.InsertOrganization(ctx, org)
	if errors.Is(err, types.ErrDuplicateKey) {
		r.logger.Debug("organization insert lost race, re-resolving", "canonical_key", key)
		winner, readErr := r.store.GetOrganizationByKey(ctx, key)
		if readErr != nil {
			return nil, fmt.Errorf("failed to re-read organization after duplicate key: %w", readErr)
		}
		return r.updateOrganization(ctx, winner, in, updateIfExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert organization: %w", err)
	}

	r.logger.Info("created organization", "id", org.ID, "canonical_key", key)
	return &types.OrganizationResolution{Organization: org, IsNew: true}, nil
}

func (r *Resolver) updateOrganization(ctx context.Context, o *types.Organization, in types.OrganizationInput, updateIfExists bool) (*types.OrganizationResolution, error) {
	changed := false
	if updateIfExists {
		setString(&o.Name, in.Name, &changed)
		setString(&o.LegalName, in.LegalName, &changed)
		setString(&o.Domain, in.Domain, &changed)
		setString(&o.Website, in.Website, &changed)
		setString(&o.Industry, in.Industry, &changed)
		setString(&o.Stage, in.Stage, &changed)
		if in.OrganizationType != "" && o.OrganizationType != in.OrganizationType {
			o.OrganizationType = in.OrganizationType
			changed = true
		}
		if in.PrivacyTier != "" && o.PrivacyTier != in.PrivacyTier {
			o.PrivacyTier = in.PrivacyTier
			changed = true
		}
	}

	if !changed {
		return &types.OrganizationResolution{Organization: o, IsNew: false, WasUpdated: updateIfExists}, nil
	}

	o.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateOrganization(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	return &types.OrganizationResolution{Organization: o, IsNew: false, WasUpdated: true}, nil
}

// setString overwrites dst with src only when src is non-empty and
// different.
func setString(dst *string, src string, changed *bool) {
	if src != "" && *dst != src {
		*dst = src
		*changed = true
	}
}
