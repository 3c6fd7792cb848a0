package types

import (
	"time"
)

// EntityKind identifies which record type a fact or edge refers to.
type EntityKind string

const (
	// EntityPerson refers to a Person record.
	EntityPerson EntityKind = "person"
	// EntityOrganization refers to an Organization record.
	EntityOrganization EntityKind = "organization"
	// EntityDeal refers to a deal record.
	EntityDeal EntityKind = "deal"
	// EntityConversation refers to a conversation record.
	EntityConversation EntityKind = "conversation"
)

// ValidEntityKinds is the set of all entity kinds a fact may reference.
var ValidEntityKinds = []EntityKind{
	EntityPerson,
	EntityOrganization,
	EntityDeal,
	EntityConversation,
}

// IsValid returns true if the entity kind is recognized.
func (k EntityKind) IsValid() bool {
	for i := range ValidEntityKinds {
		if k == ValidEntityKinds[i] {
			return true
		}
	}
	return false
}

// EntityRef is a typed reference to exactly one entity record.
type EntityRef struct {
	Kind EntityKind `json:"kind" mapstructure:"kind"`
	ID   string     `json:"id" mapstructure:"id"`
}

// Validate checks that the reference names a known kind and a non-empty id.
func (r EntityRef) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidEntityKind
	}
	if r.ID == "" {
		return ErrEmptyID
	}
	return nil
}

// PrivacyTier controls how widely an entity's data may be shared.
type PrivacyTier string

const (
	PrivacyStandard   PrivacyTier = "standard"
	PrivacySensitive  PrivacyTier = "sensitive"
	PrivacyRestricted PrivacyTier = "restricted"
)

// SourceType records where an observation originated.
type SourceType string

const (
	// SourceManual marks facts entered by a user.
	SourceManual SourceType = "manual"
	// SourceAIExtraction marks facts produced by an extraction pipeline.
	SourceAIExtraction SourceType = "ai_extraction"
	// SourceMessageIngestion marks facts pulled from external messages.
	SourceMessageIngestion SourceType = "message_ingestion"
	// SourceMerged marks facts synthesized during conflict resolution.
	SourceMerged SourceType = "merged"
)

// Person is a deduplicated person entity.
type Person struct {
	ID            string      `json:"id" mapstructure:"id"`
	CanonicalKey  string      `json:"canonical_key" mapstructure:"canonical_key"`
	FirstName     string      `json:"first_name" mapstructure:"first_name"`
	LastName      string      `json:"last_name" mapstructure:"last_name"`
	FullName      string      `json:"full_name" mapstructure:"full_name"`
	Email         string      `json:"email,omitempty" mapstructure:"email"`
	LinkedInURL   string      `json:"linkedin_url,omitempty" mapstructure:"linkedin_url"`
	TwitterHandle string      `json:"twitter_handle,omitempty" mapstructure:"twitter_handle"`
	Phone         string      `json:"phone,omitempty" mapstructure:"phone"`
	PrivacyTier   PrivacyTier `json:"privacy_tier" mapstructure:"privacy_tier"`

	LastContactedAt time.Time `json:"last_contacted_at" mapstructure:"last_contacted_at"`
	CreatedAt       time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" mapstructure:"updated_at"`
}

// Ref returns the entity reference for this person.
func (p *Person) Ref() EntityRef {
	return EntityRef{Kind: EntityPerson, ID: p.ID}
}

// OrganizationType classifies an organization.
type OrganizationType string

const (
	OrgCompany    OrganizationType = "company"
	OrgInvestor   OrganizationType = "investor"
	OrgNonprofit  OrganizationType = "nonprofit"
	OrgUniversity OrganizationType = "university"
	OrgOther      OrganizationType = "other"
)

// Organization is a deduplicated organization entity.
type Organization struct {
	ID               string           `json:"id" mapstructure:"id"`
	CanonicalKey     string           `json:"canonical_key" mapstructure:"canonical_key"`
	Name             string           `json:"name" mapstructure:"name"`
	LegalName        string           `json:"legal_name,omitempty" mapstructure:"legal_name"`
	Domain           string           `json:"domain,omitempty" mapstructure:"domain"`
	Website          string           `json:"website,omitempty" mapstructure:"website"`
	OrganizationType OrganizationType `json:"organization_type" mapstructure:"organization_type"`
	Industry         string           `json:"industry,omitempty" mapstructure:"industry"`
	Stage            string           `json:"stage,omitempty" mapstructure:"stage"`
	PrivacyTier      PrivacyTier      `json:"privacy_tier" mapstructure:"privacy_tier"`

	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt time.Time `json:"updated_at" mapstructure:"updated_at"`
}

// Ref returns the entity reference for this organization.
func (o *Organization) Ref() EntityRef {
	return EntityRef{Kind: EntityOrganization, ID: o.ID}
}

// Fact is a single versioned (key, value) observation about an entity.
// Facts are append-only: once written, only ValidUntil and ReplacedByFact
// change, and only during conflict resolution.
type Fact struct {
	ID       string     `json:"id" mapstructure:"id"`
	Entity   EntityRef  `json:"entity" mapstructure:"entity"`
	FactType string     `json:"fact_type" mapstructure:"fact_type"`
	Key      string     `json:"key" mapstructure:"key"`
	Value    string     `json:"value" mapstructure:"value"`
	Source   SourceType `json:"source_type" mapstructure:"source_type"`
	SourceID string     `json:"source_id,omitempty" mapstructure:"source_id"`

	// Confidence is always within [0,1].
	Confidence float64 `json:"confidence" mapstructure:"confidence"`

	// Temporal validity. ValidUntil == nil means the fact is current.
	ValidFrom  time.Time  `json:"valid_from" mapstructure:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty" mapstructure:"valid_until"`

	// ReplacedByFact points at the fact that superseded this one.
	ReplacedByFact string `json:"replaced_by_fact,omitempty" mapstructure:"replaced_by_fact"`

	CreatedBy string    `json:"created_by,omitempty" mapstructure:"created_by"`
	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
}

// IsCurrent reports whether the fact is the active value for its key.
func (f *Fact) IsCurrent() bool {
	return f.ValidUntil == nil
}

// ActiveAt reports whether the fact was valid at the given instant.
func (f *Fact) ActiveAt(t time.Time) bool {
	if f.ValidFrom.After(t) {
		return false
	}
	if f.ValidUntil != nil && f.ValidUntil.Before(t) {
		return false
	}
	return true
}

// Validate checks the fact invariants that hold independent of storage.
func (f *Fact) Validate() error {
	if err := f.Entity.Validate(); err != nil {
		return err
	}
	if f.FactType == "" || f.Key == "" {
		return ErrEmptyFactKey
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return ErrConfidenceRange
	}
	return nil
}

// Trend describes how a relationship strength is moving between
// recomputations.
type Trend string

const (
	TrendStrengthening Trend = "strengthening"
	TrendStable        Trend = "stable"
	TrendWeakening     Trend = "weakening"
)

// RelationshipStrength is the derived closeness score for a person.
// Rows are overwritten in place on each recomputation, not versioned.
type RelationshipStrength struct {
	PersonID string  `json:"person_id" mapstructure:"person_id"`
	Strength float64 `json:"strength" mapstructure:"strength"`
	Trend    Trend   `json:"trend" mapstructure:"trend"`

	// Component scores, each in [0,1].
	Recency     float64 `json:"recency" mapstructure:"recency"`
	Frequency   float64 `json:"frequency" mapstructure:"frequency"`
	Engagement  float64 `json:"engagement" mapstructure:"engagement"`
	Reciprocity float64 `json:"reciprocity" mapstructure:"reciprocity"`

	TotalEmails  int        `json:"total_emails" mapstructure:"total_emails"`
	LastEmailAt  *time.Time `json:"last_email_at,omitempty" mapstructure:"last_email_at"`
	CalculatedAt time.Time  `json:"calculated_at" mapstructure:"calculated_at"`
}

// InteractionStats is the per-person aggregate the strength calculator
// consumes. Rows are produced by external ingestion pipelines; the core
// only reads them.
type InteractionStats struct {
	PersonID          string     `json:"person_id" mapstructure:"person_id"`
	TotalInteractions int        `json:"total_interactions" mapstructure:"total_interactions"`
	Interactions90d   int        `json:"interactions_90d" mapstructure:"interactions_90d"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty" mapstructure:"last_interaction_at"`
	SentCount         int        `json:"sent_count" mapstructure:"sent_count"`
	ReceivedCount     int        `json:"received_count" mapstructure:"received_count"`
	AvgThreadDepth    float64    `json:"avg_thread_depth" mapstructure:"avg_thread_depth"`
}

// PersonInput carries the identity fields a caller supplies when resolving
// a person. Empty fields are treated as absent and never clear populated
// fields on an existing row.
type PersonInput struct {
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	FullName      string      `json:"full_name"`
	Email         string      `json:"email,omitempty"`
	LinkedInURL   string      `json:"linkedin_url,omitempty"`
	TwitterHandle string      `json:"twitter_handle,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	PrivacyTier   PrivacyTier `json:"privacy_tier,omitempty"`
}

// DisplayName returns the best available human-readable name.
func (in PersonInput) DisplayName() string {
	if in.FullName != "" {
		return in.FullName
	}
	name := in.FirstName
	if in.LastName != "" {
		if name != "" {
			name += " "
		}
		name += in.LastName
	}
	return name
}

// OrganizationInput carries the identity fields a caller supplies when
// resolving an organization.
type OrganizationInput struct {
	Name             string           `json:"name"`
	LegalName        string           `json:"legal_name,omitempty"`
	Domain           string           `json:"domain,omitempty"`
	Website          string           `json:"website,omitempty"`
	OrganizationType OrganizationType `json:"organization_type,omitempty"`
	Industry         string           `json:"industry,omitempty"`
	Stage            string           `json:"stage,omitempty"`
	PrivacyTier      PrivacyTier      `json:"privacy_tier,omitempty"`
}

// FactInput is the external shape of a candidate observation.
type FactInput struct {
	Entity   EntityRef  `json:"entity"`
	FactType string     `json:"fact_type"`
	Key      string     `json:"key"`
	Value    string     `json:"value"`
	Source   SourceType `json:"source_type"`
	SourceID string     `json:"source_id,omitempty"`

	// Confidence defaults to 1.0 when nil.
	Confidence *float64 `json:"confidence,omitempty"`

	CreatedBy string `json:"created_by,omitempty"`
}

// PersonResolution is the outcome of resolving a person input. WasUpdated
// is true whenever an existing record went through the update path, even
// when no field value differed.
type PersonResolution struct {
	Person     *Person `json:"person"`
	IsNew      bool    `json:"is_new"`
	WasUpdated bool    `json:"was_updated"`
}

// OrganizationResolution is the outcome of resolving an organization input.
type OrganizationResolution struct {
	Organization *Organization `json:"organization"`
	IsNew        bool          `json:"is_new"`
	WasUpdated   bool          `json:"was_updated"`
}

// DuplicateMatch is one candidate from a fuzzy duplicate scan.
type DuplicateMatch struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// MergeRecord is one consolidation in the merge history. The duplicate row
// is deleted; the record is what lets stale ids resolve to the survivor and
// what the cycle guard walks.
type MergeRecord struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	DuplicateID string     `json:"duplicate_id"`
	PrimaryID   string     `json:"primary_id"`
	MergedAt    time.Time  `json:"merged_at"`
}
