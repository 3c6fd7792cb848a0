package types

import "time"

// RelationshipType classifies an edge between two entities.
type RelationshipType string

const (
	RelWorksAt    RelationshipType = "works_at"
	RelInvestedIn RelationshipType = "invested_in"
	RelKnows      RelationshipType = "knows"
	RelIntroduced RelationshipType = "introduced"
	RelGeneric    RelationshipType = "generic"
)

// EmploymentMeta describes a works_at edge.
type EmploymentMeta struct {
	Title     string     `json:"title,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// InvestmentMeta describes an invested_in edge.
type InvestmentMeta struct {
	Round        string  `json:"round,omitempty"`
	AmountUSD    float64 `json:"amount_usd,omitempty"`
	LeadInvestor bool    `json:"lead_investor,omitempty"`
}

// SocialMeta describes a knows or introduced edge.
type SocialMeta struct {
	MetVia     string     `json:"met_via,omitempty"`
	FirstMetAt *time.Time `json:"first_met_at,omitempty"`
	Closeness  string     `json:"closeness,omitempty"`
}

// RelationshipMeta is a closed tagged union of the known metadata shapes,
// keyed by relationship type, with Generic as the explicit fallback for
// types without a modeled shape. Exactly one variant may be set, and it
// must match Type.
type RelationshipMeta struct {
	Type RelationshipType `json:"type"`

	Employment *EmploymentMeta   `json:"employment,omitempty"`
	Investment *InvestmentMeta   `json:"investment,omitempty"`
	Social     *SocialMeta       `json:"social,omitempty"`
	Generic    map[string]string `json:"generic,omitempty"`
}

// Validate checks that the populated variant matches the declared type.
func (m RelationshipMeta) Validate() error {
	set := 0
	if m.Employment != nil {
		set++
		if m.Type != RelWorksAt {
			return NewValidationError("meta", "employment metadata requires type works_at")
		}
	}
	if m.Investment != nil {
		set++
		if m.Type != RelInvestedIn {
			return NewValidationError("meta", "investment metadata requires type invested_in")
		}
	}
	if m.Social != nil {
		set++
		if m.Type != RelKnows && m.Type != RelIntroduced {
			return NewValidationError("meta", "social metadata requires type knows or introduced")
		}
	}
	if m.Generic != nil {
		set++
	}
	if set > 1 {
		return NewValidationError("meta", "at most one metadata variant may be set")
	}
	return nil
}

// RelationshipEdge connects two entities. Both endpoints are reassigned
// when either side is merged away.
type RelationshipEdge struct {
	ID        string           `json:"id"`
	Source    EntityRef        `json:"source"`
	Target    EntityRef        `json:"target"`
	Meta      RelationshipMeta `json:"meta"`
	CreatedAt time.Time        `json:"created_at"`
}

// The remaining record types exist in the store only so that merges can
// reassign every foreign reference. The core never interprets their
// payloads.

// Task is an action item attached to a person.
type Task struct {
	ID       string     `json:"id"`
	PersonID string     `json:"person_id"`
	Title    string     `json:"title"`
	DueAt    *time.Time `json:"due_at,omitempty"`
	Done     bool       `json:"done"`
}

// Commitment is a promise made to or by a person.
type Commitment struct {
	ID          string    `json:"id"`
	PersonID    string    `json:"person_id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Deal is a pipeline opportunity attached to an organization.
type Deal struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	Name           string  `json:"name"`
	Stage          string  `json:"stage"`
	AmountUSD      float64 `json:"amount_usd,omitempty"`
}

// Investment links a person or fund to an organization's round.
type Investment struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	PersonID       string    `json:"person_id,omitempty"`
	Round          string    `json:"round"`
	AmountUSD      float64   `json:"amount_usd,omitempty"`
	InvestedAt     time.Time `json:"invested_at"`
}

// Metric is a time-series datapoint reported by an organization.
type Metric struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Value          float64   `json:"value"`
	RecordedAt     time.Time `json:"recorded_at"`
}
