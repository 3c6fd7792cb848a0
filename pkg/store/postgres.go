package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/soundprediction/relato/pkg/types"
)

// PostgresStore backs the Store contract with PostgreSQL. Uniqueness is
// delegated to the database: a UNIQUE constraint on canonical keys and a
// partial unique index on current facts. Compound operations run inside
// explicit transactions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against the given DSN. The
// schema is not touched until Initialize is called.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Initialize creates the schema if it does not exist. Safe to call on
// every startup.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS people (
			id TEXT PRIMARY KEY,
			canonical_key TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			linkedin_url TEXT NOT NULL DEFAULT '',
			twitter_handle TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			privacy_tier TEXT NOT NULL DEFAULT 'standard',
			last_contacted_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			canonical_key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			legal_name TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			organization_type TEXT NOT NULL DEFAULT 'company',
			industry TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL DEFAULT '',
			privacy_tier TEXT NOT NULL DEFAULT 'standard',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			fact_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL,
			valid_from TIMESTAMPTZ NOT NULL,
			valid_until TIMESTAMPTZ,
			replaced_by_fact TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS facts_current_unique
			ON facts (entity_kind, entity_id, fact_type, key)
			WHERE valid_until IS NULL`,
		`CREATE INDEX IF NOT EXISTS facts_entity_idx
			ON facts (entity_kind, entity_id)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			person_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			due_at TIMESTAMPTZ,
			done BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS commitments (
			id TEXT PRIMARY KEY,
			person_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deals (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL DEFAULT '',
			amount_usd DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS investments (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			person_id TEXT NOT NULL DEFAULT '',
			round TEXT NOT NULL DEFAULT '',
			amount_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			invested_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			value DOUBLE PRECISION NOT NULL DEFAULT 0,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS relationship_edges (
			id TEXT PRIMARY KEY,
			source_kind TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			target_id TEXT NOT NULL,
			rel_type TEXT NOT NULL,
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS interaction_stats (
			person_id TEXT PRIMARY KEY,
			total_interactions INTEGER NOT NULL DEFAULT 0,
			interactions_90d INTEGER NOT NULL DEFAULT 0,
			last_interaction_at TIMESTAMPTZ,
			sent_count INTEGER NOT NULL DEFAULT 0,
			received_count INTEGER NOT NULL DEFAULT 0,
			avg_thread_depth DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS relationship_strengths (
			person_id TEXT PRIMARY KEY,
			strength DOUBLE PRECISION NOT NULL,
			trend TEXT NOT NULL,
			recency DOUBLE PRECISION NOT NULL,
			frequency DOUBLE PRECISION NOT NULL,
			engagement DOUBLE PRECISION NOT NULL,
			reciprocity DOUBLE PRECISION NOT NULL,
			total_emails INTEGER NOT NULL DEFAULT 0,
			last_email_at TIMESTAMPTZ,
			calculated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS merge_history (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			duplicate_id TEXT NOT NULL,
			primary_id TEXT NOT NULL,
			merged_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// translateError maps driver errors onto the shared sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return types.ErrDuplicateKey
	}
	return err
}

// --- People ---

const personColumns = `id, canonical_key, first_name, last_name, full_name, email,
	linkedin_url, twitter_handle, phone, privacy_tier,
	last_contacted_at, created_at, updated_at`

func (s *PostgresStore) InsertPerson(ctx context.Context, p *types.Person) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (`+personColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.CanonicalKey, p.FirstName, p.LastName, p.FullName, p.Email,
		p.LinkedInURL, p.TwitterHandle, p.Phone, p.PrivacyTier,
		p.LastContactedAt, p.CreatedAt, p.UpdatedAt)
	return translateError(err)
}

func (s *PostgresStore) UpdatePerson(ctx context.Context, p *types.Person) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE people SET
			canonical_key = $2, first_name = $3, last_name = $4, full_name = $5,
			email = $6, linkedin_url = $7, twitter_handle = $8, phone = $9,
			privacy_tier = $10, last_contacted_at = $11, updated_at = $12
		WHERE id = $1`,
		p.ID, p.CanonicalKey, p.FirstName, p.LastName, p.FullName,
		p.Email, p.LinkedInURL, p.TwitterHandle, p.Phone,
		p.PrivacyTier, p.LastContactedAt, p.UpdatedAt)
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.NewNotFoundError(types.EntityPerson, p.ID)
	}
	return nil
}

func scanPerson(row interface{ Scan(...any) error }) (*types.Person, error) {
	var p types.Person
	err := row.Scan(&p.ID, &p.CanonicalKey, &p.FirstName, &p.LastName, &p.FullName,
		&p.Email, &p.LinkedInURL, &p.TwitterHandle, &p.Phone, &p.PrivacyTier,
		&p.LastContactedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &p, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	p, err := scanPerson(s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = $1`, id))
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityPerson, id)
	}
	return p, err
}

func (s *PostgresStore) GetPersonByKey(ctx context.Context, canonicalKey string) (*types.Person, error) {
	p, err := scanPerson(s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE canonical_key = $1`, canonicalKey))
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityPerson, canonicalKey)
	}
	return p, err
}

func (s *PostgresStore) ListPeople(ctx context.Context) ([]*types.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM people ORDER BY id`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Organizations ---

const orgColumns = `id, canonical_key, name, legal_name, domain, website,
	organization_type, industry, stage, privacy_tier, created_at, updated_at`

func (s *PostgresStore) InsertOrganization(ctx context.Context, o *types.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (`+orgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.CanonicalKey, o.Name, o.LegalName, o.Domain, o.Website,
		o.OrganizationType, o.Industry, o.Stage, o.PrivacyTier,
		o.CreatedAt, o.UpdatedAt)
	return translateError(err)
}

func (s *PostgresStore) UpdateOrganization(ctx context.Context, o *types.Organization) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET
			canonical_key = $2, name = $3, legal_name = $4, domain = $5,
			website = $6, organization_type = $7, industry = $8, stage = $9,
			privacy_tier = $10, updated_at = $11
		WHERE id = $1`,
		o.ID, o.CanonicalKey, o.Name, o.LegalName, o.Domain,
		o.Website, o.OrganizationType, o.Industry, o.Stage,
		o.PrivacyTier, o.UpdatedAt)
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.NewNotFoundError(types.EntityOrganization, o.ID)
	}
	return nil
}

func scanOrganization(row interface{ Scan(...any) error }) (*types.Organization, error) {
	var o types.Organization
	err := row.Scan(&o.ID, &o.CanonicalKey, &o.Name, &o.LegalName, &o.Domain,
		&o.Website, &o.OrganizationType, &o.Industry, &o.Stage, &o.PrivacyTier,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &o, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	o, err := scanOrganization(s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityOrganization, id)
	}
	return o, err
}

func (s *PostgresStore) GetOrganizationByKey(ctx context.Context, canonicalKey string) (*types.Organization, error) {
	o, err := scanOrganization(s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE canonical_key = $1`, canonicalKey))
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.NewNotFoundError(types.EntityOrganization, canonicalKey)
	}
	return o, err
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]*types.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organizations ORDER BY id`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Facts ---

const factColumns = `id, entity_kind, entity_id, fact_type, key, value,
	source_type, source_id, confidence, valid_from, valid_until,
	replaced_by_fact, created_by, created_at`

func (s *PostgresStore) InsertFact(ctx context.Context, f *types.Fact) error {
	return s.insertFactExec(ctx, s.db, f)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) insertFactExec(ctx context.Context, ex execer, f *types.Fact) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO facts (`+factColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		f.ID, f.Entity.Kind, f.Entity.ID, f.FactType, f.Key, f.Value,
		f.Source, f.SourceID, f.Confidence, f.ValidFrom, f.ValidUntil,
		f.ReplacedByFact, f.CreatedBy, f.CreatedAt)
	return translateError(err)
}

func scanFact(row interface{ Scan(...any) error }) (*types.Fact, error) {
	var f types.Fact
	var validUntil sql.NullTime
	err := row.Scan(&f.ID, &f.Entity.Kind, &f.Entity.ID, &f.FactType, &f.Key, &f.Value,
		&f.Source, &f.SourceID, &f.Confidence, &f.ValidFrom, &validUntil,
		&f.ReplacedByFact, &f.CreatedBy, &f.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	if validUntil.Valid {
		until := validUntil.Time
		f.ValidUntil = &until
	}
	return &f, nil
}

func (s *PostgresStore) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	return scanFact(s.db.QueryRowContext(ctx,
		`SELECT `+factColumns+` FROM facts WHERE id = $1`, id))
}

func (s *PostgresStore) queryFacts(ctx context.Context, query string, args ...any) ([]*types.Fact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CurrentFacts(ctx context.Context, ref types.EntityRef) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE entity_kind = $1 AND entity_id = $2 AND valid_until IS NULL
		ORDER BY valid_from, id`,
		ref.Kind, ref.ID)
}

func (s *PostgresStore) CurrentFactsForKey(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE entity_kind = $1 AND entity_id = $2 AND fact_type = $3 AND key = $4
			AND valid_until IS NULL
		ORDER BY valid_from, id`,
		ref.Kind, ref.ID, factType, key)
}

func (s *PostgresStore) FactHistory(ctx context.Context, ref types.EntityRef, factType, key string) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE entity_kind = $1 AND entity_id = $2 AND fact_type = $3 AND key = $4
		ORDER BY valid_from, id`,
		ref.Kind, ref.ID, factType, key)
}

func (s *PostgresStore) FactsAt(ctx context.Context, ref types.EntityRef, at time.Time) ([]*types.Fact, error) {
	return s.queryFacts(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE entity_kind = $1 AND entity_id = $2
			AND valid_from <= $3
			AND (valid_until IS NULL OR valid_until >= $3)
		ORDER BY valid_from, id`,
		ref.Kind, ref.ID, at)
}

func (s *PostgresStore) ListFacts(ctx context.Context) ([]*types.Fact, error) {
	return s.queryFacts(ctx,
		`SELECT `+factColumns+` FROM facts ORDER BY valid_from, id`)
}

func (s *PostgresStore) SupersedeFacts(ctx context.Context, newFact *types.Fact, supersededIDs []string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(supersededIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE facts SET valid_until = $1, replaced_by_fact = $2
			WHERE id = ANY($3) AND valid_until IS NULL`,
			at, newFact.ID, pq.Array(supersededIDs))
		if err != nil {
			return translateError(err)
		}
	}

	if err := s.insertFactExec(ctx, tx, newFact); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Referencing records ---

func (s *PostgresStore) InsertTask(ctx context.Context, t *types.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, person_id, title, due_at, done)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.PersonID, t.Title, t.DueAt, t.Done)
	return translateError(err)
}

func (s *PostgresStore) InsertCommitment(ctx context.Context, c *types.Commitment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commitments (id, person_id, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PersonID, c.Description, c.Status, c.CreatedAt)
	return translateError(err)
}

func (s *PostgresStore) InsertDeal(ctx context.Context, d *types.Deal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deals (id, organization_id, name, stage, amount_usd)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.OrganizationID, d.Name, d.Stage, d.AmountUSD)
	return translateError(err)
}

func (s *PostgresStore) InsertInvestment(ctx context.Context, inv *types.Investment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO investments (id, organization_id, person_id, round, amount_usd, invested_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		inv.ID, inv.OrganizationID, inv.PersonID, inv.Round, inv.AmountUSD, inv.InvestedAt)
	return translateError(err)
}

func (s *PostgresStore) InsertMetric(ctx context.Context, m *types.Metric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (id, organization_id, name, value, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.OrganizationID, m.Name, m.Value, m.RecordedAt)
	return translateError(err)
}

func (s *PostgresStore) InsertRelationshipEdge(ctx context.Context, e *types.RelationshipEdge) error {
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationship_edges
			(id, source_kind, source_id, target_kind, target_id, rel_type, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Source.Kind, e.Source.ID, e.Target.Kind, e.Target.ID,
		e.Meta.Type, meta, e.CreatedAt)
	return translateError(err)
}

func (s *PostgresStore) TasksForPerson(ctx context.Context, personID string) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, title, due_at, done FROM tasks WHERE person_id = $1`,
		personID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		var t types.Task
		var dueAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.PersonID, &t.Title, &dueAt, &t.Done); err != nil {
			return nil, err
		}
		if dueAt.Valid {
			due := dueAt.Time
			t.DueAt = &due
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CommitmentsForPerson(ctx context.Context, personID string) ([]*types.Commitment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, description, status, created_at
		FROM commitments WHERE person_id = $1`, personID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.Commitment
	for rows.Next() {
		var c types.Commitment
		if err := rows.Scan(&c.ID, &c.PersonID, &c.Description, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DealsForOrganization(ctx context.Context, orgID string) ([]*types.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, stage, amount_usd
		FROM deals WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.Deal
	for rows.Next() {
		var d types.Deal
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.Name, &d.Stage, &d.AmountUSD); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) scanInvestments(rows *sql.Rows) ([]*types.Investment, error) {
	defer rows.Close()
	var out []*types.Investment
	for rows.Next() {
		var inv types.Investment
		if err := rows.Scan(&inv.ID, &inv.OrganizationID, &inv.PersonID,
			&inv.Round, &inv.AmountUSD, &inv.InvestedAt); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InvestmentsForOrganization(ctx context.Context, orgID string) ([]*types.Investment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, person_id, round, amount_usd, invested_at
		FROM investments WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, translateError(err)
	}
	return s.scanInvestments(rows)
}

func (s *PostgresStore) InvestmentsForPerson(ctx context.Context, personID string) ([]*types.Investment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, person_id, round, amount_usd, invested_at
		FROM investments WHERE person_id = $1`, personID)
	if err != nil {
		return nil, translateError(err)
	}
	return s.scanInvestments(rows)
}

func (s *PostgresStore) MetricsForOrganization(ctx context.Context, orgID string) ([]*types.Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, value, recorded_at
		FROM metrics WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.Metric
	for rows.Next() {
		var m types.Metric
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.Name, &m.Value, &m.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EdgesTouching(ctx context.Context, ref types.EntityRef) ([]*types.RelationshipEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_kind, source_id, target_kind, target_id, meta, created_at
		FROM relationship_edges
		WHERE (source_kind = $1 AND source_id = $2)
			OR (target_kind = $1 AND target_id = $2)`,
		ref.Kind, ref.ID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.RelationshipEdge
	for rows.Next() {
		var e types.RelationshipEdge
		var meta []byte
		if err := rows.Scan(&e.ID, &e.Source.Kind, &e.Source.ID,
			&e.Target.Kind, &e.Target.ID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeMeta(meta, &e.Meta); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// --- Interactions and relationship strength ---

func (s *PostgresStore) UpsertInteractionStats(ctx context.Context, st *types.InteractionStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interaction_stats
			(person_id, total_interactions, interactions_90d, last_interaction_at,
			 sent_count, received_count, avg_thread_depth)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (person_id) DO UPDATE SET
			total_interactions = EXCLUDED.total_interactions,
			interactions_90d = EXCLUDED.interactions_90d,
			last_interaction_at = EXCLUDED.last_interaction_at,
			sent_count = EXCLUDED.sent_count,
			received_count = EXCLUDED.received_count,
			avg_thread_depth = EXCLUDED.avg_thread_depth`,
		st.PersonID, st.TotalInteractions, st.Interactions90d, st.LastInteractionAt,
		st.SentCount, st.ReceivedCount, st.AvgThreadDepth)
	return translateError(err)
}

func (s *PostgresStore) InteractionStats(ctx context.Context, personID string) (*types.InteractionStats, error) {
	var st types.InteractionStats
	var lastAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT person_id, total_interactions, interactions_90d, last_interaction_at,
			sent_count, received_count, avg_thread_depth
		FROM interaction_stats WHERE person_id = $1`, personID).
		Scan(&st.PersonID, &st.TotalInteractions, &st.Interactions90d, &lastAt,
			&st.SentCount, &st.ReceivedCount, &st.AvgThreadDepth)
	if err != nil {
		return nil, translateError(err)
	}
	if lastAt.Valid {
		at := lastAt.Time
		st.LastInteractionAt = &at
	}
	return &st, nil
}

func (s *PostgresStore) ListInteractionStats(ctx context.Context) ([]*types.InteractionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, total_interactions, interactions_90d, last_interaction_at,
			sent_count, received_count, avg_thread_depth
		FROM interaction_stats ORDER BY person_id`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.InteractionStats
	for rows.Next() {
		var st types.InteractionStats
		var lastAt sql.NullTime
		if err := rows.Scan(&st.PersonID, &st.TotalInteractions, &st.Interactions90d,
			&lastAt, &st.SentCount, &st.ReceivedCount, &st.AvgThreadDepth); err != nil {
			return nil, err
		}
		if lastAt.Valid {
			at := lastAt.Time
			st.LastInteractionAt = &at
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRelationshipStrength(ctx context.Context, personID string) (*types.RelationshipStrength, error) {
	var rs types.RelationshipStrength
	var lastEmail sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT person_id, strength, trend, recency, frequency, engagement,
			reciprocity, total_emails, last_email_at, calculated_at
		FROM relationship_strengths WHERE person_id = $1`, personID).
		Scan(&rs.PersonID, &rs.Strength, &rs.Trend, &rs.Recency, &rs.Frequency,
			&rs.Engagement, &rs.Reciprocity, &rs.TotalEmails, &lastEmail, &rs.CalculatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	if lastEmail.Valid {
		at := lastEmail.Time
		rs.LastEmailAt = &at
	}
	return &rs, nil
}

func (s *PostgresStore) UpsertRelationshipStrength(ctx context.Context, rs *types.RelationshipStrength) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationship_strengths
			(person_id, strength, trend, recency, frequency, engagement,
			 reciprocity, total_emails, last_email_at, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (person_id) DO UPDATE SET
			strength = EXCLUDED.strength,
			trend = EXCLUDED.trend,
			recency = EXCLUDED.recency,
			frequency = EXCLUDED.frequency,
			engagement = EXCLUDED.engagement,
			reciprocity = EXCLUDED.reciprocity,
			total_emails = EXCLUDED.total_emails,
			last_email_at = EXCLUDED.last_email_at,
			calculated_at = EXCLUDED.calculated_at`,
		rs.PersonID, rs.Strength, rs.Trend, rs.Recency, rs.Frequency,
		rs.Engagement, rs.Reciprocity, rs.TotalEmails, rs.LastEmailAt, rs.CalculatedAt)
	return translateError(err)
}

// --- Merge ---

func (s *PostgresStore) MergePeople(ctx context.Context, primaryID, duplicateID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := rowExists(ctx, tx, `SELECT 1 FROM people WHERE id = $1`, primaryID,
		types.EntityPerson); err != nil {
		return err
	}
	if err := rowExists(ctx, tx, `SELECT 1 FROM people WHERE id = $1`, duplicateID,
		types.EntityPerson); err != nil {
		return err
	}

	if err := closeCollidingFacts(ctx, tx, types.EntityPerson, primaryID, duplicateID); err != nil {
		return err
	}

	reassignments := []struct {
		query string
		args  []any
	}{
		{`UPDATE facts SET entity_id = $1 WHERE entity_kind = $2 AND entity_id = $3`,
			[]any{primaryID, types.EntityPerson, duplicateID}},
		{`UPDATE tasks SET person_id = $1 WHERE person_id = $2`,
			[]any{primaryID, duplicateID}},
		{`UPDATE commitments SET person_id = $1 WHERE person_id = $2`,
			[]any{primaryID, duplicateID}},
		{`UPDATE investments SET person_id = $1 WHERE person_id = $2`,
			[]any{primaryID, duplicateID}},
		{`UPDATE relationship_edges SET source_id = $1
			WHERE source_kind = $2 AND source_id = $3`,
			[]any{primaryID, types.EntityPerson, duplicateID}},
		{`UPDATE relationship_edges SET target_id = $1
			WHERE target_kind = $2 AND target_id = $3`,
			[]any{primaryID, types.EntityPerson, duplicateID}},
		{`UPDATE interaction_stats SET person_id = $1
			WHERE person_id = $2
			AND NOT EXISTS (SELECT 1 FROM interaction_stats WHERE person_id = $1)`,
			[]any{primaryID, duplicateID}},
		{`DELETE FROM interaction_stats WHERE person_id = $1`,
			[]any{duplicateID}},
		{`UPDATE relationship_strengths SET person_id = $1
			WHERE person_id = $2
			AND NOT EXISTS (SELECT 1 FROM relationship_strengths WHERE person_id = $1)`,
			[]any{primaryID, duplicateID}},
		{`DELETE FROM relationship_strengths WHERE person_id = $1`,
			[]any{duplicateID}},
	}
	for _, r := range reassignments {
		if _, err := tx.ExecContext(ctx, r.query, r.args...); err != nil {
			return translateError(err)
		}
	}

	if err := recordMerge(ctx, tx, types.EntityPerson, duplicateID, primaryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM people WHERE id = $1`, duplicateID); err != nil {
		return translateError(err)
	}
	return tx.Commit()
}

func (s *PostgresStore) MergeOrganizations(ctx context.Context, primaryID, duplicateID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := rowExists(ctx, tx, `SELECT 1 FROM organizations WHERE id = $1`, primaryID,
		types.EntityOrganization); err != nil {
		return err
	}
	if err := rowExists(ctx, tx, `SELECT 1 FROM organizations WHERE id = $1`, duplicateID,
		types.EntityOrganization); err != nil {
		return err
	}

	if err := closeCollidingFacts(ctx, tx, types.EntityOrganization, primaryID, duplicateID); err != nil {
		return err
	}

	reassignments := []struct {
		query string
		args  []any
	}{
		{`UPDATE facts SET entity_id = $1 WHERE entity_kind = $2 AND entity_id = $3`,
			[]any{primaryID, types.EntityOrganization, duplicateID}},
		{`UPDATE deals SET organization_id = $1 WHERE organization_id = $2`,
			[]any{primaryID, duplicateID}},
		{`UPDATE investments SET organization_id = $1 WHERE organization_id = $2`,
			[]any{primaryID, duplicateID}},
		{`UPDATE metrics SET organization_id = $1 WHERE organization_id = $2`,
			[]any{primaryID, duplicateID}},
		{`UPDATE relationship_edges SET source_id = $1
			WHERE source_kind = $2 AND source_id = $3`,
			[]any{primaryID, types.EntityOrganization, duplicateID}},
		{`UPDATE relationship_edges SET target_id = $1
			WHERE target_kind = $2 AND target_id = $3`,
			[]any{primaryID, types.EntityOrganization, duplicateID}},
	}
	for _, r := range reassignments {
		if _, err := tx.ExecContext(ctx, r.query, r.args...); err != nil {
			return translateError(err)
		}
	}

	if err := recordMerge(ctx, tx, types.EntityOrganization, duplicateID, primaryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, duplicateID); err != nil {
		return translateError(err)
	}
	return tx.Commit()
}

// closeCollidingFacts closes every current fact of the duplicate whose
// (fact_type, key) also has a current fact on the primary, marking it
// superseded by the primary's fact. Without this the reassignment below
// would trip the facts_current_unique index and abort the merge.
func closeCollidingFacts(ctx context.Context, tx *sql.Tx, kind types.EntityKind, primaryID, duplicateID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE facts d
		SET valid_until = NOW(), replaced_by_fact = p.id
		FROM facts p
		WHERE d.entity_kind = $1 AND d.entity_id = $2 AND d.valid_until IS NULL
			AND p.entity_kind = $1 AND p.entity_id = $3 AND p.valid_until IS NULL
			AND p.fact_type = d.fact_type AND p.key = d.key`,
		kind, duplicateID, primaryID)
	return translateError(err)
}

func rowExists(ctx context.Context, tx *sql.Tx, query, id string, kind types.EntityKind) error {
	var one int
	err := tx.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewNotFoundError(kind, id)
	}
	return err
}

func recordMerge(ctx context.Context, tx *sql.Tx, kind types.EntityKind, duplicateID, primaryID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO merge_history (id, kind, duplicate_id, primary_id, merged_at)
		VALUES ($1, $2, $3, $4, $5)`,
		newMergeID(), kind, duplicateID, primaryID, time.Now().UTC())
	return translateError(err)
}

func (s *PostgresStore) MergeHistory(ctx context.Context, kind types.EntityKind) ([]*types.MergeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, duplicate_id, primary_id, merged_at
		FROM merge_history WHERE kind = $1 ORDER BY merged_at`, kind)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*types.MergeRecord
	for rows.Next() {
		var rec types.MergeRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.DuplicateID, &rec.PrimaryID, &rec.MergedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
