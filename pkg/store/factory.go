package store

import (
	"fmt"
	"strings"
)

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendNeo4j    = "neo4j"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	// Type is one of memory, postgres, or neo4j. Empty defaults to memory.
	Type string `mapstructure:"type"`

	// DSN is the PostgreSQL connection string.
	DSN string `mapstructure:"dsn"`

	// URI, Username, Password, and Database configure Neo4j.
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// New builds the configured backend. The zero Config yields an in-memory
// store.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		return NewPostgresStore(cfg.DSN)
	case BackendNeo4j:
		if cfg.URI == "" {
			return nil, fmt.Errorf("neo4j backend requires a uri")
		}
		return NewNeo4jStore(cfg.URI, cfg.Username, cfg.Password, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
