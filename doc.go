// Package relato provides identity resolution and temporal fact
// consistency for relationship data.
//
// Relato deduplicates people and organizations behind deterministic
// canonical keys, keeps an append-only ledger of time-bounded facts with
// exactly one current value per key, resolves conflicting observations
// through configurable strategies, and derives relationship strength
// scores from interaction history.
//
// # Basic Usage
//
// Create a client over a store backend:
//
//	// In-memory store, suitable for tests and small tools
//	st := store.NewMemoryStore()
//
//	// Or PostgreSQL / Neo4j
//	st, err := store.New(store.Config{Type: "postgres", DSN: dsn})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := relato.NewClient(st, nil, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Initialize(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Resolving Entities
//
// Observations resolve against the canonical-key registry; the same
// identity always lands on the same record:
//
//	res, err := client.ResolveOrCreatePerson(ctx, types.PersonInput{
//		FirstName: "Ada",
//		LastName:  "Lovelace",
//		Email:     "ada@example.com",
//	}, true)
//
// # Recording Facts
//
// Facts are versioned observations; conflicting values are resolved by
// the strategy configured for their fact type:
//
//	out, err := client.AddFactWithConflictDetection(ctx, types.FactInput{
//		Entity:   res.Person.Ref(),
//		FactType: "profile",
//		Key:      "title",
//		Value:    "Chief Engineer",
//		Source:   types.SourceManual,
//	}, "")
//
// Superseded values are never deleted; GetFactHistory and GetFactsAt
// answer audit and point-in-time queries.
package relato
