package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/soundprediction/relato/pkg/types"
)

// encodeMeta serializes edge metadata for backends that store it as a
// JSON document.
func encodeMeta(m types.RelationshipMeta) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode relationship metadata: %w", err)
	}
	return data, nil
}

func decodeMeta(data []byte, m *types.RelationshipMeta) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to decode relationship metadata: %w", err)
	}
	return nil
}

func newMergeID() string {
	return uuid.NewString()
}
