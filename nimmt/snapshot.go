package nimmt

import (
	"encoding/json"
	"fmt"
)

// EncodeSnapshot serializes the persistable part of s.
func EncodeSnapshot(s *GameState) ([]byte, error) {
	return json.Marshal(s.Persistable())
}

// DecodeSnapshot restores a stored state and checks its invariants.
func DecodeSnapshot(data []byte) (*GameState, error) {
	s := &GameState{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
