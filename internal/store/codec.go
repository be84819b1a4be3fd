package store

import (
	"encoding/json"
	"fmt"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

// SchemaVersion is the version of the persisted session document.
const SchemaVersion = 1

type document struct {
	SchemaVersion int `json:"schema_version"`
	*session.Session
}

// Encode serializes s as an indented JSON document.
func Encode(s *session.Session) ([]byte, error) {
	data, err := json.MarshalIndent(document{SchemaVersion: SchemaVersion, Session: s}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return append(data, '\n'), nil
}

// Decode parses a session document and checks its invariants. Any failure
// matches errors.ErrSessionCorrupted.
func Decode(data []byte) (*session.Session, error) {
	doc := document{Session: &session.Session{}}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewSessionError(fmt.Sprintf("decode session: %v", err), errors.ErrSessionCorrupted)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, errors.NewSessionError(
			fmt.Sprintf("unsupported schema_version %d", doc.SchemaVersion),
			errors.ErrSessionCorrupted,
		).WithSessionID(doc.ID)
	}

	s := doc.Session
	if s.Exchanges == nil {
		s.Exchanges = []session.Exchange{}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
