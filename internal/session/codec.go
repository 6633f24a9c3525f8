package session

import (
	"encoding/json"
	"fmt"
)

// EncodeRecord serializes a session the way it is kept in Redis and sent on the feed.
func EncodeRecord(s Session) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeRecord parses a stored record. key is the record's identifier in the
// store and fills Identifier when the payload omits it.
func DecodeRecord(key string, raw []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if s.Identifier == "" {
		s.Identifier = key
	}
	if s.Identifier == "" {
		return Session{}, fmt.Errorf("%w: missing identifier", ErrDecoding)
	}
	if s.HostUserIdentifier == "" {
		return Session{}, fmt.Errorf("%w: session %s has no host", ErrDecoding, s.Identifier)
	}
	return s, nil
}

// change is the pub/sub payload describing one mutation.
type change struct {
	ID     string          `json:"id"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

func encodeChange(id string, before, after *Session) ([]byte, error) {
	c := change{ID: id}
	if before != nil {
		raw, err := EncodeRecord(*before)
		if err != nil {
			return nil, err
		}
		c.Before = raw
	}
	if after != nil {
		raw, err := EncodeRecord(*after)
		if err != nil {
			return nil, err
		}
		c.After = raw
	}
	return json.Marshal(c)
}

func decodeChange(payload []byte) (before, after *Session, err error) {
	var c change
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if len(c.Before) > 0 && string(c.Before) != "null" {
		s, err := DecodeRecord(c.ID, c.Before)
		if err != nil {
			return nil, nil, err
		}
		before = &s
	}
	if len(c.After) > 0 && string(c.After) != "null" {
		s, err := DecodeRecord(c.ID, c.After)
		if err != nil {
			return nil, nil, err
		}
		after = &s
	}
	if before == nil && after == nil {
		return nil, nil, fmt.Errorf("%w: empty change for %q", ErrDecoding, c.ID)
	}
	return before, after, nil
}
