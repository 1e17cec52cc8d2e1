package kafka

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

const EventVersion = 1

// GraphEvent announces a freshly computed graph. Consumers read the graph from
// the store under Digest.
type GraphEvent struct {
	Version int       `json:"version"`
	Digest  string    `json:"digest"`
	Input   string    `json:"input,omitempty"`
	Regions int       `json:"regions"`
	Pairs   int       `json:"pairs"`
	RunID   string    `json:"run_id,omitempty"`
	TS      time.Time `json:"ts"`
}

var digestRe = regexp.MustCompile(`^[0-9a-f]{16}$`)

func (e GraphEvent) Validate() error {
	if e.Version != EventVersion {
		return fmt.Errorf("version must be %d", EventVersion)
	}
	if !digestRe.MatchString(e.Digest) {
		return fmt.Errorf("digest must be 16 lowercase hex digits")
	}
	if e.Regions < 0 || e.Pairs < 0 {
		return fmt.Errorf("regions and pairs must be >= 0")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// DecodeEvent parses and validates one message value.
func DecodeEvent(b []byte) (GraphEvent, error) {
	var e GraphEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return GraphEvent{}, fmt.Errorf("decode graph event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return GraphEvent{}, fmt.Errorf("invalid graph event: %w", err)
	}
	return e, nil
}
