package events

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Marshal validates a payload and encodes it as canonical JSON.
func Marshal(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", p.Subject(), err)
	}
	return json.Marshal(p)
}

// Decode unmarshals and validates a payload in one step. It is the only
// deserialization path in the codebase: handlers receive values that have
// already passed schema validation.
func Decode[T Payload](data []byte) (T, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("malformed %s payload: %w", p.Subject(), err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid %s payload: %w", p.Subject(), err)
	}
	return p, nil
}

// CorrelationID extracts the input_id from a raw payload without decoding
// it, for log enrichment on paths that never deserialize the message.
func CorrelationID(data []byte) string {
	return gjson.GetBytes(data, "input_id").String()
}
