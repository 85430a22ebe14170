package llm

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ParseArguments decodes tool-call arguments. Arguments arrive either as a
// JSON object or as a JSON string encoding one. Empty input is an empty map.
func ParseArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return map[string]any{}, eris.Wrap(err, "decode argument string")
		}
		if len(bytes.TrimSpace([]byte(s))) == 0 {
			return map[string]any{}, nil
		}
		raw = []byte(s)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}, eris.Wrap(err, "decode arguments")
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// ArgumentsMap is ParseArguments with malformed input degraded to an empty map.
func ArgumentsMap(raw json.RawMessage) map[string]any {
	m, _ := ParseArguments(raw)
	return m
}
