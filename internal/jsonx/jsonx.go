// Package jsonx recovers a JSON object from noisy model output.
//
// Recovery runs as a fixed sequence of stages: strict decode, lenient (JSON5)
// decode, balanced-brace scan, and finally a reported failure. Each stage only
// runs when the previous one produced nothing usable.
package jsonx

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// ErrNoObject is returned when no stage recovered a JSON object.
var ErrNoObject = eris.New("jsonx: no JSON object found")

// Stage identifies the recovery stage that produced (or failed to produce) a result.
type Stage int

const (
	StageStrict Stage = iota + 1
	StageLenient
	StageBraceScan
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageStrict:
		return "strict"
	case StageLenient:
		return "lenient"
	case StageBraceScan:
		return "brace_scan"
	case StageFailed:
		return "failed"
	default:
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
}

// DecodeObject recovers the first JSON object in raw. The returned stage is the
// one that succeeded, or StageFailed alongside ErrNoObject.
func DecodeObject(raw string) (map[string]any, Stage, error) {
	text := StripFence(raw)
	stage := StageStrict
	for {
		switch stage {
		case StageStrict:
			if m, ok := decodeStrict(text); ok {
				return m, stage, nil
			}
			stage = StageLenient
		case StageLenient:
			if m, ok := decodeLenient(text); ok {
				return m, stage, nil
			}
			stage = StageBraceScan
		case StageBraceScan:
			if blob, ok := ExtractObject(raw); ok {
				if m, ok := decodeStrict(blob); ok {
					return m, stage, nil
				}
				if m, ok := decodeLenient(blob); ok {
					return m, stage, nil
				}
			}
			stage = StageFailed
		default:
			return nil, StageFailed, ErrNoObject
		}
	}
}

// StripFence removes a surrounding markdown code fence (```json ... ```).
// Text without a leading fence is returned unchanged.
func StripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return raw
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	out := strings.TrimSpace(strings.Join(lines, "\n"))
	if out == "" {
		return raw
	}
	return out
}

// ExtractObject scans text for balanced-brace candidates, left to right, and
// returns the first one that decodes as a JSON object. Braces inside string
// literals do not affect depth.
func ExtractObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			blob := text[start : end+1]
			if _, ok := decodeStrict(blob); ok {
				return blob, true
			}
			if _, ok := decodeLenient(blob); ok {
				return blob, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func decodeStrict(text string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func decodeLenient(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var m map[string]any
	if err := json5.Unmarshal([]byte(trimmed), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// String renders a decoded JSON value as a trimmed string. Nil becomes empty,
// numbers use their shortest form, composites are re-encoded as JSON.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Strings returns the non-blank string elements of a decoded JSON array.
func Strings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := String(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
