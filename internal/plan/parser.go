package plan

import (
	"encoding/json"
	"strings"
)

// emptyObject is the default argument payload for calls without arguments.
var emptyObject = json.RawMessage("{}")

// wire mirrors the action-plan wire shape:
//
//	{"type":"respond","text":"..."}
//	{"type":"call_skills","calls":[{"skillId":"...","arguments":{...}}, ...]}
type wire struct {
	Type  string     `json:"type"`
	Text  *string    `json:"text"`
	Calls []wireCall `json:"calls"`
}

type wireCall struct {
	SkillID   *string         `json:"skillId"`
	Arguments json.RawMessage `json:"arguments"`
}

// Parse recovers a [Plan] from raw model output.
//
// Recovery runs in two stages before validation: first a leading/trailing
// triple-backtick fence (with or without a language tag) is stripped; if the
// result still does not decode as a JSON object, the blob is scanned for the
// first balanced {...} span outside string literals, which recovers an object
// even when the model wrapped it in commentary.
//
// The returned error is always a [*ParseError].
func Parse(raw string) (Plan, error) {
	candidate := stripFence(strings.TrimSpace(raw))

	var w wire
	if err := json.Unmarshal([]byte(candidate), &w); err != nil {
		recovered, ok := extractObject(candidate)
		if !ok {
			return nil, &ParseError{Kind: ErrInvalidJSON, Detail: "no JSON object found in model output"}
		}
		if err := json.Unmarshal([]byte(recovered), &w); err != nil {
			return nil, &ParseError{Kind: ErrInvalidJSON, Detail: "recovered brace span is not a valid JSON object"}
		}
	}

	return validate(w)
}

// validate converts a decoded wire object into a Plan, enforcing the schema.
func validate(w wire) (Plan, error) {
	switch w.Type {
	case "":
		return nil, &ParseError{Kind: ErrMissingType, Detail: `object has no "type" field`}

	case "respond":
		if w.Text == nil {
			return nil, &ParseError{Kind: ErrMissingField, Detail: `type "respond" requires a "text" string field`}
		}
		return Respond{Text: *w.Text}, nil

	case "call_skills":
		if w.Calls == nil {
			return nil, &ParseError{Kind: ErrMissingField, Detail: `type "call_skills" requires a "calls" array`}
		}
		calls := make([]SkillCall, len(w.Calls))
		for i, c := range w.Calls {
			if c.SkillID == nil || *c.SkillID == "" {
				return nil, &ParseError{Kind: ErrMissingField, Detail: `every call requires a "skillId" string field`}
			}
			args := c.Arguments
			if len(args) == 0 || string(args) == "null" {
				args = emptyObject
			} else if !isJSONObject(args) {
				return nil, &ParseError{Kind: ErrMissingField, Detail: `"arguments" must be a JSON object`}
			}
			calls[i] = SkillCall{SkillID: *c.SkillID, Arguments: args}
		}
		return CallSkills{Calls: calls}, nil

	default:
		return nil, &ParseError{Kind: ErrUnknownType, Detail: `unsupported "type" value: ` + w.Type}
	}
}

// stripFence removes a surrounding triple-backtick markdown fence, with or
// without a language tag after the opening backticks. Input that is not
// fenced is returned unchanged.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	rest := s[3:]

	// Drop an optional language tag up to the first newline.
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return s
	}
	rest = rest[nl+1:]

	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return s
	}
	return strings.TrimSpace(rest[:end])
}

// extractObject scans s for the first balanced {...} span whose braces sit
// outside string literals. Inside the span, double-quoted strings are tracked
// with backslash-escape handling so braces embedded in string values do not
// affect the depth count. Returns ok=false when no balanced span exists.
func extractObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if depth > 0 && inString {
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// isJSONObject reports whether raw starts with '{' after leading whitespace.
func isJSONObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
