package services

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
)

var (
	thoughtRe     = regexp.MustCompile(`(?i)Thought:\s*([^\n]+)`)
	actionLineRe  = regexp.MustCompile(`(?i)(?:^|\n)\s*\**Action\**:\s*([^\n]+)`)
	actionInputRe = regexp.MustCompile(`(?i)Action\s*Input:\s*`)
	callNameRe    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.\-]*)`)
)

// parseThought returns the first Thought: line, if any.
func parseThought(response string) string {
	if m := thoughtRe.FindStringSubmatch(response); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// parseActionLine returns the text after the first Action: line, if any.
// "Action Input:" lines are not matched.
func parseActionLine(response string) string {
	if m := actionLineRe.FindStringSubmatch(response); len(m) > 1 {
		return strings.Trim(m[1], "`* \t\r")
	}
	return ""
}

// parseTextAction converts free text into an action without the reasoning
// engine. It understands the call form on the Action: line,
// e.g. observe_scene(step=3) or create(name="A", position={"x":0}),
// and the bare-name form followed by "Action Input: {json}".
func parseTextAction(response string) (domain.Action, bool) {
	line := parseActionLine(response)
	if line == "" {
		return domain.Action{}, false
	}

	nameMatch := callNameRe.FindStringSubmatch(line)
	if len(nameMatch) < 2 {
		return domain.Action{}, false
	}
	name := nameMatch[1]
	rest := strings.TrimSpace(line[len(name):])

	var args map[string]interface{}
	switch {
	case strings.HasPrefix(rest, "("):
		inner, ok := enclosed(rest, '(', ')')
		if !ok {
			return domain.Action{}, false
		}
		args = parseCallArgs(inner)
	case strings.HasPrefix(rest, "{"):
		args = extractJSONObject(rest)
	default:
		args = extractActionInput(response)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return domain.NewAction(name, args), true
}

// parseCallArgs parses comma separated key=value pairs. Values are decoded as
// JSON when possible and kept as strings otherwise.
func parseCallArgs(inner string) map[string]interface{} {
	args := make(map[string]interface{})
	for _, part := range splitTopLevel(inner, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			key, value, ok = strings.Cut(part, ":")
		}
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"'`)
		if key == "" {
			continue
		}
		args[key] = parseArgValue(strings.TrimSpace(value))
	}
	return args
}

func parseArgValue(v string) interface{} {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(v), &decoded); err == nil {
		return decoded
	}
	return strings.Trim(v, `"`)
}

// splitTopLevel splits s on sep, ignoring separators nested in brackets or
// quoted strings.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	escaped := false
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if quote != 0 {
			if ch == '\\' {
				escaped = true
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// enclosed returns the text between the opening bracket at s[0] and its
// matching closer.
func enclosed(s string, open, closeCh byte) (string, bool) {
	if s == "" || s[0] != open {
		return "", false
	}
	end := matchingBrace(s, 0, open, closeCh)
	if end < 0 {
		return "", false
	}
	return s[1:end], true
}

// matchingBrace counts bracket depth from start, skipping quoted strings, and
// returns the index of the matching closer or -1.
func matchingBrace(s string, start int, open, closeCh byte) int {
	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inStr {
			escaped = true
			continue
		}
		if ch == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		if ch == open {
			depth++
		} else if ch == closeCh {
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// extractActionInput extracts the JSON object from "Action Input: {...}".
func extractActionInput(response string) map[string]interface{} {
	loc := actionInputRe.FindStringIndex(response)
	if loc == nil {
		return nil
	}
	return extractJSONObject(response[loc[1]:])
}

// extractJSONObject decodes the first balanced {...} in s. Unparseable JSON
// is returned under "raw" so the remote side can report the problem.
func extractJSONObject(s string) map[string]interface{} {
	start := strings.Index(s, "{")
	if start < 0 {
		return nil
	}
	end := matchingBrace(s, start, '{', '}')
	if end < 0 {
		return nil
	}
	jsonStr := s[start : end+1]
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &params); err != nil {
		return map[string]interface{}{"raw": jsonStr}
	}
	return params
}
