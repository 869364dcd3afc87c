package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrNotConnected       = errors.New("capability session is not connected")
)

// Origin identifies where a capability executes.
type Origin string

const (
	// OriginRemote runs through the remote capability-execution session.
	OriginRemote Origin = "remote"
	// OriginLocal runs inside the agent process.
	OriginLocal Origin = "local"
)

// Capability is a named, schema-described operation the agent can invoke.
// Local and remote capabilities share this shape so the planner cannot tell
// them apart.
type Capability struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema, already cleaned
	Origin      Origin
	Handler     LocalHandler // set for OriginLocal only
}

// LocalHandler executes a local capability.
type LocalHandler func(ctx context.Context, step int, args ActionArgs) (ToolResult, error)

// CapabilityRegistry holds the merged catalog. It is read-only once the
// session is connected.
type CapabilityRegistry struct {
	caps map[string]*Capability
}

// NewCapabilityRegistry creates an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		caps: make(map[string]*Capability),
	}
}

// Register adds a capability. A later registration with the same name wins.
func (r *CapabilityRegistry) Register(c *Capability) error {
	if c.Name == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	if c.Origin == OriginLocal && c.Handler == nil {
		return fmt.Errorf("local capability %s has no handler", c.Name)
	}
	if c.Parameters == nil {
		c.Parameters = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	r.caps[c.Name] = c
	return nil
}

// Get returns a capability by exact name.
func (r *CapabilityRegistry) Get(name string) (*Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Resolve finds a capability by name. An unknown name is corrected only when
// it is an unambiguous near-miss of exactly one catalog entry (see
// fuzzyMatch); anything else is ErrCapabilityNotFound.
func (r *CapabilityRegistry) Resolve(name string) (*Capability, bool, error) {
	if c, ok := r.caps[name]; ok {
		return c, false, nil
	}
	if match := r.fuzzyMatch(name); match != "" {
		return r.caps[match], true, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
}

// List returns all capabilities sorted by name.
func (r *CapabilityRegistry) List() []*Capability {
	out := make([]*Capability, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered capabilities.
func (r *CapabilityRegistry) Len() int {
	return len(r.caps)
}

// FormatForPrompt renders a compact catalog description:
// name: description | params: {a:type} | required: a
func (r *CapabilityRegistry) FormatForPrompt() string {
	var b strings.Builder
	b.WriteString("Available capabilities:\n")
	for _, c := range r.List() {
		paramsList := ""
		if props, ok := c.Parameters["properties"].(map[string]interface{}); ok && len(props) > 0 {
			names := make([]string, 0, len(props))
			for n := range props {
				names = append(names, n)
			}
			sort.Strings(names)
			parts := make([]string, 0, len(names))
			for _, n := range names {
				pType := "any"
				if pm, ok := props[n].(map[string]interface{}); ok {
					if t, ok := pm["type"].(string); ok {
						pType = t
					}
				}
				parts = append(parts, n+":"+pType)
			}
			paramsList = " | params: {" + strings.Join(parts, ", ") + "}"
		}
		reqParams := ""
		if req := requiredNames(c.Parameters["required"]); len(req) > 0 {
			reqParams = " | required: " + strings.Join(req, ", ")
		}
		fmt.Fprintf(&b, "- %s: %s%s%s\n", c.Name, c.Description, paramsList, reqParams)
	}
	return b.String()
}

func requiredNames(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// maxNameEdits bounds typo correction against a full capability name.
const maxNameEdits = 2

// fuzzyMatch corrects a wrong name only when the intent is unambiguous:
//   - same name up to case and separators ("Manage-Scene")
//   - same words in another order ("scene_manage")
//   - a typo of at most maxNameEdits edits that keeps the leading verb
//     ("manage_scen")
//
// Names that share a word but differ in their verb ("create_object" vs
// "delete_object") are never corrected. Ties return "".
func (r *CapabilityRegistry) fuzzyMatch(input string) string {
	inputWords := splitToolWords(input)
	if len(inputWords) == 0 {
		return ""
	}
	inputKey := strings.Join(inputWords, "")
	inputSet := sortedWords(inputWords)

	var candidates []string
	for _, c := range r.List() {
		words := splitToolWords(c.Name)
		if strings.Join(words, "") == inputKey || sortedWords(words) == inputSet {
			candidates = append(candidates, c.Name)
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	if len(candidates) > 1 {
		return ""
	}

	best, bestDist, tie := "", maxNameEdits+1, false
	for _, c := range r.List() {
		words := splitToolWords(c.Name)
		if len(words) == 0 || words[0] != inputWords[0] {
			continue
		}
		d := levenshtein(strings.Join(inputWords, "_"), strings.Join(words, "_"))
		switch {
		case d < bestDist:
			best, bestDist, tie = c.Name, d, false
		case d == bestDist:
			tie = true
		}
	}
	if best == "" || tie {
		return ""
	}
	return best
}

// splitToolWords lower-cases a name and splits it on '_', '-', '.' and spaces.
func splitToolWords(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
}

func sortedWords(words []string) string {
	cp := append([]string(nil), words...)
	sort.Strings(cp)
	return strings.Join(cp, " ")
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
