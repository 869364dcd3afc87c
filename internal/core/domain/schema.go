package domain

import "sort"

// Schema keys produced by provider authoring tools that the reasoning engine's
// function-calling contract does not accept.
var NonPortableSchemaKeys = []string{"default", "title", "additionalProperties"}

// SchemaNode is a JSON-like tree: a mapping, a sequence or a scalar.
type SchemaNode interface {
	// Strip returns a copy of the node with every mapping entry whose key is in
	// keys removed, at any depth.
	Strip(keys map[string]struct{}) SchemaNode
	// Value converts the node back to plain Go values.
	Value() interface{}
}

// MapNode is a mapping node.
type MapNode map[string]SchemaNode

// SeqNode is a sequence node.
type SeqNode []SchemaNode

// ScalarNode wraps any leaf value (string, number, bool, nil).
type ScalarNode struct {
	V interface{}
}

// ParseSchema lifts decoded JSON (maps, slices, scalars) into a SchemaNode tree.
func ParseSchema(v interface{}) SchemaNode {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(MapNode, len(t))
		for k, child := range t {
			m[k] = ParseSchema(child)
		}
		return m
	case []interface{}:
		s := make(SeqNode, len(t))
		for i, child := range t {
			s[i] = ParseSchema(child)
		}
		return s
	case []string:
		s := make(SeqNode, len(t))
		for i, child := range t {
			s[i] = ScalarNode{V: child}
		}
		return s
	default:
		return ScalarNode{V: v}
	}
}

func (m MapNode) Strip(keys map[string]struct{}) SchemaNode {
	out := make(MapNode, len(m))
	for k, child := range m {
		if _, drop := keys[k]; drop {
			continue
		}
		out[k] = child.Strip(keys)
	}
	return out
}

func (m MapNode) Value() interface{} {
	out := make(map[string]interface{}, len(m))
	for k, child := range m {
		out[k] = child.Value()
	}
	return out
}

// Keys returns the mapping keys in sorted order.
func (m MapNode) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s SeqNode) Strip(keys map[string]struct{}) SchemaNode {
	out := make(SeqNode, len(s))
	for i, child := range s {
		out[i] = child.Strip(keys)
	}
	return out
}

func (s SeqNode) Value() interface{} {
	out := make([]interface{}, len(s))
	for i, child := range s {
		out[i] = child.Value()
	}
	return out
}

func (n ScalarNode) Strip(map[string]struct{}) SchemaNode { return n }

func (n ScalarNode) Value() interface{} { return n.V }

// StripSchemaKeys removes the given keys at every depth of a decoded schema.
func StripSchemaKeys(schema map[string]interface{}, keys ...string) map[string]interface{} {
	if schema == nil {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	cleaned, _ := ParseSchema(schema).Strip(set).Value().(map[string]interface{})
	return cleaned
}

// CleanSchema removes the non-portable schema metadata keys.
func CleanSchema(schema map[string]interface{}) map[string]interface{} {
	return StripSchemaKeys(schema, NonPortableSchemaKeys...)
}
