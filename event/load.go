// Package event flattens the "Event JSON" external interface (spec.md §6)
// into the ordered, dotted-path field list the traversal engine (package
// compiler) walks: arbitrary nested objects/arrays reduced to a sorted
// []Field, each carrying its JSON value and the indices of every array it
// is nested inside (package membership).
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/coregx/ruler/membership"
	"github.com/coregx/ruler/pattern"
)

// Field is one leaf value of a flattened event.
type Field struct {
	Path       string
	Value      pattern.Value
	Membership membership.Membership
}

// FieldUsed reports whether path is referenced by at least one compiled
// rule. The loader calls this before materialising a leaf so that an
// event with many fields no rule cares about costs proportional to the
// rule set, not to the event (spec.md §6: "only field names referenced
// by at least one compiled rule are materialised").
type FieldUsed func(path string) bool

// UseAllFields is a FieldUsed that materialises every leaf; useful for
// tests and for the reference matcher, which has no compiled-rule index
// to consult.
func UseAllFields(string) bool { return true }

// LoadError reports that an event document could not be loaded.
type LoadError struct {
	Reason string
}

func (e *LoadError) Error() string { return fmt.Sprintf("event: %s", e.Reason) }

// Load decodes eventJSON and flattens it into a Path-sorted []Field,
// skipping any leaf whose path used rejects. The top-level document must
// be a JSON object, per spec.md §7's InvalidEvent kind.
func Load(eventJSON []byte, used FieldUsed) ([]Field, error) {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(eventJSON))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, &LoadError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &LoadError{Reason: "event must be a JSON object"}
	}

	var fields []Field
	flatten(obj, "", membership.None, used, &fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
	return fields, nil
}

func flatten(v interface{}, path string, mem membership.Membership, used FieldUsed, out *[]Field) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(val[k], joinPath(path, k), mem, used, out)
		}
	case []interface{}:
		arrID := membership.ArrayID(path)
		for i, elem := range val {
			flatten(elem, path, mem.With(arrID, i), used, out)
		}
	case nil:
		appendLeaf(path, pattern.LiteralValue("null"), mem, used, out)
	case bool:
		if val {
			appendLeaf(path, pattern.LiteralValue("true"), mem, used, out)
		} else {
			appendLeaf(path, pattern.LiteralValue("false"), mem, used, out)
		}
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return
		}
		appendLeaf(path, pattern.NumberValue(f), mem, used, out)
	case string:
		appendLeaf(path, pattern.StringValue(val), mem, used, out)
	}
}

func appendLeaf(path string, v pattern.Value, mem membership.Membership, used FieldUsed, out *[]Field) {
	if path == "" || !used(path) {
		return
	}
	*out = append(*out, Field{Path: path, Value: v, Membership: mem})
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
