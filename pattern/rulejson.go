package pattern

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/coregx/ruler/number"
)

// Conjunction is one sub-rule: a conjunction of field-name -> pattern-list
// constraints. Within a field's pattern list, patterns are OR'd (a field
// is satisfied if any one of its patterns matches); across fields, the
// map entries are AND'd, per spec.md §6's rule-JSON grammar.
type Conjunction map[string][]Pattern

// ParseRule decodes a rule-JSON document (spec.md §6) into the list of
// sub-rules (disjuncts) it expands to. A top-level or nested "$or" key
// introduces alternative sub-objects; the result is the full
// disjunctive-normal-form expansion of the document.
func ParseRule(ruleJSON []byte) ([]Conjunction, error) {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(ruleJSON))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, &InvalidRuleJSONError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &InvalidRuleJSONError{Reason: "rule must be a JSON object"}
	}
	return parseObject(obj, "")
}

// InvalidRuleJSONError reports a structurally invalid rule document.
type InvalidRuleJSONError struct {
	Reason string
}

func (e *InvalidRuleJSONError) Error() string {
	return fmt.Sprintf("pattern: invalid rule: %s", e.Reason)
}

func parseObject(obj map[string]interface{}, prefix string) ([]Conjunction, error) {
	acc := []Conjunction{{}}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := obj[key]
		var factor []Conjunction
		var err error

		if key == "$or" {
			factor, err = parseOr(val, prefix)
		} else {
			factor, err = parseField(joinPath(prefix, key), val)
		}
		if err != nil {
			return nil, err
		}
		acc, err = crossProduct(acc, factor)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func parseOr(val interface{}, prefix string) ([]Conjunction, error) {
	arr, ok := val.([]interface{})
	if !ok {
		return nil, &InvalidRuleJSONError{Reason: "$or value must be an array"}
	}
	var out []Conjunction
	for _, elem := range arr {
		elemObj, ok := elem.(map[string]interface{})
		if !ok {
			return nil, &InvalidRuleJSONError{Reason: "$or elements must be objects"}
		}
		sub, err := parseObject(elemObj, prefix)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func parseField(path string, val interface{}) ([]Conjunction, error) {
	switch v := val.(type) {
	case []interface{}:
		patterns, err := parseMatchSpecs(v)
		if err != nil {
			return nil, err
		}
		return []Conjunction{{path: patterns}}, nil
	case map[string]interface{}:
		return parseObject(v, path)
	default:
		return nil, &InvalidRuleJSONError{Reason: fmt.Sprintf("field %q must be an array or object", path)}
	}
}

func crossProduct(a, b []Conjunction) ([]Conjunction, error) {
	out := make([]Conjunction, 0, len(a)*len(b))
	for _, ca := range a {
		for _, cb := range b {
			merged := make(Conjunction, len(ca)+len(cb))
			for k, v := range ca {
				merged[k] = v
			}
			for k, v := range cb {
				if _, exists := merged[k]; exists {
					return nil, &InvalidRuleJSONError{Reason: fmt.Sprintf("field %q constrained more than once across $or branches", k)}
				}
				merged[k] = v
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func parseMatchSpecs(specs []interface{}) ([]Pattern, error) {
	if len(specs) == 0 {
		return nil, &InvalidRuleJSONError{Reason: "match specification list must not be empty"}
	}
	out := make([]Pattern, 0, len(specs))
	for _, spec := range specs {
		p, err := parseMatchSpec(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseMatchSpec(spec interface{}) (Pattern, error) {
	switch v := spec.(type) {
	case string:
		return NewExact(strconv.Quote(v)), nil
	case json.Number:
		return NewExact(v.String()), nil
	case bool:
		if v {
			return NewExact("true"), nil
		}
		return NewExact("false"), nil
	case nil:
		return NewExact("null"), nil
	case map[string]interface{}:
		return parseMatchObject(v)
	default:
		return Pattern{}, &InvalidRuleJSONError{Reason: fmt.Sprintf("unsupported match specification %#v", spec)}
	}
}

func parseMatchObject(obj map[string]interface{}) (Pattern, error) {
	if len(obj) != 1 {
		return Pattern{}, &InvalidRuleJSONError{Reason: "match specification object must have exactly one key"}
	}
	for key, val := range obj {
		switch key {
		case "prefix":
			return parsePrefixSuffix(val, true)
		case "suffix":
			return parsePrefixSuffix(val, false)
		case "equals-ignore-case":
			s, ok := val.(string)
			if !ok {
				return Pattern{}, &InvalidRuleJSONError{Reason: "equals-ignore-case value must be a string"}
			}
			return NewEqualsIgnoreCase(strconv.Quote(s)), nil
		case "wildcard":
			s, ok := val.(string)
			if !ok {
				return Pattern{}, &InvalidRuleJSONError{Reason: "wildcard value must be a string"}
			}
			return NewWildcard(quoteForWildcard(s))
		case "exists":
			b, ok := val.(bool)
			if !ok {
				return Pattern{}, &InvalidRuleJSONError{Reason: "exists value must be a boolean"}
			}
			if b {
				return NewExists(), nil
			}
			return NewAbsent(), nil
		case "numeric":
			return parseNumeric(val)
		case "cidr":
			s, ok := val.(string)
			if !ok {
				return Pattern{}, &InvalidRuleJSONError{Reason: "cidr value must be a string"}
			}
			lo, hi, err := number.EncodeCIDR(s)
			if err != nil {
				return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
			}
			return NewCIDRRange(lo, hi), nil
		case "anything-but":
			return parseAnythingBut(val)
		default:
			return Pattern{}, &InvalidRuleJSONError{Reason: fmt.Sprintf("unknown match type %q", key)}
		}
	}
	panic("unreachable")
}

// quoteForWildcard quotes s for comparison against a string Value's
// JSON-quoted form, while leaving '*' meta-characters untouched for the
// wildcard compiler. strconv.Quote would escape characters inside s but
// never touches a bare '*', so this is safe to call before NewWildcard's
// validation.
func quoteForWildcard(s string) string {
	return strconv.Quote(s)
}

func parsePrefixSuffix(val interface{}, isPrefix bool) (Pattern, error) {
	switch v := val.(type) {
	case string:
		quoted := strconv.Quote(v)
		// PREFIX keeps the opening quote and drops the closing one;
		// SUFFIX does the opposite -- the match is a true byte
		// prefix/suffix of the quoted event value.
		if isPrefix {
			return NewPrefix(quoted[:len(quoted)-1]), nil
		}
		return NewSuffix(quoted[1:]), nil
	case map[string]interface{}:
		if len(v) != 1 {
			return Pattern{}, &InvalidRuleJSONError{Reason: "prefix/suffix object must have exactly one key"}
		}
		inner, ok := v["equals-ignore-case"]
		if !ok {
			return Pattern{}, &InvalidRuleJSONError{Reason: "prefix/suffix object must use equals-ignore-case"}
		}
		s, ok := inner.(string)
		if !ok {
			return Pattern{}, &InvalidRuleJSONError{Reason: "equals-ignore-case value must be a string"}
		}
		quoted := strconv.Quote(s)
		if isPrefix {
			return NewPrefixIgnoreCase(quoted[:len(quoted)-1]), nil
		}
		return NewSuffixIgnoreCase(quoted[1:]), nil
	default:
		return Pattern{}, &InvalidRuleJSONError{Reason: "prefix/suffix value must be a string or {equals-ignore-case: ...}"}
	}
}

func parseNumeric(val interface{}) (Pattern, error) {
	arr, ok := val.([]interface{})
	if !ok || (len(arr) != 2 && len(arr) != 4) {
		return Pattern{}, &InvalidRuleJSONError{Reason: "numeric value must be [op, value] or [op, value, op, value]"}
	}
	op1, v1, err := numericOperand(arr[0], arr[1])
	if err != nil {
		return Pattern{}, err
	}
	if len(arr) == 2 {
		enc, err := number.Encode(v1)
		if err != nil {
			return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
		}
		var p Pattern
		switch op1 {
		case "=":
			return NewNumericEQ(enc), nil
		case ">", ">=":
			p, err = NewNumericRange(enc, number.MaxEncoded, op1 == ">", false)
		default: // "<", "<="
			p, err = NewNumericRange(number.MinEncoded, enc, false, op1 == "<")
		}
		if err != nil {
			return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
		}
		return p, nil
	}

	op2, v2, err := numericOperand(arr[2], arr[3])
	if err != nil {
		return Pattern{}, err
	}

	lowerOp, lowerVal, upperOp, upperVal, err := orderNumericOperands(op1, v1, op2, v2)
	if err != nil {
		return Pattern{}, err
	}
	loEnc, err := number.Encode(lowerVal)
	if err != nil {
		return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
	}
	hiEnc, err := number.Encode(upperVal)
	if err != nil {
		return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
	}
	openLo := lowerOp == ">"
	openHi := upperOp == "<"
	p, err := NewNumericRange(loEnc, hiEnc, openLo, openHi)
	if err != nil {
		return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
	}
	return p, nil
}

func numericOperand(opVal, numVal interface{}) (string, float64, error) {
	op, ok := opVal.(string)
	if !ok {
		return "", 0, &InvalidRuleJSONError{Reason: "numeric operator must be a string"}
	}
	switch op {
	case "<", "<=", "=", ">=", ">":
	default:
		return "", 0, &InvalidRuleJSONError{Reason: fmt.Sprintf("unknown numeric operator %q", op)}
	}
	n, err := toFloat(numVal)
	if err != nil {
		return "", 0, &InvalidRuleJSONError{Reason: fmt.Sprintf("numeric operand must be a number: %v", err)}
	}
	return op, n, nil
}

// toFloat converts a decoded rule-JSON number to float64. ParseRule's
// decoder always calls dec.UseNumber(), so every JSON number value
// reaching here arrives as json.Number, never a bare float64.
func toFloat(v interface{}) (float64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("not a number: %#v", v)
	}
	return n.Float64()
}

func orderNumericOperands(op1 string, v1 float64, op2 string, v2 float64) (lowerOp string, lowerVal float64, upperOp string, upperVal float64, err error) {
	isLower := func(op string) bool { return op == ">" || op == ">=" }
	isUpper := func(op string) bool { return op == "<" || op == "<=" }
	switch {
	case isLower(op1) && isUpper(op2):
		return op1, v1, op2, v2, nil
	case isUpper(op1) && isLower(op2):
		return op2, v2, op1, v1, nil
	default:
		return "", 0, "", 0, &InvalidRuleJSONError{Reason: "two-operand numeric range needs one lower (>,>=) and one upper (<,<=) bound"}
	}
}

func parseAnythingBut(val interface{}) (Pattern, error) {
	switch v := val.(type) {
	case string:
		return NewAnythingButStrings([]string{strconv.Quote(v)})
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
		}
		enc, err := number.Encode(f)
		if err != nil {
			return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
		}
		return NewAnythingButNumbers([]number.ComparableNumber{enc})
	case []interface{}:
		return parseAnythingButList(v)
	case map[string]interface{}:
		if len(v) != 1 {
			return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but object must have exactly one key"}
		}
		for key, inner := range v {
			switch key {
			case "prefix":
				s, ok := inner.(string)
				if !ok {
					return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but prefix value must be a string"}
				}
				quoted := strconv.Quote(s)
				return NewAnythingButPrefix(quoted[:len(quoted)-1]), nil
			case "suffix":
				s, ok := inner.(string)
				if !ok {
					return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but suffix value must be a string"}
				}
				quoted := strconv.Quote(s)
				return NewAnythingButSuffix(quoted[1:]), nil
			case "wildcard":
				s, ok := inner.(string)
				if !ok {
					return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but wildcard value must be a string"}
				}
				return NewAnythingButWildcard(quoteForWildcard(s))
			case "equals-ignore-case":
				switch iv := inner.(type) {
				case string:
					return NewAnythingButIgnoreCaseStrings([]string{strconv.Quote(iv)})
				case []interface{}:
					quoted := make([]string, 0, len(iv))
					for _, e := range iv {
						s, ok := e.(string)
						if !ok {
							return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but equals-ignore-case list must contain strings"}
						}
						quoted = append(quoted, strconv.Quote(s))
					}
					return NewAnythingButIgnoreCaseStrings(quoted)
				default:
					return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but equals-ignore-case value must be a string or list"}
				}
			default:
				return Pattern{}, &InvalidRuleJSONError{Reason: fmt.Sprintf("unknown anything-but key %q", key)}
			}
		}
		panic("unreachable")
	default:
		return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but value must be a scalar, list, or match object"}
	}
}

func parseAnythingButList(list []interface{}) (Pattern, error) {
	if len(list) == 0 {
		return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but list must not be empty"}
	}
	allNumeric := true
	for _, e := range list {
		if _, ok := e.(json.Number); !ok {
			allNumeric = false
		}
	}
	if allNumeric {
		nums := make([]number.ComparableNumber, 0, len(list))
		for _, e := range list {
			f, err := toFloat(e)
			if err != nil {
				return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
			}
			enc, err := number.Encode(f)
			if err != nil {
				return Pattern{}, &InvalidRuleJSONError{Reason: err.Error()}
			}
			nums = append(nums, enc)
		}
		return NewAnythingButNumbers(nums)
	}
	quoted := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			return Pattern{}, &InvalidRuleJSONError{Reason: "anything-but list must be all strings or all numbers"}
		}
		quoted = append(quoted, strconv.Quote(s))
	}
	return NewAnythingButStrings(quoted)
}
