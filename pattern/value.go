package pattern

import (
	"strconv"
	"strings"

	"github.com/coregx/ruler/number"
)

// Value is one event field's value as produced by the event loader
// (package event): either a JSON-quoted string or a finite JSON number.
// Booleans and null are treated as their JSON literal text ("true",
// "false", "null"), which is how spec.md's EXACT matching treats them
// (compared byte-for-byte, not JSON-quoted, since they aren't strings).
type Value struct {
	Raw      string // the byte form compared against string-kind Patterns
	IsString bool
	Number   float64
	IsNumber bool
}

// StringValue returns a Value for a JSON string, storing it in the quoted
// form spec.md §3 requires (so PREFIX/SUFFIX logic can distinguish it from
// a non-string value).
func StringValue(s string) Value {
	return Value{Raw: strconv.Quote(s), IsString: true}
}

// NumberValue returns a Value for a JSON number.
func NumberValue(n float64) Value {
	return Value{Raw: formatNumber(n), IsNumber: true, Number: n}
}

// LiteralValue returns a Value for a bare JSON literal (true/false/null),
// compared as unquoted text.
func LiteralValue(text string) Value {
	return Value{Raw: text}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Matches reports whether v satisfies p. This is a reference evaluator,
// not the compiled matcher's traversal path (package bytevm compiles
// byte-level automata instead), but the two must always agree; it backs
// internal/refmatcher and is called directly by package bytevm for the
// ANYTHING_BUT_PREFIX/SUFFIX/WILDCARD kinds, which never enter a byte
// automaton. EXISTS/ABSENT are decided by field presence in bytevm and
// namefsm, not by this method.
func (p Pattern) Matches(v Value) bool {
	switch p.kind {
	case Exact:
		return v.Raw == p.s
	case Prefix:
		return strings.HasPrefix(v.Raw, p.s)
	case Suffix:
		return strings.HasSuffix(v.Raw, p.s)
	case EqualsIgnoreCase:
		return v.IsString && strings.EqualFold(v.Raw, p.s)
	case PrefixIgnoreCase:
		return v.IsString && len(v.Raw) >= len(p.s) && strings.EqualFold(v.Raw[:len(p.s)], p.s)
	case SuffixIgnoreCase:
		return v.IsString && len(v.Raw) >= len(p.s) && strings.EqualFold(v.Raw[len(v.Raw)-len(p.s):], p.s)
	case Wildcard:
		return v.IsString && wildcardMatch(p.s, v.Raw)
	case NumericEQ:
		if !v.IsNumber {
			return false
		}
		enc, err := number.Encode(v.Number)
		return err == nil && enc.Compare(p.numEQ) == 0
	case NumericRange:
		if p.isCIDR {
			return false // CIDR operates on IP-shaped strings, not numbers
		}
		if !v.IsNumber {
			return false
		}
		enc, err := number.Encode(v.Number)
		if err != nil {
			return false
		}
		return rangeContains(enc.Bytes(), p.rangeLo, p.rangeHi, p.rangeOpenLo, p.rangeOpenHi)
	case Exists:
		return true // presence is checked by the caller before Matches is reached
	case Absent:
		return false // ABSENT never matches a present value; see namefsm
	case AnythingBut:
		if p.isNumericSet {
			if !v.IsNumber {
				return true
			}
			enc, err := number.Encode(v.Number)
			if err != nil {
				return true
			}
			for _, n := range p.numberSet {
				if n.Compare(enc) == 0 {
					return false
				}
			}
			return true
		}
		for _, s := range p.stringSet {
			if s == v.Raw {
				return false
			}
		}
		return true
	case AnythingButIgnoreCase:
		for _, s := range p.stringSet {
			if strings.EqualFold(s, v.Raw) {
				return false
			}
		}
		return true
	case AnythingButPrefix:
		return !strings.HasPrefix(v.Raw, p.s)
	case AnythingButSuffix:
		return !strings.HasSuffix(v.Raw, p.s)
	case AnythingButWildcard:
		return !(v.IsString && wildcardMatch(p.s, v.Raw))
	default:
		return false
	}
}

// rangeContains reports whether enc lies within [lo, hi] honoring
// open/closed endpoints. All three slices must be the same length.
func rangeContains(enc, lo, hi []byte, openLo, openHi bool) bool {
	cmpLo := compareBytes(enc, lo)
	cmpHi := compareBytes(enc, hi)
	if openLo {
		if cmpLo <= 0 {
			return false
		}
	} else if cmpLo < 0 {
		return false
	}
	if openHi {
		if cmpHi >= 0 {
			return false
		}
	} else if cmpHi > 0 {
		return false
	}
	return true
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// wildcardMatch implements '*'-only glob matching over quoted-string
// values (so the leading/trailing '"' participate as ordinary bytes,
// consistent with spec.md §3's "stored value is the JSON-quoted form").
func wildcardMatch(pattern, s string) bool {
	return wildcardMatchBytes([]byte(pattern), []byte(s))
}

func wildcardMatchBytes(pattern, s []byte) bool {
	var pIdx, sIdx, starIdx, sMatch int
	starIdx = -1
	for sIdx < len(s) {
		if pIdx < len(pattern) && (pattern[pIdx] == s[sIdx]) {
			pIdx++
			sIdx++
		} else if pIdx < len(pattern) && pattern[pIdx] == '*' {
			starIdx = pIdx
			sMatch = sIdx
			pIdx++
		} else if starIdx != -1 {
			pIdx = starIdx + 1
			sMatch++
			sIdx = sMatch
		} else {
			return false
		}
	}
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}
