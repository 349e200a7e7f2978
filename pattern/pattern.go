// Package pattern implements Patterns, the closed sum type of value-match
// predicates spec.md §3 describes (EXACT, PREFIX, SUFFIX, the
// case-insensitive and "anything-but" variants, WILDCARD, the numeric
// kinds, and EXISTS/ABSENT), plus the decoder from the rule-JSON match
// specification grammar (spec.md §6) into []Pattern.
//
// The sum type follows the teacher's closed-tag-union convention
// (nfa.StateKind / nfa.State in the teacher's nfa package): one struct
// carries every variant's payload, a Kind discriminates, and accessor
// methods return zero values for the wrong kind rather than panicking.
package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coregx/ruler/number"
)

// Kind discriminates the Pattern variants.
type Kind uint8

const (
	Exact Kind = iota
	Prefix
	Suffix
	EqualsIgnoreCase
	PrefixIgnoreCase
	SuffixIgnoreCase
	Wildcard
	NumericEQ
	NumericRange
	Exists
	Absent
	AnythingBut
	AnythingButIgnoreCase
	AnythingButPrefix
	AnythingButSuffix
	AnythingButWildcard
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "EXACT"
	case Prefix:
		return "PREFIX"
	case Suffix:
		return "SUFFIX"
	case EqualsIgnoreCase:
		return "EQUALS_IGNORE_CASE"
	case PrefixIgnoreCase:
		return "PREFIX_EQUALS_IGNORE_CASE"
	case SuffixIgnoreCase:
		return "SUFFIX_EQUALS_IGNORE_CASE"
	case Wildcard:
		return "WILDCARD"
	case NumericEQ:
		return "NUMERIC_EQ"
	case NumericRange:
		return "NUMERIC_RANGE"
	case Exists:
		return "EXISTS"
	case Absent:
		return "ABSENT"
	case AnythingBut:
		return "ANYTHING_BUT"
	case AnythingButIgnoreCase:
		return "ANYTHING_BUT_IGNORE_CASE"
	case AnythingButPrefix:
		return "ANYTHING_BUT_PREFIX"
	case AnythingButSuffix:
		return "ANYTHING_BUT_SUFFIX"
	case AnythingButWildcard:
		return "ANYTHING_BUT_WILDCARD"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Pattern is a single value-match predicate for one field.
//
// String-valued variants store the value in JSON-quoted form (leading and
// trailing '"' included, per spec.md §3), so that string and non-string
// values remain distinguishable by prefix/suffix comparison. Wildcard
// payloads are stored in the same quoted form, with each '*'
// metacharacter left as a bare byte (strconv.Quote never escapes it).
type Pattern struct {
	kind Kind

	// s holds the string payload for EXACT/PREFIX/SUFFIX/*_IGNORE_CASE and
	// the raw (containing '*') text for WILDCARD / ANYTHING_BUT_WILDCARD.
	s string

	// numEQ holds the encoded operand for NUMERIC_EQ.
	numEQ number.ComparableNumber

	// Range bounds for NUMERIC_RANGE. isCIDR distinguishes an IP range
	// (bounds encoded via number.CIDRBound, stored as raw bytes in
	// rangeLo/rangeHi) from a plain numeric range (number.ComparableNumber
	// bytes, number.Len wide, stored the same way).
	rangeLo, rangeHi         []byte
	rangeOpenLo, rangeOpenHi bool
	isCIDR                   bool

	// Anything-but payload: a denylist of either quoted-string values or
	// encoded numeric values (never both).
	stringSet    []string
	numberSet    []number.ComparableNumber
	isNumericSet bool
}

// Kind returns the pattern's variant tag.
func (p Pattern) Kind() Kind { return p.kind }

// StringValue returns the string payload and true for the
// EXACT/PREFIX/SUFFIX/*_IGNORE_CASE/WILDCARD/ANYTHING_BUT_* single-string
// kinds; ("", false) otherwise.
func (p Pattern) StringValue() (string, bool) {
	switch p.kind {
	case Exact, Prefix, Suffix, EqualsIgnoreCase, PrefixIgnoreCase, SuffixIgnoreCase, Wildcard, AnythingButPrefix, AnythingButSuffix, AnythingButWildcard:
		return p.s, true
	default:
		return "", false
	}
}

// NumericEQValue returns the operand for NumericEQ; zero value and false
// otherwise.
func (p Pattern) NumericEQValue() (number.ComparableNumber, bool) {
	if p.kind != NumericEQ {
		return number.ComparableNumber{}, false
	}
	return p.numEQ, true
}

// Range returns the bounds for NumericRange; ok is false for any other
// kind. The returned byte slices are either number.Len or number.CIDRLen
// wide depending on isCIDR.
func (p Pattern) Range() (lo, hi []byte, openLo, openHi, isCIDR bool, ok bool) {
	if p.kind != NumericRange {
		return nil, nil, false, false, false, false
	}
	return p.rangeLo, p.rangeHi, p.rangeOpenLo, p.rangeOpenHi, p.isCIDR, true
}

// DenyList returns the anything-but payload; ok is false for any other
// kind.
func (p Pattern) DenyList() (strings []string, numbers []number.ComparableNumber, isNumeric bool, ok bool) {
	switch p.kind {
	case AnythingBut, AnythingButIgnoreCase:
		return p.stringSet, p.numberSet, p.isNumericSet, true
	default:
		return nil, nil, false, false
	}
}

// NewExact and friends construct Patterns directly (used by tests and by
// the rule-JSON decoder). s must already be in JSON-quoted form for the
// string kinds.

func NewExact(quoted string) Pattern     { return Pattern{kind: Exact, s: quoted} }
func NewPrefix(quoted string) Pattern    { return Pattern{kind: Prefix, s: quoted} }
func NewSuffix(quoted string) Pattern    { return Pattern{kind: Suffix, s: quoted} }
func NewEqualsIgnoreCase(quoted string) Pattern {
	return Pattern{kind: EqualsIgnoreCase, s: quoted}
}
func NewPrefixIgnoreCase(quoted string) Pattern {
	return Pattern{kind: PrefixIgnoreCase, s: quoted}
}
func NewSuffixIgnoreCase(quoted string) Pattern {
	return Pattern{kind: SuffixIgnoreCase, s: quoted}
}
func NewExists() Pattern { return Pattern{kind: Exists} }
func NewAbsent() Pattern { return Pattern{kind: Absent} }

// NewWildcard validates that s (JSON-quoted, containing literal '*' segments)
// has no two adjacent '*' characters, per spec.md §3/§4.3.3.
func NewWildcard(s string) (Pattern, error) {
	if err := validateWildcard(s); err != nil {
		return Pattern{}, err
	}
	return Pattern{kind: Wildcard, s: s}, nil
}

func NewAnythingButWildcard(s string) (Pattern, error) {
	if err := validateWildcard(s); err != nil {
		return Pattern{}, err
	}
	return Pattern{kind: AnythingButWildcard, s: s}, nil
}

func validateWildcard(s string) error {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '*' && s[i+1] == '*' {
			return &InvalidPatternError{Kind: Wildcard, Reason: "adjacent '*' is not allowed"}
		}
	}
	return nil
}

func NewAnythingButPrefix(quoted string) Pattern {
	return Pattern{kind: AnythingButPrefix, s: quoted}
}
func NewAnythingButSuffix(quoted string) Pattern {
	return Pattern{kind: AnythingButSuffix, s: quoted}
}

// NewAnythingButStrings builds an ANYTHING_BUT pattern over a denylist of
// quoted string values. The list must be non-empty.
func NewAnythingButStrings(quoted []string) (Pattern, error) {
	if len(quoted) == 0 {
		return Pattern{}, &InvalidPatternError{Kind: AnythingBut, Reason: "anything-but denylist must not be empty"}
	}
	set := append([]string(nil), quoted...)
	sort.Strings(set)
	return Pattern{kind: AnythingBut, stringSet: set}, nil
}

// NewAnythingButIgnoreCaseStrings builds an ANYTHING_BUT_IGNORE_CASE
// pattern; the denylist entries are folded to upper-case for comparison,
// matching the case-folding convention used elsewhere in this package.
func NewAnythingButIgnoreCaseStrings(quoted []string) (Pattern, error) {
	if len(quoted) == 0 {
		return Pattern{}, &InvalidPatternError{Kind: AnythingButIgnoreCase, Reason: "anything-but denylist must not be empty"}
	}
	set := make([]string, len(quoted))
	for i, s := range quoted {
		set[i] = strings.ToUpper(s)
	}
	sort.Strings(set)
	return Pattern{kind: AnythingButIgnoreCase, stringSet: set}, nil
}

// NewAnythingButNumbers builds an ANYTHING_BUT pattern over a denylist of
// numeric values.
func NewAnythingButNumbers(values []number.ComparableNumber) (Pattern, error) {
	if len(values) == 0 {
		return Pattern{}, &InvalidPatternError{Kind: AnythingBut, Reason: "anything-but denylist must not be empty"}
	}
	set := append([]number.ComparableNumber(nil), values...)
	sort.Slice(set, func(i, j int) bool { return set[i].Compare(set[j]) < 0 })
	return Pattern{kind: AnythingBut, numberSet: set, isNumericSet: true}, nil
}

// NewNumericEQ builds a NUMERIC_EQ pattern from an already-encoded value.
func NewNumericEQ(v number.ComparableNumber) Pattern {
	return Pattern{kind: NumericEQ, numEQ: v}
}

// NewNumericRange builds a NUMERIC_RANGE pattern from encoded bounds.
// Bottom must be <= top.
func NewNumericRange(lo, hi number.ComparableNumber, openLo, openHi bool) (Pattern, error) {
	if lo.Compare(hi) > 0 {
		return Pattern{}, &InvalidPatternError{Kind: NumericRange, Reason: "range bottom must not exceed top"}
	}
	return Pattern{
		kind:        NumericRange,
		rangeLo:     append([]byte(nil), lo.Bytes()...),
		rangeHi:     append([]byte(nil), hi.Bytes()...),
		rangeOpenLo: openLo,
		rangeOpenHi: openHi,
	}, nil
}

// NewCIDRRange builds a NUMERIC_RANGE pattern (isCIDR=true) from encoded
// CIDR bounds (see number.EncodeCIDR).
func NewCIDRRange(lo, hi number.CIDRBound) Pattern {
	return Pattern{
		kind:    NumericRange,
		rangeLo: append([]byte(nil), lo.Bytes()...),
		rangeHi: append([]byte(nil), hi.Bytes()...),
		isCIDR:  true,
	}
}

// Key returns a canonical, comparable string encoding of the pattern
// suitable for use as a map key. Patterns is a closed sum type with slice
// fields, so it is not itself comparable; NameState (package namefsm)
// keys its terminal/non-terminal sub-rule registries by this string
// instead of by Pattern directly.
func (p Pattern) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", p.kind)
	switch p.kind {
	case Exact, Prefix, Suffix, EqualsIgnoreCase, PrefixIgnoreCase, SuffixIgnoreCase, Wildcard, AnythingButPrefix, AnythingButSuffix, AnythingButWildcard:
		b.WriteString(p.s)
	case NumericEQ:
		b.Write(p.numEQ.Bytes())
	case NumericRange:
		b.Write(p.rangeLo)
		b.WriteByte('-')
		b.Write(p.rangeHi)
		if p.rangeOpenLo {
			b.WriteByte('(')
		}
		if p.rangeOpenHi {
			b.WriteByte(')')
		}
		if p.isCIDR {
			b.WriteByte('c')
		}
	case AnythingBut, AnythingButIgnoreCase:
		if p.isNumericSet {
			for _, n := range p.numberSet {
				b.Write(n.Bytes())
				b.WriteByte(',')
			}
		} else {
			for _, s := range p.stringSet {
				b.WriteString(s)
				b.WriteByte(',')
			}
		}
	}
	return b.String()
}

// InvalidPatternError reports a malformed pattern definition, surfaced to
// callers as the root package's InvalidRule error kind.
type InvalidPatternError struct {
	Kind   Kind
	Reason string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("pattern: invalid %s pattern: %s", e.Kind, e.Reason)
}
