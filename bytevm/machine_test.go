package bytevm

import (
	"fmt"
	"net/netip"
	"strconv"
	"testing"

	"github.com/coregx/ruler/number"
	"github.com/coregx/ruler/pattern"
)

func quoted(s string) []byte { return []byte(strconv.Quote(s)) }

func mustParseIP(t *testing.T, s string) netip.Addr {
	t.Helper()
	addr, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func mustMatch(t *testing.T, m *Machine, in Input, wantTarget any) {
	t.Helper()
	got := m.Match(in)
	for _, g := range got {
		if g.Target == wantTarget {
			return
		}
	}
	t.Fatalf("Match(%q) = %v, want a match with target %v", in.Raw, got, wantTarget)
}

func mustNotMatch(t *testing.T, m *Machine, in Input, unwantedTarget any) {
	t.Helper()
	got := m.Match(in)
	for _, g := range got {
		if g.Target == unwantedTarget {
			t.Fatalf("Match(%q) unexpectedly matched target %v", in.Raw, unwantedTarget)
		}
	}
}

func TestExact(t *testing.T) {
	m := NewMachine()
	if _, err := m.Add(pattern.NewExact(`"foo"`), "t1"); err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("foo"), IsString: true}, "t1")
	mustNotMatch(t, m, Input{Raw: quoted("foobar"), IsString: true}, "t1")
	mustNotMatch(t, m, Input{Raw: quoted("fo"), IsString: true}, "t1")
}

func TestPrefixAndSuffix(t *testing.T) {
	m := NewMachine()
	if _, err := m.Add(pattern.NewPrefix(`"fo`), "pre"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(pattern.NewSuffix(`ar"`), "suf"); err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("foobar"), IsString: true}, "pre")
	mustMatch(t, m, Input{Raw: quoted("foobar"), IsString: true}, "suf")
	mustNotMatch(t, m, Input{Raw: quoted("barfoo"), IsString: true}, "pre")
	mustNotMatch(t, m, Input{Raw: quoted("barfoo"), IsString: true}, "suf")
}

func TestIgnoreCaseVariants(t *testing.T) {
	m := NewMachine()
	if _, err := m.Add(pattern.NewEqualsIgnoreCase(`"HELLO"`), "eq"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(pattern.NewPrefixIgnoreCase(`"HE`), "pre"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(pattern.NewSuffixIgnoreCase(`LO"`), "suf"); err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("hello"), IsString: true}, "eq")
	mustMatch(t, m, Input{Raw: quoted("hello"), IsString: true}, "pre")
	mustMatch(t, m, Input{Raw: quoted("hello"), IsString: true}, "suf")
	mustNotMatch(t, m, Input{Raw: quoted("goodbye"), IsString: true}, "eq")
}

func TestWildcard(t *testing.T) {
	m := NewMachine()
	p, err := pattern.NewWildcard(`"f*o"`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(p, "w"); err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("foo"), IsString: true}, "w")
	mustMatch(t, m, Input{Raw: quoted("fxxxo"), IsString: true}, "w")
	mustMatch(t, m, Input{Raw: quoted("fo"), IsString: true}, "w")
	mustNotMatch(t, m, Input{Raw: quoted("bar"), IsString: true}, "w")
}

func TestTrailingWildcard(t *testing.T) {
	m := NewMachine()
	p, err := pattern.NewWildcard(`"abc*"`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(p, "w"); err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("abc"), IsString: true}, "w")
	mustMatch(t, m, Input{Raw: quoted("abcdef"), IsString: true}, "w")
	mustNotMatch(t, m, Input{Raw: quoted("xabc"), IsString: true}, "w")
}

func TestNumericEQAndRange(t *testing.T) {
	m := NewMachine()
	eq, err := number.Encode(5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(pattern.NewNumericEQ(eq), "eq"); err != nil {
		t.Fatal(err)
	}
	lo, _ := number.Encode(0)
	hi, _ := number.Encode(10)
	rangePattern, err := pattern.NewNumericRange(lo, hi, true, false) // (0, 10]
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(rangePattern, "range"); err != nil {
		t.Fatal(err)
	}

	enc5, _ := number.Encode(5)
	mustMatch(t, m, Input{Raw: enc5.Bytes()}, "eq")
	mustMatch(t, m, Input{Raw: enc5.Bytes()}, "range")

	enc0, _ := number.Encode(0)
	mustNotMatch(t, m, Input{Raw: enc0.Bytes()}, "range") // open lower bound excludes 0

	enc10, _ := number.Encode(10)
	mustMatch(t, m, Input{Raw: enc10.Bytes()}, "range") // closed upper bound includes 10

	enc11, _ := number.Encode(11)
	mustNotMatch(t, m, Input{Raw: enc11.Bytes()}, "range")
}

func TestCIDR(t *testing.T) {
	m := NewMachine()
	lo, hi, err := number.EncodeCIDR("10.0.0.0/8")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(pattern.NewCIDRRange(lo, hi), "cidr"); err != nil {
		t.Fatal(err)
	}

	inAddr, err := number.EncodeIP(mustParseIP(t, "10.1.2.3"))
	if err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: inAddr.Bytes()}, "cidr")

	outAddr, err := number.EncodeIP(mustParseIP(t, "11.0.0.1"))
	if err != nil {
		t.Fatal(err)
	}
	mustNotMatch(t, m, Input{Raw: outAddr.Bytes()}, "cidr")
}

func TestAnythingButSmallAndLargeDenylist(t *testing.T) {
	m := NewMachine()
	small, err := pattern.NewAnythingButStrings([]string{`"a"`, `"b"`})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(small, "small"); err != nil {
		t.Fatal(err)
	}

	var large []string
	for i := 0; i < 50; i++ {
		large = append(large, fmt.Sprintf(`"v%d"`, i))
	}
	bigPattern, err := pattern.NewAnythingButStrings(large)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(bigPattern, "big"); err != nil {
		t.Fatal(err)
	}

	mustMatch(t, m, Input{Raw: quoted("c"), IsString: true}, "small")
	mustNotMatch(t, m, Input{Raw: quoted("a"), IsString: true}, "small")

	mustMatch(t, m, Input{Raw: quoted("other"), IsString: true}, "big")
	mustNotMatch(t, m, Input{Raw: quoted("v17"), IsString: true}, "big")
}

func TestAnythingButPrefix(t *testing.T) {
	m := NewMachine()
	if _, err := m.Add(pattern.NewAnythingButPrefix(`"ab`), "t"); err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("xyz"), IsString: true}, "t")
	mustNotMatch(t, m, Input{Raw: quoted("abcdef"), IsString: true}, "t")
}

func TestExistsAndRemove(t *testing.T) {
	m := NewMachine()
	match, err := m.Add(pattern.NewExists(), "e")
	if err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("anything"), IsString: true}, "e")
	m.Remove(match)
	mustNotMatch(t, m, Input{Raw: quoted("anything"), IsString: true}, "e")
}

func TestAbsentUnsupported(t *testing.T) {
	m := NewMachine()
	if _, err := m.Add(pattern.NewAbsent(), "a"); err == nil {
		t.Fatal("expected UnsupportedPatternError for ABSENT")
	}
}

func TestSharedPrefixStructuralSharing(t *testing.T) {
	m := NewMachine()
	if _, err := m.Add(pattern.NewExact(`"app"`), "app"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(pattern.NewExact(`"apple"`), "apple"); err != nil {
		t.Fatal(err)
	}
	mustMatch(t, m, Input{Raw: quoted("app"), IsString: true}, "app")
	mustMatch(t, m, Input{Raw: quoted("apple"), IsString: true}, "apple")
	mustNotMatch(t, m, Input{Raw: quoted("app"), IsString: true}, "apple")
	mustNotMatch(t, m, Input{Raw: quoted("apple"), IsString: true}, "app")
}
