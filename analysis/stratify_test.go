package analysis

import (
	"testing"

	"bitbucket.org/creachadair/stringset"
)

func TestNewStratumLinearChain(t *testing.T) {
	relations := stringset.New("edge", "reach")
	deps := []Dependency{
		{Head: "reach", Body: "edge"},
		{Head: "reach", Body: "reach"},
	}
	s := NewStratum(relations, deps)

	if s.GetLevel("edge") >= s.GetLevel("reach") {
		t.Errorf("edge level %d should be strictly below reach level %d", s.GetLevel("edge"), s.GetLevel("reach"))
	}
}

func TestNewStratumMutualRecursionSameLevel(t *testing.T) {
	relations := stringset.New("edge", "even", "odd")
	deps := []Dependency{
		{Head: "even", Body: "edge"},
		{Head: "even", Body: "odd"},
		{Head: "odd", Body: "edge"},
		{Head: "odd", Body: "even"},
	}
	s := NewStratum(relations, deps)

	if s.GetLevel("even") != s.GetLevel("odd") {
		t.Errorf("mutually recursive predicates should share a stratum: even=%d odd=%d", s.GetLevel("even"), s.GetLevel("odd"))
	}
	if s.GetLevel("edge") >= s.GetLevel("even") {
		t.Errorf("edge should be strictly below the mutually recursive stratum")
	}
}

func TestNewStratumTwoLevel(t *testing.T) {
	relations := stringset.New("edge", "a", "b")
	deps := []Dependency{
		{Head: "a", Body: "edge"},
		{Head: "b", Body: "a"},
	}
	s := NewStratum(relations, deps)

	if !(s.GetLevel("edge") < s.GetLevel("a") && s.GetLevel("a") < s.GetLevel("b")) {
		t.Errorf("expected strict ordering edge < a < b, got edge=%d a=%d b=%d",
			s.GetLevel("edge"), s.GetLevel("a"), s.GetLevel("b"))
	}
}

func TestGetLevelPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected GetLevel to panic for an unknown relation")
		}
	}()
	s := NewStratum(stringset.New("edge"), nil)
	s.GetLevel("nope")
}
