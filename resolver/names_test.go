package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSynthesizedName(t *testing.T) {
	cases := map[string]bool{
		"<Move>d__3":                 true,
		"Pawn+<Move>d__3":            true,
		"<Tick>c__AnonStorey0":       true,
		"<>c__DisplayClass":          true,
		"MoveStateMachine":           false,
		"List<int>":                  false,
		"d__3":                       false,
		"<Move":                      false,
		"RimWorld.Pawn/<Think>d__12": true,
	}

	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, IsSynthesizedName(name))
		})
	}
}

func TestSplitSynthesizedName(t *testing.T) {
	cases := map[string]struct {
		base, method string
		ok           bool
	}{
		"RimWorld.Pawn+<Move>d__3":   {"RimWorld.Pawn", "Move", true},
		"RimWorld.Pawn/<Think>d__12": {"RimWorld.Pawn", "Think", true},
		"Pawn<Move>d__3":             {"Pawn", "Move", true},
		"<Move>d__3":                 {"", "Move", true},
		"RimWorld.Pawn":              {"", "", false},
		"Pawn<Move":                  {"", "", false},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			base, method, ok := SplitSynthesizedName(name)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.base, base)
			assert.Equal(t, c.method, method)
		})
	}
}
