package engine_test

import (
	"testing"

	"github.com/Suganthan96/NCP/internal/engine"
)

func TestToSmallestUnit(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 6, "1000000"},
		{"0.5", 18, "500000000000000000"},
		{"0.000001", 6, "1"},
		{"100", 0, "100"},
		{"2.50", 2, "250"},
		{"3.1400", 2, "314"}, // trailing zeros beyond decimals are fine
		{"0", 6, "0"},
	}
	for _, tc := range cases {
		got, err := engine.ToSmallestUnit(tc.amount, tc.decimals)
		if err != nil {
			t.Fatalf("ToSmallestUnit(%q, %d): %v", tc.amount, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ToSmallestUnit(%q, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestToSmallestUnitRejects(t *testing.T) {
	bad := []struct {
		amount   string
		decimals int
	}{
		{"", 6},
		{"-1", 6},
		{"1.2.3", 6},
		{"abc", 6},
		{"0.1234567", 6}, // more precision than the token carries
		{"1", -1},
	}
	for _, tc := range bad {
		if _, err := engine.ToSmallestUnit(tc.amount, tc.decimals); err == nil {
			t.Fatalf("ToSmallestUnit(%q, %d): expected error", tc.amount, tc.decimals)
		}
	}
}
