package fair

import (
	"math"
	"testing"
)

const testSalt = "0000000000000000000301e2801a9a9598bfb114e574a91a887f2132f33047e6"

func TestCalculateKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		seed string
		want float64
	}{
		{
			name: "mid multiplier",
			seed: "77b271fe12fca03c618f63dfb79d4105726ba9d4a25bb3f1964e435ccf9cb209",
			want: 2.72,
		},
		{
			name: "low multiplier",
			seed: "86728f5fc3bd64d8f2e05f904505bd3dae4d0d0a9956a100fabbf36cd1d14c77",
			want: 1.10,
		},
		{
			name: "another seed",
			seed: "6b5f7d0a2f3a5b0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f8a7b6c",
			want: 2.65,
		},
		{
			name: "short seed still valid hex",
			seed: "deadbeef",
			want: 2.49,
		},
		{
			name: "instant crash clamps to minimum",
			seed: "00",
			want: 1.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.seed, testSalt)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Calculate(%s) = %v, want %v", tt.seed, got, tt.want)
			}
		})
	}
}

func TestCalculateMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		seed string
		salt string
	}{
		{"empty seed", "", testSalt},
		{"empty salt", "deadbeef", ""},
		{"non-hex seed", "zzzz", testSalt},
		{"odd-length seed", "abc", testSalt},
		{"non-hex salt", "deadbeef", "nothex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Calculate(tt.seed, tt.salt); got != MinMultiplier {
				t.Errorf("Calculate(%q, %q) = %v, want %v", tt.seed, tt.salt, got, MinMultiplier)
			}
		})
	}
}

func TestCalculateDeterministic(t *testing.T) {
	seed := "77b271fe12fca03c618f63dfb79d4105726ba9d4a25bb3f1964e435ccf9cb209"
	first := Calculate(seed, testSalt)
	for i := 0; i < 100; i++ {
		if got := Calculate(seed, testSalt); got != first {
			t.Fatalf("call %d returned %v, first call returned %v", i, got, first)
		}
	}
}

func TestCalculateLowerBound(t *testing.T) {
	// Sweep a batch of synthetic seeds; every result must be >= 1.00 and
	// representable as a two-decimal multiplier.
	seeds := []string{
		"00", "01", "ff", "0000", "ffff",
		"0123456789abcdef", "fedcba9876543210",
		"a1b2c3d4e5f60718293a4b5c6d7e8f90",
	}
	for _, seed := range seeds {
		got := Calculate(seed, testSalt)
		if got < MinMultiplier {
			t.Errorf("Calculate(%s) = %v, below minimum", seed, got)
		}
		cents := got * 100
		if math.Abs(cents-math.Round(cents)) > 1e-6 {
			t.Errorf("Calculate(%s) = %v, not a two-decimal multiplier", seed, got)
		}
	}
}

func TestMatches(t *testing.T) {
	if !Matches(2.72, 2.72) {
		t.Error("identical outcomes should match")
	}
	if !Matches(2.72, 2.72+1e-12) {
		t.Error("outcomes within tolerance should match")
	}
	if Matches(2.72, 2.73) {
		t.Error("divergent outcomes should not match")
	}
}
