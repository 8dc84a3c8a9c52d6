package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Mortgage Payable", "Mortgage Payable", 1},
		{"A/R Other", "AR-Other", 1},
		{"Cash & Equivalents", "cash and equivalents", 1},
		{"", "", 1},
		{"abc", "xyz", 0},
		{"Rent", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"Escrow - Property Tax", "Tax Escrow Balance"},
		{"Principal Balance", "Principal Bal."},
		{"Interest Paid", "Mortgage Interest"},
		{"Net Income", "Net Operating Income"},
		{"Replacement Reserve", "zzzz"},
	}
	for _, p := range pairs {
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0, p)
		assert.LessOrEqual(t, s, 1.0, p)
		assert.Equal(t, s, Similarity(p[1], p[0]), "similarity should be symmetric for %v", p)
	}

	assert.Greater(t, Similarity("Principal Balance", "Principal Bal."), 0.7)
	assert.Less(t, Similarity("Replacement Reserve", "zzzz"), 0.2)
}
