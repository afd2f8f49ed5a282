package sim

import "testing"

func TestConvergenceRound(t *testing.T) {
	tests := []struct {
		name        string
		separations []int64
		tolerance   int64
		want        int
	}{
		{"empty", nil, 200, 0},
		{"settles late", []int64{100, 300, 500, 510, 505}, 20, 3},
		{"always within", []int64{500, 520, 480, 500}, 50, 1},
		{"last round only", []int64{0, 1_000, 0, 2_000}, 10, 4},
		{"excursion resets", []int64{500, 500, 900, 500, 500}, 100, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convergenceRound(tt.separations, tt.tolerance); got != tt.want {
				t.Errorf("convergenceRound() = %d, want %d", got, tt.want)
			}
		})
	}
}
