package workorder

import "testing"

func TestPow2(t *testing.T) {
	tests := []struct {
		n    int
		want int64
	}{
		{0, 1},
		{1, 2},
		{2, 4},
		{3, 8},
		{5, 32},
		{10, 1024},
	}

	for _, tt := range tests {
		got := pow2(tt.n)
		if got != tt.want {
			t.Errorf("pow2(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
