package quorum

import "testing"

func TestThresholds(t *testing.T) {
	tests := []struct {
		name          string
		n, f          int
		wantSize      int
		wantSuper     int
		wantTolerates bool
	}{
		{"N=4, F=1", 4, 1, 3, 2, true},
		{"N=5, F=2", 5, 2, 3, 3, true},
		{"N=7, F=3", 7, 3, 4, 4, true},
		{"N=4, F=2, too many faults", 4, 2, 2, 3, false},
		{"N=1, F=0", 1, 0, 1, 1, true},
		{"negative F", 3, -1, 4, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Size(tt.n, tt.f); got != tt.wantSize {
				t.Errorf("Size(%d, %d) = %d, want %d", tt.n, tt.f, got, tt.wantSize)
			}
			if got := Supermajority(tt.f); got != tt.wantSuper {
				t.Errorf("Supermajority(%d) = %d, want %d", tt.f, got, tt.wantSuper)
			}
			if got := Tolerates(tt.n, tt.f); got != tt.wantTolerates {
				t.Errorf("Tolerates(%d, %d) = %v, want %v", tt.n, tt.f, got, tt.wantTolerates)
			}
		})
	}
}

func TestIsMajority(t *testing.T) {
	tests := []struct {
		count, n int
		want     bool
	}{
		{2, 4, false},
		{3, 4, true},
		{2, 5, false},
		{3, 5, true},
		{0, 1, false},
		{1, 1, true},
	}

	for _, tt := range tests {
		if got := IsMajority(tt.count, tt.n); got != tt.want {
			t.Errorf("IsMajority(%d, %d) = %v, want %v", tt.count, tt.n, got, tt.want)
		}
	}
}
