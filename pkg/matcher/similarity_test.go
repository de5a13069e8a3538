package matcher

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "harbour fuel", "harbour fuel", 1, 1},
		{"case and spacing", "Harbour  Fuel", "harbour fuel", 1, 1},
		{"close variants", "harbour fuel no. 2", "harbour fuel no. 3", 0.9, 1},
		{"unrelated", "harbour fuel", "island provisioning", 0, 0.5},
		{"empty side", "", "harbour fuel", 0, 0},
		{"both empty", "", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity(%q, %q) = %v, expected in [%v, %v]",
					tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestDateProximity(t *testing.T) {
	tests := []struct {
		name      string
		gap       int
		tolerance int
		want      float64
	}{
		{"zero gap", 0, 7, 1},
		{"mid window", 4, 7, 0.5},
		{"window edge", 7, 7, 0.125},
		{"outside window", 8, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dateProximity(tt.gap, tt.tolerance)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("dateProximity(%d, %d) = %v, expected %v",
					tt.gap, tt.tolerance, got, tt.want)
			}
		})
	}
}

func TestDateGapDays(t *testing.T) {
	a, b := day("2023-05-10"), day("2023-05-04")
	if got := dateGapDays(a, b); got != 6 {
		t.Errorf("dateGapDays = %d, expected 6", got)
	}
	if got := dateGapDays(b, a); got != 6 {
		t.Errorf("dateGapDays reversed = %d, expected 6", got)
	}
}
