package catalog

import "testing"

func TestRomanNumerals(t *testing.T) {
	tests := []struct {
		n     int64
		lower bool
		want  string
	}{
		{1, false, "I"},
		{4, true, "iv"},
		{9, false, "IX"},
		{14, false, "XIV"},
		{40, false, "XL"},
		{1999, false, "MCMXCIX"},
		{2024, true, "mmxxiv"},
	}
	for _, tc := range tests {
		if got := romanNumerals(tc.n, tc.lower); got != tc.want {
			t.Errorf("romanNumerals(%d, %v) = %q, want %q", tc.n, tc.lower, got, tc.want)
		}
	}
}
