package util

import "testing"

func TestFormatGain(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{10, "      10 (  20.0 dB)"},
		{-100, "    -100 (  40.0 dB)"},
		{0.5, "     0.5 (  -6.0 dB)"},
		{2e4, "2.00e+04 (  86.0 dB)"},
		{0, "       0 (  -inf dB)"},
	}
	for _, tt := range tests {
		if got := FormatGain(tt.in); got != tt.want {
			t.Fatalf("FormatGain(%g) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatFrequency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50, " 50.000 Hz "},
		{1.5e3, "  1.500 kHz"},
		{2e6, "  2.000 MHz"},
		{3.2e9, "  3.200 GHz"},
	}
	for _, tt := range tests {
		if got := FormatFrequency(tt.in); got != tt.want {
			t.Fatalf("FormatFrequency(%g) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMagnitudePhase(t *testing.T) {
	got := FormatMagnitudePhase("V(out)", 5e-5, -90)
	if want := "V(out)=5.00e-05< -90.0deg"; got != want {
		t.Fatalf("FormatMagnitudePhase = %q, want %q", got, want)
	}
}
