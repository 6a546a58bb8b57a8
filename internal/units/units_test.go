package units

import (
	"errors"
	"math"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		base     uint64
		decimals int32
		want     string
	}{
		{1_500_000, 6, "1.500000"},
		{50, 6, "0.000050"},
		{0, 2, "0.00"},
		{12345, 0, "12345"},
		{math.MaxUint64, 0, "18446744073709551615"},
	}
	for _, tt := range tests {
		if got := Format(tt.base, tt.decimals); got != tt.want {
			t.Errorf("Format(%d, %d) = %q, want %q", tt.base, tt.decimals, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("1.5", 6)
	if err != nil || got != 1_500_000 {
		t.Fatalf("Parse(1.5) = %d, %v", got, err)
	}
	if got, err := Parse("18446744073709551615", 0); err != nil || got != math.MaxUint64 {
		t.Fatalf("Parse(max) = %d, %v", got, err)
	}
	if _, err := Parse("0.0000001", 6); !errors.Is(err, ErrPrecision) {
		t.Fatalf("too precise: got %v", err)
	}
	for _, bad := range []string{"-1", "abc", "18446744073709551616"} {
		if _, err := Parse(bad, 0); err == nil {
			t.Errorf("Parse(%q) accepted", bad)
		}
	}
}
