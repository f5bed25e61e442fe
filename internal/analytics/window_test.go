package analytics

import (
	"errors"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	const day = 24 * time.Hour

	tests := []struct {
		name     string
		spec     string
		expected time.Duration
	}{
		{name: "days", spec: "30d", expected: 30 * day},
		{name: "weeks", spec: "12w", expected: 84 * day},
		{name: "months approximate to 30 days", spec: "6m", expected: 180 * day},
		{name: "years approximate to 365 days", spec: "1y", expected: 365 * day},
		{name: "single day", spec: "1d", expected: day},
		{name: "uppercase unit", spec: "7D", expected: 7 * day},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindow(tt.spec)
			if err != nil {
				t.Fatalf("ParseWindow(%q) returned error: %v", tt.spec, err)
			}
			if got != tt.expected {
				t.Errorf("ParseWindow(%q) = %v, expected %v", tt.spec, got, tt.expected)
			}
		})
	}
}

func TestParseWindowInvalid(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{name: "empty", spec: ""},
		{name: "unit only", spec: "d"},
		{name: "no unit", spec: "30"},
		{name: "unknown unit", spec: "5x"},
		{name: "non numeric prefix", spec: "abcd"},
		{name: "fractional", spec: "1.5d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWindow(tt.spec)
			if err == nil {
				t.Fatalf("ParseWindow(%q) expected error, got nil", tt.spec)
			}
			if !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("ParseWindow(%q) error = %v, expected ErrInvalidWindow", tt.spec, err)
			}
		})
	}
}
