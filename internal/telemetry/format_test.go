package telemetry

import (
	"testing"

	"github.com/nerrad567/printcast/internal/stage"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "-0m"},
		{45, "-45m"},
		{59, "-59m"},
		{60, "-1h0m"},
		{75, "-1h15m"},
		{605, "-10h5m"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.minutes); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestFormatTemps(t *testing.T) {
	if got := FormatTemp(24.5); got != "24.5 °C" {
		t.Errorf("FormatTemp(24.5) = %q", got)
	}
	if got := FormatTemp(220); got != "220 °C" {
		t.Errorf("FormatTemp(220) = %q", got)
	}
	if got := FormatTargetTemp(0); got != "" {
		t.Errorf("FormatTargetTemp(0) = %q, want empty", got)
	}
	if got := FormatTargetTemp(60); got != " / 60 °C" {
		t.Errorf("FormatTargetTemp(60) = %q", got)
	}
}

func TestFanPercent(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		on   bool
	}{
		{"0", 0, false},
		{" 0 ", 0, false},
		{"", 0, true},
		{"junk", 0, true},
		{"-1", 0, true},
		{"15", 100, true},
		{"9", 60, true},
		{"1", 10, true},
	}
	for _, tt := range tests {
		if got := FanPercent(tt.raw); got != tt.want {
			t.Errorf("FanPercent(%q) = %d, want %d", tt.raw, got, tt.want)
		}
		if got := FanOn(tt.raw); got != tt.on {
			t.Errorf("FanOn(%q) = %v, want %v", tt.raw, got, tt.on)
		}
	}
	if got := FormatFan("Part", "9"); got != "Part: 60%" {
		t.Errorf("FormatFan() = %q", got)
	}
}

func TestFormatLabels(t *testing.T) {
	checks := []struct {
		got, want string
	}{
		{FormatPercent(42), "42% complete"},
		{FormatLayers(12, 200), "Layers: 12/200"},
		{FormatModel("benchy"), "Model: benchy"},
		{FormatStage(stage.Printing), "Stage: Printing"},
		{FormatWeight("12.34"), "12.34g"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}
