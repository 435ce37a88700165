package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/printcast/internal/stage"
)

// FormatNumber renders a reading without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatTemp renders a temperature: "24.5 °C".
func FormatTemp(v float64) string {
	return FormatNumber(v) + " °C"
}

// FormatTargetTemp renders the target suffix shown after a current
// temperature, or "" when heating is off.
func FormatTargetTemp(t float64) string {
	if t == 0 {
		return ""
	}
	return " / " + FormatTemp(t)
}

// FormatRemaining renders minutes left: "-45m" or "-1h15m".
func FormatRemaining(minutes int) string {
	if minutes >= 60 {
		return fmt.Sprintf("-%dh%dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("-%dm", minutes)
}

// FormatPercent renders print progress.
func FormatPercent(p int) string {
	return fmt.Sprintf("%d%% complete", p)
}

// FormatLayers renders layer progress.
func FormatLayers(n, total int) string {
	return fmt.Sprintf("Layers: %d/%d", n, total)
}

// FanPercent converts a fan speed reported as "0".."15" to a percentage in
// steps of ten. Unparseable values read as off.
func FanPercent(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return 0
	}
	return int(math.Round(float64(v)/1.5)) * 10
}

// FanOn reports whether a fan is spinning. Only a literal "0" reads as off;
// the icon follows the printer's string, not the parsed percentage.
func FanOn(raw string) bool {
	return strings.TrimSpace(raw) != "0"
}

// FormatFan renders a labelled fan speed: "Part: 60%".
func FormatFan(label, raw string) string {
	return fmt.Sprintf("%s: %d%%", label, FanPercent(raw))
}

// FormatModel renders the job name.
func FormatModel(name string) string {
	return "Model: " + name
}

// FormatStage renders the stage name.
func FormatStage(s stage.Stage) string {
	return "Stage: " + s.String()
}

// FormatWeight renders filament weight in grams.
func FormatWeight(w string) string {
	return w + "g"
}
