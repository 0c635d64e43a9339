package segment

import (
	"math"
	"unicode"
)

// DefaultCharsPerSecond is the narration speed assumed before calibration.
const DefaultCharsPerSecond = 5.0

// CalibrationMargin scales a measured rate down so estimates err on the long side.
const CalibrationMargin = 0.9

// CalibrationSample is the sentence synthesized to measure the narrator's speed.
const CalibrationSample = "这是一个用于测试语速的示例文本，包含了中文和English单词。"

// CountMode selects which runes count towards spoken length.
type CountMode int

const (
	// CountLoose counts every non-whitespace rune.
	CountLoose CountMode = iota
	// CountStrict counts only word runes: letters, digits, marks and '_'.
	CountStrict
)

func (m CountMode) String() string {
	if m == CountStrict {
		return "strict"
	}
	return "loose"
}

// ParseCountMode maps a config value to a CountMode. Unknown values are loose.
func ParseCountMode(s string) CountMode {
	if s == "strict" {
		return CountStrict
	}
	return CountLoose
}

func (m CountMode) counts(r rune) bool {
	if unicode.IsSpace(r) {
		return false
	}
	if m == CountStrict {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
	}
	return true
}

// SpeechRate is an immutable narration speed model. Calibration returns a new
// value instead of changing an existing one.
type SpeechRate struct {
	CharsPerSecond float64
	Mode           CountMode
}

// DefaultRate returns the uncalibrated loose-mode rate.
func DefaultRate() SpeechRate {
	return SpeechRate{CharsPerSecond: DefaultCharsPerSecond}
}

// PerSecond returns the effective rate, substituting the default for unusable values.
func (r SpeechRate) PerSecond() float64 {
	cps := r.CharsPerSecond
	if cps <= 0 || math.IsNaN(cps) || math.IsInf(cps, 0) {
		return DefaultCharsPerSecond
	}
	return cps
}

// Count returns the number of runes in text that count towards spoken length.
func (r SpeechRate) Count(text string) int {
	n := 0
	for _, c := range text {
		if r.Mode.counts(c) {
			n++
		}
	}
	return n
}

// EstimateDuration returns the spoken duration of text in seconds.
func (r SpeechRate) EstimateDuration(text string) float64 {
	return r.seconds(r.Count(text))
}

func (r SpeechRate) seconds(n int) float64 {
	return float64(n) / r.PerSecond()
}

// Calibrated derives a new rate from a sample and the measured duration of its
// synthesized audio. The receiver is returned unchanged when the measurement
// is unusable.
func (r SpeechRate) Calibrated(sample string, measured float64) SpeechRate {
	n := r.Count(sample)
	if n == 0 || measured <= 0 || math.IsNaN(measured) || math.IsInf(measured, 0) {
		return r
	}
	return SpeechRate{
		CharsPerSecond: float64(n) / measured * CalibrationMargin,
		Mode:           r.Mode,
	}
}
