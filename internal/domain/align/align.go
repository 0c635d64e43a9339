// Package align reconciles a generated video clip's length with its narration.
package align

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultBuffer    = 0.3
	DefaultTolerance = 0.05
	DefaultMaxLoops  = 3
)

// ErrInvalidDuration is returned for non-positive or non-finite durations.
var ErrInvalidDuration = errors.New("align: invalid duration")

// Strategy is how a candidate clip is brought to the target length.
type Strategy string

const (
	// Trim cuts the candidate to the target, starting at offset 0.
	Trim Strategy = "trim"
	// LoopExtend repeats the candidate Loops times and trims to the target.
	LoopExtend Strategy = "loop"
	// TimeStretch slows the candidate's timeline uniformly to fill the target.
	TimeStretch Strategy = "stretch"
)

// Plan is the outcome of Align.
type Plan struct {
	Strategy         Strategy `json:"strategy"`
	TargetDuration   float64  `json:"target_duration"`
	ExpectedDuration float64  `json:"expected_duration"`
	// Loops is the number of times the candidate plays in total. Zero unless LoopExtend.
	Loops int `json:"loops,omitempty"`
	// Speed is candidate/target. The clip's timestamps scale by 1/Speed.
	Speed float64 `json:"speed,omitempty"`

	Candidate float64 `json:"candidate"`
	Reference float64 `json:"reference"`
	Buffer    float64 `json:"buffer"`
	Tolerance float64 `json:"tolerance"`
}

// PTSFactor is the multiplier for an ffmpeg setpts filter implementing a TimeStretch plan.
func (p Plan) PTSFactor() float64 {
	if p.Speed <= 0 {
		return 1
	}
	return 1 / p.Speed
}

// Aligner chooses alignment strategies. The zero value uses DefaultMaxLoops.
type Aligner struct {
	MaxLoops int
}

// Align picks a strategy for a candidate clip against a reference duration
// plus buffer. The decision is a single comparison, never iterated.
func (a Aligner) Align(candidate, reference, buffer, tolerance float64) (Plan, error) {
	if !positive(candidate) || !positive(reference) {
		return Plan{}, fmt.Errorf("%w: candidate=%v reference=%v", ErrInvalidDuration, candidate, reference)
	}
	if buffer < 0 || tolerance < 0 || math.IsNaN(buffer) || math.IsNaN(tolerance) ||
		math.IsInf(buffer, 0) || math.IsInf(tolerance, 0) {
		return Plan{}, fmt.Errorf("%w: buffer=%v tolerance=%v", ErrInvalidDuration, buffer, tolerance)
	}
	maxLoops := a.MaxLoops
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}

	target := round3(reference + buffer)
	p := Plan{
		TargetDuration:   target,
		ExpectedDuration: target,
		Candidate:        candidate,
		Reference:        reference,
		Buffer:           buffer,
		Tolerance:        tolerance,
	}
	if candidate >= target {
		p.Strategy = Trim
		return p, nil
	}
	loops := int(math.Ceil(target / candidate))
	if loops <= maxLoops {
		p.Strategy = LoopExtend
		p.Loops = loops
		return p, nil
	}
	p.Strategy = TimeStretch
	p.Speed = candidate / target
	return p, nil
}

// SyncReport compares a produced clip with its reference.
type SyncReport struct {
	Final     float64 `json:"final"`
	Reference float64 `json:"reference"`
	Error     float64 `json:"error"`
	OK        bool    `json:"ok"`
}

// CheckSync reports whether final is within tolerance of reference. Drift is
// information for the caller, not a failure.
func CheckSync(final, reference, tolerance float64) SyncReport {
	diff := math.Abs(final - reference)
	return SyncReport{
		Final:     final,
		Reference: reference,
		Error:     diff,
		OK:        diff <= tolerance+1e-9,
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

const (
	MinClipSeconds = 5
	MaxClipSeconds = 10
)

// ClipSeconds is the whole-second length to request from a video generator
// for narration of audio seconds: rounded up, kept within
// [MinClipSeconds, MaxClipSeconds], and longer than the audio when the cap
// allows. Clips that still fall short are extended by Align.
func ClipSeconds(audio float64) int {
	if !positive(audio) {
		return MinClipSeconds
	}
	if audio >= MaxClipSeconds {
		return MaxClipSeconds
	}
	s := int(math.Ceil(audio))
	if float64(s) <= audio {
		s++
	}
	return max(MinClipSeconds, min(s, MaxClipSeconds))
}
