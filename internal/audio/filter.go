// Package audio implements the strike detector of spec.md §4.4: a
// 4th-order Butterworth high-pass filter followed by RMS/refractory
// transient detection, feeding a bounded drop-oldest event queue.
package audio

import "math"

// butterworthQs are the per-section Q factors for a 4th-order
// Butterworth filter realized as a cascade of two 2nd-order sections
// (the standard table value cos(pi/8) and cos(3pi/8) pole pairs). No
// DSP library in the retrieval pack builds IIR filter coefficients, so
// this cascade is hand-rolled from the RBJ Audio EQ Cookbook's biquad
// high-pass design equations.
var butterworthQs = [2]float64{0.5411961, 1.3065630}

// biquad is a single second-order IIR section in transposed direct
// form II, which needs only two state registers regardless of the
// number of channels processed through it.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func newHighpassBiquad(cutoffHz, sampleRate, q float64) biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	a0 := 1 + alpha
	bq := biquad{
		b0: ((1 + cosW0) / 2) / a0,
		b1: (-(1 + cosW0)) / a0,
		b2: ((1 + cosW0) / 2) / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha) / a0,
	}
	return bq
}

func (bq *biquad) process(x float64) float64 {
	y := bq.b0*x + bq.z1
	bq.z1 = bq.b1*x - bq.a1*y + bq.z2
	bq.z2 = bq.b2*x - bq.a2*y
	return y
}

// Highpass is the cascaded two-section Butterworth high-pass filter
// described in spec.md §4.4: unit-amplitude passband above cutoffHz,
// at least 60 dB of stopband attenuation below it.
type Highpass struct {
	sections [2]biquad
}

// NewHighpass builds a filter for the given cutoff and sample rate.
func NewHighpass(cutoffHz, sampleRate float64) *Highpass {
	h := &Highpass{}
	for i, q := range butterworthQs {
		h.sections[i] = newHighpassBiquad(cutoffHz, sampleRate, q)
	}
	return h
}

// Apply filters src into dst in place-compatible fashion (dst and src
// may be the same slice); both must have equal length.
func (h *Highpass) Apply(dst, src []float32) {
	for i, x := range src {
		y := float64(x)
		for s := range h.sections {
			y = h.sections[s].process(y)
		}
		dst[i] = float32(y)
	}
}
