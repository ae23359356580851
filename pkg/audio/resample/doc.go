// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides sample rate conversion and downmixing for
// 16-bit PCM.
//
// Example:
//
//	r := resample.New(44100, 8000, 1)
//	mono := make([]int16, len(stereo)/2)
//	m := resample.Downmix(mono, stereo, 2)
//	n := r.Resample(mono[:m], out)
package resample
