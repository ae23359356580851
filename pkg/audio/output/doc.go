// ABOUTME: Audio output package for playing the conference mix
// ABOUTME: Provides the Output interface and an oto implementation
// Package output provides audio playback.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(8000, 1)
//	err = out.Write(samples)
package output
