// ABOUTME: Linear resampler and channel downmix for voice input
// ABOUTME: Converts arbitrary PCM into the bridge's mono rate
package resample

import "math"

// Resampler performs linear interpolation between sample rates. It keeps
// the last input frame between calls so chunk boundaries are seamless.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position is the next output's offset in input frames relative to the
	// start of the upcoming chunk; -1 addresses lastFrame.
	position  float64
	lastFrame []int16
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int16, channels),
	}
}

// Resample converts interleaved input into interleaved output and returns
// the number of output samples written. Output beyond what fits is lost,
// so size it with OutputSamplesNeeded plus one frame.
func (r *Resampler) Resample(input, output []int16) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	outputFrames := len(output) / r.channels

	at := func(frame, ch int) float64 {
		if frame < 0 {
			return float64(r.lastFrame[ch])
		}
		return float64(input[frame*r.channels+ch])
	}

	outIdx := 0
	for outIdx < outputFrames {
		idx := int(math.Floor(r.position))
		if idx+1 >= inputFrames {
			break
		}
		frac := r.position - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			v := at(idx, ch)*(1.0-frac) + at(idx+1, ch)*frac
			output[outIdx*r.channels+ch] = int16(math.Round(v))
		}
		outIdx++
		r.position += r.ratio
	}

	r.position -= float64(inputFrames)
	if r.position < -1 {
		// Output was full; skip what could not be produced.
		r.position = -1
	}
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])

	return outIdx * r.channels
}

// Reset forgets the carried frame and fractional position.
func (r *Resampler) Reset() {
	r.position = 0
	clear(r.lastFrame)
}

// OutputSamplesNeeded estimates how many output samples inputSamples produce.
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(math.Ceil(float64(inputFrames) / r.ratio))
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(math.Ceil(float64(outputFrames) * r.ratio))
	return inputFrames * r.channels
}

// Downmix averages interleaved frames of the given channel count into
// dst and returns the number of mono samples written.
func Downmix(dst, src []int16, channels int) int {
	if channels <= 1 {
		return copy(dst, src)
	}
	frames := min(len(src)/channels, len(dst))
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(src[i*channels+ch])
		}
		dst[i] = int16(sum / int32(channels))
	}
	return frames
}
