package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is one beat of interleaved PCM handed to the output channel.
// Beat tags the buffer so completion events can name what finished.
type Buffer struct {
	Beat    int
	Samples []int16
}

// Frames returns the buffer length in sample frames.
func (b Buffer) Frames() int {
	return len(b.Samples) / Channels
}

// Event reports that the sounding buffer ran out. Started is the beat that
// was promoted from the queued slot, or -1 if nothing was queued.
type Event struct {
	Gen      uint64
	Finished int
	Started  int
}
