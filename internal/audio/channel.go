package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrEmptyBuffer      = errors.New("empty buffer")
	ErrMisalignedBuffer = errors.New("buffer length is not a whole number of frames")
)

// Channel is a two-slot output channel: one buffer sounding and at most one
// queued behind it. When the sounding buffer runs out mid-frame the queued
// one continues in the same frame, so consecutive beats play without a gap,
// and an Event is posted. Frames are emitted at real-time rate (20ms each).
type Channel struct {
	frameCh chan []int16
	events  chan Event

	mu      sync.Mutex
	gen     uint64
	playing *Buffer
	pos     int // interleaved sample index into playing
	queued  *Buffer
	paused  bool
	volume  float64
	applied float64
	frames  int64
}

// NewChannel creates a paused, empty output channel at full volume.
func NewChannel() *Channel {
	return &Channel{
		frameCh: make(chan []int16, 100),
		events:  make(chan Event, 64),
		paused:  true,
		volume:  1,
		applied: 1,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (c *Channel) Frames() <-chan []int16 {
	return c.frameCh
}

// Events returns buffer-finished notifications.
func (c *Channel) Events() <-chan Event {
	return c.events
}

func checkBuffer(b Buffer) error {
	if len(b.Samples) == 0 {
		return fmt.Errorf("beat %d: %w", b.Beat, ErrEmptyBuffer)
	}
	if len(b.Samples)%Channels != 0 {
		return fmt.Errorf("beat %d: %w", b.Beat, ErrMisalignedBuffer)
	}
	return nil
}

// Reset drops both slots, pauses the channel and starts a new generation.
// Events from earlier generations carry the old Gen value.
func (c *Channel) Reset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.playing, c.queued, c.pos = nil, nil, 0
	c.paused = true
	return c.gen
}

// Load replaces the sounding buffer; playback of b starts at its first sample.
func (c *Channel) Load(b Buffer) error {
	if err := checkBuffer(b); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing, c.pos = &b, 0
	return nil
}

// Queue replaces the queued buffer. With nothing sounding, b starts at once.
func (c *Channel) Queue(b Buffer) error {
	if err := checkBuffer(b); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing == nil {
		c.playing, c.pos = &b, 0
		return nil
	}
	c.queued = &b
	return nil
}

// Pause stops frame output; Unpause resumes at the exact sample it stopped on.
func (c *Channel) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *Channel) Unpause() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

func (c *Channel) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetVolume sets the output gain, clamped to [0, 1]. The change is ramped in
// over the next frame.
func (c *Channel) SetVolume(v float64) {
	c.mu.Lock()
	c.volume = ClampVolume(v)
	c.mu.Unlock()
}

func (c *Channel) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Playing returns the sounding beat (-1 if none) and the frame offset into it.
func (c *Channel) Playing() (beat int, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing == nil {
		return -1, 0
	}
	return c.playing.Beat, c.pos / Channels
}

// Elapsed returns the total audio time rendered since creation.
func (c *Channel) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.frames) * FrameDuration
}

// Render produces the next frame. It returns false while paused or empty.
func (c *Channel) Render() ([]int16, bool) {
	c.mu.Lock()
	if c.paused || c.playing == nil {
		c.mu.Unlock()
		return nil, false
	}

	frame := make([]int16, FrameSamples)
	var finished []Event
	n := 0
	for n < len(frame) && c.playing != nil {
		k := copy(frame[n:], c.playing.Samples[c.pos:])
		n += k
		c.pos += k
		if c.pos < len(c.playing.Samples) {
			break
		}
		ev := Event{Gen: c.gen, Finished: c.playing.Beat, Started: -1}
		c.playing, c.queued, c.pos = c.queued, nil, 0
		if c.playing != nil {
			ev.Started = c.playing.Beat
		}
		finished = append(finished, ev)
	}
	from, to := c.applied, c.volume
	c.applied = to
	c.frames++
	c.mu.Unlock()

	ApplyGain(frame, from, to)

	for _, ev := range finished {
		select {
		case c.events <- ev:
		default:
			log.Warnf("Output event dropped: beat %d finished", ev.Finished)
		}
	}
	return frame, true
}

// Run emits frames at real-time rate. Blocks until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) {
	defer close(c.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, ok := c.Render()
		if !ok {
			continue
		}

		select {
		case c.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}
