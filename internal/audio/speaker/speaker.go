// Package speaker plays rendered frames on the local sound card.
package speaker

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/satindergrewal/loopatron/internal/audio"
)

// Speaker pulls PCM frames from a channel and feeds them to the audio device.
// When no frame is ready it plays silence instead of blocking the device.
type Speaker struct {
	player *oto.Player

	mu      sync.Mutex
	src     <-chan []int16
	pending []byte
	closed  bool
}

// New opens the default output device at sampleRate and starts playing
// frames from src.
func New(sampleRate int, src <-chan []int16) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4 * audio.FrameDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	s := &Speaker{src: src}
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// Read implements io.Reader for oto.Player.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fill(p, &s.pending, s.src, &s.closed)
}

func fill(p []byte, pending *[]byte, src <-chan []int16, closed *bool) (int, error) {
	n := 0
	for n < len(p) {
		if len(*pending) == 0 {
			if *closed {
				if n == 0 {
					return 0, io.EOF
				}
				return n, nil
			}
			select {
			case f, ok := <-src:
				if !ok {
					*closed = true
					continue
				}
				*pending = audio.SamplesToBytes(f)
			default:
				clear(p[n:])
				return len(p), nil
			}
		}
		k := copy(p[n:], *pending)
		*pending = (*pending)[k:]
		n += k
	}
	return n, nil
}

// Close stops playback.
func (s *Speaker) Close() error {
	return s.player.Close()
}
