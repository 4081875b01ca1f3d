// Package stream fans the rendered remix out to its listeners: the local
// speaker, HTTP MP3 clients and WebRTC peers.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Kind labels what a listener feeds.
type Kind string

const (
	KindSpeaker Kind = "speaker"
	KindHTTP    Kind = "http"
	KindWebRTC  Kind = "webrtc"
)

// Broadcaster fans out PCM frames from the output channel to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	ended     bool
}

// Listener receives PCM frames from the broadcaster. C is closed when the
// source ends.
type Listener struct {
	Kind Kind
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}

	dropped atomic.Int64
}

// Done is closed once the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Dropped returns how many frames the listener missed by falling behind.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener of the given kind.
func (b *Broadcaster) Subscribe(kind Kind) *Listener {
	l := &Listener{
		Kind: kind,
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	if b.ended {
		close(l.C)
	} else {
		b.listeners[l] = struct{}{}
	}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Counts returns the number of active listeners per kind.
func (b *Broadcaster) Counts() map[Kind]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Kind]int)
	for l := range b.listeners {
		out[l.Kind]++
	}
	return out
}

// Run reads frames from source and fans out to all listeners.
// Slow listeners get frames dropped rather than blocking the broadcast.
// When source closes every listener channel is closed too.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				b.end()
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *Broadcaster) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
	for l := range b.listeners {
		close(l.C)
	}
	clear(b.listeners)
}
