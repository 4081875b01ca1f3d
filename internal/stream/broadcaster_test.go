package stream

import (
	"context"
	"testing"
	"time"
)

// runToEnd feeds frames through b and waits for Run to finish.
func runToEnd(t *testing.T, b *Broadcaster, frames ...[]int16) {
	t.Helper()
	source := make(chan []int16)
	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), source)
		close(done)
	}()
	for _, f := range frames {
		source <- f
	}
	close(source)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the source closed")
	}
}

func drain(l *Listener) [][]int16 {
	var out [][]int16
	for f := range l.C {
		out = append(out, f)
	}
	return out
}

// --- Subscriptions ---

func TestCountsByKind(t *testing.T) {
	b := NewBroadcaster()
	if n := b.ListenerCount(); n != 0 {
		t.Fatalf("new broadcaster has %d listeners", n)
	}

	spk := b.Subscribe(KindSpeaker)
	h1 := b.Subscribe(KindHTTP)
	h2 := b.Subscribe(KindHTTP)
	rtc := b.Subscribe(KindWebRTC)

	tests := []struct {
		name  string
		after func()
		want  map[Kind]int
	}{
		{"all subscribed", func() {}, map[Kind]int{KindSpeaker: 1, KindHTTP: 2, KindWebRTC: 1}},
		{"one http gone", func() { b.Unsubscribe(h1) }, map[Kind]int{KindSpeaker: 1, KindHTTP: 1, KindWebRTC: 1}},
		{"same listener twice", func() { b.Unsubscribe(h1) }, map[Kind]int{KindSpeaker: 1, KindHTTP: 1, KindWebRTC: 1}},
		{"only speaker left", func() { b.Unsubscribe(h2); b.Unsubscribe(rtc) }, map[Kind]int{KindSpeaker: 1}},
		{"none left", func() { b.Unsubscribe(spk) }, map[Kind]int{}},
	}
	for _, tt := range tests {
		tt.after()
		got := b.Counts()
		if len(got) != len(tt.want) {
			t.Errorf("%s: counts = %v, want %v", tt.name, got, tt.want)
			continue
		}
		total := 0
		for k, n := range tt.want {
			total += n
			if got[k] != n {
				t.Errorf("%s: counts[%s] = %d, want %d", tt.name, k, got[k], n)
			}
		}
		if b.ListenerCount() != total {
			t.Errorf("%s: ListenerCount = %d, want %d", tt.name, b.ListenerCount(), total)
		}
	}
}

func TestUnsubscribeClosesDone(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe(KindWebRTC)
	select {
	case <-l.Done():
		t.Fatal("done closed while subscribed")
	default:
	}
	b.Unsubscribe(l)
	b.Unsubscribe(l)
	select {
	case <-l.Done():
	default:
		t.Error("done not closed after unsubscribe")
	}
}

// --- Fan-out ---

func TestEveryKindGetsEveryFrame(t *testing.T) {
	b := NewBroadcaster()
	ls := []*Listener{b.Subscribe(KindSpeaker), b.Subscribe(KindHTTP), b.Subscribe(KindWebRTC)}

	runToEnd(t, b, []int16{1, 1}, []int16{2, 2}, []int16{3, 3})

	for _, l := range ls {
		got := drain(l)
		if len(got) != 3 {
			t.Errorf("%s listener got %d frames, want 3", l.Kind, len(got))
			continue
		}
		for i, f := range got {
			if f[0] != int16(i+1) {
				t.Errorf("%s frame %d = %v, out of order", l.Kind, i, f)
			}
		}
		if l.Dropped() != 0 {
			t.Errorf("%s dropped %d frames", l.Kind, l.Dropped())
		}
	}
}

func TestSlowListenerDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe(KindHTTP)
	capacity := cap(slow.C)

	frames := make([][]int16, capacity+25)
	for i := range frames {
		frames[i] = []int16{int16(i)}
	}
	runToEnd(t, b, frames...)

	got := drain(slow)
	if len(got) != capacity {
		t.Errorf("slow listener kept %d frames, want its buffer of %d", len(got), capacity)
	}
	if slow.Dropped() != 25 {
		t.Errorf("Dropped = %d, want 25", slow.Dropped())
	}
	if got[0][0] != 0 {
		t.Errorf("oldest frames should be kept, first = %d", got[0][0])
	}
}

// --- Shutdown ---

func TestRunReturnsOnCancel(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe(KindSpeaker)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, make(chan []int16))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// Cancel leaves listeners open; only the end of the source closes them.
	select {
	case _, ok := <-l.C:
		if !ok {
			t.Error("listener closed on cancel")
		}
	default:
	}
}

func TestSourceEndClosesListeners(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe(KindSpeaker)
	runToEnd(t, b)

	if _, ok := <-l.C; ok {
		t.Error("listener channel still open after the source ended")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d after end", b.ListenerCount())
	}
	late := b.Subscribe(KindHTTP)
	if _, ok := <-late.C; ok {
		t.Error("late subscriber should get a closed channel")
	}
}
