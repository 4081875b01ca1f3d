package playback

import (
	"errors"
	"testing"

	"github.com/satindergrewal/loopatron/internal/audio"
	"github.com/satindergrewal/loopatron/internal/jukebox"
	"github.com/satindergrewal/loopatron/internal/jukebox/jukeboxtest"
)

// fakeOutput records what the queue asks of the device.
type fakeOutput struct {
	gen     uint64
	playing int
	queued  int
	paused  bool
	loads   []int
	queues  []int
	fail    map[int]error
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{playing: -1, queued: -1, paused: true}
}

func (f *fakeOutput) Reset() uint64 {
	f.gen++
	f.playing, f.queued, f.paused = -1, -1, true
	return f.gen
}

func (f *fakeOutput) Load(b audio.Buffer) error {
	if err := f.fail[b.Beat]; err != nil {
		return err
	}
	f.loads = append(f.loads, b.Beat)
	f.playing = b.Beat
	return nil
}

func (f *fakeOutput) Queue(b audio.Buffer) error {
	if err := f.fail[b.Beat]; err != nil {
		return err
	}
	f.queues = append(f.queues, b.Beat)
	if f.playing < 0 {
		f.playing = b.Beat
		return nil
	}
	f.queued = b.Beat
	return nil
}

func (f *fakeOutput) Pause()   { f.paused = true }
func (f *fakeOutput) Unpause() { f.paused = false }

// finish simulates the sounding buffer running out.
func (f *fakeOutput) finish() audio.Event {
	ev := audio.Event{Gen: f.gen, Finished: f.playing, Started: f.queued}
	f.playing, f.queued = f.queued, -1
	return ev
}

type anchor int

func (a anchor) SourceBeat() int { return int(a) }

type follower struct{ at int64 }

func (f *follower) Follow(start int64) { f.at = start }

func newQueue(t *testing.T, g *jukebox.Graph, a Anchor) (*Queue, *fakeOutput, *follower) {
	t.Helper()
	out := newFakeOutput()
	fol := &follower{at: -1}
	q := New(out, g, a, fol)
	if err := q.Initialize(0); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return q, out, fol
}

// --- State machine ---

func TestNewQueueIsIdle(t *testing.T) {
	q := New(newFakeOutput(), jukeboxtest.FourBeats(), nil, nil)
	if q.State() != Idle || q.Current() != -1 {
		t.Errorf("state = %v current = %d", q.State(), q.Current())
	}
	q.Play()
	if q.State() != Idle {
		t.Error("Play on idle queue should do nothing")
	}
}

func TestInitializePausesAndPreQueues(t *testing.T) {
	q, out, fol := newQueue(t, jukeboxtest.FourBeats(), nil)
	if q.State() != Paused {
		t.Errorf("state = %v, want paused", q.State())
	}
	if out.playing != 0 || out.queued != 1 {
		t.Errorf("device slots = (%d, %d), want (0, 1)", out.playing, out.queued)
	}
	if !out.paused {
		t.Error("device should be paused after initialize")
	}
	if fol.at != 0 {
		t.Errorf("scroll = %d, want 0", fol.at)
	}
}

func TestInitializeOutOfRange(t *testing.T) {
	q := New(newFakeOutput(), jukeboxtest.FourBeats(), nil, nil)
	if err := q.Initialize(4); err == nil {
		t.Error("expected error for beat 4 of 4")
	}
}

func TestToggle(t *testing.T) {
	q, out, _ := newQueue(t, jukeboxtest.FourBeats(), nil)
	if q.Toggle() != Playing || out.paused {
		t.Error("first toggle should play")
	}
	if q.Toggle() != Paused || !out.paused {
		t.Error("second toggle should pause")
	}
	// Toggling never touches the queued slot.
	if len(out.queues) != 1 {
		t.Errorf("queues = %v", out.queues)
	}
}

// --- Advancing ---

func TestNaturalAdvanceWraps(t *testing.T) {
	q, out, fol := newQueue(t, jukeboxtest.FourBeats(), nil)
	q.Play()

	want := []int{1, 2, 3, 0, 1}
	for i, w := range want {
		got, err := q.OnBeatFinished(out.finish())
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("step %d: current = %d, want %d", i, got, w)
		}
		if out.playing != w {
			t.Errorf("step %d: device playing %d, want %d", i, out.playing, w)
		}
	}
	if fol.at != 10 {
		t.Errorf("scroll = %d, want 10", fol.at)
	}
	// Every advance was served by the pre-queued buffer.
	if len(out.loads) != 1 {
		t.Errorf("loads = %v, want only the initial load", out.loads)
	}
}

func TestPendingJumpFromSource(t *testing.T) {
	g := jukeboxtest.FourBeats()
	q, out, fol := newQueue(t, g, anchor(2))
	q.Play()
	q.OnBeatFinished(out.finish()) // 1
	q.OnBeatFinished(out.finish()) // 2

	if err := q.SetPendingJump(0); err != nil {
		t.Fatal(err)
	}
	if out.queued != 0 {
		t.Errorf("queued slot = %d, want re-planned to 0", out.queued)
	}

	got, err := q.OnBeatFinished(out.finish())
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 || fol.at != 0 {
		t.Errorf("current = %d scroll = %d, want 0 and 0", got, fol.at)
	}
	if q.PendingJump() != -1 {
		t.Errorf("pending = %d, want cleared after use", q.PendingJump())
	}
}

func TestPendingJumpIgnoredAwayFromSource(t *testing.T) {
	q, out, _ := newQueue(t, jukeboxtest.FourBeats(), anchor(2))
	q.Play()
	q.SetPendingJump(0)
	got, _ := q.OnBeatFinished(out.finish()) // finished beat 0, source is 2
	if got != 1 {
		t.Errorf("current = %d, want 1", got)
	}
	if q.PendingJump() != 0 {
		t.Error("pending jump should survive until the source beat finishes")
	}
}

func TestClearPendingJumpReplans(t *testing.T) {
	q, out, _ := newQueue(t, jukeboxtest.FourBeats(), anchor(0))
	q.SetPendingJump(3)
	if out.queued != 3 {
		t.Fatalf("queued = %d, want 3", out.queued)
	}
	q.ClearPendingJump()
	if out.queued != 1 {
		t.Errorf("queued = %d, want 1 after clear", out.queued)
	}
}

func TestSetPendingJumpOutOfRange(t *testing.T) {
	q, _, _ := newQueue(t, jukeboxtest.FourBeats(), anchor(0))
	if err := q.SetPendingJump(9); err == nil {
		t.Error("expected range error")
	}
}

// --- Seek ---

func TestSeekDoesNotInterrupt(t *testing.T) {
	q, out, fol := newQueue(t, jukeboxtest.FourBeats(), nil)
	q.Play()
	if err := q.Seek(3); err != nil {
		t.Fatal(err)
	}
	if q.Current() != 3 {
		t.Errorf("current = %d, want 3", q.Current())
	}
	if out.playing != 0 || out.queued != 3 {
		t.Errorf("device slots = (%d, %d), want beat 0 still sounding and 3 queued", out.playing, out.queued)
	}

	got, _ := q.OnBeatFinished(out.finish())
	if got != 3 || out.playing != 3 {
		t.Errorf("after seek landed current = %d playing = %d", got, out.playing)
	}
	if out.queued != 0 {
		t.Errorf("queued = %d, want 0 after 3", out.queued)
	}
	if fol.at != 30 {
		t.Errorf("scroll = %d, want 30", fol.at)
	}
}

// --- Events and failures ---

func TestUnderrunReloads(t *testing.T) {
	q, out, _ := newQueue(t, jukeboxtest.FourBeats(), nil)
	q.Play()
	out.queued = -1 // device lost the queued buffer
	got, err := q.OnBeatFinished(out.finish())
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 || out.playing != 1 {
		t.Errorf("current = %d playing = %d, want 1", got, out.playing)
	}
	if n := len(out.loads); n != 2 || out.loads[1] != 1 {
		t.Errorf("loads = %v, want reload of beat 1", out.loads)
	}
}

func TestLateSeekCutsPromotedBeat(t *testing.T) {
	q, out, _ := newQueue(t, jukeboxtest.FourBeats(), nil)
	q.Play()
	ev := out.finish() // device already moved on to beat 1
	if err := q.Seek(3); err != nil {
		t.Fatal(err)
	}
	got, err := q.OnBeatFinished(ev)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 || out.playing != 3 {
		t.Errorf("current = %d playing = %d, want the seek target over the promoted beat", got, out.playing)
	}
	if last := out.loads[len(out.loads)-1]; last != 3 {
		t.Errorf("loads = %v, want a hard reload of beat 3", out.loads)
	}
	if out.queued != 0 {
		t.Errorf("queued = %d, want 0 after 3", out.queued)
	}
}

func TestStaleEventsIgnored(t *testing.T) {
	q, out, _ := newQueue(t, jukeboxtest.FourBeats(), nil)
	q.Play()
	stale := audio.Event{Gen: out.gen - 1, Finished: 0, Started: 1}
	got, _ := q.OnBeatFinished(stale)
	if got != 0 {
		t.Errorf("stale event advanced the cursor to %d", got)
	}
}

func TestDeviceErrorEndsSession(t *testing.T) {
	g := jukeboxtest.FourBeats()
	out := newFakeOutput()
	cause := errors.New("buffer too large")
	out.fail = map[int]error{2: cause}
	q := New(out, g, nil, nil)
	if err := q.Initialize(0); err != nil {
		t.Fatal(err)
	}
	q.Play()

	_, err := q.OnBeatFinished(out.finish()) // current 1, queueing 2 fails
	var derr *DeviceError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
	if derr.Beat != 2 || !errors.Is(err, cause) {
		t.Errorf("DeviceError = %+v", derr)
	}
	if q.State() != Idle {
		t.Errorf("state = %v, want idle", q.State())
	}
	if !out.paused {
		t.Error("device should be paused after failure")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Playing: "playing", Paused: "paused"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
}
