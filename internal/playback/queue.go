// Package playback sequences beats onto a two-slot output channel.
//
// The queue keeps one beat sounding and its planned successor queued on the
// device, so the device can hand off between beats without a gap. Every
// input that changes the plan (a pending jump, a seek) re-queues the
// successor immediately, so the next enqueue decision always reflects it.
package playback

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/audio"
	"github.com/satindergrewal/loopatron/internal/jukebox"
)

// State is the playback state.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// Output is the two-slot device the queue drives.
type Output interface {
	Reset() uint64
	Load(audio.Buffer) error
	Queue(audio.Buffer) error
	Pause()
	Unpause()
}

// Anchor names the beat a pending jump is taken from.
type Anchor interface {
	SourceBeat() int
}

// Follower is told the start offset of each beat playback advances to.
type Follower interface {
	Follow(start int64)
}

// DeviceError reports that the output rejected a beat buffer. It ends the
// session: the queue returns to Idle and does not retry.
type DeviceError struct {
	Beat int
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("output device rejected beat %d: %v", e.Beat, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Queue is the playback cursor over one beat graph.
type Queue struct {
	out    Output
	graph  *jukebox.Graph
	anchor Anchor
	follow Follower

	gen     uint64
	state   State
	current int
	pending int
	next    int  // beat sitting in the output's queued slot
	seeking bool // current was set by Seek and is not sounding yet
}

// New creates an idle queue. anchor and follow may be nil.
func New(out Output, g *jukebox.Graph, anchor Anchor, follow Follower) *Queue {
	return &Queue{
		out:     out,
		graph:   g,
		anchor:  anchor,
		follow:  follow,
		current: -1,
		pending: -1,
		next:    -1,
	}
}

// SetAnchor sets the source of pending jumps.
func (q *Queue) SetAnchor(a Anchor) {
	q.anchor = a
}

func (q *Queue) State() State {
	return q.state
}

// Current returns the beat the cursor is on, or -1 when idle.
func (q *Queue) Current() int {
	return q.current
}

// PendingJump returns the override for the next advance, or -1.
func (q *Queue) PendingJump() int {
	return q.pending
}

// Planned returns the beat queued behind the current one, or -1.
func (q *Queue) Planned() int {
	return q.next
}

func (q *Queue) buffer(id int) audio.Buffer {
	return audio.Buffer{Beat: id, Samples: q.graph.Beats[id].Buffer}
}

// fail ends the session after a device error.
func (q *Queue) fail(id int, err error) error {
	q.state = Idle
	q.out.Pause()
	derr := &DeviceError{Beat: id, Err: err}
	log.WithField("beat", id).Errorf("Playback stopped: %v", err)
	return derr
}

// Initialize loads beat id onto a fresh output and enters Paused.
func (q *Queue) Initialize(id int) error {
	if !q.graph.Valid(id) {
		return fmt.Errorf("initialize: beat %d out of range [0, %d)", id, q.graph.Len())
	}
	q.gen = q.out.Reset()
	q.current = id
	q.pending = -1
	q.next = -1
	q.seeking = false
	if err := q.out.Load(q.buffer(id)); err != nil {
		return q.fail(id, err)
	}
	q.state = Paused
	if q.follow != nil {
		q.follow.Follow(q.graph.Beats[id].Start)
	}
	return q.plan()
}

// Play resumes output. It does nothing unless paused.
func (q *Queue) Play() {
	if q.state != Paused {
		return
	}
	q.out.Unpause()
	q.state = Playing
}

// Pause halts output. It does nothing unless playing.
func (q *Queue) Pause() {
	if q.state != Playing {
		return
	}
	q.out.Pause()
	q.state = Paused
}

// Toggle flips between Playing and Paused and returns the new state.
func (q *Queue) Toggle() State {
	switch q.state {
	case Playing:
		q.Pause()
	case Paused:
		q.Play()
	}
	return q.state
}

// successor returns the beat that follows finished. With consume set a
// pending jump that fires is cleared.
func (q *Queue) successor(finished int, consume bool) int {
	if q.pending >= 0 && q.anchor != nil && q.anchor.SourceBeat() == finished {
		next := q.pending
		if consume {
			q.pending = -1
		}
		return next
	}
	return q.graph.Next(finished)
}

// plan puts the successor of the current beat in the output's queued slot.
func (q *Queue) plan() error {
	if q.state == Idle || q.seeking {
		return nil
	}
	next := q.successor(q.current, false)
	if next == q.next {
		return nil
	}
	if err := q.out.Queue(q.buffer(next)); err != nil {
		return q.fail(next, err)
	}
	q.next = next
	return nil
}

// SetPendingJump makes the next advance from the anchor's source beat go to id.
func (q *Queue) SetPendingJump(id int) error {
	if !q.graph.Valid(id) {
		return fmt.Errorf("pending jump: beat %d out of range [0, %d)", id, q.graph.Len())
	}
	q.pending = id
	return q.plan()
}

// ClearPendingJump returns the next advance to natural order.
func (q *Queue) ClearPendingJump() error {
	q.pending = -1
	return q.plan()
}

// Replan re-queues the successor after the anchor's source beat changed.
func (q *Queue) Replan() error {
	return q.plan()
}

// Seek moves the cursor to beat id. The sounding beat is not interrupted;
// id is queued to play right after it and supersedes the planned successor.
func (q *Queue) Seek(id int) error {
	if !q.graph.Valid(id) {
		return fmt.Errorf("seek: beat %d out of range [0, %d)", id, q.graph.Len())
	}
	if q.state == Idle {
		return nil
	}
	if err := q.out.Queue(q.buffer(id)); err != nil {
		return q.fail(id, err)
	}
	q.current = id
	q.next = id
	q.seeking = true
	return nil
}

// OnBeatFinished advances the cursor after the output reports that a buffer
// ran out, makes sure the chosen beat is the one sounding, and queues its
// successor. It returns the new current beat. Events from before the last
// Initialize are ignored.
//
// The device promotes whatever was queued when the buffer ran out. If a seek
// or jump was decided after that promotion, the promoted beat differs from
// the chosen one and is replaced with Load, cutting it off at its first
// frame. The control loop decides jumps, not the device, so this hard cut is
// the only way to honour a late decision.
func (q *Queue) OnBeatFinished(ev audio.Event) (int, error) {
	if q.state == Idle || ev.Gen != q.gen {
		return q.current, nil
	}

	var next int
	if q.seeking {
		q.seeking = false
		next = q.current
	} else {
		next = q.successor(q.current, true)
	}
	q.current = next

	if ev.Started != next {
		// The device promoted a stale buffer or ran dry: hard cut.
		if err := q.out.Load(q.buffer(next)); err != nil {
			return next, q.fail(next, err)
		}
	}
	q.next = -1
	if q.follow != nil {
		q.follow.Follow(q.graph.Beats[next].Start)
	}
	return next, q.plan()
}
