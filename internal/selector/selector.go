// Package selector tracks the loop the user is building: a source beat the
// loop ends on and a jump target, picked from the source's jump candidates
// that lie earlier in the track.
package selector

import (
	"github.com/satindergrewal/loopatron/internal/jukebox"
)

// Resolver maps a sample offset to the beat covering it.
type Resolver interface {
	ResolveBeat(offset int64) (int, error)
}

// Jumper receives the pending jump for the playback cursor.
type Jumper interface {
	SetPendingJump(id int) error
	ClearPendingJump() error
	PendingJump() int
}

// Selector is the loop selection state for one beat graph.
type Selector struct {
	graph    *jukebox.Graph
	resolver Resolver
	jumper   Jumper

	source int
	cursor int
}

// New creates a selector with nothing selected.
func New(g *jukebox.Graph, r Resolver, j Jumper) *Selector {
	return &Selector{graph: g, resolver: r, jumper: j, source: -1, cursor: -1}
}

// SourceBeat returns the marked source beat, or -1.
func (s *Selector) SourceBeat() int {
	return s.source
}

// Cursor returns the index into Candidates, or -1.
func (s *Selector) Cursor() int {
	return s.cursor
}

// MarkSource resolves offset to a beat and makes it the loop's source. Any
// previous candidate choice and pending jump are dropped.
func (s *Selector) MarkSource(offset int64) (int, error) {
	id, err := s.resolver.ResolveBeat(offset)
	if err != nil {
		return -1, err
	}
	s.source = id
	s.cursor = -1
	return id, s.jumper.ClearPendingJump()
}

// Candidates returns the source beat's jump candidates that lie before it.
func (s *Selector) Candidates() []int {
	if !s.graph.Valid(s.source) {
		return nil
	}
	var out []int
	for _, c := range s.graph.Beats[s.source].JumpCandidates {
		if c < s.source {
			out = append(out, c)
		}
	}
	return out
}

// Cycle moves the cursor delta steps through the candidates, wrapping at
// both ends, and makes the chosen candidate the pending jump. From no choice
// a forward step picks the first candidate and a backward step the last.
// When the source has no earlier candidates the selection is dropped and
// Cycle reports false.
func (s *Selector) Cycle(delta int) (int, bool, error) {
	cands := s.Candidates()
	if len(cands) == 0 {
		s.source, s.cursor = -1, -1
		return -1, false, s.jumper.ClearPendingJump()
	}

	n := len(cands)
	switch {
	case s.cursor < 0 && delta < 0:
		s.cursor = n - 1
	case s.cursor < 0:
		s.cursor = ((delta-1)%n + n) % n
	default:
		s.cursor = ((s.cursor+delta)%n + n) % n
	}
	target := cands[s.cursor]
	return target, true, s.jumper.SetPendingJump(target)
}

// JumpTarget returns the chosen candidate, or -1.
func (s *Selector) JumpTarget() int {
	cands := s.Candidates()
	if s.cursor < 0 || s.cursor >= len(cands) {
		return -1
	}
	return cands[s.cursor]
}

// OnBeatFinished re-arms the chosen jump after playback consumed it, so the
// selected loop keeps repeating until the selection changes.
func (s *Selector) OnBeatFinished() error {
	target := s.JumpTarget()
	if target < 0 || s.jumper.PendingJump() >= 0 {
		return nil
	}
	return s.jumper.SetPendingJump(target)
}

// Reset drops the selection.
func (s *Selector) Reset() error {
	s.source, s.cursor = -1, -1
	return s.jumper.ClearPendingJump()
}
