package jukebox

import (
	"fmt"
	"path/filepath"
)

// Beat is one analyzed beat of the loaded track. Start and Stop are sample
// frames into the analyzed region; Buffer holds the interleaved PCM for
// exactly [Start, Stop).
type Beat struct {
	ID             int
	Start          int64
	Stop           int64
	Segment        int
	Cluster        int
	Buffer         []int16
	JumpCandidates []int
}

// Len returns the beat length in sample frames.
func (b Beat) Len() int64 {
	return b.Stop - b.Start
}

// Graph is the beat sequence produced by an Engine. It is read-only once built.
type Graph struct {
	Beats      []Beat
	SampleRate int
	Channels   int
}

// Meta describes the analyzed track.
type Meta struct {
	Filename    string
	Duration    float64 // seconds of analyzed audio
	Tempo       float64 // bpm
	SampleRate  int
	Segments    int
	Clusters    int
	StartIndex  int64 // frames into the source file where the analyzed region begins
	Diagnostics string
}

// Basename returns the source file name without its directory.
func (m Meta) Basename() string {
	return filepath.Base(m.Filename)
}

// Len returns the number of beats.
func (g *Graph) Len() int {
	return len(g.Beats)
}

// Valid reports whether id names a beat in the graph.
func (g *Graph) Valid(id int) bool {
	return id >= 0 && id < len(g.Beats)
}

// Beat returns the beat with the given id. The caller checks Valid first.
func (g *Graph) Beat(id int) Beat {
	return g.Beats[id]
}

// First returns the first sample frame covered by the graph.
func (g *Graph) First() int64 {
	return g.Beats[0].Start
}

// End returns one past the last sample frame covered by the graph.
func (g *Graph) End() int64 {
	return g.Beats[len(g.Beats)-1].Stop
}

// Next returns the natural successor of id, wrapping past the last beat to 0.
func (g *Graph) Next(id int) int {
	if id+1 >= len(g.Beats) {
		return 0
	}
	return id + 1
}

// Validate checks the structural invariants every consumer relies on:
// sequential ids, non-empty contiguous beats, non-decreasing segments,
// in-range jump candidates and buffers that match their beat length.
func (g *Graph) Validate() error {
	if g == nil || len(g.Beats) == 0 {
		return fmt.Errorf("graph has no beats")
	}
	if g.Channels <= 0 {
		return fmt.Errorf("graph channel count %d", g.Channels)
	}
	for i, b := range g.Beats {
		if b.ID != i {
			return fmt.Errorf("beat %d has id %d", i, b.ID)
		}
		if b.Start >= b.Stop {
			return fmt.Errorf("beat %d is empty: [%d, %d)", i, b.Start, b.Stop)
		}
		if i > 0 {
			prev := g.Beats[i-1]
			if prev.Stop != b.Start {
				return fmt.Errorf("beat %d starts at %d, previous stops at %d", i, b.Start, prev.Stop)
			}
			if b.Segment < prev.Segment {
				return fmt.Errorf("beat %d segment %d after segment %d", i, b.Segment, prev.Segment)
			}
		}
		if want := b.Len() * int64(g.Channels); int64(len(b.Buffer)) != want {
			return fmt.Errorf("beat %d buffer has %d samples, want %d", i, len(b.Buffer), want)
		}
		for _, c := range b.JumpCandidates {
			if !g.Valid(c) {
				return fmt.Errorf("beat %d jump candidate %d out of range", i, c)
			}
		}
	}
	return nil
}
