// Package jukeboxtest builds small beat graphs for tests.
package jukeboxtest

import "github.com/satindergrewal/loopatron/internal/jukebox"

// Graph builds a stereo graph whose beat i spans [bounds[i], bounds[i+1]).
// Every beat sits in its own segment and cluster; buffers are filled with the
// beat id so tests can tell them apart.
func Graph(bounds ...int64) *jukebox.Graph {
	g := &jukebox.Graph{SampleRate: 48000, Channels: 2}
	for i := 0; i+1 < len(bounds); i++ {
		n := (bounds[i+1] - bounds[i]) * 2
		buf := make([]int16, n)
		for j := range buf {
			buf[j] = int16(i + 1)
		}
		g.Beats = append(g.Beats, jukebox.Beat{
			ID:      i,
			Start:   bounds[i],
			Stop:    bounds[i+1],
			Segment: i,
			Cluster: i,
			Buffer:  buf,
		})
	}
	return g
}

// WithCandidates sets the jump candidates of each beat named in cands.
func WithCandidates(g *jukebox.Graph, cands map[int][]int) *jukebox.Graph {
	for id, c := range cands {
		g.Beats[id].JumpCandidates = c
	}
	return g
}

// FourBeats is the graph [0,10) [10,20) [20,30) [30,40) with beat 2 able to
// jump back to beat 0.
func FourBeats() *jukebox.Graph {
	return WithCandidates(Graph(0, 10, 20, 30, 40), map[int][]int{2: {0}})
}
