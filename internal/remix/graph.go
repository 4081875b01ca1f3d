package remix

import (
	"sort"

	"github.com/satindergrewal/loopatron/internal/jukebox"
)

const (
	beatsPerBar   = 4
	maxCandidates = 8
)

// segments numbers runs of consecutive beats that share a cluster.
func segments(labels []int) []int {
	seg := make([]int, len(labels))
	for i := 1; i < len(labels); i++ {
		seg[i] = seg[i-1]
		if labels[i] != labels[i-1] {
			seg[i]++
		}
	}
	return seg
}

// candidates proposes, for every beat, the beats it can jump to without the
// listener noticing: same cluster, another segment, same position in the
// bar. Only the closest matches are kept, listed in id order.
func candidates(labels, seg []int, feats [][]float64) [][]int {
	n := len(labels)
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		var cands []int
		for j := 0; j < n; j++ {
			if j == i || j == i+1 {
				continue
			}
			if labels[j] != labels[i] || seg[j] == seg[i] || j%beatsPerBar != i%beatsPerBar {
				continue
			}
			cands = append(cands, j)
		}
		if len(cands) > maxCandidates && feats != nil {
			sort.SliceStable(cands, func(a, b int) bool {
				return sqDist(feats[i], feats[cands[a]]) < sqDist(feats[i], feats[cands[b]])
			})
			cands = cands[:maxCandidates]
		}
		sort.Ints(cands)
		out[i] = cands
	}
	return out
}

// assemble cuts the interleaved region into beats at bounds.
func assemble(region []int16, channels, sampleRate int, bounds []int64, labels, seg []int, cands [][]int) *jukebox.Graph {
	g := &jukebox.Graph{SampleRate: sampleRate, Channels: channels}
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i]*int64(channels), bounds[i+1]*int64(channels)
		g.Beats = append(g.Beats, jukebox.Beat{
			ID:             i,
			Start:          bounds[i],
			Stop:           bounds[i+1],
			Segment:        seg[i],
			Cluster:        labels[i],
			Buffer:         region[lo:hi:hi],
			JumpCandidates: cands[i],
		})
	}
	return g
}
