package jukebox

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	segmentGlyphs = "#-"
	clusterGlyphs = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz1234567890-=,.<>/?;:!@#$%^&*()_+"
)

// Info renders the diagnostics text for a loaded track: a summary block, one
// glyph per beat showing segment parity and, when verbose, one glyph per beat
// naming its cluster, followed by the engine's own diagnostics.
func Info(g *Graph, meta Meta, verbose bool) string {
	secs := int(math.Round(meta.Duration))
	hours, rem := secs/3600, secs%3600
	minutes, seconds := rem/60, rem%60

	var b strings.Builder
	fmt.Fprintf(&b, "  filename: %s\n", meta.Filename)
	fmt.Fprintf(&b, "  duration: %02d:%02d:%02d\n", hours, minutes, seconds)
	fmt.Fprintf(&b, "     beats: %d\n", g.Len())
	fmt.Fprintf(&b, "     tempo: %d bpm\n", int(math.Round(meta.Tempo)))
	fmt.Fprintf(&b, "  clusters: %d\n", meta.Clusters)
	fmt.Fprintf(&b, "  segments: %d\n", meta.Segments)
	fmt.Fprintf(&b, "samplerate: %s\n", humanize.Comma(int64(meta.SampleRate)))
	fmt.Fprintf(&b, "    offset: %s frames\n", humanize.Comma(meta.StartIndex))

	b.WriteString("\n")
	b.WriteString(SegmentMap(g))
	b.WriteString("\n\n")
	if verbose {
		b.WriteString(ClusterMap(g))
		b.WriteString("\n\n")
	}
	b.WriteString(meta.Diagnostics)
	return b.String()
}

// SegmentMap returns one glyph per beat, alternating with segment parity.
func SegmentMap(g *Graph) string {
	out := make([]byte, len(g.Beats))
	for i, b := range g.Beats {
		out[i] = segmentGlyphs[b.Segment%2]
	}
	return string(out)
}

// ClusterMap returns one glyph per beat naming its cluster. Clusters beyond
// the glyph table wrap around.
func ClusterMap(g *Graph) string {
	out := make([]byte, len(g.Beats))
	for i, b := range g.Beats {
		out[i] = clusterGlyphs[b.Cluster%len(clusterGlyphs)]
	}
	return string(out)
}
