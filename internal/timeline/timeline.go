// Package timeline maps between screen coordinates along the track bar and
// sample offsets in the beat graph. Beats are of unequal length, so offsets
// resolve to beats by search rather than arithmetic.
package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/satindergrewal/loopatron/internal/jukebox"
)

// OutOfRangeError reports an offset that no beat covers.
type OutOfRangeError struct {
	Offset     int64
	First, End int64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("offset %d outside beat range [%d, %d)", e.Offset, e.First, e.End)
}

// Mapper converts coordinates and holds the two timeline cursors: the scroll
// offset (always snapped to a beat start once resolved) and the user's
// selection offset.
type Mapper struct {
	graph *jukebox.Graph
	x0    float64
	width float64
	first int64
	end   int64

	scroll    int64
	selection int64
}

// New creates a mapper for the track bar starting at x0 and width wide.
// Both cursors start at the first beat.
func New(g *jukebox.Graph, x0, width float64) *Mapper {
	if width <= 0 {
		width = 1
	}
	return &Mapper{
		graph:     g,
		x0:        x0,
		width:     width,
		first:     g.First(),
		end:       g.End(),
		scroll:    g.First(),
		selection: g.First(),
	}
}

// Span returns the sample domain [first, end).
func (m *Mapper) Span() (first, end int64) {
	return m.first, m.end
}

// ToScreen maps a sample offset to an x coordinate.
func (m *Mapper) ToScreen(offset int64) float64 {
	total := float64(m.end - m.first)
	return m.x0 + float64(offset-m.first)/total*m.width
}

// ToSample maps an x coordinate to a sample offset, clamped to the domain.
func (m *Mapper) ToSample(x float64) int64 {
	total := float64(m.end - m.first)
	rel := math.Round((x - m.x0) / m.width * total)
	// Clamp before converting; huge or NaN x would overflow int64.
	if !(rel > 0) {
		return m.first
	}
	if rel >= total {
		return m.end - 1
	}
	return m.first + int64(rel)
}

// ResolveBeat returns the id of the beat whose [Start, Stop) contains offset.
func (m *Mapper) ResolveBeat(offset int64) (int, error) {
	if offset < m.first || offset >= m.end {
		return -1, &OutOfRangeError{Offset: offset, First: m.first, End: m.end}
	}
	beats := m.graph.Beats
	i := sort.Search(len(beats), func(i int) bool { return beats[i].Stop > offset })
	return i, nil
}

func (m *Mapper) Scroll() int64 {
	return m.scroll
}

// SetScroll moves the scroll cursor without snapping.
func (m *Mapper) SetScroll(offset int64) {
	m.scroll = offset
}

// SnapScroll moves the scroll cursor to the start of the beat covering it and
// returns that beat.
func (m *Mapper) SnapScroll() (int, error) {
	id, err := m.ResolveBeat(m.scroll)
	if err != nil {
		return -1, err
	}
	m.scroll = m.graph.Beats[id].Start
	return id, nil
}

// Follow moves the scroll cursor to a beat start chosen by playback.
func (m *Mapper) Follow(start int64) {
	m.scroll = start
}

// ScrollX returns the screen position of the scroll cursor.
func (m *Mapper) ScrollX() float64 {
	return m.ToScreen(m.scroll)
}

func (m *Mapper) Selection() int64 {
	return m.selection
}

// SetSelection records the user's pick, clamped to the domain.
func (m *Mapper) SetSelection(offset int64) {
	switch {
	case offset < m.first:
		offset = m.first
	case offset >= m.end:
		offset = m.end - 1
	}
	m.selection = offset
}

// Contains reports whether x falls on the track bar.
func (m *Mapper) Contains(x float64) bool {
	return x >= m.x0 && x <= m.x0+m.width
}
