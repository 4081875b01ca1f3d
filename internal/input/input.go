// Package input turns raw pointer and key events into player commands.
//
// Events are edge-detected: a button or key held down produces one command
// per press-release cycle, however many repeat events the source emits while
// it is held.
package input

import (
	"fmt"
	"strings"

	"github.com/satindergrewal/loopatron/internal/config"
)

// Button is a pointer button.
type Button int

const (
	Left Button = iota
	Middle
	Right
)

func (b Button) String() string {
	switch b {
	case Left:
		return "left"
	case Middle:
		return "middle"
	case Right:
		return "right"
	}
	return fmt.Sprintf("button%d", int(b))
}

// ParseButton accepts "left", "middle", "right" or their first letter.
func ParseButton(s string) (Button, error) {
	switch strings.ToLower(s) {
	case "", "l", "left":
		return Left, nil
	case "m", "middle":
		return Middle, nil
	case "r", "right":
		return Right, nil
	}
	return Left, fmt.Errorf("unknown button %q", s)
}

// Key names accepted by the dispatcher.
const (
	KeySpace      = "space"
	KeyArrowUp    = "up"
	KeyArrowDown  = "down"
	KeyArrowLeft  = "left"
	KeyArrowRight = "right"
	KeyB          = "b"
	KeyT          = "t"
	KeyE          = "e"
	KeyO          = "o"
	KeyM          = "m"
)

// Keys lists every bound key.
var Keys = []string{KeySpace, KeyArrowUp, KeyArrowDown, KeyArrowLeft, KeyArrowRight, KeyB, KeyT, KeyE, KeyO, KeyM}

// Kind identifies a command.
type Kind int

const (
	TogglePlay Kind = iota
	Seek             // X on the track bar
	SeekBeat         // Beat
	MarkSource       // X on the track bar
	MarkAtScroll
	MarkBeat // Beat
	Cycle    // Delta
	Export
	Open // Path, empty asks the picker
	Volume
	BeatToLastSelected
	ToggleTrim
)

var kindNames = map[Kind]string{
	TogglePlay:         "toggle-play",
	Seek:               "seek",
	SeekBeat:           "seek-beat",
	MarkSource:         "mark-source",
	MarkAtScroll:       "mark-at-scroll",
	MarkBeat:           "mark-beat",
	Cycle:              "cycle",
	Export:             "export",
	Open:               "open",
	Volume:             "volume",
	BeatToLastSelected: "beat-to-last-selected",
	ToggleTrim:         "toggle-trim",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind%d", int(k))
}

// Command is one action for the controller.
type Command struct {
	Kind   Kind
	X      float64
	Beat   int
	Delta  int
	Volume float64
	Path   string
}

func (c Command) String() string {
	switch c.Kind {
	case Seek, MarkSource:
		return fmt.Sprintf("%s x=%.1f", c.Kind, c.X)
	case SeekBeat, MarkBeat:
		return fmt.Sprintf("%s %d", c.Kind, c.Beat)
	case Cycle:
		return fmt.Sprintf("%s %+d", c.Kind, c.Delta)
	case Volume:
		return fmt.Sprintf("%s %+.2f", c.Kind, c.Volume)
	case Open:
		if c.Path != "" {
			return fmt.Sprintf("%s %s", c.Kind, c.Path)
		}
	}
	return c.Kind.String()
}

// Rect is an axis-aligned screen rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Layout is where the clickable controls sit.
type Layout struct {
	Open   Rect
	Export Rect
	Play   Rect
	Track  Rect
}

// NewLayout places the controls: open at the top right, export at the
// bottom right, play centered at the bottom and the track bar above it.
func NewLayout(l config.Layout) Layout {
	w, h, bw := l.WindowWidth, l.WindowHeight, l.ButtonWidth
	return Layout{
		Open:   Rect{X: w - 2*bw - 10, Y: 20, W: 2 * bw, H: bw},
		Export: Rect{X: w - 2*bw - 10, Y: h - bw - 10, W: 2 * bw, H: bw},
		Play:   Rect{X: w/2 - bw/2, Y: h - bw - 10, W: bw, H: bw},
		Track:  Rect{X: l.BarX, Y: h - bw - 20 - l.BarHeight - 10, W: l.BarWidth, H: l.BarHeight},
	}
}
