package input

import (
	"strings"
)

// EventType is the kind of raw input event.
type EventType int

const (
	PointerDown EventType = iota
	PointerMove
	PointerUp
	KeyDown
	KeyUp
	KeyPress // a down immediately followed by an up
)

// Event is a raw pointer or key event.
type Event struct {
	Type   EventType
	X, Y   float64
	Button Button
	Key    string
}

// Dispatcher maps events to commands. It is not safe for concurrent use;
// the controller owns it.
type Dispatcher struct {
	layout     Layout
	volumeStep float64

	buttons  map[Button]bool
	keys     map[string]bool
	dragging bool // left button went down on the track bar
}

// NewDispatcher creates a dispatcher for layout. Volume keys move the
// volume by step.
func NewDispatcher(layout Layout, step float64) *Dispatcher {
	return &Dispatcher{
		layout:     layout,
		volumeStep: step,
		buttons:    map[Button]bool{},
		keys:       map[string]bool{},
	}
}

// Layout returns the control layout.
func (d *Dispatcher) Layout() Layout {
	return d.layout
}

// Handle dispatches one event.
func (d *Dispatcher) Handle(ev Event) []Command {
	switch ev.Type {
	case PointerDown:
		return d.PointerDown(ev.X, ev.Y, ev.Button)
	case PointerMove:
		return d.PointerMove(ev.X, ev.Y)
	case PointerUp:
		return d.PointerUp(ev.X, ev.Y, ev.Button)
	case KeyDown:
		return d.KeyDown(ev.Key)
	case KeyUp:
		d.KeyUp(ev.Key)
	case KeyPress:
		cmds := d.KeyDown(ev.Key)
		d.KeyUp(ev.Key)
		return cmds
	}
	return nil
}

// PointerDown handles a button press. A press while the button is already
// held is a repeat and does nothing.
func (d *Dispatcher) PointerDown(x, y float64, b Button) []Command {
	if d.buttons[b] {
		return nil
	}
	d.buttons[b] = true

	l := d.layout
	switch b {
	case Left:
		switch {
		case l.Play.Contains(x, y):
			return []Command{{Kind: TogglePlay}}
		case l.Export.Contains(x, y):
			return []Command{{Kind: Export}}
		case l.Open.Contains(x, y):
			return []Command{{Kind: Open}}
		case l.Track.Contains(x, y):
			d.dragging = true
			return []Command{{Kind: Seek, X: x}}
		}
	case Right:
		if l.Track.Contains(x, y) {
			return []Command{{Kind: MarkSource, X: x}}
		}
	}
	return nil
}

// PointerMove seeks along the track while a left press that began on it is
// held. The drag follows x even when the pointer leaves the bar vertically.
func (d *Dispatcher) PointerMove(x, y float64) []Command {
	if !d.dragging || !d.buttons[Left] {
		return nil
	}
	t := d.layout.Track
	if x < t.X || x > t.X+t.W {
		return nil
	}
	return []Command{{Kind: Seek, X: x}}
}

// PointerUp releases a button.
func (d *Dispatcher) PointerUp(x, y float64, b Button) []Command {
	d.buttons[b] = false
	if b == Left {
		d.dragging = false
	}
	return nil
}

// KeyDown handles a key press. Auto-repeat while the key is held does
// nothing; unknown keys are ignored.
func (d *Dispatcher) KeyDown(key string) []Command {
	key = strings.ToLower(key)
	if d.keys[key] {
		return nil
	}
	cmd, ok := d.keyCommand(key)
	if !ok {
		return nil
	}
	d.keys[key] = true
	return []Command{cmd}
}

// KeyUp releases a key.
func (d *Dispatcher) KeyUp(key string) {
	delete(d.keys, strings.ToLower(key))
}

func (d *Dispatcher) keyCommand(key string) (Command, bool) {
	switch key {
	case KeySpace, " ":
		return Command{Kind: TogglePlay}, true
	case KeyArrowUp:
		return Command{Kind: Volume, Volume: d.volumeStep}, true
	case KeyArrowDown:
		return Command{Kind: Volume, Volume: -d.volumeStep}, true
	case KeyArrowLeft:
		return Command{Kind: Cycle, Delta: -1}, true
	case KeyArrowRight:
		return Command{Kind: Cycle, Delta: 1}, true
	case KeyB:
		return Command{Kind: BeatToLastSelected}, true
	case KeyT:
		return Command{Kind: ToggleTrim}, true
	case KeyE:
		return Command{Kind: Export}, true
	case KeyO:
		return Command{Kind: Open}, true
	case KeyM:
		return Command{Kind: MarkAtScroll}, true
	}
	return Command{}, false
}
