package input

import (
	"testing"

	"github.com/satindergrewal/loopatron/internal/config"
)

func newDispatcher() *Dispatcher {
	return NewDispatcher(NewLayout(config.Default().Layout), 0.05)
}

// --- Layout ---

func TestNewLayout(t *testing.T) {
	l := NewLayout(config.Default().Layout)
	tests := []struct {
		name string
		got  Rect
		want Rect
	}{
		{"open", l.Open, Rect{X: 890, Y: 20, W: 100, H: 50}},
		{"export", l.Export, Rect{X: 890, Y: 340, W: 100, H: 50}},
		{"play", l.Play, Rect{X: 475, Y: 340, W: 50, H: 50}},
		{"track", l.Track, Rect{X: 50, Y: 290, W: 900, H: 30}},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %+v, want %+v", tt.name, tt.got, tt.want)
		}
	}
}

func TestRectContainsEdges(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 5, H: 5}
	for _, p := range [][2]float64{{10, 10}, {15, 15}, {12, 13}} {
		if !r.Contains(p[0], p[1]) {
			t.Errorf("%v should be inside", p)
		}
	}
	for _, p := range [][2]float64{{9.9, 10}, {15.1, 12}, {12, 16}} {
		if r.Contains(p[0], p[1]) {
			t.Errorf("%v should be outside", p)
		}
	}
}

// --- Pointer ---

func TestPointerDownDispatch(t *testing.T) {
	tests := []struct {
		name   string
		x, y   float64
		button Button
		want   []Command
	}{
		{"play button", 500, 360, Left, []Command{{Kind: TogglePlay}}},
		{"export button", 900, 360, Left, []Command{{Kind: Export}}},
		{"open button", 900, 40, Left, []Command{{Kind: Open}}},
		{"track left click seeks", 300, 300, Left, []Command{{Kind: Seek, X: 300}}},
		{"track right click marks", 300, 300, Right, []Command{{Kind: MarkSource, X: 300}}},
		{"right click on play does nothing", 500, 360, Right, nil},
		{"middle click does nothing", 300, 300, Middle, nil},
		{"empty space", 10, 10, Left, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newDispatcher().PointerDown(tt.x, tt.y, tt.button)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestHeldButtonTogglesOnce(t *testing.T) {
	d := newDispatcher()
	toggles := 0
	for press := 0; press < 2; press++ {
		for repeat := 0; repeat < 5; repeat++ {
			toggles += len(d.PointerDown(500, 360, Left))
		}
		d.PointerUp(500, 360, Left)
	}
	if toggles != 2 {
		t.Errorf("toggles = %d, want one per press-release cycle", toggles)
	}
}

func TestDragSeeks(t *testing.T) {
	d := newDispatcher()
	d.PointerDown(100, 300, Left)

	cmds := d.PointerMove(200, 250) // above the bar, still dragging
	if len(cmds) != 1 || cmds[0].Kind != Seek || cmds[0].X != 200 {
		t.Errorf("drag = %v, want seek to 200", cmds)
	}
	if cmds := d.PointerMove(990, 300); cmds != nil {
		t.Errorf("drag past the bar = %v, want nothing", cmds)
	}

	d.PointerUp(200, 300, Left)
	if cmds := d.PointerMove(250, 300); cmds != nil {
		t.Errorf("move after release = %v, want nothing", cmds)
	}
}

func TestMoveWithoutTrackPressDoesNotSeek(t *testing.T) {
	d := newDispatcher()
	d.PointerDown(500, 360, Left) // play button
	if cmds := d.PointerMove(300, 300); cmds != nil {
		t.Errorf("move = %v, want nothing", cmds)
	}
}

// --- Keys ---

func TestKeyBindings(t *testing.T) {
	tests := []struct {
		key  string
		want Command
	}{
		{KeySpace, Command{Kind: TogglePlay}},
		{" ", Command{Kind: TogglePlay}},
		{KeyArrowUp, Command{Kind: Volume, Volume: 0.05}},
		{KeyArrowDown, Command{Kind: Volume, Volume: -0.05}},
		{KeyArrowLeft, Command{Kind: Cycle, Delta: -1}},
		{KeyArrowRight, Command{Kind: Cycle, Delta: 1}},
		{KeyB, Command{Kind: BeatToLastSelected}},
		{KeyT, Command{Kind: ToggleTrim}},
		{KeyE, Command{Kind: Export}},
		{"E", Command{Kind: Export}},
		{KeyO, Command{Kind: Open}},
		{KeyM, Command{Kind: MarkAtScroll}},
	}
	for _, tt := range tests {
		got := newDispatcher().Handle(Event{Type: KeyPress, Key: tt.key})
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("key %q = %v, want %v", tt.key, got, tt.want)
		}
	}
	if got := newDispatcher().Handle(Event{Type: KeyPress, Key: "q"}); got != nil {
		t.Errorf("unbound key = %v, want nothing", got)
	}
}

func TestHeldKeyRepeatsIgnored(t *testing.T) {
	d := newDispatcher()
	n := 0
	for i := 0; i < 4; i++ {
		n += len(d.KeyDown(KeySpace))
	}
	if n != 1 {
		t.Errorf("held space produced %d commands, want 1", n)
	}
	d.KeyUp(KeySpace)
	if len(d.KeyDown(KeySpace)) != 1 {
		t.Error("press after release should fire again")
	}
}

func TestKeyPressRepeats(t *testing.T) {
	d := newDispatcher()
	for i := 0; i < 3; i++ {
		if got := d.Handle(Event{Type: KeyPress, Key: KeyArrowRight}); len(got) != 1 {
			t.Fatalf("press %d = %v", i, got)
		}
	}
}

func TestParseButton(t *testing.T) {
	for in, want := range map[string]Button{"": Left, "left": Left, "R": Right, "middle": Middle} {
		got, err := ParseButton(in)
		if err != nil || got != want {
			t.Errorf("ParseButton(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseButton("thumb"); err == nil {
		t.Error("unknown button should fail")
	}
}

func TestCommandString(t *testing.T) {
	tests := map[string]Command{
		"toggle-play":  {Kind: TogglePlay},
		"seek x=12.5":  {Kind: Seek, X: 12.5},
		"mark-beat 3":  {Kind: MarkBeat, Beat: 3},
		"cycle -1":     {Kind: Cycle, Delta: -1},
		"volume +0.05": {Kind: Volume, Volume: 0.05},
		"open a.wav":   {Kind: Open, Path: "a.wav"},
		"open":         {Kind: Open},
	}
	for want, cmd := range tests {
		if got := cmd.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestArrowKeysThroughDownUpEvents(t *testing.T) {
	d := newDispatcher()
	down := Event{Type: KeyDown, Key: KeyArrowDown}
	if got := d.Handle(down); len(got) != 1 || got[0] != (Command{Kind: Volume, Volume: -0.05}) {
		t.Fatalf("down arrow = %v", got)
	}
	if got := d.Handle(down); got != nil {
		t.Errorf("held down arrow fired again: %v", got)
	}
	d.Handle(Event{Type: KeyUp, Key: KeyArrowDown})
	if got := d.Handle(Event{Type: KeyDown, Key: KeyArrowUp}); len(got) != 1 || got[0].Volume != 0.05 {
		t.Errorf("up arrow = %v", got)
	}
}
