// Package shell is the terminal keyboard for the player: every line is a key
// name or a short command.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/controller"
	"github.com/satindergrewal/loopatron/internal/export"
	"github.com/satindergrewal/loopatron/internal/input"
)

// Player is the part of the controller the shell drives.
type Player interface {
	Input(ctx context.Context, ev input.Event) ([]controller.Result, error)
	Do(ctx context.Context, cmd input.Command) (controller.Result, error)
	Status() controller.Status
	Info(verbose bool) string
}

// Action is one parsed line.
type Action struct {
	Events  []input.Event
	Command *input.Command
	Builtin string // status, info, help or exit
	Verbose bool
}

// Parse reads one shell line.
func Parse(line string) (Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Action{}, errors.New("empty line")
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	for _, k := range input.Keys {
		if name == k && len(args) == 0 {
			return Action{Events: []input.Event{{Type: input.KeyPress, Key: k}}}, nil
		}
	}

	cmd := func(c input.Command) (Action, error) { return Action{Command: &c}, nil }

	switch name {
	case "play", "pause":
		return cmd(input.Command{Kind: input.TogglePlay})
	case "seek", "mark":
		if len(args) != 1 {
			return Action{}, fmt.Errorf("usage: %s <beat>", name)
		}
		beat, err := strconv.Atoi(args[0])
		if err != nil {
			return Action{}, fmt.Errorf("%s: beat must be a number: %q", name, args[0])
		}
		kind := input.SeekBeat
		if name == "mark" {
			kind = input.MarkBeat
		}
		return cmd(input.Command{Kind: kind, Beat: beat})
	case "next", "prev":
		delta := 1
		if name == "prev" {
			delta = -1
		}
		return cmd(input.Command{Kind: input.Cycle, Delta: delta})
	case "volume":
		if len(args) != 1 {
			return Action{}, errors.New("usage: volume <delta>")
		}
		d, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return Action{}, fmt.Errorf("volume: %q is not a number", args[0])
		}
		return cmd(input.Command{Kind: input.Volume, Volume: d})
	case "open":
		return cmd(input.Command{Kind: input.Open, Path: strings.Join(args, " ")})
	case "export":
		return cmd(input.Command{Kind: input.Export})
	case "click":
		if len(args) < 2 || len(args) > 3 {
			return Action{}, errors.New("usage: click <x> <y> [left|right]")
		}
		x, errX := strconv.ParseFloat(args[0], 64)
		y, errY := strconv.ParseFloat(args[1], 64)
		if errX != nil || errY != nil {
			return Action{}, errors.New("click: coordinates must be numbers")
		}
		b := input.Left
		if len(args) == 3 {
			var err error
			if b, err = input.ParseButton(args[2]); err != nil {
				return Action{}, err
			}
		}
		return Action{Events: []input.Event{
			{Type: input.PointerDown, X: x, Y: y, Button: b},
			{Type: input.PointerUp, X: x, Y: y, Button: b},
		}}, nil
	case "status", "help":
		return Action{Builtin: name}, nil
	case "info":
		return Action{Builtin: "info", Verbose: len(args) > 0 && args[0] == "verbose"}, nil
	case "exit", "quit":
		return Action{Builtin: "exit"}, nil
	}
	return Action{}, fmt.Errorf("unknown command %q (try help)", name)
}

// Shell reads lines from the terminal and drives the player.
type Shell struct {
	player  Player
	out     io.Writer
	history string
}

// New creates a shell writing to stdout with history in the user's home.
func New(p Player) *Shell {
	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".loopatron_history")
	}
	return &Shell{player: p, out: os.Stdout, history: history}
}

// Completer completes command and key names.
func (s *Shell) Completer() readline.AutoCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("play"),
		readline.PcItem("seek"),
		readline.PcItem("mark"),
		readline.PcItem("next"),
		readline.PcItem("prev"),
		readline.PcItem("volume"),
		readline.PcItem("open"),
		readline.PcItem("export"),
		readline.PcItem("click"),
		readline.PcItem("status"),
		readline.PcItem("info", readline.PcItem("verbose")),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	}
	for _, k := range input.Keys {
		if len(k) > 1 {
			items = append(items, readline.PcItem(k))
		}
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads lines until exit, EOF, interrupt or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "loopatron> ",
		HistoryFile:     s.history,
		AutoComplete:    s.Completer(),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !s.HandleLine(ctx, line) {
			return nil
		}
	}
}

// HandleLine runs one line and reports whether the shell should continue.
func (s *Shell) HandleLine(ctx context.Context, line string) bool {
	act, err := Parse(line)
	if err != nil {
		fmt.Fprintln(s.out, err)
		return true
	}

	switch act.Builtin {
	case "exit":
		return false
	case "help":
		s.printHelp()
		return true
	case "status":
		s.printStatus(s.player.Status())
		return true
	case "info":
		info := s.player.Info(act.Verbose)
		if info == "" {
			info = "no track loaded"
		}
		fmt.Fprintln(s.out, info)
		return true
	}

	var results []controller.Result
	if act.Command != nil {
		res, err := s.player.Do(ctx, *act.Command)
		if err != nil && res.Err == nil {
			fmt.Fprintln(s.out, err)
			return true
		}
		results = append(results, res)
	}
	for _, ev := range act.Events {
		res, err := s.player.Input(ctx, ev)
		if err != nil {
			fmt.Fprintln(s.out, err)
			return true
		}
		results = append(results, res...)
	}
	for _, res := range results {
		s.report(res)
	}
	return true
}

func (s *Shell) report(res controller.Result) {
	var noSel *export.NoSelectionError
	switch {
	case errors.As(res.Err, &noSel):
		fmt.Fprintln(s.out, "nothing to export: mark a source beat and pick a jump target first")
	case res.Err != nil:
		fmt.Fprintf(s.out, "%s: %v\n", res.Command, res.Err)
	case res.Record != nil:
		fmt.Fprintf(s.out, "exported %d..%d of %s at %s\n", res.Record.LoopStart, res.Record.LoopEnd, res.Record.SourceFilename, res.Token)
	case res.Command.Kind == input.Cycle && res.Beat < 0:
		fmt.Fprintln(s.out, "no earlier jump candidates")
	case res.Beat >= 0:
		fmt.Fprintf(s.out, "%s -> beat %d\n", res.Command, res.Beat)
	default:
		log.Debugf("%s done", res.Command)
	}
}

func (s *Shell) printStatus(st controller.Status) {
	if st.Loading != "" {
		fmt.Fprintf(s.out, "loading %s: %.0f%% %s\n", st.Loading, st.Progress*100, st.Message)
	}
	if st.File == "" {
		fmt.Fprintln(s.out, "no track loaded")
		return
	}
	fmt.Fprintf(s.out, "%s  %s  beat %d/%d  next %d  volume %.2f\n", st.File, st.State, st.Current, st.Beats, st.Planned, st.Volume)
	fmt.Fprintf(s.out, "source %d  target %d  candidates %v  pending %d\n", st.Source, st.Target, st.Candidates, st.Pending)
	if st.LastError != "" {
		fmt.Fprintf(s.out, "last error: %s\n", st.LastError)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintf(s.out, "\nKeys:\n")
	fmt.Fprintf(s.out, "  space                play/pause\n")
	fmt.Fprintf(s.out, "  up / down            volume up/down\n")
	fmt.Fprintf(s.out, "  left / right         previous/next jump candidate\n")
	fmt.Fprintf(s.out, "  m                    mark the playing beat as loop source\n")
	fmt.Fprintf(s.out, "  e                    export the loop\n")
	fmt.Fprintf(s.out, "  o                    open a file\n")
	fmt.Fprintf(s.out, "\nCommands:\n")
	fmt.Fprintf(s.out, "  seek <beat>          play <beat> after the current one\n")
	fmt.Fprintf(s.out, "  mark <beat>          mark <beat> as loop source\n")
	fmt.Fprintf(s.out, "  volume <delta>       change volume\n")
	fmt.Fprintf(s.out, "  open [path]          open a track, or pick one\n")
	fmt.Fprintf(s.out, "  click <x> <y> [btn]  click in the player window\n")
	fmt.Fprintf(s.out, "  status | info [verbose] | help | exit\n\n")
}
