// Package controller runs the player: one goroutine owns the beat graph, the
// playback queue, the loop selection and the timeline, and everything else
// talks to it through channels.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/audio"
	"github.com/satindergrewal/loopatron/internal/config"
	"github.com/satindergrewal/loopatron/internal/export"
	"github.com/satindergrewal/loopatron/internal/input"
	"github.com/satindergrewal/loopatron/internal/jukebox"
	"github.com/satindergrewal/loopatron/internal/playback"
	"github.com/satindergrewal/loopatron/internal/selector"
	"github.com/satindergrewal/loopatron/internal/timeline"
)

// Device is the output channel the controller plays through.
type Device interface {
	playback.Output
	Events() <-chan audio.Event
	SetVolume(v float64)
	Volume() float64
}

// Picker asks the user for a file. An empty path means the user cancelled.
type Picker interface {
	PickFile() (string, error)
}

// Notifier tells the user about a finished export.
type Notifier interface {
	Notify(title, text string)
}

// Options configures a Controller.
type Options struct {
	Analysis   jukebox.Options
	Layout     config.Layout
	TickRate   int
	Volume     float64
	VolumeStep float64
	Verbose    bool
	Picker     Picker
	Notifier   Notifier
}

// OptionsFromConfig copies the player settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Analysis: jukebox.Options{
			Clusters:    cfg.Clusters,
			MaxClusters: cfg.MaxClusters,
			UseV1:       cfg.UseV1,
		},
		Layout:     cfg.Layout,
		TickRate:   cfg.TickRate,
		Volume:     cfg.Volume,
		VolumeStep: cfg.VolumeStep,
		Verbose:    cfg.Verbose,
	}
}

// Result is what one command did.
type Result struct {
	Command input.Command  `json:"-"`
	Beat    int            `json:"beat"`
	Record  *export.Record `json:"record,omitempty"`
	Token   string         `json:"token,omitempty"`
	Err     error          `json:"-"`
}

type request struct {
	ev    *input.Event
	cmd   input.Command
	reply chan []Result
}

type loadResult struct {
	seq   int
	path  string
	graph *jukebox.Graph
	meta  jukebox.Meta
	err   error
}

// session is everything tied to one loaded graph.
type session struct {
	graph    *jukebox.Graph
	meta     jukebox.Meta
	mapper   *timeline.Mapper
	queue    *playback.Queue
	selector *selector.Selector
}

// Controller is the player's control loop.
type Controller struct {
	engine   jukebox.Engine
	out      Device
	exporter *export.Exporter
	opts     Options
	dispatch *input.Dispatcher

	requests chan request
	loads    chan loadResult
	progress chan jukebox.Progress

	// Owned by the loop goroutine.
	ctx        context.Context
	sess       *session
	loadSeq    int
	loadCancel context.CancelFunc
	loading    string
	prog       jukebox.Progress
	lastErr    string
	lastExport *export.Record
	lastToken  string

	mu     sync.RWMutex
	status Status
	info   [2]string // plain, verbose
}

// New creates a controller. Nothing plays until a file is opened.
func New(engine jukebox.Engine, out Device, exporter *export.Exporter, opts Options) *Controller {
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	c := &Controller{
		engine:   engine,
		out:      out,
		exporter: exporter,
		opts:     opts,
		dispatch: input.NewDispatcher(input.NewLayout(opts.Layout), opts.VolumeStep),
		requests: make(chan request, 64),
		loads:    make(chan loadResult, 4),
		progress: make(chan jukebox.Progress, 16),
		ctx:      context.Background(),
	}
	out.SetVolume(audio.ClampVolume(opts.Volume))
	c.publish()
	return c
}

// Layout returns the control layout pointer coordinates refer to.
func (c *Controller) Layout() input.Layout {
	return c.dispatch.Layout()
}

// Run ticks the control loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	ticker := time.NewTicker(time.Second / time.Duration(c.opts.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.loadCancel != nil {
				c.loadCancel()
			}
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick applies input, then finished loads, then device events, and
// publishes the resulting state.
func (c *Controller) tick() {
	c.drainRequests()
	c.drainLoads()
	c.drainEvents()
	c.publish()
}

func (c *Controller) drainRequests() {
	for {
		select {
		case req := <-c.requests:
			c.serve(req)
		default:
			return
		}
	}
}

func (c *Controller) drainLoads() {
	for {
		select {
		case p := <-c.progress:
			c.prog = p
		case res := <-c.loads:
			c.applyLoad(res)
		default:
			return
		}
	}
}

func (c *Controller) serve(req request) {
	var results []Result
	if req.ev != nil {
		for _, cmd := range c.dispatch.Handle(*req.ev) {
			results = append(results, c.apply(cmd))
		}
	} else {
		results = append(results, c.apply(req.cmd))
	}
	if req.reply != nil {
		req.reply <- results
	}
}

func (c *Controller) submit(ctx context.Context, req request) ([]Result, error) {
	req.reply = make(chan []Result, 1)
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Input feeds a raw pointer or key event through the dispatcher and waits
// for the commands it produced to run.
func (c *Controller) Input(ctx context.Context, ev input.Event) ([]Result, error) {
	return c.submit(ctx, request{ev: &ev})
}

// Do runs one command on the loop and waits for it.
func (c *Controller) Do(ctx context.Context, cmd input.Command) (Result, error) {
	res, err := c.submit(ctx, request{cmd: cmd})
	if err != nil {
		return Result{Command: cmd, Beat: -1}, err
	}
	return res[0], res[0].Err
}

// drainEvents handles every beat-finished event the device has reported.
func (c *Controller) drainEvents() {
	for {
		select {
		case ev := <-c.out.Events():
			c.onBeatFinished(ev)
		default:
			return
		}
	}
}

func (c *Controller) onBeatFinished(ev audio.Event) {
	s := c.sess
	if s == nil {
		return
	}
	beat, err := s.queue.OnBeatFinished(ev)
	if err != nil {
		c.fail(err)
		return
	}
	if err := s.selector.OnBeatFinished(); err != nil {
		c.fail(err)
		return
	}
	log.Debugf("Beat %d -> %d", ev.Finished, beat)
}

// fail records err for the status and logs it once.
func (c *Controller) fail(err error) {
	c.lastErr = err.Error()

	var oor *timeline.OutOfRangeError
	var dev *playback.DeviceError
	switch {
	case errors.As(err, &oor):
		log.WithFields(log.Fields{"offset": oor.Offset, "first": oor.First, "end": oor.End}).Errorf("Timeline lookup failed: %v", err)
	case errors.As(err, &dev):
		// The queue logged it and went idle.
	default:
		log.Errorf("%v", err)
	}
}

// --- Loading ---

func (c *Controller) open(path string) {
	if path != "" {
		c.startLoad(path)
		return
	}
	if c.opts.Picker == nil {
		c.fail(errors.New("open: no file given and no file picker available"))
		return
	}
	ctx := c.ctx
	go func() {
		p, err := c.opts.Picker.PickFile()
		if err != nil {
			log.Warnf("File picker failed: %v", err)
			return
		}
		if p == "" {
			log.Println("Open cancelled")
			return
		}
		select {
		case c.requests <- request{cmd: input.Command{Kind: input.Open, Path: p}}:
		case <-ctx.Done():
		}
	}()
}

// startLoad analyzes path in the background. A newer load supersedes an
// older one still running.
func (c *Controller) startLoad(path string) {
	if c.loadCancel != nil {
		c.loadCancel()
	}
	c.loadSeq++
	seq := c.loadSeq
	parent := c.ctx
	ctx, cancel := context.WithCancel(parent)
	c.loadCancel = cancel
	c.loading = path
	c.prog = jukebox.Progress{Message: "starting"}
	log.Printf("Loading %s", path)

	go func() {
		g, meta, err := jukebox.Load(ctx, c.engine, path, c.opts.Analysis, func(f float64, msg string) {
			select {
			case c.progress <- jukebox.Progress{Fraction: f, Message: msg}:
			default:
			}
		})
		select {
		case c.loads <- loadResult{seq: seq, path: path, graph: g, meta: meta, err: err}:
		case <-parent.Done():
		}
	}()
}

func (c *Controller) applyLoad(res loadResult) {
	if res.seq != c.loadSeq {
		return
	}
	c.loading = ""
	c.loadCancel = nil
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			return
		}
		c.fail(res.err)
		return
	}
	if err := c.install(res.graph, res.meta); err != nil {
		c.fail(err)
		return
	}
	c.lastErr = ""
	log.Printf("Loaded %s: %d beats", res.meta.Basename(), res.graph.Len())
	if c.opts.Verbose {
		log.Info("\n" + c.Info(true))
	}
}

// install replaces the session with a fresh one for g, paused on beat 0.
func (c *Controller) install(g *jukebox.Graph, meta jukebox.Meta) error {
	l := c.opts.Layout
	s := &session{graph: g, meta: meta}
	s.mapper = timeline.New(g, l.BarX, l.BarWidth)
	s.queue = playback.New(c.out, g, nil, s.mapper)
	s.selector = selector.New(g, s.mapper, s.queue)
	s.queue.SetAnchor(s.selector)
	c.sess = s
	c.lastExport, c.lastToken = nil, ""

	c.mu.Lock()
	c.info = [2]string{jukebox.Info(g, meta, false), jukebox.Info(g, meta, true)}
	c.mu.Unlock()

	return s.queue.Initialize(0)
}

// --- Commands ---

func (c *Controller) apply(cmd input.Command) Result {
	res := Result{Command: cmd, Beat: -1}
	log.Debugf("Command %s", cmd)

	switch cmd.Kind {
	case input.Open:
		c.open(cmd.Path)
		return res
	case input.Volume:
		v := audio.ClampVolume(c.out.Volume() + cmd.Volume)
		c.out.SetVolume(v)
		log.Printf("Volume %.2f", v)
		return res
	case input.BeatToLastSelected, input.ToggleTrim:
		log.Printf("%s is not wired", cmd.Kind)
		return res
	}

	s := c.sess
	if s == nil {
		res.Err = errors.New("no track loaded")
		return res
	}

	switch cmd.Kind {
	case input.TogglePlay:
		state := s.queue.Toggle()
		res.Beat = s.queue.Current()
		log.Printf("Playback %s", state)
	case input.Seek:
		res.Beat, res.Err = c.seekTo(s, s.mapper.ToSample(cmd.X))
	case input.SeekBeat:
		if !s.graph.Valid(cmd.Beat) {
			res.Err = fmt.Errorf("seek: no beat %d", cmd.Beat)
			break
		}
		res.Beat, res.Err = c.seekTo(s, s.graph.Beats[cmd.Beat].Start)
	case input.MarkSource:
		off := s.mapper.ToSample(cmd.X)
		s.mapper.SetSelection(off)
		res.Beat, res.Err = s.selector.MarkSource(off)
	case input.MarkAtScroll:
		res.Beat, res.Err = s.selector.MarkSource(s.mapper.Scroll())
	case input.MarkBeat:
		if !s.graph.Valid(cmd.Beat) {
			res.Err = fmt.Errorf("mark: no beat %d", cmd.Beat)
			break
		}
		off := s.graph.Beats[cmd.Beat].Start
		s.mapper.SetSelection(off)
		res.Beat, res.Err = s.selector.MarkSource(off)
	case input.Cycle:
		target, ok, err := s.selector.Cycle(cmd.Delta)
		res.Beat, res.Err = target, err
		if !ok && err == nil {
			log.Println("No earlier jump candidates; selection cleared")
		}
	case input.Export:
		c.export(s, &res)
	}

	if res.Err != nil {
		var noSel *export.NoSelectionError
		if errors.As(res.Err, &noSel) {
			log.Printf("Nothing to export: %v", res.Err)
		} else {
			c.fail(res.Err)
		}
	}
	return res
}

// seekTo moves the scroll cursor to off, snaps it to its beat and, when that
// beat starts somewhere other than the sounding one, retargets playback.
func (c *Controller) seekTo(s *session, off int64) (int, error) {
	s.mapper.SetScroll(off)
	id, err := s.mapper.SnapScroll()
	if err != nil {
		return -1, err
	}
	if cur := s.queue.Current(); cur >= 0 && s.graph.Beats[cur].Start == s.graph.Beats[id].Start {
		return id, nil
	}
	return id, s.queue.Seek(id)
}

func (c *Controller) export(s *session, res *Result) {
	source, target := s.selector.SourceBeat(), s.selector.JumpTarget()
	rec, token, err := c.exporter.Export(s.graph, s.meta, source, target)
	if err != nil {
		res.Err = err
		return
	}
	res.Beat = source
	res.Record = &rec
	res.Token = token
	c.lastExport, c.lastToken = &rec, token
	if n := c.opts.Notifier; n != nil {
		go n.Notify("Loop exported", fmt.Sprintf("%s: %d to %d\nsaved %s", rec.SourceFilename, rec.LoopStart, rec.LoopEnd, token))
	}
}
