// Package api exposes the player over HTTP: pointer and key events in, status
// and track info out.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/controller"
	"github.com/satindergrewal/loopatron/internal/export"
	"github.com/satindergrewal/loopatron/internal/input"
	"github.com/satindergrewal/loopatron/internal/store"
)

// Player is the part of the controller the API drives.
type Player interface {
	Input(ctx context.Context, ev input.Event) ([]controller.Result, error)
	Do(ctx context.Context, cmd input.Command) (controller.Result, error)
	Status() controller.Status
	Info(verbose bool) string
}

// History lists past exports.
type History interface {
	Exports(limit int) ([]store.Export, error)
}

// Server routes API requests to the player.
type Server struct {
	player    Player
	history   History
	listeners func() map[string]int
	timeout   time.Duration
	mux       *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithHistory serves /api/exports from h.
func WithHistory(h History) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithListeners adds listener counts to the status.
func WithListeners(fn func() map[string]int) Option {
	return func(s *Server) {
		s.listeners = fn
	}
}

// New creates the API routes.
func New(p Player, opts ...Option) *Server {
	s := &Server{player: p, timeout: 5 * time.Second, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/info", s.handleInfo)
	s.mux.HandleFunc("/api/pointer", s.handlePointer)
	s.mux.HandleFunc("/api/key", s.handleKey)
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/open", s.handleOpen)
	s.mux.HandleFunc("/api/exports", s.handleExports)
	return s
}

// Handle mounts another handler, such as an audio stream, on the same mux.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.player.Status()
	out := map[string]any{"player": st}
	if s.listeners != nil {
		out["listeners"] = s.listeners()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	verbose, _ := strconv.ParseBool(r.URL.Query().Get("verbose"))
	info := s.player.Info(verbose)
	if info == "" {
		http.Error(w, "no track loaded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(info))
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Button string  `json:"button"`
		Action string  `json:"action"` // down, move, up or click
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	b, err := input.ParseButton(req.Button)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var events []input.Event
	switch req.Action {
	case "down":
		events = []input.Event{{Type: input.PointerDown, X: req.X, Y: req.Y, Button: b}}
	case "move":
		events = []input.Event{{Type: input.PointerMove, X: req.X, Y: req.Y}}
	case "up":
		events = []input.Event{{Type: input.PointerUp, X: req.X, Y: req.Y, Button: b}}
	case "", "click":
		events = []input.Event{
			{Type: input.PointerDown, X: req.X, Y: req.Y, Button: b},
			{Type: input.PointerUp, X: req.X, Y: req.Y, Button: b},
		}
	default:
		http.Error(w, "action must be down, move, up or click", http.StatusBadRequest)
		return
	}
	s.runEvents(w, r, events)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Key    string `json:"key"`
		Action string `json:"action"` // down, up or press
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	t := input.KeyPress
	switch req.Action {
	case "down":
		t = input.KeyDown
	case "up":
		t = input.KeyUp
	case "", "press":
	default:
		http.Error(w, "action must be down, up or press", http.StatusBadRequest)
		return
	}
	s.runEvents(w, r, []input.Event{{Type: t, Key: req.Key}})
}

func (s *Server) runEvents(w http.ResponseWriter, r *http.Request, events []input.Event) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	var results []controller.Result
	for _, ev := range events {
		res, err := s.player.Input(ctx, ev)
		if err != nil {
			http.Error(w, "player busy", http.StatusServiceUnavailable)
			return
		}
		results = append(results, res...)
	}

	commands := make([]map[string]any, 0, len(results))
	for _, res := range results {
		c := map[string]any{"command": res.Command.String(), "beat": res.Beat}
		if res.Err != nil {
			c["error"] = res.Err.Error()
		}
		commands = append(commands, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "commands": commands})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.player.Do(ctx, input.Command{Kind: input.Export})
	var noSel *export.NoSelectionError
	switch {
	case errors.As(err, &noSel):
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, "player busy", http.StatusServiceUnavailable)
	case err != nil:
		log.Warnf("Export request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "record": res.Record, "token": res.Token})
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if _, err := s.player.Do(ctx, input.Command{Kind: input.Open, Path: req.Path}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	// Loading runs in the background; poll /api/status for progress.
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "path": req.Path})
}

func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "export history disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := s.history.Exports(limit)
	if err != nil {
		log.Warnf("Listing exports failed: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
