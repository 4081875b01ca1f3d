// Package export writes the selected loop points for the looping audio
// converter.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/audio"
	"github.com/satindergrewal/loopatron/internal/jukebox"
)

const (
	// LoopFile is the converter's fixed input name, overwritten on every export.
	LoopFile = "loop.txt"
	// PreviewFile holds the rendered loop body when previews are enabled.
	PreviewFile = "loop.wav"

	TokenLayout = "2006-01-02 15:04:05"
)

// NoSelectionError means no complete loop was selected. Nothing is written.
type NoSelectionError struct {
	Source int
	Target int
}

func (e *NoSelectionError) Error() string {
	return fmt.Sprintf("no loop selected (source %d, jump target %d)", e.Source, e.Target)
}

// Record is one exported loop: sample offsets into the source file.
type Record struct {
	LoopStart      int64  `json:"loop_start"`
	LoopEnd        int64  `json:"loop_end"`
	SourceFilename string `json:"source_filename"`
}

// String renders the record in the converter's line format.
func (r Record) String() string {
	return fmt.Sprintf("\n%d %d %s", r.LoopStart, r.LoopEnd, r.SourceFilename)
}

// History keeps a log of exports.
type History interface {
	RecordExport(rec Record, token string) error
}

// Exporter writes loop records into a directory.
type Exporter struct {
	dir     string
	preview bool
	history History
	now     func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPreview also renders the loop body to PreviewFile.
func WithPreview(enabled bool) Option {
	return func(e *Exporter) {
		e.preview = enabled
	}
}

// WithHistory records every export in h.
func WithHistory(h History) Option {
	return func(e *Exporter) {
		e.history = h
	}
}

// WithClock replaces time.Now for tokens.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// New creates an exporter writing into dir.
func New(dir string, opts ...Option) *Exporter {
	e := &Exporter{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dir returns the output directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Loop computes the record for a loop that plays from target up to the end
// of source, offset by the analyzed region's start in the source file.
func Loop(g *jukebox.Graph, meta jukebox.Meta, source, target int) (Record, error) {
	if source < 0 || target < 0 {
		return Record{}, &NoSelectionError{Source: source, Target: target}
	}
	if !g.Valid(source) || !g.Valid(target) {
		return Record{}, fmt.Errorf("loop beats %d and %d out of range [0, %d)", target, source, g.Len())
	}
	rec := Record{
		LoopStart:      meta.StartIndex + g.Beats[target].Start,
		LoopEnd:        meta.StartIndex + g.Beats[source].Stop,
		SourceFilename: meta.Basename(),
	}
	if rec.LoopStart >= rec.LoopEnd {
		return Record{}, fmt.Errorf("loop start %d is not before loop end %d", rec.LoopStart, rec.LoopEnd)
	}
	return rec, nil
}

// Export writes the loop record and returns it with a timestamp token.
func (e *Exporter) Export(g *jukebox.Graph, meta jukebox.Meta, source, target int) (Record, string, error) {
	rec, err := Loop(g, meta, source, target)
	if err != nil {
		return Record{}, "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Record{}, "", fmt.Errorf("create output dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(e.dir, LoopFile), []byte(rec.String())); err != nil {
		return Record{}, "", err
	}

	if e.preview {
		if err := e.writePreview(g, source, target); err != nil {
			log.Warnf("Loop preview not written: %v", err)
		}
	}

	token := e.now().Format(TokenLayout)
	if e.history != nil {
		if err := e.history.RecordExport(rec, token); err != nil {
			log.Warnf("Export history not updated: %v", err)
		}
	}

	log.Printf("Exported loop %d..%d of %s", rec.LoopStart, rec.LoopEnd, rec.SourceFilename)
	return rec, token, nil
}

// writePreview renders beats target..source back to back.
func (e *Exporter) writePreview(g *jukebox.Graph, source, target int) error {
	var samples []int16
	for id := target; id <= source; id++ {
		samples = append(samples, g.Beats[id].Buffer...)
	}
	return audio.WriteWAV(filepath.Join(e.dir, PreviewFile), samples, g.SampleRate)
}

// writeFileAtomic writes to a temp file in the same directory, then renames.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".loop-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
