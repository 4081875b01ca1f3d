// Package remix is the in-process analysis engine: it decodes a track, finds
// its beats, groups similar beats into clusters and proposes jumps between
// beats that sound alike.
package remix

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/audio"
	"github.com/satindergrewal/loopatron/internal/jukebox"
)

// silenceThreshold is about -60 dBFS.
const silenceThreshold = 0.001

// DecodeFunc decodes a file to interleaved stereo int16 at rate.
type DecodeFunc func(path string, rate int) ([]int16, error)

// Cache stores serialized analysis results.
type Cache interface {
	GetAnalysis(key string) ([]byte, bool, error)
	PutAnalysis(key, filename string, data []byte) error
}

// Engine implements jukebox.Engine.
type Engine struct {
	sampleRate int
	cache      Cache
	decode     DecodeFunc
	seed       uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithSampleRate sets the rate beats are rendered at.
func WithSampleRate(rate int) Option {
	return func(e *Engine) {
		e.sampleRate = rate
	}
}

// WithCache reuses earlier results for unchanged files.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithDecoder replaces the file decoder.
func WithDecoder(fn DecodeFunc) Option {
	return func(e *Engine) {
		e.decode = fn
	}
}

// WithSeed fixes the clustering seed.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.seed = seed
	}
}

// New creates an engine rendering at audio.SampleRate.
func New(opts ...Option) *Engine {
	e := &Engine{sampleRate: audio.SampleRate, decode: Decode, seed: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decode reads WAV files natively when they already match rate and hands
// everything else to FFmpeg.
func Decode(path string, rate int) ([]int16, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, sr, err := audio.ReadWAV(path)
		if err == nil && sr == rate {
			return samples, nil
		}
		if err != nil {
			log.Debugf("Native wav decode failed for %s, trying ffmpeg: %v", path, err)
		}
	}
	return audio.DecodeFile(path, rate)
}

// Build analyzes path and returns its beat graph.
func (e *Engine) Build(ctx context.Context, path string, opts jukebox.Options, progress jukebox.ProgressFunc) (*jukebox.Graph, jukebox.Meta, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}

	progress(0, "decoding audio")
	samples, err := e.decode(path, e.sampleRate)
	if err != nil {
		return nil, jukebox.Meta{}, err
	}
	if len(samples) < audio.Channels {
		return nil, jukebox.Meta{}, fmt.Errorf("%s decoded to no audio", path)
	}

	mono := toMono(samples, audio.Channels)
	start := leadingSilence(mono, silenceThreshold)
	mono = mono[start:]
	region := samples[start*audio.Channels : len(mono)*audio.Channels+start*audio.Channels]

	meta := jukebox.Meta{
		Filename:   path,
		Duration:   float64(len(mono)) / float64(e.sampleRate),
		SampleRate: e.sampleRate,
		StartIndex: int64(start),
	}

	var key string
	if e.cache != nil {
		if key, err = cacheKey(path, opts, e.sampleRate); err != nil {
			log.Warnf("Analysis cache disabled for %s: %v", path, err)
			key = ""
		}
	}
	if key != "" {
		if res, ok := e.lookup(key); ok && res.fits(len(mono)) {
			progress(0.9, "using cached analysis")
			g, meta := res.build(region, meta)
			progress(1, "done")
			return g, meta, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, jukebox.Meta{}, err
	}
	progress(0.15, "computing spectrogram")
	sp := analyze(mono, e.sampleRate)

	if err := ctx.Err(); err != nil {
		return nil, jukebox.Meta{}, err
	}
	progress(0.5, "tracking beats")
	period, bpm := estimateTempo(sp.onset, e.sampleRate)
	bounds := beatBounds(trackBeats(sp.onset, period), period, len(mono))
	if len(bounds) < 3 {
		return nil, jukebox.Meta{}, fmt.Errorf("found %d beats, need at least 2", max(len(bounds)-1, 0))
	}

	progress(0.65, "extracting beat features")
	feats := beatFeatures(sp, bounds)

	if err := ctx.Err(); err != nil {
		return nil, jukebox.Meta{}, err
	}
	progress(0.75, "clustering beats")
	rng := rand.New(rand.NewPCG(e.seed, e.seed^0x9e3779b97f4a7c15))
	labels, k, diag := chooseClusters(feats, opts.Clusters, opts.MaxClusters, opts.UseV1, rng)
	seg := segments(labels)

	res := &result{
		Bounds:      bounds,
		Labels:      labels,
		Candidates:  candidates(labels, seg, feats),
		Tempo:       bpm,
		Clusters:    k,
		Diagnostics: diag,
	}
	if key != "" {
		e.save(key, path, res)
	}

	g, meta := res.build(region, meta)
	progress(1, "done")
	log.Printf("Analyzed %s: %d beats, %.1f bpm, %d clusters", filepath.Base(path), g.Len(), bpm, k)
	return g, meta, nil
}

// beatBounds turns beat frames into contiguous sample boundaries. The last
// beat runs one period or to the end of the audio.
func beatBounds(beats []int, period float64, total int) []int64 {
	var bounds []int64
	for _, b := range beats {
		s := int64(b * hopSize)
		if s >= int64(total) {
			break
		}
		if len(bounds) > 0 && s <= bounds[len(bounds)-1] {
			continue
		}
		bounds = append(bounds, s)
	}
	if len(bounds) == 0 {
		return nil
	}
	end := bounds[len(bounds)-1] + int64(period*hopSize)
	if end > int64(total) {
		end = int64(total)
	}
	if end <= bounds[len(bounds)-1] {
		bounds = bounds[:len(bounds)-1]
		return bounds
	}
	return append(bounds, end)
}
