package jukebox

import (
	"context"
	"fmt"
)

// Options control how an Engine analyzes a track.
type Options struct {
	Clusters    int  // 0 selects the cluster count automatically
	MaxClusters int  // upper bound for automatic selection
	UseV1       bool // older automatic cluster selection
}

// Progress is one progress report from a running analysis.
type Progress struct {
	Fraction float64
	Message  string
}

// ProgressFunc receives analysis progress. fraction is in [0, 1].
type ProgressFunc func(fraction float64, message string)

// Engine turns an audio file into a beat graph.
type Engine interface {
	Build(ctx context.Context, path string, opts Options, progress ProgressFunc) (*Graph, Meta, error)
}

// ConstructionError reports that a graph could not be built for a file.
// The previously loaded graph, if any, stays in use.
type ConstructionError struct {
	Path string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("build beat graph for %s: %v", e.Path, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// Load runs engine and validates the result, wrapping every failure in a
// ConstructionError.
func Load(ctx context.Context, engine Engine, path string, opts Options, progress ProgressFunc) (*Graph, Meta, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}
	g, meta, err := engine.Build(ctx, path, opts, progress)
	if err != nil {
		return nil, Meta{}, &ConstructionError{Path: path, Err: err}
	}
	if err := g.Validate(); err != nil {
		return nil, Meta{}, &ConstructionError{Path: path, Err: err}
	}
	if meta.Filename == "" {
		meta.Filename = path
	}
	return g, meta, nil
}
