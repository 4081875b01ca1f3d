package remix

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/audio"
	"github.com/satindergrewal/loopatron/internal/jukebox"
)

// cacheVersion changes whenever the analysis output would change.
const cacheVersion = 1

// result is the analysis minus the audio, as stored in the cache.
type result struct {
	Bounds      []int64 `json:"bounds"`
	Labels      []int   `json:"labels"`
	Candidates  [][]int `json:"candidates"`
	Tempo       float64 `json:"tempo"`
	Clusters    int     `json:"clusters"`
	Diagnostics string  `json:"diagnostics"`
}

// fits reports whether the result matches a region of the given length.
func (r *result) fits(frames int) bool {
	n := len(r.Bounds) - 1
	return n >= 1 && len(r.Labels) == n && len(r.Candidates) == n && r.Bounds[n] <= int64(frames)
}

func (r *result) build(region []int16, meta jukebox.Meta) (*jukebox.Graph, jukebox.Meta) {
	seg := segments(r.Labels)
	g := assemble(region, audio.Channels, meta.SampleRate, r.Bounds, r.Labels, seg, r.Candidates)
	meta.Tempo = r.Tempo
	meta.Clusters = r.Clusters
	meta.Segments = seg[len(seg)-1] + 1
	meta.Diagnostics = r.Diagnostics
	return g, meta
}

// fileHash fingerprints a file by its size and its first and last megabyte.
func fileHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	size := info.Size()
	const chunk = int64(1 << 20)

	h := md5.New()
	fmt.Fprintf(h, "%d", size)

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.CopyN(h, f, min(chunk, size)); err != nil && err != io.EOF {
		return "", err
	}
	if size > 2*chunk {
		if _, err := f.Seek(-chunk, io.SeekEnd); err != nil {
			return "", err
		}
		if _, err := io.CopyN(h, f, chunk); err != nil && err != io.EOF {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func cacheKey(path string, opts jukebox.Options, rate int) (string, error) {
	hash, err := fileHash(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("v%d:%s:%d:c%d:m%d:v1=%t", cacheVersion, hash, rate, opts.Clusters, opts.MaxClusters, opts.UseV1), nil
}

func (e *Engine) lookup(key string) (*result, bool) {
	data, ok, err := e.cache.GetAnalysis(key)
	if err != nil {
		log.Warnf("Analysis cache read failed: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res result
	if err := json.Unmarshal(data, &res); err != nil {
		log.Warnf("Discarding corrupt cached analysis %s: %v", key, err)
		return nil, false
	}
	return &res, true
}

func (e *Engine) save(key, path string, res *result) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Warnf("Analysis not cached: %v", err)
		return
	}
	if err := e.cache.PutAnalysis(key, path, data); err != nil {
		log.Warnf("Analysis not cached: %v", err)
	}
}
