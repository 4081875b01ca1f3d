package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/loopatron/internal/audio"
)

// HTTPHandler serves the remix as a chunked MP3 stream. Every client gets its
// own FFmpeg encoder.
type HTTPHandler struct {
	broadcaster *Broadcaster
	sampleRate  int
	bitrate     string
	encoder     string
}

// NewHTTPHandler creates an HTTP stream handler for PCM at sampleRate.
func NewHTTPHandler(b *Broadcaster, sampleRate int) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, sampleRate: sampleRate, bitrate: "192k", encoder: "ffmpeg"}
}

// encoderArgs are the FFmpeg arguments for PCM stdin -> MP3 stdout.
func (h *HTTPHandler) encoderArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(h.sampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", h.bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.encoder, h.encoderArgs()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Errorf("HTTP stream: stdin pipe: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Errorf("HTTP stream: stdout pipe: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Warnf("HTTP stream: %s not started: %v", h.encoder, err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "loopatron")

	listener := h.broadcaster.Subscribe(KindHTTP)
	defer h.broadcaster.Unsubscribe(listener)

	entry := log.WithField("remote", r.RemoteAddr)
	entry.WithField("listeners", h.broadcaster.ListenerCount()).Info("HTTP listener connected")
	defer func() {
		entry.WithField("dropped_frames", listener.Dropped()).Info("HTTP listener disconnected")
	}()

	go func() {
		defer stdin.Close()
		feed(ctx, listener, stdin)
	}()

	if _, err := io.CopyBuffer(flushWriter{w, flusher}, stdout, make([]byte, 4096)); err != nil {
		entry.Debugf("HTTP stream ended: %v", err)
	}
	cancel()
	cmd.Wait()
}

// feed writes PCM frames from l to w as little-endian bytes until ctx is done,
// the listener stops or a write fails.
func feed(ctx context.Context, l *Listener, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame, ok := <-l.C:
			if !ok {
				return
			}
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}

// flushWriter pushes every chunk to the client as soon as it is written.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}
