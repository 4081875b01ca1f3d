package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	log "github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/loopatron/internal/audio"
)

// opusRates are the input rates the Opus encoder accepts.
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// errFull is returned when the peer cap is reached.
var errFull = errors.New("too many webrtc listeners")

// encoder turns one PCM frame into one compressed packet.
type encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// WebRTCHandler answers SDP offers and streams the remix to each peer as Opus.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	sampleRate  int
	bitrate     int
	maxPeers    int

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]peer
}

type peer struct {
	since    time.Time
	listener *Listener
}

// WebRTCOption configures a WebRTCHandler.
type WebRTCOption func(*WebRTCHandler)

// WithMaxPeers caps concurrent peers. Zero means no cap.
func WithMaxPeers(n int) WebRTCOption {
	return func(h *WebRTCHandler) {
		h.maxPeers = n
	}
}

// NewWebRTCHandler creates a handler for PCM at sampleRate.
func NewWebRTCHandler(b *Broadcaster, sampleRate int, opts ...WebRTCOption) (*WebRTCHandler, error) {
	if !opusRates[sampleRate] {
		return nil, fmt.Errorf("opus cannot encode %d Hz audio", sampleRate)
	}
	h := &WebRTCHandler{
		broadcaster: b,
		sampleRate:  sampleRate,
		bitrate:     128000,
		maxPeers:    8,
		peers:       make(map[*webrtc.PeerConnection]peer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// PeerCount returns the number of connected peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close hangs up on every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*webrtc.PeerConnection]peer)
	h.mu.Unlock()
	for pc, p := range peers {
		h.broadcaster.Unsubscribe(p.listener)
		pc.Close()
	}
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	answer, err := h.answer(offer)
	switch {
	case errors.Is(err, errFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		log.WithField("remote", r.RemoteAddr).Warnf("WebRTC offer rejected: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

// answer negotiates a peer for offer and starts streaming to it once ICE
// gathering is done.
func (h *WebRTCHandler) answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if h.maxPeers > 0 && h.PeerCount() >= h.maxPeers {
		return nil, errFull
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: audio.Channels},
		"remix",
		"loopatron",
	)
	if err == nil {
		_, err = pc.AddTrack(track)
	}
	if err == nil {
		err = pc.SetRemoteDescription(offer)
	}
	var local webrtc.SessionDescription
	if err == nil {
		local, err = pc.CreateAnswer(nil)
	}
	if err == nil {
		err = pc.SetLocalDescription(local)
	}
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("negotiate: %w", err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	enc, err := opus.NewEncoder(h.sampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		log.Warnf("WebRTC: keeping default opus bitrate: %v", err)
	}

	l := h.broadcaster.Subscribe(KindWebRTC)
	h.mu.Lock()
	h.peers[pc] = peer{since: time.Now(), listener: l}
	n := len(h.peers)
	h.mu.Unlock()
	log.WithField("peers", n).Info("WebRTC peer connected")

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			if p, ok := h.removePeer(pc); ok {
				h.broadcaster.Unsubscribe(p.listener)
				pc.Close()
				log.WithFields(log.Fields{"peers": h.PeerCount(), "listened": time.Since(p.since).Round(time.Second)}).
					Info("WebRTC peer disconnected")
			}
		}
	})

	go func() {
		defer h.broadcaster.Unsubscribe(l)
		pump(l, enc, track.WriteSample)
	}()
	return pc.LocalDescription(), nil
}

// pump encodes frames from l and writes them until the listener stops or a
// write fails. Frames that fail to encode are skipped.
func pump(l *Listener, enc encoder, write func(media.Sample) error) {
	buf := make([]byte, 4000)
	for {
		select {
		case <-l.Done():
			return
		case frame, ok := <-l.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, buf)
			if err != nil {
				log.Debugf("WebRTC: dropping frame: %v", err)
				continue
			}
			if err := write(media.Sample{Data: buf[:n], Duration: audio.FrameDuration}); err != nil {
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) (peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[pc]
	delete(h.peers, pc)
	return p, ok
}
