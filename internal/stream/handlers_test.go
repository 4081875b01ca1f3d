package stream

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

func TestEncoderArgsFollowRate(t *testing.T) {
	h := NewHTTPHandler(NewBroadcaster(), 44100)
	args := h.encoderArgs()
	i := slices.Index(args, "-ar")
	if i < 0 || args[i+1] != "44100" {
		t.Errorf("args = %v, want -ar 44100", args)
	}
	if j := slices.Index(args, "-ac"); j < 0 || args[j+1] != "2" {
		t.Errorf("args = %v, want stereo input", args)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("encoder should write to stdout: %v", args)
	}
}

func TestNewWebRTCHandlerRates(t *testing.T) {
	if _, err := NewWebRTCHandler(NewBroadcaster(), 44100); err == nil {
		t.Error("44.1 kHz should be rejected for opus")
	}
	if _, err := NewWebRTCHandler(NewBroadcaster(), 48000); err != nil {
		t.Errorf("48 kHz: %v", err)
	}
}

func TestWebRTCHandlerRejects(t *testing.T) {
	h, err := NewWebRTCHandler(NewBroadcaster(), 48000)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"preflight", http.MethodOptions, "", http.StatusOK},
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad offer", http.MethodPost, "{not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/offer", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d after rejected offers", h.PeerCount())
	}
}

func TestWebRTCHandlerFull(t *testing.T) {
	h, err := NewWebRTCHandler(NewBroadcaster(), 48000, WithMaxPeers(1))
	if err != nil {
		t.Fatal(err)
	}
	h.peers[nil] = peer{since: time.Now()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/offer", strings.NewReader(`{"type":"offer","sdp":"v=0"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when full", rec.Code)
	}
}

// --- Opus pump ---

type lenEncoder struct{ fail int }

func (e *lenEncoder) Encode(pcm []int16, data []byte) (int, error) {
	if e.fail > 0 {
		e.fail--
		return 0, errors.New("bad frame")
	}
	data[0] = byte(len(pcm))
	return 1, nil
}

func TestPumpSkipsBadFramesAndStopsOnClose(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe(KindWebRTC)
	for i := 1; i <= 3; i++ {
		l.C <- make([]int16, i*2)
	}
	close(l.C)

	var got []byte
	pump(l, &lenEncoder{fail: 1}, func(s media.Sample) error {
		got = append(got, s.Data[0])
		if s.Duration != 20*time.Millisecond {
			t.Errorf("sample duration = %v", s.Duration)
		}
		return nil
	})
	if len(got) != 2 || got[0] != 4 || got[1] != 6 {
		t.Errorf("written = %v, want frames 2 and 3", got)
	}
}

func TestPumpStopsOnWriteError(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe(KindWebRTC)
	l.C <- make([]int16, 4)
	l.C <- make([]int16, 4)

	writes := 0
	done := make(chan struct{})
	go func() {
		pump(l, &lenEncoder{}, func(media.Sample) error {
			writes++
			return errors.New("peer gone")
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump kept running after a write error")
	}
	if writes != 1 {
		t.Errorf("writes = %d, want 1", writes)
	}
}

// --- HTTP stream ---

func TestFeedWritesLittleEndianPCM(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe(KindHTTP)
	l.C <- []int16{1, -2}
	l.C <- []int16{256, 0}
	close(l.C)

	var out bytes.Buffer
	feed(context.Background(), l, &out)
	want := []byte{1, 0, 0xfe, 0xff, 0, 1, 0, 0}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("bytes = %v, want %v", out.Bytes(), want)
	}
}

func TestFeedStopsOnUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe(KindHTTP)
	done := make(chan struct{})
	go func() {
		feed(context.Background(), l, &bytes.Buffer{})
		close(done)
	}()
	b.Unsubscribe(l)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed kept running after unsubscribe")
	}
}

func TestHTTPHandlerMissingEncoder(t *testing.T) {
	b := NewBroadcaster()
	h := NewHTTPHandler(b, 48000)
	h.encoder = "loopatron-no-such-encoder"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if b.ListenerCount() != 0 {
		t.Errorf("listener left subscribed after failed start")
	}
}
