package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DecodeFile decodes any file FFmpeg can read into interleaved stereo int16
// at rate. Embedded cover art and other non-audio streams are ignored.
func DecodeFile(path string, rate int) ([]int16, error) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("decode %s: ffmpeg not found: %w", filepath.Base(path), err)
	}
	cmd := exec.Command(bin,
		"-nostdin",
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("decode %s: %w: %s", filepath.Base(path), err, msg)
		}
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return BytesToSamples(out), nil
}

// BytesToSamples converts little-endian bytes to int16 samples, dropping a
// trailing odd byte.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
