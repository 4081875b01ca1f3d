package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadWAV decodes a PCM WAV file to interleaved stereo int16 samples. Mono
// input is duplicated to both channels; other bit depths are rescaled to 16.
func ReadWAV(path string) (samples []int16, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	nch := buf.Format.NumChannels
	if nch < 1 {
		return nil, 0, fmt.Errorf("wav has %d channels", nch)
	}
	shift := int(d.BitDepth) - BitDepth

	frames := len(buf.Data) / nch
	samples = make([]int16, frames*Channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < Channels; c++ {
			src := c
			if src >= nch {
				src = nch - 1
			}
			v := buf.Data[i*nch+src]
			switch {
			case shift > 0:
				v >>= shift
			case shift < 0:
				v <<= -shift
			}
			samples[i*Channels+c] = int16(v)
		}
	}
	return samples, buf.Format.SampleRate, nil
}

// WriteWAV encodes interleaved stereo int16 samples as a 16-bit PCM WAV file.
func WriteWAV(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, BitDepth, Channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
