package remix

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	frameSize = 2048
	hopSize   = 512
	numBands  = 12
	minBPM    = 60
	maxBPM    = 180
)

// spectrum is the per-frame summary of a short-time Fourier transform.
type spectrum struct {
	onset  []float64   // spectral flux per frame
	chroma [][]float64 // 12 pitch classes per frame
	bands  [][]float64 // log-spaced band energies per frame
	rms    []float64
}

// toMono averages interleaved stereo to floats in [-1, 1].
func toMono(samples []int16, channels int) []float64 {
	n := len(samples) / channels
	mono := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c])
		}
		mono[i] = sum / float64(channels) / 32768
	}
	return mono
}

// leadingSilence returns the first frame whose level exceeds threshold.
func leadingSilence(mono []float64, threshold float64) int {
	for i, v := range mono {
		if math.Abs(v) > threshold {
			return i
		}
	}
	return 0
}

// bandEdges splits [lo, hi] Hz into n log-spaced bands.
func bandEdges(lo, hi float64, n int) []float64 {
	edges := make([]float64, n+1)
	ratio := math.Pow(hi/lo, 1/float64(n))
	for i := range edges {
		edges[i] = lo * math.Pow(ratio, float64(i))
	}
	return edges
}

// analyze runs the STFT over mono and summarizes every frame.
func analyze(mono []float64, sampleRate int) spectrum {
	numFrames := 0
	if len(mono) >= frameSize {
		numFrames = (len(mono)-frameSize)/hopSize + 1
	}
	sp := spectrum{
		onset:  make([]float64, numFrames),
		chroma: make([][]float64, numFrames),
		bands:  make([][]float64, numFrames),
		rms:    make([]float64, numFrames),
	}

	win := window.Hann(frameSize)
	edges := bandEdges(40, math.Min(16000, float64(sampleRate)/2), numBands)
	binHz := float64(sampleRate) / frameSize
	half := frameSize/2 + 1

	// Bin lookups do not depend on the frame.
	pitchClass := make([]int, half)
	band := make([]int, half)
	for bin := 0; bin < half; bin++ {
		freq := float64(bin) * binHz
		pitchClass[bin] = -1
		if freq >= 55 && freq <= 5000 {
			semitones := 12 * math.Log2(freq/261.63)
			pitchClass[bin] = ((int(math.Round(semitones)) % 12) + 12) % 12
		}
		band[bin] = -1
		for b := 0; b < numBands; b++ {
			if freq >= edges[b] && freq < edges[b+1] {
				band[bin] = b
				break
			}
		}
	}

	frame := make([]float64, frameSize)
	prev := make([]float64, half)
	mag := make([]float64, half)
	for i := 0; i < numFrames; i++ {
		start := i * hopSize
		var energy float64
		for j := 0; j < frameSize; j++ {
			v := mono[start+j]
			energy += v * v
			frame[j] = v * win[j]
		}
		sp.rms[i] = math.Sqrt(energy / frameSize)

		spec := fft.FFTReal(frame)
		chroma := make([]float64, 12)
		bands := make([]float64, numBands)
		var flux float64
		for bin := 0; bin < half; bin++ {
			m := math.Log1p(100 * cmplx.Abs(spec[bin]))
			mag[bin] = m
			if d := m - prev[bin]; d > 0 {
				flux += d
			}
			if pc := pitchClass[bin]; pc >= 0 {
				chroma[pc] += m
			}
			if b := band[bin]; b >= 0 {
				bands[b] += m
			}
		}
		copy(prev, mag)
		if i > 0 {
			sp.onset[i] = flux
		}
		sp.chroma[i] = chroma
		sp.bands[i] = bands
	}
	return sp
}

// estimateTempo finds the beat period in frames by autocorrelating the onset
// envelope over the allowed tempo range. Lags near 120 bpm are preferred to
// keep half- and double-tempo peaks from winning on small margins.
func estimateTempo(onset []float64, sampleRate int) (periodFrames float64, bpm float64) {
	framesPerSec := float64(sampleRate) / hopSize
	minLag := int(math.Floor(framesPerSec * 60 / maxBPM))
	maxLag := int(math.Ceil(framesPerSec * 60 / minBPM))
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}
	if minLag < 1 {
		minLag = 1
	}
	if maxLag < minLag {
		p := framesPerSec / 2
		return p, 120
	}

	mean := 0.0
	for _, v := range onset {
		mean += v
	}
	mean /= float64(len(onset))

	corr := make([]float64, maxLag+2)
	for lag := minLag; lag <= maxLag+1 && lag < len(onset); lag++ {
		var sum float64
		for i := 0; i+lag < len(onset); i++ {
			sum += (onset[i] - mean) * (onset[i+lag] - mean)
		}
		corr[lag] = sum / float64(len(onset)-lag)
	}

	bestLag, bestScore := minLag, math.Inf(-1)
	for lag := minLag; lag <= maxLag; lag++ {
		lagBPM := 60 * framesPerSec / float64(lag)
		prior := math.Exp(-0.5 * math.Pow(math.Log2(lagBPM/120), 2))
		if score := corr[lag] * prior; score > bestScore {
			bestScore, bestLag = score, lag
		}
	}

	// Parabolic interpolation around the peak.
	period := float64(bestLag)
	if bestLag > minLag && bestLag+1 < len(corr) {
		a, b, c := corr[bestLag-1], corr[bestLag], corr[bestLag+1]
		if den := a - 2*b + c; den != 0 {
			if shift := 0.5 * (a - c) / den; math.Abs(shift) < 1 {
				period += shift
			}
		}
	}
	return period, 60 * framesPerSec / period
}

// trackBeats lays a beat grid of the given period over the onset envelope,
// choosing the phase that collects the most onset energy, then pulls each
// beat to the strongest onset nearby.
func trackBeats(onset []float64, period float64) []int {
	if period < 1 || len(onset) == 0 {
		return nil
	}

	bestPhase, bestScore := 0, math.Inf(-1)
	for phase := 0; phase < int(math.Ceil(period)) && phase < len(onset); phase++ {
		var score float64
		for t := float64(phase); int(math.Round(t)) < len(onset); t += period {
			score += onset[int(math.Round(t))]
		}
		if score > bestScore {
			bestScore, bestPhase = score, phase
		}
	}

	radius := int(math.Max(1, period/10))
	var beats []int
	last := -1
	for t := float64(bestPhase); int(math.Round(t)) < len(onset); t += period {
		center := int(math.Round(t))
		peak := center
		for j := center - radius; j <= center+radius; j++ {
			if j < 0 || j >= len(onset) {
				continue
			}
			if onset[j] > onset[peak] {
				peak = j
			}
		}
		if last >= 0 && float64(peak-last) < period/2 {
			continue
		}
		beats = append(beats, peak)
		last = peak
	}
	return beats
}
