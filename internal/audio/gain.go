package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// ClampVolume limits a volume to [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ApplyGain scales frame in place, ramping from gain `from` to gain `to`
// along a smoothstep curve so volume changes do not click. Interleaved
// channels of one sample frame share the same gain.
func ApplyGain(frame []int16, from, to float64) {
	if from == 1 && to == 1 {
		return
	}
	n := len(frame) / Channels
	for i := 0; i < n; i++ {
		g := to
		if from != to && n > 1 {
			g = from + (to-from)*Smoothstep(float64(i)/float64(n-1))
		}
		for c := 0; c < Channels; c++ {
			idx := i*Channels + c
			v := float64(frame[idx]) * g

			// Clip to int16 range
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			frame[idx] = int16(v)
		}
	}
}
