package remix

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// beatFeatures averages the frame summaries inside each beat into one
// vector: normalized chroma, band energies and loudness. Every dimension is
// then standardized across beats so none dominates the distance.
func beatFeatures(sp spectrum, bounds []int64) [][]float64 {
	n := len(bounds) - 1
	feats := make([][]float64, n)
	for i := 0; i < n; i++ {
		lo := int(bounds[i] / hopSize)
		hi := int(bounds[i+1] / hopSize)
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(sp.rms) {
			hi = len(sp.rms)
		}
		if lo >= hi {
			lo = hi - 1
		}

		chroma := make([]float64, 12)
		bands := make([]float64, numBands)
		var rms float64
		for f := lo; f < hi && f >= 0; f++ {
			for j := range chroma {
				chroma[j] += sp.chroma[f][j]
			}
			for j := range bands {
				bands[j] += sp.bands[f][j]
			}
			rms += sp.rms[f]
		}
		count := float64(hi - lo)
		if count < 1 {
			count = 1
		}

		maxC := 0.0
		for _, v := range chroma {
			maxC = math.Max(maxC, v)
		}
		v := make([]float64, 0, 12+numBands+1)
		for _, c := range chroma {
			if maxC > 0 {
				c /= maxC
			}
			v = append(v, c)
		}
		for _, b := range bands {
			v = append(v, b/count)
		}
		v = append(v, rms/count)
		feats[i] = v
	}
	standardize(feats)
	return feats
}

func standardize(data [][]float64) {
	if len(data) == 0 {
		return
	}
	dims := len(data[0])
	for d := 0; d < dims; d++ {
		var mean float64
		for _, row := range data {
			mean += row[d]
		}
		mean /= float64(len(data))
		var variance float64
		for _, row := range data {
			variance += (row[d] - mean) * (row[d] - mean)
		}
		sd := math.Sqrt(variance / float64(len(data)))
		for _, row := range data {
			if sd > 1e-9 {
				row[d] = (row[d] - mean) / sd
			} else {
				row[d] = 0
			}
		}
	}
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// kmeans clusters data into k groups using k-means++ seeding. It returns the
// label of every row and the total squared distance to the centroids.
func kmeans(data [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	n := len(data)
	labels := make([]int, n)
	if n == 0 || k <= 1 {
		return labels, 0
	}
	if k > n {
		k = n
	}

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), data[rng.IntN(n)]...))
	dist := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, row := range data {
			dist[i] = math.Inf(1)
			for _, c := range centroids {
				dist[i] = math.Min(dist[i], sqDist(row, c))
			}
			total += dist[i]
		}
		pick := n - 1
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range dist {
				r -= d
				if r <= 0 {
					pick = i
					break
				}
			}
		} else {
			pick = rng.IntN(n)
		}
		centroids = append(centroids, append([]float64(nil), data[pick]...))
	}

	dims := len(data[0])
	var inertia float64
	for iter := 0; iter < 50; iter++ {
		changed := false
		inertia = 0
		for i, row := range data {
			best, bestD := 0, math.Inf(1)
			for c, cen := range centroids {
				if d := sqDist(row, cen); d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
			inertia += bestD
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, row := range data {
			counts[labels[i]]++
			for d, v := range row {
				sums[labels[i]][d] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // keep the old centroid for an empty cluster
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	return compact(labels), inertia
}

// compact renumbers labels by first appearance so cluster ids are stable
// and dense.
func compact(labels []int) []int {
	ids := map[int]int{}
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
		}
		out[i] = id
	}
	return out
}

// silhouette scores a clustering in [-1, 1]; higher is better separated.
func silhouette(data [][]float64, labels []int) float64 {
	n := len(data)
	k := 0
	for _, l := range labels {
		if l+1 > k {
			k = l + 1
		}
	}
	if n < 2 || k < 2 {
		return -1
	}

	var total float64
	sums := make([]float64, k)
	counts := make([]int, k)
	for i := 0; i < n; i++ {
		for c := range sums {
			sums[c], counts[c] = 0, 0
		}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(sqDist(data[i], data[j]))
			counts[labels[j]]++
		}
		own := labels[i]
		if counts[own] == 0 {
			continue // singleton cluster scores 0
		}
		a := sums[own] / float64(counts[own])
		b := math.Inf(1)
		for c := range sums {
			if c != own && counts[c] > 0 {
				b = math.Min(b, sums[c]/float64(counts[c]))
			}
		}
		if m := math.Max(a, b); m > 0 && !math.IsInf(b, 1) {
			total += (b - a) / m
		}
	}
	return total / float64(n)
}

// chooseClusters picks the clustering for the beats. A fixed count is used
// as given; otherwise v1 sizes it from the beat count and v2 tries every
// count up to max and keeps the best silhouette.
func chooseClusters(data [][]float64, fixed, maxK int, useV1 bool, rng *rand.Rand) ([]int, int, string) {
	n := len(data)
	maxK = min(max(maxK, 2), n/2)
	if n < 4 || maxK < 2 {
		return make([]int, n), 1, "too few beats to cluster"
	}

	if fixed > 0 {
		k := min(fixed, n)
		labels, _ := kmeans(data, k, rng)
		return labels, countClusters(labels), fmt.Sprintf("clusters fixed at %d", k)
	}

	if useV1 {
		k := int(math.Round(math.Sqrt(float64(n) / 2)))
		k = max(2, min(k, maxK))
		labels, _ := kmeans(data, k, rng)
		return labels, countClusters(labels), fmt.Sprintf("v1 cluster count %d from %d beats", k, n)
	}

	var diag strings.Builder
	diag.WriteString("silhouette by cluster count:")
	var best []int
	bestScore := math.Inf(-1)
	for k := 2; k <= maxK; k++ {
		labels, _ := kmeans(data, k, rng)
		score := silhouette(data, labels)
		fmt.Fprintf(&diag, " %d=%.3f", k, score)
		if score > bestScore {
			best, bestScore = labels, score
		}
	}
	return best, countClusters(best), diag.String()
}

func countClusters(labels []int) int {
	k := 0
	for _, l := range labels {
		if l+1 > k {
			k = l + 1
		}
	}
	return k
}
