package l3segments

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// maxGammaSamples caps the number of blocks used to estimate the kernel
// bandwidth; pairwise distances grow quadratically.
const maxGammaSamples = 800

// peltChangepoints runs penalised optimal partitioning with pruning over
// the absolute curvature, using an RBF kernel cost. The signal is first
// reduced to block means of cfg.Jump samples; returned indices are sample
// indices at block starts.
func peltChangepoints(abs []float64, step float64, cfg Config) []int {
	jump := cfg.Jump
	if jump < 1 {
		jump = 1
	}
	z := blockMeans(abs, jump)
	m := len(z)
	if m < 2 {
		return nil
	}

	minLen := 1
	if step > 0 && cfg.MinSegmentLength > 0 {
		minLen = int(math.Ceil(cfg.MinSegmentLength / (float64(jump) * step)))
		if minLen < 1 {
			minLen = 1
		}
	}
	if 2*minLen > m {
		return nil
	}
	scale := cfg.PenaltyScale
	if scale <= 0 {
		scale = 1
	}
	penalty := scale * 2 * math.Log(float64(m))

	cost := newKernelCost(z, rbfGamma(z))

	// f[t] is the optimal penalised cost of z[0:t]; last[t] the start of
	// its final segment.
	f := make([]float64, m+1)
	last := make([]int, m+1)
	for i := range f {
		f[i] = math.Inf(1)
	}
	f[0] = -penalty

	var admissible []int
	for t := minLen; t <= m; t++ {
		// The start s = t-minLen becomes reachable once f[s] is known.
		if s := t - minLen; s == 0 || s >= minLen {
			admissible = append(admissible, s)
		}

		best, bestS := math.Inf(1), -1
		for _, s := range admissible {
			if math.IsInf(f[s], 1) {
				continue
			}
			v := f[s] + cost.segment(s, t) + penalty
			if v < best {
				best, bestS = v, s
			}
		}
		if bestS < 0 {
			continue
		}
		f[t], last[t] = best, bestS

		// Prune starts that can never beat t as a changepoint.
		pruned := admissible[:0]
		for _, s := range admissible {
			if math.IsInf(f[s], 1) || f[s]+cost.segment(s, t) <= f[t] {
				pruned = append(pruned, s)
			}
		}
		admissible = pruned
	}

	var blocks []int
	for t := m; t > 0; t = last[t] {
		if last[t] > 0 {
			blocks = append(blocks, last[t])
		}
		if last[t] == 0 {
			break
		}
	}
	sort.Ints(blocks)

	n := len(abs)
	out := make([]int, 0, len(blocks))
	for _, b := range blocks {
		idx := b * jump
		if idx >= n {
			idx = n - 1
		}
		out = append(out, idx)
	}
	return out
}

func blockMeans(x []float64, jump int) []float64 {
	m := (len(x) + jump - 1) / jump
	out := make([]float64, m)
	for b := 0; b < m; b++ {
		lo := b * jump
		hi := lo + jump
		if hi > len(x) {
			hi = len(x)
		}
		out[b] = stat.Mean(x[lo:hi], nil)
	}
	return out
}

// rbfGamma picks the kernel bandwidth from the median pairwise squared
// distance, bounded below by the signal variance so that near-constant
// plateaus do not turn every sample into its own cluster.
func rbfGamma(z []float64) float64 {
	sample := z
	if len(z) > maxGammaSamples {
		stride := (len(z) + maxGammaSamples - 1) / maxGammaSamples
		sample = make([]float64, 0, maxGammaSamples)
		for i := 0; i < len(z); i += stride {
			sample = append(sample, z[i])
		}
	}

	var median float64
	if len(sample) >= 2 {
		d := make([]float64, 0, len(sample)*(len(sample)-1)/2)
		for i := 0; i < len(sample); i++ {
			for j := i + 1; j < len(sample); j++ {
				diff := sample[i] - sample[j]
				d = append(d, diff*diff)
			}
		}
		sort.Float64s(d)
		median = stat.Quantile(0.5, stat.Empirical, d, nil)
	}

	var variance float64
	if len(z) >= 2 {
		variance = stat.Variance(z, nil)
	}
	scale := math.Max(median, variance)
	if scale <= 0 || math.IsNaN(scale) {
		return 1
	}
	return 1 / scale
}

// kernelCost evaluates the RBF kernel segment cost
// C(a,b) = (b-a) - (1/(b-a)) Σ_{i,j∈[a,b)} K(z_i, z_j)
// from a two-dimensional prefix sum of the Gram matrix.
type kernelCost struct {
	m   int
	sum []float64 // (m+1)×(m+1), row-major
}

func newKernelCost(z []float64, gamma float64) *kernelCost {
	m := len(z)
	w := m + 1
	sum := make([]float64, w*w)
	for i := 1; i <= m; i++ {
		var row float64
		for j := 1; j <= m; j++ {
			d := z[i-1] - z[j-1]
			row += math.Exp(-gamma * d * d)
			sum[i*w+j] = sum[(i-1)*w+j] + row
		}
	}
	return &kernelCost{m: m, sum: sum}
}

func (k *kernelCost) segment(a, b int) float64 {
	if b <= a {
		return 0
	}
	w := k.m + 1
	block := k.sum[b*w+b] - k.sum[a*w+b] - k.sum[b*w+a] + k.sum[a*w+a]
	l := float64(b - a)
	return l - block/l
}
