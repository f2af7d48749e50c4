package entropy

import (
	"math"
	"sort"
)

// ADResult is the outcome of the Anderson-Darling block-distribution test:
// the statistic itself, and MinThreshold, the largest tabulated
// significance level whose critical value the statistic does not exceed.
// MinThreshold is used by strategies as a p-value surrogate. It is 0 if
// the statistic exceeds every tabulated critical value, and 1 if it is
// below all of them.
type ADResult struct {
	Statistic    float64
	MinThreshold float64
}

// adCriticalValues are the asymptotic critical values of the
// Anderson-Darling statistic for testing goodness-of-fit against a fully
// specified (not parameter-estimated) continuous distribution, from
// Stephens (1974)/D'Agostino & Stephens (1986) Table 4.2, extended at the
// tails for finer-grained thresholding. Ordered ascending by critical
// value (equivalently descending by significance level).
var adCriticalValues = []struct {
	Level    float64
	Critical float64
}{
	{0.50, 0.576},
	{0.25, 0.656},
	{0.15, 1.610},
	{0.10, 1.933},
	{0.05, 2.492},
	{0.025, 3.070},
	{0.01, 3.857},
	{0.005, 4.500},
	{0.001, 6.747},
}

// AndersonDarlingDistTest partitions b into blocks of blockSize bytes as
// KolmogorovSmirnovDistTest does, computes each block's mean byte value,
// and returns the Anderson-Darling statistic of those means against the
// theoretical distribution of the mean of blockSize i.i.d. uniform-[0,255]
// samples. Returns ErrInsufficientData if fewer than two blocks can be
// formed.
func AndersonDarlingDistTest(b []byte, blockSize int) (ADResult, error) {
	means := blockMeans(b, blockSize)
	if len(means) < 2 {
		return ADResult{}, ErrInsufficientData
	}
	dist := blockMeanDistribution(blockSize)

	sorted := append([]float64(nil), means...)
	sort.Float64s(sorted)
	n := float64(len(sorted))

	var sum float64
	for i, x := range sorted {
		fLow := dist.CDF(x)
		fHigh := 1 - dist.CDF(sorted[len(sorted)-1-i])
		fLow = clampProbability(fLow)
		fHigh = clampProbability(fHigh)
		weight := float64(2*(i+1) - 1)
		sum += weight * (math.Log(fLow) + math.Log(fHigh))
	}
	stat := -n - sum/n
	if stat < 0 {
		stat = 0
	}

	return ADResult{
		Statistic:    stat,
		MinThreshold: minThresholdFor(stat),
	}, nil
}

// clampProbability guards against log(0) from floating point CDF
// saturation at the extremes of the sample.
func clampProbability(p float64) float64 {
	const eps = 1e-12
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// minThresholdFor returns the largest tabulated significance level whose
// critical value stat does not exceed, 0 if stat exceeds every tabulated
// critical value, and 1 if it is below all of them.
func minThresholdFor(stat float64) float64 {
	// adCriticalValues is ascending by critical value; find the first
	// entry stat does not exceed.
	idx := sort.Search(len(adCriticalValues), func(i int) bool {
		return stat <= adCriticalValues[i].Critical
	})
	if idx == len(adCriticalValues) {
		return 0
	}
	if idx == 0 {
		return 1
	}
	return adCriticalValues[idx].Level
}
