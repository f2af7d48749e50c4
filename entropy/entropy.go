// Package entropy implements the byte-entropy and statistical-test battery
// used to distinguish high-entropy encrypted or obfuscated payloads from
// ordinary traffic: Shannon entropy, a Kolmogorov-Smirnov uniformity test,
// a Kolmogorov-Smirnov block-distribution test, and an Anderson-Darling
// block-distribution test.
//
// All three tests are pure functions over a byte slice; none mutates its
// input and none seeds a random generator, so repeated calls over the same
// bytes always agree.
package entropy

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInsufficientData is returned by the block- and sample-based tests
// when too few bytes (or blocks) are available to form a meaningful
// statistic.
var ErrInsufficientData = errors.New("entropy: insufficient data")

// minUniformSampleSize is the smallest payload the KS-uniform test will
// accept.
const minUniformSampleSize = 8

// ByteEntropy returns the Shannon entropy, in bits, of the 256-symbol byte
// distribution of b. An empty input has zero entropy.
func ByteEntropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var counts [256]int
	for _, c := range b {
		counts[c]++
	}
	n := float64(len(b))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return h / math.Ln2
}

// uniformByteCDF is the CDF of the continuous Uniform(0,256) distribution
// used as the reference for byte values drawn from the discrete uniform
// distribution over [0,255].
func uniformByteCDF(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x >= 256:
		return 1
	default:
		return x / 256
	}
}

// KolmogorovSmirnovUniformTest returns the p-value of a one-sample
// Kolmogorov-Smirnov test of b's byte values against the discrete uniform
// distribution over [0,255]. Returns ErrInsufficientData if len(b) < 8.
func KolmogorovSmirnovUniformTest(b []byte) (float64, error) {
	if len(b) < minUniformSampleSize {
		return 0, ErrInsufficientData
	}
	samples := make([]float64, len(b))
	for i, c := range b {
		samples[i] = float64(c)
	}
	return ksTestAgainstCDF(samples, uniformByteCDF), nil
}

// blockMeans partitions b into floor(len(b)/blockSize) non-overlapping
// blocks and returns the mean byte value of each.
func blockMeans(b []byte, blockSize int) []float64 {
	n := len(b) / blockSize
	means := make([]float64, n)
	for i := 0; i < n; i++ {
		block := b[i*blockSize : (i+1)*blockSize]
		var sum float64
		for _, c := range block {
			sum += float64(c)
		}
		means[i] = sum / float64(blockSize)
	}
	return means
}

// blockMeanDistribution returns the Normal distribution approximating the
// sampling distribution of the mean of blockSize i.i.d. draws from the
// discrete uniform distribution over [0,255], by the central limit theorem.
func blockMeanDistribution(blockSize int) distuv.Normal {
	const (
		uniformMean     = 127.5
		uniformVariance = (256*256 - 1) / 12.0 // Var of discrete uniform{0,...,255}.
	)
	return distuv.Normal{
		Mu:    uniformMean,
		Sigma: math.Sqrt(uniformVariance / float64(blockSize)),
	}
}

// KolmogorovSmirnovDistTest partitions b into blocks of blockSize bytes,
// computes each block's mean byte value, and returns the KS p-value of the
// empirical distribution of block means against the theoretical
// distribution of the mean of blockSize i.i.d. uniform-[0,255] samples.
// Returns ErrInsufficientData if fewer than two blocks can be formed.
func KolmogorovSmirnovDistTest(b []byte, blockSize int) (float64, error) {
	means := blockMeans(b, blockSize)
	if len(means) < 2 {
		return 0, ErrInsufficientData
	}
	dist := blockMeanDistribution(blockSize)
	return ksTestAgainstCDF(means, dist.CDF), nil
}

// ksTestAgainstCDF computes the asymptotic Kolmogorov-Smirnov p-value of
// samples against the reference CDF.
func ksTestAgainstCDF(samples []float64, cdf func(float64) float64) float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	n := float64(len(sorted))

	var d float64
	for i, x := range sorted {
		f := cdf(x)
		dPlus := float64(i+1)/n - f
		dMinus := f - float64(i)/n
		d = math.Max(d, math.Max(dPlus, dMinus))
	}

	// Asymptotic Kolmogorov distribution survival function, with the
	// standard Stephens (1970) finite-sample correction.
	neff := math.Sqrt(n)
	lambda := (neff + 0.12 + 0.11/neff) * d
	return kolmogorovSurvival(lambda)
}

// kolmogorovSurvival evaluates Q_KS(lambda) = 2*sum_{k=1}^inf (-1)^(k-1)
// exp(-2 k^2 lambda^2), the asymptotic Kolmogorov distribution's survival
// function, clamped to [0,1].
func kolmogorovSurvival(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	const terms = 100
	var sum float64
	sign := 1.0
	for k := 1; k <= terms; k++ {
		term := sign * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
