package strategy

import (
	"fmt"

	"github.com/vitus133/CovertMark/entropy"
	"github.com/vitus133/CovertMark/packet"
)

// EntropyConfig is one hyperparameter combination for the
// entropy-distribution strategy.
type EntropyConfig struct {
	BlockSize  int
	PThreshold float64
	Criterion  int
}

// EntropyConfigGrid returns the full sweep grid: block_size in
// {16,32,64,128}, p_threshold in {0.1,0.2}, criterion in {1,2,3}.
func EntropyConfigGrid() []EntropyConfig {
	var grid []EntropyConfig
	for _, bs := range []int{16, 32, 64, 128} {
		for _, pt := range []float64{0.1, 0.2} {
			for _, cr := range []int{1, 2, 3} {
				grid = append(grid, EntropyConfig{BlockSize: bs, PThreshold: pt, Criterion: cr})
			}
		}
	}
	return grid
}

// String renders a human-readable interpretation of the config.
func (c EntropyConfig) String() string {
	return fmt.Sprintf("block_size=%d p_threshold=%.2f criterion=%d", c.BlockSize, c.PThreshold, c.Criterion)
}

const (
	minCriterion               = 1
	maxTestSampleBytes         = 2048
	tlsHTTPPopulationThreshold = 0.10
)

// EntropyDistStrategy classifies a TCP payload as
// high-entropy (and hence likely encrypted/obfuscated PT traffic) when
// at least criterion of three statistical tests (KS-uniform,
// KS-block-distribution, AD-block-distribution) yield a p-value (or, for
// AD, a MinThreshold) at or above p_threshold, i.e. do not reject the
// payload as uniformly random bytes.
type EntropyDistStrategy struct {
	// ProtocolMinLength is the PT's own minimum meaningful record
	// length; payloads shorter than max(ProtocolMinLength, BlockSize)
	// are skipped rather than misclassified on too little data.
	ProtocolMinLength int
}

// DecideInclusion applies the pre-run TLS/HTTP inclusion policy: a
// packet class (TLS- or HTTP-bearing) is retained for analysis iff it
// makes up at least 10% of the positive population; otherwise it is
// excluded from both corpora.
func DecideInclusion(positive []packet.Packet) (includeTLS, includeHTTP bool) {
	if len(positive) == 0 {
		return true, true
	}
	var tlsCount, httpCount int
	for _, p := range positive {
		if p.TLS != nil {
			tlsCount++
		}
		if p.HTTP != nil {
			httpCount++
		}
	}
	n := float64(len(positive))
	includeTLS = float64(tlsCount)/n >= tlsHTTPPopulationThreshold
	includeHTTP = float64(httpCount)/n >= tlsHTTPPopulationThreshold
	return includeTLS, includeHTTP
}

// applyInclusion filters packets per the inclusion policy: a TLS
// packet is dropped unless includeTLS, an HTTP packet dropped unless
// includeHTTP; everything else passes through unchanged.
func applyInclusion(packets []packet.Packet, includeTLS, includeHTTP bool) []packet.Packet {
	out := make([]packet.Packet, 0, len(packets))
	for _, p := range packets {
		if p.TLS != nil && !includeTLS {
			continue
		}
		if p.HTTP != nil && !includeHTTP {
			continue
		}
		out = append(out, p)
	}
	return out
}

// classify reports whether packet p's TCP payload is classified
// high-entropy under cfg, and whether it qualified for testing at all
// (payloads shorter than the length floor are not evaluated and never
// count toward TPR/FPR).
func (s *EntropyDistStrategy) classify(p packet.Packet, cfg EntropyConfig) (classified bool, qualifies bool) {
	if p.TCP == nil {
		return false, false
	}
	payload := p.TCP.Payload
	floor := cfg.BlockSize
	if s.ProtocolMinLength > floor {
		floor = s.ProtocolMinLength
	}
	if len(payload) < floor {
		return false, false
	}

	// All three tests examine at most the first 2048 payload bytes.
	sample := payload
	if len(sample) > maxTestSampleBytes {
		sample = sample[:maxTestSampleBytes]
	}

	agree := 0
	if pUniform, err := entropy.KolmogorovSmirnovUniformTest(sample); err == nil && pUniform >= cfg.PThreshold {
		agree++
	}
	if pBlock, err := entropy.KolmogorovSmirnovDistTest(sample, cfg.BlockSize); err == nil && pBlock >= cfg.PThreshold {
		agree++
	}
	if ad, err := entropy.AndersonDarlingDistTest(sample, cfg.BlockSize); err == nil && ad.MinThreshold >= cfg.PThreshold {
		agree++
	}

	return agree >= cfg.Criterion, true
}

// PositiveRun returns the fraction of qualifying positive packets
// classified high-entropy (the true-positive rate for cfg).
func (s *EntropyDistStrategy) PositiveRun(positive []packet.Packet, cfg EntropyConfig) float64 {
	qualified, hit := 0, 0
	for _, p := range positive {
		classified, qualifies := s.classify(p, cfg)
		if !qualifies {
			continue
		}
		qualified++
		if classified {
			hit++
		}
	}
	if qualified == 0 {
		return 0
	}
	return float64(hit) / float64(qualified)
}

// NegativeRun returns the false-positive rate for cfg: the count of
// negative packets classified high-entropy, divided by
// negativeCollectionTotal (the loader's full collection count, not
// merely the packets surviving the strategic filter).
func (s *EntropyDistStrategy) NegativeRun(negative []packet.Packet, negativeCollectionTotal int, cfg EntropyConfig) (float64, []string) {
	if negativeCollectionTotal == 0 {
		return 0, nil
	}
	hit := 0
	blockedIPs := make(map[string]struct{})
	for _, p := range negative {
		classified, qualifies := s.classify(p, cfg)
		if !qualifies {
			continue
		}
		if classified {
			hit++
			blockedIPs[p.Dst] = struct{}{}
		}
	}
	ips := make([]string, 0, len(blockedIPs))
	for ip := range blockedIPs {
		ips = append(ips, ip)
	}
	return float64(hit) / float64(negativeCollectionTotal), ips
}

// ConfigSpecificPenalty is 0.1 * max(0, criterion - min_criterion).
func (s *EntropyDistStrategy) ConfigSpecificPenalty(cfg EntropyConfig) float64 {
	diff := cfg.Criterion - minCriterion
	if diff < 0 {
		diff = 0
	}
	return 0.1 * float64(diff)
}

// Run executes the full sweep: it applies the TLS/HTTP inclusion
// policy (decided from positive traffic and applied symmetrically to
// negative traffic), sweeps EntropyConfigGrid, scores every
// configuration, and returns the scored results, the index of the
// selected best configuration, and the blocked-IP Wireshark filter
// computed for that configuration. Callers must report the result at
// the returned index so the printed rates and the filter agree.
// The grid iterations are independent over the read-only packet
// slices, so they run through the bounded-parallel Sweep harness.
func (s *EntropyDistStrategy) Run(positive, negative []packet.Packet, negativeCollectionTotal int) ([]Result[EntropyConfig], int, WireSharkFilter, error) {
	includeTLS, includeHTTP := DecideInclusion(positive)
	positive = applyInclusion(positive, includeTLS, includeHTTP)
	negative = applyInclusion(negative, includeTLS, includeHTTP)

	grid := EntropyConfigGrid()
	results, err := Sweep(grid,
		func(cfg EntropyConfig) (float64, error) {
			return s.PositiveRun(positive, cfg), nil
		},
		func(cfg EntropyConfig) (float64, error) {
			fpr, _ := s.NegativeRun(negative, negativeCollectionTotal, cfg)
			return fpr, nil
		})
	if err != nil {
		return nil, -1, WireSharkFilter{}, err
	}
	if len(results) == 0 {
		return nil, -1, WireSharkFilter{}, ErrInsufficientData
	}

	ScoreConfigs(results, s.ConfigSpecificPenalty, 0.5)
	best := SelectBest(results)

	// Re-run the negative pass once for the winning config to recover
	// the IPs it would block; the sweep itself only keeps rates.
	_, blocked := s.NegativeRun(negative, negativeCollectionTotal, results[best].Config)

	minLen := results[best].Config.BlockSize
	if s.ProtocolMinLength > minLen {
		minLen = s.ProtocolMinLength
	}
	filter := WireSharkFilter{
		ExcludeTLS:  !includeTLS,
		IncludeHTTP: includeHTTP,
		MinTCPLen:   minLen,
		BlockedIPs:  blocked,
	}
	return results, best, filter, nil
}
