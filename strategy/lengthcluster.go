package strategy

import (
	"fmt"

	"github.com/vitus133/CovertMark/packet"
	"github.com/vitus133/CovertMark/traffic"
)

// LengthClusterConfig is one hyperparameter combination for the
// length-clustering strategy: a candidate mean-shift bandwidth and
// whether the "top cluster" (k=1) or "top two clusters" (k=2) set is
// used as the block set.
type LengthClusterConfig struct {
	Bandwidth int
	TopK      int // 1 or 2.
}

// LengthClusterConfigGrid returns the full sweep grid: bandwidth in
// {1,2,3,5,10}, crossed with k in {1,2}.
func LengthClusterConfigGrid() []LengthClusterConfig {
	var grid []LengthClusterConfig
	for _, bw := range []int{1, 2, 3, 5, 10} {
		for _, k := range []int{1, 2} {
			grid = append(grid, LengthClusterConfig{Bandwidth: bw, TopK: k})
		}
	}
	return grid
}

// String renders a human-readable interpretation of the config.
func (c LengthClusterConfig) String() string {
	return fmt.Sprintf("bandwidth=%d top_k=%d", c.Bandwidth, c.TopK)
}

const lengthClusterMinBandwidth = 1
const lengthClusterTPRFloor = 0.40

// TLSMode selects which packets length-clustering examines.
type TLSMode int

const (
	// TLSModeGuess decides from the positive corpus: above 95%
	// TLS-bearing means only, below 5% means none, otherwise all.
	TLSModeGuess TLSMode = iota
	TLSModeAll
	TLSModeOnly
	TLSModeNone
)

// ResolveTLSMode turns TLSModeGuess into a concrete mode by inspecting
// the positive corpus; any other mode passes through unchanged.
func ResolveTLSMode(mode TLSMode, positive []packet.Packet) TLSMode {
	if mode != TLSModeGuess {
		return mode
	}
	if len(positive) == 0 {
		return TLSModeAll
	}
	tlsCount := 0
	for _, p := range positive {
		if p.TLS != nil {
			tlsCount++
		}
	}
	frac := float64(tlsCount) / float64(len(positive))
	switch {
	case frac > 0.95:
		return TLSModeOnly
	case frac < 0.05:
		return TLSModeNone
	default:
		return TLSModeAll
	}
}

func applyTLSMode(packets []packet.Packet, mode TLSMode) []packet.Packet {
	if mode == TLSModeAll {
		return packets
	}
	out := make([]packet.Packet, 0, len(packets))
	for _, p := range packets {
		switch mode {
		case TLSModeOnly:
			if p.TLS != nil {
				out = append(out, p)
			}
		case TLSModeNone:
			if p.TLS == nil {
				out = append(out, p)
			}
		}
	}
	return out
}

// LengthClusterStrategy clusters positive TCP payload lengths via
// mean-shift at a candidate bandwidth, and measures what
// fraction of positive/negative packets fall in the top (or top-two)
// cluster by population.
type LengthClusterStrategy struct {
	Mode TLSMode
}

// topKLengths returns the set of lengths in the topK most populous
// clusters (by the descending-count ordering ClusterTCPPayloadLengths
// already guarantees).
func topKLengths(clusters []map[int]struct{}, topK int) map[int]struct{} {
	out := make(map[int]struct{})
	for i := 0; i < topK && i < len(clusters); i++ {
		for v := range clusters[i] {
			out[v] = struct{}{}
		}
	}
	return out
}

func rateInSet(packets []packet.Packet, lengths map[int]struct{}) int {
	count := 0
	for _, p := range packets {
		if p.TCP == nil {
			continue
		}
		if _, ok := lengths[len(p.TCP.Payload)]; ok {
			count++
		}
	}
	return count
}

// Run executes the full sweep over positive/negative corpora and
// negativeTotal (the negative corpus's full collection size, the FPR
// denominator). It first resolves s.Mode against the positive corpus
// and filters both corpora to the resolved TLSMode. It applies the TPR-floor best-config selection rule:
// among configs with TPR >= 0.40, the lowest FPR wins (ties by smaller
// bandwidth, then k=1 over k=2); ErrNoClassifiable is returned if no
// config meets the floor. The returned index names the selected
// config within results (-1 when no config met the floor); callers
// must report the result at that index so the printed rates and the
// filter agree.
func (s *LengthClusterStrategy) Run(positive, negative []packet.Packet, negativeTotal int) ([]Result[LengthClusterConfig], int, WireSharkFilter, error) {
	mode := ResolveTLSMode(s.Mode, positive)
	positive = applyTLSMode(positive, mode)
	negative = applyTLSMode(negative, mode)

	if len(positive) == 0 {
		return nil, -1, WireSharkFilter{}, ErrInsufficientData
	}

	grid := LengthClusterConfigGrid()
	results := make([]Result[LengthClusterConfig], len(grid))
	blockedByConfig := make([][]string, len(grid))

	for i, cfg := range grid {
		clusters := traffic.ClusterTCPPayloadLengths(positive, mode == TLSModeOnly, cfg.Bandwidth)
		topSet := topKLengths(clusters, cfg.TopK)

		tpr := float64(rateInSet(positive, topSet)) / float64(len(positive))
		var fpr float64
		if negativeTotal > 0 {
			fpr = float64(rateInSet(negative, topSet)) / float64(negativeTotal)
		}
		results[i] = Result[LengthClusterConfig]{Config: cfg, TPR: tpr, FPR: fpr}

		blocked := make(map[string]struct{})
		for _, p := range negative {
			if p.TCP == nil {
				continue
			}
			if _, ok := topSet[len(p.TCP.Payload)]; ok {
				blocked[p.Dst] = struct{}{}
			}
		}
		ips := make([]string, 0, len(blocked))
		for ip := range blocked {
			ips = append(ips, ip)
		}
		blockedByConfig[i] = ips
	}

	best, ok := selectLengthClusterBest(results)
	if !ok {
		return results, -1, WireSharkFilter{}, ErrNoClassifiable
	}

	ScoreConfigs(results, func(cfg LengthClusterConfig) float64 {
		return 0.05 * float64(cfg.Bandwidth-lengthClusterMinBandwidth)
	}, 0.5)

	filter := WireSharkFilter{
		IncludeHTTP: false,
		ExcludeTLS:  mode == TLSModeNone,
		BlockedIPs:  blockedByConfig[best],
	}
	return results, best, filter, nil
}

// selectLengthClusterBest picks the best config: among
// configs with TPR >= 0.40, the lowest FPR wins, ties broken by
// smaller bandwidth then k=1 over k=2.
func selectLengthClusterBest(results []Result[LengthClusterConfig]) (int, bool) {
	best := -1
	for i, r := range results {
		if r.TPR < lengthClusterTPRFloor {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		if r.FPR < results[best].FPR-rateEpsilon {
			best = i
			continue
		}
		if abs(r.FPR-results[best].FPR) <= rateEpsilon {
			if r.Config.Bandwidth < results[best].Config.Bandwidth {
				best = i
			} else if r.Config.Bandwidth == results[best].Config.Bandwidth && r.Config.TopK < results[best].Config.TopK {
				best = i
			}
		}
	}
	return best, best != -1
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
