package traffic

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitus133/CovertMark/entropy"
	"github.com/vitus133/CovertMark/packet"
)

// Feature names the optional feature groups WindowFeatures can compute.
// An empty or absent FeatureSelection enables all of them.
type Feature string

const (
	FeatureEntropy      Feature = "ENTROPY"
	FeatureInterval     Feature = "INTERVAL"
	FeatureIntervalBins Feature = "INTERVAL_BINS"
	FeatureTCPLen       Feature = "TCP_LEN"
	FeatureTCPLenBins   Feature = "TCP_LEN_BINS"
	FeaturePSH          Feature = "PSH"
)

// FeatureSelection is the set of feature groups to compute. A nil or
// empty selection enables all groups.
type FeatureSelection map[Feature]bool

// NewFeatureSelection builds a selection enabling exactly the given
// features.
func NewFeatureSelection(features ...Feature) FeatureSelection {
	sel := make(FeatureSelection, len(features))
	for _, f := range features {
		sel[f] = true
	}
	return sel
}

func (s FeatureSelection) has(f Feature) bool {
	if len(s) == 0 {
		return true
	}
	return s[f]
}

// FeatureRow maps a deterministic feature name to its scalar value.
// Callers that flatten a row to a vector must sort keys ascending.
type FeatureRow map[string]float64

// SortedFeatureNames returns the keys of row sorted ascending, as required
// whenever a FeatureRow is flattened into a positional vector.
func SortedFeatureNames(row FeatureRow) []string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ToVector flattens row into a vector ordered by SortedFeatureNames.
func ToVector(row FeatureRow) []float64 {
	names := SortedFeatureNames(row)
	vec := make([]float64, len(names))
	for i, n := range names {
		vec[i] = row[n]
	}
	return vec
}

const tcpLenBinMax = 1500 // MTU-class ceiling for feature binning; distinct from the 1400 clustering threshold.

var intervalBinEdges = []float64{0, 1000, 10000, 100000, 1000000}
var tcpLenBinEdges = func() []float64 {
	edges := make([]float64, 16)
	for i := range edges {
		edges[i] = float64(i * 100)
	}
	return edges
}()

// WindowFeatures computes the bidirectional feature row for window, given
// the client IP subnets defining "upstream"/"downstream", and the set of
// feature groups to compute. It returns the feature mapping, the set of
// peer IPs seen, and the set of client IPs seen. Non-TCP packets are
// ignored by every per-direction tally; directions with one or fewer
// matching packets default every feature to its documented neutral value.
func WindowFeatures(window Window, clientIPs []string, selection FeatureSelection) (FeatureRow, map[string]struct{}, map[string]struct{}, error) {
	clientSubnets := make([]packet.Subnet, 0, len(clientIPs))
	for _, ip := range clientIPs {
		sub, err := packet.BuildSubnet(ip)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("traffic: %w", err)
		}
		clientSubnets = append(clientSubnets, sub)
	}

	peerIPsSeen := make(map[string]struct{})
	clientIPsSeen := make(map[string]struct{})

	if len(clientSubnets) == 0 {
		return FeatureRow{}, peerIPsSeen, clientIPsSeen, nil
	}

	overlapsAny := func(ip string) bool {
		for _, s := range clientSubnets {
			if s.OverlapsIP(ip) {
				return true
			}
		}
		return false
	}

	var up, down []packet.Packet
	for _, p := range window {
		if overlapsAny(p.Src) {
			up = append(up, p)
		}
		if overlapsAny(p.Dst) {
			down = append(down, p)
		}
	}

	row := FeatureRow{}
	if len(up) > 0 && len(down) > 0 {
		row["up_down_ratio"] = float64(len(up)) / float64(len(down))
	} else {
		row["up_down_ratio"] = 0
	}

	tallyDirection(row, up, "up", peerDst, clientIPsSeen, peerIPsSeen, selection)
	tallyDirection(row, down, "down", peerSrc, clientIPsSeen, peerIPsSeen, selection)

	return row, peerIPsSeen, clientIPsSeen, nil
}

// peerSelector extracts the peer and client-observed IP from a packet for
// a given direction.
type peerSelector func(p packet.Packet) (peer, clientSeen string)

func peerDst(p packet.Packet) (string, string) { return p.Dst, p.Src }
func peerSrc(p packet.Packet) (string, string) { return p.Src, p.Dst }

func tallyDirection(row FeatureRow, dirPackets []packet.Packet, suffix string, sel peerSelector, clientIPsSeen, peerIPsSeen map[string]struct{}, selection FeatureSelection) {
	entropyOn := selection.has(FeatureEntropy)
	intervalOn := selection.has(FeatureInterval)
	intervalBinsOn := selection.has(FeatureIntervalBins)
	tcpLenOn := selection.has(FeatureTCPLen)
	tcpLenBinsOn := selection.has(FeatureTCPLenBins)
	pshOn := selection.has(FeaturePSH)

	if len(dirPackets) <= 1 {
		if entropyOn {
			row["mean_entropy_"+suffix] = 0
			row["max_entropy_"+suffix] = 0
			row["min_entropy_"+suffix] = 0
		}
		if intervalOn {
			row["mean_interval_"+suffix] = 1000000
		}
		if intervalBinsOn {
			for i := 1; i < len(intervalBinEdges); i++ {
				row[fmt.Sprintf("bin_%d_interval_%s", int(intervalBinEdges[i-1]), suffix)] = 0
			}
		}
		if tcpLenOn {
			row["top1_tcp_len_"+suffix] = 0
			row["top2_tcp_len_"+suffix] = 0
			row["mean_tcp_len_"+suffix] = 0
		}
		if tcpLenBinsOn {
			for i := 1; i < len(tcpLenBinEdges); i++ {
				row[fmt.Sprintf("bin_%d_len_%s", int(tcpLenBinEdges[i-1]), suffix)] = 0
			}
		}
		if pshOn {
			row["push_ratio_"+suffix] = 0
		}
		return
	}

	var entropies []float64
	var intervals []float64
	intervalBins := make([]int, len(intervalBinEdges)-1)
	var payloadLengths []int
	lengthBins := make([]int, len(tcpLenBinEdges)-1)
	var ack, psh int

	seqsSeen := make(map[uint32]struct{})
	var prevTime float64
	havePrev := false

	for _, p := range dirPackets {
		if p.TCP == nil {
			continue
		}
		peer, clientIP := sel(p)
		peerIPsSeen[peer] = struct{}{}
		clientIPsSeen[clientIP] = struct{}{}

		if entropyOn {
			entropies = append(entropies, entropy.ByteEntropy(p.TCP.Payload))
		}

		if _, seen := seqsSeen[p.TCP.Seq]; !seen {
			seqsSeen[p.TCP.Seq] = struct{}{}
			if !havePrev {
				prevTime = p.TimeSecs * 1e6
				havePrev = true
			} else {
				t := p.TimeSecs * 1e6
				interval := math.Abs(t - prevTime)
				if intervalOn {
					intervals = append(intervals, interval)
				}
				if intervalBinsOn {
					for i := 1; i < len(intervalBinEdges); i++ {
						if intervalBinEdges[i-1] <= interval && interval < intervalBinEdges[i] {
							intervalBins[i-1]++
							break
						}
					}
				}
				prevTime = t
			}
		}

		length := len(p.TCP.Payload)
		if tcpLenOn {
			payloadLengths = append(payloadLengths, length)
		}
		if tcpLenBinsOn {
			l := length
			if l > tcpLenBinMax {
				lengthBins[len(lengthBins)-1] += l / tcpLenBinMax
				l = l % tcpLenBinMax
			}
			for i := 1; i < len(tcpLenBinEdges); i++ {
				if tcpLenBinEdges[i-1] <= float64(l) && float64(l) < tcpLenBinEdges[i] {
					lengthBins[i-1]++
					break
				}
			}
		}

		if pshOn && p.TCP.Flags.ACK {
			ack++
			if p.TCP.Flags.PSH {
				psh++
			}
		}
	}

	n := float64(len(dirPackets))

	if entropyOn {
		row["mean_entropy_"+suffix] = meanOf(entropies)
		row["max_entropy_"+suffix] = maxOf(entropies)
		row["min_entropy_"+suffix] = minOf(entropies)
	}

	if intervalOn {
		if len(intervals) == 0 {
			row["mean_interval_"+suffix] = 1000000
		} else {
			row["mean_interval_"+suffix] = meanOf(intervals)
		}
	}

	if intervalBinsOn {
		for i := 1; i < len(intervalBinEdges); i++ {
			row[fmt.Sprintf("bin_%d_interval_%s", int(intervalBinEdges[i-1]), suffix)] = float64(intervalBins[i-1]) / n
		}
	}

	if tcpLenOn {
		top1, top2 := rarestTwoLengths(payloadLengths)
		row["top1_tcp_len_"+suffix] = float64(top1)
		row["top2_tcp_len_"+suffix] = float64(top2)
		row["mean_tcp_len_"+suffix] = meanOfInts(payloadLengths)
	}

	if tcpLenBinsOn {
		for i := 1; i < len(tcpLenBinEdges); i++ {
			row[fmt.Sprintf("bin_%d_len_%s", int(tcpLenBinEdges[i-1]), suffix)] = float64(lengthBins[i-1]) / n
		}
	}

	if pshOn {
		if ack > 0 {
			row["push_ratio_"+suffix] = float64(psh) / float64(ack)
		} else {
			row["push_ratio_"+suffix] = 0
		}
	}
}

// rarestTwoLengths reproduces a known discrepancy in the reference
// implementation: payload-length counts are sorted ascending by
// frequency before the first two are taken as "top1"/"top2", so these
// are in fact the two least frequent lengths, not the most frequent ones
// the name and historical docstring suggest. This must be preserved for
// comparability with prior detection results; see DESIGN.md and
// MostFrequentTCPLen for the corrected, separately named feature.
func rarestTwoLengths(lengths []int) (int, int) {
	counts := make(map[int]int)
	var order []int
	for _, l := range lengths {
		if _, ok := counts[l]; !ok {
			order = append(order, l)
		}
		counts[l]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] < counts[order[j]]
		}
		return order[i] < order[j]
	})

	var top1, top2 int
	if len(order) > 0 {
		top1 = order[0]
	}
	if len(order) > 1 {
		top2 = order[1]
	}
	return top1, top2
}

// MostFrequentTCPLen returns the two most frequent payload lengths,
// descending by frequency, ties broken by lowest value. This is the
// corrected counterpart to rarestTwoLengths/top1_tcp_len, added alongside
// it rather than replacing it (see DESIGN.md).
func MostFrequentTCPLen(lengths []int) (int, int) {
	counts := make(map[int]int)
	var order []int
	for _, l := range lengths {
		if _, ok := counts[l]; !ok {
			order = append(order, l)
		}
		counts[l]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return order[i] < order[j]
	})

	var top1, top2 int
	if len(order) > 0 {
		top1 = order[0]
	}
	if len(order) > 1 {
		top2 = order[1]
	}
	return top1, top2
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanOfInts(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum int
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
