package traffic

import (
	"sort"

	"github.com/vitus133/CovertMark/packet"
)

// ClusterTCPPayloadLengths collects the payload length of every TCP
// packet whose length is strictly below MTUAvoidanceThresholdClustering
// (excluding MTU-class packets to avoid hardware-segmentation bias), and
// if tlsOnly also requires a recognised TLS record header, then clusters
// the resulting 1-D set of integers with mean-shift using the given
// bandwidth (the maximum intra-cluster distance). Returns the clusters as
// sets of the integer lengths they contain, ordered by cluster frequency
// descending, ties broken by lowest-length-first. Returns an empty slice
// if no payload lengths qualify.
func ClusterTCPPayloadLengths(packets []packet.Packet, tlsOnly bool, bandwidth int) []map[int]struct{} {
	var lengths []int
	for _, p := range packets {
		if p.TCP == nil {
			continue
		}
		if tlsOnly && p.TLS == nil {
			continue
		}
		l := len(p.TCP.Payload)
		if l >= MTUAvoidanceThresholdClustering {
			continue
		}
		lengths = append(lengths, l)
	}
	return meanShiftCluster(lengths, bandwidth)
}

// ClusterUDPLengths collects the frame length of every UDP packet whose
// length is strictly below MTUAvoidanceThresholdClustering, and clusters
// the resulting 1-D set of integers with mean-shift using the given
// bandwidth, analogously to ClusterTCPPayloadLengths.
func ClusterUDPLengths(packets []packet.Packet, bandwidth int) []map[int]struct{} {
	var lengths []int
	for _, p := range packets {
		if p.Proto != "UDP" {
			continue
		}
		if p.Len >= MTUAvoidanceThresholdClustering {
			continue
		}
		lengths = append(lengths, p.Len)
	}
	return meanShiftCluster(lengths, bandwidth)
}

// meanShiftCluster clusters a 1-D set of integer values using a
// flat-kernel mean-shift with the given bandwidth: starting from every
// distinct value as a seed, each seed seeks the mean of all points within
// bandwidth of its current position until convergence, and seeds
// converging to the same mode merge into the same cluster. Clusters are
// returned ordered by frequency descending (the number of input values,
// duplicates included, that fall in the cluster), ties broken by the
// lowest member value.
func meanShiftCluster(values []int, bandwidth int) []map[int]struct{} {
	if len(values) == 0 {
		return nil
	}
	if bandwidth < 1 {
		bandwidth = 1
	}

	points := make([]float64, len(values))
	for i, v := range values {
		points[i] = float64(v)
	}

	// Seed from every distinct value, ascending, for determinism.
	seedSet := make(map[int]struct{})
	for _, v := range values {
		seedSet[v] = struct{}{}
	}
	seeds := make([]int, 0, len(seedSet))
	for v := range seedSet {
		seeds = append(seeds, v)
	}
	sort.Ints(seeds)

	bw := float64(bandwidth)
	modes := make([]float64, len(seeds))
	for i, seed := range seeds {
		mean := float64(seed)
		for iter := 0; iter < 300; iter++ {
			var sum float64
			var count int
			for _, p := range points {
				if p >= mean-bw && p <= mean+bw {
					sum += p
					count++
				}
			}
			if count == 0 {
				break
			}
			next := sum / float64(count)
			if next == mean {
				break
			}
			mean = next
		}
		modes[i] = mean
	}

	// Merge modes within bandwidth of each other into the same cluster,
	// then assign every original value to the nearest surviving mode.
	clusterModes := mergeModes(modes, bw)

	members := make([]map[int]struct{}, len(clusterModes))
	for i := range members {
		members[i] = make(map[int]struct{})
	}
	for _, v := range values {
		best := 0
		bestDist := absFloat(float64(v) - clusterModes[0])
		for i, m := range clusterModes {
			d := absFloat(float64(v) - m)
			if d < bestDist {
				bestDist = d
				best = i
			}
		}
		members[best][v] = struct{}{}
	}

	// Drop any mode that, after assignment, ended up empty (can happen
	// when a merged mode sits exactly between two others).
	var clusters []map[int]struct{}
	for _, m := range members {
		if len(m) > 0 {
			clusters = append(clusters, m)
		}
	}

	freq := make(map[int]int)
	for _, v := range values {
		freq[v]++
	}
	weight := func(c map[int]struct{}) int {
		n := 0
		for v := range c {
			n += freq[v]
		}
		return n
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		if wi, wj := weight(clusters[i]), weight(clusters[j]); wi != wj {
			return wi > wj
		}
		return minKey(clusters[i]) < minKey(clusters[j])
	})

	return clusters
}

// mergeModes collapses modes within bandwidth of one another, returning
// the distinct surviving mode positions in ascending order.
func mergeModes(modes []float64, bandwidth float64) []float64 {
	sorted := append([]float64(nil), modes...)
	sort.Float64s(sorted)

	var merged []float64
	for _, m := range sorted {
		if len(merged) == 0 || absFloat(m-merged[len(merged)-1]) > bandwidth {
			merged = append(merged, m)
		}
	}
	return merged
}

func minKey(m map[int]struct{}) int {
	first := true
	var min int
	for k := range m {
		if first || k < min {
			min = k
			first = false
		}
	}
	return min
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
