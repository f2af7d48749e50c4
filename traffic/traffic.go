// Package traffic windows, groups, and reduces packet records to feature
// vectors: fixed-size and time-based windowing, client/target grouping,
// bidirectional feature extraction, time synchronisation between corpora,
// and mean-shift length clustering.
//
// Every exported function here is a pure function of its packet-slice
// argument: none of them mutate the packets they are given, and windows
// share the underlying packet.Packet values by value, not by reference
// into caller state.
package traffic

import (
	"errors"

	"github.com/vitus133/CovertMark/packet"
)

// ErrInvalidWindow is returned by WindowFixed when given a non-positive
// window size.
var ErrInvalidWindow = errors.New("traffic: invalid window size")

// ErrInvalidTarget is returned by Synchronise when given a non-finite
// target time.
var ErrInvalidTarget = errors.New("traffic: invalid target time")

// MTUAvoidanceThresholdClustering is the length ceiling (strictly below)
// under which TCP payload lengths and UDP frame lengths are eligible for
// length clustering.
// MTU-class packets are excluded to avoid hardware-segmentation bias.
// Intentionally distinct from tcpLenBinMax used in feature binning; the
// two must not be unified (see design notes).
const MTUAvoidanceThresholdClustering = 1400

// Window is an ordered sequence of packets, either fixed-count or
// time-bounded. It is a plain slice: apart from WindowTime's optional
// chronological sort (applied to a copy), windowing functions never
// reorder their input, only partition it.
type Window []packet.Packet
