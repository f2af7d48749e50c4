package traffic

import (
	"math"
	"sort"

	"github.com/vitus133/CovertMark/packet"
)

// Synchronise shifts every packet's timestamp by (targetTime -
// packets[0].TimeSecs), after an optional chronological sort, so the trace
// starts at targetTime. Synchronise(Synchronise(P, t), t') is equivalent
// to Synchronise(P, t') (idempotent re-anchoring): the shift is always
// computed relative to the (possibly already shifted) first packet.
func Synchronise(packets []packet.Packet, targetTime float64, sort_ bool) ([]packet.Packet, error) {
	if math.IsNaN(targetTime) || math.IsInf(targetTime, 0) {
		return nil, ErrInvalidTarget
	}
	if len(packets) == 0 {
		return nil, nil
	}

	ps := append([]packet.Packet(nil), packets...)
	if sort_ {
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].TimeSecs < ps[j].TimeSecs })
	}

	diff := targetTime - ps[0].TimeSecs
	out := make([]packet.Packet, len(ps))
	for i, p := range ps {
		p.TimeSecs += diff
		out[i] = p
	}
	return out, nil
}
