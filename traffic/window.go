package traffic

import (
	"sort"

	"github.com/vitus133/CovertMark/packet"
)

// WindowFixed returns floor(len(packets)/n) consecutive windows of exactly
// n packets, discarding any remainder. Input order is preserved.
func WindowFixed(packets []packet.Packet, n int) ([]Window, error) {
	if n < 1 {
		return nil, ErrInvalidWindow
	}
	count := len(packets) / n
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		start := i * n
		w := make(Window, n)
		copy(w, packets[start:start+n])
		windows = append(windows, w)
	}
	return windows, nil
}

// WindowTime segments packets into half-open windows of duration deltaMicros
// microseconds, optionally sorting by timestamp first. Returns an empty
// slice if the trace's span is shorter than deltaMicros. Windows may be
// empty; their order always matches time order.
func WindowTime(packets []packet.Packet, deltaMicros int64, sort_ bool) []Window {
	if len(packets) == 0 {
		return nil
	}
	ps := packets
	if sort_ {
		ps = append([]packet.Packet(nil), packets...)
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].TimeSecs < ps[j].TimeSecs })
	}

	minT := ps[0].TimeMicros()
	maxT := ps[0].TimeMicros()
	for _, p := range ps {
		t := p.TimeMicros()
		if t < minT {
			minT = t
		}
		if t > maxT {
			maxT = t
		}
	}

	if maxT-minT < deltaMicros {
		return nil
	}

	numWindows := int((maxT-minT+deltaMicros-1)/deltaMicros) // ceil division.
	windows := make([]Window, numWindows)

	cur := 0
	for _, p := range ps {
		shifted := p.TimeMicros() - minT
		for cur < numWindows-1 && shifted >= int64(cur+1)*deltaMicros {
			cur++
		}
		windows[cur] = append(windows[cur], p)
	}
	return windows
}
