package traffic

import (
	"github.com/vitus133/CovertMark/packet"
)

// clientPeerKey identifies a (matching client subnet string, peer IP)
// pair used to group bidirectional packets belonging to the same flow.
type clientPeerKey struct {
	client string
	peer   string
}

// GroupByClientFixed groups packets by the (client subnet, peer IP) pair
// the packet matches, then splits each group into fixed-size windows of n
// packets, discarding each group's trailing partial window. Packets not
// matching any client subnet are discarded. Chronological order within
// each group is preserved from the input order.
func GroupByClientFixed(packets []packet.Packet, clients []packet.Subnet, n int) (map[[2]string][]Window, error) {
	if n < 1 {
		return nil, ErrInvalidWindow
	}
	if len(clients) == 0 {
		return map[[2]string][]Window{}, nil
	}

	grouped := make(map[clientPeerKey][]packet.Packet)
	order := make([]clientPeerKey, 0)

	for _, p := range packets {
		var matchedClient string
		var peer string
		matched := false

		for _, client := range clients {
			if client.OverlapsIP(p.Src) {
				matchedClient = client.String()
				peer = p.Dst
				matched = true
				break
			}
			if client.OverlapsIP(p.Dst) {
				matchedClient = client.String()
				peer = p.Src
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		key := clientPeerKey{client: matchedClient, peer: peer}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], p)
	}

	out := make(map[[2]string][]Window, len(grouped))
	for _, key := range order {
		ps := grouped[key]
		windows, err := WindowFixed(ps, n)
		if err != nil {
			return nil, err
		}
		out[[2]string{key.client, key.peer}] = windows
	}
	return out, nil
}
