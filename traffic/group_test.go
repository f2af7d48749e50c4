package traffic

import (
	"testing"

	"github.com/vitus133/CovertMark/packet"
)

func TestGroupByClientFixed(t *testing.T) {
	clients := []packet.Subnet{packet.MustBuildSubnet("10.0.0.0/24")}

	var ps []packet.Packet
	for i := 0; i < 4; i++ {
		ps = append(ps, mkPacket(float64(i), "10.0.0.5", "8.8.8.8"))
	}
	for i := 0; i < 2; i++ {
		ps = append(ps, mkPacket(float64(10+i), "9.9.9.9", "1.1.1.1")) // unmatched, discarded.
	}

	grouped, err := GroupByClientFixed(ps, clients, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := [2]string{"10.0.0.0/24", "8.8.8.8"}
	windows, ok := grouped[key]
	if !ok {
		t.Fatalf("missing group for %v; got %v", key, grouped)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	if len(grouped) != 1 {
		t.Fatalf("got %d groups, want 1 (unmatched packets must be discarded)", len(grouped))
	}
}

func TestGroupByClientFixedInvalidSize(t *testing.T) {
	clients := []packet.Subnet{packet.MustBuildSubnet("10.0.0.0/24")}
	if _, err := GroupByClientFixed(nil, clients, 0); err != ErrInvalidWindow {
		t.Fatalf("got %v, want ErrInvalidWindow", err)
	}
}

func TestGroupByClientFixedNoClients(t *testing.T) {
	grouped, err := GroupByClientFixed([]packet.Packet{mkPacket(0, "1.1.1.1", "2.2.2.2")}, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grouped) != 0 {
		t.Fatalf("got %v, want empty", grouped)
	}
}
