package traffic

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/vitus133/CovertMark/packet"
)

func mkPacket(t float64, src, dst string) packet.Packet {
	return packet.Packet{TimeSecs: t, Src: src, Dst: dst, Proto: "TCP", Len: 40}
}

func TestWindowFixedExactLength(t *testing.T) {
	var ps []packet.Packet
	for i := 0; i < 7; i++ {
		ps = append(ps, mkPacket(float64(i), "1.1.1.1", "2.2.2.2"))
	}
	windows, err := WindowFixed(ps, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	for _, w := range windows {
		if len(w) != 3 {
			t.Errorf("window length = %d, want 3", len(w))
		}
	}
	if diff := deep.Equal(windows[0], Window(ps[0:3])); diff != nil {
		t.Errorf("first window mismatch: %v", diff)
	}
	if diff := deep.Equal(windows[1], Window(ps[3:6])); diff != nil {
		t.Errorf("second window mismatch: %v", diff)
	}
}

func TestWindowFixedInvalidSize(t *testing.T) {
	if _, err := WindowFixed(nil, 0); err != ErrInvalidWindow {
		t.Fatalf("got %v, want ErrInvalidWindow", err)
	}
}

func TestWindowTimeScenario(t *testing.T) {
	times := []float64{0, 0.00025, 0.0005, 0.0012, 0.0025}
	var ps []packet.Packet
	for _, tm := range times {
		ps = append(ps, mkPacket(tm, "1.1.1.1", "2.2.2.2"))
	}
	windows := WindowTime(ps, 1000, false)
	if len(windows) != 3 {
		t.Fatalf("got %d windows, want 3", len(windows))
	}
	if len(windows[0]) != 3 || len(windows[1]) != 1 || len(windows[2]) != 1 {
		t.Fatalf("unexpected window shapes: %v, %v, %v", len(windows[0]), len(windows[1]), len(windows[2]))
	}
}

func TestWindowTimeTooShort(t *testing.T) {
	ps := []packet.Packet{mkPacket(0, "1.1.1.1", "2.2.2.2"), mkPacket(0.0001, "1.1.1.1", "2.2.2.2")}
	if windows := WindowTime(ps, 1000, false); windows != nil {
		t.Fatalf("got %v, want nil", windows)
	}
}

func TestWindowTimeEmpty(t *testing.T) {
	if windows := WindowTime(nil, 1000, false); windows != nil {
		t.Fatalf("got %v, want nil", windows)
	}
}
