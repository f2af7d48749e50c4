package traffic

import (
	"math"
	"testing"

	"github.com/vitus133/CovertMark/packet"
)

func TestSynchroniseShift(t *testing.T) {
	ps := []packet.Packet{
		mkPacket(100, "1.1.1.1", "2.2.2.2"),
		mkPacket(105, "1.1.1.1", "2.2.2.2"),
	}
	out, err := Synchronise(ps, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].TimeSecs != 0 {
		t.Errorf("out[0].TimeSecs = %v, want 0", out[0].TimeSecs)
	}
	if out[1].TimeSecs != 5 {
		t.Errorf("out[1].TimeSecs = %v, want 5", out[1].TimeSecs)
	}
}

func TestSynchroniseIdempotentReanchor(t *testing.T) {
	ps := []packet.Packet{
		mkPacket(100, "1.1.1.1", "2.2.2.2"),
		mkPacket(105, "1.1.1.1", "2.2.2.2"),
	}
	once, err := Synchronise(ps, 50, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := Synchronise(once, 80, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	direct, err := Synchronise(ps, 80, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range direct {
		if twice[i].TimeSecs != direct[i].TimeSecs {
			t.Errorf("packet %d: re-anchored twice gave %v, direct gave %v", i, twice[i].TimeSecs, direct[i].TimeSecs)
		}
	}
}

func TestSynchroniseInvalidTarget(t *testing.T) {
	ps := []packet.Packet{mkPacket(0, "1.1.1.1", "2.2.2.2")}
	if _, err := Synchronise(ps, math.NaN(), false); err != ErrInvalidTarget {
		t.Fatalf("got %v, want ErrInvalidTarget", err)
	}
	if _, err := Synchronise(ps, math.Inf(1), false); err != ErrInvalidTarget {
		t.Fatalf("got %v, want ErrInvalidTarget", err)
	}
}

func TestSynchroniseEmpty(t *testing.T) {
	out, err := Synchronise(nil, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("got %v, want nil", out)
	}
}
