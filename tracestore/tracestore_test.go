package tracestore

import (
	"testing"

	"github.com/vitus133/CovertMark/packet"
)

func samplePackets() []packet.Packet {
	return []packet.Packet{
		{Src: "1.1.1.1", Dst: "2.2.2.2", Proto: "TCP", Len: 100, TCP: &packet.TCPInfo{Seq: 1, Payload: make([]byte, 40)}},
		{Src: "1.1.1.1", Dst: "3.3.3.3", Proto: "TCP", Len: 200, TCP: &packet.TCPInfo{Seq: 2, Payload: make([]byte, 140), Flags: packet.TCPFlags{ACK: true}}},
		{Src: "1.1.1.1", Dst: "2.2.2.2", Proto: "UDP", Len: 80},
	}
}

func TestInsertAndCount(t *testing.T) {
	store := NewMemStore()
	id, err := store.Insert("test", samplePackets())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := store.Count(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestRetrieveEqualityFilter(t *testing.T) {
	store := NewMemStore()
	id, _ := store.Insert("test", samplePackets())
	got, err := store.Retrieve(id, []Predicate{{Field: "proto", Op: OpEq, Value: "TCP"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
}

func TestRetrieveNestedFieldFilter(t *testing.T) {
	store := NewMemStore()
	id, _ := store.Insert("test", samplePackets())
	got, err := store.Retrieve(id, []Predicate{{Field: "tcp.flags.ack", Op: OpEq, Value: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d packets, want 1", len(got))
	}
}

func TestRetrieveNumericComparison(t *testing.T) {
	store := NewMemStore()
	id, _ := store.Insert("test", samplePackets())
	got, err := store.Retrieve(id, []Predicate{{Field: "len", Op: OpGt, Value: 90}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
}

func TestRetrieveExistsFilter(t *testing.T) {
	store := NewMemStore()
	id, _ := store.Insert("test", samplePackets())
	got, err := store.Retrieve(id, []Predicate{{Field: "tcp", Op: OpExists}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
}

func TestRetrieveUnknownCollection(t *testing.T) {
	store := NewMemStore()
	if _, err := store.Retrieve("nope", nil); err == nil {
		t.Fatalf("expected error for unknown collection")
	}
}

func TestDistinct(t *testing.T) {
	store := NewMemStore()
	id, _ := store.Insert("test", samplePackets())
	values, err := store.Distinct(id, "proto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sorted := SortedDistinct(values)
	if len(sorted) != 2 || sorted[0] != "TCP" || sorted[1] != "UDP" {
		t.Fatalf("got %v, want [TCP UDP]", sorted)
	}
}

func TestUnknownField(t *testing.T) {
	store := NewMemStore()
	id, _ := store.Insert("test", samplePackets())
	if _, err := store.Retrieve(id, []Predicate{{Field: "bogus", Op: OpEq, Value: "x"}}); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}
