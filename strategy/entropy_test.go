package strategy

import (
	"math/rand"
	"testing"

	"github.com/vitus133/CovertMark/packet"
)

func randomPayload(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func repeatedPayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'A'
	}
	return b
}

func entropyTCPPacket(src, dst string, payload []byte) packet.Packet {
	return packet.Packet{Src: src, Dst: dst, Proto: "TCP", Len: len(payload) + 40, TCP: &packet.TCPInfo{Payload: payload}}
}

func TestEntropyStrategySensitivityScenario(t *testing.T) {
	s := &EntropyDistStrategy{}
	cfg := EntropyConfig{BlockSize: 32, PThreshold: 0.1, Criterion: 1}
	p := entropyTCPPacket("1.1.1.1", "2.2.2.2", randomPayload(2048, 42))
	classified, qualifies := s.classify(p, cfg)
	if !qualifies {
		t.Fatalf("expected payload to qualify for testing")
	}
	if !classified {
		t.Fatalf("expected uniformly-random 2048-byte payload classified high-entropy at criterion 1")
	}
}

func TestEntropyStrategySpecificityScenario(t *testing.T) {
	s := &EntropyDistStrategy{}
	cfg := EntropyConfig{BlockSize: 32, PThreshold: 0.1, Criterion: 1}
	p := entropyTCPPacket("1.1.1.1", "2.2.2.2", repeatedPayload(2048))
	classified, qualifies := s.classify(p, cfg)
	if !qualifies {
		t.Fatalf("expected payload to qualify for testing")
	}
	if classified {
		t.Fatalf("expected repeated-byte 2048-byte payload classified NOT high-entropy at criterion 1")
	}
}

func TestEntropyConfigSpecificPenalty(t *testing.T) {
	s := &EntropyDistStrategy{}
	if p := s.ConfigSpecificPenalty(EntropyConfig{Criterion: 1}); p != 0 {
		t.Errorf("penalty at min criterion = %v, want 0", p)
	}
	if p := s.ConfigSpecificPenalty(EntropyConfig{Criterion: 3}); p != 0.2 {
		t.Errorf("penalty at criterion 3 = %v, want 0.2", p)
	}
}

func TestDecideInclusionThreshold(t *testing.T) {
	var packets []packet.Packet
	for i := 0; i < 15; i++ {
		packets = append(packets, packet.Packet{TLS: &packet.TLSInfo{}})
	}
	for i := 0; i < 85; i++ {
		packets = append(packets, packet.Packet{})
	}
	includeTLS, includeHTTP := DecideInclusion(packets)
	if !includeTLS {
		t.Errorf("expected TLS retained at 15%% population")
	}
	if includeHTTP {
		t.Errorf("expected HTTP excluded at 0%% population")
	}
}

func TestEntropyDistStrategyRun(t *testing.T) {
	s := &EntropyDistStrategy{}
	var positive []packet.Packet
	for i := 0; i < 5; i++ {
		positive = append(positive, entropyTCPPacket("1.1.1.1", "2.2.2.2", randomPayload(2048, int64(i))))
	}
	var negative []packet.Packet
	for i := 0; i < 5; i++ {
		negative = append(negative, entropyTCPPacket("3.3.3.3", "4.4.4.4", repeatedPayload(2048)))
	}
	results, best, filter, err := s.Run(positive, negative, len(negative))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(EntropyConfigGrid()) {
		t.Fatalf("got %d results, want %d", len(results), len(EntropyConfigGrid()))
	}
	if best < 0 || best >= len(results) {
		t.Fatalf("best index %d out of range for %d results", best, len(results))
	}
	_ = filter.String()
}

func TestEntropyStrategyTruncatesLongPayloads(t *testing.T) {
	s := &EntropyDistStrategy{}
	cfg := EntropyConfig{BlockSize: 32, PThreshold: 0.1, Criterion: 3}

	head := randomPayload(2048, 7)
	long := append(append([]byte(nil), head...), repeatedPayload(2048)...)

	gotHead, qualifies := s.classify(entropyTCPPacket("1.1.1.1", "2.2.2.2", head), cfg)
	if !qualifies {
		t.Fatalf("expected 2048-byte payload to qualify for testing")
	}
	gotLong, qualifies := s.classify(entropyTCPPacket("1.1.1.1", "2.2.2.2", long), cfg)
	if !qualifies {
		t.Fatalf("expected 4096-byte payload to qualify for testing")
	}
	if gotLong != gotHead {
		t.Fatalf("4096-byte payload classified %v, 2048-byte prefix classified %v: only the first 2048 bytes may be examined", gotLong, gotHead)
	}
}
