package traffic

import (
	"testing"

	"github.com/vitus133/CovertMark/packet"
)

func tcpPacket(payloadLen int) packet.Packet {
	return packet.Packet{
		Src: "1.1.1.1", Dst: "2.2.2.2", Proto: "TCP", Len: payloadLen + 40,
		TCP: &packet.TCPInfo{Payload: make([]byte, payloadLen)},
	}
}

func TestClusterTCPPayloadLengthsDisjoint(t *testing.T) {
	var ps []packet.Packet
	for i := 0; i < 20; i++ {
		ps = append(ps, tcpPacket(100))
	}
	for i := 0; i < 15; i++ {
		ps = append(ps, tcpPacket(102))
	}
	for i := 0; i < 5; i++ {
		ps = append(ps, tcpPacket(900))
	}

	clusters := ClusterTCPPayloadLengths(ps, false, 10)
	if len(clusters) == 0 {
		t.Fatalf("expected at least one cluster")
	}

	seen := make(map[int]int)
	for ci, c := range clusters {
		for v := range c {
			if prev, ok := seen[v]; ok {
				t.Errorf("value %d appears in both cluster %d and %d: clusters must be disjoint", v, prev, ci)
			}
			seen[v] = ci
		}
	}

	for i := 1; i < len(clusters); i++ {
		if len(clusters[i]) > len(clusters[i-1]) {
			t.Errorf("clusters not sorted by descending count: cluster %d has %d members, cluster %d has %d", i, len(clusters[i]), i-1, len(clusters[i-1]))
		}
	}
}

func TestClusterTCPPayloadLengthsExcludesMTUClass(t *testing.T) {
	ps := []packet.Packet{tcpPacket(MTUAvoidanceThresholdClustering), tcpPacket(MTUAvoidanceThresholdClustering + 10)}
	clusters := ClusterTCPPayloadLengths(ps, false, 10)
	if len(clusters) != 0 {
		t.Fatalf("expected MTU-class payloads excluded, got %v", clusters)
	}
}

func TestClusterTCPPayloadLengthsTLSOnly(t *testing.T) {
	p1 := tcpPacket(100)
	p1.TLS = &packet.TLSInfo{ContentType: 22}
	p2 := tcpPacket(200) // no TLS info, excluded when tlsOnly.

	clusters := ClusterTCPPayloadLengths([]packet.Packet{p1, p2}, true, 10)
	total := 0
	for _, c := range clusters {
		total += len(c)
	}
	if total != 1 {
		t.Fatalf("expected exactly 1 qualifying value with tlsOnly, got %d", total)
	}
}

func TestClusterUDPLengths(t *testing.T) {
	var ps []packet.Packet
	for i := 0; i < 10; i++ {
		ps = append(ps, packet.Packet{Proto: "UDP", Len: 512})
	}
	clusters := ClusterUDPLengths(ps, 10)
	if len(clusters) != 1 || len(clusters[0]) != 1 {
		t.Fatalf("expected a single singleton cluster, got %v", clusters)
	}
}

func TestClusterEmptyInput(t *testing.T) {
	if clusters := ClusterTCPPayloadLengths(nil, false, 10); clusters != nil {
		t.Fatalf("got %v, want nil", clusters)
	}
}
