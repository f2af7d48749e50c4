// Package packet defines the immutable packet record and subnet predicate
// shared by the traffic-statistics library and the detection strategies.
package packet

import (
	"fmt"
	"net"
	"sort"
)

// TCPFlags records the subset of TCP control bits the detection engine
// cares about.
type TCPFlags struct {
	ACK, PSH, SYN, FIN, RST, URG bool
}

// TCPInfo holds TCP-layer fields extracted from a packet carrying a TCP
// segment. Payload is a possibly-empty byte slice (never nil).
type TCPInfo struct {
	Payload []byte
	Seq     uint32
	Flags   TCPFlags
}

// TLSInfo is non-nil iff a TLS record header was recognised in the
// packet's payload. No further content is modelled.
type TLSInfo struct {
	ContentType uint8
	Version     uint16
}

// HTTPInfo is non-nil iff an HTTP request or response line was recognised
// in the packet's payload.
type HTTPInfo struct {
	IsRequest bool
	FirstLine string
}

// Packet is an immutable packet record, as produced by the PCAP parser
// collaborator and consumed read-only by every strategy.
type Packet struct {
	TimeSecs float64 // fractional seconds since epoch, microsecond precision.
	Src      string  // textual IP address.
	Dst      string  // textual IP address.
	Proto    string  // "TCP", "UDP", or other.
	Len      int     // frame length in bytes.
	TCP      *TCPInfo
	TLS      *TLSInfo
	HTTP     *HTTPInfo
}

// TimeMicros returns the packet timestamp in integer microseconds since
// epoch.
func (p Packet) TimeMicros() int64 {
	return int64(p.TimeSecs * 1e6)
}

// Subnet is a CIDR range (or a single host, represented as a /32 or /128)
// with a symmetric overlap predicate.
type Subnet struct {
	net *net.IPNet
}

// BuildSubnet parses a textual IP address or CIDR range into a Subnet.
func BuildSubnet(s string) (Subnet, error) {
	if ip, cidr, err := net.ParseCIDR(s); err == nil {
		cidr.IP = ip.Mask(cidr.Mask)
		return Subnet{net: cidr}, nil
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return Subnet{}, fmt.Errorf("packet: invalid IP or CIDR: %q", s)
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	} else {
		ip = ip.To4()
	}
	mask := net.CIDRMask(bits, bits)
	return Subnet{net: &net.IPNet{IP: ip.Mask(mask), Mask: mask}}, nil
}

// MustBuildSubnet is like BuildSubnet but panics on error; useful for
// static client-subnet tables in tests and strategy setup.
func MustBuildSubnet(s string) Subnet {
	sub, err := BuildSubnet(s)
	if err != nil {
		panic(err)
	}
	return sub
}

// Overlaps reports whether the two subnets share at least one address.
// Overlap is symmetric: a.Overlaps(b) == b.Overlaps(a).
func (s Subnet) Overlaps(other Subnet) bool {
	if s.net == nil || other.net == nil {
		return false
	}
	return s.net.Contains(other.net.IP) || other.net.Contains(s.net.IP)
}

// OverlapsIP reports whether the subnet contains the given textual IP
// address. An unparsable address never overlaps.
func (s Subnet) OverlapsIP(ip string) bool {
	other, err := BuildSubnet(ip)
	if err != nil {
		return false
	}
	return s.Overlaps(other)
}

// String returns the CIDR representation of the subnet.
func (s Subnet) String() string {
	if s.net == nil {
		return ""
	}
	return s.net.String()
}

// SubnetsFromStrings builds a Subnet for each input string, returning an
// error on the first unparsable entry.
func SubnetsFromStrings(ips []string) ([]Subnet, error) {
	out := make([]Subnet, 0, len(ips))
	for _, ip := range ips {
		s, err := BuildSubnet(ip)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SortStrings returns a sorted copy of ss, used wherever deterministic
// iteration order over a set of IPs is required for reproducible output.
func SortStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}
