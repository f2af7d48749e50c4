// Package pcappkt reads PCAP-format packet capture archives and produces
// packet.Packet records, decoding Ethernet/IP/TCP/UDP layers and
// sniffing a TLS record header or an HTTP request/response line from
// each payload.
package pcappkt

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/m-lab/go/logx"

	"github.com/vitus133/CovertMark/packet"
	"github.com/vitus133/CovertMark/tracestore"
)

var (
	info         = log.New(os.Stdout, "pcappkt: ", log.LstdFlags|log.Lshortfile)
	sparseLogger = log.New(os.Stdout, "pcappkt-sparse: ", log.LstdFlags|log.Lshortfile)
	sparse20     = logx.NewLogEvery(sparseLogger, 50*time.Millisecond)
)

// ErrNoIPLayer is returned when a captured frame carries no recognised
// IPv4 or IPv6 layer.
var ErrNoIPLayer = errors.New("pcappkt: no IP layer")

// tlsContentTypes enumerates the TLS record content-type byte values the
// sniffer recognises; anything else is not treated as a TLS record.
var tlsContentTypes = map[uint8]bool{20: true, 21: true, 22: true, 23: true}

// httpMethods are the request-line prefixes the HTTP sniffer checks for.
var httpMethods = []string{"GET ", "POST ", "PUT ", "HEAD ", "DELETE ", "OPTIONS ", "CONNECT "}

// Direction names which address an IP filter's subnet is matched
// against.
type Direction int

const (
	// DirSrc matches a packet's source address.
	DirSrc Direction = iota
	// DirDst matches a packet's destination address.
	DirDst
	// DirEither matches either address.
	DirEither
)

// IPFilter is one (subnet, direction) inclusion rule. A Parser with a
// non-empty filter set drops every packet matching no rule.
type IPFilter struct {
	Subnet    packet.Subnet
	Direction Direction
}

func (f IPFilter) matches(p packet.Packet) bool {
	switch f.Direction {
	case DirSrc:
		return f.Subnet.OverlapsIP(p.Src)
	case DirDst:
		return f.Subnet.OverlapsIP(p.Dst)
	default:
		return f.Subnet.OverlapsIP(p.Src) || f.Subnet.OverlapsIP(p.Dst)
	}
}

// Parser reads a PCAP archive into packet.Packet records. It is the
// concrete realisation of the external PCAP-parsing collaborator the
// detection strategies depend on only through the packet.Packet contract.
type Parser struct {
	filters []IPFilter
}

// NewParser returns a ready-to-use Parser with no IP filter set.
func NewParser() *Parser {
	return &Parser{}
}

// SetIPFilter replaces the parser's IP inclusion rules. An empty filter
// set (the default) retains every packet.
func (pr *Parser) SetIPFilter(filters []IPFilter) {
	pr.filters = filters
}

func (pr *Parser) passesFilter(p packet.Packet) bool {
	if len(pr.filters) == 0 {
		return true
	}
	for _, f := range pr.filters {
		if f.matches(p) {
			return true
		}
	}
	return false
}

// LoadAndInsertNew reads the PCAP archive at path, applies the
// configured IP filter, and inserts the surviving packets into store
// under description, returning the new collection's ID.
func (pr *Parser) LoadAndInsertNew(path, description string, store tracestore.Store) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("pcappkt: %w", err)
	}
	packets, err := pr.ParseBytes(data)
	if err != nil {
		return "", err
	}
	if len(pr.filters) > 0 {
		filtered := make([]packet.Packet, 0, len(packets))
		for _, p := range packets {
			if pr.passesFilter(p) {
				filtered = append(filtered, p)
			}
		}
		packets = filtered
	}
	return store.Insert(description, packets)
}

// ParseBytes decodes every frame in a PCAP archive's raw bytes (as read
// from an uncompressed .pcap file) into packet.Packet records, in
// capture order. Frames with no recognised IP layer are counted and
// skipped rather than failing the whole archive.
func (pr *Parser) ParseBytes(data []byte) ([]packet.Packet, error) {
	reader, err := pcapgo.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("pcappkt: %w", err)
	}

	packets := make([]packet.Packet, 0, len(data)/512)
	skipped := 0
	for {
		raw, ci, err := reader.ReadPacketData()
		if err != nil {
			break
		}
		p, err := decodeFrame(raw, ci)
		if err != nil {
			skipped++
			sparse20.Printf("skipping frame: %v", err)
			continue
		}
		packets = append(packets, p)
	}
	if skipped > 0 {
		info.Printf("skipped %d frames with no recognised IP layer", skipped)
	}
	return packets, nil
}

// decodeFrame decodes a single captured frame into a packet.Packet,
// extracting IPv4/IPv6 addressing, TCP or UDP transport fields, and
// sniffing TLS/HTTP from the payload.
func decodeFrame(raw []byte, ci gopacket.CaptureInfo) (packet.Packet, error) {
	decoded := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:                     true,
		NoCopy:                   true,
		SkipDecodeRecovery:       true,
		DecodeStreamsAsDatagrams: false,
	})

	out := packet.Packet{
		TimeSecs: float64(ci.Timestamp.UnixNano()) / 1e9,
		Len:      ci.Length,
	}

	var srcIP, dstIP string
	var nextProto layers.IPProtocol
	if ipLayer := decoded.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip := ipLayer.(*layers.IPv4)
		srcIP, dstIP = ip.SrcIP.String(), ip.DstIP.String()
		nextProto = ip.Protocol
	} else if ipLayer := decoded.Layer(layers.LayerTypeIPv6); ipLayer != nil {
		ip := ipLayer.(*layers.IPv6)
		srcIP, dstIP = ip.SrcIP.String(), ip.DstIP.String()
		nextProto = ip.NextHeader
	} else {
		return packet.Packet{}, ErrNoIPLayer
	}
	out.Src, out.Dst = srcIP, dstIP

	switch nextProto {
	case layers.IPProtocolTCP:
		out.Proto = "TCP"
		if tcpLayer := decoded.Layer(layers.LayerTypeTCP); tcpLayer != nil {
			tcp := tcpLayer.(*layers.TCP)
			out.TCP = &packet.TCPInfo{
				Payload: append([]byte{}, tcp.Payload...),
				Seq:     tcp.Seq,
				Flags: packet.TCPFlags{
					ACK: tcp.ACK, PSH: tcp.PSH, SYN: tcp.SYN, FIN: tcp.FIN, RST: tcp.RST, URG: tcp.URG,
				},
			}
			out.TLS = sniffTLS(tcp.Payload)
			out.HTTP = sniffHTTP(tcp.Payload)
		}
	case layers.IPProtocolUDP:
		out.Proto = "UDP"
	default:
		out.Proto = nextProto.String()
	}

	return out, nil
}

// sniffTLS returns a non-nil TLSInfo iff payload begins with a
// plausible TLS record header: a known content-type byte followed by a
// version pair with major byte 3 and minor byte 0 through 4 (SSL 3.0 up
// to the TLS 1.x record versions).
func sniffTLS(payload []byte) *packet.TLSInfo {
	if len(payload) < 5 {
		return nil
	}
	if !tlsContentTypes[payload[0]] {
		return nil
	}
	if payload[1] != 3 || payload[2] > 4 {
		return nil
	}
	return &packet.TLSInfo{
		ContentType: payload[0],
		Version:     uint16(payload[1])<<8 | uint16(payload[2]),
	}
}

// sniffHTTP returns a non-nil HTTPInfo iff payload begins with a
// recognised HTTP/1.x request method or a "HTTP/1." response status
// line.
func sniffHTTP(payload []byte) *packet.HTTPInfo {
	line := firstLine(payload)
	if line == "" {
		return nil
	}
	for _, m := range httpMethods {
		if strings.HasPrefix(line, m) {
			return &packet.HTTPInfo{IsRequest: true, FirstLine: line}
		}
	}
	if strings.HasPrefix(line, "HTTP/1.") {
		return &packet.HTTPInfo{IsRequest: false, FirstLine: line}
	}
	return nil
}

func firstLine(payload []byte) string {
	idx := bytes.IndexByte(payload, '\n')
	if idx < 0 {
		idx = len(payload)
	}
	line := strings.TrimRight(string(payload[:idx]), "\r\n")
	if !isPrintableASCII(line) {
		return ""
	}
	return line
}

func isPrintableASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return len(s) > 0
}
