package tracestore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vitus133/CovertMark/packet"
)

// matches evaluates a single predicate against a packet.
func matches(p packet.Packet, pred Predicate) (bool, error) {
	if pred.Op == OpExists {
		present, err := fieldExists(p, pred.Field)
		if err != nil {
			return false, err
		}
		return present, nil
	}

	got, err := fieldValue(p, pred.Field)
	if err != nil {
		return false, err
	}

	switch pred.Op {
	case OpEq:
		return compareEq(got, pred.Value), nil
	case OpNeq:
		return !compareEq(got, pred.Value), nil
	case OpGt, OpLt:
		gotF, ok1 := toFloat(got)
		wantF, ok2 := toFloat(pred.Value)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("tracestore: field %q is not numeric", pred.Field)
		}
		if pred.Op == OpGt {
			return gotF > wantF, nil
		}
		return gotF < wantF, nil
	default:
		return false, fmt.Errorf("tracestore: unknown operator %d", pred.Op)
	}
}

// fieldValue looks up a top-level or one-level-nested field by its
// dotted path, returning it as an interface{} holding its native Go
// type (string, float64, int, bool, uint32).
func fieldValue(p packet.Packet, field string) (interface{}, error) {
	parts := strings.SplitN(field, ".", 2)
	switch parts[0] {
	case "src":
		return p.Src, nil
	case "dst":
		return p.Dst, nil
	case "proto":
		return p.Proto, nil
	case "len":
		return p.Len, nil
	case "time_secs":
		return p.TimeSecs, nil
	case "tcp":
		if p.TCP == nil {
			return nil, nil
		}
		if len(parts) == 1 {
			return nil, fmt.Errorf("%w: %s (requires a sub-field)", ErrUnknownField, field)
		}
		return tcpSubField(*p.TCP, parts[1])
	case "tls":
		if p.TLS == nil {
			return nil, nil
		}
		if len(parts) == 1 {
			return nil, fmt.Errorf("%w: %s (requires a sub-field)", ErrUnknownField, field)
		}
		switch parts[1] {
		case "content_type":
			return p.TLS.ContentType, nil
		case "version":
			return p.TLS.Version, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	case "http":
		if p.HTTP == nil {
			return nil, nil
		}
		if len(parts) == 1 {
			return nil, fmt.Errorf("%w: %s (requires a sub-field)", ErrUnknownField, field)
		}
		switch parts[1] {
		case "is_request":
			return p.HTTP.IsRequest, nil
		case "first_line":
			return p.HTTP.FirstLine, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}

func tcpSubField(tcp packet.TCPInfo, sub string) (interface{}, error) {
	switch sub {
	case "seq":
		return tcp.Seq, nil
	case "payload_len":
		return len(tcp.Payload), nil
	case "flags.ack":
		return tcp.Flags.ACK, nil
	case "flags.psh":
		return tcp.Flags.PSH, nil
	case "flags.syn":
		return tcp.Flags.SYN, nil
	case "flags.fin":
		return tcp.Flags.FIN, nil
	case "flags.rst":
		return tcp.Flags.RST, nil
	case "flags.urg":
		return tcp.Flags.URG, nil
	}
	return nil, fmt.Errorf("%w: tcp.%s", ErrUnknownField, sub)
}

// fieldExists reports whether field names a present sub-record
// ("tcp", "tls", "http") or, for scalar fields, always true (a Packet's
// scalar fields are never absent).
func fieldExists(p packet.Packet, field string) (bool, error) {
	switch field {
	case "tcp":
		return p.TCP != nil, nil
	case "tls":
		return p.TLS != nil, nil
	case "http":
		return p.HTTP != nil, nil
	case "src", "dst", "proto", "len", "time_secs":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}

// fieldString renders a field's value as a string, for Distinct.
func fieldString(p packet.Packet, field string) (string, error) {
	v, err := fieldValue(p, field)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", v), nil
}

func compareEq(got, want interface{}) bool {
	if gotF, ok1 := toFloat(got); ok1 {
		if wantF, ok2 := toFloat(want); ok2 {
			return gotF == wantF
		}
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
