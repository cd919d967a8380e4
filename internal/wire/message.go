package wire

import (
	"encoding/binary"
	"fmt"
)

// MessageType identifies the shape of a frame's payload.
type MessageType uint16

const (
	TypeJoinReq MessageType = iota + 1
	TypeJoinResp
	TypeNotifyReq
	TypeNotifyResp
	TypeInfoReq
	TypeInfoResp
	TypePing
	TypePong
	// TypeFindSuccessorReq/Resp carry a lookup across the point where a
	// node's own fingers run out of knowledge and the next hop must be
	// asked to continue the walk.
	TypeFindSuccessorReq
	TypeFindSuccessorResp
)

// IsResponse reports whether t is a reply type. Correlation ids are
// unique per direction only, so a peer's own request may carry an id
// that collides with one of ours; the correlator uses this to match
// pending requests against genuine responses only.
func (t MessageType) IsResponse() bool {
	switch t {
	case TypeJoinResp, TypeNotifyResp, TypeInfoResp, TypePong, TypeFindSuccessorResp:
		return true
	default:
		return false
	}
}

func (t MessageType) String() string {
	switch t {
	case TypeJoinReq:
		return "JOIN_REQ"
	case TypeJoinResp:
		return "JOIN_RESP"
	case TypeNotifyReq:
		return "NOTIFY_REQ"
	case TypeNotifyResp:
		return "NOTIFY_RESP"
	case TypeInfoReq:
		return "INFO_REQ"
	case TypeInfoResp:
		return "INFO_RESP"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	case TypeFindSuccessorReq:
		return "FIND_SUCCESSOR_REQ"
	case TypeFindSuccessorResp:
		return "FIND_SUCCESSOR_RESP"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// Addr is the wire encoding of a listener address: (host_len u8, host
// bytes, port u16). A zero-length host with port 0 encodes "absent"
// (used instead of overloading the identifier space with a sentinel
// hash for an unknown predecessor/successor).
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) empty() bool { return a.Host == "" && a.Port == 0 }

func encodeAddr(buf []byte, a Addr) []byte {
	buf = append(buf, byte(len(a.Host)))
	buf = append(buf, a.Host...)
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], a.Port)
	return append(buf, p[:]...)
}

func decodeAddr(b []byte) (Addr, []byte, error) {
	if len(b) < 1 {
		return Addr{}, nil, fmt.Errorf("%w: truncated addr length", ErrMalformedBody)
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n+2 {
		return Addr{}, nil, fmt.Errorf("%w: truncated addr body", ErrMalformedBody)
	}
	host := string(b[:n])
	port := binary.BigEndian.Uint16(b[n : n+2])
	return Addr{Host: host, Port: port}, b[n+2:], nil
}

// JoinReq is the payload of TypeJoinReq.
type JoinReq struct {
	ListenAddr Addr
}

func EncodeJoinReq(m JoinReq) []byte {
	return encodeAddr(nil, m.ListenAddr)
}

func DecodeJoinReq(b []byte) (JoinReq, error) {
	addr, _, err := decodeAddr(b)
	if err != nil {
		return JoinReq{}, err
	}
	return JoinReq{ListenAddr: addr}, nil
}

// JoinResp is the payload of TypeJoinResp: the responder's chosen
// successor node, by hash and listener address.
type JoinResp struct {
	NodeHash   []byte
	ListenAddr Addr
}

func EncodeJoinResp(hashLen int, m JoinResp) ([]byte, error) {
	if len(m.NodeHash) != hashLen {
		return nil, fmt.Errorf("%w: node hash length %d, want %d", ErrBadHash, len(m.NodeHash), hashLen)
	}
	buf := append([]byte(nil), m.NodeHash...)
	return encodeAddr(buf, m.ListenAddr), nil
}

func DecodeJoinResp(hashLen int, b []byte) (JoinResp, error) {
	if len(b) < hashLen {
		return JoinResp{}, fmt.Errorf("%w: truncated node hash", ErrBadHash)
	}
	nodeHash := append([]byte(nil), b[:hashLen]...)
	addr, _, err := decodeAddr(b[hashLen:])
	if err != nil {
		return JoinResp{}, err
	}
	return JoinResp{NodeHash: nodeHash, ListenAddr: addr}, nil
}

// NodeView is the shared payload shape of NOTIFY_RESP and INFO_RESP: the
// responder's own identity plus its current successor/predecessor views.
type NodeView struct {
	NodeHash        []byte
	SuccessorAddr   Addr
	PredecessorAddr Addr
}

func EncodeNodeView(m NodeView) []byte {
	buf := append([]byte(nil), m.NodeHash...)
	buf = encodeAddr(buf, m.SuccessorAddr)
	buf = encodeAddr(buf, m.PredecessorAddr)
	return buf
}

func DecodeNodeView(hashLen int, b []byte) (NodeView, error) {
	if len(b) < hashLen {
		return NodeView{}, fmt.Errorf("%w: truncated node hash", ErrBadHash)
	}
	nodeHash := append([]byte(nil), b[:hashLen]...)
	rest := b[hashLen:]
	succAddr, rest, err := decodeAddr(rest)
	if err != nil {
		return NodeView{}, err
	}
	predAddr, _, err := decodeAddr(rest)
	if err != nil {
		return NodeView{}, err
	}
	return NodeView{NodeHash: nodeHash, SuccessorAddr: succAddr, PredecessorAddr: predAddr}, nil
}

// FindSuccessorReq is the payload of TypeFindSuccessorReq. HopsRemaining
// is set by the originator to the configured hop budget and decremented
// by each forwarding node; a node that would forward with zero hops
// remaining instead returns its own best local candidate, bounding the
// worst-case chain length even under a corrupt or inconsistent routing
// table somewhere along the path.
type FindSuccessorReq struct {
	Target        []byte
	HopsRemaining uint8
}

func EncodeFindSuccessorReq(m FindSuccessorReq) []byte {
	buf := append([]byte(nil), m.Target...)
	return append(buf, m.HopsRemaining)
}

func DecodeFindSuccessorReq(hashLen int, b []byte) (FindSuccessorReq, error) {
	if len(b) != hashLen+1 {
		return FindSuccessorReq{}, fmt.Errorf("%w: payload length %d, want %d", ErrMalformedBody, len(b), hashLen+1)
	}
	return FindSuccessorReq{Target: append([]byte(nil), b[:hashLen]...), HopsRemaining: b[hashLen]}, nil
}

// FindSuccessorResp is the payload of TypeFindSuccessorResp: the resolved
// node, by hash and listener address.
type FindSuccessorResp struct {
	NodeHash   []byte
	ListenAddr Addr
}

func EncodeFindSuccessorResp(m FindSuccessorResp) []byte {
	buf := append([]byte(nil), m.NodeHash...)
	return encodeAddr(buf, m.ListenAddr)
}

func DecodeFindSuccessorResp(hashLen int, b []byte) (FindSuccessorResp, error) {
	if len(b) < hashLen {
		return FindSuccessorResp{}, fmt.Errorf("%w: truncated node hash", ErrBadHash)
	}
	nodeHash := append([]byte(nil), b[:hashLen]...)
	addr, _, err := decodeAddr(b[hashLen:])
	if err != nil {
		return FindSuccessorResp{}, err
	}
	return FindSuccessorResp{NodeHash: nodeHash, ListenAddr: addr}, nil
}
