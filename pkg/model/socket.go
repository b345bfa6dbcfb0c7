package model

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// Protocol is the transport protocol of a socket.
type Protocol uint8

const (
	ProtocolTCP Protocol = iota + 1
	ProtocolUDP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParseProtocol accepts "tcp", "UDP" and the family-suffixed names OS tools
// print ("tcp4", "tcp6", "udp46", "TCPv6").
func ParseProtocol(s string) (Protocol, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(v, "tcp"):
		return ProtocolTCP, nil
	case strings.HasPrefix(v, "udp"):
		return ProtocolUDP, nil
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(b []byte) error {
	v, err := ParseProtocol(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// LocalSocket is the local half of a connection. It is comparable and is
// used directly as a map key.
type LocalSocket struct {
	IP       netip.Addr
	Port     uint16
	Protocol Protocol
}

// NewLocalSocket returns the canonical key for ip:port/proto. IPv4-mapped
// IPv6 addresses are unmapped so both spellings of an IPv4 address compare
// equal. Zones are kept.
func NewLocalSocket(ip netip.Addr, port uint16, proto Protocol) LocalSocket {
	return LocalSocket{
		IP:       ip.Unmap(),
		Port:     port,
		Protocol: proto,
	}
}

// LocalSocketFromIP is NewLocalSocket for a net.IP of either length.
func LocalSocketFromIP(ip net.IP, port uint16, proto Protocol) LocalSocket {
	addr, _ := netip.AddrFromSlice(ip)
	return NewLocalSocket(addr, port, proto)
}

// ParseLocalSocket parses the String form, e.g. "127.0.0.1:8080/tcp" or
// "[::1]:53/UDP".
func ParseLocalSocket(s string) (LocalSocket, error) {
	i := strings.LastIndexByte(s, '/')
	if i == -1 {
		return LocalSocket{}, fmt.Errorf("socket %q: missing /protocol suffix", s)
	}
	proto, err := ParseProtocol(s[i+1:])
	if err != nil {
		return LocalSocket{}, fmt.Errorf("socket %q: %w", s, err)
	}
	ap, err := netip.ParseAddrPort(s[:i])
	if err != nil {
		return LocalSocket{}, fmt.Errorf("socket %q: %w", s, err)
	}
	return NewLocalSocket(ap.Addr(), ap.Port(), proto), nil
}

func (s LocalSocket) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(s.IP, s.Port)
}

func (s LocalSocket) String() string {
	return s.AddrPort().String() + "/" + s.Protocol.String()
}

// Compare orders sockets by IP, then port, then protocol.
func (s LocalSocket) Compare(o LocalSocket) int {
	if c := s.IP.Compare(o.IP); c != 0 {
		return c
	}
	if c := cmp.Compare(s.Port, o.Port); c != 0 {
		return c
	}
	return cmp.Compare(s.Protocol, o.Protocol)
}

// RawConnection is one connection as reported by a connection source.
// Only the local endpoint, protocol and process name take part in socket
// attribution; the other fields are informational.
type RawConnection struct {
	Local       netip.AddrPort
	Remote      netip.AddrPort
	Proto       Protocol
	State       string
	PID         int
	ProcessName string
}

func (c RawConnection) LocalIP() netip.Addr { return c.Local.Addr() }

func (c RawConnection) LocalPort() uint16 { return c.Local.Port() }

func (c RawConnection) Protocol() Protocol { return c.Proto }

// OpenSockets maps every observed local socket to the name of the process
// holding it. It is immutable once built; the zero value is an empty
// snapshot.
type OpenSockets struct {
	socketsToProcs map[LocalSocket]string
}

// NewOpenSockets returns a snapshot holding a copy of m.
func NewOpenSockets(m map[LocalSocket]string) OpenSockets {
	return OpenSockets{socketsToProcs: maps.Clone(m)}
}

// Lookup returns the process owning s, if any.
func (o OpenSockets) Lookup(s LocalSocket) (string, bool) {
	name, ok := o.socketsToProcs[s]
	return name, ok
}

func (o OpenSockets) Len() int { return len(o.socketsToProcs) }

// All iterates the snapshot in no particular order.
func (o OpenSockets) All() iter.Seq2[LocalSocket, string] {
	return func(yield func(LocalSocket, string) bool) {
		for s, name := range o.socketsToProcs {
			if !yield(s, name) {
				return
			}
		}
	}
}

// Sockets returns all keys sorted by IP, port and protocol.
func (o OpenSockets) Sockets() []LocalSocket {
	return slices.SortedFunc(maps.Keys(o.socketsToProcs), LocalSocket.Compare)
}

// Processes counts sockets per process name.
func (o OpenSockets) Processes() map[string]int {
	counts := make(map[string]int)
	for _, name := range o.socketsToProcs {
		counts[name]++
	}
	return counts
}

type socketEntry struct {
	IP       string   `json:"ip"`
	Port     uint16   `json:"port"`
	Protocol Protocol `json:"protocol"`
	Process  string   `json:"process"`
}

func (o OpenSockets) MarshalJSON() ([]byte, error) {
	entries := make([]socketEntry, 0, o.Len())
	for _, s := range o.Sockets() {
		entries = append(entries, socketEntry{
			IP:       s.IP.String(),
			Port:     s.Port,
			Protocol: s.Protocol,
			Process:  o.socketsToProcs[s],
		})
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
