package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

type icmpFamily struct {
	dgram   string
	raw     string
	listen  string
	proto   int
	request icmp.Type
	reply   icmp.Type
}

var (
	icmpV4 = icmpFamily{
		dgram:   "udp4",
		raw:     "ip4:icmp",
		listen:  "0.0.0.0",
		proto:   ipv4.ICMPTypeEcho.Protocol(),
		request: ipv4.ICMPTypeEcho,
		reply:   ipv4.ICMPTypeEchoReply,
	}
	icmpV6 = icmpFamily{
		dgram:   "udp6",
		raw:     "ip6:ipv6-icmp",
		listen:  "::",
		proto:   ipv6.ICMPTypeEchoRequest.Protocol(),
		request: ipv6.ICMPTypeEchoRequest,
		reply:   ipv6.ICMPTypeEchoReply,
	}
)

var icmpSeq atomic.Uint32

var echoPayload = []byte("netsentinel-echo")

// PingICMP sends a single ICMP echo to host. It prefers an unprivileged
// datagram socket and falls back to a raw socket.
func PingICMP(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := resolveIP(ctx, host)
	if err != nil {
		return 0, err
	}
	family := icmpV4
	if ip.To4() == nil {
		family = icmpV6
	}

	conn, dgram, err := listenICMP(family)
	if err != nil {
		return 0, &TransportError{Op: "ping", Target: host, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, err
		}
	}

	id := os.Getpid() & 0xffff
	seq := int(icmpSeq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: family.request,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: echoPayload},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshal echo: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if dgram {
		dst = &net.UDPAddr{IP: ip}
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		rtt := time.Since(start)
		if !peerMatches(peer, ip) {
			continue
		}
		reply, err := icmp.ParseMessage(family.proto, buf[:n])
		if err != nil || reply.Type != family.reply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// The kernel rewrites the identifier on datagram sockets.
		if !dgram && echo.ID != id {
			continue
		}
		return rtt, nil
	}
}

func listenICMP(family icmpFamily) (*icmp.PacketConn, bool, error) {
	conn, err := icmp.ListenPacket(family.dgram, family.listen)
	if err == nil {
		return conn, true, nil
	}
	raw, rawErr := icmp.ListenPacket(family.raw, family.listen)
	if rawErr != nil {
		return nil, false, multierr.Append(err, rawErr)
	}
	return raw, false, nil
}

func resolveIP(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &TransportError{Op: "resolve", Target: host, Err: err}
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}
	if len(addrs) == 0 {
		return nil, &TransportError{Op: "resolve", Target: host, Err: errors.New("no addresses")}
	}
	return addrs[0].IP, nil
}

func peerMatches(peer net.Addr, ip net.IP) bool {
	switch p := peer.(type) {
	case *net.UDPAddr:
		return p.IP.Equal(ip)
	case *net.IPAddr:
		return p.IP.Equal(ip)
	default:
		return true
	}
}
