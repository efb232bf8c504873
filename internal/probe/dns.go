package probe

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
)

// resolveA queries server directly for hostname's A record. server may carry
// a port; 53 is assumed otherwise.
func resolveA(ctx context.Context, hostname, server string, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(hostname), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Net: "udp", Timeout: timeout}
	in, rtt, err := client.ExchangeContext(ctx, msg, serverAddr(server))
	if err != nil {
		return 0, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return 0, &ProtocolError{Op: "dns", Target: hostname, Reason: "rcode " + dns.RcodeToString[in.Rcode]}
	}
	for _, rr := range in.Answer {
		if _, ok := rr.(*dns.A); ok {
			return rtt, nil
		}
	}
	return 0, &ProtocolError{Op: "dns", Target: hostname, Reason: "no A records in answer"}
}

func serverAddr(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}
