package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// HostLookup resolves host to IPv4 addresses, optionally through server.
type HostLookup interface {
	LookupIPv4(ctx context.Context, server, host string) ([]net.IP, error)
}

var (
	// errDNSQueryFailed is returned for answers with a non-success rcode.
	errDNSQueryFailed = errors.New("dns query failed")
	// errNoIPv4Address is returned when an answer holds no A record.
	errNoIPv4Address = errors.New("no IPv4 address in answer")
)

// defaultDNSPort is where direct queries are sent.
const defaultDNSPort = 53

// SystemLookup resolves with the system resolver and ignores the server label.
type SystemLookup struct {
	// Resolver defaults to net.DefaultResolver.
	Resolver *net.Resolver
}

// LookupIPv4 implements HostLookup.
func (s SystemLookup) LookupIPv4(ctx context.Context, _, host string) ([]net.IP, error) {
	if ip := literalIPv4(host); ip != nil {
		return []net.IP{ip}, nil
	}

	resolver := s.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	ips, err := resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}

	if len(ips) == 0 {
		return nil, errNoIPv4Address
	}

	return ips, nil
}

// DirectLookup sends an A query straight to the DNS server named by the label.
type DirectLookup struct {
	// Timeout bounds one exchange; zero means the miekg/dns default.
	Timeout time.Duration
	// Port is the server port, 53 when zero.
	Port int
}

// LookupIPv4 implements HostLookup.
func (d DirectLookup) LookupIPv4(ctx context.Context, server, host string) ([]net.IP, error) {
	if ip := literalIPv4(host); ip != nil {
		return []net.IP{ip}, nil
	}

	port := d.Port
	if port <= 0 {
		port = defaultDNSPort
	}

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(host), dns.TypeA)

	//nolint:exhaustruct // Defaults are fine apart from the timeout.
	client := &dns.Client{Timeout: d.Timeout}

	answer, _, err := client.ExchangeContext(ctx, query, net.JoinHostPort(server, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", server, err)
	}

	if answer.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s answered %s: %w", server, dns.RcodeToString[answer.Rcode], errDNSQueryFailed)
	}

	ips := make([]net.IP, 0, len(answer.Answer))

	for _, record := range answer.Answer {
		if a, ok := record.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}

	if len(ips) == 0 {
		return nil, errNoIPv4Address
	}

	return ips, nil
}

// literalIPv4 returns host as an IPv4 address if it already is one.
func literalIPv4(host string) net.IP {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}

	return ip.To4()
}
