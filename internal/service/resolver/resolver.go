package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/cul-updater/internal/logger"
	"github.com/oshokin/cul-updater/internal/service/common"
	"github.com/oshokin/cul-updater/internal/service/probe"
)

// ErrNoReachableEndpoint is returned when no DNS server label produced a usable address.
var ErrNoReachableEndpoint = errors.New("no reachable endpoint for the release API")

// errUnreachable marks an address that failed the connectivity probe.
var errUnreachable = errors.New("address is unreachable")

// Target is the resolved API endpoint.
type Target struct {
	// URL is the full release API URL, built from either the hostname or the address.
	URL string
	// Host is the hostname sent in the Host header.
	Host string
	// Address is the IPv4 address the hostname resolved to.
	Address string
}

// Options configures a Resolver.
type Options struct {
	// Servers is the ordered list of DNS server labels.
	Servers []string
	// Port is probed and used in the URL; 443 when zero.
	Port int
	// Path is the API path appended to the host, e.g. /repos/o/r/releases/latest.
	Path string
	// ProbeTimeout bounds each connectivity probe.
	ProbeTimeout time.Duration
	// Lookup resolves hostnames; SystemLookup when nil.
	Lookup HostLookup
	// Prober checks reachability; probe.TCP when nil.
	Prober probe.Prober
}

// Resolver walks the DNS server labels until one yields a reachable target.
type Resolver struct {
	servers      []string
	port         int
	path         string
	probeTimeout time.Duration
	lookup       HostLookup
	prober       probe.Prober
}

// New creates a Resolver. The server list is copied.
func New(opts *Options) *Resolver {
	r := &Resolver{
		servers:      slices.Clone(opts.Servers),
		port:         opts.Port,
		path:         opts.Path,
		probeTimeout: opts.ProbeTimeout,
		lookup:       opts.Lookup,
		prober:       opts.Prober,
	}

	if r.port <= 0 {
		r.port = probe.DefaultPort
	}

	if r.probeTimeout <= 0 {
		r.probeTimeout = probe.DefaultTimeout
	}

	if r.lookup == nil {
		r.lookup = SystemLookup{}
	}

	if r.prober == nil {
		r.prober = probe.TCP{}
	}

	return r
}

// Resolve returns the first target built from a DNS server label whose answer is usable.
//
// A loopback answer (127.0.0.1 or 0.0.0.0) is trusted without probing and the
// URL keeps the hostname. Any other address must pass the probe, and the URL
// then uses the address with the hostname moved to Target.Host.
func (r *Resolver) Resolve(ctx context.Context, domain string) (*Target, error) {
	target, _, err := common.FirstSuccess(ctx, r.servers,
		func(ctx context.Context, server string) (*Target, error) {
			return r.tryServer(ctx, server, domain)
		})
	if err != nil {
		logger.ErrorKV(ctx, "Every DNS server failed to give a reachable address", "host", domain)
		return nil, fmt.Errorf("%w: %w", ErrNoReachableEndpoint, err)
	}

	return target, nil
}

// tryServer resolves domain for one server label and validates the address.
func (r *Resolver) tryServer(ctx context.Context, server, domain string) (*Target, error) {
	logger.InfoKV(ctx, "Resolving host", "dns_server", server, "host", domain)

	ips, err := r.lookup.LookupIPv4(ctx, server, domain)
	if err != nil {
		logger.WarnKV(ctx, "Resolution failed, trying the next DNS server", "dns_server", server, "error", err)
		return nil, fmt.Errorf("resolve %s via %s: %w", domain, server, err)
	}

	if len(ips) == 0 {
		logger.WarnKV(ctx, "Resolution returned no address, trying the next DNS server", "dns_server", server)
		return nil, fmt.Errorf("resolve %s via %s: %w", domain, server, errNoIPv4Address)
	}

	address := ips[0].String()
	logger.InfoKV(ctx, "Resolved address", "host", domain, "address", address)

	if isLoopback(address) {
		logger.InfoKV(ctx, "Loopback address, using the hostname directly", "address", address)

		return &Target{
			URL:     r.buildURL(domain),
			Host:    domain,
			Address: address,
		}, nil
	}

	if !r.prober.Reachable(ctx, address, r.port, r.probeTimeout) {
		logger.WarnKV(ctx, "Address failed the connectivity test, trying the next DNS server",
			"address", address, "dns_server", server)

		return nil, fmt.Errorf("%s:%d: %w", address, r.port, errUnreachable)
	}

	logger.InfoKV(ctx, "Address is reachable", "address", address)

	return &Target{
		URL:     r.buildURL(address),
		Host:    domain,
		Address: address,
	}, nil
}

// buildURL returns https://host[:port]/path. Port 443 is omitted.
func (r *Resolver) buildURL(host string) string {
	hostPort := host
	if r.port != probe.DefaultPort {
		hostPort = net.JoinHostPort(host, strconv.Itoa(r.port))
	} else if strings.Contains(host, ":") {
		hostPort = "[" + host + "]"
	}

	//nolint:exhaustruct // Scheme, host and path are all a release URL needs.
	u := url.URL{
		Scheme: "https",
		Host:   hostPort,
		Path:   r.path,
	}

	return u.String()
}

// isLoopback reports whether the resolver answered with a sinkhole address.
func isLoopback(address string) bool {
	return address == "127.0.0.1" || address == "0.0.0.0"
}
