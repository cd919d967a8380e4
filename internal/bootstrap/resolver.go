package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strings"

	"chordring/internal/config"
)

// DNSBootstrap discovers ring peers by resolving a configured DNS name,
// either as an SRV record set or as a plain A/AAAA lookup paired with a
// fixed port. There is nothing to advertise through DNS itself, so
// Register/Deregister are no-ops, same as DockerBootstrap.
type DNSBootstrap struct {
	resolver *net.Resolver
	name     string
	srv      bool
	port     int
}

// NewDNSBootstrap builds a DNSBootstrap over cfg using the system
// resolver. cfg.SRV selects SRV-record discovery (ports come from the
// records themselves); otherwise cfg.DNSName is resolved via A/AAAA and
// cfg.Port supplies the port for every discovered address.
func NewDNSBootstrap(cfg config.BootstrapConfig) (*DNSBootstrap, error) {
	if cfg.DNSName == "" {
		return nil, fmt.Errorf("bootstrap: dns: dnsName must not be empty")
	}
	return &DNSBootstrap{
		resolver: net.DefaultResolver,
		name:     cfg.DNSName,
		srv:      cfg.SRV,
		port:     cfg.Port,
	}, nil
}

// Discover resolves d.name and returns one dial address per record.
func (d *DNSBootstrap) Discover(ctx context.Context) ([]string, error) {
	if d.srv {
		return d.discoverSRV(ctx)
	}
	return d.discoverHost(ctx)
}

// discoverSRV expects d.name already in "_service._proto.domain" form
// and resolves each target host to its addresses, pairing them with the
// port the SRV record itself names.
func (d *DNSBootstrap) discoverSRV(ctx context.Context) ([]string, error) {
	_, records, err := d.resolver.LookupSRV(ctx, "", "", d.name)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dns: srv lookup %q: %w", d.name, err)
	}

	var out []string
	for _, rr := range records {
		target := strings.TrimSuffix(rr.Target, ".")
		ips, err := d.resolver.LookupHost(ctx, target)
		if err != nil {
			continue
		}
		for _, ip := range ips {
			out = append(out, net.JoinHostPort(ip, fmt.Sprint(rr.Port)))
		}
	}
	return out, nil
}

// discoverHost resolves d.name via A/AAAA and pairs every address with
// d.port.
func (d *DNSBootstrap) discoverHost(ctx context.Context) ([]string, error) {
	ips, err := d.resolver.LookupHost(ctx, d.name)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dns: host lookup %q: %w", d.name, err)
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.JoinHostPort(ip, fmt.Sprint(d.port)))
	}
	return out, nil
}

func (d *DNSBootstrap) Register(ctx context.Context, self SelfInfo) error { return nil }

func (d *DNSBootstrap) Deregister(ctx context.Context, self SelfInfo) error { return nil }
