package netx

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultCacheTTL is how long resolved addresses are kept by a Normalizer.
const DefaultCacheTTL = 5 * time.Minute

// Resolver resolves host names to IP addresses. *net.Resolver implements it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Normalizer turns pairs of host names or addresses into IP addresses of the
// same version. Successful lookups are cached.
type Normalizer struct {
	resolver Resolver
	cache    *ttlcache.Cache[string, []net.IP]
}

// NewNormalizer returns a Normalizer using the provided resolver and caching
// lookups for ttl. If r is nil, net.DefaultResolver is used.
func NewNormalizer(r Resolver, ttl time.Duration) *Normalizer {
	if r == nil {
		r = net.DefaultResolver
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []net.IP](ttl),
		ttlcache.WithDisableTouchOnHit[string, []net.IP](),
	)
	go cache.Start()
	return &Normalizer{
		resolver: r,
		cache:    cache,
	}
}

// Close stops the cache cleanup goroutine.
func (n *Normalizer) Close() {
	n.cache.Stop()
}

// Version returns 4 or 6 depending on the IP's family.
func Version(ip net.IP) int {
	if ip.To4() != nil {
		return 4
	}
	return 6
}

// Normalize returns src and dst as IP addresses of the same version. If
// version is 4 or 6 that version is used; otherwise a version both sides
// support is chosen, preferring the order of src's addresses. A side that
// cannot be resolved to a suitable address is returned unchanged.
func (n *Normalizer) Normalize(ctx context.Context, src, dst string, version int) (string, string) {
	srcIPs := n.lookup(ctx, src)
	dstIPs := n.lookup(ctx, dst)

	if version != 4 && version != 6 {
		version = commonVersion(srcIPs, dstIPs)
	}
	return pick(src, srcIPs, version), pick(dst, dstIPs, version)
}

// NormalizeAs returns addr as an IP address of the same version as ref.
func (n *Normalizer) NormalizeAs(ctx context.Context, ref, addr string) string {
	version := 0
	if ip := net.ParseIP(ref); ip != nil {
		version = Version(ip)
	}
	_, out := n.Normalize(ctx, ref, addr, version)
	return out
}

func (n *Normalizer) lookup(ctx context.Context, host string) []net.IP {
	if host == "" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}
	}
	if item := n.cache.Get(host); item != nil {
		return item.Value()
	}
	addrs, err := n.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		log.Debug("cannot resolve host", "host", host, "error", err)
		return nil
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	n.cache.Set(host, ips, ttlcache.DefaultTTL)
	return ips
}

func commonVersion(src, dst []net.IP) int {
	for _, s := range src {
		v := Version(s)
		if len(dst) == 0 {
			return v
		}
		for _, d := range dst {
			if Version(d) == v {
				return v
			}
		}
	}
	if len(src) == 0 && len(dst) > 0 {
		return Version(dst[0])
	}
	return 0
}

func pick(orig string, ips []net.IP, version int) string {
	for _, ip := range ips {
		if version == 0 || Version(ip) == version {
			return ip.String()
		}
	}
	return orig
}
