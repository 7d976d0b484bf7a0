package netx_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/m-lab/esmond-archiver/internal/netx"
)

type fakeResolver struct {
	hosts map[string][]string
	calls map[string]int
}

func (r *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	r.calls[host]++
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := []net.IPAddr{}
	for _, a := range addrs {
		out = append(out, net.IPAddr{IP: net.ParseIP(a)})
	}
	return out, nil
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		hosts: map[string][]string{
			"dual.example.net": {"2001:db8::1", "192.0.2.1"},
			"v4.example.net":   {"192.0.2.2"},
			"v6.example.net":   {"2001:db8::2"},
		},
		calls: map[string]int{},
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		dst     string
		version int
		wantSrc string
		wantDst string
	}{
		{
			name:    "literals-unchanged",
			src:     "192.0.2.10",
			dst:     "192.0.2.20",
			wantSrc: "192.0.2.10",
			wantDst: "192.0.2.20",
		},
		{
			name:    "dual-stack-follows-v4-destination",
			src:     "dual.example.net",
			dst:     "v4.example.net",
			wantSrc: "192.0.2.1",
			wantDst: "192.0.2.2",
		},
		{
			name:    "dual-stack-follows-v6-destination",
			src:     "dual.example.net",
			dst:     "v6.example.net",
			wantSrc: "2001:db8::1",
			wantDst: "2001:db8::2",
		},
		{
			name:    "forced-version-wins",
			src:     "dual.example.net",
			dst:     "dual.example.net",
			version: 4,
			wantSrc: "192.0.2.1",
			wantDst: "192.0.2.1",
		},
		{
			name:    "forced-version-unavailable",
			src:     "v6.example.net",
			dst:     "192.0.2.20",
			version: 4,
			wantSrc: "v6.example.net",
			wantDst: "192.0.2.20",
		},
		{
			name:    "unresolvable-source",
			src:     "unknown.example.net",
			dst:     "v6.example.net",
			wantSrc: "unknown.example.net",
			wantDst: "2001:db8::2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := netx.NewNormalizer(newFakeResolver(), time.Minute)
			defer n.Close()
			src, dst := n.Normalize(context.Background(), tt.src, tt.dst, tt.version)
			if src != tt.wantSrc || dst != tt.wantDst {
				t.Errorf("Normalize() = (%s, %s), want (%s, %s)", src, dst,
					tt.wantSrc, tt.wantDst)
			}
		})
	}
}

func TestNormalizer_NormalizeAs(t *testing.T) {
	n := netx.NewNormalizer(newFakeResolver(), time.Minute)
	defer n.Close()
	if got := n.NormalizeAs(context.Background(), "192.0.2.10", "dual.example.net"); got != "192.0.2.1" {
		t.Errorf("NormalizeAs() = %s, want 192.0.2.1", got)
	}
	if got := n.NormalizeAs(context.Background(), "2001:db8::10", "dual.example.net"); got != "2001:db8::1" {
		t.Errorf("NormalizeAs() = %s, want 2001:db8::1", got)
	}
}

func TestNormalizer_cache(t *testing.T) {
	r := newFakeResolver()
	n := netx.NewNormalizer(r, time.Minute)
	defer n.Close()
	for i := 0; i < 3; i++ {
		n.Normalize(context.Background(), "v4.example.net", "unknown.example.net", 0)
	}
	if r.calls["v4.example.net"] != 1 {
		t.Errorf("resolved hosts should be cached, got %d lookups", r.calls["v4.example.net"])
	}
	if r.calls["unknown.example.net"] != 3 {
		t.Errorf("failed lookups should not be cached, got %d lookups", r.calls["unknown.example.net"])
	}
}
