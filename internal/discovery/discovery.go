// Package discovery finds Basis packet publishers advertised over mDNS/DNS-SD
// and can advertise a local publisher.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"
)

// Service types browsed by Discover.
const (
	ServiceUDP = "_basis._udp"
	ServiceTCP = "_basis._tcp"
	Domain     = "local."
)

// Host is one advertised publisher.
type Host struct {
	Instance  string // "basis mock on bench"
	Service   string // "_basis._udp"
	Hostname  string // "bench.local."
	Addresses []net.IP
	Port      int
	TXT       map[string]string
}

// Endpoint returns host:port, preferring an IPv4 address over the hostname.
func (h Host) Endpoint() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(h.Port))
}

// Transport is "udp" or "tcp" depending on the advertised service.
func (h Host) Transport() string {
	if strings.HasSuffix(h.Service, "._tcp") {
		return "tcp"
	}
	return "udp"
}

// browseFunc is swapped in tests.
var browseFunc = func(ctx context.Context, service string, entries chan *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("resolver error: %w", err)
	}
	return resolver.Browse(ctx, service, Domain, entries)
}

// Discover browses the given services (both Basis services when none are
// named) until timeout and returns deduplicated hosts sorted by instance.
func Discover(ctx context.Context, timeout time.Duration, services ...string) ([]Host, error) {
	if len(services) == 0 {
		services = []string{ServiceUDP, ServiceTCP}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]Host)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		g.Go(func() error {
			entries := make(chan *zeroconf.ServiceEntry)
			if err := browseFunc(gctx, svc, entries); err != nil {
				return fmt.Errorf("browse %s: %w", svc, err)
			}
			for {
				select {
				case e, ok := <-entries:
					if !ok {
						return nil
					}
					if e == nil {
						continue
					}
					h := hostFromEntry(svc, e)
					mu.Lock()
					results[hostKey(h)] = h
					mu.Unlock()
				case <-gctx.Done():
					return nil
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Host, 0, len(results))
	for _, h := range results {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instance != out[j].Instance {
			return out[i].Instance < out[j].Instance
		}
		return out[i].Service < out[j].Service
	})
	return out, nil
}

func hostFromEntry(service string, e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Service:   service,
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       parseTXT(e.Text),
	}
}

func hostKey(h Host) string {
	return fmt.Sprintf("%s|%s|%d", h.Service, h.Hostname, h.Port)
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}

// parseTXT splits key=value records. Bare keys map to "".
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		if r == "" {
			continue
		}
		k, v, _ := strings.Cut(r, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}

// Announcement is a running advertisement. Shutdown withdraws it.
type Announcement struct {
	server *zeroconf.Server
}

// Announce advertises a publisher on port. txt entries are rendered as
// key=value records in sorted key order.
func Announce(instance, service string, port int, txt map[string]string) (*Announcement, error) {
	if service == "" {
		service = ServiceUDP
	}
	server, err := zeroconf.Register(instance, service, Domain, port, formatTXT(txt), nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", service, err)
	}
	return &Announcement{server: server}, nil
}

// Shutdown stops answering queries for the announcement.
func (a *Announcement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

func formatTXT(txt map[string]string) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+txt[k])
	}
	return out
}
